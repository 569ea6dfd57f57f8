package score

import (
	"strings"
	"time"

	"github.com/cse-security/phishmon/enrich"
)

// Tier is the discrete risk bucket derived from the composite score.
type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

const (
	FactorDomainAge        = "domain_age"
	FactorVisualSimilarity = "visual_similarity"
	FactorContentAnalysis  = "content_analysis"
	FactorSSLCertificate   = "ssl_certificate"
	FactorBlacklist        = "blacklist"
)

var weights = map[string]float64{
	FactorDomainAge:        0.40,
	FactorVisualSimilarity: 0.25,
	FactorContentAnalysis:  0.15,
	FactorSSLCertificate:   0.10,
	FactorBlacklist:        0.10,
}

// freeCAs are certificate authorities handing out free automated
// certificates, which phishing campaigns disproportionately use.
var freeCAs = []string{"let's encrypt", "cloudflare", "zerossl"}

var DefaultThresholds = Thresholds{
	High:   75,
	Medium: 50,
}

type Thresholds struct {
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
}

func (t Thresholds) Tier(total float64) Tier {
	switch {
	case total >= t.High:
		return TierHigh
	case total >= t.Medium:
		return TierMedium
	default:
		return TierLow
	}
}

// Factor is the per-factor breakdown of one scoring component.
type Factor struct {
	Name         string
	Score        float64
	Weight       float64
	Contribution float64
}

type Result struct {
	Total   float64
	Tier    Tier
	Factors []Factor
}

// Scorer combines enrichment facts into a 0-100 composite risk score. It is
// pure: missing or partial fact bundles map to neutral sub-scores and never
// to an error.
type Scorer struct {
	thresholds Thresholds
	now        func() time.Time
}

func NewScorer(t Thresholds) *Scorer {
	if t.High == 0 && t.Medium == 0 {
		t = DefaultThresholds
	}
	return &Scorer{
		thresholds: t,
		now:        time.Now,
	}
}

// WithClock overrides the clock used for certificate-age checks.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	s.now = now
	return s
}

func (s *Scorer) Score(f enrich.Facts) Result {
	factors := []Factor{
		{Name: FactorDomainAge, Score: scoreDomainAge(f.RegistrationAgeDays)},
		{Name: FactorVisualSimilarity, Score: scoreVisualSimilarity(f.VisualSimilarity)},
		{Name: FactorContentAnalysis, Score: scoreContent(f.ContentSimilarity, f.HasLoginForm, f.HasPaymentForm)},
		{Name: FactorSSLCertificate, Score: s.scoreSSL(f.SSL)},
		{Name: FactorBlacklist, Score: scoreBlacklists(f.BlacklistHits)},
	}

	var total float64
	for i := range factors {
		factors[i].Weight = weights[factors[i].Name]
		factors[i].Contribution = factors[i].Score * factors[i].Weight
		total += factors[i].Contribution
	}

	return Result{
		Total:   total,
		Tier:    s.thresholds.Tier(total),
		Factors: factors,
	}
}

// IsDetection reports whether the score clears the minimum bar for
// persisting a detection.
func (s *Scorer) IsDetection(total float64) bool {
	return total >= s.thresholds.Medium
}

func scoreDomainAge(ageDays *int) float64 {
	if ageDays == nil {
		return 50
	}
	switch age := *ageDays; {
	case age < 7:
		return 100
	case age < 30:
		return 90
	case age < 90:
		return 70
	case age < 180:
		return 50
	case age < 365:
		return 30
	default:
		return 10
	}
}

func scoreVisualSimilarity(similarity *float64) float64 {
	if similarity == nil {
		return 50
	}
	switch sim := *similarity; {
	case sim >= 80:
		return 95
	case sim >= 60:
		return 75
	case sim >= 40:
		return 50
	case sim >= 20:
		return 25
	default:
		return 10
	}
}

func scoreContent(contentSimilarity *float64, hasLogin, hasPayment bool) float64 {
	score := 50.0
	if contentSimilarity != nil {
		score = *contentSimilarity
	}
	if hasLogin {
		score += 30
	}
	if hasPayment {
		score += 40
	}
	if score > 100 {
		score = 100
	}
	return score
}

func (s *Scorer) scoreSSL(ssl *enrich.SSLInfo) float64 {
	if ssl == nil {
		return 80
	}

	score := 20.0

	issuer := strings.ToLower(ssl.Issuer)
	for _, ca := range freeCAs {
		if strings.Contains(issuer, ca) {
			score += 30
			break
		}
	}

	if !ssl.NotBefore.IsZero() && s.now().Sub(ssl.NotBefore) < 30*24*time.Hour {
		score += 10
	}

	if score > 100 {
		score = 100
	}
	return score
}

func scoreBlacklists(hits map[string]bool) float64 {
	for _, hit := range hits {
		if hit {
			return 100
		}
	}
	return 0
}
