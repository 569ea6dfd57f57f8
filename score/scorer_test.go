package score

import (
	"testing"
	"time"

	"github.com/cse-security/phishmon/enrich"
)

func intPtr(i int) *int             { return &i }
func floatPtr(f float64) *float64   { return &f }
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestScoreRange(t *testing.T) {
	s := NewScorer(DefaultThresholds)

	cases := []struct {
		name  string
		facts enrich.Facts
	}{
		{"empty", enrich.Facts{}},
		{"worst", enrich.Facts{
			RegistrationAgeDays: intPtr(3),
			VisualSimilarity:    floatPtr(100),
			ContentSimilarity:   floatPtr(100),
			HasLoginForm:        true,
			HasPaymentForm:      true,
			SSL:                 &enrich.SSLInfo{Issuer: "Let's Encrypt", NotBefore: time.Now()},
			BlacklistHits:       map[string]bool{"phishtank": true},
		}},
		{"best", enrich.Facts{
			RegistrationAgeDays: intPtr(3650),
			VisualSimilarity:    floatPtr(0),
			ContentSimilarity:   floatPtr(0),
			SSL:                 &enrich.SSLInfo{Issuer: "DigiCert", NotBefore: time.Now().AddDate(-1, 0, 0)},
			BlacklistHits:       map[string]bool{"phishtank": false},
		}},
	}

	for _, tc := range cases {
		res := s.Score(tc.facts)
		if res.Total < 0 || res.Total > 100 {
			t.Fatalf("%s: expected a total in [0, 100], but got %f", tc.name, res.Total)
		}
		var sum float64
		for _, f := range res.Factors {
			sum += f.Contribution
		}
		if diff := res.Total - sum; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("%s: expected the total to equal the sum of contributions, but got %f vs %f", tc.name, res.Total, sum)
		}
	}
}

func TestScoreUnknownFactsAreNeutral(t *testing.T) {
	s := NewScorer(DefaultThresholds)

	res := s.Score(enrich.Facts{})
	for _, f := range res.Factors {
		switch f.Name {
		case FactorDomainAge, FactorVisualSimilarity, FactorContentAnalysis:
			if f.Score != 50 {
				t.Fatalf("expected a neutral sub-score of 50 for %s, but got %f", f.Name, f.Score)
			}
		case FactorSSLCertificate:
			// no certificate at all is itself suspicious
			if f.Score != 80 {
				t.Fatalf("expected a sub-score of 80 for %s, but got %f", f.Name, f.Score)
			}
		case FactorBlacklist:
			if f.Score != 0 {
				t.Fatalf("expected a sub-score of 0 for %s, but got %f", f.Name, f.Score)
			}
		}
	}
}

func TestScoreVisualSimilarityMonotonic(t *testing.T) {
	s := NewScorer(DefaultThresholds)

	prev := -1.0
	for _, sim := range []float64{0, 10, 20, 40, 60, 80, 100} {
		res := s.Score(enrich.Facts{VisualSimilarity: floatPtr(sim)})
		if res.Total < prev {
			t.Fatalf("expected the score to never decrease with visual similarity, but %f dropped below %f at similarity %f", res.Total, prev, sim)
		}
		prev = res.Total
	}
}

func TestScoreHighRiskScenario(t *testing.T) {
	s := NewScorer(DefaultThresholds).WithClock(fixedClock(time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)))

	facts := enrich.Facts{
		RegistrationAgeDays: intPtr(3),
		VisualSimilarity:    floatPtr(90),
		BlacklistHits:       map[string]bool{"openphish": true},
		SSL: &enrich.SSLInfo{
			Issuer:    "Let's Encrypt",
			NotBefore: time.Date(2021, 2, 25, 0, 0, 0, 0, time.UTC),
		},
	}

	res := s.Score(facts)
	// age 100*.40 + visual 95*.25 + content 50*.15 + ssl 60*.10 + blacklist 100*.10
	expected := 87.25
	if diff := res.Total - expected; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected a total of %f, but got %f", expected, res.Total)
	}
	if res.Tier != TierHigh {
		t.Fatalf("expected tier %s, but got %s", TierHigh, res.Tier)
	}
	if !s.IsDetection(res.Total) {
		t.Fatalf("expected the score to clear the detection bar")
	}
}

func TestScoreContentSignals(t *testing.T) {
	cases := []struct {
		similarity *float64
		login      bool
		payment    bool
		expected   float64
	}{
		{nil, false, false, 50},
		{nil, true, false, 80},
		{nil, true, true, 100}, // capped
		{floatPtr(20), false, true, 60},
		{floatPtr(90), true, true, 100}, // capped
	}
	for i, tc := range cases {
		if score := scoreContent(tc.similarity, tc.login, tc.payment); score != tc.expected {
			t.Fatalf("case %d: expected a content sub-score of %f, but got %f", i, tc.expected, score)
		}
	}
}

func TestThresholdTiers(t *testing.T) {
	cases := []struct {
		total float64
		tier  Tier
	}{
		{0, TierLow},
		{49.99, TierLow},
		{50, TierMedium},
		{74.99, TierMedium},
		{75, TierHigh},
		{100, TierHigh},
	}
	for _, tc := range cases {
		if tier := DefaultThresholds.Tier(tc.total); tier != tc.tier {
			t.Fatalf("expected tier %s for total %f, but got %s", tc.tier, tc.total, tier)
		}
	}
}
