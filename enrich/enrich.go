package enrich

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// SSLInfo describes the certificate served by a domain, as reported by the
// certificate collaborator. A nil SSLInfo means no (or an invalid) certificate.
type SSLInfo struct {
	Issuer    string
	NotBefore time.Time
	NotAfter  time.Time
}

// Facts is the structured enrichment bundle for a single domain. All fields
// are optional; collaborators fill in what they managed to resolve and leave
// the rest at their zero value (or nil for pointer fields, which distinguishes
// "unknown" from "zero").
type Facts struct {
	RegistrationAgeDays *int
	IP                  string
	ASN                 string
	CountryCode         string
	ISP                 string
	Registrar           string
	Registrant          string

	SSL *SSLInfo

	BlacklistHits map[string]bool

	VisualSimilarity  *float64
	ContentSimilarity *float64
	HasLoginForm      bool
	HasPaymentForm    bool
	HasBinaryHosting  bool
}

// BlacklistFeedsHit returns the sorted names of feeds with a confirmed hit.
func (f *Facts) BlacklistFeedsHit() []string {
	var feeds []string
	for name, hit := range f.BlacklistHits {
		if hit {
			feeds = append(feeds, name)
		}
	}
	sort.Strings(feeds)
	return feeds
}

// CanonicalTuple serializes the fact bundle as a sorted list of key=value
// strings. The tuple is the basis for content fingerprinting and for the
// drift metric, so its format must remain stable across checks.
func (f *Facts) CanonicalTuple() []string {
	kv := map[string]string{
		"age":        intPtrStr(f.RegistrationAgeDays),
		"ip":         f.IP,
		"asn":        f.ASN,
		"country":    f.CountryCode,
		"isp":        f.ISP,
		"registrar":  f.Registrar,
		"registrant": f.Registrant,
		"blacklist":  strings.Join(f.BlacklistFeedsHit(), "+"),
		"visual":     floatPtrStr(f.VisualSimilarity),
		"content":    floatPtrStr(f.ContentSimilarity),
		"login":      fmt.Sprintf("%t", f.HasLoginForm),
		"payment":    fmt.Sprintf("%t", f.HasPaymentForm),
		"binary":     fmt.Sprintf("%t", f.HasBinaryHosting),
	}
	if f.SSL != nil {
		kv["ssl_issuer"] = f.SSL.Issuer
		kv["ssl_not_before"] = f.SSL.NotBefore.UTC().Format(time.RFC3339)
		kv["ssl_not_after"] = f.SSL.NotAfter.UTC().Format(time.RFC3339)
	}

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tuple := make([]string, 0, len(keys))
	for _, k := range keys {
		tuple = append(tuple, k+"="+kv[k])
	}
	return tuple
}

// Fingerprint hashes the canonical fact tuple.
func (f *Facts) Fingerprint() string {
	sum := blake2b.Sum256([]byte(strings.Join(f.CanonicalTuple(), "\n")))
	return fmt.Sprintf("%x", sum)
}

func intPtrStr(i *int) string {
	if i == nil {
		return ""
	}
	return fmt.Sprintf("%d", *i)
}

func floatPtrStr(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *f)
}

// Enricher resolves the fact bundle for a domain. Implementations wrap the
// external intelligence services (WHOIS, DNS, SSL, blacklist feeds, visual
// comparison) and must honour the context deadline.
type Enricher interface {
	Enrich(ctx context.Context, domain string) (Facts, error)
}

// ReachabilityChecker verifies that a domain still resolves and serves.
type ReachabilityChecker interface {
	IsReachable(ctx context.Context, domain string) bool
}

// Fingerprinter captures an opaque content fingerprint for a domain.
type Fingerprinter interface {
	CaptureFingerprint(ctx context.Context, domain string) (string, error)
}

// FactsFingerprinter derives the fingerprint from an Enricher's fact bundle
// instead of a live page capture.
type FactsFingerprinter struct {
	Enricher Enricher
}

func (fp *FactsFingerprinter) CaptureFingerprint(ctx context.Context, domain string) (string, error) {
	facts, err := fp.Enricher.Enrich(ctx, domain)
	if err != nil {
		return "", err
	}
	return facts.Fingerprint(), nil
}
