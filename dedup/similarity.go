package dedup

import (
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
	"golang.org/x/text/unicode/norm"
)

// normalizeDomain is the case/whitespace normalization used by the exact
// pass. NFKC folding collapses many confusable code points onto their ASCII
// counterparts, so trivially-homoglyphic duplicates exact-match.
func normalizeDomain(domain string) string {
	return norm.NFKC.String(strings.ToLower(strings.TrimSpace(domain)))
}

// blendedSimilarity is the fuzzy-pass metric: a weighted combination of
// sequence similarity, shared-character-set Jaccard, and the similarity of
// the main label (the label immediately before the TLD).
func blendedSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if a == b {
		return 1.0
	}

	return 0.5*sequenceSimilarity(a, b) +
		0.3*jaccardSimilarity(a, b) +
		0.2*mainLabelSimilarity(a, b)
}

// sequenceSimilarity is the classic ratio 2*LCS/(len(a)+len(b)).
func sequenceSimilarity(a, b string) float64 {
	if len(a)+len(b) == 0 {
		return 1.0
	}
	return 2.0 * float64(lcsLength(a, b)) / float64(len(a)+len(b))
}

func lcsLength(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func jaccardSimilarity(a, b string) float64 {
	setA := map[rune]struct{}{}
	for _, r := range a {
		setA[r] = struct{}{}
	}
	setB := map[rune]struct{}{}
	for _, r := range b {
		setB[r] = struct{}{}
	}

	intersection := 0
	for r := range setA {
		if _, ok := setB[r]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func mainLabelSimilarity(a, b string) float64 {
	la, lb := mainLabel(a), mainLabel(b)
	if la == lb {
		return 1.0
	}
	return sequenceSimilarity(la, lb)
}

// mainLabel is the registrable label in front of the public suffix, so
// multi-label suffixes like co.uk resolve to the brand label. Domains the
// suffix list cannot place fall back to a plain label split.
func mainLabel(domain string) string {
	if parsed, err := publicsuffix.Parse(domain); err == nil && parsed.SLD != "" {
		return parsed.SLD
	}
	parts := strings.Split(domain, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return parts[0]
}
