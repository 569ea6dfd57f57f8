package dedup

import (
	"math"
	"strings"
)

// featureDim is the number of entries in a domain feature vector.
const featureDim = 12

var commonTLDSet = map[string]struct{}{
	"com": {}, "org": {}, "net": {}, "co": {}, "in": {},
}

// featureVector builds a fixed-scale numeric description of a domain string
// for the clustering pass. Scaling constants are per-feature and independent
// of the detection population, so a domain always maps to the same vector
// and repeated deduplication runs see identical geometry.
func featureVector(domain string) []float64 {
	domain = strings.ToLower(strings.TrimSpace(domain))
	n := float64(len(domain))
	if n == 0 {
		return make([]float64, featureDim)
	}

	labels := strings.Split(domain, ".")
	tld := labels[len(labels)-1]
	main := mainLabel(domain)

	var vowels, consonants, digits, specials float64
	for _, r := range domain {
		switch {
		case strings.ContainsRune("aeiou", r):
			vowels++
		case r >= 'a' && r <= 'z':
			consonants++
		case r >= '0' && r <= '9':
			digits++
		case r != '.':
			specials++
		}
	}

	subdomains := float64(len(labels) - 2)
	if subdomains < 0 {
		subdomains = 0
	}

	hasHyphen := 0.0
	if strings.ContainsRune(domain, '-') {
		hasHyphen = 1.0
	}
	commonTLD := 0.0
	if _, ok := commonTLDSet[tld]; ok {
		commonTLD = 1.0
	}

	return []float64{
		n / 40,
		subdomains / 4,
		hasHyphen,
		boolF(digits > 0),
		float64(len(tld)) / 10,
		commonTLD,
		vowels / n,
		consonants / n,
		digits / n,
		specials / n,
		entropy(domain) / 5,
		float64(len(main)) / 30,
	}
}

func boolF(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}

func entropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := map[rune]float64{}
	for _, r := range s {
		freq[r]++
	}
	n := float64(len([]rune(s)))
	var h float64
	for _, c := range freq {
		p := c / n
		h -= p * math.Log2(p)
	}
	return h
}

// cosineDistance returns 1 - cosine similarity. An error value of -1
// signals a degenerate (zero-norm) vector.
func cosineDistance(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// euclideanDistance over the fixed-scale features, used by the hierarchical
// fallback.
func euclideanDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func finite(vec []float64) bool {
	for _, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
