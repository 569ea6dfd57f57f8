package generate

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/weppos/publicsuffix-go/publicsuffix"
	"golang.org/x/net/idna"
)

// Technique tags a candidate with the generation method that produced it.
type Technique string

const (
	TechniqueOmission     Technique = "omission"
	TechniqueRepetition   Technique = "repetition"
	TechniqueSubstitution Technique = "substitution"
	TechniqueInsertion    Technique = "insertion"
	TechniqueHomograph    Technique = "homograph"
	TechniqueKeyboard     Technique = "keyboard_proximity"
	TechniqueComboPrefix  Technique = "combo_prefix"
	TechniqueComboSuffix  Technique = "combo_suffix"
	TechniqueTLDSwap      Technique = "tld_swap"
	TechniqueSubdomain    Technique = "subdomain"
)

// Candidate is a generated look-alike domain. Candidates are ephemeral: they
// are produced and consumed within one generation pass and never persisted.
type Candidate struct {
	Domain    string
	Technique Technique
}

type InvalidProtectedDomainErr struct {
	Domain string
}

func (err InvalidProtectedDomainErr) Error() string {
	return fmt.Sprintf("cannot generate variations for invalid domain '%s'", err.Domain)
}

// Generator produces look-alike variations of a single protected domain.
// It performs no network or persistence access.
type Generator struct {
	original string
	name     string
	suffix   string
}

func NewGenerator(domain string) (*Generator, error) {
	normalized := strings.ToLower(strings.TrimSpace(domain))
	normalized = strings.TrimSuffix(normalized, ".")

	parsed, err := publicsuffix.Parse(normalized)
	if err != nil {
		return nil, errors.Wrap(InvalidProtectedDomainErr{Domain: domain}, err.Error())
	}
	if parsed.SLD == "" || parsed.TLD == "" {
		return nil, InvalidProtectedDomainErr{Domain: domain}
	}

	return &Generator{
		original: parsed.SLD + "." + parsed.TLD,
		name:     parsed.SLD,
		suffix:   parsed.TLD,
	}, nil
}

// Generate returns at most max candidates in deterministic order. Duplicate
// domains are removed while preserving first-seen order, and malformed or
// identical-to-original strings never appear in the output.
func (g *Generator) Generate(max int) []Candidate {
	groups := [][]Candidate{
		g.omission(),
		g.repetition(),
		g.substitution(),
		g.insertion(),
		g.homograph(),
		g.keyboard(),
		g.combosquatting(),
		g.tldSwap(),
		g.subdomains(),
	}

	// Interleave the techniques round-robin so a small max still samples
	// every technique instead of exhausting the first lists.
	var all []Candidate
	for i := 0; ; i++ {
		exhausted := true
		for _, group := range groups {
			if i < len(group) {
				all = append(all, group[i])
				exhausted = false
			}
		}
		if exhausted {
			break
		}
	}

	seen := make(map[string]struct{}, len(all))
	out := make([]Candidate, 0, max)
	for _, c := range all {
		if len(out) >= max {
			break
		}
		if c.Domain == g.original {
			continue
		}
		if !validCandidate(c.Domain) {
			continue
		}
		if _, ok := seen[c.Domain]; ok {
			continue
		}
		seen[c.Domain] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Generate is a convenience wrapper around NewGenerator.
func Generate(domain string, max int) ([]Candidate, error) {
	g, err := NewGenerator(domain)
	if err != nil {
		return nil, err
	}
	return g.Generate(max), nil
}

func validCandidate(domain string) bool {
	name := domain
	if i := strings.IndexByte(domain, '.'); i >= 0 {
		name = domain[:i]
	} else {
		return false
	}
	return len(name) >= 2
}

func (g *Generator) candidate(name string, t Technique) Candidate {
	return Candidate{
		Domain:    name + "." + g.suffix,
		Technique: t,
	}
}

func (g *Generator) omission() []Candidate {
	if len(g.name) <= 4 {
		// dropping a character would leave 3 or fewer
		return nil
	}
	var out []Candidate
	for i := range g.name {
		out = append(out, g.candidate(g.name[:i]+g.name[i+1:], TechniqueOmission))
	}
	return out
}

func (g *Generator) repetition() []Candidate {
	var out []Candidate
	for i := range g.name {
		out = append(out, g.candidate(g.name[:i]+string(g.name[i])+g.name[i:], TechniqueRepetition))
	}
	return out
}

// insertion slips a keyboard-adjacent character in before and after each
// position, mimicking a fat-fingered double press.
func (g *Generator) insertion() []Candidate {
	var out []Candidate
	for i, r := range g.name {
		adjacent, ok := keyboardProximity[r]
		if !ok {
			continue
		}
		for _, a := range adjacent {
			out = append(out,
				g.candidate(g.name[:i]+a+g.name[i:], TechniqueInsertion),
				g.candidate(g.name[:i+len(string(r))]+a+g.name[i+len(string(r)):], TechniqueInsertion),
			)
		}
	}
	return out
}

func (g *Generator) substitution() []Candidate {
	return g.substituteFrom(charSubstitutions, 0, TechniqueSubstitution)
}

func (g *Generator) keyboard() []Candidate {
	return g.substituteFrom(keyboardProximity, 0, TechniqueKeyboard)
}

// homograph emits each cross-script confusable variation both in its Unicode
// form and, where encodable, in its punycode form (the string that actually
// appears in zone files).
func (g *Generator) homograph() []Candidate {
	out := g.substituteFrom(idnHomographs, 2, TechniqueHomograph)
	for _, c := range out {
		if ascii, err := idna.ToASCII(c.Domain); err == nil && ascii != c.Domain {
			out = append(out, Candidate{Domain: ascii, Technique: TechniqueHomograph})
		}
	}
	return out
}

func (g *Generator) substituteFrom(table map[rune][]string, limit int, t Technique) []Candidate {
	var out []Candidate
	for i, r := range g.name {
		subs, ok := table[r]
		if !ok {
			continue
		}
		if limit > 0 && len(subs) > limit {
			subs = subs[:limit]
		}
		for _, sub := range subs {
			if sub == string(r) {
				continue
			}
			out = append(out, g.candidate(g.name[:i]+sub+g.name[i+len(string(r)):], t))
		}
	}
	return out
}

func (g *Generator) combosquatting() []Candidate {
	var out []Candidate
	for _, kw := range comboKeywords {
		out = append(out,
			g.candidate(kw+"-"+g.name, TechniqueComboPrefix),
			g.candidate(kw+g.name, TechniqueComboPrefix),
			g.candidate(g.name+"-"+kw, TechniqueComboSuffix),
			g.candidate(g.name+kw, TechniqueComboSuffix),
		)
	}
	return out
}

func (g *Generator) tldSwap() []Candidate {
	var out []Candidate
	for _, tld := range commonTLDs {
		if tld == g.suffix {
			continue
		}
		out = append(out, Candidate{
			Domain:    g.name + "." + tld,
			Technique: TechniqueTLDSwap,
		})
	}
	return out
}

func (g *Generator) subdomains() []Candidate {
	var out []Candidate
	for _, sub := range suspiciousSubdomains {
		out = append(out, Candidate{
			Domain:    sub + "." + g.name + "." + g.suffix,
			Technique: TechniqueSubdomain,
		})
	}
	return out
}
