package monitor

import "testing"

func TestChangeMagnitude(t *testing.T) {
	cases := []struct {
		name     string
		before   []string
		after    []string
		expected float64
	}{
		{"identical", []string{"ip=1.2.3.4", "login=false"}, []string{"ip=1.2.3.4", "login=false"}, 0},
		{"empty", nil, nil, 0},
		{"rewritten", []string{"aaaa"}, []string{"bbbb"}, 1},
	}
	for _, tc := range cases {
		if got := changeMagnitude(tc.before, tc.after); got != tc.expected {
			t.Fatalf("%s: expected magnitude %f, but got %f", tc.name, tc.expected, got)
		}
	}

	small := changeMagnitude(
		[]string{"ip=1.2.3.4", "login=false", "registrar=namecheap"},
		[]string{"ip=1.2.3.5", "login=false", "registrar=namecheap"},
	)
	if small <= 0 || small >= 0.15 {
		t.Fatalf("expected a one-character drift below the change threshold, but got %f", small)
	}

	large := changeMagnitude(
		[]string{"ip=1.2.3.4", "login=false", "registrar=namecheap"},
		[]string{"ip=98.76.54.32", "login=true", "registrar=porkbun"},
	)
	if large < 0.15 {
		t.Fatalf("expected a multi-fact drift above the change threshold, but got %f", large)
	}
	if large <= small {
		t.Fatalf("expected larger drift to score higher: %f vs %f", large, small)
	}
}

func TestEditDistance(t *testing.T) {
	cases := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"abc", "abc", 0},
	}
	for _, tc := range cases {
		if got := editDistance(tc.a, tc.b); got != tc.expected {
			t.Fatalf("expected distance %d between '%s' and '%s', but got %d", tc.expected, tc.a, tc.b, got)
		}
	}
}
