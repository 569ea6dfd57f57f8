package store

import "testing"

func TestCheckLock(t *testing.T) {
	l := NewCheckLock()

	if !l.Acquire("examplebank.net") {
		t.Fatalf("expected the first acquire to succeed")
	}
	if l.Acquire("examplebank.net") {
		t.Fatalf("expected a second acquire on the same domain to fail")
	}
	if !l.Acquire("examplebank.org") {
		t.Fatalf("expected an acquire on a different domain to succeed")
	}

	l.Release("examplebank.net")
	if !l.Acquire("examplebank.net") {
		t.Fatalf("expected an acquire after release to succeed")
	}
}
