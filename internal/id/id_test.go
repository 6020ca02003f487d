package id

import "testing"

func TestNewIsNonEmptyAndUnique(t *testing.T) {
	a := New()
	b := New()
	if a == "" || b == "" {
		t.Fatal("expected a non-empty id")
	}
	if a == b {
		t.Fatal("expected successive ids to differ")
	}
}
