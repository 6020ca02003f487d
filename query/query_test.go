package query

import (
	"testing"

	"github.com/nvaistore-labs/tscore/sample"
)

func i8(v int8) *int8 { return &v }

func TestRounderRoundDigits(t *testing.T) {
	r := Rounder{RoundDigits: i8(2)}
	out := r.Apply([]sample.Sample{{Timestamp: 1, Value: 3.14159}})
	if out[0].Value != 3.14 {
		t.Fatalf("got %v, want 3.14", out[0].Value)
	}
}

func TestRounderSignificantDigits(t *testing.T) {
	r := Rounder{SignificantDigits: i8(3)}
	out := r.Apply([]sample.Sample{{Timestamp: 1, Value: 123456.789}})
	if out[0].Value != 123000 {
		t.Fatalf("got %v, want 123000", out[0].Value)
	}
}

func TestRounderNoOpWhenUnset(t *testing.T) {
	r := Rounder{}
	in := []sample.Sample{{Timestamp: 1, Value: 3.14159}}
	out := r.Apply(in)
	if out[0].Value != in[0].Value {
		t.Fatalf("value changed: %v != %v", out[0].Value, in[0].Value)
	}
}
