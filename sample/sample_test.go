package sample

import (
	"math"
	"testing"
)

func TestDuplicateValueNaNRescue(t *testing.T) {
	for _, p := range []DuplicatePolicy{KeepFirst, KeepLast, Min, Max, Sum} {
		v, err := p.DuplicateValue(math.NaN(), 5)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", p, err)
		}
		if v != 5 {
			t.Fatalf("%v: got %v, want non-NaN value to win (5)", p, v)
		}
	}
}

func TestDuplicateValueBlockAlwaysErrors(t *testing.T) {
	if _, err := Block.DuplicateValue(1, 2); err == nil {
		t.Fatal("expected Block to always error on collision")
	}
	if _, err := Block.DuplicateValue(math.NaN(), 2); err == nil {
		t.Fatal("expected Block to error even with a NaN operand")
	}
}

func TestDuplicateValuePolicies(t *testing.T) {
	cases := []struct {
		p    DuplicatePolicy
		want float64
	}{
		{KeepFirst, 3},
		{KeepLast, 7},
		{Min, 3},
		{Max, 7},
		{Sum, 10},
	}
	for _, c := range cases {
		v, err := c.p.DuplicateValue(3, 7)
		if err != nil {
			t.Fatalf("%v: %v", c.p, err)
		}
		if v != c.want {
			t.Fatalf("%v: got %v, want %v", c.p, v, c.want)
		}
	}
}

func TestIsDuplicateOnlyAppliesToKeepLast(t *testing.T) {
	d := DuplicateSettings{Policy: KeepFirst, MaxValueDelta: 100}
	if d.IsDuplicate(Sample{Timestamp: 2, Value: 1}, Sample{Timestamp: 1, Value: 1}, nil) {
		t.Fatal("ignore-near-duplicate should only trigger under KeepLast")
	}
}

func TestIsDuplicateValueThreshold(t *testing.T) {
	d := DuplicateSettings{Policy: KeepLast, MaxValueDelta: 0.5}
	if !d.IsDuplicate(Sample{Timestamp: 2, Value: 10.1}, Sample{Timestamp: 1, Value: 10}, nil) {
		t.Fatal("expected near-duplicate within value delta to be ignored")
	}
	if d.IsDuplicate(Sample{Timestamp: 2, Value: 20}, Sample{Timestamp: 1, Value: 10}, nil) {
		t.Fatal("expected large value delta to not be ignored")
	}
}

func TestRangeFilterMatch(t *testing.T) {
	vf, err := NewValueFilter(0, 10)
	if err != nil {
		t.Fatal(err)
	}
	f := RangeFilter{Value: &vf, Timestamps: []int64{5, 10, 15}}
	if !f.Match(10, 5) {
		t.Fatal("expected ts=10 val=5 to match")
	}
	if f.Match(7, 5) {
		t.Fatal("ts=7 is not in the timestamp set, should not match")
	}
	if f.Match(10, 20) {
		t.Fatal("val=20 is outside the value filter, should not match")
	}
}
