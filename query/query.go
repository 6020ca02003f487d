// Package query assembles the end-user multi-range query: parses/holds
// the same MRangeOptions the fanout engine runs, plus the rounding
// post-processing step the original's common::rounding module applies to
// the final reply (section 4.4, 6.1, "SUPPLEMENTED FEATURES").
package query

import (
	"math"

	"github.com/nvaistore-labs/tscore/fanout"
	"github.com/nvaistore-labs/tscore/sample"
)

// Rounder rounds a reply's sample values either to a fixed number of
// decimal digits or to a number of significant digits; at most one of the
// two is meaningful at a time; RoundDigits takes priority when both are set.
type Rounder struct {
	RoundDigits       *int8 // -18..18: negative rounds to tens/hundreds/etc
	SignificantDigits *int8 // -18..18
}

func (r Rounder) Apply(samples []sample.Sample) []sample.Sample {
	if r.RoundDigits == nil && r.SignificantDigits == nil {
		return samples
	}
	out := make([]sample.Sample, len(samples))
	for i, s := range samples {
		v := s.Value
		switch {
		case r.RoundDigits != nil:
			v = roundToDigits(v, int(*r.RoundDigits))
		case r.SignificantDigits != nil:
			v = roundToSignificant(v, int(*r.SignificantDigits))
		}
		out[i] = sample.Sample{Timestamp: s.Timestamp, Value: v}
	}
	return out
}

func roundToDigits(v float64, digits int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	mult := math.Pow(10, float64(digits))
	return math.Round(v*mult) / mult
}

func roundToSignificant(v float64, digits int) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) || digits <= 0 {
		return v
	}
	magnitude := int(math.Floor(math.Log10(math.Abs(v)))) + 1
	return roundToDigits(v, digits-magnitude)
}

// MRangeRequest is the user-facing query: label matchers, a time range, an
// optional value/timestamp filter, optional grouping and time aggregation,
// a result count cap, direction, and rounding.
type MRangeRequest struct {
	fanout.MRangeOptions
	Rounder Rounder
}

// ApplyRounding returns a copy of the fanout engine's reply with every
// series' sample values rounded; the other fields of each SeriesResult are
// carried over unchanged.
func (req MRangeRequest) ApplyRounding(results []fanout.SeriesResult) []fanout.SeriesResult {
	if req.Rounder.RoundDigits == nil && req.Rounder.SignificantDigits == nil {
		return results
	}
	out := make([]fanout.SeriesResult, len(results))
	for i, r := range results {
		out[i] = r
		out[i].Samples = req.Rounder.Apply(r.Samples)
	}
	return out
}
