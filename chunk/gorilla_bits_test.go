package chunk

import (
	"math"
	"testing"

	"github.com/nvaistore-labs/tscore/sample"
)

// TestGorillaXorFullWidthRoundTrips exercises the case where the XOR of
// consecutive values has zero leading AND zero trailing zero bits (a
// 64-bit-wide meaningful region), which must not overflow the 6-bit
// length field.
func TestGorillaXorFullWidthRoundTrips(t *testing.T) {
	v0 := math.Float64frombits(0)
	v1 := math.Float64frombits(0x8000000000000001)
	samples := []sample.Sample{
		{Timestamp: 0, Value: v0},
		{Timestamp: 1, Value: v1},
	}
	body := encodeGorillaBody(samples)
	back, err := decodeGorillaBody(body, len(samples))
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 2 {
		t.Fatalf("got %d samples, want 2", len(back))
	}
	if math.Float64bits(back[1].Value) != 0x8000000000000001 {
		t.Fatalf("got bits %x, want full-width XOR to round trip exactly", math.Float64bits(back[1].Value))
	}
}
