package wire

import (
	"bytes"
	"testing"

	"github.com/nvaistore-labs/tscore/chunk"
	"github.com/nvaistore-labs/tscore/sample"
)

func buildChunk(t *testing.T, enc chunk.Encoding, samples []sample.Sample) *chunk.TimeSeriesChunk {
	t.Helper()
	c, err := chunk.New(enc, chunk.MaxSize)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range samples {
		if err := c.Chunk.AddSample(s); err != nil {
			t.Fatalf("AddSample(%+v): %v", s, err)
		}
	}
	return c
}

func TestMultiRangeRequestRoundTrip(t *testing.T) {
	req := MultiRangeRequest{
		Version: ProtocolVersion,
		Start:   100,
		End:     200,
		Matchers: []Matcher{
			{Name: "host", Op: MatchEqual, Value: "web-1"},
			{Name: "env", Op: MatchNotRegexp, Value: "^test"},
		},
	}
	back, err := UnmarshalMultiRangeRequest(req.MarshalMsg())
	if err != nil {
		t.Fatal(err)
	}
	if back.Start != req.Start || back.End != req.End || len(back.Matchers) != 2 {
		t.Fatalf("round trip mismatch: %+v", back)
	}
	if back.Matchers[1].Op != MatchNotRegexp || back.Matchers[1].Value != "^test" {
		t.Fatalf("matcher mismatch: %+v", back.Matchers[1])
	}
}

func TestMultiRangeResponseRoundTrip(t *testing.T) {
	c := buildChunk(t, chunk.EncodingGorilla, []sample.Sample{{Timestamp: 1, Value: 1.5}, {Timestamp: 2, Value: 2.5}})
	groupValue := "a"
	resp := MultiRangeResponse{
		Version: ProtocolVersion,
		Series: []SeriesChunk{
			{
				Key:             "host=a",
				GroupLabelValue: &groupValue,
				Labels:          []sample.Label{{Name: "host", Value: "a"}},
				Data:            NewSampleData(c),
			},
		},
	}
	back, err := UnmarshalMultiRangeResponse(resp.MarshalMsg())
	if err != nil {
		t.Fatal(err)
	}
	if len(back.Series) != 1 {
		t.Fatalf("round trip mismatch: %+v", back)
	}
	got := back.Series[0]
	if got.Key != "host=a" || got.GroupLabelValue == nil || *got.GroupLabelValue != "a" {
		t.Fatalf("key/group mismatch: %+v", got)
	}
	decoded, err := got.Data.Chunk()
	if err != nil {
		t.Fatal(err)
	}
	samples, err := decoded.Chunk.GetRange(decoded.Chunk.FirstTimestamp(), decoded.Chunk.LastTimestamp())
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 2 || samples[1].Value != 2.5 {
		t.Fatalf("sample mismatch: %+v", samples)
	}
}

// TestSampleDataCompressionTagMismatchIsProtocolError checks a CompressionTag
// that doesn't match the encoding byte embedded in Bytes is rejected before
// any attempt to decode the body under the wrong codec.
func TestSampleDataCompressionTagMismatchIsProtocolError(t *testing.T) {
	c := buildChunk(t, chunk.EncodingGorilla, []sample.Sample{{Timestamp: 1, Value: 1}})
	sd := NewSampleData(c)
	sd.CompressionTag = uint8(chunk.EncodingPco)
	if _, err := sd.Chunk(); err == nil {
		t.Fatal("expected a compression-tag mismatch error")
	}
}

func TestFrameRoundTripUncompressed(t *testing.T) {
	var buf bytes.Buffer
	body := []byte("hello wire frame")
	if err := WriteFrame(&buf, body, false); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("got %q, want %q", got, body)
	}
}

func TestFrameRoundTripCompressed(t *testing.T) {
	var buf bytes.Buffer
	body := bytes.Repeat([]byte("abcdefgh"), 200)
	if err := WriteFrame(&buf, body, true); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("compressed round trip mismatch, got %d bytes want %d", len(got), len(body))
	}
}
