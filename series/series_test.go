package series

import (
	"testing"

	"github.com/nvaistore-labs/tscore/chunk"
	"github.com/nvaistore-labs/tscore/sample"
)

func newTestSeries(enc chunk.Encoding) *TimeSeries {
	return New(nil, Options{Encoding: enc, ChunkSizeBytes: 4096})
}

func TestAppendBasic(t *testing.T) {
	ts := newTestSeries(chunk.EncodingGorilla)
	for i := int64(0); i < 100; i++ {
		if r := ts.Append(sample.Sample{Timestamp: i * 1000, Value: float64(i)}); !r.IsOk() {
			t.Fatalf("Append(%d) = %v", i, r)
		}
	}
	if ts.Len() != 100 {
		t.Fatalf("Len = %d, want 100", ts.Len())
	}
	got, err := ts.GetRange(0, 99000)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 100 {
		t.Fatalf("GetRange len = %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp <= got[i-1].Timestamp {
			t.Fatalf("not ordered at %d", i)
		}
	}
}

func TestOutOfOrderInsert(t *testing.T) {
	ts := newTestSeries(chunk.EncodingUncompressed)
	for _, x := range []int64{1000, 2000, 3000, 500, 2500} {
		if r := ts.Append(sample.Sample{Timestamp: x, Value: float64(x)}); !r.IsOk() {
			t.Fatalf("Append(%d) = %v", x, r)
		}
	}
	got, _ := ts.GetRange(0, 10000)
	if len(got) != 5 {
		t.Fatalf("len = %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp <= got[i-1].Timestamp {
			t.Fatalf("not ordered: %v", got)
		}
	}
}

func TestDuplicateBlocked(t *testing.T) {
	ts := newTestSeries(chunk.EncodingGorilla)
	ts.Options.Duplicates.Policy = sample.Block
	ts.Append(sample.Sample{Timestamp: 1000, Value: 1})
	r := ts.Append(sample.Sample{Timestamp: 1000, Value: 2})
	if r.Kind != sample.ResDuplicate {
		t.Fatalf("got %v, want duplicate", r)
	}
}

func TestIgnoreNearDuplicateKeepLast(t *testing.T) {
	ts := newTestSeries(chunk.EncodingGorilla)
	ts.Options.Duplicates = sample.DuplicateSettings{Policy: sample.KeepLast, MaxValueDelta: 0.5}
	ts.Append(sample.Sample{Timestamp: 1000, Value: 10})
	r := ts.Append(sample.Sample{Timestamp: 1001, Value: 10.1})
	if r.Kind != sample.ResIgnored {
		t.Fatalf("got %v, want ignored", r)
	}
	if ts.Len() != 1 {
		t.Fatalf("Len = %d, want 1 (ignored sample not appended)", ts.Len())
	}
}

func TestRetentionTooOld(t *testing.T) {
	ts := newTestSeries(chunk.EncodingGorilla)
	ts.Options.Retention = 10_000
	ts.Append(sample.Sample{Timestamp: 100_000, Value: 1})
	r := ts.Append(sample.Sample{Timestamp: 50_000, Value: 2})
	if r.Kind != sample.ResTooOld {
		t.Fatalf("got %v, want too old", r)
	}
}

func TestRemoveRange(t *testing.T) {
	ts := newTestSeries(chunk.EncodingUncompressed)
	for i := int64(0); i < 10; i++ {
		ts.Append(sample.Sample{Timestamp: i * 1000, Value: float64(i)})
	}
	n, err := ts.RemoveRange(2000, 5000)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("removed %d, want 4", n)
	}
	if ts.Len() != 6 {
		t.Fatalf("Len = %d, want 6", ts.Len())
	}
}

// buildThreeChunkSeries lays down exactly 3 chunks of 3 samples each
// (ChunkSizeBytes=48 gives maxElements=3 for an uncompressed chunk):
// chunk0 = {0,5,10}, chunk1 = {14,15,16}, chunk2 = {20,25,30}.
func buildThreeChunkSeries(t *testing.T, retention int64) *TimeSeries {
	t.Helper()
	ts := New(nil, Options{Encoding: chunk.EncodingUncompressed, ChunkSizeBytes: 48, Retention: retention})
	for _, x := range []int64{0, 5, 10, 14, 15, 16, 20, 25, 30} {
		if r := ts.Append(sample.Sample{Timestamp: x, Value: float64(x)}); !r.IsOk() {
			t.Fatalf("Append(%d) = %v", x, r)
		}
	}
	return ts
}

// TestTrimDropsAndSplitsAcrossChunkBoundaries covers section 4.3's
// retention-trim step across a chunk fully older than the floor, a chunk
// straddling the floor, and a chunk entirely newer (mirroring the
// multi-chunk retention scenario): last_timestamp=30, retention=15 gives
// min_ts=15; chunk0 (last_ts 10) is dropped whole, chunk1's ts=14 sample
// is trimmed while ts=15 (exactly at the floor) survives, chunk2 is
// untouched.
func TestTrimDropsAndSplitsAcrossChunkBoundaries(t *testing.T) {
	ts := buildThreeChunkSeries(t, 15)
	n, err := ts.Trim()
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("trimmed %d samples, want 4 (chunk0's 3 plus ts=14)", n)
	}
	got, err := ts.GetRange(minInt64Test, 1000)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{15, 16, 20, 25, 30}
	if len(got) != len(want) {
		t.Fatalf("got %v, want timestamps %v", got, want)
	}
	for i, w := range want {
		if got[i].Timestamp != w {
			t.Fatalf("got[%d].Timestamp = %d, want %d (full: %v)", i, got[i].Timestamp, w, got)
		}
	}
}

const minInt64Test = -1 << 63

// TestDefragTrimsRetentionFirst checks Defrag's step 1: retention trim
// runs before any merge-by-capacity pass, so a defrag call alone drops the
// expired chunk without a separate Trim call.
func TestDefragTrimsRetentionFirst(t *testing.T) {
	ts := buildThreeChunkSeries(t, 15)
	if _, err := ts.Defrag(); err != nil {
		t.Fatal(err)
	}
	if ts.Len() != 5 {
		t.Fatalf("Len after Defrag = %d, want 5 (retention trim should have run)", ts.Len())
	}
	if ts.FirstTimestamp() != 15 {
		t.Fatalf("FirstTimestamp = %d, want 15", ts.FirstTimestamp())
	}
}

func TestDefragPreservesSampleCount(t *testing.T) {
	ts := newTestSeries(chunk.EncodingUncompressed)
	for i := int64(0); i < 20; i++ {
		ts.Append(sample.Sample{Timestamp: i * 1000, Value: float64(i)})
	}
	before := ts.Len()
	merged, err := ts.Defrag()
	if err != nil {
		t.Fatal(err)
	}
	_ = merged
	if ts.Len() != before {
		t.Fatalf("defrag changed sample count: %d != %d", ts.Len(), before)
	}
}
