// Package series implements the TimeSeries lifecycle: chunked insert and
// upsert, out-of-order routing with splitting, retention trimming, range
// removal, and chunk defragmentation (section 4.3).
package series

import (
	"sort"

	"github.com/nvaistore-labs/tscore/chunk"
	"github.com/nvaistore-labs/tscore/internal/config"
	"github.com/nvaistore-labs/tscore/internal/debug"
	"github.com/nvaistore-labs/tscore/internal/tserr"
	"github.com/nvaistore-labs/tscore/sample"
)

// Options configures one series; zero-valued fields are resolved against
// the global config by ApplyDefaults (supplemented feature: the original's
// set_defaults_from_config).
type Options struct {
	Encoding          chunk.Encoding
	ChunkSizeBytes    int
	Retention         int64 // ms, 0 = no retention
	Duplicates        sample.DuplicateSettings
	RoundDigits       *int8
	SignificantDigits *int8
}

// ApplyDefaults fills unset fields from the global config.
func (o *Options) ApplyDefaults(cfg config.Config) {
	if o.ChunkSizeBytes == 0 {
		o.ChunkSizeBytes = cfg.ChunkSizeBytes
	}
	if o.Encoding == 0 {
		switch cfg.Encoding {
		case config.EncodingUncompressed:
			o.Encoding = chunk.EncodingUncompressed
		case config.EncodingPco:
			o.Encoding = chunk.EncodingPco
		default:
			o.Encoding = chunk.EncodingGorilla
		}
	}
	if o.Retention == 0 {
		o.Retention = cfg.RetentionPolicy.Milliseconds()
	}
	if o.Duplicates.Policy == sample.Block {
		o.Duplicates.Policy = sample.DuplicatePolicy(cfg.DuplicatePolicy)
	}
	if o.Duplicates.MaxTimeDelta == 0 {
		o.Duplicates.MaxTimeDelta = cfg.IgnoreMaxTimeDiff
	}
	if o.Duplicates.MaxValueDelta == 0 {
		o.Duplicates.MaxValueDelta = cfg.IgnoreMaxValueDiff
	}
	if o.RoundDigits == nil {
		o.RoundDigits = cfg.RoundDigits
	}
	if o.SignificantDigits == nil {
		o.SignificantDigits = cfg.SignificantDigits
	}
}

// TimeSeries is an ordered, non-overlapping list of chunks backing one
// label set.
type TimeSeries struct {
	Labels  []sample.Label
	Options Options

	chunks []*chunk.TimeSeriesChunk
}

func New(labels []sample.Label, opts Options) *TimeSeries {
	return &TimeSeries{Labels: labels, Options: opts}
}

func (ts *TimeSeries) Len() int {
	n := 0
	for _, c := range ts.chunks {
		n += c.Chunk.Len()
	}
	return n
}

func (ts *TimeSeries) IsEmpty() bool { return len(ts.chunks) == 0 }

func (ts *TimeSeries) FirstTimestamp() int64 {
	if len(ts.chunks) == 0 {
		return 0
	}
	return ts.chunks[0].Chunk.FirstTimestamp()
}

func (ts *TimeSeries) LastTimestamp() int64 {
	if len(ts.chunks) == 0 {
		return 0
	}
	return ts.chunks[len(ts.chunks)-1].Chunk.LastTimestamp()
}

func (ts *TimeSeries) lastSample() (sample.Sample, bool) {
	if len(ts.chunks) == 0 {
		return sample.Sample{}, false
	}
	last := ts.chunks[len(ts.chunks)-1]
	return sample.Sample{Timestamp: last.Chunk.LastTimestamp(), Value: last.Chunk.LastValue()}, true
}

func (ts *TimeSeries) newChunk() (*chunk.TimeSeriesChunk, error) {
	return chunk.New(ts.Options.Encoding, ts.Options.ChunkSizeBytes)
}

// chunkIndex finds the chunk whose span contains ts, or the insertion
// point among chunks if none contains it (binary search over sorted,
// non-overlapping chunk spans).
func (ts *TimeSeries) chunkIndex(tsVal int64) int {
	return sort.Search(len(ts.chunks), func(i int) bool {
		return ts.chunks[i].Chunk.LastTimestamp() >= tsVal
	})
}

// Append routes one sample into the series: the common path appends to
// the tail chunk (opening a new one on CapacityFull or an empty series);
// an out-of-order timestamp routes into the containing (or neighboring)
// chunk, splitting it if growth pushes it past its split threshold.
func (ts *TimeSeries) Append(s sample.Sample) sample.AddResult {
	if last, ok := ts.lastSample(); ok {
		if ts.Options.Duplicates.IsDuplicate(s, last, nil) {
			return sample.Ignored(last.Timestamp)
		}
		if s.Timestamp < last.Timestamp {
			return ts.insertOutOfOrder(s)
		}
	}
	if ts.Options.Retention > 0 {
		if last, ok := ts.lastSample(); ok && s.Timestamp <= last.Timestamp-ts.Options.Retention {
			return sample.TooOld()
		}
	}
	return ts.appendTail(s)
}

func (ts *TimeSeries) appendTail(s sample.Sample) sample.AddResult {
	if len(ts.chunks) == 0 {
		c, err := ts.newChunk()
		if err != nil {
			return sample.Errf("%v", err)
		}
		ts.chunks = append(ts.chunks, c)
	}
	tail := ts.chunks[len(ts.chunks)-1]
	if err := tail.Chunk.AddSample(s); err != nil {
		if tserr.Is(err, tserr.CapacityFull) {
			c, nerr := ts.newChunk()
			if nerr != nil {
				return sample.Errf("%v", nerr)
			}
			if aerr := c.Chunk.AddSample(s); aerr != nil {
				return sample.Errf("%v", aerr)
			}
			ts.chunks = append(ts.chunks, c)
			return sample.Ok(s.Timestamp)
		}
		if tserr.Is(err, tserr.Duplicate) {
			return sample.Duplicate()
		}
		return sample.Errf("%v", err)
	}
	return sample.Ok(s.Timestamp)
}

func (ts *TimeSeries) insertOutOfOrder(s sample.Sample) sample.AddResult {
	if ts.Options.Retention > 0 {
		if last, ok := ts.lastSample(); ok && s.Timestamp <= last.Timestamp-ts.Options.Retention {
			return sample.TooOld()
		}
	}
	i := ts.chunkIndex(s.Timestamp)
	if i >= len(ts.chunks) {
		return ts.appendTail(s)
	}
	target := ts.chunks[i]
	if err := target.Chunk.AddSample(s); err != nil {
		if tserr.Is(err, tserr.Duplicate) {
			return sample.Duplicate()
		}
		if !tserr.Is(err, tserr.CapacityFull) {
			return sample.Errf("%v", err)
		}
		return ts.splitAndInsert(i, s)
	}
	if target.ShouldSplit() {
		ts.splitChunk(i)
	}
	return sample.Ok(s.Timestamp)
}

func (ts *TimeSeries) splitAndInsert(i int, s sample.Sample) sample.AddResult {
	ts.splitChunk(i)
	j := ts.chunkIndex(s.Timestamp)
	if j >= len(ts.chunks) {
		return ts.appendTail(s)
	}
	if err := ts.chunks[j].Chunk.AddSample(s); err != nil {
		return sample.Errf("%v", err)
	}
	return sample.Ok(s.Timestamp)
}

func (ts *TimeSeries) splitChunk(i int) {
	right, err := ts.chunks[i].Split()
	if err != nil || right.Chunk.IsEmpty() {
		return
	}
	ts.chunks = append(ts.chunks, nil)
	copy(ts.chunks[i+2:], ts.chunks[i+1:])
	ts.chunks[i+1] = right
}

// Upsert routes s to the chunk covering its timestamp (or the tail) and
// resolves a colliding timestamp via the series' duplicate policy; under
// Block a collision still reports Duplicate. Unlike Append it applies
// neither the near-duplicate ignore check nor the retention check.
func (ts *TimeSeries) Upsert(s sample.Sample) sample.AddResult {
	if len(ts.chunks) == 0 {
		return ts.appendTail(s)
	}
	i := ts.chunkIndex(s.Timestamp)
	if i >= len(ts.chunks) {
		return ts.appendTail(s)
	}
	target := ts.chunks[i]
	_, err := target.Chunk.UpsertSample(s, ts.Options.Duplicates.Policy)
	if err != nil {
		if tserr.Is(err, tserr.Duplicate) {
			return sample.Duplicate()
		}
		if tserr.Is(err, tserr.CapacityFull) {
			return ts.splitAndInsert(i, s)
		}
		return sample.Errf("%v", err)
	}
	if target.ShouldSplit() {
		ts.splitChunk(i)
	}
	return sample.Ok(s.Timestamp)
}

func (ts *TimeSeries) GetRange(start, end int64) ([]sample.Sample, error) {
	var out []sample.Sample
	for _, c := range ts.chunks {
		if !c.Overlaps(start, end) {
			continue
		}
		r, err := c.Chunk.GetRange(start, end)
		if err != nil {
			return nil, err
		}
		out = append(out, r...)
	}
	return out, nil
}

func (ts *TimeSeries) RangeFiltered(start, end int64, filter *sample.RangeFilter) ([]sample.Sample, error) {
	samples, err := ts.GetRange(start, end)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return samples, nil
	}
	out := samples[:0]
	for _, s := range samples {
		if filter.Match(s.Timestamp, s.Value) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (ts *TimeSeries) SamplesByTimestamps(timestamps []int64) ([]sample.Sample, error) {
	if len(timestamps) == 0 {
		return nil, nil
	}
	var out []sample.Sample
	for _, c := range ts.chunks {
		if !c.Overlaps(timestamps[0], timestamps[len(timestamps)-1]) {
			continue
		}
		part, err := c.SamplesByTimestamps(timestamps)
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return out, nil
}

// RemoveRange removes samples in [start, end] across all chunks, dropping
// any chunk left empty. Spec section 7's RemoveRangeError covers callers
// that pass start > end.
func (ts *TimeSeries) RemoveRange(start, end int64) (int, error) {
	if start > end {
		return 0, tserr.New(tserr.RemoveRangeError, "start > end")
	}
	removed := 0
	kept := ts.chunks[:0]
	for _, c := range ts.chunks {
		if !c.Overlaps(start, end) {
			kept = append(kept, c)
			continue
		}
		n, err := c.Chunk.RemoveRange(start, end)
		if err != nil {
			return removed, err
		}
		removed += n
		if !c.Chunk.IsEmpty() {
			kept = append(kept, c)
		}
	}
	ts.chunks = kept
	return removed, nil
}

// Trim drops whole or partial chunks older than last_timestamp -
// Retention (strict less-than: a sample exactly at the retention floor
// survives), section 4.3's retention-trim step. It reads the series' own
// LastTimestamp rather than a caller-supplied clock, matching min_ts =
// last_timestamp - retention.
func (ts *TimeSeries) Trim() (int, error) {
	if ts.Options.Retention <= 0 || len(ts.chunks) == 0 {
		return 0, nil
	}
	floor := ts.LastTimestamp() - ts.Options.Retention
	return ts.RemoveRange(minInt64, floor-1)
}

const minInt64 = -1 << 63

// Defrag trims retention first, then merges adjacent chunks pairwise using
// merge-by-capacity: a full merge when the pair fits in one chunk's max
// size, a partial merge that tops off the left chunk when only some of it
// fits, or a skip when the left chunk has no room at all (section 4.3,
// defrag_series step 1 then merge_by_capacity). The returned count is
// chunks merged; samples trimmed for retention are a side effect, not
// reflected in it.
func (ts *TimeSeries) Defrag() (merged int, err error) {
	if _, err := ts.Trim(); err != nil {
		return 0, err
	}
	i := 0
	for i+1 < len(ts.chunks) {
		l, r := ts.chunks[i], ts.chunks[i+1]
		switch mergeByCapacity(l, r, ts.Options.Duplicates.Policy) {
		case mergeFull:
			ts.chunks = append(ts.chunks[:i+1], ts.chunks[i+2:]...)
			merged++
		case mergePartial:
			merged++
			i++
		default:
			i++
		}
	}
	return merged, nil
}

type mergeOutcome int

const (
	mergeNone mergeOutcome = iota
	mergeFull
	mergePartial
)

func mergeByCapacity(l, r *chunk.TimeSeriesChunk, policy sample.DuplicatePolicy) mergeOutcome {
	if l.Chunk.Size()+r.Chunk.Size() <= l.Chunk.MaxSize() {
		if _, err := l.MergeRange(r, policy); err != nil {
			return mergeNone
		}
		if err := r.Chunk.SetData(nil); err != nil {
			debug.Assert(false, "clearing a merged-away chunk must not fail")
		}
		return mergeFull
	}
	if l.Chunk.RemainingCapacity() <= 0 {
		return mergeNone
	}
	rSamples, err := r.Chunk.GetRange(r.Chunk.FirstTimestamp(), r.Chunk.LastTimestamp())
	if err != nil || len(rSamples) == 0 {
		return mergeNone
	}
	moved := 0
	for moved < len(rSamples) {
		if err := l.Chunk.AddSample(rSamples[moved]); err != nil {
			break
		}
		moved++
	}
	if moved == 0 {
		return mergeNone
	}
	if err := r.Chunk.SetData(rSamples[moved:]); err != nil {
		return mergeNone
	}
	if moved == len(rSamples) {
		return mergeFull
	}
	return mergePartial
}
