package chunk

import (
	"github.com/nvaistore-labs/tscore/internal/tserr"
	"github.com/nvaistore-labs/tscore/sample"
)

// TimeSeriesChunk is the tagged-variant envelope every series chunk list is
// made of: one Encoding tag plus the concrete codec it dispatches to
// (section 4.1, "TimeSeriesChunk").
type TimeSeriesChunk struct {
	Encoding Encoding
	Chunk    Chunk
}

// New constructs an empty chunk of the requested encoding.
func New(enc Encoding, maxSize int) (*TimeSeriesChunk, error) {
	var c Chunk
	var err error
	switch enc {
	case EncodingUncompressed:
		c, err = NewUncompressed(maxSize)
	case EncodingGorilla:
		c, err = NewGorilla(maxSize)
	case EncodingPco:
		c, err = NewPco(maxSize)
	default:
		return nil, tserr.ErrInvalidConfig("unknown chunk encoding")
	}
	if err != nil {
		return nil, err
	}
	return &TimeSeriesChunk{Encoding: enc, Chunk: c}, nil
}

func (t *TimeSeriesChunk) IsTimestampInRange(ts int64) bool {
	return ts >= t.Chunk.FirstTimestamp() && ts <= t.Chunk.LastTimestamp()
}

// Overlaps reports whether [start, end] intersects this chunk's span.
func (t *TimeSeriesChunk) Overlaps(start, end int64) bool {
	if t.Chunk.IsEmpty() {
		return false
	}
	return start <= t.Chunk.LastTimestamp() && end >= t.Chunk.FirstTimestamp()
}

// IsContainedByRange reports whether this chunk's whole span lies within
// [start, end] — callers can skip per-sample filtering when true.
func (t *TimeSeriesChunk) IsContainedByRange(start, end int64) bool {
	if t.Chunk.IsEmpty() {
		return true
	}
	return t.Chunk.FirstTimestamp() >= start && t.Chunk.LastTimestamp() <= end
}

func (t *TimeSeriesChunk) SamplesByTimestamps(timestamps []int64) ([]sample.Sample, error) {
	if len(timestamps) == 0 {
		return nil, nil
	}
	all, err := t.Chunk.GetRange(timestamps[0], timestamps[len(timestamps)-1])
	if err != nil {
		return nil, err
	}
	var out []sample.Sample
	i := 0
	for _, ts := range timestamps {
		for i < len(all) && all[i].Timestamp < ts {
			i++
		}
		if i < len(all) && all[i].Timestamp == ts {
			out = append(out, all[i])
		}
	}
	return out, nil
}

// FilteredIter applies a RangeFilter on top of a plain range iterator.
func (t *TimeSeriesChunk) FilteredIter(start, end int64, filter *sample.RangeFilter) SampleIterator {
	inner := t.Chunk.RangeIter(start, end)
	if filter == nil {
		return inner
	}
	return &filteredIter{inner: inner, filter: *filter}
}

type filteredIter struct {
	inner  SampleIterator
	filter sample.RangeFilter
}

func (it *filteredIter) Next() (sample.Sample, bool) {
	for {
		s, ok := it.inner.Next()
		if !ok {
			return sample.Sample{}, false
		}
		if it.filter.Match(s.Timestamp, s.Value) {
			return s, true
		}
	}
}

// MergeRange merges samples from another chunk's overlapping range into
// this one, used by defrag's full-merge path (section 4.3).
func (t *TimeSeriesChunk) MergeRange(other *TimeSeriesChunk, policy sample.DuplicatePolicy) ([]sample.AddResult, error) {
	samples, err := other.Chunk.GetRange(other.Chunk.FirstTimestamp(), other.Chunk.LastTimestamp())
	if err != nil {
		return nil, err
	}
	return t.Chunk.MergeSamples(samples, policy)
}

// ShouldSplit reports whether this chunk has grown enough past max_size
// (>= 1.2x) that it is a defrag/insert candidate for splitting.
func (t *TimeSeriesChunk) ShouldSplit() bool {
	return float64(t.Chunk.Size()) >= float64(t.Chunk.MaxSize())*1.2
}

func (t *TimeSeriesChunk) IsFull() bool {
	return t.Chunk.RemainingCapacity() <= 0
}

// Split splits this chunk in place, returning the new right-hand chunk
// wrapped in its own envelope.
func (t *TimeSeriesChunk) Split() (*TimeSeriesChunk, error) {
	right, err := t.Chunk.Split()
	if err != nil {
		return nil, err
	}
	return &TimeSeriesChunk{Encoding: t.Encoding, Chunk: right}, nil
}

// Serialize writes the 1-byte encoding tag followed by the codec body
// (section 6.2).
func (t *TimeSeriesChunk) Serialize(buf []byte) []byte {
	buf = append(buf, byte(t.Encoding))
	return t.Chunk.Serialize(buf)
}

// Deserialize reads the tag byte and dispatches to the matching codec.
func Deserialize(buf []byte) (*TimeSeriesChunk, []byte, error) {
	if len(buf) < 1 {
		return nil, nil, tserr.ErrCannotDeserialize(nil)
	}
	enc := Encoding(buf[0])
	rest := buf[1:]
	var c Chunk
	var err error
	switch enc {
	case EncodingUncompressed:
		c, rest, err = DeserializeUncompressed(rest)
	case EncodingGorilla:
		c, rest, err = DeserializeGorilla(rest)
	case EncodingPco:
		c, rest, err = DeserializePco(rest)
	default:
		return nil, nil, tserr.ErrInvalidCompression(buf[0])
	}
	if err != nil {
		return nil, nil, err
	}
	return &TimeSeriesChunk{Encoding: enc, Chunk: c}, rest, nil
}
