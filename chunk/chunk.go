// Package chunk implements the three sample-chunk codecs (Uncompressed,
// Gorilla, Pco) behind one common contract, plus the TimeSeriesChunk
// envelope that dispatches across them.
package chunk

import (
	"sort"

	"github.com/nvaistore-labs/tscore/internal/tserr"
	"github.com/nvaistore-labs/tscore/sample"
)

// Encoding tags the codec used by a serialized chunk (section 6.2).
type Encoding uint8

const (
	EncodingUncompressed Encoding = 1
	EncodingGorilla      Encoding = 2
	EncodingPco          Encoding = 4
)

func (e Encoding) String() string {
	switch e {
	case EncodingUncompressed:
		return "uncompressed"
	case EncodingGorilla:
		return "gorilla"
	case EncodingPco:
		return "pco"
	default:
		return "unknown"
	}
}

func (e Encoding) Valid() bool {
	return e == EncodingUncompressed || e == EncodingGorilla || e == EncodingPco
}

const (
	MinSize = 48
	MaxSize = 1048576
)

// Chunk is the common per-codec contract (section 4.1).
type Chunk interface {
	FirstTimestamp() int64
	LastTimestamp() int64
	Len() int
	IsEmpty() bool
	LastValue() float64
	Size() int
	MaxSize() int
	RemainingCapacity() int

	AddSample(s sample.Sample) error
	UpsertSample(s sample.Sample, policy sample.DuplicatePolicy) (delta int, err error)

	GetRange(start, end int64) ([]sample.Sample, error)
	RangeIter(start, end int64) SampleIterator

	RemoveRange(start, end int64) (int, error)

	MergeSamples(samples []sample.Sample, policy sample.DuplicatePolicy) ([]sample.AddResult, error)

	// SetData replaces the chunk's contents wholesale (used by defrag's
	// partial-merge path, section 4.3).
	SetData(samples []sample.Sample) error

	Split() (Chunk, error)

	Serialize(buf []byte) []byte
	Clone() Chunk
}

// SampleIterator is the minimal lazy-iteration contract every codec's
// range iterator and every composite iterator in package iterator
// implements.
type SampleIterator interface {
	// Next advances and returns the next sample; ok is false when exhausted.
	Next() (sample.Sample, bool)
}

// sliceIterator adapts a materialized slice to SampleIterator; used by
// Uncompressed (whose range is a true slice view) and by compressed
// codecs after a bulk decompress.
type sliceIterator struct {
	samples []sample.Sample
	i       int
}

func newSliceIterator(samples []sample.Sample) *sliceIterator {
	return &sliceIterator{samples: samples}
}

func (it *sliceIterator) Next() (sample.Sample, bool) {
	if it.i >= len(it.samples) {
		return sample.Sample{}, false
	}
	s := it.samples[it.i]
	it.i++
	return s, true
}

// searchFirstGE returns the index of the first sample with Timestamp >= ts,
// or len(samples) if none.
func searchFirstGE(samples []sample.Sample, ts int64) int {
	return sort.Search(len(samples), func(i int) bool { return samples[i].Timestamp >= ts })
}

// searchFirstGT returns the index of the first sample with Timestamp > ts.
func searchFirstGT(samples []sample.Sample, ts int64) int {
	return sort.Search(len(samples), func(i int) bool { return samples[i].Timestamp > ts })
}

// rangeSlice returns the inclusive [start, end] subslice of an
// ascending-sorted sample slice.
func rangeSlice(samples []sample.Sample, start, end int64) []sample.Sample {
	lo := searchFirstGE(samples, start)
	hi := searchFirstGT(samples, end)
	if lo >= hi {
		return nil
	}
	return samples[lo:hi]
}

func validateChunkSize(n int) error {
	if n < MinSize || n > MaxSize {
		return tserr.ErrInvalidConfig("chunk size must be in [48, 1048576]")
	}
	if n%8 != 0 {
		return tserr.ErrInvalidConfig("chunk size must be a multiple of 8")
	}
	return nil
}
