// Package iterator composes the per-chunk chunk.SampleIterator streams a
// TimeSeries produces into the multi-chunk and multi-series iterators the
// query pipeline and fanout engine consume (section 4.2).
package iterator

import (
	"container/heap"

	"github.com/nvaistore-labs/tscore/chunk"
	"github.com/nvaistore-labs/tscore/sample"
)

// Iterator is the shared contract; chunk.SampleIterator already satisfies it.
type Iterator interface {
	Next() (sample.Sample, bool)
}

// VecSampleIterator adapts a materialized slice, used when a caller already
// has samples in hand (e.g. a query result being re-filtered).
type VecSampleIterator struct {
	samples []sample.Sample
	i       int
}

func NewVecSampleIterator(samples []sample.Sample) *VecSampleIterator {
	return &VecSampleIterator{samples: samples}
}

func (it *VecSampleIterator) Next() (sample.Sample, bool) {
	if it.i >= len(it.samples) {
		return sample.Sample{}, false
	}
	s := it.samples[it.i]
	it.i++
	return s, true
}

// ChainIterator concatenates per-chunk iterators in order, giving a single
// stream across a TimeSeries' whole chunk list.
type ChainIterator struct {
	sources []Iterator
	i       int
}

func NewChainIterator(sources ...Iterator) *ChainIterator {
	return &ChainIterator{sources: sources}
}

func (it *ChainIterator) Next() (sample.Sample, bool) {
	for it.i < len(it.sources) {
		if s, ok := it.sources[it.i].Next(); ok {
			return s, true
		}
		it.i++
	}
	return sample.Sample{}, false
}

// FilteredSampleIterator wraps an inner iterator with a RangeFilter
// (value range and/or an exact timestamp set), section 4.4.
type FilteredSampleIterator struct {
	inner  Iterator
	filter sample.RangeFilter
}

func NewFilteredSampleIterator(inner Iterator, filter sample.RangeFilter) *FilteredSampleIterator {
	return &FilteredSampleIterator{inner: inner, filter: filter}
}

func (it *FilteredSampleIterator) Next() (sample.Sample, bool) {
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

// TimestampFilterIterator yields only samples whose timestamp is a member
// of a sorted set, consuming the inner stream forward (section 4.4,
// "samples_by_timestamps" generalized to a streaming cursor).
type TimestampFilterIterator struct {
	inner      Iterator
	timestamps []int64
	i          int
}

func NewTimestampFilterIterator(inner Iterator, timestamps []int64) *TimestampFilterIterator {
	return &TimestampFilterIterator{inner: inner, timestamps: timestamps}
}

func (it *TimestampFilterIterator) Next() (sample.Sample, bool) {
	for it.i < len(it.timestamps) {
		s, ok := it.inner.Next()
		if !ok {
			return sample.Sample{}, false
		}
		for it.i < len(it.timestamps) && it.timestamps[it.i] < s.Timestamp {
			it.i++
		}
		if it.i < len(it.timestamps) && it.timestamps[it.i] == s.Timestamp {
			it.i++
			return s, true
		}
	}
	return sample.Sample{}, false
}

// SampleMergeIterator pairwise-merges two ascending streams under a
// duplicate policy; a Block collision yields the left (first) sample and
// advances both cursors, discarding the colliding right sample (section
// 4.2 "merge iterator").
type SampleMergeIterator struct {
	a, b   Iterator
	policy sample.DuplicatePolicy

	pendingA, pendingB sample.Sample
	hasA, hasB         bool
}

func NewSampleMergeIterator(a, b Iterator, policy sample.DuplicatePolicy) *SampleMergeIterator {
	return &SampleMergeIterator{a: a, b: b, policy: policy}
}

func (it *SampleMergeIterator) fillA() { it.pendingA, it.hasA = it.a.Next() }
func (it *SampleMergeIterator) fillB() { it.pendingB, it.hasB = it.b.Next() }

func (it *SampleMergeIterator) Next() (sample.Sample, bool) {
	if !it.hasA {
		it.fillA()
	}
	if !it.hasB {
		it.fillB()
	}
	switch {
	case !it.hasA && !it.hasB:
		return sample.Sample{}, false
	case !it.hasA:
		s := it.pendingB
		it.hasB = false
		return s, true
	case !it.hasB:
		s := it.pendingA
		it.hasA = false
		return s, true
	case it.pendingA.Timestamp < it.pendingB.Timestamp:
		s := it.pendingA
		it.hasA = false
		return s, true
	case it.pendingA.Timestamp > it.pendingB.Timestamp:
		s := it.pendingB
		it.hasB = false
		return s, true
	default:
		v, err := it.policy.DuplicateValue(it.pendingA.Value, it.pendingB.Value)
		ts := it.pendingA.Timestamp
		it.hasA, it.hasB = false, false
		if err != nil {
			return sample.Sample{Timestamp: ts, Value: it.pendingA.Value}, true
		}
		return sample.Sample{Timestamp: ts, Value: v}, true
	}
}

// multiHeapItem is one lane in the k-way merge heap.
type multiHeapItem struct {
	source int
	sample sample.Sample
}

type multiHeap []multiHeapItem

func (h multiHeap) Len() int            { return len(h) }
func (h multiHeap) Less(i, j int) bool  { return h[i].sample.Timestamp < h[j].sample.Timestamp }
func (h multiHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *multiHeap) Push(x interface{}) { *h = append(*h, x.(multiHeapItem)) }
func (h *multiHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MultiSeriesSampleIter merges N ascending per-series iterators into one
// ascending stream without dropping same-timestamp samples from distinct
// sources: each Next pops the minimum-timestamp item and refills only that
// item's source, so two sources sharing a timestamp both surface as
// separate samples instead of one silently winning (section 4.6, fanout
// collection).
type MultiSeriesSampleIter struct {
	sources []Iterator
	h       multiHeap
	started bool
}

func NewMultiSeriesSampleIter(sources []Iterator) *MultiSeriesSampleIter {
	return &MultiSeriesSampleIter{sources: sources}
}

func (it *MultiSeriesSampleIter) init() {
	it.started = true
	it.h = make(multiHeap, 0, len(it.sources))
	for i, src := range it.sources {
		if s, ok := src.Next(); ok {
			heap.Push(&it.h, multiHeapItem{source: i, sample: s})
		}
	}
	heap.Init(&it.h)
}

func (it *MultiSeriesSampleIter) Next() (sample.Sample, bool) {
	if !it.started {
		it.init()
	}
	if it.h.Len() == 0 {
		return sample.Sample{}, false
	}
	top := heap.Pop(&it.h).(multiHeapItem)
	if next, ok := it.sources[top.source].Next(); ok {
		heap.Push(&it.h, multiHeapItem{source: top.source, sample: next})
	}
	return top.sample, true
}

// Source also satisfies chunk.SampleIterator, confirming the shared contract.
var _ chunk.SampleIterator = (*VecSampleIterator)(nil)
