package iterator

import (
	"testing"

	"github.com/nvaistore-labs/tscore/sample"
)

func collect(it Iterator) []sample.Sample {
	var out []sample.Sample
	for {
		s, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, s)
	}
}

func TestMultiSeriesSampleIterPreservesTies(t *testing.T) {
	a := NewVecSampleIterator([]sample.Sample{{Timestamp: 1, Value: 1}, {Timestamp: 3, Value: 3}})
	b := NewVecSampleIterator([]sample.Sample{{Timestamp: 1, Value: 100}, {Timestamp: 2, Value: 2}})
	got := collect(NewMultiSeriesSampleIter([]Iterator{a, b}))
	if len(got) != 4 {
		t.Fatalf("expected both ts=1 samples preserved, got %v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp < got[i-1].Timestamp {
			t.Fatalf("not sorted: %v", got)
		}
	}
}

func TestSampleMergeIteratorBlockKeepsFirst(t *testing.T) {
	a := NewVecSampleIterator([]sample.Sample{{Timestamp: 1, Value: 1}})
	b := NewVecSampleIterator([]sample.Sample{{Timestamp: 1, Value: 2}})
	got := collect(NewSampleMergeIterator(a, b, sample.Block))
	if len(got) != 1 || got[0].Value != 1 {
		t.Fatalf("got %v, want [{1 1}]", got)
	}
}

func TestSampleMergeIteratorSum(t *testing.T) {
	a := NewVecSampleIterator([]sample.Sample{{Timestamp: 1, Value: 1}, {Timestamp: 2, Value: 5}})
	b := NewVecSampleIterator([]sample.Sample{{Timestamp: 1, Value: 2}})
	got := collect(NewSampleMergeIterator(a, b, sample.Sum))
	if len(got) != 2 || got[0].Value != 3 {
		t.Fatalf("got %v", got)
	}
}

func TestTimestampFilterIterator(t *testing.T) {
	src := NewVecSampleIterator([]sample.Sample{{Timestamp: 1}, {Timestamp: 2}, {Timestamp: 3}, {Timestamp: 5}})
	got := collect(NewTimestampFilterIterator(src, []int64{2, 5}))
	if len(got) != 2 || got[0].Timestamp != 2 || got[1].Timestamp != 5 {
		t.Fatalf("got %v", got)
	}
}
