package fanout

import (
	"context"
	"testing"

	"github.com/nvaistore-labs/tscore/cluster"
	"github.com/nvaistore-labs/tscore/sample"
)

func testMap(t *testing.T) *cluster.ClusterMap {
	t.Helper()
	cm, err := cluster.BuildFromShards([]cluster.ShardInfo{
		{SlotStart: 0, SlotEnd: 8191, Primary: cluster.NodeInfo{ID: "n1"}},
		{SlotStart: 8192, SlotEnd: 16383, Primary: cluster.NodeInfo{ID: "n2"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return cm
}

func TestEngineMergesAcrossShards(t *testing.T) {
	cm := testMap(t)
	data := map[string][]SeriesResult{
		"n1": {{Labels: []sample.Label{{Name: "host", Value: "a"}}, Samples: []sample.Sample{{Timestamp: 1, Value: 1}, {Timestamp: 3, Value: 3}}}},
		"n2": {{Labels: []sample.Label{{Name: "host", Value: "b"}}, Samples: []sample.Sample{{Timestamp: 2, Value: 2}}}},
	}
	e := &Engine{
		Map: cm,
		Eval: func(ctx context.Context, node cluster.NodeInfo, opts MRangeOptions) ([]SeriesResult, error) {
			return data[node.ID], nil
		},
	}
	out, err := e.Run(context.Background(), MRangeOptions{Start: 0, End: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d series, want 2", len(out))
	}
}

func TestEngineGroupAndAggregate(t *testing.T) {
	cm := testMap(t)
	data := map[string][]SeriesResult{
		"n1": {
			{Labels: []sample.Label{{Name: "host", Value: "a"}, {Name: "dc", Value: "x"}}, Samples: []sample.Sample{{Timestamp: 0, Value: 10}, {Timestamp: 500, Value: 20}}},
		},
		"n2": {
			{Labels: []sample.Label{{Name: "host", Value: "b"}, {Name: "dc", Value: "x"}}, Samples: []sample.Sample{{Timestamp: 100, Value: 30}}},
		},
	}
	e := &Engine{
		Map: cm,
		Eval: func(ctx context.Context, node cluster.NodeInfo, opts MRangeOptions) ([]SeriesResult, error) {
			return data[node.ID], nil
		},
	}
	out, err := e.Run(context.Background(), MRangeOptions{
		Start: 0, End: 1000,
		Group:     &GroupBy{Labels: []string{"dc"}, Reducer: ReduceSum},
		Aggregate: &Aggregation{Reducer: ReduceSum, Bucket: 1000},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d groups, want 1", len(out))
	}
	if len(out[0].Samples) != 1 || out[0].Samples[0].Value != 60 {
		t.Fatalf("got %v, want one bucket summing to 60", out[0].Samples)
	}
}

func TestEngineCountAndReverse(t *testing.T) {
	cm := testMap(t)
	data := map[string][]SeriesResult{
		"n1": {{Labels: []sample.Label{{Name: "host", Value: "a"}}, Samples: []sample.Sample{{Timestamp: 1, Value: 1}, {Timestamp: 2, Value: 2}}}},
		"n2": {{Labels: []sample.Label{{Name: "host", Value: "b"}}, Samples: []sample.Sample{{Timestamp: 1, Value: 9}}}},
	}
	e := &Engine{
		Map: cm,
		Eval: func(ctx context.Context, node cluster.NodeInfo, opts MRangeOptions) ([]SeriesResult, error) {
			return data[node.ID], nil
		},
	}
	out, err := e.Run(context.Background(), MRangeOptions{Start: 0, End: 10, Count: 1, Reverse: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("count cap not applied: %d", len(out))
	}
	samples := out[0].Samples
	if len(samples) > 1 && samples[0].Timestamp < samples[len(samples)-1].Timestamp {
		t.Fatalf("not reversed: %v", samples)
	}
}
