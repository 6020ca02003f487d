package fanout

import (
	"context"
	"testing"

	"github.com/nvaistore-labs/tscore/cluster"
	"github.com/nvaistore-labs/tscore/sample"
)

// TestWireEvaluatorRoundTrip exercises the client/server bridge end to
// end: NewWireEvaluator marshals a request, a fake NodeSender hands it to
// HandleWireRequest (as if it had crossed a socket), and the reply comes
// back out the other side as SeriesResults.
func TestWireEvaluatorRoundTrip(t *testing.T) {
	local := LocalEvaluator(func(ctx context.Context, opts MRangeOptions) ([]SeriesResult, error) {
		if len(opts.Matchers) != 1 || opts.Matchers[0].Name != "host" {
			t.Fatalf("matcher did not survive the wire: %+v", opts.Matchers)
		}
		return []SeriesResult{
			{
				Labels:  []sample.Label{{Name: "host", Value: "a"}},
				Samples: []sample.Sample{{Timestamp: 10, Value: 1}, {Timestamp: 20, Value: 2}},
			},
		}, nil
	})

	var send NodeSender = func(ctx context.Context, node cluster.NodeInfo, reqBytes []byte) ([]byte, error) {
		return HandleWireRequest(ctx, local, reqBytes)
	}

	eval := NewWireEvaluator(send)
	out, err := eval(context.Background(), cluster.NodeInfo{ID: "n1"}, MRangeOptions{
		Start:    0,
		End:      100,
		Matchers: []Matcher{{Name: "host", Op: OpEqual, Value: "a"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || len(out[0].Samples) != 2 {
		t.Fatalf("got %+v", out)
	}
	if out[0].Samples[1].Value != 2 {
		t.Fatalf("sample mismatch: %+v", out[0].Samples)
	}
}

// TestEngineOverWire runs the full Engine.Run pipeline with a
// NewWireEvaluator-backed Eval, proving fanout, wire, and cluster compose.
func TestEngineOverWire(t *testing.T) {
	cm := testMap(t)
	data := map[string][]SeriesResult{
		"n1": {{Labels: []sample.Label{{Name: "host", Value: "a"}}, Samples: []sample.Sample{{Timestamp: 1, Value: 1}}}},
		"n2": {{Labels: []sample.Label{{Name: "host", Value: "b"}}, Samples: []sample.Sample{{Timestamp: 2, Value: 2}}}},
	}
	var send NodeSender = func(ctx context.Context, node cluster.NodeInfo, reqBytes []byte) ([]byte, error) {
		local := LocalEvaluator(func(ctx context.Context, opts MRangeOptions) ([]SeriesResult, error) {
			return data[node.ID], nil
		})
		return HandleWireRequest(ctx, local, reqBytes)
	}

	e := &Engine{Map: cm, Eval: NewWireEvaluator(send)}
	out, err := e.Run(context.Background(), MRangeOptions{Start: 0, End: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d series, want 2", len(out))
	}
}
