package fanout

import (
	"context"

	"github.com/nvaistore-labs/tscore/chunk"
	"github.com/nvaistore-labs/tscore/cluster"
	"github.com/nvaistore-labs/tscore/sample"
	"github.com/nvaistore-labs/tscore/wire"
)

// wireChunkEncoding is the codec used to pack a SeriesResult's samples for
// transport: Gorilla trades a little CPU for a much smaller frame, the same
// tradeoff the host makes for chunks at rest (section 4.1.2).
const wireChunkEncoding = chunk.EncodingGorilla

// NodeSender is the host's node-to-node RPC primitive the core consumes
// (section 6.4: node_send(node, request_bytes) -> response_bytes). It is
// the only place a real deployment crosses a socket; everything upstream
// of it in this package is pure in-process logic.
type NodeSender func(ctx context.Context, node cluster.NodeInfo, reqBytes []byte) ([]byte, error)

// LocalEvaluator resolves a base MRangeOptions against the series this
// node owns (the "resolves matching series keys, evaluates each locally"
// step of section 2's data flow). A real host wires this to its
// key-value registry; package hostkv stands in for that registry.
type LocalEvaluator func(ctx context.Context, opts MRangeOptions) ([]SeriesResult, error)

// NewWireEvaluator builds an Evaluator that marshals opts' time range and
// matchers onto the wire codec, ships them through send, and unmarshals the
// reply back into SeriesResults — the client half of the fanout/wire
// boundary. The wire request has no filter field, so opts.Filter does not
// reach the remote node.
func NewWireEvaluator(send NodeSender) Evaluator {
	return func(ctx context.Context, node cluster.NodeInfo, opts MRangeOptions) ([]SeriesResult, error) {
		req := optionsToWire(opts)
		respBytes, err := send(ctx, node, req.MarshalMsg())
		if err != nil {
			return nil, err
		}
		resp, err := wire.UnmarshalMultiRangeResponse(respBytes)
		if err != nil {
			return nil, err
		}
		return wireToResults(resp)
	}
}

// HandleWireRequest is the server half: what a node registers as its
// node_send handler. It decodes the request, runs it through the node's
// LocalEvaluator, and encodes the reply.
func HandleWireRequest(ctx context.Context, local LocalEvaluator, reqBytes []byte) ([]byte, error) {
	req, err := wire.UnmarshalMultiRangeRequest(reqBytes)
	if err != nil {
		return nil, err
	}
	opts := MRangeOptions{Start: req.Start, End: req.End, Matchers: wireToMatchers(req.Matchers)}
	results, err := local(ctx, opts)
	if err != nil {
		return nil, err
	}
	resp, err := resultsToWire(results)
	if err != nil {
		return nil, err
	}
	return resp.MarshalMsg(), nil
}

func optionsToWire(opts MRangeOptions) wire.MultiRangeRequest {
	matchers := make([]wire.Matcher, len(opts.Matchers))
	for i, m := range opts.Matchers {
		matchers[i] = wire.Matcher{Name: m.Name, Op: wire.MatcherOp(m.Op), Value: m.Value}
	}
	return wire.MultiRangeRequest{Version: wire.ProtocolVersion, Start: opts.Start, End: opts.End, Matchers: matchers}
}

func wireToMatchers(in []wire.Matcher) []Matcher {
	out := make([]Matcher, len(in))
	for i, m := range in {
		out[i] = Matcher{Name: m.Name, Op: MatchOp(m.Op), Value: m.Value}
	}
	return out
}

func resultsToWire(results []SeriesResult) (wire.MultiRangeResponse, error) {
	series := make([]wire.SeriesChunk, len(results))
	for i, r := range results {
		c, err := chunk.New(wireChunkEncoding, chunk.MaxSize)
		if err != nil {
			return wire.MultiRangeResponse{}, err
		}
		for _, s := range r.Samples {
			if err := c.Chunk.AddSample(s); err != nil {
				return wire.MultiRangeResponse{}, err
			}
		}
		series[i] = wire.SeriesChunk{
			Key:             r.Key,
			GroupLabelValue: r.GroupLabelValue,
			Labels:          r.Labels,
			Data:            wire.NewSampleData(c),
		}
	}
	return wire.MultiRangeResponse{Version: wire.ProtocolVersion, Series: series}, nil
}

func wireToResults(resp wire.MultiRangeResponse) ([]SeriesResult, error) {
	out := make([]SeriesResult, len(resp.Series))
	for i, sc := range resp.Series {
		var samples []sample.Sample
		if len(sc.Data.Bytes) > 0 {
			c, err := sc.Data.Chunk()
			if err != nil {
				return nil, err
			}
			samples, err = c.Chunk.GetRange(c.Chunk.FirstTimestamp(), c.Chunk.LastTimestamp())
			if err != nil {
				return nil, err
			}
		}
		out[i] = SeriesResult{Key: sc.Key, GroupLabelValue: sc.GroupLabelValue, Labels: sc.Labels, Samples: samples}
	}
	return out, nil
}
