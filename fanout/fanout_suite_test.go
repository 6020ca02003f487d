package fanout_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/nvaistore-labs/tscore/cluster"
	"github.com/nvaistore-labs/tscore/fanout"
	"github.com/nvaistore-labs/tscore/sample"
)

func TestFanout(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "fanout suite")
}

var _ = Describe("Engine", func() {
	var cm *cluster.ClusterMap

	BeforeEach(func() {
		var err error
		cm, err = cluster.BuildFromShards([]cluster.ShardInfo{
			{SlotStart: 0, SlotEnd: 8191, Primary: cluster.NodeInfo{ID: "n1"}},
			{SlotStart: 8192, SlotEnd: 16383, Primary: cluster.NodeInfo{ID: "n2"}},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("dispatches only a base request, stripping grouping and aggregation", func() {
		var seenGroup, seenAggregate bool
		eng := &fanout.Engine{
			Map: cm,
			Eval: func(ctx context.Context, node cluster.NodeInfo, opts fanout.MRangeOptions) ([]fanout.SeriesResult, error) {
				seenGroup = seenGroup || opts.Group != nil
				seenAggregate = seenAggregate || opts.Aggregate != nil
				return nil, nil
			},
		}
		_, err := eng.Run(context.Background(), fanout.MRangeOptions{
			Start: 0, End: 10,
			Group:     &fanout.GroupBy{Labels: []string{"dc"}, Reducer: fanout.ReduceSum},
			Aggregate: &fanout.Aggregation{Reducer: fanout.ReduceSum, Bucket: 1000},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(seenGroup).To(BeFalse())
		Expect(seenAggregate).To(BeFalse())
	})

	It("returns results sorted by label key", func() {
		eng := &fanout.Engine{
			Map: cm,
			Eval: func(ctx context.Context, node cluster.NodeInfo, opts fanout.MRangeOptions) ([]fanout.SeriesResult, error) {
				if node.ID == "n1" {
					return []fanout.SeriesResult{{Labels: []sample.Label{{Name: "host", Value: "z"}}, Samples: []sample.Sample{{Timestamp: 1, Value: 1}}}}, nil
				}
				return []fanout.SeriesResult{{Labels: []sample.Label{{Name: "host", Value: "a"}}, Samples: []sample.Sample{{Timestamp: 1, Value: 1}}}}, nil
			},
		}
		out, err := eng.Run(context.Background(), fanout.MRangeOptions{Start: 0, End: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(2))
		Expect(out[0].Labels[0].Value).To(Equal("a"))
	})
})
