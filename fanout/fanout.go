// Package fanout implements the distributed multi-range query engine:
// strip grouping/aggregation/reverse/count before dispatch, evaluate each
// shard locally, collect and k-way merge the results, then apply
// grouping, aggregation, reversal and the result-count cap centrally
// (section 4.6).
package fanout

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvaistore-labs/tscore/cluster"
	"github.com/nvaistore-labs/tscore/iterator"
	"github.com/nvaistore-labs/tscore/sample"
)

type MatchOp int

const (
	OpEqual MatchOp = iota
	OpNotEqual
	OpRegexp
	OpNotRegexp
)

type Matcher struct {
	Name  string
	Op    MatchOp
	Value string
}

type Reducer int

const (
	ReduceSum Reducer = iota
	ReduceAvg
	ReduceMin
	ReduceMax
	ReduceCount
)

// String names a reducer the way it shows up in a grouped result's
// __reducer__ label (section 4.6 step 5).
func (r Reducer) String() string {
	switch r {
	case ReduceAvg:
		return "avg"
	case ReduceMin:
		return "min"
	case ReduceMax:
		return "max"
	case ReduceCount:
		return "count"
	default:
		return "sum"
	}
}

func Reduce(r Reducer, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	switch r {
	case ReduceAvg:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	case ReduceMin:
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case ReduceMax:
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	case ReduceCount:
		return float64(len(values))
	default: // ReduceSum
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum
	}
}

// GroupBy collapses matching series into one row per distinct value of
// Labels, reduced with Reducer (section 4.6, BTreeMap-style grouping —
// realized here with a sorted Go map key for the same deterministic
// iteration order without an external btree dependency).
type GroupBy struct {
	Labels  []string
	Reducer Reducer
}

// Aggregation buckets a series' samples by time (section 4.6/6.1).
type Aggregation struct {
	Reducer  Reducer
	Bucket   int64 // ms
	Align    int64 // ms offset
	Empty    bool  // carried with the request; applyAggregate emits only buckets that hold samples
}

type MRangeOptions struct {
	Start, End int64
	Matchers   []Matcher
	Filter     *sample.RangeFilter
	Group      *GroupBy
	Aggregate  *Aggregation
	Count      int // 0 = unlimited
	Reverse    bool

	// PartialOK controls what happens when a target is unreachable or its
	// per-target deadline expires: false (the default) fails the whole
	// request, true drops that target and returns a partial result
	// (section 5).
	PartialOK bool
}

// baseOptions strips grouping/aggregation/count/reverse/partial_ok: every
// dispatched node only ever needs to return raw matching samples (section
// 4.6 step 1).
func (o MRangeOptions) baseOptions() MRangeOptions {
	return MRangeOptions{Start: o.Start, End: o.End, Matchers: o.Matchers, Filter: o.Filter}
}

// SeriesResult is one series' contribution to a fanout response. Key
// identifies the series across shards/replicas/grouping (for a grouped
// row it is the deterministic, comma-joined list of contributing series'
// keys, section 4.6 step 5); GroupLabelValue is set only on grouped rows.
type SeriesResult struct {
	Key             string
	GroupLabelValue *string
	Labels          []sample.Label
	Samples         []sample.Sample
}

// Evaluator evaluates a base MRangeOptions against one node's local data.
type Evaluator func(ctx context.Context, node cluster.NodeInfo, opts MRangeOptions) ([]SeriesResult, error)

// Engine runs the dispatch/collect/merge/group/aggregate pipeline.
type Engine struct {
	Map  *cluster.ClusterMap
	Eval Evaluator
	Seed uint64

	// Timeout bounds each per-target Eval call; zero means no deadline.
	Timeout time.Duration
}

// Run dispatches opts.baseOptions() to one target per shard (primary,
// per TargetPrimary), collects, and applies the centralized
// post-processing the spec assigns to the coordinator. A target that
// errors or exceeds Timeout is dropped (partial response) when
// opts.PartialOK is set, otherwise it fails the whole call (section 5).
func (e *Engine) Run(ctx context.Context, opts MRangeOptions) ([]SeriesResult, error) {
	targets := e.Map.GetTargets(cluster.TargetPrimary, e.Seed)
	base := opts.baseOptions()

	collected := make([][]SeriesResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, group := range targets {
		i, group := i, group
		g.Go(func() error {
			var all []SeriesResult
			for _, node := range group {
				nodeCtx := gctx
				var cancel context.CancelFunc
				if e.Timeout > 0 {
					nodeCtx, cancel = context.WithTimeout(gctx, e.Timeout)
				}
				r, err := e.Eval(nodeCtx, node, base)
				if cancel != nil {
					cancel()
				}
				if err != nil {
					if opts.PartialOK {
						continue
					}
					return err
				}
				all = append(all, r...)
			}
			collected[i] = all
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var flat []SeriesResult
	for _, c := range collected {
		flat = append(flat, c...)
	}

	merged := mergeBySeries(flat)

	var out []SeriesResult
	if opts.Group != nil {
		out = applyGroup(merged, *opts.Group)
	} else {
		out = merged
	}
	if opts.Aggregate != nil {
		for i := range out {
			out[i].Samples = applyAggregate(out[i].Samples, *opts.Aggregate)
		}
	}
	if opts.Reverse {
		for i := range out {
			reverseSamples(out[i].Samples)
		}
	}
	// Sort by key; grouped rows additionally sort by their
	// group_label_value first so same-group rows stay adjacent (section
	// 4.6 step 6).
	sort.Slice(out, func(i, j int) bool {
		gi, gj := "", ""
		if out[i].GroupLabelValue != nil {
			gi = *out[i].GroupLabelValue
		}
		if out[j].GroupLabelValue != nil {
			gj = *out[j].GroupLabelValue
		}
		if gi != gj {
			return gi < gj
		}
		return out[i].Key < out[j].Key
	})
	if opts.Count > 0 && len(out) > opts.Count {
		out = out[:opts.Count]
	}
	return out, nil
}

// seriesIdentity is the string that identifies a series for dedup,
// merging, and sorting: its Key when the producer set one, else its
// label-derived key.
func seriesIdentity(r SeriesResult) string {
	if r.Key != "" {
		return r.Key
	}
	return labelKey(r.Labels)
}

// mergeBySeries k-way merges results that share a seriesIdentity, as
// returned by distinct shards/replicas, into one ascending stream per
// series; same-timestamp samples from different sources are all kept,
// never silently dropped (section 4.6 step 4/5).
func mergeBySeries(results []SeriesResult) []SeriesResult {
	byKey := map[string]*SeriesResult{}
	var order []string
	iters := map[string][]iterator.Iterator{}
	for _, r := range results {
		key := seriesIdentity(r)
		if _, ok := byKey[key]; !ok {
			cp := r
			cp.Key = key
			cp.Samples = nil
			byKey[key] = &cp
			order = append(order, key)
		}
		iters[key] = append(iters[key], iterator.NewVecSampleIterator(r.Samples))
	}
	sort.Strings(order)
	out := make([]SeriesResult, 0, len(order))
	for _, key := range order {
		m := iterator.NewMultiSeriesSampleIter(iters[key])
		var samples []sample.Sample
		for {
			s, ok := m.Next()
			if !ok {
				break
			}
			samples = append(samples, s)
		}
		r := *byKey[key]
		r.Samples = samples
		out = append(out, r)
	}
	return out
}

func labelKey(labels []sample.Label) string {
	sorted := append([]sample.Label(nil), labels...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	key := ""
	for _, l := range sorted {
		key += l.Name + "=" + l.Value + ","
	}
	return key
}

func reverseSamples(s []sample.Sample) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// applyGroup collapses series sharing the same values for Labels into one
// row per distinct combination, iterating group keys in sorted order for
// deterministic output (the BTreeMap-equivalent mentioned above). Each
// grouped row's labels are rebuilt as the projected group labels plus
// __reducer__ (the reducer name) and __source__ (the sorted, comma-joined
// keys of every series that fed the group); Key and GroupLabelValue carry
// the same joined-keys and group-value strings for the caller (section 4.6
// step 5).
func applyGroup(results []SeriesResult, g GroupBy) []SeriesResult {
	type bucket struct {
		labels     []sample.Label
		groupValue string
		byTS       map[int64][]float64
		tsOrder    []int64
		sources    map[string]struct{}
	}
	buckets := map[string]*bucket{}
	var order []string
	for _, r := range results {
		key := groupKey(r.Labels, g.Labels)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				labels:     projectLabels(r.Labels, g.Labels),
				groupValue: groupLabelValue(r.Labels, g.Labels),
				byTS:       map[int64][]float64{},
				sources:    map[string]struct{}{},
			}
			buckets[key] = b
			order = append(order, key)
		}
		b.sources[seriesIdentity(r)] = struct{}{}
		for _, s := range r.Samples {
			if _, seen := b.byTS[s.Timestamp]; !seen {
				b.tsOrder = append(b.tsOrder, s.Timestamp)
			}
			b.byTS[s.Timestamp] = append(b.byTS[s.Timestamp], s.Value)
		}
	}
	sort.Strings(order)
	out := make([]SeriesResult, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		sort.Slice(b.tsOrder, func(i, j int) bool { return b.tsOrder[i] < b.tsOrder[j] })
		samples := make([]sample.Sample, len(b.tsOrder))
		for i, ts := range b.tsOrder {
			samples[i] = sample.Sample{Timestamp: ts, Value: Reduce(g.Reducer, b.byTS[ts])}
		}
		sourceKeys := make([]string, 0, len(b.sources))
		for k := range b.sources {
			sourceKeys = append(sourceKeys, k)
		}
		sort.Strings(sourceKeys)
		joined := strings.Join(sourceKeys, ",")
		labels := make([]sample.Label, 0, len(b.labels)+2)
		labels = append(labels, b.labels...)
		labels = append(labels,
			sample.Label{Name: "__reducer__", Value: g.Reducer.String()},
			sample.Label{Name: "__source__", Value: joined},
		)
		groupValue := b.groupValue
		out = append(out, SeriesResult{
			Key:             joined,
			GroupLabelValue: &groupValue,
			Labels:          labels,
			Samples:         samples,
		})
	}
	return out
}

func groupKey(labels []sample.Label, names []string) string {
	key := ""
	for _, n := range names {
		key += n + "=" + labelValue(labels, n) + ","
	}
	return key
}

// groupLabelValue is the comma-joined values of the group-by labels, the
// precomputed group_label_value a response row carries (section 4.7).
func groupLabelValue(labels []sample.Label, names []string) string {
	values := make([]string, len(names))
	for i, n := range names {
		values[i] = labelValue(labels, n)
	}
	return strings.Join(values, ",")
}

func projectLabels(labels []sample.Label, names []string) []sample.Label {
	out := make([]sample.Label, 0, len(names))
	for _, n := range names {
		out = append(out, sample.Label{Name: n, Value: labelValue(labels, n)})
	}
	return out
}

func labelValue(labels []sample.Label, name string) string {
	for _, l := range labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

// applyAggregate buckets samples by time and reduces each bucket.
func applyAggregate(samples []sample.Sample, a Aggregation) []sample.Sample {
	if a.Bucket <= 0 || len(samples) == 0 {
		return samples
	}
	buckets := map[int64][]float64{}
	var order []int64
	for _, s := range samples {
		b := bucketStart(s.Timestamp, a.Bucket, a.Align)
		if _, ok := buckets[b]; !ok {
			order = append(order, b)
		}
		buckets[b] = append(buckets[b], s.Value)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]sample.Sample, len(order))
	for i, b := range order {
		out[i] = sample.Sample{Timestamp: b, Value: Reduce(a.Reducer, buckets[b])}
	}
	return out
}

func bucketStart(ts, bucket, align int64) int64 {
	shifted := ts - align
	b := (shifted / bucket) * bucket
	if shifted < 0 && shifted%bucket != 0 {
		b -= bucket
	}
	return b + align
}
