package chunk

import (
	"github.com/nvaistore-labs/tscore/sample"
)

// mergeResult is the outcome of merging a sorted batch of incoming samples
// into an existing sorted batch under a duplicate policy. It is shared by
// every codec's MergeSamples: codecs differ in how they store samples, not
// in how a merge's per-input result is computed (section 4.1, "merge_samples").
//
// fastAppend is the common case where every incoming sample is strictly
// newer than the last existing sample: no k-way merge is needed.
func mergeResult(existing []sample.Sample, incoming []sample.Sample, policy sample.DuplicatePolicy) (merged []sample.Sample, results []sample.AddResult) {
	results = make([]sample.AddResult, len(incoming))

	if len(existing) == 0 || (len(incoming) > 0 && incoming[0].Timestamp > existing[len(existing)-1].Timestamp) {
		merged = append(merged, existing...)
		for i, s := range incoming {
			merged = append(merged, s)
			results[i] = sample.Ok(s.Timestamp)
		}
		return merged, results
	}

	merged = make([]sample.Sample, 0, len(existing)+len(incoming))
	ei, ii := 0, 0
	for ei < len(existing) && ii < len(incoming) {
		e, n := existing[ei], incoming[ii]
		switch {
		case e.Timestamp < n.Timestamp:
			merged = append(merged, e)
			ei++
		case e.Timestamp > n.Timestamp:
			merged = append(merged, n)
			results[ii] = sample.Ok(n.Timestamp)
			ii++
		default: // collision
			v, err := policy.DuplicateValue(e.Value, n.Value)
			if err != nil {
				results[ii] = sample.Duplicate()
				merged = append(merged, e) // keep existing on block
			} else {
				merged = append(merged, sample.Sample{Timestamp: e.Timestamp, Value: v})
				results[ii] = sample.Ok(n.Timestamp)
			}
			ei++
			ii++
		}
	}
	merged = append(merged, existing[ei:]...)
	for ; ii < len(incoming); ii++ {
		n := incoming[ii]
		merged = append(merged, n)
		results[ii] = sample.Ok(n.Timestamp)
	}
	return merged, results
}
