package chunk

import (
	"encoding/binary"

	"github.com/nvaistore-labs/tscore/internal/debug"
	"github.com/nvaistore-labs/tscore/internal/tserr"
	"github.com/nvaistore-labs/tscore/sample"
)

const sampleSize = 16 // int64 timestamp + float64 value

// Uncompressed is a plain vector of samples, sorted ascending by timestamp.
// max_elements = max_size / sample_size. Insertion uses binary search;
// remove_range is a linear slice splice (section 4.1.1).
type Uncompressed struct {
	maxSize int
	samples []sample.Sample
}

func NewUncompressed(maxSize int) (*Uncompressed, error) {
	if err := validateChunkSize(maxSize); err != nil {
		return nil, err
	}
	return &Uncompressed{maxSize: maxSize}, nil
}

func (c *Uncompressed) maxElements() int { return c.maxSize / sampleSize }

func (c *Uncompressed) FirstTimestamp() int64 {
	if len(c.samples) == 0 {
		return 0
	}
	return c.samples[0].Timestamp
}

func (c *Uncompressed) LastTimestamp() int64 {
	if len(c.samples) == 0 {
		return 0
	}
	return c.samples[len(c.samples)-1].Timestamp
}

func (c *Uncompressed) Len() int     { return len(c.samples) }
func (c *Uncompressed) IsEmpty() bool { return len(c.samples) == 0 }

func (c *Uncompressed) LastValue() float64 {
	if len(c.samples) == 0 {
		return 0
	}
	return c.samples[len(c.samples)-1].Value
}

func (c *Uncompressed) Size() int           { return len(c.samples) * sampleSize }
func (c *Uncompressed) MaxSize() int        { return c.maxSize }
func (c *Uncompressed) RemainingCapacity() int {
	n := c.maxElements() - len(c.samples)
	if n < 0 {
		return 0
	}
	return n
}

func (c *Uncompressed) AddSample(s sample.Sample) error {
	if len(c.samples) >= c.maxElements() {
		return tserr.ErrCapacityFull()
	}
	if len(c.samples) == 0 || s.Timestamp > c.samples[len(c.samples)-1].Timestamp {
		c.samples = append(c.samples, s)
		return nil
	}
	i := searchFirstGE(c.samples, s.Timestamp)
	if i < len(c.samples) && c.samples[i].Timestamp == s.Timestamp {
		return tserr.ErrDuplicate(s.Timestamp)
	}
	c.samples = append(c.samples, sample.Sample{})
	copy(c.samples[i+1:], c.samples[i:])
	c.samples[i] = s
	return nil
}

func (c *Uncompressed) UpsertSample(s sample.Sample, policy sample.DuplicatePolicy) (int, error) {
	if len(c.samples) == 0 || s.Timestamp > c.samples[len(c.samples)-1].Timestamp {
		if len(c.samples) >= c.maxElements() {
			return 0, tserr.ErrCapacityFull()
		}
		c.samples = append(c.samples, s)
		return 1, nil
	}
	i := searchFirstGE(c.samples, s.Timestamp)
	if i < len(c.samples) && c.samples[i].Timestamp == s.Timestamp {
		v, err := policy.DuplicateValue(c.samples[i].Value, s.Value)
		if err != nil {
			return 0, tserr.ErrDuplicate(s.Timestamp)
		}
		c.samples[i].Value = v
		return 0, nil
	}
	if len(c.samples) >= c.maxElements() {
		return 0, tserr.ErrCapacityFull()
	}
	c.samples = append(c.samples, sample.Sample{})
	copy(c.samples[i+1:], c.samples[i:])
	c.samples[i] = s
	return 1, nil
}

func (c *Uncompressed) GetRange(start, end int64) ([]sample.Sample, error) {
	r := rangeSlice(c.samples, start, end)
	out := make([]sample.Sample, len(r))
	copy(out, r)
	return out, nil
}

func (c *Uncompressed) RangeIter(start, end int64) SampleIterator {
	return newSliceIterator(rangeSlice(c.samples, start, end))
}

func (c *Uncompressed) RemoveRange(start, end int64) (int, error) {
	lo := searchFirstGE(c.samples, start)
	hi := searchFirstGT(c.samples, end)
	if lo >= hi {
		return 0, nil
	}
	n := hi - lo
	c.samples = append(c.samples[:lo], c.samples[hi:]...)
	return n, nil
}

func (c *Uncompressed) MergeSamples(samples []sample.Sample, policy sample.DuplicatePolicy) ([]sample.AddResult, error) {
	merged, results := mergeResult(c.samples, samples, policy)
	if len(merged) > c.maxElements() {
		overflow := len(merged) - c.maxElements()
		// Reject the newly-admitted samples newest first: drop each from the
		// merged result and mark its input capacity-full, mirroring the
		// reject-the-newest-overflow-first behavior in the original
		// merge_by_capacity logic. Collisions that only updated an existing
		// sample's value are left in place.
		for i := len(results) - 1; i >= 0 && overflow > 0; i-- {
			if results[i].Kind != sample.ResOk {
				continue
			}
			ts := results[i].Timestamp
			if j := searchFirstGE(c.samples, ts); j < len(c.samples) && c.samples[j].Timestamp == ts {
				continue
			}
			merged = removeTimestamp(merged, ts)
			results[i] = sample.CapacityFull()
			overflow--
		}
	}
	c.samples = merged
	return results, nil
}

func (c *Uncompressed) SetData(samples []sample.Sample) error {
	if len(samples) > c.maxElements() {
		return tserr.ErrCapacityFull()
	}
	c.samples = append([]sample.Sample(nil), samples...)
	return nil
}

func (c *Uncompressed) Split() (Chunk, error) {
	n := len(c.samples)
	mid := n / 2
	right, err := NewUncompressed(c.maxSize)
	if err != nil {
		return nil, err
	}
	right.samples = append([]sample.Sample(nil), c.samples[mid:]...)
	c.samples = c.samples[:mid:mid]
	debug.Assert(len(c.samples)+len(right.samples) == n, "split must conserve sample count")
	return right, nil
}

// Serialize appends this chunk's wire body (section 6.2, Uncompressed
// layout): max_size, max_elements, len, then len raw samples.
func (c *Uncompressed) Serialize(buf []byte) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint32(tmp[:4], uint32(c.maxSize))
	buf = append(buf, tmp[:4]...)
	binary.LittleEndian.PutUint32(tmp[:4], uint32(c.maxElements()))
	buf = append(buf, tmp[:4]...)
	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(c.samples)))
	buf = append(buf, tmp[:4]...)
	for _, s := range c.samples {
		binary.LittleEndian.PutUint64(tmp[:8], uint64(s.Timestamp))
		buf = append(buf, tmp[:8]...)
		binary.LittleEndian.PutUint64(tmp[:8], mathFloatBits(s.Value))
		buf = append(buf, tmp[:8]...)
	}
	return buf
}

func (c *Uncompressed) Clone() Chunk {
	cp := &Uncompressed{maxSize: c.maxSize, samples: append([]sample.Sample(nil), c.samples...)}
	return cp
}

// DeserializeUncompressed reads back the layout Serialize writes.
func DeserializeUncompressed(buf []byte) (*Uncompressed, []byte, error) {
	if len(buf) < 12 {
		return nil, nil, tserr.ErrCannotDeserialize(nil)
	}
	maxSize := int(binary.LittleEndian.Uint32(buf[:4]))
	_ = int(binary.LittleEndian.Uint32(buf[4:8])) // max_elements, recomputed from maxSize
	n := int(binary.LittleEndian.Uint32(buf[8:12]))
	buf = buf[12:]
	if len(buf) < n*sampleSize {
		return nil, nil, tserr.ErrCannotDeserialize(nil)
	}
	c, err := NewUncompressed(maxSize)
	if err != nil {
		return nil, nil, err
	}
	c.samples = make([]sample.Sample, n)
	for i := 0; i < n; i++ {
		ts := int64(binary.LittleEndian.Uint64(buf[:8]))
		v := floatFromBits(binary.LittleEndian.Uint64(buf[8:16]))
		c.samples[i] = sample.Sample{Timestamp: ts, Value: v}
		buf = buf[16:]
	}
	return c, buf, nil
}
