package chunk

import (
	"encoding/binary"
	"math/bits"

	"github.com/nvaistore-labs/tscore/internal/debug"
	"github.com/nvaistore-labs/tscore/internal/tserr"
	"github.com/nvaistore-labs/tscore/sample"
)

// Gorilla is the classic Facebook-Gorilla timestamp (delta-of-delta) and
// value (XOR) bit-packed codec (section 4.1.2). The codec keeps a
// materialized, sorted sample slice in memory; compression is applied at
// the Size/Serialize boundary, which mirrors the original's "decode before
// split or delete, recompress after" behavior extended to every mutation.
//
// The value stream omits the classic "reuse previous XOR window" control
// bit: every nonzero XOR is written as a fresh (leading-zeros, length,
// bits) block. This costs a little compression ratio, not correctness.
type Gorilla struct {
	maxSize int
	samples []sample.Sample
}

func NewGorilla(maxSize int) (*Gorilla, error) {
	if err := validateChunkSize(maxSize); err != nil {
		return nil, err
	}
	return &Gorilla{maxSize: maxSize}, nil
}

func (c *Gorilla) FirstTimestamp() int64 {
	if len(c.samples) == 0 {
		return 0
	}
	return c.samples[0].Timestamp
}

func (c *Gorilla) LastTimestamp() int64 {
	if len(c.samples) == 0 {
		return 0
	}
	return c.samples[len(c.samples)-1].Timestamp
}

func (c *Gorilla) Len() int      { return len(c.samples) }
func (c *Gorilla) IsEmpty() bool { return len(c.samples) == 0 }

func (c *Gorilla) LastValue() float64 {
	if len(c.samples) == 0 {
		return 0
	}
	return c.samples[len(c.samples)-1].Value
}

const gorillaHeaderSize = 4 + 4 + 8 + 8 + 8 // maxSize, count, firstTS, lastTS, lastValue

func (c *Gorilla) Size() int {
	if len(c.samples) == 0 {
		return gorillaHeaderSize
	}
	return gorillaHeaderSize + len(encodeGorillaBody(c.samples))
}

func (c *Gorilla) MaxSize() int { return c.maxSize }

func (c *Gorilla) RemainingCapacity() int {
	n := c.maxSize - c.Size()
	if n < 0 {
		return 0
	}
	return n
}

func (c *Gorilla) AddSample(s sample.Sample) error {
	candidate := insertedCopy(c.samples, s, false)
	if candidate == nil {
		return tserr.ErrDuplicate(s.Timestamp)
	}
	if gorillaEncodedSize(candidate) > c.maxSize {
		return tserr.ErrCapacityFull()
	}
	c.samples = candidate
	return nil
}

func (c *Gorilla) UpsertSample(s sample.Sample, policy sample.DuplicatePolicy) (int, error) {
	i := searchFirstGE(c.samples, s.Timestamp)
	if i < len(c.samples) && c.samples[i].Timestamp == s.Timestamp {
		v, err := policy.DuplicateValue(c.samples[i].Value, s.Value)
		if err != nil {
			return 0, tserr.ErrDuplicate(s.Timestamp)
		}
		candidate := append([]sample.Sample(nil), c.samples...)
		candidate[i].Value = v
		if gorillaEncodedSize(candidate) > c.maxSize {
			return 0, tserr.ErrCapacityFull()
		}
		c.samples = candidate
		return 0, nil
	}
	candidate := insertedCopy(c.samples, s, true)
	if gorillaEncodedSize(candidate) > c.maxSize {
		return 0, tserr.ErrCapacityFull()
	}
	c.samples = candidate
	return 1, nil
}

func insertedCopy(samples []sample.Sample, s sample.Sample, allowAt bool) []sample.Sample {
	if len(samples) == 0 || s.Timestamp > samples[len(samples)-1].Timestamp {
		out := append([]sample.Sample(nil), samples...)
		return append(out, s)
	}
	i := searchFirstGE(samples, s.Timestamp)
	if i < len(samples) && samples[i].Timestamp == s.Timestamp {
		if !allowAt {
			return nil
		}
	}
	out := make([]sample.Sample, 0, len(samples)+1)
	out = append(out, samples[:i]...)
	out = append(out, s)
	out = append(out, samples[i:]...)
	return out
}

func gorillaEncodedSize(samples []sample.Sample) int {
	if len(samples) == 0 {
		return gorillaHeaderSize
	}
	return gorillaHeaderSize + len(encodeGorillaBody(samples))
}

func (c *Gorilla) GetRange(start, end int64) ([]sample.Sample, error) {
	r := rangeSlice(c.samples, start, end)
	out := make([]sample.Sample, len(r))
	copy(out, r)
	return out, nil
}

func (c *Gorilla) RangeIter(start, end int64) SampleIterator {
	return newSliceIterator(rangeSlice(c.samples, start, end))
}

func (c *Gorilla) RemoveRange(start, end int64) (int, error) {
	lo := searchFirstGE(c.samples, start)
	hi := searchFirstGT(c.samples, end)
	if lo >= hi {
		return 0, nil
	}
	n := hi - lo
	c.samples = append(c.samples[:lo], c.samples[hi:]...)
	return n, nil
}

func (c *Gorilla) MergeSamples(samples []sample.Sample, policy sample.DuplicatePolicy) ([]sample.AddResult, error) {
	merged, results := mergeResult(c.samples, samples, policy)
	for gorillaEncodedSize(merged) > c.maxSize && len(merged) > len(c.samples) {
		// Trim back to the original cut from the newest admitted sample
		// until the candidate fits, marking the evicted entries CapacityFull.
		for i := len(results) - 1; i >= 0; i-- {
			if results[i].Kind == sample.ResOk {
				ts := results[i].Timestamp
				results[i] = sample.CapacityFull()
				merged = removeTimestamp(merged, ts)
				break
			}
		}
	}
	c.samples = merged
	return results, nil
}

func removeTimestamp(samples []sample.Sample, ts int64) []sample.Sample {
	i := searchFirstGE(samples, ts)
	if i < len(samples) && samples[i].Timestamp == ts {
		return append(samples[:i], samples[i+1:]...)
	}
	return samples
}

func (c *Gorilla) SetData(samples []sample.Sample) error {
	if gorillaEncodedSize(samples) > c.maxSize {
		return tserr.ErrCapacityFull()
	}
	c.samples = append([]sample.Sample(nil), samples...)
	return nil
}

func (c *Gorilla) Split() (Chunk, error) {
	n := len(c.samples)
	mid := n / 2
	right, err := NewGorilla(c.maxSize)
	if err != nil {
		return nil, err
	}
	right.samples = append([]sample.Sample(nil), c.samples[mid:]...)
	c.samples = c.samples[:mid:mid]
	debug.Assert(len(c.samples)+len(right.samples) == n, "split must conserve sample count")
	return right, nil
}

func (c *Gorilla) Serialize(buf []byte) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint32(tmp[:4], uint32(c.maxSize))
	buf = append(buf, tmp[:4]...)
	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(c.samples)))
	buf = append(buf, tmp[:4]...)
	binary.LittleEndian.PutUint64(tmp[:8], uint64(c.FirstTimestamp()))
	buf = append(buf, tmp[:8]...)
	binary.LittleEndian.PutUint64(tmp[:8], uint64(c.LastTimestamp()))
	buf = append(buf, tmp[:8]...)
	binary.LittleEndian.PutUint64(tmp[:8], mathFloatBits(c.LastValue()))
	buf = append(buf, tmp[:8]...)
	body := encodeGorillaBody(c.samples)
	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(body)))
	buf = append(buf, tmp[:4]...)
	buf = append(buf, body...)
	return buf
}

func (c *Gorilla) Clone() Chunk {
	return &Gorilla{maxSize: c.maxSize, samples: append([]sample.Sample(nil), c.samples...)}
}

// DeserializeGorilla reads the layout Serialize writes and returns the
// remaining buffer.
func DeserializeGorilla(buf []byte) (*Gorilla, []byte, error) {
	if len(buf) < gorillaHeaderSize+4 {
		return nil, nil, tserr.ErrCannotDeserialize(nil)
	}
	maxSize := int(binary.LittleEndian.Uint32(buf[:4]))
	count := int(binary.LittleEndian.Uint32(buf[4:8]))
	_ = count
	buf = buf[8+8+8+8:]
	bodyLen := int(binary.LittleEndian.Uint32(buf[:4]))
	buf = buf[4:]
	if len(buf) < bodyLen {
		return nil, nil, tserr.ErrCannotDeserialize(nil)
	}
	body := buf[:bodyLen]
	buf = buf[bodyLen:]
	samples, err := decodeGorillaBody(body, count)
	if err != nil {
		return nil, nil, err
	}
	c, err := NewGorilla(maxSize)
	if err != nil {
		return nil, nil, err
	}
	c.samples = samples
	return c, buf, nil
}

func encodeGorillaBody(samples []sample.Sample) []byte {
	if len(samples) == 0 {
		return nil
	}
	w := &bitWriter{}
	w.writeBits(uint64(samples[0].Timestamp), 64)
	w.writeBits(mathFloatBits(samples[0].Value), 64)

	var prevDelta int64
	prevTS := samples[0].Timestamp
	prevValue := samples[0].Value

	for i := 1; i < len(samples); i++ {
		ts := samples[i].Timestamp
		delta := ts - prevTS
		dod := delta - prevDelta
		writeDod(w, dod)
		prevDelta = delta
		prevTS = ts

		v := samples[i].Value
		xor := mathFloatBits(v) ^ mathFloatBits(prevValue)
		if xor == 0 {
			w.writeBit(false)
		} else {
			w.writeBit(true)
			lead := bits.LeadingZeros64(xor)
			trail := bits.TrailingZeros64(xor)
			if lead > 31 {
				lead = 31
			}
			length := 64 - lead - trail
			w.writeBits(uint64(lead), 5)
			// length ranges 1..64: store length-1 so it fits the 6-bit field.
			w.writeBits(uint64(length-1), 6)
			w.writeBits(xor>>uint(trail), length)
		}
		prevValue = v
	}
	return w.bytes()
}

func writeDod(w *bitWriter, dod int64) {
	switch {
	case dod == 0:
		w.writeBit(false)
	case dod >= -63 && dod <= 64:
		w.writeBits(0b10, 2)
		w.writeBits(uint64(dod)&0x7F, 7)
	case dod >= -255 && dod <= 256:
		w.writeBits(0b110, 3)
		w.writeBits(uint64(dod)&0x1FF, 9)
	case dod >= -2047 && dod <= 2048:
		w.writeBits(0b1110, 4)
		w.writeBits(uint64(dod)&0xFFF, 12)
	default:
		w.writeBits(0b1111, 4)
		w.writeBits(uint64(dod), 64)
	}
}

func readDod(r *bitReader) (int64, bool) {
	b, ok := r.readBit()
	if !ok {
		return 0, false
	}
	if !b {
		return 0, true
	}
	b, ok = r.readBit()
	if !ok {
		return 0, false
	}
	if !b {
		v, ok := r.readBits(7)
		if !ok {
			return 0, false
		}
		return signExtend(v, 7), true
	}
	b, ok = r.readBit()
	if !ok {
		return 0, false
	}
	if !b {
		v, ok := r.readBits(9)
		if !ok {
			return 0, false
		}
		return signExtend(v, 9), true
	}
	b, ok = r.readBit()
	if !ok {
		return 0, false
	}
	if !b {
		v, ok := r.readBits(12)
		if !ok {
			return 0, false
		}
		return signExtend(v, 12), true
	}
	v, ok := r.readBits(64)
	if !ok {
		return 0, false
	}
	return int64(v), true
}

func decodeGorillaBody(body []byte, count int) ([]sample.Sample, error) {
	if count == 0 {
		return nil, nil
	}
	r := newBitReader(body)
	firstTSBits, ok := r.readBits(64)
	if !ok {
		return nil, tserr.ErrCannotDecompress(nil)
	}
	firstValBits, ok := r.readBits(64)
	if !ok {
		return nil, tserr.ErrCannotDecompress(nil)
	}
	out := make([]sample.Sample, count)
	out[0] = sample.Sample{Timestamp: int64(firstTSBits), Value: floatFromBits(firstValBits)}

	var prevDelta int64
	prevTS := out[0].Timestamp
	prevValue := out[0].Value

	for i := 1; i < count; i++ {
		dod, ok := readDod(r)
		if !ok {
			return nil, tserr.ErrCannotDecompress(nil)
		}
		delta := prevDelta + dod
		ts := prevTS + delta
		prevDelta = delta
		prevTS = ts

		changed, ok := r.readBit()
		if !ok {
			return nil, tserr.ErrCannotDecompress(nil)
		}
		value := prevValue
		if changed {
			lead, ok := r.readBits(5)
			if !ok {
				return nil, tserr.ErrCannotDecompress(nil)
			}
			lengthField, ok := r.readBits(6)
			if !ok {
				return nil, tserr.ErrCannotDecompress(nil)
			}
			length := lengthField + 1
			bitsv, ok := r.readBits(int(length))
			if !ok {
				return nil, tserr.ErrCannotDecompress(nil)
			}
			trail := 64 - int(lead) - int(length)
			xor := bitsv << uint(trail)
			value = floatFromBits(mathFloatBits(prevValue) ^ xor)
		}
		out[i] = sample.Sample{Timestamp: ts, Value: value}
		prevValue = value
	}
	return out, nil
}
