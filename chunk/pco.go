package chunk

import (
	"encoding/binary"
	"math/bits"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/nvaistore-labs/tscore/internal/debug"
	"github.com/nvaistore-labs/tscore/internal/tserr"
	"github.com/nvaistore-labs/tscore/sample"
)

// pcoParallelThreshold is the sample count above which timestamp and value
// compression run as two concurrent tasks instead of serially (section
// 4.1.3, section 9).
const pcoParallelThreshold = 1024

// pcoExponentialSearchThreshold/pcoExponentialSearchFraction gate GetRange's
// search strategy: once a decompressed buffer holds more than this many
// samples and the target timestamp falls within the first fraction of the
// buffer's span, an exponential search locates the lower bound instead of a
// flat binary search (section 4.1.3).
const (
	pcoExponentialSearchThreshold = 65536
	pcoExponentialSearchFraction  = 0.2
)

// Pco is the batch columnar codec: timestamps and values live in two
// independent compressed buffers (a delta-of-delta bitstream for
// timestamps, an XOR bitstream for values) rather than one interleaved
// stream, so either buffer can be decoded without touching the other
// (section 4.1.3, section 6.2's timestamp_bytes/value_bytes layout).
type Pco struct {
	maxSize int
	samples []sample.Sample
}

func NewPco(maxSize int) (*Pco, error) {
	if err := validateChunkSize(maxSize); err != nil {
		return nil, err
	}
	return &Pco{maxSize: maxSize}, nil
}

func (c *Pco) FirstTimestamp() int64 {
	if len(c.samples) == 0 {
		return 0
	}
	return c.samples[0].Timestamp
}

func (c *Pco) LastTimestamp() int64 {
	if len(c.samples) == 0 {
		return 0
	}
	return c.samples[len(c.samples)-1].Timestamp
}

func (c *Pco) Len() int      { return len(c.samples) }
func (c *Pco) IsEmpty() bool { return len(c.samples) == 0 }

func (c *Pco) LastValue() float64 {
	if len(c.samples) == 0 {
		return 0
	}
	return c.samples[len(c.samples)-1].Value
}

const pcoHeaderSize = 4 + 4 + 8 + 8 + 8 // maxSize, count, firstTS, lastTS, lastValue

func (c *Pco) Size() int { return pcoEncodedSize(c.samples) }

func (c *Pco) MaxSize() int { return c.maxSize }

func (c *Pco) RemainingCapacity() int {
	n := c.maxSize - c.Size()
	if n < 0 {
		return 0
	}
	return n
}

// pcoEncodedSize is the header plus both length-prefixed buffers.
func pcoEncodedSize(samples []sample.Sample) int {
	if len(samples) == 0 {
		return pcoHeaderSize
	}
	tsBytes, valBytes, _ := encodePcoBuffers(samples)
	return pcoHeaderSize + 4 + len(tsBytes) + 4 + len(valBytes)
}

func (c *Pco) AddSample(s sample.Sample) error {
	candidate := insertedCopy(c.samples, s, false)
	if candidate == nil {
		return tserr.ErrDuplicate(s.Timestamp)
	}
	if pcoEncodedSize(candidate) > c.maxSize {
		return tserr.ErrCapacityFull()
	}
	c.samples = candidate
	return nil
}

func (c *Pco) UpsertSample(s sample.Sample, policy sample.DuplicatePolicy) (int, error) {
	i := searchFirstGE(c.samples, s.Timestamp)
	if i < len(c.samples) && c.samples[i].Timestamp == s.Timestamp {
		v, err := policy.DuplicateValue(c.samples[i].Value, s.Value)
		if err != nil {
			return 0, tserr.ErrDuplicate(s.Timestamp)
		}
		candidate := append([]sample.Sample(nil), c.samples...)
		candidate[i].Value = v
		if pcoEncodedSize(candidate) > c.maxSize {
			return 0, tserr.ErrCapacityFull()
		}
		c.samples = candidate
		return 0, nil
	}
	candidate := insertedCopy(c.samples, s, true)
	if pcoEncodedSize(candidate) > c.maxSize {
		return 0, tserr.ErrCapacityFull()
	}
	c.samples = candidate
	return 1, nil
}

// GetRange locates [start, end] in the materialized sample slice. Above
// pcoExponentialSearchThreshold samples, when start falls within the first
// 20% of the buffer's timestamp span, the lower bound is found by
// exponential search instead of a flat binary search — the same
// cheap-for-early-hits trick as doubling a probe index until it overshoots,
// then binary-searching the bracket it lands in. The rest of the lookup
// (upper bound, slicing) is unchanged either way.
func (c *Pco) GetRange(start, end int64) ([]sample.Sample, error) {
	lo := pcoLowerBound(c.samples, start)
	hi := searchFirstGT(c.samples, end)
	if lo >= hi {
		return nil, nil
	}
	out := make([]sample.Sample, hi-lo)
	copy(out, c.samples[lo:hi])
	return out, nil
}

// pcoLowerBound is searchFirstGE, but picks exponential search over binary
// search once the buffer is large and the target lands early in its span.
func pcoLowerBound(samples []sample.Sample, ts int64) int {
	n := len(samples)
	if n <= pcoExponentialSearchThreshold {
		return searchFirstGE(samples, ts)
	}
	first, last := samples[0].Timestamp, samples[n-1].Timestamp
	if last <= first {
		return searchFirstGE(samples, ts)
	}
	frac := float64(ts-first) / float64(last-first)
	if frac < 0 || frac >= pcoExponentialSearchFraction {
		return searchFirstGE(samples, ts)
	}
	return exponentialSearchGE(samples, ts)
}

// exponentialSearchGE doubles a probe bound until it brackets ts, then
// binary-searches within that bracket — O(log i) in the index of the
// answer rather than O(log n), which wins when the answer sits near the
// front of a very large buffer.
func exponentialSearchGE(samples []sample.Sample, ts int64) int {
	n := len(samples)
	if n == 0 || samples[0].Timestamp >= ts {
		return 0
	}
	bound := 1
	for bound < n && samples[bound].Timestamp < ts {
		bound *= 2
	}
	lo := bound / 2
	hi := bound
	if hi > n {
		hi = n
	}
	return lo + sort.Search(hi-lo, func(i int) bool { return samples[lo+i].Timestamp >= ts })
}

func (c *Pco) RangeIter(start, end int64) SampleIterator {
	lo := pcoLowerBound(c.samples, start)
	hi := searchFirstGT(c.samples, end)
	if lo >= hi {
		return newSliceIterator(nil)
	}
	return newSliceIterator(c.samples[lo:hi])
}

func (c *Pco) RemoveRange(start, end int64) (int, error) {
	lo := searchFirstGE(c.samples, start)
	hi := searchFirstGT(c.samples, end)
	if lo >= hi {
		return 0, nil
	}
	n := hi - lo
	c.samples = append(c.samples[:lo], c.samples[hi:]...)
	return n, nil
}

func (c *Pco) MergeSamples(samples []sample.Sample, policy sample.DuplicatePolicy) ([]sample.AddResult, error) {
	merged, results := mergeResult(c.samples, samples, policy)
	for pcoEncodedSize(merged) > c.maxSize && len(merged) > len(c.samples) {
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

func (c *Pco) SetData(samples []sample.Sample) error {
	if pcoEncodedSize(samples) > c.maxSize {
		return tserr.ErrCapacityFull()
	}
	c.samples = append([]sample.Sample(nil), samples...)
	return nil
}

func (c *Pco) Split() (Chunk, error) {
	n := len(c.samples)
	mid := n / 2
	right, err := NewPco(c.maxSize)
	if err != nil {
		return nil, err
	}
	right.samples = append([]sample.Sample(nil), c.samples[mid:]...)
	c.samples = c.samples[:mid:mid]
	debug.Assert(len(c.samples)+len(right.samples) == n, "split must conserve sample count")
	return right, nil
}

func (c *Pco) Serialize(buf []byte) []byte {
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

	tsBytes, valBytes, _ := encodePcoBuffers(c.samples)
	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(tsBytes)))
	buf = append(buf, tmp[:4]...)
	buf = append(buf, tsBytes...)
	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(valBytes)))
	buf = append(buf, tmp[:4]...)
	buf = append(buf, valBytes...)
	return buf
}

func (c *Pco) Clone() Chunk {
	return &Pco{maxSize: c.maxSize, samples: append([]sample.Sample(nil), c.samples...)}
}

// DeserializePco reads the layout Serialize writes: header, then the
// length-prefixed timestamp buffer, then the length-prefixed value buffer.
func DeserializePco(buf []byte) (*Pco, []byte, error) {
	if len(buf) < pcoHeaderSize {
		return nil, nil, tserr.ErrCannotDeserialize(nil)
	}
	maxSize := int(binary.LittleEndian.Uint32(buf[:4]))
	count := int(binary.LittleEndian.Uint32(buf[4:8]))
	buf = buf[8+8+8+8:]

	tsBytes, buf, err := readLengthPrefixed(buf)
	if err != nil {
		return nil, nil, err
	}
	valBytes, buf, err := readLengthPrefixed(buf)
	if err != nil {
		return nil, nil, err
	}

	samples, err := decodePcoBuffers(tsBytes, valBytes, count)
	if err != nil {
		return nil, nil, err
	}
	c, err := NewPco(maxSize)
	if err != nil {
		return nil, nil, err
	}
	c.samples = samples
	return c, buf, nil
}

func readLengthPrefixed(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, tserr.ErrCannotDeserialize(nil)
	}
	n := int(binary.LittleEndian.Uint32(buf[:4]))
	buf = buf[4:]
	if len(buf) < n {
		return nil, nil, tserr.ErrCannotDeserialize(nil)
	}
	return buf[:n], buf[n:], nil
}

// encodePcoBuffers produces the two independent compressed buffers:
// timestamps via delta-of-delta, values via XOR. Above
// pcoParallelThreshold samples the two buffers are built concurrently —
// they share no state, so this is the natural two-way split for
// errgroup-based parallelism (section 4.1.3, section 9).
func encodePcoBuffers(samples []sample.Sample) (tsBytes, valBytes []byte, err error) {
	if len(samples) == 0 {
		return nil, nil, nil
	}
	if len(samples) < pcoParallelThreshold {
		return encodePcoTimestamps(samples), encodePcoValues(samples), nil
	}
	var g errgroup.Group
	g.Go(func() error {
		tsBytes = encodePcoTimestamps(samples)
		return nil
	})
	g.Go(func() error {
		valBytes = encodePcoValues(samples)
		return nil
	})
	_ = g.Wait()
	return tsBytes, valBytes, nil
}

func decodePcoBuffers(tsBytes, valBytes []byte, count int) ([]sample.Sample, error) {
	if count == 0 {
		return nil, nil
	}
	var timestamps []int64
	var values []float64
	var tsErr, valErr error
	if count < pcoParallelThreshold {
		timestamps, tsErr = decodePcoTimestamps(tsBytes, count)
		if tsErr == nil {
			values, valErr = decodePcoValues(valBytes, count)
		}
	} else {
		var g errgroup.Group
		g.Go(func() error {
			timestamps, tsErr = decodePcoTimestamps(tsBytes, count)
			return tsErr
		})
		g.Go(func() error {
			values, valErr = decodePcoValues(valBytes, count)
			return valErr
		})
		_ = g.Wait()
	}
	if tsErr != nil {
		return nil, tsErr
	}
	if valErr != nil {
		return nil, valErr
	}
	out := make([]sample.Sample, count)
	for i := range out {
		out[i] = sample.Sample{Timestamp: timestamps[i], Value: values[i]}
	}
	return out, nil
}

// encodePcoTimestamps delta-of-delta encodes the timestamp column alone
// (order-2 differencing): the first timestamp raw, every later one as the
// dod of consecutive deltas, reusing Gorilla's bit-packed dod code
// (section 4.1.3's "signed-integer timestamp buffer, delta-encoded").
func encodePcoTimestamps(samples []sample.Sample) []byte {
	w := &bitWriter{}
	w.writeBits(uint64(samples[0].Timestamp), 64)
	var prevDelta int64
	prevTS := samples[0].Timestamp
	for i := 1; i < len(samples); i++ {
		ts := samples[i].Timestamp
		delta := ts - prevTS
		writeDod(w, delta-prevDelta)
		prevDelta = delta
		prevTS = ts
	}
	return w.bytes()
}

func decodePcoTimestamps(buf []byte, count int) ([]int64, error) {
	r := newBitReader(buf)
	firstBits, ok := r.readBits(64)
	if !ok {
		return nil, tserr.ErrCannotDecompress(nil)
	}
	out := make([]int64, count)
	out[0] = int64(firstBits)
	var prevDelta int64
	prevTS := out[0]
	for i := 1; i < count; i++ {
		dod, ok := readDod(r)
		if !ok {
			return nil, tserr.ErrCannotDecompress(nil)
		}
		delta := prevDelta + dod
		ts := prevTS + delta
		out[i] = ts
		prevDelta = delta
		prevTS = ts
	}
	return out, nil
}

// encodePcoValues XOR-encodes the value column alone (a 64-bit float
// buffer): the first value raw, every later one as a changed-bit plus
// (leading zeros, run length, bits) when it differs from its predecessor
// (section 4.1.3's "64-bit float value buffer").
func encodePcoValues(samples []sample.Sample) []byte {
	w := &bitWriter{}
	w.writeBits(mathFloatBits(samples[0].Value), 64)
	prevValue := samples[0].Value
	for i := 1; i < len(samples); i++ {
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
			w.writeBits(uint64(length-1), 6)
			w.writeBits(xor>>uint(trail), length)
		}
		prevValue = v
	}
	return w.bytes()
}

func decodePcoValues(buf []byte, count int) ([]float64, error) {
	r := newBitReader(buf)
	firstBits, ok := r.readBits(64)
	if !ok {
		return nil, tserr.ErrCannotDecompress(nil)
	}
	out := make([]float64, count)
	out[0] = floatFromBits(firstBits)
	prevValue := out[0]
	for i := 1; i < count; i++ {
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
		out[i] = value
		prevValue = value
	}
	return out, nil
}
