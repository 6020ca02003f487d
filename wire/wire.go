// Package wire implements the length-framed structured encoding used to
// move a multi-range request/response across a simulated RPC boundary
// (section 4.7, 6.2). Encoding is hand-written against the msgp runtime
// (github.com/tinylib/msgp/msgp) rather than generated, and an optional
// LZ4 frame wraps the serialized body.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/pierrec/lz4/v3"
	"github.com/tinylib/msgp/msgp"

	"github.com/nvaistore-labs/tscore/chunk"
	"github.com/nvaistore-labs/tscore/internal/tserr"
	"github.com/nvaistore-labs/tscore/sample"
)

// ProtocolVersion is bumped whenever the wire layout changes incompatibly.
const ProtocolVersion uint8 = 1

type MatcherOp uint8

const (
	MatchEqual MatcherOp = iota
	MatchNotEqual
	MatchRegexp
	MatchNotRegexp
)

type Matcher struct {
	Name  string
	Op    MatcherOp
	Value string
}

func (m Matcher) appendMsg(b []byte) []byte {
	b = msgp.AppendArrayHeader(b, 3)
	b = msgp.AppendString(b, m.Name)
	b = msgp.AppendUint8(b, uint8(m.Op))
	b = msgp.AppendString(b, m.Value)
	return b
}

func readMatcher(b []byte) (Matcher, []byte, error) {
	var m Matcher
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil || n != 3 {
		return m, b, tserr.ErrCannotDeserialize(err)
	}
	m.Name, b, err = msgp.ReadStringBytes(b)
	if err != nil {
		return m, b, tserr.ErrCannotDeserialize(err)
	}
	op, b, err := msgp.ReadUint8Bytes(b)
	if err != nil {
		return m, b, tserr.ErrCannotDeserialize(err)
	}
	m.Op = MatcherOp(op)
	m.Value, b, err = msgp.ReadStringBytes(b)
	if err != nil {
		return m, b, tserr.ErrCannotDeserialize(err)
	}
	return m, b, nil
}

// SampleDataVersion is SampleData's own payload version, independent of
// the envelope-level ProtocolVersion (section 4.7).
const SampleDataVersion uint32 = 1

// SampleData carries one series' whole chunk as compressed bytes: the
// output of chunk.TimeSeriesChunk.Serialize, plus a CompressionTag that
// must match the encoding byte embedded in Bytes (section 4.7, section
// 6.2's timestamp_bytes/value_bytes-bearing blob).
type SampleData struct {
	Version        uint32
	CompressionTag uint8
	Bytes          []byte
}

// NewSampleData serializes c into a wire-ready SampleData.
func NewSampleData(c *chunk.TimeSeriesChunk) SampleData {
	return SampleData{
		Version:        SampleDataVersion,
		CompressionTag: uint8(c.Encoding),
		Bytes:          c.Serialize(nil),
	}
}

// Chunk deserializes Bytes back into a TimeSeriesChunk, first checking
// CompressionTag against the encoding byte embedded in Bytes — a mismatch
// is a protocol error, not a decode error, since the bytes may well decode
// fine under the (wrong) tag the envelope claims.
func (s SampleData) Chunk() (*chunk.TimeSeriesChunk, error) {
	if len(s.Bytes) == 0 {
		return nil, nil
	}
	if chunk.Encoding(s.Bytes[0]) != chunk.Encoding(s.CompressionTag) {
		return nil, tserr.ErrInvalidCompression(s.Bytes[0])
	}
	c, _, err := chunk.Deserialize(s.Bytes)
	return c, err
}

func (s SampleData) appendMsg(b []byte) []byte {
	b = msgp.AppendArrayHeader(b, 3)
	b = msgp.AppendUint32(b, s.Version)
	b = msgp.AppendUint8(b, s.CompressionTag)
	b = msgp.AppendBytes(b, s.Bytes)
	return b
}

func readSampleData(b []byte) (SampleData, []byte, error) {
	var s SampleData
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil || n != 3 {
		return s, b, tserr.ErrCannotDeserialize(err)
	}
	s.Version, b, err = msgp.ReadUint32Bytes(b)
	if err != nil {
		return s, b, tserr.ErrCannotDeserialize(err)
	}
	s.CompressionTag, b, err = msgp.ReadUint8Bytes(b)
	if err != nil {
		return s, b, tserr.ErrCannotDeserialize(err)
	}
	s.Bytes, b, err = msgp.ReadBytesBytes(b, nil)
	if err != nil {
		return s, b, tserr.ErrCannotDeserialize(err)
	}
	return s, b, nil
}

// SeriesChunk is one series' contribution to a MultiRangeResponse: an
// optional key (identifies the series, or the joined source keys of a
// grouped row), an optional group_label_value (set only for grouped rows),
// its labels, and its compressed sample data (section 4.7).
type SeriesChunk struct {
	Key             string
	GroupLabelValue *string
	Labels          []sample.Label
	Data            SampleData
}

func (s SeriesChunk) appendMsg(b []byte) []byte {
	b = msgp.AppendArrayHeader(b, 5)
	b = msgp.AppendString(b, s.Key)
	hasGroup := s.GroupLabelValue != nil
	b = msgp.AppendBool(b, hasGroup)
	groupValue := ""
	if hasGroup {
		groupValue = *s.GroupLabelValue
	}
	b = msgp.AppendString(b, groupValue)
	b = msgp.AppendArrayHeader(b, uint32(len(s.Labels)))
	for _, l := range s.Labels {
		b = msgp.AppendArrayHeader(b, 2)
		b = msgp.AppendString(b, l.Name)
		b = msgp.AppendString(b, l.Value)
	}
	b = s.Data.appendMsg(b)
	return b
}

func readSeriesChunk(b []byte) (SeriesChunk, []byte, error) {
	var sc SeriesChunk
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil || n != 5 {
		return sc, b, tserr.ErrCannotDeserialize(err)
	}
	sc.Key, b, err = msgp.ReadStringBytes(b)
	if err != nil {
		return sc, b, tserr.ErrCannotDeserialize(err)
	}
	hasGroup, b, err := msgp.ReadBoolBytes(b)
	if err != nil {
		return sc, b, tserr.ErrCannotDeserialize(err)
	}
	groupValue, b, err := msgp.ReadStringBytes(b)
	if err != nil {
		return sc, b, tserr.ErrCannotDeserialize(err)
	}
	if hasGroup {
		sc.GroupLabelValue = &groupValue
	}
	nlabels, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return sc, b, tserr.ErrCannotDeserialize(err)
	}
	sc.Labels = make([]sample.Label, nlabels)
	for i := range sc.Labels {
		n, rest, err := msgp.ReadArrayHeaderBytes(b)
		b = rest
		if err != nil || n != 2 {
			return sc, b, tserr.ErrCannotDeserialize(err)
		}
		sc.Labels[i].Name, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return sc, b, tserr.ErrCannotDeserialize(err)
		}
		sc.Labels[i].Value, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return sc, b, tserr.ErrCannotDeserialize(err)
		}
	}
	sc.Data, b, err = readSampleData(b)
	if err != nil {
		return sc, b, err
	}
	return sc, b, nil
}

// MultiRangeRequest is the coordinator-to-node request (section 4.7).
type MultiRangeRequest struct {
	Version  uint8
	Start    int64
	End      int64
	Matchers []Matcher
}

func (r MultiRangeRequest) MarshalMsg() []byte {
	b := msgp.AppendArrayHeader(nil, 4)
	b = msgp.AppendUint8(b, r.Version)
	b = msgp.AppendInt64(b, r.Start)
	b = msgp.AppendInt64(b, r.End)
	b = msgp.AppendArrayHeader(b, uint32(len(r.Matchers)))
	for _, m := range r.Matchers {
		b = m.appendMsg(b)
	}
	return b
}

func UnmarshalMultiRangeRequest(b []byte) (MultiRangeRequest, error) {
	var r MultiRangeRequest
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil || n != 4 {
		return r, tserr.ErrCannotDeserialize(err)
	}
	r.Version, b, err = msgp.ReadUint8Bytes(b)
	if err != nil {
		return r, tserr.ErrCannotDeserialize(err)
	}
	if r.Version != ProtocolVersion {
		return r, tserr.ErrInvalidCompression(r.Version)
	}
	r.Start, b, err = msgp.ReadInt64Bytes(b)
	if err != nil {
		return r, tserr.ErrCannotDeserialize(err)
	}
	r.End, b, err = msgp.ReadInt64Bytes(b)
	if err != nil {
		return r, tserr.ErrCannotDeserialize(err)
	}
	nm, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return r, tserr.ErrCannotDeserialize(err)
	}
	r.Matchers = make([]Matcher, nm)
	for i := range r.Matchers {
		r.Matchers[i], b, err = readMatcher(b)
		if err != nil {
			return r, err
		}
	}
	return r, nil
}

// MultiRangeResponse is the node-to-coordinator reply.
type MultiRangeResponse struct {
	Version uint8
	Series  []SeriesChunk
}

func (r MultiRangeResponse) MarshalMsg() []byte {
	b := msgp.AppendArrayHeader(nil, 2)
	b = msgp.AppendUint8(b, r.Version)
	b = msgp.AppendArrayHeader(b, uint32(len(r.Series)))
	for _, s := range r.Series {
		b = s.appendMsg(b)
	}
	return b
}

func UnmarshalMultiRangeResponse(b []byte) (MultiRangeResponse, error) {
	var r MultiRangeResponse
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil || n != 2 {
		return r, tserr.ErrCannotDeserialize(err)
	}
	r.Version, b, err = msgp.ReadUint8Bytes(b)
	if err != nil {
		return r, tserr.ErrCannotDeserialize(err)
	}
	if r.Version != ProtocolVersion {
		return r, tserr.ErrInvalidCompression(r.Version)
	}
	ns, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return r, tserr.ErrCannotDeserialize(err)
	}
	r.Series = make([]SeriesChunk, ns)
	for i := range r.Series {
		r.Series[i], b, err = readSeriesChunk(b)
		if err != nil {
			return r, err
		}
	}
	return r, nil
}

// WriteFrame writes a 4-byte length-prefixed frame: [uint32 len][1-byte
// compression flag][body]. When compress is true the body is LZ4-framed.
func WriteFrame(w io.Writer, body []byte, compress bool) error {
	payload := body
	flag := byte(0)
	if compress {
		compressed, err := lz4Compress(body)
		if err != nil {
			return err
		}
		payload = compressed
		flag = 1
	}
	var header [5]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(payload)))
	header[4] = flag
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one frame written by WriteFrame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:4])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	if header[4] == 1 {
		return lz4Decompress(buf)
	}
	return buf, nil
}

func lz4Compress(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	var ht [1 << 16]int
	n, err := lz4.CompressBlock(src, dst, ht[:])
	if err != nil {
		return nil, tserr.Wrap(tserr.InvalidCompression, "lz4 compress", err)
	}
	if n == 0 {
		// Incompressible input: lz4 signals this by writing nothing: fall
		// back to storing the raw block behind the same original-length
		// prefix; lz4Decompress recognizes it by the body length matching
		// that prefix.
		out := make([]byte, 4+len(src))
		binary.BigEndian.PutUint32(out[:4], uint32(len(src)))
		copy(out[4:], src)
		return out, nil
	}
	out := make([]byte, 4+n)
	binary.BigEndian.PutUint32(out[:4], uint32(len(src)))
	copy(out[4:], dst[:n])
	return out, nil
}

func lz4Decompress(src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, tserr.ErrCannotDecompress(nil)
	}
	origLen := binary.BigEndian.Uint32(src[:4])
	body := src[4:]
	if uint32(len(body)) == origLen {
		// Raw-stored fallback from the incompressible-input path above.
		return body, nil
	}
	dst := make([]byte, origLen)
	n, err := lz4.UncompressBlock(body, dst)
	if err != nil {
		return nil, tserr.ErrCannotDecompress(err)
	}
	return dst[:n], nil
}
