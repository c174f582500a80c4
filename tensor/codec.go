package tensor

import (
	"encoding/binary"

	"github.com/klauspost/compress/s2"

	"github.com/euler-graph/euler/status"
)

// Encode serializes a tensor to the wire format of spec §4.1: a dtype tag,
// a dims vector, then tensor_content. String tensors encode each element
// as a u32 length followed by raw bytes, in row-major order.
func Encode(t *Tensor) ([]byte, error) {
	buf := make([]byte, 0, 16+len(t.Shape)*8)
	buf = append(buf, byte(t.DType))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Shape)))
	for _, d := range t.Shape {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(d))
	}
	if t.DType == String {
		for _, s := range t.strs {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
			buf = append(buf, s...)
		}
		return buf, nil
	}
	buf = append(buf, t.data...)
	return buf, nil
}

// EncodeContent serializes just the payload (no dtype/dims prefix), for
// transports -- like the §6 TensorProto -- that carry dtype and shape as
// separate fields and want tensor_content to be the raw body only.
func EncodeContent(t *Tensor) []byte {
	if t.DType == String {
		var buf []byte
		for _, s := range t.strs {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
			buf = append(buf, s...)
		}
		return buf
	}
	return append([]byte(nil), t.data...)
}

// DecodeContent is the inverse of EncodeContent, given the dtype/shape out
// of band (as §6's TensorProto carries them).
func DecodeContent(dtype DType, shape Shape, content []byte) (*Tensor, error) {
	t := &Tensor{Shape: shape, DType: dtype, Allocator: "default"}
	n := int32(1)
	t.refs = &n

	if dtype == String {
		num := shape.NumElements()
		strs := make([]string, num)
		off := 0
		for i := int64(0); i < num; i++ {
			if off+4 > len(content) {
				return nil, status.New(status.ProtoError, "tensor content truncated in string length")
			}
			l := int(binary.LittleEndian.Uint32(content[off : off+4]))
			off += 4
			if off+l > len(content) {
				return nil, status.New(status.ProtoError, "tensor content truncated in string payload")
			}
			strs[i] = string(content[off : off+l])
			off += l
		}
		t.strs = strs
		return t, nil
	}

	want := int(ByteSize(dtype, shape))
	if want != len(content) {
		return nil, status.New(status.ProtoError, "tensor content length %d does not match shape byte size %d", len(content), want)
	}
	t.data = append([]byte(nil), content...)
	return t, nil
}

// EncodeCompressed is Encode followed by S2 (a Snappy-compatible,
// faster-decoding block format) compression, for shipping large tensors --
// §4.1's bulk GET_NODE/GET_EDGE payloads in particular -- over the shard
// RPC channel without paying gRPC's own (general-purpose, weaker) framing
// compression.
func EncodeCompressed(t *Tensor) ([]byte, error) {
	raw, err := Encode(t)
	if err != nil {
		return nil, err
	}
	return s2.Encode(nil, raw), nil
}

// DecodeCompressed is the inverse of EncodeCompressed.
func DecodeCompressed(wire []byte) (*Tensor, error) {
	raw, err := s2.Decode(nil, wire)
	if err != nil {
		return nil, status.Wrap(status.ProtoError, err, "tensor: s2 decompress")
	}
	return Decode(raw)
}

// Decode is the inverse of Encode; it allocates a fresh, owning tensor.
func Decode(wire []byte) (*Tensor, error) {
	if len(wire) < 5 {
		return nil, status.New(status.ProtoError, "tensor wire buffer too short")
	}
	dtype := DType(wire[0])
	ndims := int(binary.LittleEndian.Uint32(wire[1:5]))
	off := 5
	shape := make(Shape, ndims)
	for i := 0; i < ndims; i++ {
		if off+8 > len(wire) {
			return nil, status.New(status.ProtoError, "tensor wire buffer truncated in dims")
		}
		shape[i] = int64(binary.LittleEndian.Uint64(wire[off : off+8]))
		off += 8
	}

	t := &Tensor{Shape: shape, DType: dtype, Allocator: "default"}
	n := int32(1)
	t.refs = &n

	if dtype == String {
		n := shape.NumElements()
		strs := make([]string, n)
		for i := int64(0); i < n; i++ {
			if off+4 > len(wire) {
				return nil, status.New(status.ProtoError, "tensor wire buffer truncated in string length")
			}
			l := int(binary.LittleEndian.Uint32(wire[off : off+4]))
			off += 4
			if off+l > len(wire) {
				return nil, status.New(status.ProtoError, "tensor wire buffer truncated in string payload")
			}
			// copy: the wire buffer may be reused/pooled by the caller.
			strs[i] = string(wire[off : off+l])
			off += l
		}
		t.strs = strs
		return t, nil
	}

	want := int(ByteSize(dtype, shape))
	if off+want > len(wire) {
		return nil, status.New(status.ProtoError, "tensor wire buffer truncated in content")
	}
	t.data = append([]byte(nil), wire[off:off+want]...)
	return t, nil
}
