package tensor

import (
	"encoding/binary"
	"math"

	"github.com/euler-graph/euler/status"
)

// asFloat64Slice decodes a non-string numeric tensor's raw row-major bytes
// into float64s, for consumers (e.g. ToTFExample) that don't care about
// the original width.
func asFloat64Slice(t *Tensor) ([]float64, error) {
	n := int(t.Shape.NumElements())
	out := make([]float64, n)
	switch t.DType {
	case F32:
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(t.data[i*4:])
			out[i] = float64(math.Float32frombits(bits))
		}
	case F64:
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint64(t.data[i*8:])
			out[i] = math.Float64frombits(bits)
		}
	default:
		return nil, status.New(status.InvalidArgument, "dtype %s is not floating point", t.DType)
	}
	return out, nil
}

// asInt64Slice decodes a non-string integral (or bool) tensor into int64s.
func asInt64Slice(t *Tensor) ([]int64, error) {
	n := int(t.Shape.NumElements())
	out := make([]int64, n)
	sz := elementSize[t.DType]
	for i := 0; i < n; i++ {
		off := i * sz
		switch t.DType {
		case I8, U8, Bool:
			out[i] = int64(t.data[off])
		case I16, U16:
			out[i] = int64(binary.LittleEndian.Uint16(t.data[off:]))
		case I32, U32:
			out[i] = int64(binary.LittleEndian.Uint32(t.data[off:]))
		case I64, U64:
			out[i] = int64(binary.LittleEndian.Uint64(t.data[off:]))
		default:
			return nil, status.New(status.InvalidArgument, "dtype %s is not integral", t.DType)
		}
	}
	return out, nil
}
