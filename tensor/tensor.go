// Package tensor implements Euler's typed, reference-counted buffers (C1)
// and the op-kernel registry/context that operators run against.
//
// Grounded on aistore's own buffer discipline (cmn/cos shared-ownership
// helpers, memsys.Slab pooled allocations) generalized from byte slabs to
// typed tensors, and on github.com/NVIDIA/go-tfdata for the TF interop
// helper in tfexport.go.
package tensor

import (
	"fmt"
	"sync/atomic"

	"github.com/euler-graph/euler/status"
)

// DType is a primitive element type, drawn from spec §3's closed set.
type DType int

const (
	I8 DType = iota
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F32
	F64
	Bool
	String
)

func (d DType) String() string {
	names := [...]string{"i8", "i16", "i32", "i64", "u8", "u16", "u32", "u64", "f32", "f64", "bool", "string"}
	if int(d) < len(names) {
		return names[d]
	}
	return "unknown"
}

// sizeOfPointer models the source's "string elements are addressed by
// pointer" rule (spec §4.1): on a 64-bit target a string element occupies
// the size of a pointer in the backing row, while its payload is an
// independent, separately-owned allocation.
const sizeOfPointer = 8

// elementSize is the fixed size-of table from spec §4.1.
var elementSize = map[DType]int{
	I8: 1, I16: 2, I32: 4, I64: 8,
	U8: 1, U16: 2, U32: 4, U64: 8,
	F32: 4, F64: 8, Bool: 1,
	String: sizeOfPointer,
}

// Shape is an ordered sequence of non-negative extents.
type Shape []int64

// NumElements returns the product of all dims (1 for a scalar/empty shape).
func (s Shape) NumElements() int64 {
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return n
}

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Tensor is a shared-ownership buffer. A view shares refcount and payload
// storage with its Parent and must not free strings on destruction; the
// owner that allocated the strings does.
type Tensor struct {
	Shape     Shape
	DType     DType
	Allocator string // allocator identity, e.g. "default", "pooled:page"

	data    []byte   // non-string payload, row-major
	strs    []string // string payload, only valid when DType == String
	Parent  *Tensor  // non-nil for a non-owning view
	refs    *int32   // shared refcount cell; nil for an unmanaged (borrowed) tensor
}

// New allocates an owning tensor of the given shape/type with a fresh
// refcount of 1.
func New(dtype DType, shape Shape, allocator string) *Tensor {
	t := &Tensor{Shape: shape, DType: dtype, Allocator: allocator}
	n := int32(1)
	t.refs = &n
	if dtype == String {
		t.strs = make([]string, shape.NumElements())
	} else {
		t.data = make([]byte, ByteSize(dtype, shape))
	}
	return t
}

// ByteSize computes num_elements * size_of(type) for non-string dtypes, as
// required by spec §3's invariant. It is undefined (and unused) for String.
func ByteSize(dtype DType, shape Shape) int64 {
	return shape.NumElements() * int64(elementSize[dtype])
}

// View creates a non-owning tensor over a sub-range of parent's storage,
// sharing its refcount cell. Per spec §3, a view's lifetime is a sub-range
// of its parent's: Retain/Release on the view affect the shared counter,
// but the view's own destructor (see Release) never frees string payloads.
func (t *Tensor) View(shape Shape, byteOffset int64) *Tensor {
	v := &Tensor{Shape: shape, DType: t.DType, Allocator: t.Allocator, Parent: t, refs: t.refs}
	if t.DType == String {
		elemOff := byteOffset / sizeOfPointer
		v.strs = t.strs[elemOff : elemOff+shape.NumElements()]
	} else {
		v.data = t.data[byteOffset : byteOffset+ByteSize(t.DType, shape)]
	}
	atomic.AddInt32(t.refs, 1)
	return v
}

// Retain increments the shared refcount (used when installing the same
// underlying buffer under a second alias name in an OpKernelContext).
func (t *Tensor) Retain() { atomic.AddInt32(t.refs, 1) }

// Release decrements the shared refcount. The backing storage (and, for an
// owning string tensor, its per-element payloads) is freed exactly once,
// when the count reaches zero, regardless of how many aliases pointed at
// it -- this is the dedup behaviour OpKernelContext.Deallocate relies on.
func (t *Tensor) Release() {
	if atomic.AddInt32(t.refs, -1) > 0 {
		return
	}
	t.data = nil
	t.strs = nil
}

// Bytes returns the raw row-major payload for a non-string tensor.
func (t *Tensor) Bytes() []byte { return t.data }

// Strings returns the per-element string payload. Valid only for DType==String.
func (t *Tensor) Strings() []string { return t.strs }

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor<%s%v>", t.DType, []int64(t.Shape))
}

// checkCompatible validates the invariants from spec §3 before install.
func checkCompatible(dtype DType, shape Shape) error {
	if dtype != String && ByteSize(dtype, shape) < 0 {
		return status.New(status.InvalidArgument, "negative byte size for shape %v", shape)
	}
	return nil
}
