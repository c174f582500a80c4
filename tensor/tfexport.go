package tensor

import (
	"github.com/NVIDIA/go-tfdata/tfdata/core"
	"github.com/euler-graph/euler/status"
)

// ToTFExample packages a named set of output tensors into a tfdata
// Example, the interop point for Euler's Python/TF consumers (spec §1
// excludes the bindings themselves, not a helper that hands off to them).
// Numeric and string tensors of any shape are written as one flat feature
// list in row-major order (the shape itself is not recorded), with f64
// values narrowed to float32; a dtype with no feature mapping is rejected.
func ToTFExample(outputs map[string]*Tensor) (*core.TFExample, error) {
	ex := core.NewTFExample()
	for name, t := range outputs {
		if err := setFeature(ex, name, t); err != nil {
			return nil, status.Wrap(status.InvalidArgument, err, "tensor %q to tf feature", name)
		}
	}
	return ex, nil
}

func setFeature(ex *core.TFExample, name string, t *Tensor) error {
	switch t.DType {
	case String:
		vals := make([][]byte, len(t.strs))
		for i, s := range t.strs {
			vals[i] = []byte(s)
		}
		ex.AddBytesList(name, vals)
		return nil
	case F32, F64:
		vals64, err := asFloat64Slice(t)
		if err != nil {
			return err
		}
		vals := make([]float32, len(vals64))
		for i, v := range vals64 {
			vals[i] = float32(v)
		}
		ex.AddFloatList(name, vals)
		return nil
	case I8, I16, I32, I64, U8, U16, U32, U64, Bool:
		vals, err := asInt64Slice(t)
		if err != nil {
			return err
		}
		ex.AddInt64List(name, vals)
		return nil
	default:
		return status.New(status.Unimplemented, "dtype %s has no tf feature mapping", t.DType)
	}
}
