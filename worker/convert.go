package worker

import (
	"github.com/euler-graph/euler/eulerpb"
	"github.com/euler-graph/euler/status"
	"github.com/euler-graph/euler/tensor"
)

func shapeFromWire(p *eulerpb.TensorShapeProto) tensor.Shape {
	if p == nil {
		return nil
	}
	return tensor.Shape(p.Dims)
}

func shapeToWire(s tensor.Shape) *eulerpb.TensorShapeProto {
	return &eulerpb.TensorShapeProto{Dims: []int64(s)}
}

// tensorFromWire decodes one wire tensor (§6 TensorProto) into a
// tensor.Tensor, using DecodeContent since dtype/shape already arrive as
// separate fields.
func tensorFromWire(p *eulerpb.TensorProto) (*tensor.Tensor, error) {
	t, err := tensor.DecodeContent(tensor.DType(p.Dtype), shapeFromWire(p.TensorShape), p.TensorContent)
	if err != nil {
		return nil, status.Wrap(status.ProtoError, err, "decode wire tensor %q", p.Name)
	}
	return t, nil
}

// tensorToWire encodes a tensor.Tensor as a wire tensor under name.
func tensorToWire(name string, t *tensor.Tensor) *eulerpb.TensorProto {
	return &eulerpb.TensorProto{
		Name:          name,
		Dtype:         int32(t.DType),
		TensorShape:   shapeToWire(t.Shape),
		TensorContent: tensor.EncodeContent(t),
	}
}
