package remoteop

import (
	"github.com/euler-graph/euler/eulerpb"
	"github.com/euler-graph/euler/status"
	"github.com/euler-graph/euler/tensor"
)

func tensorToWire(name string, t *tensor.Tensor) *eulerpb.TensorProto {
	return &eulerpb.TensorProto{
		Name:          name,
		Dtype:         int32(t.DType),
		TensorShape:   &eulerpb.TensorShapeProto{Dims: []int64(t.Shape)},
		TensorContent: tensor.EncodeContent(t),
	}
}

func tensorFromWire(p *eulerpb.TensorProto) (*tensor.Tensor, error) {
	var shape tensor.Shape
	if p.TensorShape != nil {
		shape = tensor.Shape(p.TensorShape.Dims)
	}
	t, err := tensor.DecodeContent(tensor.DType(p.Dtype), shape, p.TensorContent)
	if err != nil {
		return nil, status.Wrap(status.ProtoError, err, "decode remote reply tensor %q", p.Name)
	}
	return t, nil
}
