package eulerpb

import (
	jsoniter "github.com/json-iterator/go"
	"google.golang.org/grpc/encoding"
)

// jsonCodec is a grpc.Codec (encoding.Codec) that marshals the plain Go
// structs in types.go instead of requiring protoc-generated proto.Message
// implementations. Registered under content-subtype "json"; clients opt
// in per-call (or via a default call option) with
// grpc.CallContentSubtype(Name). Uses jsoniter's ConfigCompatibleWithStandardLibrary
// rather than encoding/json directly: every ExecuteRequest/Reply carries a
// DAG's worth of tensors on the hot path, and jsoniter's reflection cache
// avoids re-walking struct tags on every call.
type jsonCodec struct{}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Name is the content-subtype negotiated on the wire
// ("application/grpc+json").
const Name = "json"

func (jsonCodec) Marshal(v any) ([]byte, error)      { return jsonAPI.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return jsonAPI.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return Name }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
