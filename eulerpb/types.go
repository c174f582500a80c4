// Package eulerpb defines the wire messages of spec §6 (wire tensor, wire
// DAG node/DAG, the Execute RPC request/reply) and the gRPC service that
// carries them.
//
// The original implementation speaks gRPC with hand-rolled protobuf
// (original_source/euler/client/grpc_channel.cc, grpc_manager.cc); this
// rewrite keeps gRPC as the transport but carries these messages with a
// custom grpc.Codec (codec.go) instead of protoc-generated bindings, so
// the wire schema lives in one ordinary Go file instead of a generated
// one. Field names and shapes match §6 exactly.
package eulerpb

// TensorShapeProto is the dims vector of a wire tensor.
type TensorShapeProto struct {
	Dims []int64 `json:"dims"`
}

// TensorProto is the §6 "wire tensor".
type TensorProto struct {
	Name          string            `json:"name"`
	Dtype         int32             `json:"dtype"`
	TensorShape   *TensorShapeProto `json:"tensor_shape"`
	TensorContent []byte            `json:"tensor_content"`
}

// DAGNodeProto is the §6 "wire DAG node". The REMOTE-only fields
// (ShardIdx, InnerNodes, OutputList, RemoteOutputList) are populated only
// when Op == "REMOTE".
type DAGNodeProto struct {
	Name   string `json:"name"` // globally-unique "<op_name>,<id>"
	Op     string `json:"op"`
	OpAlias string `json:"op_alias"`

	Inputs      []string `json:"inputs"` // "<src_name>,<src_id>:<src_slot>" or a bare external tensor name
	Dnf         []string `json:"dnf"`    // each a comma-joined conjunction of "field op value" terms
	PostProcess []string `json:"post_process"`

	OutputNum int32 `json:"output_num"`

	UDFName      string    `json:"udf_name"`
	UDFStrParams []string  `json:"udf_str_params"`
	UDFNumParams []float64 `json:"udf_num_params"`

	ShardIdx         int32           `json:"shard_idx,omitempty"`
	InnerNodes       []*DAGNodeProto `json:"inner_nodes,omitempty"`
	OutputList       []string        `json:"output_list,omitempty"`
	RemoteOutputList []string        `json:"remote_output_list,omitempty"`
}

// DAGProto is the §6 "wire DAG": a name plus nodes in any order (topology
// is recovered from Inputs).
type DAGProto struct {
	Name  string          `json:"name"`
	Nodes []*DAGNodeProto `json:"nodes"`
}

// ExecuteRequest is the §6 Execute RPC request.
type ExecuteRequest struct {
	Inputs  []*TensorProto `json:"inputs"`
	Graph   *DAGProto      `json:"graph"`
	Outputs []string       `json:"outputs"`
}

// ExecuteReply is the §6 Execute RPC reply: outputs in the order requested.
type ExecuteReply struct {
	Outputs []*TensorProto `json:"outputs"`
}
