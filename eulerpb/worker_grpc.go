package eulerpb

import (
	"context"

	"google.golang.org/grpc"
)

// WorkerClient is the client-side stub for the §6 Execute RPC, in the
// shape grpc-go's codegen would produce.
type WorkerClient interface {
	Execute(ctx context.Context, in *ExecuteRequest, opts ...grpc.CallOption) (*ExecuteReply, error)
}

type workerClient struct {
	cc grpc.ClientConnInterface
}

// NewWorkerClient wraps a ClientConn (one of C7's replica channels) as a
// WorkerClient, defaulting every call to the JSON content-subtype.
func NewWorkerClient(cc grpc.ClientConnInterface) WorkerClient {
	return &workerClient{cc: cc}
}

func (c *workerClient) Execute(ctx context.Context, in *ExecuteRequest, opts ...grpc.CallOption) (*ExecuteReply, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(Name)}, opts...)
	out := new(ExecuteReply)
	err := c.cc.Invoke(ctx, "/euler.Worker/Execute", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WorkerServer is the server-side contract C9 implements.
type WorkerServer interface {
	Execute(context.Context, *ExecuteRequest) (*ExecuteReply, error)
}

func _Worker_Execute_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ExecuteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/euler.Worker/Execute"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WorkerServer).Execute(ctx, req.(*ExecuteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// WorkerServiceDesc is the service descriptor RegisterWorkerServer hands
// to a *grpc.Server, matching the shape protoc-gen-go-grpc emits.
var WorkerServiceDesc = grpc.ServiceDesc{
	ServiceName: "euler.Worker",
	HandlerType: (*WorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: _Worker_Execute_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "euler/worker.proto",
}

// RegisterWorkerServer registers an implementation of C9 on s.
func RegisterWorkerServer(s grpc.ServiceRegistrar, srv WorkerServer) {
	s.RegisterService(&WorkerServiceDesc, srv)
}
