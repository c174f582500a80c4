// Package worker implements the Worker Service (C9): the gRPC server
// every shard process runs, decoding one Execute RPC into a fresh
// tensor.Context, materializing its wire DAG, driving it through the
// Executor (C6), and encoding the requested outputs back onto the wire.
//
// Grounded on spec §4.9's five-step Execute contract and on the
// original's euler/core/framework/executor.cc's top-level Run entry
// point, reworked around eulerpb.WorkerServer instead of a raw gRPC
// service handler registered by hand.
package worker

import (
	"context"

	"github.com/euler-graph/euler/dag"
	"github.com/euler-graph/euler/elog"
	"github.com/euler-graph/euler/eulerpb"
	"github.com/euler-graph/euler/exec"
	"github.com/euler-graph/euler/status"
	"github.com/euler-graph/euler/tensor"
)

// Server implements eulerpb.WorkerServer: it owns the compute pool every
// query's Executor dispatches onto and the kernel registry that resolves
// each DAG node's op to a tensor.Kernel/AsyncKernel.
type Server struct {
	pool *exec.Pool
	reg  *tensor.Registry
}

// New builds a Server dispatching onto pool (shared across queries) and
// resolving ops via reg (tensor.Global() if nil).
func New(pool *exec.Pool, reg *tensor.Registry) *Server {
	if reg == nil {
		reg = tensor.Global()
	}
	return &Server{pool: pool, reg: reg}
}

// Execute implements spec §4.9: decode inputs, materialize the DAG, run
// it, encode the requested outputs, and free the context and DAG on
// every exit path -- including the error ones, since a shard process
// handles many queries over its lifetime and must not leak per-query
// tensors.
func (s *Server) Execute(ctx context.Context, req *eulerpb.ExecuteRequest) (*eulerpb.ExecuteReply, error) {
	tctx := tensor.NewContext()
	defer tctx.Close()

	for _, in := range req.Inputs {
		t, err := tensorFromWire(in)
		if err != nil {
			return nil, err
		}
		if err := tctx.InstallAlias(in.Name, t); err != nil {
			return nil, status.Wrap(status.Internal, err, "install input tensor %q", in.Name)
		}
		t.Release() // InstallAlias retained it; drop our construction reference
	}

	def, err := dag.FromWireDAG(req.Graph)
	if err != nil {
		return nil, status.Wrap(status.ProtoError, err, "decode wire dag %q", req.Graph.Name)
	}
	graph, err := dag.BuildGraph(def)
	if err != nil {
		return nil, status.Wrap(status.FailedPrecondition, err, "build graph %q", def.Name)
	}

	e := exec.New(graph, s.pool, tctx, s.reg)
	if err := e.Run(ctx); err != nil {
		elog.Errorf("[%s] query %q failed: %v", elog.SModuleWorker, def.Name, err)
		return nil, err
	}

	reply := &eulerpb.ExecuteReply{Outputs: make([]*eulerpb.TensorProto, 0, len(req.Outputs))}
	for _, name := range req.Outputs {
		t, err := tctx.Get(name)
		if err != nil {
			return nil, status.Wrap(status.Internal, err, "requested output %q was never produced", name)
		}
		reply.Outputs = append(reply.Outputs, tensorToWire(name, t))
	}
	return reply, nil
}
