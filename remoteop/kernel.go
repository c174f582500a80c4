// Package remoteop implements the Remote Operator (C10): the one
// AsyncKernel registered under dag.OpRemote, which ships a REMOTE node's
// Inner sub-DAG to the shard the Optimiser assigned it to (ShardIdx),
// waits for the reply, and installs the results back into the local
// tensor.Context under the node's RemoteOutputList aliases.
//
// Grounded on spec §4.5 ("Remote Operator") and, for the shape of
// forwarding one node's work across the wire to a shard, on the
// original's euler/client/remote_graph_shard.cc -- generalized from that
// file's fixed per-method RPCs (SampleNode, GetNodeFloat32Feature, ...)
// to the single generic Execute call spec §6 defines, since the Inner
// sub-DAG can contain any operator mix the Optimiser chose to fuse.
package remoteop

import (
	"context"
	"fmt"

	"github.com/euler-graph/euler/dag"
	"github.com/euler-graph/euler/eulerpb"
	"github.com/euler-graph/euler/shard"
	"github.com/euler-graph/euler/status"
	"github.com/euler-graph/euler/tensor"
)

// PoolLookup resolves a REMOTE node's ShardIdx to the shard.Pool serving
// it; the Session (C5) wires this from its shard_num worth of pools.
type PoolLookup func(shardIdx int) (*shard.Pool, error)

// Kernel is the Remote Operator.
type Kernel struct {
	pools PoolLookup
}

// New builds a Remote Operator kernel resolving shards via pools.
func New(pools PoolLookup) *Kernel { return &Kernel{pools: pools} }

// ComputeAsync implements tensor.AsyncKernel. node must be a *dag.NodeDef
// with Op == dag.OpRemote (the Executor only ever dispatches REMOTE nodes
// here, via the registry entry registered under that name).
func (k *Kernel) ComputeAsync(nodeIface tensor.NodeDef, ctx *tensor.Context, done func(error)) {
	node, ok := nodeIface.(*dag.NodeDef)
	if !ok || node.Op != dag.OpRemote {
		done(status.New(status.Internal, "remote operator invoked on non-REMOTE node %q", nodeIface.NodeName()))
		return
	}

	req, err := buildRequest(node, ctx)
	if err != nil {
		done(err)
		return
	}

	pool, err := k.pools(node.ShardIdx)
	if err != nil {
		done(status.Wrap(status.Unavailable, err, "remote operator: resolve shard %d", node.ShardIdx))
		return
	}

	go func() {
		reply, err := pool.Execute(context.Background(), req)
		if err != nil {
			done(status.Wrap(status.Unavailable, err, "remote operator: shard %d execute", node.ShardIdx))
			return
		}
		done(installReply(node, ctx, reply))
	}()
}

// externalWireName gives a boundary-crossing inner edge an unambiguous
// external wire name. FusionNodes rewrites every inner edge that leaves
// the Inner subset to EdgeDef{fused.Op, fused.ID, idx}; e.String() for
// that edge has the same "name,id:slot" shape dag.parseEdge uses for a
// genuine internal reference, and fused.ID never appears among the node
// ids shipped in this Inner sub-DAG -- so it must not reach the wire in
// that shape, or the worker will wait forever on a producer that will
// never run. A colon with no preceding comma parses as external
// regardless of content, so this shape can never collide with one of
// Inner's own "op,id:slot" node references.
func externalWireName(e dag.EdgeDef) string {
	if e.SrcID == dag.ExternalSrcID {
		return e.SrcName
	}
	return fmt.Sprintf("boundary:%s:%d:%d", e.SrcName, e.SrcID, e.SrcSlot)
}

// buildRequest assembles the ExecuteRequest for node: its Inner sub-DAG
// as the wire graph, node.OutputList as the requested outputs, and one
// input tensor per distinct edge inside Inner that points outside the
// Inner subset. idx (the rewritten edge's SrcSlot) is also the index
// into the fused node's own Inputs -- that is how an inner edge finds
// its value in the *outer* context, regardless of which shard replica
// (with its own, different, node ids) ends up executing this Inner
// slice. Wire node inputs are rebuilt explicitly (rather than via
// dag.ToWireDAG) so each boundary-crossing edge can be forced onto the
// wire under externalWireName instead of its ambiguous internal shape.
func buildRequest(node *dag.NodeDef, ctx *tensor.Context) (*eulerpb.ExecuteRequest, error) {
	innerIDs := make(map[int]bool, len(node.Inner))
	for _, in := range node.Inner {
		innerIDs[in.ID] = true
	}

	seen := make(map[string]bool)
	var inputs []*eulerpb.TensorProto
	wireNodes := make([]*eulerpb.DAGNodeProto, len(node.Inner))

	for ni, in := range node.Inner {
		wireInputs := make([]string, len(in.Inputs))
		for i, e := range in.Inputs {
			if e.SrcID != dag.ExternalSrcID && innerIDs[e.SrcID] {
				wireInputs[i] = e.String() // internal to the shipped Inner subgraph
				continue
			}

			wireName := externalWireName(e)
			wireInputs[i] = wireName
			if seen[wireName] {
				continue
			}
			seen[wireName] = true

			if e.SrcSlot < 0 || e.SrcSlot >= len(node.Inputs) {
				return nil, status.New(status.Internal, "remote operator: inner edge %q references out-of-range outer input slot %d", wireName, e.SrcSlot)
			}
			outerEdge := node.Inputs[e.SrcSlot]
			t, err := ctx.Get(outerEdge.String())
			if err != nil {
				return nil, status.Wrap(status.Internal, err, "remote operator: outer input %q feeding inner edge %q", outerEdge.String(), wireName)
			}
			inputs = append(inputs, tensorToWire(wireName, t))
		}
		wireNodes[ni] = dag.ToWireNode(in, wireInputs)
	}

	return &eulerpb.ExecuteRequest{
		Inputs: inputs,
		Graph: &eulerpb.DAGProto{
			Name:  fmt.Sprintf("%s-inner", node.NodeName()),
			Nodes: wireNodes,
		},
		Outputs: node.OutputList,
	}, nil
}

// installReply decodes each reply tensor, in the order requested, and
// installs it under the matching RemoteOutputList alias.
func installReply(node *dag.NodeDef, ctx *tensor.Context, reply *eulerpb.ExecuteReply) error {
	if len(reply.Outputs) != len(node.RemoteOutputList) {
		return status.New(status.Internal, "remote operator: expected %d outputs, got %d", len(node.RemoteOutputList), len(reply.Outputs))
	}
	for i, out := range reply.Outputs {
		t, err := tensorFromWire(out)
		if err != nil {
			return err
		}
		if err := ctx.InstallAlias(node.RemoteOutputList[i], t); err != nil {
			return status.Wrap(status.Internal, err, "remote operator: install output %q", node.RemoteOutputList[i])
		}
		t.Release()
	}
	return nil
}
