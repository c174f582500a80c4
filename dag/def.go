// Package dag implements Euler's two DAG representations (C2): a mutable
// build-time graph-with-attributes (DAGDef) used by the Translator and
// Optimiser, and an immutable execution Graph the Executor runs.
//
// Grounded on the original's euler/core/dag_def (DAGDef, NodeDef,
// sub-graph isomorphism) and euler/core/dag (the immutable runtime Node +
// Edge model), reworked from C++ pointer graphs into Go maps/slices with
// explicit error returns instead of CHECK-fail macros.
package dag

import (
	"fmt"
)

// EdgeDef is one input wire of a NodeDef: (src_name, src_id, src_slot).
// SrcID == ExternalSrcID names an external tensor (not produced by any
// node in this DAGDef) by SrcName alone.
type EdgeDef struct {
	SrcName string
	SrcID   int
	SrcSlot int
}

// ExternalSrcID marks an EdgeDef that names an externally-supplied tensor.
const ExternalSrcID = -1

func (e EdgeDef) String() string {
	if e.SrcID == ExternalSrcID {
		return e.SrcName
	}
	return fmt.Sprintf("%s,%d:%d", e.SrcName, e.SrcID, e.SrcSlot)
}

// DNFTerm is one "field op value" clause.
type DNFTerm struct {
	Field string
	Op    string
	Value string
}

// DNFClause is a conjunction of terms.
type DNFClause []DNFTerm

// DNF is a disjunction of conjunctions -- a CondAttr's filter expression.
type DNF []DNFClause

// PostProcessCmd is one ordered post-process step, e.g. {"order_by",
// []string{"weight"}} or {"limit", []string{"10"}}.
type PostProcessCmd struct {
	Name string
	Args []string
}

// CondAttr bundles a DNF filter with its ordered post-process pipeline.
type CondAttr struct {
	DNF         DNF
	PostProcess []PostProcessCmd
}

// NormAttr is a string key referencing a tensor already installed in the
// OpKernelContext (spec §3).
type NormAttr struct {
	Key string
}

// UDF describes a user-defined-function attachment: a name plus string and
// numeric parameter lists.
type UDF struct {
	Name      string
	StrParams []string
	NumParams []float64
}

// NodeDef is a mutable build-time operator node.
type NodeDef struct {
	ID    int
	Op    string
	Alias string

	Inputs []EdgeDef
	Preds  map[int]struct{}
	Succs  map[int]struct{}

	OutputNum int
	Norm      *NormAttr
	Cond      *CondAttr
	UDF       *UDF

	// Remote-only fields (meaningful when Op == OpRemote).
	ShardIdx         int
	Inner            []*NodeDef
	FusionOutputMap  map[string]int // "(inner-name,id,slot)" -> outer output slot
	OutputList       []string       // inner tensor names to fetch from the remote worker
	RemoteOutputList []string       // this node's own outer aliases for OutputList, same order

	// InputConsumerOp/InputConsumerSlot record, per entry of Inputs, which
	// inner op first consumed that outer edge and at which of that op's own
	// input slots -- e.g. InputConsumerOp[2] == "COMPUTE_B", InputConsumerSlot[2]
	// == 1 means Inputs[2] feeds COMPUTE_B's own second input. Graph-partition
	// mode's per-(op,slot) split table (spec §4.4) is keyed by exactly this
	// pair, since a fused node's own input index carries no information about
	// which of possibly several distinct inner ops needs splitting.
	InputConsumerOp   []string
	InputConsumerSlot []int
}

// OpRemote is the reserved op-name for a fused, shard-dispatched node.
const OpRemote = "REMOTE"

// OpName / NodeName satisfy tensor.NodeDef so op kernels can be handed a
// *NodeDef directly.
func (n *NodeDef) OpName() string  { return n.Op }
func (n *NodeDef) NodeName() string { return fmt.Sprintf("%s,%d", n.Op, n.ID) }

func newNodeDef(id int, op string) *NodeDef {
	return &NodeDef{
		ID:     id,
		Op:     op,
		Preds:  make(map[int]struct{}),
		Succs:  make(map[int]struct{}),
	}
}
