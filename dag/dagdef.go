package dag

import (
	"fmt"

	"github.com/euler-graph/euler/status"
)

// DAGDef is the mutable, build-time graph-with-attributes the Translator
// emits and the Optimiser rewrites in place.
type DAGDef struct {
	Name   string
	Nodes  map[int]*NodeDef
	nextID int
}

// NewDAGDef returns an empty, named DAGDef.
func NewDAGDef(name string) *DAGDef {
	return &DAGDef{Name: name, Nodes: make(map[int]*NodeDef)}
}

// NextID reserves a fresh node id, used by the Translator and the
// Optimiser's split/merge/fusion node synthesis.
func (d *DAGDef) NextID() int {
	d.nextID++
	return d.nextID
}

// NewNode allocates (but does not insert) a NodeDef with a fresh id.
func (d *DAGDef) NewNode(op string) *NodeDef {
	return newNodeDef(d.NextID(), op)
}

// AddNode inserts node and wires predecessor/successor sets both
// directions. Acyclicity is the caller's obligation (spec §4.2): AddNode
// does not check it.
func (d *DAGDef) AddNode(node *NodeDef, preds, succs []int) {
	d.Nodes[node.ID] = node
	for _, p := range preds {
		node.Preds[p] = struct{}{}
		if pn, ok := d.Nodes[p]; ok {
			pn.Succs[node.ID] = struct{}{}
		}
	}
	for _, s := range succs {
		node.Succs[s] = struct{}{}
		if sn, ok := d.Nodes[s]; ok {
			sn.Preds[node.ID] = struct{}{}
		}
	}
}

// Cut removes edges crossing the boundary of the given node subset: any
// edge between a node in `nodes` and a node not in `nodes` is dropped from
// both endpoints' Preds/Succs (the NodeDef.Inputs slice, which records the
// *logical* wiring, is left to the caller -- Cut only maintains the
// Preds/Succs adjacency used for topological sort and reachability).
func (d *DAGDef) Cut(nodes map[int]bool) {
	for id := range nodes {
		n, ok := d.Nodes[id]
		if !ok {
			continue
		}
		for p := range n.Preds {
			if !nodes[p] {
				delete(n.Preds, p)
				if pn, ok := d.Nodes[p]; ok {
					delete(pn.Succs, id)
				}
			}
		}
		for s := range n.Succs {
			if !nodes[s] {
				delete(n.Succs, s)
				if sn, ok := d.Nodes[s]; ok {
					delete(sn.Preds, id)
				}
			}
		}
	}
}

// TopologicalSort returns a Kahn ordering of subset (or the whole graph if
// subset is nil). Fails if a cycle exists. Succs entries that name no node
// of the sorted set (outside subset, or already erased) are ignored.
func (d *DAGDef) TopologicalSort(subset map[int]bool) ([]int, error) {
	inDeg := make(map[int]int)
	include := func(id int) bool { return subset == nil || subset[id] }

	for id, n := range d.Nodes {
		if !include(id) {
			continue
		}
		cnt := 0
		for p := range n.Preds {
			if include(p) {
				cnt++
			}
		}
		inDeg[id] = cnt
	}

	var frontier []int
	for id, c := range inDeg {
		if c == 0 {
			frontier = append(frontier, id)
		}
	}

	var order []int
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)
		for s := range d.Nodes[id].Succs {
			if _, ok := inDeg[s]; !ok {
				continue
			}
			inDeg[s]--
			if inDeg[s] == 0 {
				frontier = append(frontier, s)
			}
		}
	}

	if len(order) != len(inDeg) {
		return nil, status.New(status.FailedPrecondition, "cycle detected during topological sort")
	}
	return order, nil
}

// String renders a compact human-readable summary, in the teacher's
// Name()/String() convention.
func (d *DAGDef) String() string {
	return fmt.Sprintf("DAGDef(%s, %d nodes)", d.Name, len(d.Nodes))
}
