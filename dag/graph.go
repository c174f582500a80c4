package dag

// Edge is one directed wire of the immutable execution Graph.
type Edge struct {
	SrcNode, SrcSlot int
	DstNode, DstSlot int
}

// Graph is Euler's immutable execution DAG (spec §3 "DAG (execution)"):
// an array of nodes, an array of directed edges, and per-node input/output
// edge sets, built once from a finished DAGDef and never mutated again.
type Graph struct {
	Name  string
	Nodes []*NodeDef
	Edges []Edge

	byID     map[int]*NodeDef
	inEdges  map[int][]Edge
	outEdges map[int][]Edge
	order    []int // a valid topological order, computed at build time
}

// ByID looks up a node by id.
func (g *Graph) ByID(id int) (*NodeDef, bool) { n, ok := g.byID[id]; return n, ok }

// InEdges returns the edges terminating at node id.
func (g *Graph) InEdges(id int) []Edge { return g.inEdges[id] }

// OutEdges returns the edges originating at node id.
func (g *Graph) OutEdges(id int) []Edge { return g.outEdges[id] }

// InDegree is the number of input edges node id has -- the Executor's
// pending-input counter is seeded from this (spec §4.6).
func (g *Graph) InDegree(id int) int { return len(g.inEdges[id]) }

// TopoOrder returns the order nodes were scheduled in at build time (any
// valid linearization; the Executor does not require this exact order, it
// only relies on in-degree-zero detection).
func (g *Graph) TopoOrder() []int { return g.order }

// BuildGraph freezes a finished DAGDef into an immutable execution Graph.
// This is the "from_proto()" half of spec §4.2's round trip when the
// DAGDef was produced in-process (no wire hop); in the cross-process case
// FromWireDAG (wire.go) first rebuilds the DAGDef, which is then passed here.
func BuildGraph(d *DAGDef) (*Graph, error) {
	order, err := d.TopologicalSort(nil)
	if err != nil {
		return nil, err
	}
	g := &Graph{
		Name:     d.Name,
		byID:     make(map[int]*NodeDef, len(d.Nodes)),
		inEdges:  make(map[int][]Edge),
		outEdges: make(map[int][]Edge),
		order:    order,
	}
	for _, id := range order {
		n := d.Nodes[id]
		g.Nodes = append(g.Nodes, n)
		g.byID[id] = n
		for slot, e := range n.Inputs {
			if e.SrcID == ExternalSrcID {
				continue
			}
			edge := Edge{SrcNode: e.SrcID, SrcSlot: e.SrcSlot, DstNode: id, DstSlot: slot}
			g.Edges = append(g.Edges, edge)
			g.inEdges[id] = append(g.inEdges[id], edge)
			g.outEdges[e.SrcID] = append(g.outEdges[e.SrcID], edge)
		}
	}
	return g, nil
}
