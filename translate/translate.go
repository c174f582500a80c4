package translate

import (
	"fmt"

	"github.com/euler-graph/euler/dag"
	"github.com/euler-graph/euler/elog"
	"github.com/euler-graph/euler/status"
)

// props is the bottom-up accumulation of pass 1: every DNF conjunction,
// every post-process command, and the alias nearest the step passed to
// Translate (an outer KindAlias overrides an inner one), seen while
// walking from that step down to its base.
type props struct {
	dnf   dag.DNF
	post  []dag.PostProcessCmd
	alias string
}

// Translator walks Step chains into a dag.DAGDef, recording AS aliases so
// later chains in the same query can reference them via KindRef.
type Translator struct {
	d       *dag.DAGDef
	aliases map[string]int // alias -> NodeDef id of the node it labels
}

// New returns an empty Translator for a query named name.
func New(name string) *Translator {
	return &Translator{d: dag.NewDAGDef(name), aliases: make(map[string]int)}
}

// Translate appends root's chain to the DAGDef under construction and
// returns the id of the node that represents the chain's final value.
func (t *Translator) Translate(root *Step) (int, error) {
	return t.translate(root)
}

// DAGDef returns the DAGDef accumulated across all Translate calls so far.
func (t *Translator) DAGDef() *dag.DAGDef { return t.d }

func (t *Translator) translate(step *Step) (int, error) {
	if step == nil {
		return 0, status.New(status.InvalidArgument, "translate: nil step")
	}

	if step.Kind == KindRef {
		id, ok := t.aliases[step.Alias]
		if !ok {
			return 0, status.New(status.InvalidArgument, "translate: unknown alias %q", step.Alias)
		}
		return id, nil
	}

	// Pass 1: accumulate DNF/post-process/alias down to the nearest base
	// step (KindAPI, KindNeighbourFilter, KindLayerSampler, or KindRef).
	p, base, err := accumulate(step)
	if err != nil {
		return 0, err
	}

	// Pass 2: emit, post-order, starting from the resolved base.
	baseID, err := t.emitBase(base, p)
	if err != nil {
		return 0, err
	}

	id := baseID
	if p.alias != "" {
		asNode := t.d.NewNode(OpAs)
		asNode.Alias = p.alias
		asNode.OutputNum = 1
		asNode.Inputs = []dag.EdgeDef{{SrcName: t.d.Nodes[baseID].Op, SrcID: baseID, SrcSlot: 0}}
		t.d.AddNode(asNode, []int{baseID}, nil)
		t.aliases[p.alias] = asNode.ID
		id = asNode.ID
	}
	return id, nil
}

// accumulate recurses from step down through Prev, combining DNF clauses,
// post-process commands, and the outermost alias, stopping at the first
// step that is itself a base (API/NeighbourFilter/LayerSampler/Ref).
func accumulate(step *Step) (props, *Step, error) {
	switch step.Kind {
	case KindAPI, KindNeighbourFilter, KindLayerSampler, KindRef:
		return props{}, step, nil
	case KindFilter:
		p, base, err := accumulate(step.Prev)
		if err != nil {
			return props{}, nil, err
		}
		p.dnf = append(p.dnf, dag.DNFClause{{Field: step.Field, Op: step.CmpOp, Value: step.Value}})
		return p, base, nil
	case KindPostProcess:
		p, base, err := accumulate(step.Prev)
		if err != nil {
			return props{}, nil, err
		}
		if step.PPName == "order_by" && len(step.PPArgs) > 0 && step.PPArgs[0] == "weight" {
			if !emitsBaseWeight(base) {
				return props{}, nil, status.New(status.InvalidArgument,
					"order_by weight: preceding op %q does not emit a weight output", baseOpName(base))
			}
		}
		p.post = append(p.post, dag.PostProcessCmd{Name: step.PPName, Args: step.PPArgs})
		return p, base, nil
	case KindAlias:
		p, base, err := accumulate(step.Prev)
		if err != nil {
			return props{}, nil, err
		}
		p.alias = step.Alias
		return p, base, nil
	default:
		return props{}, nil, status.New(status.InvalidArgument, "translate: unknown step kind %d", step.Kind)
	}
}

func baseOpName(step *Step) string {
	switch step.Kind {
	case KindAPI:
		return step.Op
	case KindNeighbourFilter:
		return OpGetNbFilter
	case KindLayerSampler:
		return OpGatherResult
	default:
		return ""
	}
}

func emitsBaseWeight(step *Step) bool {
	switch step.Kind {
	case KindAPI:
		return emitsWeight(step.Op)
	case KindLayerSampler:
		return step.Weighted
	default:
		return false
	}
}

func (t *Translator) emitBase(step *Step, p props) (int, error) {
	switch step.Kind {
	case KindRef:
		id, ok := t.aliases[step.Alias]
		if !ok {
			return 0, status.New(status.InvalidArgument, "translate: unknown alias %q", step.Alias)
		}
		return id, nil
	case KindAPI:
		return t.emitAPI(step, p)
	case KindNeighbourFilter:
		return t.emitNeighbourFilter(step, p)
	case KindLayerSampler:
		return t.emitLayerSampler(step)
	default:
		return 0, status.New(status.Internal, "translate: step %d is not a base", step.Kind)
	}
}

func (t *Translator) inputEdge(step *Step) (dag.EdgeDef, error) {
	if step.Prev == nil {
		if step.InputName == "" {
			return dag.EdgeDef{}, status.New(status.InvalidArgument, "translate: root step has no input name")
		}
		return dag.EdgeDef{SrcName: step.InputName, SrcID: dag.ExternalSrcID}, nil
	}
	id, err := t.translate(step.Prev)
	if err != nil {
		return dag.EdgeDef{}, err
	}
	n := t.d.Nodes[id]
	return dag.EdgeDef{SrcName: n.Op, SrcID: id, SrcSlot: 0}, nil
}

// emitAPI emits the single NodeDef for a generic traversal verb, attaching
// any accumulated DNF/post-process/UDF.
func (t *Translator) emitAPI(step *Step, p props) (int, error) {
	in, err := t.inputEdge(step)
	if err != nil {
		return 0, err
	}
	n := t.d.NewNode(step.Op)
	n.OutputNum = 1
	n.Inputs = []dag.EdgeDef{in}
	if len(p.dnf) > 0 || len(p.post) > 0 {
		n.Cond = &dag.CondAttr{DNF: p.dnf, PostProcess: p.post}
	}
	if step.UDFName != "" {
		n.UDF = &dag.UDF{Name: step.UDFName, StrParams: step.UDFStrParams, NumParams: step.UDFNumParams}
	}
	var preds []int
	if in.SrcID != dag.ExternalSrcID {
		preds = []int{in.SrcID}
	}
	t.d.AddNode(n, preds, nil)
	return n.ID, nil
}

// emitNeighbourFilter implements spec §4.3's deliberate three-node
// expansion for neighbour filtering on a non-neighbour-indexed predicate:
// GET_NB_NODE (raw fetch) -> GET_NODE (DNF filter) -> GET_NB_FILTER
// (post-process), at the declared cost of an extra round trip.
func (t *Translator) emitNeighbourFilter(step *Step, p props) (int, error) {
	in, err := t.inputEdge(step)
	if err != nil {
		return 0, err
	}
	elog.Warningf("[%s] neighbour filter on non-indexed predicate for %q: expanding to 3 nodes (extra round trip)", elog.SModuleDAG, step.NbOp)

	raw := t.d.NewNode(OpGetNbNode)
	raw.OutputNum = 1
	raw.Inputs = []dag.EdgeDef{in}
	var rawPreds []int
	if in.SrcID != dag.ExternalSrcID {
		rawPreds = []int{in.SrcID}
	}
	t.d.AddNode(raw, rawPreds, nil)

	filtered := t.d.NewNode(OpGetNode)
	filtered.OutputNum = 1
	filtered.Inputs = []dag.EdgeDef{{SrcName: raw.Op, SrcID: raw.ID, SrcSlot: 0}}
	filtered.Cond = &dag.CondAttr{DNF: p.dnf}
	t.d.AddNode(filtered, []int{raw.ID}, nil)

	final := t.d.NewNode(OpGetNbFilter)
	final.OutputNum = 1
	final.Inputs = []dag.EdgeDef{{SrcName: filtered.Op, SrcID: filtered.ID, SrcSlot: 0}}
	if len(p.post) > 0 {
		final.Cond = &dag.CondAttr{PostProcess: p.post}
	}
	t.d.AddNode(final, []int{filtered.ID}, nil)

	return final.ID, nil
}

// emitLayerSampler implements spec §4.3's layer-sampler expansion:
// edge-sum-weight -> sample-root -> one sample-L per layer ->
// sparse-gen-adj -> gather-result (five nodes for a single layer). The
// trivial (unweighted) variant emits exactly the same nodes; the Weighted
// flag is not recorded on any of them and only decides whether a following
// order_by weight is accepted (see emitsBaseWeight).
func (t *Translator) emitLayerSampler(step *Step) (int, error) {
	in, err := t.inputEdge(step)
	if err != nil {
		return 0, err
	}
	var rootPreds []int
	if in.SrcID != dag.ExternalSrcID {
		rootPreds = []int{in.SrcID}
	}

	sumWeight := t.d.NewNode(OpEdgeSumWeight)
	sumWeight.OutputNum = 1
	sumWeight.Inputs = []dag.EdgeDef{in}
	t.d.AddNode(sumWeight, rootPreds, nil)

	sampleRoot := t.d.NewNode(OpSampleRoot)
	sampleRoot.OutputNum = 1
	sampleRoot.Inputs = []dag.EdgeDef{in, {SrcName: sumWeight.Op, SrcID: sumWeight.ID, SrcSlot: 0}}
	preds := append(append([]int{}, rootPreds...), sumWeight.ID)
	t.d.AddNode(sampleRoot, preds, nil)

	prev := sampleRoot
	var layerIDs []int
	for l := 0; l < step.NumLayers; l++ {
		count := 0
		if l < len(step.SampleCounts) {
			count = step.SampleCounts[l]
		}
		sampleL := t.d.NewNode(OpSampleL)
		sampleL.OutputNum = 1
		sampleL.UDF = &dag.UDF{Name: fmt.Sprintf("layer_%d", l), NumParams: []float64{float64(count)}}
		sampleL.Inputs = []dag.EdgeDef{{SrcName: prev.Op, SrcID: prev.ID, SrcSlot: 0}}
		t.d.AddNode(sampleL, []int{prev.ID}, nil)
		layerIDs = append(layerIDs, sampleL.ID)
		prev = sampleL
	}

	adj := t.d.NewNode(OpSparseGenAdj)
	adj.OutputNum = 1
	for _, id := range layerIDs {
		adj.Inputs = append(adj.Inputs, dag.EdgeDef{SrcName: t.d.Nodes[id].Op, SrcID: id, SrcSlot: 0})
	}
	t.d.AddNode(adj, layerIDs, nil)

	gather := t.d.NewNode(OpGatherResult)
	gather.OutputNum = 1
	gather.Inputs = []dag.EdgeDef{{SrcName: adj.Op, SrcID: adj.ID, SrcSlot: 0}}
	t.d.AddNode(gather, []int{adj.ID}, nil)

	return gather.ID, nil
}
