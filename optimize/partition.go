package optimize

import (
	"sort"

	"github.com/euler-graph/euler/dag"
	"github.com/euler-graph/euler/elog"
	"github.com/euler-graph/euler/status"
)

// LocalOnly is the default local-only op set of spec §4.4's graph-partition
// mode: ops that must never be shipped to a shard.
var LocalOnly = map[string]bool{
	dag.OpRemote:  true,
	"AS":          true,
	"POST_PROCESS": true,
	"GET_NB_FILTER": true,
}

func cloneLocalOnly() map[string]bool {
	m := make(map[string]bool, len(LocalOnly)+2)
	for k, v := range LocalOnly {
		m[k] = v
	}
	return m
}

// ShardKey identifies one (op, slot) entry of the graph-partition mode's
// fixed split/merge table (spec §4.4: the table is "bitwise-described per
// op-output", i.e. keyed per op and its own input/output slot, not per
// op alone -- the original's ProduceSplitOpInfo keys split specs by
// (op, input_idx) and GetMergeOpInfo keys merge specs by (op, output_idx)).
// A fused node spanning more than one distinct op needs one lookup per
// slot: applying a single op-keyed spec to every input/output of such a
// node would run the wrong kernel on every slot but the entry node's own.
type ShardKey struct {
	Op   string
	Slot int
}

// ShardTable is the graph-partition mode's fixed split/merge table:
// Splits keyed by (consuming op, that op's own input slot) to the split
// kernel name; Merges keyed by (producing op, that op's own output slot)
// to the merge kernel and strategy.
type ShardTable struct {
	Splits map[ShardKey]string
	Merges map[ShardKey]dag.MergeSpec
}

func connectedComponents(d *dag.DAGDef, eligible map[int]bool) [][]int {
	visited := map[int]bool{}
	var comps [][]int
	for id := range eligible {
		if visited[id] {
			continue
		}
		var comp []int
		queue := []int{id}
		visited[id] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			comp = append(comp, cur)
			n := d.Nodes[cur]
			for nb := range n.Preds {
				if eligible[nb] && !visited[nb] {
					visited[nb] = true
					queue = append(queue, nb)
				}
			}
			for nb := range n.Succs {
				if eligible[nb] && !visited[nb] {
					visited[nb] = true
					queue = append(queue, nb)
				}
			}
		}
		comps = append(comps, comp)
	}
	return comps
}

func largestComponent(d *dag.DAGDef, local map[string]bool) []int {
	eligible := map[int]bool{}
	for id, n := range d.Nodes {
		if !local[n.Op] {
			eligible[id] = true
		}
	}
	comps := connectedComponents(d, eligible)
	var best []int
	for _, c := range comps {
		if len(c) > len(best) {
			best = c
		}
	}
	sort.Ints(best)
	return best
}

func buildFusionOutputMap(d *dag.DAGDef, subset map[int]bool) map[string]int {
	m := map[string]int{}
	ids := make([]int, 0, len(d.Nodes))
	for id := range d.Nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if subset[id] {
			continue
		}
		n := d.Nodes[id]
		for _, e := range n.Inputs {
			if !subset[e.SrcID] {
				continue
			}
			k := innerKeyExported(e)
			if _, ok := m[k]; !ok {
				m[k] = len(m)
			}
		}
	}
	return m
}

func innerKeyExported(e dag.EdgeDef) string { return e.String() }

// GraphPartition implements spec §4.4's graph-partition mode: repeatedly
// finds the largest connected subgraph of non-local-only nodes, fuses and
// shards it using table, and loops until no progress. Returns the number
// of fusion rounds applied.
func GraphPartition(host *dag.DAGDef, shardNum int, table ShardTable) (int, error) {
	local := cloneLocalOnly()
	rounds := 0
	for {
		comp := largestComponent(host, local)
		if len(comp) == 0 {
			return rounds, nil
		}
		subset := make(map[int]bool, len(comp))
		for _, id := range comp {
			subset[id] = true
		}

		outMap := buildFusionOutputMap(host, subset)
		fused, err := host.FusionNodes(comp, dag.FusionRule{FusionName: dag.OpRemote, FusionOutputMap: outMap})
		if err != nil {
			return rounds, status.Wrap(status.Internal, err, "graph-partition: fusion_nodes failed")
		}

		splits := make([]dag.SplitSpec, len(fused.Inputs))
		newLocal := make(map[string]bool, 2*len(fused.Inputs))
		for i := range fused.Inputs {
			op, slot := fused.InputConsumerOp[i], fused.InputConsumerSlot[i]
			splitOp, ok := table.Splits[ShardKey{Op: op, Slot: slot}]
			if !ok {
				return rounds, status.New(status.FailedPrecondition,
					"graph-partition: no split table entry for op %q input %d", op, slot)
			}
			splits[i] = dag.SplitSpec{InputIdx: i, SplitOp: splitOp}
			newLocal[splitOp] = true
		}

		merges := make([]dag.MergeSpec, fused.OutputNum)
		for slot := 0; slot < fused.OutputNum; slot++ {
			op, outSlot := dag.InnerTensorOpSlot(fused.OutputList[slot])
			spec, ok := table.Merges[ShardKey{Op: op, Slot: outSlot}]
			if !ok {
				return rounds, status.New(status.FailedPrecondition,
					"graph-partition: no merge table entry for op %q output %d", op, outSlot)
			}
			merges[slot] = spec
			newLocal[spec.MergeOp] = true
		}

		if err := host.ShardRemote(fused.ID, dag.ShardRule{
			ShardNum: shardNum,
			Splits:   splits,
			Merges:   merges,
		}); err != nil {
			return rounds, status.Wrap(status.Internal, err, "graph-partition: shard_remote failed")
		}
		for op := range newLocal {
			local[op] = true
		}
		rounds++
		elog.Infof("[%s] graph-partition round %d: fused %d nodes into a %d-way shard", elog.SModuleOptimizer, rounds, len(comp), shardNum)
	}
}
