package dag

import (
	"fmt"
	"sort"

	"github.com/euler-graph/euler/status"
)

// FusionRule describes one application of fusion_nodes (spec §4.2/§4.4):
// the name the fused node takes (OpRemote for a shard-dispatched fusion)
// and the map from an inner tensor key ("op,id:slot") to the fused node's
// own outer output slot.
type FusionRule struct {
	FusionName      string
	FusionOutputMap map[string]int
}

func innerKey(opName string, id, slot int) string {
	return fmt.Sprintf("%s,%d:%d", opName, id, slot)
}

func sortedSubset(subset map[int]bool) []int {
	ids := make([]int, 0, len(subset))
	for id := range subset {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// checkNoCycleThroughOutside implements spec §4.2 rule 4 / §9's redesign
// note: reject any subset S for which a path leaves S and re-enters S
// through a node outside S (that would make the fused node depend on its
// own output once the subset collapses to one node).
func (d *DAGDef) checkNoCycleThroughOutside(subset map[int]bool) error {
	for _, id := range sortedSubset(subset) {
		n := d.Nodes[id]
		for succ := range n.Succs {
			if subset[succ] {
				continue
			}
			visited := map[int]bool{}
			queue := []int{succ}
			for len(queue) > 0 {
				cur := queue[0]
				queue = queue[1:]
				if visited[cur] {
					continue
				}
				visited[cur] = true
				if subset[cur] {
					return status.New(status.FailedPrecondition,
						"fusion would create a cycle: node %d reaches subset member %d through outside node %d", id, cur, succ)
				}
				if cn, ok := d.Nodes[cur]; ok {
					for s := range cn.Succs {
						if !visited[s] {
							queue = append(queue, s)
						}
					}
				}
			}
		}
	}
	return nil
}

// FusionNodes replaces subset with one new node named rule.FusionName (or
// OpRemote), per spec §4.2. The fused node's inner sub-graph is always
// retained in Inner (needed downstream by ShardRemote and, for
// OpRemote, by the Remote operator); only OpRemote rewrites inner edges to
// the REMOTE,<id>:<slot> reference form described in the spec.
func (d *DAGDef) FusionNodes(subsetIDs []int, rule FusionRule) (*NodeDef, error) {
	subset := make(map[int]bool, len(subsetIDs))
	for _, id := range subsetIDs {
		if _, ok := d.Nodes[id]; !ok {
			return nil, status.New(status.InvalidArgument, "fusion subset references unknown node %d", id)
		}
		subset[id] = true
	}
	if err := d.checkNoCycleThroughOutside(subset); err != nil {
		return nil, err
	}

	fused := d.NewNode(rule.FusionName)

	type extKey struct {
		name string
		id   int
		slot int
	}
	inputIndex := make(map[extKey]int)
	var inputs []EdgeDef
	var consumerOp []string
	var consumerSlot []int
	var fusedPreds []int

	for _, id := range sortedSubset(subset) {
		n := d.Nodes[id]
		for i, e := range n.Inputs {
			if subset[e.SrcID] {
				continue // internal edge; stays inside Inner once moved
			}
			k := extKey{e.SrcName, e.SrcID, e.SrcSlot}
			idx, ok := inputIndex[k]
			if !ok {
				idx = len(inputs)
				inputIndex[k] = idx
				inputs = append(inputs, e)
				consumerOp = append(consumerOp, n.Op)
				consumerSlot = append(consumerSlot, i)
				if e.SrcID != ExternalSrcID {
					fusedPreds = append(fusedPreds, e.SrcID)
				}
			}
			if rule.FusionName == OpRemote {
				n.Inputs[i] = EdgeDef{SrcName: fused.Op, SrcID: fused.ID, SrcSlot: idx}
			}
		}
	}
	fused.Inputs = inputs
	fused.InputConsumerOp = consumerOp
	fused.InputConsumerSlot = consumerSlot

	// rewrite outside consumers of the subset to read from fused's output slot
	maxSlot := -1
	for _, n := range d.Nodes {
		if subset[n.ID] {
			continue
		}
		for i, e := range n.Inputs {
			if !subset[e.SrcID] {
				continue
			}
			k := innerKey(e.SrcName, e.SrcID, e.SrcSlot)
			outSlot, ok := rule.FusionOutputMap[k]
			if !ok {
				return nil, status.New(status.Internal, "fusion output map missing entry for %s", k)
			}
			n.Inputs[i] = EdgeDef{SrcName: fused.Op, SrcID: fused.ID, SrcSlot: outSlot}
			if outSlot > maxSlot {
				maxSlot = outSlot
			}
		}
	}
	fused.OutputNum = maxSlot + 1

	// For a REMOTE fusion, the Remote operator (C10) needs to know which
	// inner tensor backs each of the fused node's output slots, and what
	// outer alias to install each one under once the shard replies --
	// exactly the inverse of FusionOutputMap, paired with the fused
	// node's own "<op>,<id>:<slot>" naming (the same name outside
	// consumers above were just rewritten to read from).
	if rule.FusionName == OpRemote && fused.OutputNum > 0 {
		fused.OutputList = make([]string, fused.OutputNum)
		fused.RemoteOutputList = make([]string, fused.OutputNum)
		for innerName, slot := range rule.FusionOutputMap {
			if slot < 0 || slot >= fused.OutputNum {
				continue
			}
			fused.OutputList[slot] = innerName
			fused.RemoteOutputList[slot] = EdgeDef{SrcName: fused.Op, SrcID: fused.ID, SrcSlot: slot}.String()
		}
	}

	// fix up Preds/Succs: fused absorbs external predecessor edges and the
	// subset's external successor edges.
	for _, p := range fusedPreds {
		fused.Preds[p] = struct{}{}
		if pn, ok := d.Nodes[p]; ok {
			pn.Succs[fused.ID] = struct{}{}
		}
	}
	for _, n := range d.Nodes {
		if subset[n.ID] {
			continue
		}
		for p := range n.Preds {
			if subset[p] {
				delete(n.Preds, p)
				n.Preds[fused.ID] = struct{}{}
				fused.Succs[n.ID] = struct{}{}
			}
		}
	}

	fused.Inner = make([]*NodeDef, 0, len(subset))
	for _, id := range sortedSubset(subset) {
		fused.Inner = append(fused.Inner, d.Nodes[id])
		delete(d.Nodes, id)
	}
	fused.FusionOutputMap = rule.FusionOutputMap

	d.Nodes[fused.ID] = fused
	return fused, nil
}
