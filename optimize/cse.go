package optimize

import (
	"fmt"
	"strings"

	"github.com/euler-graph/euler/dag"
)

// cseWhitelist is the set of op names eligible for common-subexpression
// elimination (spec §4.4): ops cheap to share and safe to dedupe because
// they are pure functions of their inputs.
var cseWhitelist = map[string]bool{
	"ID_SPLIT":  true,
	"ID_UNIQUE": true,
}

func cseKey(n *dag.NodeDef) string {
	parts := make([]string, len(n.Inputs))
	for i, e := range n.Inputs {
		parts[i] = e.String()
	}
	return fmt.Sprintf("%s|%s", n.Op, strings.Join(parts, ";"))
}

// CSE runs one common-subexpression-elimination pass over host (spec
// §4.4, always last in non-partition mode): in topological order, for each
// whitelisted op keyed by (op_name, ordered input endpoints), keep the
// first occurrence and rewire every consumer of a later duplicate to the
// keeper, then erase the duplicate.
func CSE(host *dag.DAGDef) error {
	order, err := host.TopologicalSort(nil)
	if err != nil {
		return err
	}

	keeper := map[string]int{}
	dup := map[int]int{} // duplicate node id -> keeper node id

	for _, id := range order {
		n, ok := host.Nodes[id]
		if !ok || !cseWhitelist[n.Op] {
			continue
		}
		k := cseKey(n)
		if keepID, seen := keeper[k]; seen {
			dup[id] = keepID
			continue
		}
		keeper[k] = id
	}
	if len(dup) == 0 {
		return nil
	}

	resolve := func(id int) int {
		for {
			if k, ok := dup[id]; ok {
				id = k
				continue
			}
			return id
		}
	}

	for _, n := range host.Nodes {
		for i, e := range n.Inputs {
			if e.SrcID == dag.ExternalSrcID {
				continue
			}
			if k := resolve(e.SrcID); k != e.SrcID {
				n.Inputs[i] = dag.EdgeDef{SrcName: host.Nodes[k].Op, SrcID: k, SrcSlot: e.SrcSlot}
				delete(n.Preds, e.SrcID)
				n.Preds[k] = struct{}{}
				host.Nodes[k].Succs[n.ID] = struct{}{}
			}
		}
	}

	for id := range dup {
		delete(host.Nodes, id)
	}
	return nil
}
