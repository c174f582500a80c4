package dag

import "github.com/euler-graph/euler/status"

// UniqueGatherRule parametrizes unique_and_gather (spec §4.2/§4.4.2): which
// of node's input slots carry lookup keys worth deduplicating, and the
// kernel names for the unique and gather steps.
type UniqueGatherRule struct {
	UniqueInputs []int
	UniqueOp     string
	GatherOp     string
}

// UniqueAndGather inserts a unique-keys op before node (on the designated
// input slots) and a gather op after it, scattering node's outputs back to
// the original (possibly duplicated) key positions.
func (d *DAGDef) UniqueAndGather(nodeID int, rule UniqueGatherRule) error {
	node, ok := d.Nodes[nodeID]
	if !ok {
		return status.New(status.InvalidArgument, "unique_and_gather: unknown node %d", nodeID)
	}

	unique := d.NewNode(rule.UniqueOp)
	unique.Inputs = make([]EdgeDef, len(rule.UniqueInputs))
	var preds []int
	for i, idx := range rule.UniqueInputs {
		if idx < 0 || idx >= len(node.Inputs) {
			return status.New(status.InvalidArgument, "unique_and_gather: input index %d out of range", idx)
		}
		e := node.Inputs[idx]
		unique.Inputs[i] = e
		if e.SrcID != ExternalSrcID {
			preds = append(preds, e.SrcID)
		}
	}
	mappingSlot := len(rule.UniqueInputs)
	unique.OutputNum = mappingSlot + 1 // deduped keys, then the index-mapping tensor
	d.AddNode(unique, preds, []int{nodeID})

	for i, idx := range rule.UniqueInputs {
		node.Inputs[idx] = EdgeDef{SrcName: unique.Op, SrcID: unique.ID, SrcSlot: i}
	}

	gather := d.NewNode(rule.GatherOp)
	gather.Inputs = append([]EdgeDef{{SrcName: unique.Op, SrcID: unique.ID, SrcSlot: mappingSlot}})
	for slot := 0; slot < node.OutputNum; slot++ {
		gather.Inputs = append(gather.Inputs, EdgeDef{SrcName: node.Op, SrcID: node.ID, SrcSlot: slot})
	}
	gather.OutputNum = node.OutputNum
	d.AddNode(gather, []int{unique.ID, nodeID}, nil)

	for _, n2 := range d.Nodes {
		if n2.ID == node.ID || n2.ID == gather.ID || n2.ID == unique.ID {
			continue
		}
		for i, e := range n2.Inputs {
			if e.SrcID != node.ID {
				continue
			}
			n2.Inputs[i] = EdgeDef{SrcName: gather.Op, SrcID: gather.ID, SrcSlot: e.SrcSlot}
			delete(n2.Preds, node.ID)
			n2.Preds[gather.ID] = struct{}{}
			gather.Succs[n2.ID] = struct{}{}
		}
	}
	return nil
}
