package dag

import "github.com/euler-graph/euler/status"

// MergeKind selects how a ShardRemote merge op stitches N shard replies
// back together (spec §4.4).
type MergeKind int

const (
	// MergeSequential appends each shard's reply in shard order.
	MergeSequential MergeKind = iota
	// MergeIndexed orders replies by a merge-idx tensor the split op also
	// produced (its last output, by convention, slot == ShardNum).
	MergeIndexed
)

// SplitSpec directs shard_remote to split one REMOTE input across shards
// with the given split kernel (spec §4.4's per-op-input split table).
type SplitSpec struct {
	InputIdx int
	SplitOp  string
}

// MergeSpec directs shard_remote how to merge one REMOTE output slot's N
// shard replies back together: the merge kernel and merge strategy. Spec
// §4.4 describes the split/merge table as "bitwise-described per
// op-output" -- distinct output slots of a fused node, having come from
// distinct original ops, can need distinct merge kernels/strategies, so
// this is supplied once per output slot rather than once for the whole
// REMOTE node.
type MergeSpec struct {
	MergeOp   string
	MergeKind MergeKind
}

// ShardRule parametrizes shard_remote (spec §4.2/§4.4): which of the
// REMOTE node's inputs must be split per-shard (the rest are broadcast to
// every shard unchanged) and, for every output slot in order, how to
// merge it back.
type ShardRule struct {
	ShardNum int
	Splits   []SplitSpec
	Merges   []MergeSpec // len must equal the REMOTE node's OutputNum
}

// ShardRemote splits a single OpRemote node into ShardNum shard-indexed
// remotes with preceding split ops and succeeding merge ops, per spec
// §4.2's shard_remote and §4.4's per-shard dispatch description. The
// original REMOTE's outgoing edges are repointed to the merge ops.
func (d *DAGDef) ShardRemote(remoteID int, rule ShardRule) error {
	remote, ok := d.Nodes[remoteID]
	if !ok {
		return status.New(status.InvalidArgument, "shard_remote: unknown node %d", remoteID)
	}
	if remote.Op != OpRemote {
		return status.New(status.InvalidArgument, "shard_remote: node %d is not a REMOTE", remoteID)
	}
	n := rule.ShardNum
	if n <= 0 {
		return status.New(status.InvalidArgument, "shard_remote: ShardNum must be positive")
	}
	if len(rule.Merges) != remote.OutputNum {
		return status.New(status.InvalidArgument,
			"shard_remote: need exactly %d merge specs (one per output slot), got %d", remote.OutputNum, len(rule.Merges))
	}

	needsMergeIdx := false
	for _, m := range rule.Merges {
		if m.MergeKind == MergeIndexed {
			needsMergeIdx = true
			break
		}
	}

	splitNodeForInput := make(map[int]*NodeDef, len(rule.Splits))
	var mergeIdxSplit *NodeDef
	for i, sp := range rule.Splits {
		if sp.InputIdx < 0 || sp.InputIdx >= len(remote.Inputs) {
			return status.New(status.InvalidArgument, "shard_remote: split input index %d out of range", sp.InputIdx)
		}
		split := d.NewNode(sp.SplitOp)
		split.OutputNum = n
		if needsMergeIdx && i == 0 {
			split.OutputNum = n + 1 // trailing merge-idx output
			mergeIdxSplit = split
		}
		split.Inputs = []EdgeDef{remote.Inputs[sp.InputIdx]}
		var preds []int
		if remote.Inputs[sp.InputIdx].SrcID != ExternalSrcID {
			preds = []int{remote.Inputs[sp.InputIdx].SrcID}
		}
		d.AddNode(split, preds, nil)
		splitNodeForInput[sp.InputIdx] = split
	}
	if needsMergeIdx && mergeIdxSplit == nil {
		return status.New(status.InvalidArgument, "shard_remote: a MergeIndexed merge spec requires at least one split")
	}

	shardRemotes := make([]*NodeDef, n)
	for s := 0; s < n; s++ {
		rs := d.NewNode(OpRemote)
		rs.ShardIdx = s
		rs.Inner = remote.Inner
		rs.OutputNum = remote.OutputNum
		rs.OutputList = remote.OutputList
		rs.RemoteOutputList = remote.RemoteOutputList
		rs.FusionOutputMap = remote.FusionOutputMap
		rs.Inputs = make([]EdgeDef, len(remote.Inputs))
		var preds []int
		for idx, e := range remote.Inputs {
			if split, ok := splitNodeForInput[idx]; ok {
				rs.Inputs[idx] = EdgeDef{SrcName: split.Op, SrcID: split.ID, SrcSlot: s}
				preds = append(preds, split.ID)
			} else {
				rs.Inputs[idx] = e
				if e.SrcID != ExternalSrcID {
					preds = append(preds, e.SrcID)
				}
			}
		}
		d.AddNode(rs, preds, nil)
		shardRemotes[s] = rs
	}

	mergeNodes := make([]*NodeDef, remote.OutputNum)
	for slot := 0; slot < remote.OutputNum; slot++ {
		spec := rule.Merges[slot]
		merge := d.NewNode(spec.MergeOp)
		merge.OutputNum = 1
		var inputs []EdgeDef
		var preds []int
		for s := 0; s < n; s++ {
			inputs = append(inputs, EdgeDef{SrcName: shardRemotes[s].Op, SrcID: shardRemotes[s].ID, SrcSlot: slot})
			preds = append(preds, shardRemotes[s].ID)
		}
		if spec.MergeKind == MergeIndexed {
			inputs = append(inputs, EdgeDef{SrcName: mergeIdxSplit.Op, SrcID: mergeIdxSplit.ID, SrcSlot: n})
			preds = append(preds, mergeIdxSplit.ID)
		}
		merge.Inputs = inputs
		d.AddNode(merge, preds, nil)
		mergeNodes[slot] = merge
	}

	for _, n2 := range d.Nodes {
		if n2.ID == remoteID {
			continue
		}
		for i, e := range n2.Inputs {
			if e.SrcID != remoteID {
				continue
			}
			m := mergeNodes[e.SrcSlot]
			n2.Inputs[i] = EdgeDef{SrcName: m.Op, SrcID: m.ID, SrcSlot: 0}
			delete(n2.Preds, remoteID)
			n2.Preds[m.ID] = struct{}{}
			m.Succs[n2.ID] = struct{}{}
		}
	}

	delete(d.Nodes, remoteID)
	return nil
}
