package optimize_test

import (
	"fmt"
	"testing"

	"github.com/euler-graph/euler/dag"
	"github.com/euler-graph/euler/optimize"
)

// linear builds A -> B -> C in d, returning the three node ids.
func linear(d *dag.DAGDef, ops [3]string) (int, int, int) {
	a := d.NewNode(ops[0])
	a.OutputNum = 1
	d.AddNode(a, nil, nil)

	b := d.NewNode(ops[1])
	b.OutputNum = 1
	b.Inputs = []dag.EdgeDef{{SrcName: a.Op, SrcID: a.ID, SrcSlot: 0}}
	d.AddNode(b, []int{a.ID}, nil)

	c := d.NewNode(ops[2])
	c.OutputNum = 1
	c.Inputs = []dag.EdgeDef{{SrcName: b.Op, SrcID: b.ID, SrcSlot: 0}}
	d.AddNode(c, []int{b.ID}, nil)

	return a.ID, b.ID, c.ID
}

func TestSubGraphMatchFindsDisjointEmbeddings(t *testing.T) {
	host := dag.NewDAGDef("host")
	linear(host, [3]string{"X", "Y", "Z"})
	linear(host, [3]string{"X", "Y", "Z"})

	pattern := dag.NewDAGDef("pat")
	linear(pattern, [3]string{"X", "Y", "Z"})

	matches := optimize.SubGraphMatch(host, pattern, nil)
	if len(matches) != 2 {
		t.Fatalf("expected 2 disjoint embeddings, got %d", len(matches))
	}
	seen := map[int]bool{}
	for _, m := range matches {
		for _, hostID := range m {
			if seen[hostID] {
				t.Fatalf("host node %d consumed by more than one embedding", hostID)
			}
			seen[hostID] = true
		}
		if len(m) != 3 {
			t.Fatalf("expected each embedding to cover all 3 pattern nodes, got %d", len(m))
		}
	}
}

func TestSubGraphMatchHonorsExtraCond(t *testing.T) {
	host := dag.NewDAGDef("host")
	withAlias, _, _ := linear(host, [3]string{"X", "Y", "Z"})
	host.Nodes[withAlias].Alias = "keep"
	linear(host, [3]string{"X", "Y", "Z"}) // second chain, no alias

	pattern := dag.NewDAGDef("pat")
	px, _, _ := linear(pattern, [3]string{"X", "Y", "Z"})

	extra := optimize.ExtraCond{
		fmt.Sprintf("X,%d", px): func(h *dag.NodeDef) bool { return h.Alias == "keep" },
	}
	matches := optimize.SubGraphMatch(host, pattern, extra)
	if len(matches) != 1 {
		t.Fatalf("expected the predicate to admit exactly the aliased chain, got %d matches", len(matches))
	}
	if got := matches[0][px]; got != withAlias {
		t.Fatalf("expected pattern X to map onto the aliased host node %d, got %d", withAlias, got)
	}
}

func TestCSEDedupesWhitelistedOps(t *testing.T) {
	d := dag.NewDAGDef("q")
	src := d.NewNode("GET_NODE")
	src.OutputNum = 1
	d.AddNode(src, nil, nil)

	dup1 := d.NewNode("ID_UNIQUE")
	dup1.OutputNum = 1
	dup1.Inputs = []dag.EdgeDef{{SrcName: src.Op, SrcID: src.ID, SrcSlot: 0}}
	d.AddNode(dup1, []int{src.ID}, nil)

	dup2 := d.NewNode("ID_UNIQUE")
	dup2.OutputNum = 1
	dup2.Inputs = []dag.EdgeDef{{SrcName: src.Op, SrcID: src.ID, SrcSlot: 0}}
	d.AddNode(dup2, []int{src.ID}, nil)

	consumer1 := d.NewNode("SINK")
	consumer1.Inputs = []dag.EdgeDef{{SrcName: dup1.Op, SrcID: dup1.ID, SrcSlot: 0}}
	d.AddNode(consumer1, []int{dup1.ID}, nil)

	consumer2 := d.NewNode("SINK")
	consumer2.Inputs = []dag.EdgeDef{{SrcName: dup2.Op, SrcID: dup2.ID, SrcSlot: 0}}
	d.AddNode(consumer2, []int{dup2.ID}, nil)

	if err := optimize.CSE(d); err != nil {
		t.Fatalf("CSE: %v", err)
	}

	uniqueCount := 0
	for _, n := range d.Nodes {
		if n.Op == "ID_UNIQUE" {
			uniqueCount++
		}
	}
	if uniqueCount != 1 {
		t.Fatalf("expected CSE to collapse the two identical ID_UNIQUE nodes into 1, got %d", uniqueCount)
	}
	if consumer1.Inputs[0].SrcID != consumer2.Inputs[0].SrcID {
		t.Fatalf("expected both consumers to be rewired to the same keeper node")
	}

	// idempotent: a second pass has nothing left to collapse.
	before := len(d.Nodes)
	if err := optimize.CSE(d); err != nil {
		t.Fatalf("second CSE: %v", err)
	}
	if len(d.Nodes) != before {
		t.Fatalf("expected CSE to be idempotent, node count went %d -> %d", before, len(d.Nodes))
	}
}

// multiOpChain builds COMPUTE_A(idsA) -> COMPUTE_B(a.out, idsB) -> COMPUTE_C(b.out),
// with two external AS sinks observing COMPUTE_B's and COMPUTE_C's outputs
// directly. This gives the fused component two distinct external inputs
// (consumed by two different ops, at two different input slots) and two
// distinct external outputs (produced by two different ops), so a table
// that maps the wrong op/slot to a kernel is detectable: each op's own
// split/merge kernel must show up at exactly its own inner op's edges, not
// uniformly at whichever op happens to be comp[0].
func multiOpChain(d *dag.DAGDef) (a, b, c, sinkB, sinkC int) {
	an := d.NewNode("COMPUTE_A")
	an.OutputNum = 1
	an.Inputs = []dag.EdgeDef{{SrcName: "idsA", SrcID: dag.ExternalSrcID}}
	d.AddNode(an, nil, nil)

	bn := d.NewNode("COMPUTE_B")
	bn.OutputNum = 1
	bn.Inputs = []dag.EdgeDef{
		{SrcName: an.Op, SrcID: an.ID, SrcSlot: 0},
		{SrcName: "idsB", SrcID: dag.ExternalSrcID},
	}
	d.AddNode(bn, []int{an.ID}, nil)

	cn := d.NewNode("COMPUTE_C")
	cn.OutputNum = 1
	cn.Inputs = []dag.EdgeDef{{SrcName: bn.Op, SrcID: bn.ID, SrcSlot: 0}}
	d.AddNode(cn, []int{bn.ID}, nil)

	sinkBN := d.NewNode("AS")
	sinkBN.Alias = "mid"
	sinkBN.Inputs = []dag.EdgeDef{{SrcName: bn.Op, SrcID: bn.ID, SrcSlot: 0}}
	d.AddNode(sinkBN, []int{bn.ID}, nil)

	sinkCN := d.NewNode("AS")
	sinkCN.Alias = "out"
	sinkCN.Inputs = []dag.EdgeDef{{SrcName: cn.Op, SrcID: cn.ID, SrcSlot: 0}}
	d.AddNode(sinkCN, []int{cn.ID}, nil)

	return an.ID, bn.ID, cn.ID, sinkBN.ID, sinkCN.ID
}

func TestGraphPartitionShardsLargestNonLocalComponent(t *testing.T) {
	d := dag.NewDAGDef("q")
	_, _, _, sinkB, sinkC := multiOpChain(d)

	table := optimize.ShardTable{
		Splits: map[optimize.ShardKey]string{
			{Op: "COMPUTE_A", Slot: 0}: "SPLIT_A",
			{Op: "COMPUTE_B", Slot: 1}: "SPLIT_B",
		},
		Merges: map[optimize.ShardKey]dag.MergeSpec{
			{Op: "COMPUTE_B", Slot: 0}: {MergeOp: "MERGE_B", MergeKind: dag.MergeSequential},
			{Op: "COMPUTE_C", Slot: 0}: {MergeOp: "MERGE_C", MergeKind: dag.MergeSequential},
		},
	}

	rounds, err := optimize.GraphPartition(d, 4, table)
	if err != nil {
		t.Fatalf("GraphPartition: %v", err)
	}
	if rounds != 1 {
		t.Fatalf("expected exactly 1 partition round (COMPUTE_A/B/C form one component), got %d", rounds)
	}

	remotes := 0
	splitOps := map[string]int{}
	mergeOps := map[string]int{}
	for _, n := range d.Nodes {
		switch n.Op {
		case dag.OpRemote:
			remotes++
		case "SPLIT_A", "SPLIT_B":
			splitOps[n.Op]++
		case "MERGE_B", "MERGE_C":
			mergeOps[n.Op]++
		}
	}
	if remotes != 4 {
		t.Fatalf("expected 4 shard remotes, got %d", remotes)
	}
	if splitOps["SPLIT_A"] != 1 || splitOps["SPLIT_B"] != 1 {
		t.Fatalf("expected exactly one SPLIT_A and one SPLIT_B node, got %v", splitOps)
	}
	if mergeOps["MERGE_B"] != 1 || mergeOps["MERGE_C"] != 1 {
		t.Fatalf("expected exactly one MERGE_B and one MERGE_C node, got %v", mergeOps)
	}

	// each external sink must now read from the merge op matching its own
	// producing inner op -- a collapsed-granularity implementation would
	// route both sinks through whichever single spec it picked for the
	// whole component, landing both on the same merge op.
	if got := d.Nodes[sinkB].Inputs[0].SrcName; got != "MERGE_B" {
		t.Fatalf("expected the COMPUTE_B-observing sink to read from MERGE_B, got %q", got)
	}
	if got := d.Nodes[sinkC].Inputs[0].SrcName; got != "MERGE_C" {
		t.Fatalf("expected the COMPUTE_C-observing sink to read from MERGE_C, got %q", got)
	}
}

func TestGraphPartitionNeverCrossesALocalOnlyNode(t *testing.T) {
	d := dag.NewDAGDef("q")

	a := d.NewNode("COMPUTE_A")
	a.OutputNum = 1
	a.Inputs = []dag.EdgeDef{{SrcName: "ids", SrcID: dag.ExternalSrcID}}
	d.AddNode(a, nil, nil)

	// GET_NB_FILTER is in the local-only set: it must stay on the client
	// and split the chain into two separately-sharded components.
	b := d.NewNode("GET_NB_FILTER")
	b.OutputNum = 1
	b.Inputs = []dag.EdgeDef{{SrcName: a.Op, SrcID: a.ID, SrcSlot: 0}}
	d.AddNode(b, []int{a.ID}, nil)

	c := d.NewNode("COMPUTE_C")
	c.OutputNum = 1
	c.Inputs = []dag.EdgeDef{{SrcName: b.Op, SrcID: b.ID, SrcSlot: 0}}
	d.AddNode(c, []int{b.ID}, nil)

	sink := d.NewNode("AS")
	sink.Alias = "out"
	sink.Inputs = []dag.EdgeDef{{SrcName: c.Op, SrcID: c.ID, SrcSlot: 0}}
	d.AddNode(sink, []int{c.ID}, nil)

	table := optimize.ShardTable{
		Splits: map[optimize.ShardKey]string{
			{Op: "COMPUTE_A", Slot: 0}: "SPLIT_A",
			{Op: "COMPUTE_C", Slot: 0}: "SPLIT_C",
		},
		Merges: map[optimize.ShardKey]dag.MergeSpec{
			{Op: "COMPUTE_A", Slot: 0}: {MergeOp: "MERGE_A", MergeKind: dag.MergeSequential},
			{Op: "COMPUTE_C", Slot: 0}: {MergeOp: "MERGE_C", MergeKind: dag.MergeSequential},
		},
	}

	rounds, err := optimize.GraphPartition(d, 2, table)
	if err != nil {
		t.Fatalf("GraphPartition: %v", err)
	}
	if rounds != 2 {
		t.Fatalf("expected 2 rounds (one per component either side of GET_NB_FILTER), got %d", rounds)
	}

	remotes := 0
	for _, n := range d.Nodes {
		if n.Op == dag.OpRemote {
			remotes++
			for _, in := range n.Inner {
				if in.Op == "GET_NB_FILTER" {
					t.Fatal("local-only GET_NB_FILTER must never be fused into a REMOTE")
				}
			}
		}
	}
	if remotes != 4 {
		t.Fatalf("expected 2 components x 2 shards = 4 remotes, got %d", remotes)
	}

	// the filter stays in the outer graph, fed by the first component's
	// merge, feeding the second component's split.
	if b.Inputs[0].SrcName != "MERGE_A" {
		t.Fatalf("expected GET_NB_FILTER to read from MERGE_A, got %q", b.Inputs[0].SrcName)
	}
	var splitC *dag.NodeDef
	for _, n := range d.Nodes {
		if n.Op == "SPLIT_C" {
			splitC = n
		}
	}
	if splitC == nil {
		t.Fatal("expected a SPLIT_C node feeding the second component's remotes")
	}
	if splitC.Inputs[0].SrcID != b.ID {
		t.Fatalf("expected SPLIT_C to read from GET_NB_FILTER, got node %d", splitC.Inputs[0].SrcID)
	}
}
