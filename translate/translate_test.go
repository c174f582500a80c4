package translate_test

import (
	"testing"

	"github.com/euler-graph/euler/dag"
	"github.com/euler-graph/euler/translate"
)

func TestEmitAPIChain(t *testing.T) {
	root := &translate.Step{Kind: translate.KindAPI, Op: "GET_NODE", InputName: "ids"}
	filtered := &translate.Step{Kind: translate.KindFilter, Prev: root, Field: "age", CmpOp: ">", Value: "18"}
	aliased := &translate.Step{Kind: translate.KindAlias, Prev: filtered, Alias: "adults"}

	tr := translate.New("q")
	id, err := tr.Translate(aliased)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	d := tr.DAGDef()
	asNode := d.Nodes[id]
	if asNode.Op != translate.OpAs || asNode.Alias != "adults" {
		t.Fatalf("expected AS node aliased 'adults', got %+v", asNode)
	}
	if len(d.Nodes) != 2 {
		t.Fatalf("expected 2 nodes (GET_NODE + AS), got %d", len(d.Nodes))
	}

	var getNode *dag.NodeDef
	for _, n := range d.Nodes {
		if n.Op == "GET_NODE" {
			getNode = n
		}
	}
	if getNode == nil || getNode.Cond == nil || len(getNode.Cond.DNF) != 1 {
		t.Fatalf("expected GET_NODE to carry the accumulated DNF clause")
	}
}

func TestOrderByWeightRejectedWithoutWeightEmitter(t *testing.T) {
	root := &translate.Step{Kind: translate.KindAPI, Op: "GET_NODE", InputName: "ids"}
	ordered := &translate.Step{Kind: translate.KindPostProcess, Prev: root, PPName: "order_by", PPArgs: []string{"weight"}}

	tr := translate.New("q")
	if _, err := tr.Translate(ordered); err == nil {
		t.Fatal("expected order_by weight to be rejected for a non-weight-emitting predecessor")
	}
}

func TestOrderByWeightAcceptedForWeightEmitter(t *testing.T) {
	root := &translate.Step{Kind: translate.KindAPI, Op: translate.OpSampleNbWeighted, InputName: "ids"}
	ordered := &translate.Step{Kind: translate.KindPostProcess, Prev: root, PPName: "order_by", PPArgs: []string{"weight"}}

	tr := translate.New("q")
	if _, err := tr.Translate(ordered); err != nil {
		t.Fatalf("expected order_by weight to be accepted, got %v", err)
	}
}

func TestNeighbourFilterExpandsToThreeNodes(t *testing.T) {
	nb := &translate.Step{Kind: translate.KindNeighbourFilter, InputName: "ids", NbOp: "friend"}
	filtered := &translate.Step{Kind: translate.KindFilter, Prev: nb, Field: "city", CmpOp: "=", Value: "sf"}
	limited := &translate.Step{Kind: translate.KindPostProcess, Prev: filtered, PPName: "limit", PPArgs: []string{"10"}}

	tr := translate.New("q")
	id, err := tr.Translate(limited)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	d := tr.DAGDef()
	if len(d.Nodes) != 3 {
		t.Fatalf("expected the 3-node GET_NB_NODE/GET_NODE/GET_NB_FILTER expansion, got %d nodes", len(d.Nodes))
	}
	final := d.Nodes[id]
	if final.Op != translate.OpGetNbFilter {
		t.Fatalf("expected final node to be %s, got %s", translate.OpGetNbFilter, final.Op)
	}
	if final.Cond == nil || len(final.Cond.PostProcess) != 1 {
		t.Fatalf("expected post-process to land on the final GET_NB_FILTER node")
	}
}

func TestLayerSamplerExpandsToFourNodesPlusOnePerLayer(t *testing.T) {
	ls := &translate.Step{
		Kind:         translate.KindLayerSampler,
		InputName:    "roots",
		NumLayers:    2,
		SampleCounts: []int{5, 10},
		Weighted:     true,
	}
	tr := translate.New("q")
	id, err := tr.Translate(ls)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	d := tr.DAGDef()
	// edge-sum-weight, sample-root, 2x sample-L, sparse-gen-adj, gather-result
	if len(d.Nodes) != 6 {
		t.Fatalf("expected 6 nodes for a 2-layer sampler, got %d", len(d.Nodes))
	}
	if d.Nodes[id].Op != translate.OpGatherResult {
		t.Fatalf("expected chain to terminate at %s, got %s", translate.OpGatherResult, d.Nodes[id].Op)
	}
	order, err := d.TopologicalSort(nil)
	if err != nil {
		t.Fatalf("expected the expanded sampler subgraph to be acyclic: %v", err)
	}
	if len(order) != 6 {
		t.Fatalf("expected a total order over all 6 nodes, got %d", len(order))
	}
}

func TestRefResolvesEarlierAlias(t *testing.T) {
	root := &translate.Step{Kind: translate.KindAPI, Op: "GET_NODE", InputName: "ids"}
	aliased := &translate.Step{Kind: translate.KindAlias, Prev: root, Alias: "x"}

	tr := translate.New("q")
	firstID, err := tr.Translate(aliased)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	ref := &translate.Step{Kind: translate.KindRef, Alias: "x"}
	secondID, err := tr.Translate(ref)
	if err != nil {
		t.Fatalf("Translate ref: %v", err)
	}
	if firstID != secondID {
		t.Fatalf("expected KindRef to resolve to the same node id as the original alias, got %d vs %d", firstID, secondID)
	}
}

func TestRefUnknownAliasFails(t *testing.T) {
	tr := translate.New("q")
	ref := &translate.Step{Kind: translate.KindRef, Alias: "nope"}
	if _, err := tr.Translate(ref); err == nil {
		t.Fatal("expected an error for an unresolved alias reference")
	}
}
