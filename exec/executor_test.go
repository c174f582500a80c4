package exec_test

import (
	"context"
	"sync"
	"testing"

	"github.com/euler-graph/euler/dag"
	"github.com/euler-graph/euler/exec"
	"github.com/euler-graph/euler/tensor"
)

type recordingKernel struct {
	name string
	mu   *sync.Mutex
	log  *[]string
	fail bool
}

func (k *recordingKernel) Compute(node tensor.NodeDef, ctx *tensor.Context) error {
	k.mu.Lock()
	*k.log = append(*k.log, k.name)
	k.mu.Unlock()
	if k.fail {
		return errFake
	}
	return nil
}

var errFake = fakeErr{}

type fakeErr struct{}

func (fakeErr) Error() string { return "fake failure" }

func newRegistry(log *[]string, mu *sync.Mutex, failOp string) *tensor.Registry {
	reg := tensor.NewRegistry()
	for _, op := range []string{"A", "B", "C", "D"} {
		op := op
		reg.Register(op, func() (any, error) {
			return &recordingKernel{name: op, mu: mu, log: log, fail: op == failOp}, nil
		})
	}
	return reg
}

// diamond builds A -> {B, C} -> D.
func diamond() *dag.DAGDef {
	d := dag.NewDAGDef("q")
	a := d.NewNode("A")
	a.OutputNum = 1
	d.AddNode(a, nil, nil)

	b := d.NewNode("B")
	b.Inputs = []dag.EdgeDef{{SrcName: "A", SrcID: a.ID, SrcSlot: 0}}
	d.AddNode(b, []int{a.ID}, nil)

	c := d.NewNode("C")
	c.Inputs = []dag.EdgeDef{{SrcName: "A", SrcID: a.ID, SrcSlot: 0}}
	d.AddNode(c, []int{a.ID}, nil)

	dd := d.NewNode("D")
	dd.Inputs = []dag.EdgeDef{
		{SrcName: "B", SrcID: b.ID, SrcSlot: 0},
		{SrcName: "C", SrcID: c.ID, SrcSlot: 0},
	}
	d.AddNode(dd, []int{b.ID, c.ID}, nil)
	return d
}

func TestExecutorRunsEveryNodeToCompletion(t *testing.T) {
	d := diamond()
	g, err := dag.BuildGraph(d)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	var mu sync.Mutex
	var log []string
	reg := newRegistry(&log, &mu, "")

	pool := exec.NewPool(4)
	defer pool.Close()

	e := exec.New(g, pool, tensor.NewContext(), reg)
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(log) != 4 {
		t.Fatalf("expected all 4 nodes to run, got %v", log)
	}
}

func TestExecutorShortCircuitsDownstreamOfAFailure(t *testing.T) {
	d := diamond()
	g, err := dag.BuildGraph(d)
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	var mu sync.Mutex
	var log []string
	reg := newRegistry(&log, &mu, "B") // B fails

	pool := exec.NewPool(4)
	defer pool.Close()

	e := exec.New(g, pool, tensor.NewContext(), reg)
	if err := e.Run(context.Background()); err == nil {
		t.Fatal("expected Run to surface B's failure")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, name := range log {
		if name == "D" {
			t.Fatalf("expected D to be short-circuited since it depends on failed B, but it ran: %v", log)
		}
	}
}
