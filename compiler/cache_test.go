package compiler_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/euler-graph/euler/compiler"
	"github.com/euler-graph/euler/dag"
)

func trivialDAG(op string) *dag.DAGDef {
	d := dag.NewDAGDef("q")
	n := d.NewNode(op)
	n.OutputNum = 1
	n.Inputs = []dag.EdgeDef{{SrcName: "in", SrcID: dag.ExternalSrcID}}
	d.AddNode(n, nil, nil)
	return d
}

func TestCacheCompilesOnceThenHits(t *testing.T) {
	c := compiler.NewCache()
	var builds int32

	build := func() (*dag.DAGDef, error) {
		atomic.AddInt32(&builds, 1)
		return trivialDAG("GET_NODE"), nil
	}

	g1, err := c.Compile("q1", build)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	g2, err := c.Compile("q1", build)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if g1 != g2 {
		t.Fatal("expected the second Compile to return the identical cached *dag.Graph")
	}
	if atomic.LoadInt32(&builds) != 1 {
		t.Fatalf("expected exactly 1 build, got %d", builds)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 cached entry, got %d", c.Len())
	}
}

func TestCacheCollapsesConcurrentMissesForSameKey(t *testing.T) {
	c := compiler.NewCache()
	var builds int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := c.Compile("shared", func() (*dag.DAGDef, error) {
				atomic.AddInt32(&builds, 1)
				return trivialDAG("GET_NODE"), nil
			})
			if err != nil {
				t.Errorf("Compile: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if n := atomic.LoadInt32(&builds); n != 1 {
		t.Fatalf("expected concurrent misses for one key to share a single build, got %d builds", n)
	}
}

func TestCacheDistinctKeysCompileSeparately(t *testing.T) {
	c := compiler.NewCache()
	g1, err := c.Compile("a", func() (*dag.DAGDef, error) { return trivialDAG("GET_NODE"), nil })
	if err != nil {
		t.Fatalf("Compile a: %v", err)
	}
	g2, err := c.Compile("b", func() (*dag.DAGDef, error) { return trivialDAG("GET_EDGE"), nil })
	if err != nil {
		t.Fatalf("Compile b: %v", err)
	}
	if g1 == g2 {
		t.Fatal("expected distinct keys to produce distinct compiled graphs")
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 cached entries, got %d", c.Len())
	}
}

func TestCacheEvict(t *testing.T) {
	c := compiler.NewCache()
	if _, err := c.Compile("q", func() (*dag.DAGDef, error) { return trivialDAG("GET_NODE"), nil }); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	c.Evict("q")
	if _, ok := c.Get("q"); ok {
		t.Fatal("expected evicted key to miss")
	}
}
