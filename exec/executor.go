// Package exec implements the Executor (C6): a reference-counted dataflow
// engine that dispatches ready operators to a compute pool and supports
// both synchronous and asynchronous op kernels.
//
// Grounded directly on the original's euler/core/framework/executor.cc
// (Run/RunInternal/Run(node)/RunDone), reworked from an atomic-refcount
// array and a raw ThreadPool into a Go worker pool, with two changes
// mandated by spec §9's redesign notes: first, a node's own Compute error
// no longer calls log.Fatal and kills the process -- it is captured as the
// query's first error and every downstream node that depends on it is
// short-circuited (marked failed, never scheduled) instead of run; second,
// the run accepts a context.Context so a cancelled/expired query stops
// scheduling new nodes instead of running to completion unconditionally.
package exec

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/euler-graph/euler/dag"
	"github.com/euler-graph/euler/status"
	"github.com/euler-graph/euler/tensor"
)

// Pool submits a unit of work to run concurrently: a fixed number of
// worker goroutines reading off one shared channel.
type Pool struct {
	work chan func()
	wg   sync.WaitGroup
}

// NewPool starts n worker goroutines. n <= 0 defaults to 1.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = 1
	}
	p := &Pool{work: make(chan func(), 256)}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer p.wg.Done()
			for fn := range p.work {
				fn()
			}
		}()
	}
	return p
}

// Schedule enqueues fn to run on some worker goroutine.
func (p *Pool) Schedule(fn func()) { p.work <- fn }

// Close stops accepting work and waits for in-flight work to drain.
func (p *Pool) Close() {
	close(p.work)
	p.wg.Wait()
}

// DoneCallback is invoked exactly once, when every node has completed or
// been short-circuited.
type DoneCallback func()

// Executor runs one Graph to completion against one tensor.Context, firing
// ready nodes onto a Pool and decrementing successors' pending-input
// counters as each node finishes (spec §4.6).
type Executor struct {
	graph *dag.Graph
	pool  *Pool
	ctx   *tensor.Context
	reg   *tensor.Registry

	ref    []int32 // pending-input counter per node index
	failed []int32 // 1 once a node (or an ancestor) has failed
	idxOf  map[int]int
	remain int32

	errMu    sync.Mutex
	firstErr error

	callback DoneCallback
}

// New builds an Executor for graph, dispatching onto pool and operating on
// ctx. reg resolves op names to kernels (tensor.Global() if nil).
func New(graph *dag.Graph, pool *Pool, ctx *tensor.Context, reg *tensor.Registry) *Executor {
	if reg == nil {
		reg = tensor.Global()
	}
	e := &Executor{
		graph:  graph,
		pool:   pool,
		ctx:    ctx,
		reg:    reg,
		ref:    make([]int32, len(graph.Nodes)),
		failed: make([]int32, len(graph.Nodes)),
		idxOf:  make(map[int]int, len(graph.Nodes)),
		remain: int32(len(graph.Nodes)),
	}
	for i, n := range graph.Nodes {
		e.idxOf[n.ID] = i
		e.ref[i] = int32(graph.InDegree(n.ID))
	}
	return e
}

// Run blocks until every node has completed or been short-circuited, then
// returns the query's first error, if any.
func (e *Executor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	e.RunAsync(ctx, func() { wg.Done() })
	wg.Wait()
	return e.Err()
}

// RunAsync returns immediately; callback fires once, from whichever
// goroutine completes or short-circuits the last node (mirrors the
// original's Run(DoneCallback)).
func (e *Executor) RunAsync(ctx context.Context, callback DoneCallback) {
	e.callback = callback
	if len(e.graph.Nodes) == 0 {
		callback()
		return
	}
	for i, n := range e.graph.Nodes {
		if e.ref[i] == 0 {
			e.dispatch(ctx, i, n)
		}
	}
}

// Err returns the query's first error, or nil if every scheduled node ran
// without one.
func (e *Executor) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.firstErr
}

func (e *Executor) setErr(err error) {
	if err == nil {
		return
	}
	e.errMu.Lock()
	if e.firstErr == nil {
		e.firstErr = err
	}
	e.errMu.Unlock()
}

func (e *Executor) dispatch(ctx context.Context, idx int, node *dag.NodeDef) {
	if atomic.LoadInt32(&e.failed[idx]) == 1 || ctx.Err() != nil {
		if ctx.Err() != nil {
			e.setErr(status.Wrap(status.Cancelled, ctx.Err(), "query cancelled before node %s ran", node.NodeName()))
			atomic.StoreInt32(&e.failed[idx], 1)
		}
		e.runDone(ctx, idx, node, true)
		return
	}

	kernel, err := e.reg.Get(node.Op)
	if err != nil {
		e.setErr(status.Wrap(status.Internal, err, "no kernel for op %q (node %s)", node.Op, node.NodeName()))
		atomic.StoreInt32(&e.failed[idx], 1)
		e.runDone(ctx, idx, node, true)
		return
	}

	if async, ok := kernel.(tensor.AsyncKernel); ok {
		e.pool.Schedule(func() {
			async.ComputeAsync(node, e.ctx, func(err error) {
				failed := err != nil
				if failed {
					e.setErr(status.Wrap(status.Internal, err, "node %s failed", node.NodeName()))
					atomic.StoreInt32(&e.failed[idx], 1)
				}
				e.runDone(ctx, idx, node, failed)
			})
		})
		return
	}

	syncKernel, ok := kernel.(tensor.Kernel)
	if !ok {
		e.setErr(status.New(status.Internal, "kernel for op %q is neither sync nor async", node.Op))
		atomic.StoreInt32(&e.failed[idx], 1)
		e.runDone(ctx, idx, node, true)
		return
	}
	e.pool.Schedule(func() {
		err := syncKernel.Compute(node, e.ctx)
		failed := err != nil
		if failed {
			e.setErr(status.Wrap(status.Internal, err, "node %s failed", node.NodeName()))
			atomic.StoreInt32(&e.failed[idx], 1)
		}
		e.runDone(ctx, idx, node, failed)
	})
}

func (e *Executor) runDone(ctx context.Context, idx int, node *dag.NodeDef, failed bool) {
	for _, edge := range e.graph.OutEdges(node.ID) {
		dstIdx := e.idxOf[edge.DstNode]
		if failed {
			atomic.StoreInt32(&e.failed[dstIdx], 1)
		}
		if atomic.AddInt32(&e.ref[dstIdx], -1) == 0 {
			e.dispatch(ctx, dstIdx, e.graph.Nodes[dstIdx])
		}
	}
	if atomic.AddInt32(&e.remain, -1) == 0 {
		e.callback()
	}
}
