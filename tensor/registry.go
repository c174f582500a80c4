package tensor

import (
	"sync"

	"github.com/euler-graph/euler/status"
)

// NodeDef is the minimal view of a logical/execution node an OpKernel
// needs at compute time; *dag.NodeDef satisfies this. Declaring it here
// keeps package tensor free of any import of package dag.
type NodeDef interface {
	OpName() string
	NodeName() string
}

// Kernel is a synchronous operator body (spec §4.1).
type Kernel interface {
	Compute(node NodeDef, ctx *Context) error
}

// AsyncKernel is an asynchronous operator body; done is invoked exactly
// once. The Remote operator (C10) is the canonical AsyncKernel.
type AsyncKernel interface {
	ComputeAsync(node NodeDef, ctx *Context, done func(error))
}

// Factory constructs a process-lived singleton kernel instance the first
// time its name is used.
type Factory func() (any, error) // returns Kernel or AsyncKernel

// Registry is the process-wide, name-addressable operator factory table
// (spec §4.1 "Op Kernel Registry"). Entries are added at startup by
// registration hooks (init() functions calling Register) and never
// removed; factories run once per name with the result cached.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	singles   map[string]any
}

var global = NewRegistry()

// Global returns the process-wide registry operator packages register
// themselves into from init().
func Global() *Registry { return global }

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory), singles: make(map[string]any)}
}

// Register installs a factory under name. Publication happens-before any
// concurrent read because it is expected to run only from package init(),
// before any query executes (spec §5 "registry mutated only at startup").
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get returns the singleton kernel for name, building it on first use.
func (r *Registry) Get(name string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k, ok := r.singles[name]; ok {
		return k, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, status.New(status.NotFound, "op kernel %q not registered", name)
	}
	k, err := f()
	if err != nil {
		return nil, status.Wrap(status.Internal, err, "construct op kernel %q", name)
	}
	r.singles[name] = k
	return k, nil
}
