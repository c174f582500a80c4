package tensor

import (
	"sync"

	"github.com/euler-graph/euler/status"
)

// Context is a query-scoped mapping from tensor name to Tensor (spec §4.1's
// "Op Kernel Context"). Names follow the wire convention
// "<op_name>,<node_id>:<output_slot>". Multiple names may alias the same
// underlying Tensor; Deallocate frees the backing storage exactly once.
type Context struct {
	mu      sync.Mutex
	entries map[string]*Tensor
	// aliasOf tracks, for a given Tensor pointer, every name pointing at
	// it. It is bookkeeping only: Release does the refcount math that
	// decides when the buffer is freed.
	aliasOf map[*Tensor]map[string]struct{}
}

// NewContext returns an empty, query-scoped context.
func NewContext() *Context {
	return &Context{
		entries: make(map[string]*Tensor),
		aliasOf: make(map[*Tensor]map[string]struct{}),
	}
}

// Allocate creates a new tensor under name. Fails with AlreadyExists if the
// name is taken, matching spec §4.1's insert invariant.
func (c *Context) Allocate(name string, dtype DType, shape Shape) (*Tensor, error) {
	if err := checkCompatible(dtype, shape); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[name]; ok {
		return nil, status.New(status.AlreadyExists, "tensor %q already exists", name)
	}
	t := New(dtype, shape, "default")
	c.insertLocked(name, t)
	return t, nil
}

// InstallAlias registers name as pointing at an already-existing tensor,
// retaining it so the underlying buffer survives until every alias (and
// the original) is deallocated.
func (c *Context) InstallAlias(name string, t *Tensor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[name]; ok {
		return status.New(status.AlreadyExists, "tensor %q already exists", name)
	}
	t.Retain()
	c.insertLocked(name, t)
	return nil
}

func (c *Context) insertLocked(name string, t *Tensor) {
	c.entries[name] = t
	if c.aliasOf[t] == nil {
		c.aliasOf[t] = make(map[string]struct{})
	}
	c.aliasOf[t][name] = struct{}{}
}

// Decode installs a new tensor under name by decoding a wire-format buffer
// (spec §4.1 encode/decode contract).
func (c *Context) Decode(name string, wire []byte) (*Tensor, error) {
	t, err := Decode(wire)
	if err != nil {
		return nil, status.Wrap(status.ProtoError, err, "decode tensor %q", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[name]; ok {
		return nil, status.New(status.AlreadyExists, "tensor %q already exists", name)
	}
	c.insertLocked(name, t)
	return t, nil
}

// Get looks up a tensor by name.
func (c *Context) Get(name string) (*Tensor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[name]
	if !ok {
		return nil, status.New(status.NotFound, "tensor %q not found", name)
	}
	return t, nil
}

// RemoveAlias drops name from the context without releasing the
// underlying buffer -- used when rewiring an alias without freeing data
// still referenced elsewhere.
func (c *Context) RemoveAlias(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[name]
	if !ok {
		return
	}
	delete(c.entries, name)
	if set := c.aliasOf[t]; set != nil {
		delete(set, name)
		if len(set) == 0 {
			delete(c.aliasOf, t)
		}
	}
}

// Deallocate removes name and releases the underlying tensor. If other
// aliases still reference it, the buffer survives (refcount > 0); the
// destructor runs exactly once when the last alias is deallocated.
func (c *Context) Deallocate(name string) {
	c.mu.Lock()
	t, ok := c.entries[name]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.entries, name)
	if set := c.aliasOf[t]; set != nil {
		delete(set, name)
		if len(set) == 0 {
			delete(c.aliasOf, t)
		}
	}
	c.mu.Unlock()
	t.Release()
}

// Names returns a snapshot of all currently-installed tensor names.
func (c *Context) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	return out
}

// Close releases every entry still installed -- called by the Worker
// Service (C9) and the compiler Session on every exit path (spec §4.9 step 5).
func (c *Context) Close() {
	c.mu.Lock()
	names := make([]string, 0, len(c.entries))
	for k := range c.entries {
		names = append(names, k)
	}
	c.mu.Unlock()
	for _, n := range names {
		c.Deallocate(n)
	}
}
