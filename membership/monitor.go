// Package membership implements the Shard-Membership Monitor (C8): the
// source of truth for which hosts serve which shard, plus a subscription
// mechanism the RPC Client Pool (C7) uses to keep its channel list in
// sync.
//
// Grounded on the original's euler/common/server_monitor.h/.cc: a
// process-wide meta map, a per-shard meta map, a per-shard server set,
// and a per-shard callback set invoked synchronously as servers join or
// leave -- including firing on_add_server for every already-known server
// the instant a new callback subscribes, so a late subscriber never
// misses membership it could otherwise have raced.
package membership

import (
	"sync"

	"github.com/euler-graph/euler/status"
)

// ShardCallback mirrors the original's ShardCallback: a pair of hooks a
// subscriber (typically one shard.Pool) registers to learn about servers
// joining or leaving its shard.
type ShardCallback struct {
	OnAddServer    func(hostPort string)
	OnRemoveServer func(hostPort string)
}

type shardInfo struct {
	meta      map[string]string
	metaKnown bool
	servers   map[string]bool
	callbacks map[*ShardCallback]bool
}

// Base is the mutable membership table: process-wide meta plus one
// shardInfo per shard index. Exported methods are safe for concurrent
// use; Base is embedded by StaticMonitor and any future dynamic
// implementation (e.g. a ZooKeeper or etcd watcher) the same way
// ServerMonitorBase backs ServerMonitor in the original.
//
// GetMeta/GetShardMeta block until the corresponding meta has been
// observed at least once (server_monitor.cc: cv_.wait until meta_ is
// set). Callers that want a non-blocking read run GetMeta on their own
// goroutine with their own timeout, per the contract in spec §7.
type Base struct {
	mu        sync.Mutex
	cond      *sync.Cond
	meta      map[string]string
	metaKnown bool
	shards    map[int]*shardInfo
}

// NewBase returns an empty membership table.
func NewBase() *Base {
	b := &Base{shards: make(map[int]*shardInfo)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *Base) shard(idx int) *shardInfo {
	s, ok := b.shards[idx]
	if !ok {
		s = &shardInfo{
			meta:      make(map[string]string),
			servers:   make(map[string]bool),
			callbacks: make(map[*ShardCallback]bool),
		}
		b.shards[idx] = s
	}
	return s
}

// GetMeta reads a process-wide meta key, e.g. "num_shards", blocking
// until the global meta has been observed at least once. A key absent
// from the observed meta returns ("", false) without further waiting.
func (b *Base) GetMeta(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for !b.metaKnown {
		b.cond.Wait()
	}
	v, ok := b.meta[key]
	return v, ok
}

// GetNumShards reads the well-known "num_shards" meta key, blocking
// (via GetMeta) until the global meta has been observed. It fails only
// when the observed meta genuinely lacks the key or carries a
// non-numeric value.
func (b *Base) GetNumShards() (int, error) {
	v, ok := b.GetMeta("num_shards")
	if !ok {
		return 0, status.New(status.NotFound, "membership: num_shards not set")
	}
	n, err := parseUint(v)
	if err != nil {
		return 0, status.Wrap(status.Internal, err, "membership: invalid num_shards meta %q", v)
	}
	return n, nil
}

// GetShardMeta reads a per-shard meta key, e.g. "node_sum_weight",
// blocking until that shard's meta has been observed at least once.
func (b *Base) GetShardMeta(shardIndex int, key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.shard(shardIndex)
	for !s.metaKnown {
		b.cond.Wait()
	}
	v, ok := s.meta[key]
	return v, ok
}

// UpdateMeta replaces the process-wide meta map wholesale (matches the
// original's ServerMonitorBase::UpdateMeta) and wakes every GetMeta
// waiter.
func (b *Base) UpdateMeta(meta map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.meta = meta
	b.metaKnown = true
	b.cond.Broadcast()
}

// UpdateShardMeta replaces one shard's meta map wholesale and wakes
// every GetShardMeta waiter.
func (b *Base) UpdateShardMeta(shardIndex int, meta map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.shard(shardIndex)
	s.meta = meta
	s.metaKnown = true
	b.cond.Broadcast()
}

// SetMetaKey sets a single process-wide meta key in place, leaving the
// rest of the map untouched.
func (b *Base) SetMetaKey(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.meta == nil {
		b.meta = make(map[string]string)
	}
	b.meta[key] = value
	b.metaKnown = true
	b.cond.Broadcast()
}

// SetShardMetaKey sets a single per-shard meta key in place.
func (b *Base) SetShardMetaKey(shardIndex int, key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.shard(shardIndex)
	s.meta[key] = value
	s.metaKnown = true
	b.cond.Broadcast()
}

// AddShardServer records hostPort as serving shardIndex and fires every
// subscribed callback's OnAddServer for it.
func (b *Base) AddShardServer(shardIndex int, hostPort string) {
	b.mu.Lock()
	s := b.shard(shardIndex)
	s.servers[hostPort] = true
	cbs := snapshotCallbacks(s.callbacks)
	b.mu.Unlock()

	for _, cb := range cbs {
		if cb.OnAddServer != nil {
			cb.OnAddServer(hostPort)
		}
	}
}

// RemoveShardServer drops hostPort from shardIndex and fires every
// subscribed callback's OnRemoveServer for it.
func (b *Base) RemoveShardServer(shardIndex int, hostPort string) {
	b.mu.Lock()
	s := b.shard(shardIndex)
	delete(s.servers, hostPort)
	cbs := snapshotCallbacks(s.callbacks)
	b.mu.Unlock()

	for _, cb := range cbs {
		if cb.OnRemoveServer != nil {
			cb.OnRemoveServer(hostPort)
		}
	}
}

// SetShardCallback subscribes cb to shardIndex, synchronously firing
// OnAddServer for every server already known on that shard (so a
// subscriber never has to separately list-then-subscribe). Returns false
// if cb is already subscribed.
func (b *Base) SetShardCallback(shardIndex int, cb *ShardCallback) bool {
	b.mu.Lock()
	s := b.shard(shardIndex)
	if s.callbacks[cb] {
		b.mu.Unlock()
		return false
	}
	s.callbacks[cb] = true
	existing := make([]string, 0, len(s.servers))
	for host := range s.servers {
		existing = append(existing, host)
	}
	b.mu.Unlock()

	if cb.OnAddServer != nil {
		for _, host := range existing {
			cb.OnAddServer(host)
		}
	}
	return true
}

// UnsetShardCallback removes cb from shardIndex's subscriber set.
func (b *Base) UnsetShardCallback(shardIndex int, cb *ShardCallback) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.shard(shardIndex)
	if !s.callbacks[cb] {
		return false
	}
	delete(s.callbacks, cb)
	return true
}

func snapshotCallbacks(m map[*ShardCallback]bool) []*ShardCallback {
	out := make([]*ShardCallback, 0, len(m))
	for cb := range m {
		out = append(out, cb)
	}
	return out
}

func parseUint(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, status.New(status.InvalidArgument, "empty integer")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, status.New(status.InvalidArgument, "not a non-negative integer: %q", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
