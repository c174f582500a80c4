package membership

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/buntdb"

	"github.com/euler-graph/euler/status"
)

// StaticMonitor wraps a Base with a buntdb-backed journal of every meta
// key and shard-server membership change applied to it, so a process
// that restarts serves GetMeta/GetShardMeta immediately from the
// last-known table instead of blocking until whatever dynamic monitor
// (ZooKeeper, etcd, ...) feeds it in production reconnects. This is the
// file-backed stand-in SPEC_FULL substitutes for the original's
// ZooKeeper-backed ServerMonitor -- see DESIGN.md.
type StaticMonitor struct {
	*Base
	db *buntdb.DB
}

// OpenStaticMonitor opens (creating if necessary) a buntdb file at path
// and replays any previously-persisted table into a fresh Base. Use
// path ":memory:" for an ephemeral, test-only monitor.
func OpenStaticMonitor(path string) (*StaticMonitor, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, status.Wrap(status.Internal, err, "membership: open %q", path)
	}
	m := &StaticMonitor{Base: NewBase(), db: db}
	if err := m.replay(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *StaticMonitor) replay() error {
	type kv struct{ key, val string }
	var rows []kv
	err := m.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, val string) bool {
			rows = append(rows, kv{key, val})
			return true
		})
	})
	if err != nil {
		return status.Wrap(status.Internal, err, "membership: replay from buntdb")
	}

	for _, row := range rows {
		switch {
		case strings.HasPrefix(row.key, "meta:"):
			m.Base.SetMetaKey(strings.TrimPrefix(row.key, "meta:"), row.val)
		case strings.HasPrefix(row.key, "shardmeta:"):
			idx, mkey, ok := splitShardKey(strings.TrimPrefix(row.key, "shardmeta:"))
			if ok {
				m.Base.SetShardMetaKey(idx, mkey, row.val)
			}
		case strings.HasPrefix(row.key, "server:"):
			idx, host, ok := splitShardKey(strings.TrimPrefix(row.key, "server:"))
			if ok {
				m.Base.AddShardServer(idx, host)
			}
		}
	}
	return nil
}

func splitShardKey(s string) (int, string, bool) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return 0, "", false
	}
	idx, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, "", false
	}
	return idx, s[i+1:], true
}

// SetMeta sets a process-wide meta key and persists it.
func (m *StaticMonitor) SetMeta(key, value string) error {
	m.Base.SetMetaKey(key, value)
	return m.persist("meta:" + key, value)
}

// SetShardMeta sets a per-shard meta key and persists it.
func (m *StaticMonitor) SetShardMeta(shardIndex int, key, value string) error {
	m.Base.SetShardMetaKey(shardIndex, key, value)
	return m.persist(fmt.Sprintf("shardmeta:%d:%s", shardIndex, key), value)
}

// AddServer records hostPort as serving shardIndex, persists it, and
// fires any subscribed ShardCallback's OnAddServer.
func (m *StaticMonitor) AddServer(shardIndex int, hostPort string) error {
	if err := m.persist(fmt.Sprintf("server:%d:%s", shardIndex, hostPort), "1"); err != nil {
		return err
	}
	m.Base.AddShardServer(shardIndex, hostPort)
	return nil
}

// RemoveServer drops hostPort from shardIndex, persists the removal, and
// fires any subscribed ShardCallback's OnRemoveServer.
func (m *StaticMonitor) RemoveServer(shardIndex int, hostPort string) error {
	if err := m.delete(fmt.Sprintf("server:%d:%s", shardIndex, hostPort)); err != nil {
		return err
	}
	m.Base.RemoveShardServer(shardIndex, hostPort)
	return nil
}

func (m *StaticMonitor) persist(key, val string) error {
	err := m.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, val, nil)
		return err
	})
	if err != nil {
		return status.Wrap(status.Internal, err, "membership: persist %q", key)
	}
	return nil
}

func (m *StaticMonitor) delete(key string) error {
	err := m.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return status.Wrap(status.Internal, err, "membership: delete %q", key)
	}
	return nil
}

// Close flushes and closes the underlying buntdb file.
func (m *StaticMonitor) Close() error { return m.db.Close() }
