package optimize

import (
	"fmt"

	"github.com/euler-graph/euler/dag"
)

// ExtraCond is a per-pattern-node side predicate over the candidate host
// node, keyed by "op_name,pattern_id" -- the same key form the original
// uses (euler/core/dag_def/sub_graph_iso.cc's extra_cond map).
type ExtraCond map[string]func(hostNode *dag.NodeDef) bool

func extraCondKey(n *dag.NodeDef) string { return fmt.Sprintf("%s,%d", n.Op, n.ID) }

// matchMap tracks one in-progress embedding: pattern id <-> host id, plus
// the set of pattern ids not yet matched. Ported directly from the
// original's MatchMap.
type matchMap struct {
	p2m     map[int]int
	m2p     map[int]int
	unmatch map[int]bool
}

func newMatchMap(pattern *dag.DAGDef) *matchMap {
	mm := &matchMap{p2m: map[int]int{}, m2p: map[int]int{}, unmatch: map[int]bool{}}
	for id := range pattern.Nodes {
		mm.unmatch[id] = true
	}
	return mm
}

func (m *matchMap) addPair(p, h int) {
	m.p2m[p] = h
	m.m2p[h] = p
	delete(m.unmatch, p)
}

func (m *matchMap) deletePair(p, h int) {
	delete(m.p2m, p)
	delete(m.m2p, h)
	m.unmatch[p] = true
}

func (m *matchMap) p2mOf(p int) (int, bool) { h, ok := m.p2m[p]; return h, ok }
func (m *matchMap) m2pOf(h int) (int, bool) { p, ok := m.m2p[h]; return p, ok }

func (m *matchMap) offerUnmatched() (int, bool) {
	for id := range m.unmatch {
		return id, true
	}
	return 0, false
}

// nodeMatch checks whether hostNode is a structurally-consistent candidate
// for patNode given the partial embedding in match: same op name, any
// extra_cond predicate satisfied, and every already-mapped predecessor/
// successor of patNode present (mapped) on the host side, with enough
// remaining unmapped host neighbours to cover the rest.
func nodeMatch(hostNode, patNode *dag.NodeDef, extra ExtraCond, match *matchMap) bool {
	if hostNode.Op != patNode.Op {
		return false
	}
	if cond, ok := extra[extraCondKey(patNode)]; ok && !cond(hostNode) {
		return false
	}

	if len(patNode.Preds) > len(hostNode.Preds) {
		return false
	}
	pUnmatchedPre := 0
	for pPre := range patNode.Preds {
		if hPre, ok := match.p2mOf(pPre); ok {
			if _, in := hostNode.Preds[hPre]; !in {
				return false
			}
		} else {
			pUnmatchedPre++
		}
	}
	hUnmatchedPre := 0
	for hPre := range hostNode.Preds {
		if _, ok := match.m2pOf(hPre); !ok {
			hUnmatchedPre++
		}
	}
	if pUnmatchedPre > hUnmatchedPre {
		return false
	}

	if len(patNode.Succs) > len(hostNode.Succs) {
		return false
	}
	pUnmatchedSucc := 0
	for pSucc := range patNode.Succs {
		if hSucc, ok := match.p2mOf(pSucc); ok {
			if _, in := hostNode.Succs[hSucc]; !in {
				return false
			}
		} else {
			pUnmatchedSucc++
		}
	}
	hUnmatchedSucc := 0
	for hSucc := range hostNode.Succs {
		if _, ok := match.m2pOf(hSucc); !ok {
			hUnmatchedSucc++
		}
	}
	return pUnmatchedSucc <= hUnmatchedSucc
}

// matchFrom is the recursive backtracking core, ported from the original's
// Match(): extend the embedding one pattern/host node pair at a time,
// following one pattern successor per recursion level, backtracking on
// failure.
func matchFrom(host, pattern *dag.DAGDef, hostNode, patNode *dag.NodeDef, extra ExtraCond, match *matchMap) bool {
	if h, ok := match.p2mOf(patNode.ID); ok && h == hostNode.ID {
		unmatched, ok := match.offerUnmatched()
		if !ok {
			return true
		}
		nextPat := pattern.Nodes[unmatched]
		for _, candidate := range host.Nodes {
			if matchFrom(host, pattern, candidate, nextPat, extra, match) {
				return true
			}
		}
		return false
	}

	_, pTaken := match.p2mOf(patNode.ID)
	_, hTaken := match.m2pOf(hostNode.ID)
	if pTaken || hTaken {
		return false
	}

	if !nodeMatch(hostNode, patNode, extra, match) {
		return false
	}
	match.addPair(patNode.ID, hostNode.ID)

	var nextPatID int = -1
	for s := range patNode.Succs {
		nextPatID = s
		break
	}

	var ok bool
	if nextPatID == -1 {
		ok = matchFrom(host, pattern, hostNode, patNode, extra, match)
	} else {
		nextPat := pattern.Nodes[nextPatID]
		for hSucc := range hostNode.Succs {
			if matchFrom(host, pattern, host.Nodes[hSucc], nextPat, extra, match) {
				ok = true
				break
			}
		}
	}
	if !ok {
		match.deletePair(patNode.ID, hostNode.ID)
	}
	return ok
}

// SubGraphMatch returns every node-disjoint embedding of pattern into host,
// as pattern-id -> host-id maps, per spec §4.4's sub_graph_match: a host
// node is consumed by at most one embedding.
func SubGraphMatch(host, pattern *dag.DAGDef, extra ExtraCond) []map[int]int {
	consumed := map[int]bool{}
	var results []map[int]int

	for _, patNode := range pattern.Nodes {
		for _, hostNode := range host.Nodes {
			if consumed[hostNode.ID] {
				continue
			}
			match := newMatchMap(pattern)
			if matchFrom(host, pattern, hostNode, patNode, extra, match) && len(match.p2m) > 0 {
				copyMap := make(map[int]int, len(match.p2m))
				for p, h := range match.p2m {
					copyMap[p] = h
					consumed[h] = true
				}
				results = append(results, copyMap)
			}
		}
	}
	return results
}
