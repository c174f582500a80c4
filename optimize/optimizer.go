// Package optimize implements the Optimiser (C4): sub-graph-isomorphism
// pattern matching, fusion, shard-splitting, an optional graph-partition
// mode, and a final common-subexpression-elimination pass.
//
// Grounded on spec §4.4 and, for the matcher, on the original's
// euler/core/dag_def/sub_graph_iso.cc.
package optimize

import (
	"github.com/euler-graph/euler/dag"
	"github.com/euler-graph/euler/elog"
	"github.com/euler-graph/euler/status"
)

// Optimizer holds the ordered rule list plus the optional graph-partition
// configuration (spec §4.4).
type Optimizer struct {
	Rules []FusionAndShardRule

	// PartitionMode, when true, replaces the ordered-rule pass with
	// graph-partition mode: repeatedly fuse+shard the largest connected
	// non-local-only subgraph per PartitionTable, until no progress.
	PartitionMode  bool
	PartitionShard int
	PartitionTable ShardTable
}

// Optimize rewrites host in place. Failure is total (spec §4.4): any rule
// or pass failure aborts the whole compile.
func (o *Optimizer) Optimize(host *dag.DAGDef) error {
	if o.PartitionMode {
		rounds, err := GraphPartition(host, o.PartitionShard, o.PartitionTable)
		if err != nil {
			return status.Wrap(status.FailedPrecondition, err, "optimize: graph-partition mode failed")
		}
		elog.Infof("[%s] graph-partition mode: %d rounds applied", elog.SModuleOptimizer, rounds)
		return nil
	}

	for _, rule := range o.Rules {
		applied, err := applyFusionAndShard(host, rule)
		if err != nil {
			return status.Wrap(status.FailedPrecondition, err, "optimize: rule %q failed", rule.Name)
		}
		if elog.FastV(2, elog.SModuleOptimizer) {
			elog.Infof("[%s] rule %q applied %d times", elog.SModuleOptimizer, rule.Name, applied)
		}
	}

	if err := CSE(host); err != nil {
		return status.Wrap(status.FailedPrecondition, err, "optimize: CSE pass failed")
	}
	return nil
}
