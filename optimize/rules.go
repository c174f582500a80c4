package optimize

import (
	"github.com/euler-graph/euler/dag"
	"github.com/euler-graph/euler/status"
)

// SplitGenerator computes dynamic shard-split parameters for a match
// (spec §4.4: "compute dynamic split/output if the rule provides
// generators"). A rule whose Shard field is nil fuses without sharding.
type SplitGenerator func(match map[int]int, host *dag.DAGDef) (dag.ShardRule, error)

// FusionAndShardRule is one entry of the optimiser's ordered rule list
// (spec §4.4): a pattern DAG to match, an optional per-pattern-node side
// predicate, the fusion parameters, and -- when the fused op is REMOTE --
// shard parameters.
type FusionAndShardRule struct {
	Name    string
	Pattern *dag.DAGDef
	Extra   ExtraCond

	FusionOutputMap map[string]int
	Shard           *SplitGenerator // nil: fused node is not sharded
}

// applyFusionAndShard runs one matching pass of rule against host (it does
// not re-match after fusing): it matches every embedding, fuses each (node-disjoint, so matches from one
// SubGraphMatch call never interfere with each other), and shard-splits
// the result when the rule carries shard parameters.
func applyFusionAndShard(host *dag.DAGDef, rule FusionAndShardRule) (int, error) {
	matches := SubGraphMatch(host, rule.Pattern, rule.Extra)
	applied := 0
	for _, m := range matches {
		ids := make([]int, 0, len(m))
		for _, hostID := range m {
			ids = append(ids, hostID)
		}
		fusionName := rule.Name
		if rule.Shard != nil {
			fusionName = dag.OpRemote
		}
		fused, err := host.FusionNodes(ids, dag.FusionRule{FusionName: fusionName, FusionOutputMap: rule.FusionOutputMap})
		if err != nil {
			return applied, status.Wrap(status.Internal, err, "rule %q: fusion_nodes failed", rule.Name)
		}
		applied++
		if rule.Shard != nil {
			shardRule, err := (*rule.Shard)(m, host)
			if err != nil {
				return applied, status.Wrap(status.Internal, err, "rule %q: split-info generator failed", rule.Name)
			}
			if err := host.ShardRemote(fused.ID, shardRule); err != nil {
				return applied, status.Wrap(status.Internal, err, "rule %q: shard_remote failed", rule.Name)
			}
		}
	}
	return applied, nil
}
