package shard

import (
	"math/rand"
	"sort"

	"github.com/euler-graph/euler/status"
)

// SumWeightsAcrossTypes mirrors RemoteGraph::Initialize's "Summary node
// weights on all node_types for each shard": given one weight vector per
// type (outer index = type, inner index = shard), it returns the
// per-shard total across every type, used as the weight table for
// type == -1 ("any type"). A per-type vector whose length differs from
// shardNum is rejected rather than silently zero-padded: a shard missing
// from one type's vector means its advertised meta is stale or corrupt,
// and padding would quietly skew the sampler toward the other shards.
func SumWeightsAcrossTypes(perType [][]float64, shardNum int) ([]float64, error) {
	sum := make([]float64, shardNum)
	for typ, w := range perType {
		if len(w) != shardNum {
			return nil, status.New(status.InvalidArgument,
				"weight vector for type %d covers %d shards, want %d", typ, len(w), shardNum)
		}
		for i, v := range w {
			sum[i] += v
		}
	}
	return sum, nil
}

// WeightedPicker proportionally selects a shard id, weighted by each
// shard's node/edge weight sum. Grounded on remote_graph.cc's use of
// CompactWeightedCollection to sample a shard before issuing SampleNode/
// SampleEdge: that type builds a cumulative weight table over a shard
// index list and samples proportionally to it. This reimplements the same
// cumulative-table-plus-binary-search shape using sort.Search rather than
// the alias method.
type WeightedPicker struct {
	ids []int
	cum []float64
	rng *rand.Rand
}

// NewWeightedPicker builds a picker over ids, each weighted by the
// matching entry of weights. weights must be non-negative and sum to a
// positive total. rng may be nil, in which case a new source with the
// fixed seed 1 is used, so the pick sequence is deterministic.
func NewWeightedPicker(ids []int, weights []float64, rng *rand.Rand) (*WeightedPicker, error) {
	if len(ids) != len(weights) {
		return nil, status.New(status.InvalidArgument, "weighted picker: %d ids but %d weights", len(ids), len(weights))
	}
	if len(ids) == 0 {
		return nil, status.New(status.InvalidArgument, "weighted picker: no candidates")
	}
	cum := make([]float64, len(ids))
	sum := 0.0
	for i, w := range weights {
		if w < 0 {
			return nil, status.New(status.InvalidArgument, "weighted picker: negative weight for id %d", ids[i])
		}
		sum += w
		cum[i] = sum
	}
	if sum <= 0 {
		return nil, status.New(status.InvalidArgument, "weighted picker: all weights are zero")
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &WeightedPicker{ids: append([]int(nil), ids...), cum: cum, rng: rng}, nil
}

// Pick samples one id, proportionally to its weight.
func (p *WeightedPicker) Pick() int {
	target := p.rng.Float64() * p.cum[len(p.cum)-1]
	i := sort.Search(len(p.cum), func(i int) bool { return p.cum[i] > target })
	if i == len(p.cum) {
		i = len(p.cum) - 1
	}
	return p.ids[i]
}
