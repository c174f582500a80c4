package translate

// Op names the Translator emits directly or as part of an expansion.
// Individual operator kernels are a non-goal (spec.md §1 non-goals); these
// constants exist so the translator and its tests share one vocabulary.
const (
	OpAs          = "AS"
	OpPostProcess = "POST_PROCESS"

	OpGetNbNode   = "GET_NB_NODE"
	OpGetNode     = "GET_NODE"
	OpGetNbFilter = "GET_NB_FILTER"

	OpEdgeSumWeight = "EDGE_SUM_WEIGHT"
	OpSampleRoot    = "SAMPLE_ROOT"
	OpSampleL       = "SAMPLE_L"
	OpSparseGenAdj  = "SPARSE_GEN_ADJ"
	OpGatherResult  = "GATHER_RESULT"

	OpSampleNbWeighted = "SAMPLE_NB_WEIGHTED"
)

// weightEmitters is the set of op names whose last output slot is a weight
// tensor, per spec §4.3's "order_by weight" validation rule.
var weightEmitters = map[string]bool{
	OpEdgeSumWeight:     true,
	OpSampleNbWeighted:  true,
	OpSparseGenAdj:      true,
}

func emitsWeight(op string) bool { return weightEmitters[op] }
