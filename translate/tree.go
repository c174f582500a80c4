// Package translate implements the Translator (C3): a two-pass walk over an
// already-parsed pipeline tree that emits a logical dag.DAGDef. Tokenising
// and parsing pipeline text into this tree is the textual-grammar concern
// spec.md §1 explicitly excludes; Step is the boundary Translate accepts
// instead of raw query text.
//
// Grounded on dag's own build style (NewNode/AddNode, explicit error
// returns) and on the original's translator.cc two-pass description in
// spec.md §4.3.
package translate

// Kind discriminates the shape of one Step in the chain.
type Kind int

const (
	// KindAPI is a real traversal verb: always one NodeDef (the expansion
	// forms are the separate kinds KindNeighbourFilter and KindLayerSampler).
	KindAPI Kind = iota
	// KindFilter is a single DNF conjunction term wrapping Prev.
	KindFilter
	// KindPostProcess is one ordered post-process command (order_by,
	// limit) wrapping Prev.
	KindPostProcess
	// KindAlias is an AS(name) wrapping Prev.
	KindAlias
	// KindRef resolves to a previously-recorded alias instead of
	// descending into Prev -- the "later SELECT clauses rewire
	// predecessors" mechanism of spec §4.3.
	KindRef
	// KindNeighbourFilter is a neighbour fetch with a non-neighbour-
	// indexed predicate, expanded to three nodes per spec §4.3.
	KindNeighbourFilter
	// KindLayerSampler expands to the layer-sampler subgraph: four fixed
	// nodes plus one SAMPLE_L node per layer.
	KindLayerSampler
)

// Step is one node of the parsed pipeline tree. A query is a chain: each
// Step wraps the Step before it via Prev, except the root (Prev == nil).
type Step struct {
	Kind Kind
	Prev *Step

	// KindAPI
	Op        string
	InputName string // base external input tensor name, root step only

	// KindFilter
	Field, CmpOp, Value string

	// KindPostProcess
	PPName string
	PPArgs []string

	// KindAlias / KindRef
	Alias string

	// KindNeighbourFilter
	NbOp string // neighbour relation named in the expansion's log line; the emitted fetch op is always GET_NB_NODE

	// KindLayerSampler
	NumLayers    int
	SampleCounts []int
	Weighted     bool

	// UDF, shared by any Kind that attaches one (typically KindAPI)
	UDFName      string
	UDFStrParams []string
	UDFNumParams []float64
}
