package dag

import (
	"strconv"
	"strings"

	"github.com/euler-graph/euler/eulerpb"
	"github.com/euler-graph/euler/status"
)

func parseEdge(s string) EdgeDef {
	colon := strings.LastIndexByte(s, ':')
	if colon < 0 {
		return EdgeDef{SrcName: s, SrcID: ExternalSrcID}
	}
	left, slotStr := s[:colon], s[colon+1:]
	comma := strings.LastIndexByte(left, ',')
	if comma < 0 {
		return EdgeDef{SrcName: s, SrcID: ExternalSrcID}
	}
	name, idStr := left[:comma], left[comma+1:]
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return EdgeDef{SrcName: s, SrcID: ExternalSrcID}
	}
	slot, _ := strconv.Atoi(slotStr)
	return EdgeDef{SrcName: name, SrcID: id, SrcSlot: slot}
}

// InnerTensorOpSlot parses an "op,id:slot" inner tensor name -- the shape
// a fused REMOTE node's OutputList entries take -- into the producing
// op and that op's own output slot. Graph-partition mode's per-(op,slot)
// merge table (spec §4.4) is keyed by exactly this pair, since the fused
// node's own output slot carries no information about which of possibly
// several distinct inner ops produced it.
func InnerTensorOpSlot(name string) (op string, slot int) {
	e := parseEdge(name)
	return e.SrcName, e.SrcSlot
}

func dnfToWire(d DNF) []string {
	out := make([]string, 0, len(d))
	for _, clause := range d {
		terms := make([]string, 0, len(clause))
		for _, t := range clause {
			terms = append(terms, t.Field+" "+t.Op+" "+t.Value)
		}
		out = append(out, strings.Join(terms, ","))
	}
	return out
}

func dnfFromWire(in []string) DNF {
	if len(in) == 0 {
		return nil
	}
	out := make(DNF, 0, len(in))
	for _, clauseStr := range in {
		var clause DNFClause
		for _, termStr := range strings.Split(clauseStr, ",") {
			parts := strings.SplitN(strings.TrimSpace(termStr), " ", 3)
			if len(parts) != 3 {
				continue
			}
			clause = append(clause, DNFTerm{Field: parts[0], Op: parts[1], Value: parts[2]})
		}
		out = append(out, clause)
	}
	return out
}

func postProcessToWire(cmds []PostProcessCmd) []string {
	out := make([]string, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, strings.Join(append([]string{c.Name}, c.Args...), " "))
	}
	return out
}

func postProcessFromWire(in []string) []PostProcessCmd {
	if len(in) == 0 {
		return nil
	}
	out := make([]PostProcessCmd, 0, len(in))
	for _, s := range in {
		parts := strings.Fields(s)
		if len(parts) == 0 {
			continue
		}
		out = append(out, PostProcessCmd{Name: parts[0], Args: parts[1:]})
	}
	return out
}

func nodeToWire(n *NodeDef) *eulerpb.DAGNodeProto {
	inputs := make([]string, len(n.Inputs))
	for i, e := range n.Inputs {
		inputs[i] = e.String()
	}
	return ToWireNode(n, inputs)
}

// ToWireNode serializes n using the given pre-resolved input wire
// strings instead of recomputing them from n.Inputs via EdgeDef.String().
// Exported for the Remote Operator (C10): when it ships a REMOTE node's
// Inner sub-DAG to a shard, any inner edge that crosses the Inner
// boundary must be rewritten to a name that parseEdge reads as an
// external input (remoteop's externalWireName builds one), which
// nodeToWire's default "reserialize n.Inputs verbatim" cannot express.
func ToWireNode(n *NodeDef, inputs []string) *eulerpb.DAGNodeProto {
	var cond *CondAttr
	if n.Cond != nil {
		cond = n.Cond
	} else {
		cond = &CondAttr{}
	}
	var udfName string
	var udfStr []string
	var udfNum []float64
	if n.UDF != nil {
		udfName, udfStr, udfNum = n.UDF.Name, n.UDF.StrParams, n.UDF.NumParams
	}

	p := &eulerpb.DAGNodeProto{
		Name:         n.NodeName(),
		Op:           n.Op,
		OpAlias:      n.Alias,
		Inputs:       inputs,
		Dnf:          dnfToWire(cond.DNF),
		PostProcess:  postProcessToWire(cond.PostProcess),
		OutputNum:    int32(n.OutputNum),
		UDFName:      udfName,
		UDFStrParams: udfStr,
		UDFNumParams: udfNum,
	}
	if n.Op == OpRemote {
		p.ShardIdx = int32(n.ShardIdx)
		p.OutputList = n.OutputList
		p.RemoteOutputList = n.RemoteOutputList
		p.InnerNodes = make([]*eulerpb.DAGNodeProto, len(n.Inner))
		for i, in := range n.Inner {
			p.InnerNodes[i] = nodeToWire(in)
		}
	}
	return p
}

// ToWireDAG serializes a finished DAGDef to the §6 wire DAG -- the
// "to_proto()" half of spec §4.2's round trip.
func ToWireDAG(d *DAGDef) *eulerpb.DAGProto {
	out := &eulerpb.DAGProto{Name: d.Name}
	for _, id := range sortedSubset(allIDs(d)) {
		out.Nodes = append(out.Nodes, nodeToWire(d.Nodes[id]))
	}
	return out
}

func allIDs(d *DAGDef) map[int]bool {
	m := make(map[int]bool, len(d.Nodes))
	for id := range d.Nodes {
		m[id] = true
	}
	return m
}

func nodeFromWire(p *eulerpb.DAGNodeProto) (*NodeDef, error) {
	comma := strings.LastIndexByte(p.Name, ',')
	if comma < 0 {
		return nil, status.New(status.ProtoError, "malformed node name %q", p.Name)
	}
	id, err := strconv.Atoi(p.Name[comma+1:])
	if err != nil {
		return nil, status.Wrap(status.ProtoError, err, "malformed node id in %q", p.Name)
	}
	n := newNodeDef(id, p.Op)
	n.Alias = p.OpAlias
	n.OutputNum = int(p.OutputNum)
	for _, s := range p.Inputs {
		n.Inputs = append(n.Inputs, parseEdge(s))
	}
	n.Cond = &CondAttr{DNF: dnfFromWire(p.Dnf), PostProcess: postProcessFromWire(p.PostProcess)}
	if p.UDFName != "" {
		n.UDF = &UDF{Name: p.UDFName, StrParams: p.UDFStrParams, NumParams: p.UDFNumParams}
	}
	if p.Op == OpRemote {
		n.ShardIdx = int(p.ShardIdx)
		n.OutputList = p.OutputList
		n.RemoteOutputList = p.RemoteOutputList
		for _, ip := range p.InnerNodes {
			inner, err := nodeFromWire(ip)
			if err != nil {
				return nil, err
			}
			n.Inner = append(n.Inner, inner)
		}
	}
	return n, nil
}

// FromWireDAG is the "from_proto()" half: it rebuilds a DAGDef (with
// Preds/Succs derived from the parsed Inputs) from a wire DAG. Topology is
// recovered purely from each node's Inputs, per §6.
func FromWireDAG(p *eulerpb.DAGProto) (*DAGDef, error) {
	d := NewDAGDef(p.Name)
	maxID := 0
	for _, np := range p.Nodes {
		n, err := nodeFromWire(np)
		if err != nil {
			return nil, err
		}
		d.Nodes[n.ID] = n
		if n.ID > maxID {
			maxID = n.ID
		}
	}
	d.nextID = maxID
	for _, n := range d.Nodes {
		for _, e := range n.Inputs {
			if e.SrcID == ExternalSrcID {
				continue
			}
			n.Preds[e.SrcID] = struct{}{}
			if src, ok := d.Nodes[e.SrcID]; ok {
				src.Succs[n.ID] = struct{}{}
			}
		}
	}
	return d, nil
}
