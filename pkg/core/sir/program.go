// Copyright 2025-2026 The GoSIMT Authors. SPDX-License-Identifier: Apache-2.0

package sir

import (
	"fmt"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
)

// Program is a frozen, executable sequence of nodes. Backends run the nodes
// strictly in order, for all threads, preserving the lockstep semantics the
// lowering assumes.
type Program struct {
	name    string
	nodes   []*Node
	params  []*Node
	outputs []*Node
}

// Name of the program.
func (p *Program) Name() string { return p.name }

// Nodes in execution order.
func (p *Program) Nodes() []*Node { return p.nodes }

// Params in declaration order. Execution inputs must match it.
func (p *Program) Params() []*Node { return p.params }

// Outputs in the order given to Builder.Compile.
func (p *Program) Outputs() []*Node { return p.outputs }

// NodeIndex returns the position of the node in the program.
func (p *Program) NodeIndex(n *Node) int { return n.builderIdx }

// String returns a human-readable listing of the program.
func (p *Program) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "program %q: %d nodes, %d params, %d outputs\n",
		p.name, len(p.nodes), len(p.params), len(p.outputs))
	for _, n := range p.nodes {
		sb.WriteString("  ")
		sb.WriteString(n.String())
		sb.WriteString("\n")
	}
	outRefs := make([]string, len(p.outputs))
	for i, out := range p.outputs {
		outRefs[i] = fmt.Sprintf("%%%d", out.builderIdx)
	}
	fmt.Fprintf(&sb, "  return %s\n", strings.Join(outRefs, ", "))
	return sb.String()
}

// String returns one listing line for the node, e.g. "%12 = Add(%3, %11) : Int32".
func (n *Node) String() string {
	inRefs := make([]string, len(n.inputs))
	for i, in := range n.inputs {
		inRefs[i] = fmt.Sprintf("%%%d", in.builderIdx)
	}
	attr := ""
	switch data := n.data.(type) {
	case *paramData:
		attr = fmt.Sprintf("%q", data.name)
	case *constData:
		attr = fmt.Sprintf("%v", data.value)
	case *shuffleUpData:
		attr = fmt.Sprintf("delta=%d", data.delta)
	case *allocSharedData:
		attr = fmt.Sprintf("numElems=%d", data.numElems)
	}
	args := strings.Join(inRefs, ", ")
	if attr != "" {
		if args != "" {
			args += ", "
		}
		args += attr
	}
	line := fmt.Sprintf("%%%d = %s(%s)", n.builderIdx, n.opType, args)
	if n.dtype != dtypes.InvalidDType {
		line += fmt.Sprintf(" : %s", n.dtype)
	}
	return line
}

// ParameterName returns the name a Parameter node was declared with.
func (n *Node) ParameterName() string {
	if n.opType != OpTypeParameter {
		return ""
	}
	return n.data.(*paramData).name
}

// ConstantValue returns the Go scalar of a Constant node, or nil.
func (n *Node) ConstantValue() any {
	if n.opType != OpTypeConstant {
		return nil
	}
	return n.data.(*constData).value
}

// ShuffleDelta returns the lane delta of a ShuffleUp node.
func (n *Node) ShuffleDelta() int {
	return n.data.(*shuffleUpData).delta
}

// SharedNumElems returns the element count of an AllocShared node.
func (n *Node) SharedNumElems() int {
	return n.data.(*allocSharedData).numElems
}
