// Copyright 2025-2026 The GoSIMT Authors. SPDX-License-Identifier: Apache-2.0

// Package sir defines the straight-line SIMT intermediate representation that
// lowerings emit: a flat list of primitive per-thread operations (arithmetic,
// mask selection, intra-warp exchanges, shared-memory staging and barriers).
//
// A Builder appends nodes in execution order; Compile freezes them into a
// Program that a backend (e.g. backends/simtemu) can run. There is no control
// flow: every thread executes every node, and divergent behavior is expressed
// with Select masks only.
package sir

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Builder accumulates the nodes of a SIMT program being lowered.
type Builder struct {
	name     string
	compiled bool

	// nodes are created in execution order: inputs always precede their users.
	nodes  []*Node
	params []*Node
}

// Node is one primitive operation of the program.
type Node struct {
	builderIdx int
	inputs     []*Node
	opType     OpType
	dtype      dtypes.DType
	builder    *Builder

	// data holds the payload for the node types that need one.
	data any
}

// Per-node payloads.
type (
	paramData       struct{ name string }
	constData       struct{ value any }
	shuffleUpData   struct{ delta int }
	allocSharedData struct{ numElems int }
)

// OpType of the node.
func (n *Node) OpType() OpType { return n.opType }

// DType of the node's value. Side-effect-only nodes (SharedStore, Barrier)
// have dtypes.InvalidDType.
func (n *Node) DType() dtypes.DType { return n.dtype }

// Inputs of the node.
func (n *Node) Inputs() []*Node { return slices.Clone(n.inputs) }

// NewBuilder creates an empty Builder for a program with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Name of the program being built.
func (b *Builder) Name() string { return b.name }

// NumNodes emitted so far.
func (b *Builder) NumNodes() int { return len(b.nodes) }

// newNode appends a node of the given opType and dtype to the program.
func (b *Builder) newNode(opType OpType, dtype dtypes.DType, inputs ...*Node) *Node {
	n := &Node{
		builder:    b,
		opType:     opType,
		dtype:      dtype,
		builderIdx: len(b.nodes),
		inputs:     slices.Clone(inputs),
	}
	b.nodes = append(b.nodes, n)
	return n
}

// checkOps validates that the nodes belong to this builder and that the
// builder is still accepting new ops. Violations are programming faults.
func (b *Builder) checkOps(opType OpType, ops ...*Node) {
	if b == nil {
		exceptions.Panicf("%s: Builder is nil (!?), cannot emit", opType)
	}
	if b.compiled {
		exceptions.Panicf("cannot emit new op (%s) in Builder %q, it has already been compiled", opType, b.name)
	}
	for idx, op := range ops {
		if op == nil {
			exceptions.Panicf("%s: input op #%d is nil!?", opType, idx)
		}
		if op.builder != b {
			exceptions.Panicf("%s: input op #%d was created with a different builder (%q), cannot use it with builder %q",
				opType, idx, op.builder.name, b.name)
		}
	}
}

// Parameter declares a per-thread input value. At execution each thread
// receives its own scalar, supplied by the caller in parameter order.
func (b *Builder) Parameter(name string, dtype dtypes.DType) *Node {
	b.checkOps(OpTypeParameter)
	if dtype == dtypes.InvalidDType {
		exceptions.Panicf("Parameter %q needs a valid dtype", name)
	}
	n := b.newNode(OpTypeParameter, dtype)
	n.data = &paramData{name: name}
	b.params = append(b.params, n)
	return n
}

// Constant emits a scalar constant, uniform across threads. The value must be
// a Go scalar matching the dtype (e.g. int32 for dtypes.Int32).
func (b *Builder) Constant(dtype dtypes.DType, value any) *Node {
	b.checkOps(OpTypeConstant)
	if dtype == dtypes.InvalidDType {
		exceptions.Panicf("Constant needs a valid dtype, got value %v", value)
	}
	n := b.newNode(OpTypeConstant, dtype)
	n.data = &constData{value: value}
	return n
}

// ConstI32 emits an Int32 constant, the dtype of all index arithmetic.
func (b *Builder) ConstI32(value int) *Node {
	return b.Constant(dtypes.Int32, int32(value))
}

// ThreadID emits the flat thread index within the execution block.
func (b *Builder) ThreadID() *Node {
	b.checkOps(OpTypeThreadID)
	return b.newNode(OpTypeThreadID, dtypes.Int32)
}

// addBinaryOp emits a generic binary op over same-dtype operands.
func (b *Builder) addBinaryOp(opType OpType, lhs, rhs *Node) *Node {
	b.checkOps(opType, lhs, rhs)
	if lhs.dtype != rhs.dtype {
		exceptions.Panicf("%s: operands have different dtypes (%s and %s)", opType, lhs.dtype, rhs.dtype)
	}
	return b.newNode(opType, lhs.dtype, lhs, rhs)
}

// Add emits lhs+rhs.
func (b *Builder) Add(lhs, rhs *Node) *Node { return b.addBinaryOp(OpTypeAdd, lhs, rhs) }

// Sub emits lhs-rhs.
func (b *Builder) Sub(lhs, rhs *Node) *Node { return b.addBinaryOp(OpTypeSub, lhs, rhs) }

// Mul emits lhs*rhs.
func (b *Builder) Mul(lhs, rhs *Node) *Node { return b.addBinaryOp(OpTypeMul, lhs, rhs) }

// Div emits lhs/rhs. Index operands are never negative, so this matches the
// unsigned division of the hardware model.
func (b *Builder) Div(lhs, rhs *Node) *Node { return b.addBinaryOp(OpTypeDiv, lhs, rhs) }

// Rem emits lhs%rhs, with the same operand convention as Div.
func (b *Builder) Rem(lhs, rhs *Node) *Node { return b.addBinaryOp(OpTypeRem, lhs, rhs) }

// Max emits max(lhs, rhs).
func (b *Builder) Max(lhs, rhs *Node) *Node { return b.addBinaryOp(OpTypeMax, lhs, rhs) }

// Min emits min(lhs, rhs).
func (b *Builder) Min(lhs, rhs *Node) *Node { return b.addBinaryOp(OpTypeMin, lhs, rhs) }

// And emits the bitwise lhs&rhs.
func (b *Builder) And(lhs, rhs *Node) *Node { return b.addBinaryOp(OpTypeAnd, lhs, rhs) }

// Or emits the bitwise lhs|rhs.
func (b *Builder) Or(lhs, rhs *Node) *Node { return b.addBinaryOp(OpTypeOr, lhs, rhs) }

// Xor emits the bitwise lhs^rhs.
func (b *Builder) Xor(lhs, rhs *Node) *Node { return b.addBinaryOp(OpTypeXor, lhs, rhs) }

// addComparisonOp emits a comparison over same-dtype operands; result is Bool.
func (b *Builder) addComparisonOp(opType OpType, lhs, rhs *Node) *Node {
	b.checkOps(opType, lhs, rhs)
	if lhs.dtype != rhs.dtype {
		exceptions.Panicf("%s: operands have different dtypes (%s and %s)", opType, lhs.dtype, rhs.dtype)
	}
	return b.newNode(opType, dtypes.Bool, lhs, rhs)
}

// LessThan emits lhs<rhs as a Bool mask.
func (b *Builder) LessThan(lhs, rhs *Node) *Node { return b.addComparisonOp(OpTypeLessThan, lhs, rhs) }

// Equal emits lhs==rhs as a Bool mask.
func (b *Builder) Equal(lhs, rhs *Node) *Node { return b.addComparisonOp(OpTypeEqual, lhs, rhs) }

// LogicalAnd combines two Bool masks.
func (b *Builder) LogicalAnd(lhs, rhs *Node) *Node {
	b.checkOps(OpTypeLogicalAnd, lhs, rhs)
	if lhs.dtype != dtypes.Bool || rhs.dtype != dtypes.Bool {
		exceptions.Panicf("LogicalAnd: operands must be Bool masks, got %s and %s", lhs.dtype, rhs.dtype)
	}
	return b.newNode(OpTypeLogicalAnd, dtypes.Bool, lhs, rhs)
}

// Select emits mask ? onTrue : onFalse. Both outcomes are always computed;
// this is the only form of per-lane conditional behavior in the IR.
func (b *Builder) Select(mask, onTrue, onFalse *Node) *Node {
	b.checkOps(OpTypeSelect, mask, onTrue, onFalse)
	if mask.dtype != dtypes.Bool {
		exceptions.Panicf("Select: mask must be Bool, got %s", mask.dtype)
	}
	if onTrue.dtype != onFalse.dtype {
		exceptions.Panicf("Select: branches have different dtypes (%s and %s)", onTrue.dtype, onFalse.dtype)
	}
	return b.newNode(OpTypeSelect, onTrue.dtype, mask, onTrue, onFalse)
}

// ShuffleUp reads x from the lane delta positions below the current lane, in
// the same warp. Lanes with no source lane keep their own value; callers mask
// them out with Select.
func (b *Builder) ShuffleUp(x *Node, delta int) *Node {
	b.checkOps(OpTypeShuffleUp, x)
	if delta <= 0 {
		exceptions.Panicf("ShuffleUp: delta must be positive, got %d", delta)
	}
	n := b.newNode(OpTypeShuffleUp, x.dtype, x)
	n.data = &shuffleUpData{delta: delta}
	return n
}

// ShuffleIdx reads x from the explicit source lane srcLane (Int32) of the
// current warp.
func (b *Builder) ShuffleIdx(x, srcLane *Node) *Node {
	b.checkOps(OpTypeShuffleIdx, x, srcLane)
	if srcLane.dtype != dtypes.Int32 {
		exceptions.Panicf("ShuffleIdx: srcLane must be Int32, got %s", srcLane.dtype)
	}
	return b.newNode(OpTypeShuffleIdx, x.dtype, x, srcLane)
}

// AllocShared reserves a block-shared staging buffer of numElems elements of
// the given dtype and returns its base handle.
func (b *Builder) AllocShared(dtype dtypes.DType, numElems int) *Node {
	b.checkOps(OpTypeAllocShared)
	if numElems <= 0 {
		exceptions.Panicf("AllocShared: numElems must be positive, got %d", numElems)
	}
	n := b.newNode(OpTypeAllocShared, dtype)
	n.data = &allocSharedData{numElems: numElems}
	return n
}

// SharedStore writes value into the shared buffer base at the per-thread
// index, for the threads where mask is true. Suppression is by mask, never by
// branching.
func (b *Builder) SharedStore(base, index, value, mask *Node) *Node {
	b.checkOps(OpTypeSharedStore, base, index, value, mask)
	if base.opType != OpTypeAllocShared {
		exceptions.Panicf("SharedStore: base must come from AllocShared, got %s", base.opType)
	}
	if index.dtype != dtypes.Int32 {
		exceptions.Panicf("SharedStore: index must be Int32, got %s", index.dtype)
	}
	if value.dtype != base.dtype {
		exceptions.Panicf("SharedStore: value dtype (%s) does not match buffer dtype (%s)", value.dtype, base.dtype)
	}
	if mask.dtype != dtypes.Bool {
		exceptions.Panicf("SharedStore: mask must be Bool, got %s", mask.dtype)
	}
	return b.newNode(OpTypeSharedStore, dtypes.InvalidDType, base, index, value, mask)
}

// SharedLoad reads the shared buffer base at the per-thread index. The buffer
// cell must not have been written since the last Barrier.
func (b *Builder) SharedLoad(base, index *Node) *Node {
	b.checkOps(OpTypeSharedLoad, base, index)
	if base.opType != OpTypeAllocShared {
		exceptions.Panicf("SharedLoad: base must come from AllocShared, got %s", base.opType)
	}
	if index.dtype != dtypes.Int32 {
		exceptions.Panicf("SharedLoad: index must be Int32, got %s", index.dtype)
	}
	return b.newNode(OpTypeSharedLoad, base.dtype, base, index)
}

// Barrier emits a block-wide synchronization point: every SharedStore before
// it is visible to every SharedLoad after it.
func (b *Builder) Barrier() *Node {
	b.checkOps(OpTypeBarrier)
	return b.newNode(OpTypeBarrier, dtypes.InvalidDType)
}

// Compile freezes the builder into an executable Program whose results are
// the given output nodes. The builder accepts no further ops.
func (b *Builder) Compile(outputs ...*Node) *Program {
	b.checkOps(OpTypeLast, outputs...)
	for idx, out := range outputs {
		if out.dtype == dtypes.InvalidDType {
			exceptions.Panicf("Compile: output #%d (%s) produces no value", idx, out.opType)
		}
	}
	b.compiled = true
	return &Program{
		name:    b.name,
		nodes:   b.nodes,
		params:  b.params,
		outputs: slices.Clone(outputs),
	}
}
