// Copyright 2025-2026 The GoSIMT Authors. SPDX-License-Identifier: Apache-2.0

package sir

// OpType is an enum of the primitive operations a lowered SIMT program is
// made of. Programs are straight-line: there is no control flow, and any
// per-lane conditional behavior must be expressed with OpTypeSelect masks.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optype.go

const (
	OpTypeInvalid OpType = iota

	// Leaf values.
	OpTypeParameter
	OpTypeConstant
	OpTypeThreadID

	// Element-wise arithmetic. Div and Rem on indices follow unsigned
	// semantics: operands are never negative.
	OpTypeAdd
	OpTypeSub
	OpTypeMul
	OpTypeDiv
	OpTypeRem
	OpTypeMax
	OpTypeMin
	OpTypeAnd
	OpTypeOr
	OpTypeXor

	// Comparisons and mask logic; results are Bool.
	OpTypeLessThan
	OpTypeEqual
	OpTypeLogicalAnd

	// Mask-based selection: the SIMT substitute for branching.
	OpTypeSelect

	// Register-level intra-warp exchange; no synchronization involved.
	OpTypeShuffleUp
	OpTypeShuffleIdx

	// Shared staging memory. A SharedLoad must be separated from the
	// SharedStores it observes by a Barrier.
	OpTypeAllocShared
	OpTypeSharedStore
	OpTypeSharedLoad
	OpTypeBarrier

	OpTypeLast
)
