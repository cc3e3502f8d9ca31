// Copyright 2025-2026 The GoSIMT Authors. SPDX-License-Identifier: Apache-2.0

// Package scan lowers an associative inclusive scan over one tensor axis into
// a straight-line SIMT program: per-thread arithmetic, intra-warp shuffles,
// shared-memory staging and barriers, emitted through a sir.Builder.
//
// The lowering is a deterministic compile-time transformation. The geometry
// arithmetic that maps flat per-thread element indices to (axis position,
// chunk, block, parallel lane) coordinates is centralized in Helper, so every
// phase derives it from the same descriptor.
package scan

import (
	"fmt"
	"math/bits"

	"github.com/gomlx/exceptions"
	"github.com/gosimt/gosimt/pkg/core/layout"
	"github.com/gosimt/gosimt/pkg/support/xslices"
	"github.com/pkg/errors"
)

// Helper derives the scan geometry from a layout encoding, a tensor shape and
// the axis being scanned. It is built once per lowering and read-only after.
type Helper struct {
	enc     layout.Encoding
	blocked *layout.Blocked // nil when enc is not a blocked layout
	shape   []int
	axis    int

	// orderPos is the position of axis in the layout order (0 = fastest).
	orderPos int
}

// NewHelper builds the geometry oracle for scanning shape along axis with the
// given element-to-thread encoding.
func NewHelper(enc layout.Encoding, shape []int, axis int) *Helper {
	if axis < 0 || axis >= len(shape) {
		exceptions.Panicf("scan axis %d out of range for shape %v", axis, shape)
	}
	if enc.Rank() != len(shape) {
		exceptions.Panicf("encoding %s rank does not match shape %v", enc, shape)
	}
	h := &Helper{enc: enc, shape: shape, axis: axis}
	if blocked, ok := enc.(*layout.Blocked); ok {
		h.blocked = blocked
		for pos, d := range blocked.Order {
			if d == axis {
				h.orderPos = pos
			}
		}
	}
	return h
}

// Axis being scanned.
func (h *Helper) Axis() int { return h.axis }

// Shape of the scanned tensor.
func (h *Helper) Shape() []int { return h.shape }

// Encoding of the scanned tensor.
func (h *Helper) Encoding() layout.Encoding { return h.enc }

// Supported returns nil if the fast scan lowering applies to this geometry,
// or a descriptive error to let the caller fall back to a different lowering.
func (h *Helper) Supported() error {
	if h.blocked == nil {
		return errors.Errorf("fast scan lowering only supports blocked layouts, got %s", h.enc)
	}
	if err := h.blocked.Validate(); err != nil {
		return errors.Wrapf(err, "fast scan lowering got an invalid layout")
	}
	sizeAxis := h.blocked.SizePerThread[h.axis]
	threadsAxis := h.blocked.ThreadsPerWarp[h.axis]
	axisLen := h.shape[h.axis]
	if axisLen%sizeAxis != 0 {
		return errors.Errorf("axis extent %d is not a multiple of sizePerThread[axis]=%d", axisLen, sizeAxis)
	}
	if axisLen/sizeAxis < threadsAxis {
		return errors.Errorf("axis extent %d does not cover the %d warp lanes along the axis (duplicated lanes)",
			axisLen, threadsAxis)
	}
	if bits.OnesCount(uint(threadsAxis)) != 1 {
		return errors.Errorf("threadsPerWarp[axis]=%d is not a power of two, required by the doubling scan", threadsAxis)
	}
	warpTile := sizeAxis * threadsAxis
	if h.AxisNumWarpsWithUniqueData() > 1 && axisLen%warpTile != 0 {
		return errors.Errorf("axis extent %d leaves a partial warp tile (warp tile %d)", axisLen, warpTile)
	}
	ctaTile := warpTile * h.blocked.WarpsPerCTA[h.axis]
	if h.AxisNumBlocks() > 1 && axisLen%ctaTile != 0 {
		return errors.Errorf("axis extent %d leaves a partial block tile (block tile %d)", axisLen, ctaTile)
	}
	return nil
}

// IsSupported reports whether the fast scan lowering applies.
func (h *Helper) IsSupported() bool { return h.Supported() == nil }

// AxisNumElementsPerThread is the number of contiguous axis positions each
// thread owns per block pass.
func (h *Helper) AxisNumElementsPerThread() int {
	return h.blocked.SizePerThread[h.axis]
}

// AxisElementStride is the distance, in the flat per-thread element list,
// between two consecutive axis positions of the same run.
func (h *Helper) AxisElementStride() int {
	stride := 1
	for pos := 0; pos < h.orderPos; pos++ {
		stride *= h.blocked.SizePerThread[h.blocked.Order[pos]]
	}
	return stride
}

// AxisThreadStride is the lane-id delta between two threads adjacent along the
// scan axis within a warp.
func (h *Helper) AxisThreadStride() int {
	stride := 1
	for pos := 0; pos < h.orderPos; pos++ {
		stride *= h.blocked.ThreadsPerWarp[h.blocked.Order[pos]]
	}
	return stride
}

// AxisNumThreadsPerWarpWithUniqueData is the number of lanes per warp holding
// distinct data along the axis (the warp scan width).
func (h *Helper) AxisNumThreadsPerWarpWithUniqueData() int {
	uniqueThreads := ceilDiv(h.shape[h.axis], h.blocked.SizePerThread[h.axis])
	return min(h.blocked.ThreadsPerWarp[h.axis], uniqueThreads)
}

// AxisNumWarpsWithUniqueData is the number of warps holding distinct data
// along the axis; extra warps wrap onto the same data.
func (h *Helper) AxisNumWarpsWithUniqueData() int {
	warpTile := h.blocked.SizePerThread[h.axis] * h.blocked.ThreadsPerWarp[h.axis]
	uniqueWarps := ceilDiv(h.shape[h.axis], warpTile)
	return min(h.blocked.WarpsPerCTA[h.axis], uniqueWarps)
}

// NonAxisNumThreadsPerWarp is the number of independent scan instances per warp.
func (h *Helper) NonAxisNumThreadsPerWarp() int {
	return h.blocked.WarpSize() / h.blocked.ThreadsPerWarp[h.axis]
}

// NonAxisNumThreadsPerCTA is the number of independent scan instances in the
// execution block ("parallel lanes").
func (h *Helper) NonAxisNumThreadsPerCTA() int {
	return h.blocked.NumThreadsPerCTA() /
		(h.blocked.ThreadsPerWarp[h.axis] * h.blocked.WarpsPerCTA[h.axis])
}

// NonAxisNumElementsPerThread is the number of per-thread elements that differ
// only along non-axis dimensions, per block pass.
func (h *Helper) NonAxisNumElementsPerThread() int {
	return h.blocked.RegistersPerTile() / h.blocked.SizePerThread[h.axis]
}

// AxisNumBlocks is how many times the CTA tile repeats along the scan axis.
func (h *Helper) AxisNumBlocks() int {
	return h.blocked.NumBlocks(h.shape)[h.axis]
}

// NonAxisNumBlocks is the product of tile repetitions over all other dimensions.
func (h *Helper) NonAxisNumBlocks() int {
	blocks := h.blocked.NumBlocks(h.shape)
	return xslices.Prod(blocks) / blocks[h.axis]
}

// AxisBlockStride is the stride of the axis-block coordinate within the
// linear block numbering (same order convention as the element strides).
func (h *Helper) AxisBlockStride() int {
	blocks := h.blocked.NumBlocks(h.shape)
	stride := 1
	for pos := 0; pos < h.orderPos; pos++ {
		stride *= blocks[h.blocked.Order[pos]]
	}
	return stride
}

// TotalElemsPerThread is the length of the flat per-thread element list.
func (h *Helper) TotalElemsPerThread() int {
	total := h.blocked.TotalElemsPerThread(h.shape)
	// Every element must be addressable as (axis position, chunk, block,
	// parallel lane); a mismatch here means the descriptor drifted.
	if h.AxisNumBlocks()*h.NonAxisNumBlocks()*h.AxisNumElementsPerThread()*h.NonAxisNumElementsPerThread() != total {
		exceptions.Panicf("scan geometry does not decompose the %d per-thread elements: %s over %v",
			total, h.enc, h.shape)
	}
	return total
}

// NumChunks is the number of per-thread axis runs, one accumulator each.
func (h *Helper) NumChunks() int {
	return h.TotalElemsPerThread() / h.AxisNumElementsPerThread()
}

// ScratchSizeInElems is the size of the shared staging buffer needed per
// operand, in elements. Zero when the axis fits in one warp.
func (h *Helper) ScratchSizeInElems() int {
	axisNumWarps := h.AxisNumWarpsWithUniqueData()
	if axisNumWarps <= 1 {
		return 0
	}
	return h.NonAxisNumThreadsPerCTA() * axisNumWarps * h.NumChunks()
}

// WarpSize is the number of threads per warp for this layout.
func (h *Helper) WarpSize() int { return h.blocked.WarpSize() }

// String summarizes the geometry, for logging.
func (h *Helper) String() string {
	if h.blocked == nil {
		return fmt.Sprintf("scan of %s axis %d over unsupported encoding %s",
			layout.FormatShape(h.shape), h.axis, h.enc)
	}
	return fmt.Sprintf(
		"scan of %s axis %d over %s: elemsPerThread=%d (axis %d, stride %d), scanDim=%d (thread stride %d), "+
			"axisWarps=%d, parallelLanes=%d, blocks=%dx%d (axis stride %d), scratch=%d elems",
		layout.FormatShape(h.shape), h.axis, h.enc,
		h.TotalElemsPerThread(), h.AxisNumElementsPerThread(), h.AxisElementStride(),
		h.AxisNumThreadsPerWarpWithUniqueData(), h.AxisThreadStride(),
		h.AxisNumWarpsWithUniqueData(), h.NonAxisNumThreadsPerCTA(),
		h.AxisNumBlocks(), h.NonAxisNumBlocks(), h.AxisBlockStride(),
		h.ScratchSizeInElems())
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }
