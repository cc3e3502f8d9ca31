// Copyright 2025-2026 The GoSIMT Authors. SPDX-License-Identifier: Apache-2.0

package scan

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gosimt/gosimt/pkg/core/sir"
	"k8s.io/klog/v2"
)

// CombineFn emits the user combine operator applied to two operand tuples and
// returns the combined tuple. It is invoked once per call site, so each
// application is a structurally independent instantiation of the operator
// body; implementations must be pure emitters over their inputs.
type CombineFn func(b *sir.Builder, acc, cur []*sir.Node) []*sir.Node

// ScratchProvider yields the base of the shared staging buffer for one
// operand, sized in elements. The default provider allocates through
// Builder.AllocShared.
type ScratchProvider interface {
	ScratchBase(b *sir.Builder, operandIdx int, dtype dtypes.DType, numElems int) *sir.Node
}

type builderScratch struct{}

func (builderScratch) ScratchBase(b *sir.Builder, _ int, dtype dtypes.DType, numElems int) *sir.Node {
	return b.AllocShared(dtype, numElems)
}

// Lower emits the inclusive scan of the operands along the helper's axis and
// returns the result operands, element-aligned with the inputs.
//
// operands[i] lists all per-thread elements of operand i, in flat register
// order; all operands must have the same length. The only recoverable failure
// is an unsupported layout, reported before anything is emitted so the caller
// can use a fallback lowering.
func Lower(b *sir.Builder, h *Helper, combine CombineFn, operands [][]*sir.Node) ([][]*sir.Node, error) {
	return LowerWithScratch(b, h, combine, operands, builderScratch{})
}

// LowerWithScratch is Lower with an explicit shared-memory provider.
func LowerWithScratch(b *sir.Builder, h *Helper, combine CombineFn, operands [][]*sir.Node,
	scratch ScratchProvider) ([][]*sir.Node, error) {
	if err := h.Supported(); err != nil {
		return nil, err
	}
	if combine == nil {
		exceptions.Panicf("scan lowering needs a combine operator")
	}
	if klog.V(2).Enabled() {
		klog.Infof("scan lowering geometry: %s", h)
	}

	l := &lowering{b: b, h: h, combine: combine, scratch: scratch}
	l.src = unpackOperands(h, operands)
	l.emitIds()

	// Inclusive scan of the contiguous elements each thread owns.
	l.threadScan()
	// Doubling scan across the warp lanes of the last element of each run.
	l.warpScan()

	axisNumWarps := h.AxisNumWarpsWithUniqueData()
	switch {
	case axisNumWarps > 1:
		// The axis spans several warps: exchange warp totals through the
		// shared staging buffer.
		klog.V(1).Infof("scan lowering %q: cross-warp path (%d warps)", b.Name(), axisNumWarps)
		elems := h.ScratchSizeInElems()
		l.smemBases = make([]*sir.Node, len(operands))
		for i := range l.smemBases {
			l.smemBases[i] = scratch.ScratchBase(b, i, operands[i][0].DType(), elems)
		}
		l.storeWarpAccumulator()
		b.Barrier()
		l.addPartialReduce()
	case len(l.src) > 1:
		// Single warp along the axis but several runs per thread: carry
		// between runs with register exchanges only.
		klog.V(1).Infof("scan lowering %q: one-warp path (%d runs)", b.Name(), h.NumChunks())
		l.emitLaneIdLast()
		l.addPartialReduceOneWarp()
	default:
		// Single run in a single warp: the warp scan already finished the job.
		klog.V(1).Infof("scan lowering %q: warp scan only", b.Name())
	}

	return repackOperands(l.src, len(operands)), nil
}

// lowering carries the per-invocation state: the geometry, the per-element
// value tuples being rewritten in place, and the delinearized thread ids.
type lowering struct {
	b       *sir.Builder
	h       *Helper
	combine CombineFn
	scratch ScratchProvider

	// src[e][k] is the current value of element e of operand k; phases update
	// it in place.
	src [][]*sir.Node

	laneId         *sir.Node
	laneIdAxis     *sir.Node
	warpIdAxis     *sir.Node
	warpIdAxisRaw  *sir.Node
	flatIdParallel *sir.Node
	laneIdLast     *sir.Node
	smemBases      []*sir.Node
}

// unpackOperands transposes K operand element lists into an index-aligned
// list of K-tuples. Unequal lengths are an internal-consistency fault.
func unpackOperands(h *Helper, operands [][]*sir.Node) [][]*sir.Node {
	if len(operands) == 0 {
		exceptions.Panicf("scan lowering needs at least one operand")
	}
	numElems := h.TotalElemsPerThread()
	for i, operand := range operands {
		if len(operand) != numElems {
			exceptions.Panicf("scan operand #%d has %d per-thread elements, geometry requires %d",
				i, len(operand), numElems)
		}
	}
	src := make([][]*sir.Node, numElems)
	for e := range src {
		tuple := make([]*sir.Node, len(operands))
		for k := range operands {
			tuple[k] = operands[k][e]
		}
		src[e] = tuple
	}
	return src
}

// repackOperands is the exact inverse of unpackOperands.
func repackOperands(src [][]*sir.Node, numOperands int) [][]*sir.Node {
	results := make([][]*sir.Node, numOperands)
	for k := range results {
		results[k] = make([]*sir.Node, len(src))
		for e := range src {
			results[k][e] = src[e][k]
		}
	}
	return results
}

// accumulate applies the combine operator to (acc, cur). An empty acc seeds
// from cur unchanged.
func (l *lowering) accumulate(acc, cur []*sir.Node) []*sir.Node {
	if len(acc) == 0 {
		return cur
	}
	if len(acc) != len(cur) {
		exceptions.Panicf("combine operator applied to tuples of different arity: %d vs %d", len(acc), len(cur))
	}
	result := l.combine(l.b, acc, cur)
	if len(result) != len(cur) {
		exceptions.Panicf("combine operator returned %d values for %d operands", len(result), len(cur))
	}
	return result
}

// emitIds computes warp/lane ids, their coordinates along the scan axis, and
// the flat id of the independent scan instance the thread belongs to.
func (l *lowering) emitIds() {
	b, h := l.b, l.h
	enc := h.blocked
	warpSize := b.ConstI32(h.WarpSize())
	threadId := b.ThreadID()
	warpId := b.Div(threadId, warpSize)
	laneId := b.Rem(threadId, warpSize)

	laneCoords := sir.Delinearize(b, laneId, enc.ThreadsPerWarp, enc.Order)
	warpCoords := sir.Delinearize(b, warpId, enc.WarpsPerCTA, enc.Order)
	l.laneId = laneId
	l.laneIdAxis = laneCoords[h.axis]
	// Warps beyond the axis extent wrap onto the same data.
	l.warpIdAxisRaw = warpCoords[h.axis]
	l.warpIdAxis = b.Rem(l.warpIdAxisRaw, b.ConstI32(h.AxisNumWarpsWithUniqueData()))

	// Collapse the axis coordinate and relinearize the rest into the flat
	// parallel id: threads differing only along the axis share it.
	laneCoords[h.axis] = b.ConstI32(0)
	threadsPerWarp := slices.Clone(enc.ThreadsPerWarp)
	threadsPerWarp[h.axis] = 1
	laneIdParallel := sir.Linearize(b, laneCoords, threadsPerWarp, enc.Order)

	warpCoords[h.axis] = b.ConstI32(0)
	warpsPerCTA := slices.Clone(enc.WarpsPerCTA)
	warpsPerCTA[h.axis] = 1
	warpIdParallel := sir.Linearize(b, warpCoords, warpsPerCTA, enc.Order)

	l.flatIdParallel = b.Add(laneIdParallel,
		b.Mul(warpIdParallel, b.ConstI32(h.NonAxisNumThreadsPerWarp())))
}

// emitLaneIdLast computes the lane id of the thread holding the last axis
// position of the warp, used by the one-warp carry update.
func (l *lowering) emitLaneIdLast() {
	b, h := l.b, l.h
	enc := h.blocked
	laneCoords := sir.Delinearize(b, l.laneId, enc.ThreadsPerWarp, enc.Order)
	laneCoords[h.axis] = b.ConstI32(h.AxisNumThreadsPerWarpWithUniqueData() - 1)
	l.laneIdLast = sir.Linearize(b, laneCoords, enc.ThreadsPerWarp, enc.Order)
}

// threadScan folds each per-thread element into the running accumulator of
// its run (chunk), in flat index order, and replaces it with the accumulator:
// afterwards every position holds the inclusive scan of its run so far.
//
// Contiguous axis positions may not be contiguous in the flat element list;
// the chunk of an element is identified from the element stride alone.
func (l *lowering) threadScan() {
	h := l.h
	scanElems := h.AxisNumElementsPerThread()
	numChunks := len(l.src) / scanElems
	stride := h.AxisElementStride()
	accs := make([][]*sir.Node, numChunks)
	for srcIndex := range l.src {
		accIndex := srcIndex%stride + ((srcIndex/stride)/scanElems)*stride
		accs[accIndex] = l.accumulate(accs[accIndex], l.src[srcIndex])
		l.src[srcIndex] = accs[accIndex]
	}
}

// warpScan applies a Hillis-Steele doubling scan across the warp lanes
// sharing the axis, on the last position of each per-thread run. The combine
// is computed unconditionally on every lane; lanes below the step width keep
// their previous value through a mask, never through a branch.
func (l *lowering) warpScan() {
	b, h := l.b, l.h
	scanElems := h.AxisNumElementsPerThread()
	elementStride := h.AxisElementStride()
	threadStride := h.AxisThreadStride()
	scanDim := h.AxisNumThreadsPerWarpWithUniqueData()
	for srcIndex := range l.src {
		if (srcIndex/elementStride)%scanElems != scanElems-1 {
			continue
		}
		acc := slices.Clone(l.src[srcIndex])
		for i := 1; i <= scanDim/2; i <<= 1 {
			shfl := make([]*sir.Node, len(acc))
			for j := range acc {
				shfl[j] = b.ShuffleUp(acc[j], i*threadStride)
			}
			tempAcc := l.accumulate(shfl, acc)
			mask := b.LessThan(l.laneIdAxis, b.ConstI32(i))
			for j := range acc {
				acc[j] = b.Select(mask, acc[j], tempAcc[j])
			}
		}
		l.src[srcIndex] = acc
	}
}

// storeWarpAccumulator writes each warp's total for each run into the shared
// staging buffer. Only the lane holding the true warp total stores; the other
// lanes are suppressed by the store mask.
//
// The buffer is laid out as chunk-major rows of warp totals:
//
//	chunk 0: | lanes of warp 0 | lanes of warp 1 | ...
//	chunk 1: | lanes of warp 0 | lanes of warp 1 | ...
func (l *lowering) storeWarpAccumulator() {
	b, h := l.b, l.h
	scanElems := h.AxisNumElementsPerThread()
	elementStride := h.AxisElementStride()
	scanDim := h.AxisNumThreadsPerWarpWithUniqueData()
	numParallelLane := h.NonAxisNumThreadsPerCTA()
	axisNumWarps := h.AxisNumWarpsWithUniqueData()
	chunkId := 0
	for srcIndex := range l.src {
		if (srcIndex/elementStride)%scanElems != scanElems-1 {
			continue
		}
		lastElement := l.src[srcIndex]
		// Duplicated warps hold the same totals and must not double-store.
		mask := b.LogicalAnd(
			b.Equal(l.laneIdAxis, b.ConstI32(scanDim-1)),
			b.LessThan(l.warpIdAxisRaw, b.ConstI32(axisNumWarps)))
		index := b.Add(l.flatIdParallel, b.Mul(l.warpIdAxis, b.ConstI32(numParallelLane)))
		index = b.Add(index, b.ConstI32(chunkId*numParallelLane*axisNumWarps))
		for i := range lastElement {
			b.SharedStore(l.smemBases[i], index, lastElement[i], mask)
		}
		chunkId++
	}
}

// addPartialReduce reads back every warp's partial total for each run and
// folds them into two accumulators: the full running total, and a masked
// total that stops incorporating the reading thread's own warp -- the sum of
// strictly preceding warps, which corrects the thread's already-inclusive
// local value. The corrected last-position value is then propagated backward
// to the earlier positions of the run.
//
// Each axis block restarts the scan, so the accumulators are rebuilt from the
// block's own partials for every chunk and the first warp always keeps its
// local value.
func (l *lowering) addPartialReduce() {
	b, h := l.b, l.h
	numParallelLane := h.NonAxisNumThreadsPerCTA()
	scanElems := h.AxisNumElementsPerThread()
	parallelElemsPerThread := h.NonAxisNumElementsPerThread()
	elementStride := h.AxisElementStride()
	threadStride := h.AxisThreadStride()
	axisNumWarps := h.AxisNumWarpsWithUniqueData()
	numOperands := len(l.smemBases)

	maskFirstWarp := b.Equal(l.warpIdAxis, b.ConstI32(0))
	maskFirstLane := b.Equal(l.laneIdAxis, b.ConstI32(0))
	maskFirstThread := b.LogicalAnd(maskFirstWarp, maskFirstLane)

	numScanBlocks := h.AxisNumBlocks()
	numParallelBlocks := h.NonAxisNumBlocks()
	if numScanBlocks*numParallelBlocks*parallelElemsPerThread*scanElems != len(l.src) {
		exceptions.Panicf("scan geometry does not decompose %d elements into %d x %d blocks of %d x %d",
			len(l.src), numScanBlocks, numParallelBlocks, scanElems, parallelElemsPerThread)
	}

	chunkId := 0
	for srcIndex := range l.src {
		if (srcIndex/elementStride)%scanElems != scanElems-1 {
			continue
		}
		// Fold the partial totals of every warp of this chunk.
		var acc, maskedAcc []*sir.Node
		for i := 0; i < axisNumWarps; i++ {
			index := b.Add(l.flatIdParallel, b.ConstI32(numParallelLane*(i+chunkId*axisNumWarps)))
			partial := make([]*sir.Node, numOperands)
			for j := range partial {
				partial[j] = b.SharedLoad(l.smemBases[j], index)
			}
			if acc == nil {
				acc = partial
				maskedAcc = slices.Clone(partial)
				continue
			}
			acc = l.accumulate(acc, partial)
			mask := b.LessThan(l.warpIdAxis, b.ConstI32(i+1))
			for j := range maskedAcc {
				maskedAcc[j] = b.Select(mask, maskedAcc[j], acc[j])
			}
		}

		// Correct the thread's inclusive local value with the sum of the
		// strictly preceding warps; the first warp has nothing to accumulate
		// and keeps its own value (the block restarts the scan).
		val := l.src[srcIndex]
		temp := l.accumulate(maskedAcc, val)
		corrected := make([]*sir.Node, numOperands)
		for j := range corrected {
			corrected[j] = b.Select(maskFirstWarp, val[j], temp[j])
		}
		l.src[srcIndex] = corrected

		// Broadcast the corrected value backward to the earlier positions of
		// the run: each lane reads its predecessor's corrected total, the
		// first lane uses the preceding warps' total directly.
		lastElement := make([]*sir.Node, numOperands)
		for j := range lastElement {
			elem := b.ShuffleUp(corrected[j], threadStride)
			lastElement[j] = b.Select(maskFirstLane, maskedAcc[j], elem)
		}
		for i := 1; i < scanElems; i++ {
			idx := srcIndex - i*elementStride
			laneValue := l.accumulate(lastElement, l.src[idx])
			fixed := make([]*sir.Node, numOperands)
			for j := range fixed {
				// The very first position of the block has no predecessor.
				fixed[j] = b.Select(maskFirstThread, l.src[idx][j], laneValue[j])
			}
			l.src[idx] = fixed
		}
		chunkId++
	}
}

// addPartialReduceOneWarp carries the scan across the sequential axis blocks
// when the axis fits a single warp: no shared memory is needed, the carry
// moves through register exchanges only.
//
// Each axis block restarts the scan: every chunk re-seeds its accumulator
// from the block's own warp-scanned values. The indexed-exchange update of
// the accumulator from the true last lane is kept from the general carry
// formula (see DESIGN.md on the degenerate scanDim==1 case).
func (l *lowering) addPartialReduceOneWarp() {
	b, h := l.b, l.h
	scanElems := h.AxisNumElementsPerThread()
	parallelElemsPerThread := h.NonAxisNumElementsPerThread()
	elementStride := h.AxisElementStride()
	threadStride := h.AxisThreadStride()
	scanDim := h.AxisNumThreadsPerWarpWithUniqueData()
	numOperands := len(l.src[0])

	maskFirstWarp := b.Equal(l.warpIdAxis, b.ConstI32(0))
	maskFirstLane := b.Equal(l.laneIdAxis, b.ConstI32(0))
	maskFirstThread := b.LogicalAnd(maskFirstWarp, maskFirstLane)

	numScanBlocks := h.AxisNumBlocks()
	numParallelBlocks := h.NonAxisNumBlocks()
	if numScanBlocks*numParallelBlocks*parallelElemsPerThread*scanElems != len(l.src) {
		exceptions.Panicf("scan geometry does not decompose %d elements into %d x %d blocks of %d x %d",
			len(l.src), numScanBlocks, numParallelBlocks, scanElems, parallelElemsPerThread)
	}
	accumulators := make([][]*sir.Node, numParallelBlocks*parallelElemsPerThread)
	blockStride := h.AxisBlockStride()

	chunkId := 0
	for srcIndex := range l.src {
		if (srcIndex/elementStride)%scanElems != scanElems-1 {
			continue
		}
		blockId := chunkId / parallelElemsPerThread
		parallelBlockId := blockId%blockStride +
			((blockId/blockStride)/numScanBlocks)*blockStride
		accumulatorIndex := chunkId%parallelElemsPerThread +
			parallelBlockId*parallelElemsPerThread

		// The block restarts the scan: seed from this block's own values.
		accumulators[accumulatorIndex] = slices.Clone(l.src[srcIndex])
		accumulator := accumulators[accumulatorIndex]

		lastElement := slices.Clone(l.src[srcIndex])
		if scanDim > 1 {
			for j := range lastElement {
				elem := b.ShuffleUp(l.src[srcIndex][j], threadStride)
				lastElement[j] = b.Select(maskFirstLane, accumulator[j], elem)
				if numScanBlocks > 1 {
					// Read the true last lane's value for the next block.
					accumulator[j] = b.ShuffleIdx(l.src[srcIndex][j], l.laneIdLast)
				}
			}
		}
		for i := 1; i < scanElems; i++ {
			idx := srcIndex - i*elementStride
			laneValue := l.accumulate(lastElement, l.src[idx])
			fixed := make([]*sir.Node, numOperands)
			for j := range fixed {
				fixed[j] = b.Select(maskFirstThread, l.src[idx][j], laneValue[j])
			}
			l.src[idx] = fixed
		}
		chunkId++
	}
}
