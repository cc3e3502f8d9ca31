// Copyright 2025-2026 The GoSIMT Authors. SPDX-License-Identifier: Apache-2.0

// Package layout describes how the elements of a tensor are distributed over
// the threads of a SIMT execution block (CTA).
//
// A CTA is organized as a grid of warps (Blocked.WarpsPerCTA), each warp a
// grid of threads (Blocked.ThreadsPerWarp), each thread owning a small tile of
// contiguous elements (Blocked.SizePerThread) per dimension. When the tensor
// is larger than one pass of the CTA tile, the tile repeats ("blocks") until
// the tensor is covered; when it is smaller, coordinates wrap around and
// threads hold duplicated data.
//
// All functions here are pure integer arithmetic executed at lowering time.
// The runtime (per-thread) counterparts that emit IR live in package sir.
package layout

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gosimt/gosimt/pkg/support/xslices"
)

// Encoding describes a mapping from tensor elements to threads.
//
// Only Blocked is accepted by the fast scan lowering; other encodings make
// Helper.IsSupported return false, deferring to a fallback lowering.
type Encoding interface {
	Rank() int
	String() string
}

// Blocked is the standard layout: per-dimension nested tiling of elements
// into threads, threads into warps and warps into the CTA.
//
// Order lists dimensions from fastest-varying to slowest-varying, and applies
// to all three levels of the tiling as well as to the per-thread register
// numbering.
type Blocked struct {
	SizePerThread  []int
	ThreadsPerWarp []int
	WarpsPerCTA    []int
	Order          []int
}

var _ Encoding = (*Blocked)(nil)

// Rank implements Encoding.
func (l *Blocked) Rank() int { return len(l.SizePerThread) }

// String implements Encoding.
func (l *Blocked) String() string {
	return fmt.Sprintf("Blocked{sizePerThread=%v, threadsPerWarp=%v, warpsPerCTA=%v, order=%v}",
		l.SizePerThread, l.ThreadsPerWarp, l.WarpsPerCTA, l.Order)
}

// Validate returns an error description if the layout is malformed.
// Malformed layouts are a programming fault, so callers usually panic on it.
func (l *Blocked) Validate() error {
	rank := l.Rank()
	if rank == 0 {
		return fmt.Errorf("blocked layout has rank 0")
	}
	if len(l.ThreadsPerWarp) != rank || len(l.WarpsPerCTA) != rank || len(l.Order) != rank {
		return fmt.Errorf("blocked layout fields disagree on rank: %s", l)
	}
	seen := make([]bool, rank)
	for _, d := range l.Order {
		if d < 0 || d >= rank || seen[d] {
			return fmt.Errorf("blocked layout order %v is not a permutation of the %d dimensions", l.Order, rank)
		}
		seen[d] = true
	}
	for d := range rank {
		if l.SizePerThread[d] < 1 || l.ThreadsPerWarp[d] < 1 || l.WarpsPerCTA[d] < 1 {
			return fmt.Errorf("blocked layout has non-positive tiling factors: %s", l)
		}
	}
	return nil
}

// WarpSize returns the number of threads per warp.
func (l *Blocked) WarpSize() int { return xslices.Prod(l.ThreadsPerWarp) }

// NumWarpsPerCTA returns the number of warps in the CTA.
func (l *Blocked) NumWarpsPerCTA() int { return xslices.Prod(l.WarpsPerCTA) }

// NumThreadsPerCTA returns the total number of threads in the CTA.
func (l *Blocked) NumThreadsPerCTA() int { return l.WarpSize() * l.NumWarpsPerCTA() }

// RegistersPerTile returns the number of elements a thread owns in one pass of
// the CTA tile.
func (l *Blocked) RegistersPerTile() int { return xslices.Prod(l.SizePerThread) }

// TileShape returns, per dimension, the extent covered by one pass of the CTA.
func (l *Blocked) TileShape() []int {
	tile := make([]int, l.Rank())
	for d := range tile {
		tile[d] = l.SizePerThread[d] * l.ThreadsPerWarp[d] * l.WarpsPerCTA[d]
	}
	return tile
}

// NumBlocks returns, per dimension, how many times the CTA tile repeats to
// cover the given tensor shape (at least 1).
func (l *Blocked) NumBlocks(shape []int) []int {
	l.checkShape(shape)
	tile := l.TileShape()
	blocks := make([]int, l.Rank())
	for d := range blocks {
		blocks[d] = max(1, ceilDiv(shape[d], tile[d]))
	}
	return blocks
}

// TotalElemsPerThread returns the length of the flat per-thread element list
// for the given tensor shape.
func (l *Blocked) TotalElemsPerThread(shape []int) int {
	return xslices.Prod(l.NumBlocks(shape)) * l.RegistersPerTile()
}

// ElementCoords maps a (thread, register) pair to the tensor coordinates of
// the element it holds. Coordinates wrap around the shape, so oversized
// layouts hold duplicated data, consistently for every phase.
//
// The flat register index decomposes, fastest to slowest, into the coordinates
// within the thread tile (by Order) and then the tile-repetition coordinates
// (by Order). This convention is shared with the scan geometry strides.
func (l *Blocked) ElementCoords(shape []int, threadID, register int) []int {
	l.checkShape(shape)
	warpSize := l.WarpSize()
	laneCoords := Delinearize(threadID%warpSize, l.ThreadsPerWarp, l.Order)
	warpCoords := Delinearize(threadID/warpSize, l.WarpsPerCTA, l.Order)
	regsPerTile := l.RegistersPerTile()
	elemCoords := Delinearize(register%regsPerTile, l.SizePerThread, l.Order)
	repCoords := Delinearize(register/regsPerTile, l.NumBlocks(shape), l.Order)

	tile := l.TileShape()
	coords := make([]int, l.Rank())
	for d := range coords {
		coords[d] = repCoords[d]*tile[d] +
			(warpCoords[d]*l.ThreadsPerWarp[d]+laneCoords[d])*l.SizePerThread[d] +
			elemCoords[d]
		coords[d] %= shape[d]
	}
	return coords
}

func (l *Blocked) checkShape(shape []int) {
	if len(shape) != l.Rank() {
		exceptions.Panicf("layout %s used with shape %v of different rank", l, shape)
	}
}

// Sliced is a layout derived from slicing a parent layout along one dimension.
// The fast scan lowering does not support it.
type Sliced struct {
	Parent Encoding
	Dim    int
}

var _ Encoding = (*Sliced)(nil)

// Rank implements Encoding.
func (l *Sliced) Rank() int { return l.Parent.Rank() - 1 }

// String implements Encoding.
func (l *Sliced) String() string {
	return fmt.Sprintf("Sliced{dim=%d, parent=%s}", l.Dim, l.Parent)
}

// Delinearize breaks the flat index linear into one coordinate per dimension,
// with order[0] the fastest-varying dimension.
func Delinearize(linear int, dims, order []int) []int {
	coords := make([]int, len(dims))
	for _, d := range order {
		coords[d] = linear % dims[d]
		linear /= dims[d]
	}
	return coords
}

// Linearize is the inverse of Delinearize.
func Linearize(coords, dims, order []int) int {
	linear := 0
	for i := len(order) - 1; i >= 0; i-- {
		d := order[i]
		linear = linear*dims[d] + coords[d]
	}
	return linear
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

// FormatShape pretty-prints a tensor shape, e.g. [4 64] -> "(4, 64)".
func FormatShape(shape []int) string {
	parts := xslices.Map(shape, func(d int) string { return fmt.Sprintf("%d", d) })
	return "(" + strings.Join(parts, ", ") + ")"
}
