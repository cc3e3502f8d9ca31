// Copyright 2025-2026 The GoSIMT Authors. SPDX-License-Identifier: Apache-2.0

package layout

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockedValidate(t *testing.T) {
	valid := &Blocked{
		SizePerThread:  []int{2, 1},
		ThreadsPerWarp: []int{4, 8},
		WarpsPerCTA:    []int{1, 4},
		Order:          []int{1, 0},
	}
	require.NoError(t, valid.Validate())

	rankMismatch := &Blocked{
		SizePerThread:  []int{2, 1},
		ThreadsPerWarp: []int{4},
		WarpsPerCTA:    []int{1, 4},
		Order:          []int{1, 0},
	}
	require.Error(t, rankMismatch.Validate())

	badOrder := &Blocked{
		SizePerThread:  []int{2, 1},
		ThreadsPerWarp: []int{4, 8},
		WarpsPerCTA:    []int{1, 4},
		Order:          []int{1, 1},
	}
	require.Error(t, badOrder.Validate())

	zeroFactor := &Blocked{
		SizePerThread:  []int{2, 0},
		ThreadsPerWarp: []int{4, 8},
		WarpsPerCTA:    []int{1, 4},
		Order:          []int{1, 0},
	}
	require.Error(t, zeroFactor.Validate())
}

func TestLinearizeRoundTrip(t *testing.T) {
	dims := []int{2, 4, 8}
	order := []int{1, 0, 2}
	total := 2 * 4 * 8
	for linear := range total {
		coords := Delinearize(linear, dims, order)
		for d, c := range coords {
			require.Less(t, c, dims[d])
		}
		assert.Equal(t, linear, Linearize(coords, dims, order))
	}
}

func TestBlockedSizes(t *testing.T) {
	l := &Blocked{
		SizePerThread:  []int{1, 1},
		ThreadsPerWarp: []int{4, 8},
		WarpsPerCTA:    []int{1, 4},
		Order:          []int{1, 0},
	}
	assert.Equal(t, 32, l.WarpSize())
	assert.Equal(t, 4, l.NumWarpsPerCTA())
	assert.Equal(t, 128, l.NumThreadsPerCTA())
	assert.Equal(t, 1, l.RegistersPerTile())
	assert.Equal(t, []int{4, 32}, l.TileShape())
	assert.Equal(t, []int{1, 2}, l.NumBlocks([]int{4, 64}))
	assert.Equal(t, 2, l.TotalElemsPerThread([]int{4, 64}))
}

// When the tiling exactly covers the shape, every element must be owned by
// exactly one (thread, register) pair.
func TestElementCoordsBijection(t *testing.T) {
	layouts := []*Blocked{
		{
			SizePerThread:  []int{2},
			ThreadsPerWarp: []int{4},
			WarpsPerCTA:    []int{2},
			Order:          []int{0},
		},
		{
			SizePerThread:  []int{1, 1},
			ThreadsPerWarp: []int{4, 8},
			WarpsPerCTA:    []int{1, 4},
			Order:          []int{1, 0},
		},
		{
			SizePerThread:  []int{2, 2},
			ThreadsPerWarp: []int{2, 4},
			WarpsPerCTA:    []int{2, 1},
			Order:          []int{0, 1},
		},
	}
	shapes := [][]int{{16}, {4, 64}, {16, 8}}
	for i, l := range layouts {
		shape := shapes[i]
		t.Run(fmt.Sprintf("%s/%s", l, FormatShape(shape)), func(t *testing.T) {
			numThreads := l.NumThreadsPerCTA()
			numRegisters := l.TotalElemsPerThread(shape)
			seen := make(map[string]int)
			for threadID := range numThreads {
				for register := range numRegisters {
					coords := l.ElementCoords(shape, threadID, register)
					seen[fmt.Sprint(coords)]++
				}
			}
			numElements := 1
			for _, d := range shape {
				numElements *= d
			}
			require.Len(t, seen, numElements)
			for coords, count := range seen {
				assert.Equal(t, 1, count, "element %s owned by %d (thread, register) pairs", coords, count)
			}
		})
	}
}

// A one-dimensional layout with the identity order must place each thread's
// tile contiguously: warp-major, lane-minor, element last.
func TestElementCoords1D(t *testing.T) {
	l := &Blocked{
		SizePerThread:  []int{2},
		ThreadsPerWarp: []int{4},
		WarpsPerCTA:    []int{2},
		Order:          []int{0},
	}
	shape := []int{16}
	for threadID := range 8 {
		warp, lane := threadID/4, threadID%4
		for register := range 2 {
			want := warp*8 + lane*2 + register
			got := l.ElementCoords(shape, threadID, register)
			assert.Equal(t, []int{want}, got, "thread %d register %d", threadID, register)
		}
	}
}

// Warps beyond the tensor extent wrap around and hold duplicated data.
func TestElementCoordsWrap(t *testing.T) {
	l := &Blocked{
		SizePerThread:  []int{1},
		ThreadsPerWarp: []int{4},
		WarpsPerCTA:    []int{4},
		Order:          []int{0},
	}
	shape := []int{8}
	for threadID := range 16 {
		warp, lane := threadID/4, threadID%4
		want := ((warp%2)*4 + lane) % 8
		got := l.ElementCoords(shape, threadID, 0)
		assert.Equal(t, []int{want}, got, "thread %d", threadID)
	}
}
