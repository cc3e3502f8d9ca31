// Copyright 2025-2026 The GoSIMT Authors. SPDX-License-Identifier: Apache-2.0

package sir_test

import (
	"testing"

	"github.com/gosimt/gosimt/backends/simtemu"
	"github.com/gosimt/gosimt/pkg/core/layout"
	"github.com/gosimt/gosimt/pkg/core/sir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The emitted coordinate arithmetic must agree with the compile-time
// counterpart in package layout, thread by thread.
func TestDelinearizeMatchesLayout(t *testing.T) {
	dims := []int{4, 8}
	order := []int{1, 0}
	numThreads := 32

	b := sir.NewBuilder("delinearize")
	tid := b.ThreadID()
	coords := sir.Delinearize(b, tid, dims, order)
	back := sir.Linearize(b, coords, dims, order)
	p := b.Compile(append(coords, back)...)

	m, err := simtemu.NewMachine(p, numThreads, numThreads)
	require.NoError(t, err)
	outputs, err := m.Run()
	require.NoError(t, err)
	require.Len(t, outputs, 3)

	coords0 := outputs[0].Flat().([]int32)
	coords1 := outputs[1].Flat().([]int32)
	roundTrip := outputs[2].Flat().([]int32)
	for threadID := range numThreads {
		want := layout.Delinearize(threadID, dims, order)
		assert.Equal(t, int32(want[0]), coords0[threadID])
		assert.Equal(t, int32(want[1]), coords1[threadID])
		assert.Equal(t, int32(threadID), roundTrip[threadID])
	}
}

func TestLinearizeEmptyRank(t *testing.T) {
	b := sir.NewBuilder("empty")
	zero := sir.Linearize(b, nil, nil, nil)
	p := b.Compile(zero)

	m, err := simtemu.NewMachine(p, 4, 4)
	require.NoError(t, err)
	outputs, err := m.Run()
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 0, 0, 0}, outputs[0].Flat().([]int32))
}
