// Copyright 2025-2026 The GoSIMT Authors. SPDX-License-Identifier: Apache-2.0

package sir

import "github.com/gomlx/exceptions"

// Delinearize emits the decomposition of the Int32 value linear into one
// coordinate per dimension, with order[0] the fastest-varying dimension. It is
// the runtime counterpart of layout.Delinearize: the dims are compile-time,
// the value is per-thread.
func Delinearize(b *Builder, linear *Node, dims, order []int) []*Node {
	if len(dims) != len(order) {
		exceptions.Panicf("Delinearize: dims %v and order %v have different ranks", dims, order)
	}
	coords := make([]*Node, len(dims))
	rest := linear
	for _, d := range order {
		coords[d] = b.Rem(rest, b.ConstI32(dims[d]))
		rest = b.Div(rest, b.ConstI32(dims[d]))
	}
	return coords
}

// Linearize emits the inverse of Delinearize over per-thread coordinates.
func Linearize(b *Builder, coords []*Node, dims, order []int) *Node {
	if len(coords) != len(dims) || len(dims) != len(order) {
		exceptions.Panicf("Linearize: %d coords, %d dims, %d order entries", len(coords), len(dims), len(order))
	}
	if len(order) == 0 {
		return b.ConstI32(0)
	}
	linear := coords[order[len(order)-1]]
	for i := len(order) - 2; i >= 0; i-- {
		d := order[i]
		linear = b.Add(b.Mul(linear, b.ConstI32(dims[d])), coords[d])
	}
	return linear
}
