// Copyright 2025-2026 The GoSIMT Authors. SPDX-License-Identifier: Apache-2.0

package simtemu

import (
	"reflect"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Buffer holds one scalar per thread of the execution block, in thread order.
// It is the unit of input and output of a Machine run.
type Buffer struct {
	dtype dtypes.DType
	flat  any
}

// NewBuffer wraps a flat Go slice (e.g. []int32, []float16.Float16) with one
// value per thread. The buffer aliases the slice, it doesn't copy it.
func NewBuffer(flat any) (*Buffer, error) {
	flatV := reflect.ValueOf(flat)
	if flatV.Kind() != reflect.Slice {
		return nil, errors.Errorf("NewBuffer needs a flat slice of values, got %T", flat)
	}
	dtype := dtypes.FromGoType(flatV.Type().Elem())
	if dtype == dtypes.InvalidDType {
		return nil, errors.Errorf("NewBuffer got a slice of %s, not a valid element type", flatV.Type().Elem())
	}
	if !supportedDType(dtype) {
		return nil, errors.Errorf("dtype %s is not supported by the emulator", dtype)
	}
	return &Buffer{dtype: dtype, flat: flat}, nil
}

// DType of the buffer elements.
func (b *Buffer) DType() dtypes.DType { return b.dtype }

// Len is the number of per-thread values.
func (b *Buffer) Len() int { return reflect.ValueOf(b.flat).Len() }

// Flat returns the underlying slice; callers type-assert to the Go type of
// the dtype.
func (b *Buffer) Flat() any { return b.flat }

func supportedDType(dtype dtypes.DType) bool {
	switch dtype {
	case dtypes.Bool, dtypes.Int32, dtypes.Int64, dtypes.Uint32,
		dtypes.Float16, dtypes.Float32, dtypes.Float64:
		return true
	}
	return false
}

// valueClass splits the supported dtypes by internal representation: masks as
// bools, integers widened to int64, floats widened to float64.
type valueClass int

const (
	classBool valueClass = iota
	classInt
	classFloat
)

func classOf(dtype dtypes.DType) valueClass {
	switch dtype {
	case dtypes.Bool:
		return classBool
	case dtypes.Float16, dtypes.Float32, dtypes.Float64:
		return classFloat
	default:
		return classInt
	}
}

// vector is the per-node execution value: one scalar per thread, in the
// widened representation of the node's value class.
type vector struct {
	dtype  dtypes.DType
	ints   []int64
	floats []float64
	bools  []bool
}

func newVector(dtype dtypes.DType, numThreads int) vector {
	v := vector{dtype: dtype}
	switch classOf(dtype) {
	case classBool:
		v.bools = make([]bool, numThreads)
	case classInt:
		v.ints = make([]int64, numThreads)
	case classFloat:
		v.floats = make([]float64, numThreads)
	}
	return v
}

// toVector widens a buffer into the internal representation.
func toVector(b *Buffer) (vector, error) {
	v := vector{dtype: b.dtype}
	switch flat := b.flat.(type) {
	case []bool:
		v.bools = append([]bool(nil), flat...)
	case []int32:
		v.ints = make([]int64, len(flat))
		for i, x := range flat {
			v.ints[i] = int64(x)
		}
	case []int64:
		v.ints = append([]int64(nil), flat...)
	case []uint32:
		v.ints = make([]int64, len(flat))
		for i, x := range flat {
			v.ints[i] = int64(x)
		}
	case []float16.Float16:
		v.floats = make([]float64, len(flat))
		for i, x := range flat {
			v.floats[i] = float64(x.Float32())
		}
	case []float32:
		v.floats = make([]float64, len(flat))
		for i, x := range flat {
			v.floats[i] = float64(x)
		}
	case []float64:
		v.floats = append([]float64(nil), flat...)
	default:
		return vector{}, errors.Errorf("buffer of %T is not supported by the emulator", b.flat)
	}
	return v, nil
}

// toBuffer narrows an execution vector back to a buffer of its dtype.
func toBuffer(v vector) (*Buffer, error) {
	var flat any
	switch v.dtype {
	case dtypes.Bool:
		flat = append([]bool(nil), v.bools...)
	case dtypes.Int32:
		out := make([]int32, len(v.ints))
		for i, x := range v.ints {
			out[i] = int32(x)
		}
		flat = out
	case dtypes.Int64:
		flat = append([]int64(nil), v.ints...)
	case dtypes.Uint32:
		out := make([]uint32, len(v.ints))
		for i, x := range v.ints {
			out[i] = uint32(x)
		}
		flat = out
	case dtypes.Float16:
		out := make([]float16.Float16, len(v.floats))
		for i, x := range v.floats {
			out[i] = float16.Fromfloat32(float32(x))
		}
		flat = out
	case dtypes.Float32:
		out := make([]float32, len(v.floats))
		for i, x := range v.floats {
			out[i] = float32(x)
		}
		flat = out
	case dtypes.Float64:
		flat = append([]float64(nil), v.floats...)
	default:
		return nil, errors.Errorf("dtype %s is not supported by the emulator", v.dtype)
	}
	return &Buffer{dtype: v.dtype, flat: flat}, nil
}
