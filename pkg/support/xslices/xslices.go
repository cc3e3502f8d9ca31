// Copyright 2025-2026 The GoSIMT Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provides small generic helpers missing from the standard
// slices package, used throughout the module.
package xslices

import (
	"flag"
	"fmt"
	"strings"

	"golang.org/x/exp/constraints"
)

// Last returns the last element of the slice.
func Last[T any](slice []T) T {
	return slice[len(slice)-1]
}

// Prod returns the product of all elements of the slice, or 1 for an empty slice.
func Prod[T constraints.Integer | constraints.Float](slice []T) T {
	result := T(1)
	for _, v := range slice {
		result *= v
	}
	return result
}

// SliceWithValue returns a newly allocated slice of the given size, with all values set to value.
func SliceWithValue[T any](size int, value T) []T {
	slice := make([]T, size)
	for ii := range slice {
		slice[ii] = value
	}
	return slice
}

// Iota returns a slice of the given length with slice[ii] = start+ii.
func Iota[T constraints.Integer | constraints.Float](start T, length int) []T {
	slice := make([]T, length)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return slice
}

// Map executes fn sequentially for every element of in and returns the mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Flag registers a flag for a []T given as a comma-separated list, parsing each
// element with parserFn. It returns a pointer to the parsed slice.
func Flag[T any](name string, defaultValue []T, usage string,
	parserFn func(valueStr string) (T, error)) *[]T {
	f := &sliceFlag[T]{
		parsed:   defaultValue,
		parserFn: parserFn,
	}
	flag.Var(f, name, usage)
	return &f.parsed
}

// sliceFlag implements flag.Value for a comma-separated list of T.
type sliceFlag[T any] struct {
	parsed   []T
	parserFn func(valueStr string) (T, error)
}

func (f *sliceFlag[T]) String() string {
	parts := make([]string, len(f.parsed))
	for ii, elem := range f.parsed {
		parts[ii] = fmt.Sprintf("%v", elem)
	}
	return strings.Join(parts, ",")
}

func (f *sliceFlag[T]) Set(listStr string) error {
	if listStr == "" {
		f.parsed = nil
		return nil
	}
	parts := strings.Split(listStr, ",")
	f.parsed = make([]T, len(parts))
	var err error
	for ii, part := range parts {
		f.parsed[ii], err = f.parserFn(strings.TrimSpace(part))
		if err != nil {
			return err
		}
	}
	return nil
}
