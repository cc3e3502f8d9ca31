// Copyright 2025-2026 The GoSIMT Authors. SPDX-License-Identifier: Apache-2.0

// Package simtemu runs sir programs on an emulated SIMT execution block.
//
// Every thread executes every node of the program, node by node in lockstep,
// which is exactly the execution model the scan lowering assumes. The
// emulator is deliberately strict about what real hardware leaves undefined:
// out-of-range shuffle sources, shared-memory data races and reads of cells
// written since the last barrier all fail the run with a descriptive error
// instead of returning garbage.
package simtemu

import (
	"math"
	"reflect"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gosimt/gosimt/pkg/core/sir"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// Machine executes one program over a fixed block of threads grouped in
// warps. It is stateless across runs and safe for concurrent use.
type Machine struct {
	program    *sir.Program
	numThreads int
	warpSize   int
}

// NewMachine creates an emulated block of numThreads threads in warps of
// warpSize for the program.
func NewMachine(program *sir.Program, numThreads, warpSize int) (*Machine, error) {
	if program == nil {
		return nil, errors.Errorf("NewMachine needs a compiled program")
	}
	if numThreads <= 0 || warpSize <= 0 {
		return nil, errors.Errorf("NewMachine needs positive thread and warp sizes, got %d threads in warps of %d",
			numThreads, warpSize)
	}
	if numThreads%warpSize != 0 {
		return nil, errors.Errorf("block of %d threads is not a whole number of warps of %d", numThreads, warpSize)
	}
	return &Machine{program: program, numThreads: numThreads, warpSize: warpSize}, nil
}

// NumThreads in the emulated block.
func (m *Machine) NumThreads() int { return m.numThreads }

// WarpSize of the emulated block.
func (m *Machine) WarpSize() int { return m.warpSize }

// Run executes the program with one input buffer per parameter, in parameter
// order, and returns one buffer per program output.
func (m *Machine) Run(inputs ...*Buffer) ([]*Buffer, error) {
	params := m.program.Params()
	if len(inputs) != len(params) {
		return nil, errors.Errorf("program %q takes %d parameters, got %d inputs",
			m.program.Name(), len(params), len(inputs))
	}
	e := &execution{
		m:      m,
		values: make([]vector, len(m.program.Nodes())),
		shared: make(map[int]*sharedBuffer),
		epoch:  1,
	}
	for i, param := range params {
		if inputs[i] == nil {
			return nil, errors.Errorf("input #%d (%q) is nil", i, param.ParameterName())
		}
		if inputs[i].DType() != param.DType() {
			return nil, errors.Errorf("input #%d (%q) has dtype %s, parameter wants %s",
				i, param.ParameterName(), inputs[i].DType(), param.DType())
		}
		if inputs[i].Len() != m.numThreads {
			return nil, errors.Errorf("input #%d (%q) has %d values for a block of %d threads",
				i, param.ParameterName(), inputs[i].Len(), m.numThreads)
		}
		v, err := toVector(inputs[i])
		if err != nil {
			return nil, err
		}
		e.values[m.program.NodeIndex(param)] = v
	}

	klog.V(2).Infof("running %q over %d threads (warps of %d)", m.program.Name(), m.numThreads, m.warpSize)
	for _, node := range m.program.Nodes() {
		if err := e.execNode(node); err != nil {
			return nil, errors.WithMessagef(err, "while executing %s", node)
		}
	}

	outputs := make([]*Buffer, len(m.program.Outputs()))
	for i, out := range m.program.Outputs() {
		buf, err := toBuffer(e.values[m.program.NodeIndex(out)])
		if err != nil {
			return nil, err
		}
		outputs[i] = buf
	}
	return outputs, nil
}

// sharedBuffer is one block-shared staging area, with per-cell write epochs
// to detect races and missing barriers.
type sharedBuffer struct {
	dtype  dtypes.DType
	ints   []int64
	floats []float64

	// writeEpoch[i] is the epoch of the last store to cell i; 0 means never
	// written.
	writeEpoch []int
}

// execution is the per-run state: node values, shared buffers and the barrier
// epoch.
type execution struct {
	m      *Machine
	values []vector
	shared map[int]*sharedBuffer
	epoch  int
}

func (e *execution) in(node *sir.Node, i int) vector {
	return e.values[e.m.program.NodeIndex(node.Inputs()[i])]
}

func (e *execution) execNode(node *sir.Node) error {
	n := e.m.numThreads
	switch node.OpType() {
	case sir.OpTypeParameter:
		// Bound before the node sweep.
		return nil

	case sir.OpTypeConstant:
		return e.execConstant(node)

	case sir.OpTypeThreadID:
		v := newVector(dtypes.Int32, n)
		for t := range v.ints {
			v.ints[t] = int64(t)
		}
		e.values[e.m.program.NodeIndex(node)] = v
		return nil

	case sir.OpTypeAdd, sir.OpTypeSub, sir.OpTypeMul, sir.OpTypeDiv, sir.OpTypeRem,
		sir.OpTypeMax, sir.OpTypeMin, sir.OpTypeAnd, sir.OpTypeOr, sir.OpTypeXor:
		return e.execBinary(node)

	case sir.OpTypeLessThan, sir.OpTypeEqual:
		return e.execComparison(node)

	case sir.OpTypeLogicalAnd:
		lhs, rhs := e.in(node, 0), e.in(node, 1)
		v := newVector(dtypes.Bool, n)
		for t := range v.bools {
			v.bools[t] = lhs.bools[t] && rhs.bools[t]
		}
		e.values[e.m.program.NodeIndex(node)] = v
		return nil

	case sir.OpTypeSelect:
		return e.execSelect(node)

	case sir.OpTypeShuffleUp:
		return e.execShuffleUp(node)

	case sir.OpTypeShuffleIdx:
		return e.execShuffleIdx(node)

	case sir.OpTypeAllocShared:
		buf := &sharedBuffer{dtype: node.DType(), writeEpoch: make([]int, node.SharedNumElems())}
		switch classOf(node.DType()) {
		case classInt:
			buf.ints = make([]int64, node.SharedNumElems())
		case classFloat:
			buf.floats = make([]float64, node.SharedNumElems())
		default:
			return errors.Errorf("shared buffers of %s are not supported", node.DType())
		}
		e.shared[e.m.program.NodeIndex(node)] = buf
		return nil

	case sir.OpTypeSharedStore:
		return e.execSharedStore(node)

	case sir.OpTypeSharedLoad:
		return e.execSharedLoad(node)

	case sir.OpTypeBarrier:
		e.epoch++
		return nil

	default:
		return errors.Errorf("op %s is not supported by the emulator", node.OpType())
	}
}

func (e *execution) execConstant(node *sir.Node) error {
	n := e.m.numThreads
	v := newVector(node.DType(), n)
	value := node.ConstantValue()
	switch classOf(node.DType()) {
	case classBool:
		b, ok := value.(bool)
		if !ok {
			return errors.Errorf("constant %v (%T) does not match dtype %s", value, value, node.DType())
		}
		for t := range v.bools {
			v.bools[t] = b
		}
	case classInt:
		rv := reflect.ValueOf(value)
		var x int64
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			x = rv.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			x = int64(rv.Uint())
		default:
			return errors.Errorf("constant %v (%T) does not match dtype %s", value, value, node.DType())
		}
		for t := range v.ints {
			v.ints[t] = x
		}
	case classFloat:
		var x float64
		switch fv := value.(type) {
		case float16.Float16:
			x = float64(fv.Float32())
		case float32:
			x = float64(fv)
		case float64:
			x = fv
		default:
			return errors.Errorf("constant %v (%T) does not match dtype %s", value, value, node.DType())
		}
		for t := range v.floats {
			v.floats[t] = x
		}
	}
	e.values[e.m.program.NodeIndex(node)] = v
	return nil
}

func (e *execution) execBinary(node *sir.Node) error {
	lhs, rhs := e.in(node, 0), e.in(node, 1)
	dtype := node.DType()
	v := newVector(dtype, e.m.numThreads)
	switch classOf(dtype) {
	case classInt:
		for t := range v.ints {
			x, err := evalIntBinary(node.OpType(), dtype, lhs.ints[t], rhs.ints[t])
			if err != nil {
				return errors.WithMessagef(err, "in thread %d", t)
			}
			v.ints[t] = x
		}
	case classFloat:
		for t := range v.floats {
			x, err := evalFloatBinary(node.OpType(), lhs.floats[t], rhs.floats[t])
			if err != nil {
				return err
			}
			if dtype == dtypes.Float16 {
				// Hardware computes in half precision; round every result.
				x = float64(float16.Fromfloat32(float32(x)).Float32())
			}
			v.floats[t] = x
		}
	case classBool:
		for t := range v.bools {
			x, err := evalBoolBinary(node.OpType(), lhs.bools[t], rhs.bools[t])
			if err != nil {
				return err
			}
			v.bools[t] = x
		}
	}
	e.values[e.m.program.NodeIndex(node)] = v
	return nil
}

func evalIntBinary(op sir.OpType, dtype dtypes.DType, a, b int64) (int64, error) {
	var x int64
	switch op {
	case sir.OpTypeAdd:
		x = a + b
	case sir.OpTypeSub:
		x = a - b
	case sir.OpTypeMul:
		x = a * b
	case sir.OpTypeDiv:
		if b == 0 {
			return 0, errors.Errorf("integer division by zero")
		}
		x = a / b
	case sir.OpTypeRem:
		if b == 0 {
			return 0, errors.Errorf("integer remainder by zero")
		}
		x = a % b
	case sir.OpTypeMax:
		x = max(a, b)
	case sir.OpTypeMin:
		x = min(a, b)
	case sir.OpTypeAnd:
		x = a & b
	case sir.OpTypeOr:
		x = a | b
	case sir.OpTypeXor:
		x = a ^ b
	default:
		return 0, errors.Errorf("op %s is not an integer binary op", op)
	}
	return wrapInt(dtype, x), nil
}

// wrapInt reduces the widened result to the value range of the dtype.
func wrapInt(dtype dtypes.DType, x int64) int64 {
	switch dtype {
	case dtypes.Int32:
		return int64(int32(x))
	case dtypes.Uint32:
		return int64(uint32(x))
	default:
		return x
	}
}

func evalFloatBinary(op sir.OpType, a, b float64) (float64, error) {
	switch op {
	case sir.OpTypeAdd:
		return a + b, nil
	case sir.OpTypeSub:
		return a - b, nil
	case sir.OpTypeMul:
		return a * b, nil
	case sir.OpTypeDiv:
		return a / b, nil
	case sir.OpTypeMax:
		return math.Max(a, b), nil
	case sir.OpTypeMin:
		return math.Min(a, b), nil
	default:
		return 0, errors.Errorf("op %s is not defined for float dtypes", op)
	}
}

func evalBoolBinary(op sir.OpType, a, b bool) (bool, error) {
	switch op {
	case sir.OpTypeAnd:
		return a && b, nil
	case sir.OpTypeOr:
		return a || b, nil
	case sir.OpTypeXor:
		return a != b, nil
	default:
		return false, errors.Errorf("op %s is not defined for Bool", op)
	}
}

func (e *execution) execComparison(node *sir.Node) error {
	lhs, rhs := e.in(node, 0), e.in(node, 1)
	operandDType := node.Inputs()[0].DType()
	v := newVector(dtypes.Bool, e.m.numThreads)
	for t := range v.bools {
		var less, equal bool
		switch classOf(operandDType) {
		case classInt:
			if operandDType == dtypes.Uint32 {
				less = uint64(lhs.ints[t]) < uint64(rhs.ints[t])
			} else {
				less = lhs.ints[t] < rhs.ints[t]
			}
			equal = lhs.ints[t] == rhs.ints[t]
		case classFloat:
			less = lhs.floats[t] < rhs.floats[t]
			equal = lhs.floats[t] == rhs.floats[t]
		case classBool:
			return errors.Errorf("op %s is not defined for Bool operands", node.OpType())
		}
		if node.OpType() == sir.OpTypeLessThan {
			v.bools[t] = less
		} else {
			v.bools[t] = equal
		}
	}
	e.values[e.m.program.NodeIndex(node)] = v
	return nil
}

func (e *execution) execSelect(node *sir.Node) error {
	mask, onTrue, onFalse := e.in(node, 0), e.in(node, 1), e.in(node, 2)
	v := newVector(node.DType(), e.m.numThreads)
	for t := 0; t < e.m.numThreads; t++ {
		switch classOf(node.DType()) {
		case classBool:
			if mask.bools[t] {
				v.bools[t] = onTrue.bools[t]
			} else {
				v.bools[t] = onFalse.bools[t]
			}
		case classInt:
			if mask.bools[t] {
				v.ints[t] = onTrue.ints[t]
			} else {
				v.ints[t] = onFalse.ints[t]
			}
		case classFloat:
			if mask.bools[t] {
				v.floats[t] = onTrue.floats[t]
			} else {
				v.floats[t] = onFalse.floats[t]
			}
		}
	}
	e.values[e.m.program.NodeIndex(node)] = v
	return nil
}

// execShuffleUp reads the value of the lane delta positions below, within the
// warp. Lanes below the delta keep their own value.
func (e *execution) execShuffleUp(node *sir.Node) error {
	src := e.in(node, 0)
	delta := node.ShuffleDelta()
	v := newVector(node.DType(), e.m.numThreads)
	for t := 0; t < e.m.numThreads; t++ {
		lane := t % e.m.warpSize
		from := t
		if lane >= delta {
			from = t - delta
		}
		copyLane(&v, src, t, from)
	}
	e.values[e.m.program.NodeIndex(node)] = v
	return nil
}

// execShuffleIdx reads the value of an explicit lane of the warp; the source
// lane is a per-thread value and must be within the warp.
func (e *execution) execShuffleIdx(node *sir.Node) error {
	src, srcLane := e.in(node, 0), e.in(node, 1)
	v := newVector(node.DType(), e.m.numThreads)
	for t := 0; t < e.m.numThreads; t++ {
		lane := int(srcLane.ints[t])
		if lane < 0 || lane >= e.m.warpSize {
			return errors.Errorf("thread %d reads lane %d, outside its warp of %d lanes", t, lane, e.m.warpSize)
		}
		warpBase := t - t%e.m.warpSize
		copyLane(&v, src, t, warpBase+lane)
	}
	e.values[e.m.program.NodeIndex(node)] = v
	return nil
}

func copyLane(dst *vector, src vector, to, from int) {
	switch classOf(src.dtype) {
	case classBool:
		dst.bools[to] = src.bools[from]
	case classInt:
		dst.ints[to] = src.ints[from]
	case classFloat:
		dst.floats[to] = src.floats[from]
	}
}

func (e *execution) execSharedStore(node *sir.Node) error {
	buf := e.shared[e.m.program.NodeIndex(node.Inputs()[0])]
	index, value, mask := e.in(node, 1), e.in(node, 2), e.in(node, 3)
	for t := 0; t < e.m.numThreads; t++ {
		if !mask.bools[t] {
			continue
		}
		i := int(index.ints[t])
		if i < 0 || i >= len(buf.writeEpoch) {
			return errors.Errorf("thread %d stores at %d, outside the %d-element shared buffer", t, i, len(buf.writeEpoch))
		}
		if buf.writeEpoch[i] == e.epoch {
			return errors.Errorf("data race: thread %d stores at %d, already written since the last barrier", t, i)
		}
		buf.writeEpoch[i] = e.epoch
		switch classOf(buf.dtype) {
		case classInt:
			buf.ints[i] = value.ints[t]
		case classFloat:
			buf.floats[i] = value.floats[t]
		}
	}
	return nil
}

func (e *execution) execSharedLoad(node *sir.Node) error {
	buf := e.shared[e.m.program.NodeIndex(node.Inputs()[0])]
	index := e.in(node, 1)
	v := newVector(node.DType(), e.m.numThreads)
	for t := 0; t < e.m.numThreads; t++ {
		i := int(index.ints[t])
		if i < 0 || i >= len(buf.writeEpoch) {
			return errors.Errorf("thread %d loads at %d, outside the %d-element shared buffer", t, i, len(buf.writeEpoch))
		}
		if buf.writeEpoch[i] == 0 {
			return errors.Errorf("thread %d loads at %d, which was never stored to", t, i)
		}
		if buf.writeEpoch[i] == e.epoch {
			return errors.Errorf("thread %d loads at %d, written since the last barrier", t, i)
		}
		switch classOf(buf.dtype) {
		case classInt:
			v.ints[t] = buf.ints[i]
		case classFloat:
			v.floats[t] = buf.floats[i]
		}
	}
	e.values[e.m.program.NodeIndex(node)] = v
	return nil
}
