// Copyright 2025-2026 The GoSIMT Authors. SPDX-License-Identifier: Apache-2.0

// simtscan lowers an associative scan for a given tensor shape and blocked
// layout, prints the geometry, and optionally lists the emitted program, runs
// it on the emulator, or sweeps random geometries against a sequential
// reference.
//
// Examples:
//
//	simtscan -shape=64 -threads_per_warp=32 -warps_per_cta=2 -list
//	simtscan -shape=4,64 -axis=1 -threads_per_warp=4,8 -warps_per_cta=1,4 -order=1,0 -run
//	simtscan -sweep=500
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gosimt/gosimt/backends/simtemu"
	"github.com/gosimt/gosimt/pkg/core/layout"
	"github.com/gosimt/gosimt/pkg/core/scan"
	"github.com/gosimt/gosimt/pkg/core/sir"
	"github.com/gosimt/gosimt/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagShape   = xslices.Flag("shape", []int{64}, "tensor shape as a comma-separated list", strconv.Atoi)
	flagAxis    = flag.Int("axis", 0, "axis to scan along")
	flagSize    = xslices.Flag("size_per_thread", []int{1}, "elements per thread, per dimension", strconv.Atoi)
	flagThreads = xslices.Flag("threads_per_warp", []int{32}, "threads per warp, per dimension", strconv.Atoi)
	flagWarps   = xslices.Flag("warps_per_cta", []int{2}, "warps per CTA, per dimension", strconv.Atoi)
	flagOrder   = xslices.Flag("order", nil, "dimension order, fastest first; defaults to 0,1,...", strconv.Atoi)
	flagCombine = flag.String("combine", "add", "combine operator for -list/-run: add, mul or max")
	flagList    = flag.Bool("list", false, "print the lowered program listing")
	flagRun     = flag.Bool("run", false, "run the program on the emulator with input 1,2,3,... and print the result")
	flagSweep   = flag.Int("sweep", 0, "verify this many random geometries against a sequential reference and exit")
)

var (
	oddRowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).Padding(0, 1, 0, 1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).Padding(0, 1, 0, 1)
	titleStyle   = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

func newPlainTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row%2 == 0 {
				s = evenRowStyle
			} else {
				s = oddRowStyle
			}
			if col > 0 {
				s = s.Align(lipgloss.Right)
			}
			return
		})
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *flagSweep > 0 {
		sweep(*flagSweep)
		return
	}

	enc := &layout.Blocked{
		SizePerThread:  *flagSize,
		ThreadsPerWarp: *flagThreads,
		WarpsPerCTA:    *flagWarps,
		Order:          *flagOrder,
	}
	if enc.Order == nil {
		enc.Order = xslices.Iota(0, len(*flagShape))
	}
	if err := enc.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid layout: %v\n", err)
		os.Exit(1)
	}
	h := scan.NewHelper(enc, *flagShape, *flagAxis)
	if err := h.Supported(); err != nil {
		fmt.Fprintf(os.Stderr, "geometry not supported by the fast scan lowering: %v\n", err)
		os.Exit(1)
	}
	printGeometry(h, enc)

	if !*flagList && !*flagRun {
		return
	}
	program := lowerScan(h, combineFromFlag())
	if *flagList {
		fmt.Println(titleStyle.Render("Program"))
		fmt.Print(program.String())
	}
	if *flagRun {
		runProgram(h, enc, program)
	}
}

func printGeometry(h *scan.Helper, enc *layout.Blocked) {
	fmt.Println(titleStyle.Render("Scan Geometry"))
	table := newPlainTable()
	table.Row("shape", layout.FormatShape(h.Shape()))
	table.Row("axis", strconv.Itoa(h.Axis()))
	table.Row("layout", enc.String())
	table.Row("threads / CTA", humanize.Comma(int64(enc.NumThreadsPerCTA())))
	table.Row("warp size", strconv.Itoa(enc.WarpSize()))
	table.Row("elements / thread", strconv.Itoa(h.TotalElemsPerThread()))
	table.Row("scan width (lanes)", strconv.Itoa(h.AxisNumThreadsPerWarpWithUniqueData()))
	table.Row("warps along axis", strconv.Itoa(h.AxisNumWarpsWithUniqueData()))
	table.Row("parallel lanes", strconv.Itoa(h.NonAxisNumThreadsPerCTA()))
	table.Row("blocks (axis x rest)", fmt.Sprintf("%d x %d", h.AxisNumBlocks(), h.NonAxisNumBlocks()))
	table.Row("scratch / operand", humanize.IBytes(uint64(h.ScratchSizeInElems())*uint64(dtypes.Int32.Memory())))
	fmt.Println(table.Render())
}

func combineFromFlag() scan.CombineFn {
	var op func(b *sir.Builder, lhs, rhs *sir.Node) *sir.Node
	switch *flagCombine {
	case "add":
		op = (*sir.Builder).Add
	case "mul":
		op = (*sir.Builder).Mul
	case "max":
		op = (*sir.Builder).Max
	default:
		fmt.Fprintf(os.Stderr, "unknown -combine operator %q\n", *flagCombine)
		os.Exit(1)
	}
	return func(b *sir.Builder, acc, cur []*sir.Node) []*sir.Node {
		return []*sir.Node{op(b, acc[0], cur[0])}
	}
}

// lowerScan lowers an Int32 scan with the given combine operator over the
// geometry and compiles it.
func lowerScan(h *scan.Helper, combine scan.CombineFn) *sir.Program {
	b := sir.NewBuilder("simtscan")
	numElems := h.TotalElemsPerThread()
	operand := make([]*sir.Node, numElems)
	for e := range operand {
		operand[e] = b.Parameter(fmt.Sprintf("in_e%d", e), dtypes.Int32)
	}
	results := must.M1(scan.Lower(b, h, combine, [][]*sir.Node{operand}))
	return b.Compile(results[0]...)
}

func runProgram(h *scan.Helper, enc *layout.Blocked, program *sir.Program) {
	shape := h.Shape()
	in := xslices.Iota[int32](1, xslices.Prod(shape))
	out := emulateAddScan(h, enc, program, in)
	fmt.Println(titleStyle.Render("Scanned (row-major)"))
	table := newPlainTable()
	table.Row("input", fmt.Sprint(in))
	table.Row("output", fmt.Sprint(out))
	fmt.Println(table.Render())
}

// emulateAddScan distributes the row-major tensor over the threads, runs the
// program and collects the scanned tensor back.
func emulateAddScan(h *scan.Helper, enc *layout.Blocked, program *sir.Program, in []int32) []int32 {
	shape := h.Shape()
	numThreads := enc.NumThreadsPerCTA()
	numElems := h.TotalElemsPerThread()
	buffers := make([]*simtemu.Buffer, numElems)
	for e := range buffers {
		flat := make([]int32, numThreads)
		for tid := range flat {
			flat[tid] = in[rowMajorIndex(enc.ElementCoords(shape, tid, e), shape)]
		}
		buffers[e] = must.M1(simtemu.NewBuffer(flat))
	}
	machine := must.M1(simtemu.NewMachine(program, numThreads, enc.WarpSize()))
	outputs := must.M1(machine.Run(buffers...))

	out := make([]int32, len(in))
	for e := range numElems {
		flat := outputs[e].Flat().([]int32)
		for tid := range flat {
			out[rowMajorIndex(enc.ElementCoords(shape, tid, e), shape)] = flat[tid]
		}
	}
	return out
}

func rowMajorIndex(coords, shape []int) int {
	idx := 0
	for d, c := range coords {
		idx = idx*shape[d] + c
	}
	return idx
}

// sweep lowers and emulates random 1-D geometries, checking each result
// against a sequential scan that restarts at every tile pass.
func sweep(n int) {
	rng := rand.New(rand.NewSource(42))
	bar := progressbar.Default(int64(n), "geometries")
	checked := 0
	for checked < n {
		size := 1 << rng.Intn(3)
		threads := 1 << (1 + rng.Intn(5))
		warps := 1 + rng.Intn(3)
		blocks := 1 + rng.Intn(3)
		shape := []int{size * threads * warps * blocks}
		enc := blocked1D(size, threads, warps)
		h := scan.NewHelper(enc, shape, 0)
		if h.Supported() != nil {
			continue
		}
		program := lowerScan(h, func(b *sir.Builder, acc, cur []*sir.Node) []*sir.Node {
			return []*sir.Node{b.Add(acc[0], cur[0])}
		})
		in := make([]int32, shape[0])
		for i := range in {
			in[i] = int32(rng.Intn(200) - 100)
		}
		got := emulateAddScan(h, enc, program, in)
		want := referenceScan(in, min(enc.TileShape()[0], shape[0]))
		for i := range want {
			if got[i] != want[i] {
				fmt.Fprintf(os.Stderr, "\nmismatch for %s at %d: got %d, want %d\n", h, i, got[i], want[i])
				os.Exit(1)
			}
		}
		checked++
		must.M(bar.Add(1))
	}
	fmt.Printf("%d geometries verified\n", checked)
}

func blocked1D(size, threads, warps int) *layout.Blocked {
	return &layout.Blocked{
		SizePerThread:  []int{size},
		ThreadsPerWarp: []int{threads},
		WarpsPerCTA:    []int{warps},
		Order:          []int{0},
	}
}

func referenceScan(in []int32, blockLen int) []int32 {
	out := make([]int32, len(in))
	for i, x := range in {
		if i%blockLen == 0 {
			out[i] = x
		} else {
			out[i] = out[i-1] + x
		}
	}
	return out
}
