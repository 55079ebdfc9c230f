// Package eval implements the batched interpreter: it walks a postfix
// expression arena over a dataset row range, producing a vector of a
// generic scalar type. The same routine serves plain float64 evaluation
// and forward-mode autodiff by parameterizing over numeric.Scalar and
// threading in the two constructors a scalar type needs but cannot
// synthesize on its own: lifting a plain data reading (no derivative) and
// lifting a fitted parameter (seeded with its own one-hot derivative).
package eval

import (
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"symreg/internal/dataset"
	"symreg/internal/expr"
	"symreg/internal/numeric"
)

// BatchSize is the number of rows processed together per pass over the
// node arena, amortizing per-node dispatch overhead.
const BatchSize = 64

// Workspace is the per-Evaluate scratch matrix: cols[i] holds the running
// value of the subtree rooted at node i across the current batch.
// Allocated once per call (or pooled, see GetF64Workspace/PutF64Workspace
// for the hot float64 path) and reused across batches.
type Workspace[T numeric.Scalar[T]] struct {
	cols [][]T
}

// NewWorkspace allocates a Workspace sized for n nodes.
func NewWorkspace[T numeric.Scalar[T]](n int) *Workspace[T] {
	w := &Workspace[T]{}
	w.ensure(n)
	return w
}

func (w *Workspace[T]) ensure(n int) {
	if len(w.cols) >= n {
		return
	}
	grown := make([][]T, n)
	copy(grown, w.cols)
	for i := len(w.cols); i < n; i++ {
		grown[i] = make([]T, BatchSize)
	}
	w.cols = grown
}

var f64WorkspacePool = sync.Pool{
	New: func() any {
		return NewWorkspace[numeric.F64](0)
	},
}

// GetF64Workspace returns a pooled float64 Workspace sized for at least n
// nodes, growing it if a previously pooled instance is too small.
func GetF64Workspace(n int) *Workspace[numeric.F64] {
	ws := f64WorkspacePool.Get().(*Workspace[numeric.F64])
	ws.ensure(n)
	return ws
}

// PutF64Workspace returns a Workspace obtained from GetF64Workspace to the
// pool for reuse by a later Evaluate call.
func PutF64Workspace(ws *Workspace[numeric.F64]) {
	f64WorkspacePool.Put(ws)
}

// Evaluate walks tree against dataset over rng, producing a length-rng.Size
// vector of T. parameters, when non-nil, supplies the coefficient vector in
// place of the tree's literal Constant/Variable values; it must have one
// entry per terminal node, in node order (see expr.Tree.GetCoefficients).
//
// liftConst constructs a plain data value (no derivative information, used
// for raw dataset readings). liftParam constructs a value for the
// paramIdx-th entry of the coefficient vector, seeded with whatever
// derivative information T tracks for that specific parameter (for
// numeric.Dual, a one-hot derivative at paramIdx; for numeric.F64, the
// value alone). Evaluating with duals seeded this way yields the complete
// Jacobian in a single pass.
func Evaluate[T numeric.Scalar[T]](
	tree *expr.Tree,
	ds *dataset.Dataset,
	rng dataset.Range,
	parameters []float64,
	liftConst func(float64) T,
	liftParam func(float64, int) T,
) ([]T, error) {
	out := make([]T, rng.Size)
	ws := NewWorkspace[T](tree.Len())
	if err := EvaluateInto(tree, ds, rng, parameters, liftConst, liftParam, ws, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EvaluateInto is the in-place variant of Evaluate, writing into a
// caller-provided span of length rng.Size and a caller-provided (typically
// pooled) Workspace.
func EvaluateInto[T numeric.Scalar[T]](
	tree *expr.Tree,
	ds *dataset.Dataset,
	rng dataset.Range,
	parameters []float64,
	liftConst func(float64) T,
	liftParam func(float64, int) T,
	ws *Workspace[T],
	out []T,
) error {
	if len(out) != rng.Size {
		return fmt.Errorf("eval: output span has length %d, want %d", len(out), rng.Size)
	}
	nodes := tree.Nodes()
	n := len(nodes)
	if n == 0 {
		return nil
	}
	ws.ensure(n)
	cols := ws.cols

	colIndex := make([]int, n)
	paramIdx := make([]int, n)
	cursor := 0
	varBits := tree.VariableBits()

	for i, node := range nodes {
		if varBits.Test(uint(i)) {
			idx, ok := ds.GetIndex(node.HashValue)
			if !ok {
				return fmt.Errorf("eval: unknown variable hash %d at node %d", node.HashValue, i)
			}
			colIndex[i] = idx
			paramIdx[i] = cursor
			cursor++
			continue
		}
		if node.Type == expr.Constant {
			v := node.Value
			if parameters != nil {
				v = parameters[cursor]
			}
			c := liftParam(v, cursor)
			col := cols[i]
			for b := range col {
				col[b] = c
			}
			cursor++
		}
	}

	end := rng.Start + rng.Size
	for row := rng.Start; row < end; row += BatchSize {
		remaining := end - row
		if remaining > BatchSize {
			remaining = BatchSize
		}
		if err := runBatch(nodes, ds, cols, colIndex, paramIdx, parameters, liftConst, liftParam, varBits, row, remaining); err != nil {
			return err
		}
		copy(out[row-rng.Start:row-rng.Start+remaining], cols[n-1][:remaining])
	}

	numeric.Sanitize(out)
	return nil
}

func runBatch[T numeric.Scalar[T]](
	nodes []expr.Node,
	ds *dataset.Dataset,
	cols [][]T,
	colIndex []int,
	paramIdx []int,
	parameters []float64,
	liftConst func(float64) T,
	liftParam func(float64, int) T,
	varBits *bitset.BitSet,
	row, remaining int,
) error {
	for i, node := range nodes {
		col := cols[i][:remaining]
		if varBits.Test(uint(i)) {
			w := node.Value
			if parameters != nil {
				w = parameters[paramIdx[i]]
			}
			weight := liftParam(w, paramIdx[i])
			seg := ds.Segment(colIndex[i], row, remaining)
			for r := range col {
				col[r] = weight.Mul(liftConst(seg[r]))
			}
			continue
		}
		switch node.Type {
		case expr.Add, expr.Sub, expr.Mul, expr.Div:
			a := cols[expr.FirstOperand(nodes, i)][:remaining]
			b := cols[expr.SecondOperand(nodes, i)][:remaining]
			switch node.Type {
			case expr.Add:
				for r := range col {
					col[r] = a[r].Add(b[r])
				}
			case expr.Sub:
				for r := range col {
					col[r] = a[r].Sub(b[r])
				}
			case expr.Mul:
				for r := range col {
					col[r] = a[r].Mul(b[r])
				}
			case expr.Div:
				for r := range col {
					col[r] = a[r].Div(b[r])
				}
			}
		case expr.Log, expr.Exp, expr.Sin, expr.Cos, expr.Tan, expr.Sqrt, expr.Cbrt, expr.Square:
			a := cols[expr.FirstOperand(nodes, i)][:remaining]
			switch node.Type {
			case expr.Log:
				for r := range col {
					col[r] = a[r].Log()
				}
			case expr.Exp:
				for r := range col {
					col[r] = a[r].Exp()
				}
			case expr.Sin:
				for r := range col {
					col[r] = a[r].Sin()
				}
			case expr.Cos:
				for r := range col {
					col[r] = a[r].Cos()
				}
			case expr.Tan:
				for r := range col {
					col[r] = a[r].Tan()
				}
			case expr.Sqrt:
				for r := range col {
					col[r] = a[r].Sqrt()
				}
			case expr.Cbrt:
				for r := range col {
					col[r] = a[r].Cbrt()
				}
			case expr.Square:
				for r := range col {
					col[r] = a[r].Square()
				}
			}
		case expr.Constant:
			// already populated for the full batch width during setup.
		default:
			panic(fmt.Sprintf("eval: unknown node type %v", node.Type))
		}
	}
	return nil
}

func f64LiftConst(v float64) numeric.F64        { return numeric.F64(v) }
func f64LiftParam(v float64, _ int) numeric.F64 { return numeric.F64(v) }

// EvaluateFloat64 is the plain-evaluation convenience wrapper: no Jacobian
// is carried, so lifting a parameter is identical to lifting raw data. Uses
// a pooled Workspace since this is the hot path walked once per candidate
// per generation.
func EvaluateFloat64(tree *expr.Tree, ds *dataset.Dataset, rng dataset.Range, parameters []float64) ([]numeric.F64, error) {
	out := make([]numeric.F64, rng.Size)
	ws := GetF64Workspace(tree.Len())
	defer PutF64Workspace(ws)
	if err := EvaluateInto(tree, ds, rng, parameters, f64LiftConst, f64LiftParam, ws, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EvaluateDual runs the same interpreter seeded for forward-mode autodiff:
// nparams is the width of the coefficient vector (and so of every Dual's
// derivative), and each Constant/Variable weight is seeded with a one-hot
// derivative at its own coefficient index, so the returned vector's
// derivatives are exactly the Jacobian rows the coefficient optimizer
// needs.
func EvaluateDual(tree *expr.Tree, ds *dataset.Dataset, rng dataset.Range, parameters []float64, nparams int) ([]numeric.Dual, error) {
	liftConst := func(v float64) numeric.Dual { return numeric.NewDual(v, nparams) }
	liftParam := func(v float64, idx int) numeric.Dual { return numeric.Seed(v, nparams, idx) }
	return Evaluate(tree, ds, rng, parameters, liftConst, liftParam)
}
