// Package residual wraps the batched interpreter to present
// residual[i] = predicted[i] - target[i], the shape a nonlinear
// least-squares driver expects from a cost function.
package residual

import (
	"fmt"

	"symreg/internal/dataset"
	"symreg/internal/eval"
	"symreg/internal/expr"
	"symreg/internal/numeric"
)

// Functor holds immutable references to a tree, dataset, target, and row
// range, and evaluates the batched interpreter against a parameter block to
// produce residuals. It is templated over scalar type so the coefficient
// optimizer's autodiff path can pass duals through the same code that
// serves plain evaluation.
type Functor[T numeric.Scalar[T]] struct {
	tree      *expr.Tree
	ds        *dataset.Dataset
	target    []float64
	rng       dataset.Range
	liftConst func(float64) T
	liftParam func(float64, int) T
}

// New builds a Functor. target must have length rng.Size.
func New[T numeric.Scalar[T]](
	tree *expr.Tree,
	ds *dataset.Dataset,
	target []float64,
	rng dataset.Range,
	liftConst func(float64) T,
	liftParam func(float64, int) T,
) (*Functor[T], error) {
	if len(target) != rng.Size {
		return nil, fmt.Errorf("residual: target has length %d, want %d", len(target), rng.Size)
	}
	return &Functor[T]{
		tree:      tree,
		ds:        ds,
		target:    target,
		rng:       rng,
		liftConst: liftConst,
		liftParam: liftParam,
	}, nil
}

// Residuals evaluates the interpreter over parameters and writes
// predicted[i] - target[i] into out, which must have length rng.Size.
func (f *Functor[T]) Residuals(parameters []float64, ws *eval.Workspace[T], out []T) error {
	if err := eval.EvaluateInto(f.tree, f.ds, f.rng, parameters, f.liftConst, f.liftParam, ws, out); err != nil {
		return err
	}
	for i := range out {
		out[i] = out[i].Sub(f.liftConst(f.target[i]))
	}
	return nil
}

// Size returns the residual count, range.Size.
func (f *Functor[T]) Size() int { return f.rng.Size }
