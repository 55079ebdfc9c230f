// Package fit implements the coefficient optimizer: a trust-region
// Levenberg-Marquardt loop over a residual functor, using either
// forward-mode autodiff or central finite differences for the Jacobian,
// solved with gonum/mat's dense linear solver at each step.
package fit

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/mat"

	"symreg/internal/dataset"
	"symreg/internal/eval"
	"symreg/internal/expr"
	"symreg/internal/numeric"
	"symreg/internal/residual"
)

// Mode selects how the Jacobian is computed.
type Mode int

const (
	Autodiff Mode = iota
	Numeric
)

func (m Mode) String() string {
	if m == Autodiff {
		return "autodiff"
	}
	return "numeric"
}

// Options configures a single Optimize call.
type Options struct {
	Iterations        int
	WriteCoefficients bool
	Report            bool
	Mode              Mode
}

// Summary is the outcome of an Optimize call: enough for a caller to decide
// whether to trust the fitted coefficients, and optionally to chart
// convergence.
type Summary struct {
	IterationsPerformed int
	InitialCost         float64
	FinalCost           float64
	TerminationReason   string
	// History is the cost after each accepted step, initial cost first.
	// Not part of the minimal contract; kept for convergence reporting.
	History []float64
}

const (
	initialLambda = 1e-3
	lambdaUp      = 10.0
	lambdaDown    = 0.1
	minLambda     = 1e-12
	maxLambda     = 1e12
)

// Optimize runs the coefficient optimizer against tree's embedded
// coefficients. If the tree has no coefficients, it returns an empty
// Summary without touching the tree or dataset.
func Optimize(tree *expr.Tree, ds *dataset.Dataset, target []float64, rng dataset.Range, opts Options) (Summary, error) {
	coeffs := tree.GetCoefficients()
	if len(coeffs) == 0 {
		return Summary{}, nil
	}

	iterCap := opts.Iterations - 1 // workaround for off-by-one in the underlying driver
	if iterCap < 0 {
		iterCap = 0
	}

	params := append([]float64(nil), coeffs...)
	n := len(params)
	m := rng.Size

	var (
		jacobian func(p []float64) (r []float64, j *mat.Dense, err error)
	)
	switch opts.Mode {
	case Autodiff:
		jacobian = autodiffJacobian(tree, ds, target, rng, n, m)
	default:
		jacobian = finiteDiffJacobian(tree, ds, target, rng, n, m)
	}

	r0, _, err := jacobian(params)
	if err != nil {
		return Summary{TerminationReason: fmt.Sprintf("initial evaluation failed: %v", err)}, nil
	}
	initialCost := sumSquares(r0) / 2
	history := []float64{initialCost}

	lambda := initialLambda
	cost := initialCost
	reason := "converged"
	performed := 0

	for iter := 0; iter < iterCap; iter++ {
		r, J, err := jacobian(params)
		if err != nil {
			reason = fmt.Sprintf("evaluation failed: %v", err)
			break
		}
		cost = sumSquares(r) / 2

		step, ok := levenbergMarquardtStep(J, r, lambda)
		if !ok {
			reason = "singular Jacobian"
			break
		}

		trial := make([]float64, n)
		for i := range trial {
			trial[i] = params[i] + step.AtVec(i)
		}
		trialR, _, err := jacobian(trial)
		if err != nil {
			reason = fmt.Sprintf("trial evaluation failed: %v", err)
			break
		}
		trialCost := sumSquares(trialR) / 2

		if trialCost < cost {
			params = trial
			cost = trialCost
			lambda = math.Max(minLambda, lambda*lambdaDown)
			performed++
			history = append(history, cost)
			if opts.Report {
				log.Printf("fit: iteration %d accepted, cost=%g, lambda=%g", iter, cost, lambda)
			}
		} else {
			lambda = math.Min(maxLambda, lambda*lambdaUp)
			performed++
			if opts.Report {
				log.Printf("fit: iteration %d rejected, cost=%g, lambda=%g", iter, cost, lambda)
			}
			if lambda >= maxLambda {
				reason = "no progress"
				break
			}
		}
	}

	finalR, _, err := jacobian(params)
	finalCost := cost
	if err == nil {
		finalCost = sumSquares(finalR) / 2
	}

	if opts.WriteCoefficients {
		if err := tree.SetCoefficients(params); err != nil {
			reason = fmt.Sprintf("write-back failed: %v", err)
		}
	}

	return Summary{
		IterationsPerformed: performed,
		InitialCost:         initialCost,
		FinalCost:           finalCost,
		TerminationReason:   reason,
		History:             history,
	}, nil
}

// OptimizeAutodiff is Optimize with Mode forced to Autodiff.
func OptimizeAutodiff(tree *expr.Tree, ds *dataset.Dataset, target []float64, rng dataset.Range, iterations int, writeCoefficients, report bool) (Summary, error) {
	return Optimize(tree, ds, target, rng, Options{
		Iterations:        iterations,
		WriteCoefficients: writeCoefficients,
		Report:            report,
		Mode:              Autodiff,
	})
}

// OptimizeNumeric is Optimize with Mode forced to Numeric (finite differences).
func OptimizeNumeric(tree *expr.Tree, ds *dataset.Dataset, target []float64, rng dataset.Range, iterations int, writeCoefficients, report bool) (Summary, error) {
	return Optimize(tree, ds, target, rng, Options{
		Iterations:        iterations,
		WriteCoefficients: writeCoefficients,
		Report:            report,
		Mode:              Numeric,
	})
}

func sumSquares(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return s
}

func dualLiftConst(n int) func(float64) numeric.Dual {
	return func(v float64) numeric.Dual { return numeric.NewDual(v, n) }
}

func dualLiftParam(n int) func(float64, int) numeric.Dual {
	return func(v float64, idx int) numeric.Dual { return numeric.Seed(v, n, idx) }
}

// autodiffJacobian returns a cost-function closure producing both the
// residual vector and its Jacobian from a single forward-mode pass.
func autodiffJacobian(tree *expr.Tree, ds *dataset.Dataset, target []float64, rng dataset.Range, n, m int) func([]float64) ([]float64, *mat.Dense, error) {
	fn, err := residual.New[numeric.Dual](tree, ds, target, rng, dualLiftConst(n), dualLiftParam(n))
	ws := eval.NewWorkspace[numeric.Dual](tree.Len())
	out := make([]numeric.Dual, m)
	return func(p []float64) ([]float64, *mat.Dense, error) {
		if err != nil {
			return nil, nil, err
		}
		if evalErr := fn.Residuals(p, ws, out); evalErr != nil {
			return nil, nil, evalErr
		}
		r := make([]float64, m)
		J := mat.NewDense(m, n, nil)
		for i, d := range out {
			r[i] = d.Val
			for j := 0; j < n; j++ {
				var dv float64
				if j < len(d.Deriv) {
					dv = d.Deriv[j]
				}
				J.Set(i, j, dv)
			}
		}
		return r, J, nil
	}
}

// finiteDiffJacobian returns a cost-function closure computing the
// residual via plain float64 evaluation and the Jacobian via central
// differences, one perturbed evaluation per parameter.
func finiteDiffJacobian(tree *expr.Tree, ds *dataset.Dataset, target []float64, rng dataset.Range, n, m int) func([]float64) ([]float64, *mat.Dense, error) {
	const h = 1e-6
	liftConst := func(v float64) numeric.F64 { return numeric.F64(v) }
	liftParam := func(v float64, _ int) numeric.F64 { return numeric.F64(v) }
	fn, err := residual.New[numeric.F64](tree, ds, target, rng, liftConst, liftParam)
	ws := eval.NewWorkspace[numeric.F64](tree.Len())
	base := make([]numeric.F64, m)
	plus := make([]numeric.F64, m)
	minus := make([]numeric.F64, m)

	return func(p []float64) ([]float64, *mat.Dense, error) {
		if err != nil {
			return nil, nil, err
		}
		if evalErr := fn.Residuals(p, ws, base); evalErr != nil {
			return nil, nil, evalErr
		}
		r := make([]float64, m)
		for i, v := range base {
			r[i] = float64(v)
		}
		J := mat.NewDense(m, n, nil)
		perturbed := append([]float64(nil), p...)
		for j := 0; j < n; j++ {
			orig := perturbed[j]
			perturbed[j] = orig + h
			if evalErr := fn.Residuals(perturbed, ws, plus); evalErr != nil {
				return nil, nil, evalErr
			}
			perturbed[j] = orig - h
			if evalErr := fn.Residuals(perturbed, ws, minus); evalErr != nil {
				return nil, nil, evalErr
			}
			perturbed[j] = orig
			for i := 0; i < m; i++ {
				J.Set(i, j, (float64(plus[i])-float64(minus[i]))/(2*h))
			}
		}
		return r, J, nil
	}
}

// levenbergMarquardtStep solves the damped normal equations
// (JᵀJ + λ·diag(JᵀJ)) Δ = -Jᵀr for Δ via mat.VecDense.SolveVec, the
// classic Marquardt scaling of the damping term.
func levenbergMarquardtStep(J *mat.Dense, r []float64, lambda float64) (*mat.VecDense, bool) {
	_, n := J.Dims()

	var JtJ mat.Dense
	JtJ.Mul(J.T(), J)

	rVec := mat.NewVecDense(len(r), r)
	var Jtr mat.VecDense
	Jtr.MulVec(J.T(), rVec)

	A := mat.NewDense(n, n, nil)
	A.Copy(&JtJ)
	for i := 0; i < n; i++ {
		diag := JtJ.At(i, i)
		A.Set(i, i, diag+lambda*diag+lambda*1e-12)
	}

	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		b.SetVec(i, -Jtr.AtVec(i))
	}

	var step mat.VecDense
	if err := step.SolveVec(A, b); err != nil {
		return nil, false
	}
	return &step, true
}
