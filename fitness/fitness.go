// Package fitness provides thin evaluators over the numeric core: each
// variant optionally drives the coefficient optimizer, evaluates the final
// prediction, and reduces it against a target to a scalar fitness score.
package fitness

import (
	"context"
	"math"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"gonum.org/v1/gonum/stat"

	"symreg/internal/dataset"
	"symreg/internal/eval"
	"symreg/internal/expr"
	"symreg/internal/fit"
)

// Individual is the minimal shape an outer evolutionary loop's candidate
// must expose to be scored: its expression tree and the row range of the
// dataset it is evaluated against.
type Individual interface {
	Tree() *expr.Tree
	Range() dataset.Range
}

// Evaluator scores a population of Individuals. Prepare is a stateless hook
// in this release, present so a future evaluator with population-level
// bookkeeping (e.g. diversity-aware fitness) has somewhere to put it.
// Evaluate takes rng independently of ind so a caller can score the same
// individual against a range other than the one it was constructed with —
// a held-out validation range, say — without mutating the individual.
type Evaluator interface {
	Prepare(population []Individual) error
	Evaluate(rng dataset.Range, ind Individual) (float64, error)
	FitnessEvaluations() uint64
	LocalEvaluations() uint64
}

type base struct {
	ds                 *dataset.Dataset
	target             []float64
	iterations         int
	optimize           bool
	mode               fit.Mode
	fitnessEvaluations uint64
	localEvaluations   uint64
}

func newBase(ds *dataset.Dataset, target []float64, iterations int, optimize bool, mode fit.Mode) base {
	return base{ds: ds, target: target, iterations: iterations, optimize: optimize, mode: mode}
}

// Prepare warms the pooled float64 workspace for every distinct tree size in
// population, bounded to GOMAXPROCS concurrent warm-ups via errgroup, the
// same pattern EvaluatePopulation uses for per-individual scoring. There is
// no other population-level state in this release, so this is the entire
// hook; a future stateful evaluator (e.g. diversity-aware fitness) extends
// it rather than replacing it.
func (b *base) Prepare(population []Individual) error {
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, ind := range population {
		ind := ind
		g.Go(func() error {
			ws := eval.GetF64Workspace(ind.Tree().Len())
			eval.PutF64Workspace(ws)
			return nil
		})
	}
	return g.Wait()
}

func (b *base) FitnessEvaluations() uint64 { return atomic.LoadUint64(&b.fitnessEvaluations) }
func (b *base) LocalEvaluations() uint64   { return atomic.LoadUint64(&b.localEvaluations) }

func (b *base) predict(rng dataset.Range, ind Individual) ([]float64, error) {
	tree := ind.Tree()
	target := b.target[rng.Start : rng.Start+rng.Size]

	atomic.AddUint64(&b.fitnessEvaluations, 1)

	if b.optimize && len(tree.GetCoefficients()) > 0 {
		summary, err := fit.Optimize(tree, b.ds, target, rng, fit.Options{
			Iterations:        b.iterations,
			WriteCoefficients: true,
			Mode:              b.mode,
		})
		if err != nil {
			return nil, err
		}
		atomic.AddUint64(&b.localEvaluations, uint64(summary.IterationsPerformed))
	}

	out, err := eval.EvaluateFloat64(tree, b.ds, rng, nil)
	if err != nil {
		return nil, err
	}
	pred := make([]float64, len(out))
	for i, v := range out {
		pred[i] = float64(v)
	}
	return pred, nil
}

// NMSE is the normalized-mean-squared-error evaluator: lower is better, 0
// is a perfect fit.
type NMSE struct {
	base
}

// NewNMSE builds an NMSE evaluator. iterations is the per-individual
// coefficient-optimizer step budget; set optimize=false to skip fitting and
// score the tree's literal coefficients as-is.
func NewNMSE(ds *dataset.Dataset, target []float64, iterations int, optimize bool, mode fit.Mode) *NMSE {
	return &NMSE{base: newBase(ds, target, iterations, optimize, mode)}
}

func (e *NMSE) Evaluate(rng dataset.Range, ind Individual) (float64, error) {
	pred, err := e.predict(rng, ind)
	if err != nil {
		return math.MaxFloat64, err
	}
	target := e.target[rng.Start : rng.Start+rng.Size]
	score := normalizedMeanSquaredError(pred, target)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return math.MaxFloat64, nil
	}
	return score, nil
}

func normalizedMeanSquaredError(pred, target []float64) float64 {
	_, variance := stat.MeanVariance(target, nil)
	if variance == 0 {
		return math.MaxFloat64
	}
	var se float64
	for i := range pred {
		d := pred[i] - target[i]
		se += d * d
	}
	mse := se / float64(len(pred))
	return mse / variance
}

// OneMinusR2 is the 1-R² evaluator: lower is better, 0 is a perfect fit.
type OneMinusR2 struct {
	base
}

// NewOneMinusR2 builds a 1-R² evaluator.
func NewOneMinusR2(ds *dataset.Dataset, target []float64, iterations int, optimize bool, mode fit.Mode) *OneMinusR2 {
	return &OneMinusR2{base: newBase(ds, target, iterations, optimize, mode)}
}

func (e *OneMinusR2) Evaluate(rng dataset.Range, ind Individual) (float64, error) {
	pred, err := e.predict(rng, ind)
	if err != nil {
		return 1, err
	}
	target := e.target[rng.Start : rng.Start+rng.Size]
	r := stat.Correlation(pred, target, nil)
	r2 := r * r
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}
	r2 = clamp(r2, 0, 1)
	return 1 - r2, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// EvaluatePopulation scores every individual in population concurrently,
// bounded to nprocs simultaneous evaluations, matching the outer
// evolutionary loop's expectation that it — not the core — owns
// parallelism across independent individuals.
func EvaluatePopulation(ctx context.Context, e Evaluator, population []Individual, nprocs int) ([]float64, error) {
	scores := make([]float64, len(population))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(nprocs)
	for i, ind := range population {
		i, ind := i, ind
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			score, err := e.Evaluate(ind.Range(), ind)
			if err != nil {
				return err
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}
