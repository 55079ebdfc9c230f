package fitness

import (
	"context"
	"math"
	"testing"

	"symreg/internal/dataset"
	"symreg/internal/expr"
	"symreg/internal/fit"
)

type testIndividual struct {
	tree *expr.Tree
	rng  dataset.Range
}

func (i testIndividual) Tree() *expr.Tree      { return i.tree }
func (i testIndividual) Range() dataset.Range { return i.rng }

func buildIdentity(t *testing.T) *expr.Tree {
	t.Helper()
	tr, err := expr.Build(expr.NewVariable(1, 1))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return tr
}

func TestNMSEPerfectFitIsZero(t *testing.T) {
	ds, err := dataset.New(map[uint64][]float64{1: {1, 2, 3, 4}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	target := []float64{1, 2, 3, 4}
	ev := NewNMSE(ds, target, 0, false, fit.Autodiff)
	ind := testIndividual{tree: buildIdentity(t), rng: dataset.Range{Start: 0, Size: 4}}
	score, err := ev.Evaluate(ind.Range(), ind)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !(score < 1e-9) {
		t.Errorf("NMSE = %v, want ~0", score)
	}
	if ev.FitnessEvaluations() != 1 {
		t.Errorf("FitnessEvaluations() = %d, want 1", ev.FitnessEvaluations())
	}
}

func TestNMSEConstantTargetYieldsWorstScore(t *testing.T) {
	ds, err := dataset.New(map[uint64][]float64{1: {0, 0, 0, 0}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	target := []float64{5, 5, 5, 5} // zero variance
	ev := NewNMSE(ds, target, 0, false, fit.Autodiff)
	ind := testIndividual{tree: buildIdentity(t), rng: dataset.Range{Start: 0, Size: 4}}
	score, err := ev.Evaluate(ind.Range(), ind)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if score != math.MaxFloat64 {
		t.Errorf("NMSE = %v, want MaxFloat64 for zero-variance target", score)
	}
}

func TestOneMinusR2PerfectFitIsZero(t *testing.T) {
	ds, err := dataset.New(map[uint64][]float64{1: {1, 2, 3, 4, 5}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	target := []float64{2, 4, 6, 8, 10}
	tr, err := expr.Build(expr.NewVariable(1, 2))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ev := NewOneMinusR2(ds, target, 0, false, fit.Autodiff)
	ind := testIndividual{tree: tr, rng: dataset.Range{Start: 0, Size: 5}}
	score, err := ev.Evaluate(ind.Range(), ind)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !(score < 1e-9) {
		t.Errorf("1-R^2 = %v, want ~0", score)
	}
}

func TestEvaluatorOptimizesBeforeScoring(t *testing.T) {
	ds, err := dataset.New(map[uint64][]float64{1: {1, 2, 3, 4, 5}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	target := []float64{2, 4, 6, 8, 10}
	tr, err := expr.Build(expr.NewVariable(1, 1)) // starts at weight 1, needs 2
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	ev := NewNMSE(ds, target, 30, true, fit.Autodiff)
	ind := testIndividual{tree: tr, rng: dataset.Range{Start: 0, Size: 5}}
	score, err := ev.Evaluate(ind.Range(), ind)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if score > 1e-4 {
		t.Errorf("NMSE after optimization = %v, want near 0", score)
	}
	if ev.LocalEvaluations() == 0 {
		t.Error("LocalEvaluations() = 0, want > 0 after an optimizing evaluation")
	}
}

func TestEvaluateAgainstRangeIndependentOfIndividual(t *testing.T) {
	ds, err := dataset.New(map[uint64][]float64{1: {1, 2, 3, 4, 100}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	target := []float64{1, 2, 3, 4, 999}
	ev := NewNMSE(ds, target, 0, false, fit.Autodiff)
	// The individual's own range covers the whole dataset (including the
	// mismatched trailing row); scoring it against the first four rows
	// instead must ignore the mismatched tail entirely.
	ind := testIndividual{tree: buildIdentity(t), rng: dataset.Range{Start: 0, Size: 5}}
	score, err := ev.Evaluate(dataset.Range{Start: 0, Size: 4}, ind)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !(score < 1e-9) {
		t.Errorf("NMSE over held-out range = %v, want ~0", score)
	}
}

func TestEvaluatePopulationConcurrent(t *testing.T) {
	ds, err := dataset.New(map[uint64][]float64{1: {1, 2, 3, 4}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	target := []float64{1, 2, 3, 4}
	ev := NewNMSE(ds, target, 0, false, fit.Autodiff)
	pop := make([]Individual, 5)
	for i := range pop {
		pop[i] = testIndividual{tree: buildIdentity(t), rng: dataset.Range{Start: 0, Size: 4}}
	}
	scores, err := EvaluatePopulation(context.Background(), ev, pop, 2)
	if err != nil {
		t.Fatalf("EvaluatePopulation: %v", err)
	}
	for i, s := range scores {
		if s > 1e-9 {
			t.Errorf("scores[%d] = %v, want ~0", i, s)
		}
	}
	if ev.FitnessEvaluations() != uint64(len(pop)) {
		t.Errorf("FitnessEvaluations() = %d, want %d", ev.FitnessEvaluations(), len(pop))
	}
}
