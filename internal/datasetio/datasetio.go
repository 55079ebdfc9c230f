// Package datasetio is the ambient collaborator the core numeric package
// deliberately treats as external: CSV ingest, variable-hash bookkeeping,
// and convergence/summary reporting. None of it is on the evaluation hot
// path; it exists to get data into a dataset.Dataset and fit results out to
// a human.
package datasetio

import (
	"encoding/csv"
	"fmt"
	"hash/fnv"
	"image/color"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"symreg/internal/dataset"
	"symreg/internal/fit"
)

var plotLineColor = color.RGBA{R: 37, G: 150, B: 190, A: 255}

const (
	plotW = 6 * vg.Inch
	plotH = 4 * vg.Inch
)

// HashColumn maps a variable name to the 64-bit hash a Variable node's
// HashValue carries, using FNV-1a for a stable, dependency-free digest.
func HashColumn(name string) uint64 {
	h := fnv.New64a()
	_, _ = io.WriteString(h, name)
	return h.Sum64()
}

// LoadCSV reads a header-plus-rows numeric CSV from r and returns a
// Dataset whose columns are keyed by HashColumn(header name), plus the
// resolved name-to-hash mapping for building Variable nodes against it.
func LoadCSV(r io.Reader) (*dataset.Dataset, map[string]uint64, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("datasetio: reading header: %w", err)
	}

	columns := make([][]float64, len(header))
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("datasetio: reading row: %w", err)
		}
		if len(record) != len(header) {
			return nil, nil, fmt.Errorf("datasetio: row has %d fields, want %d", len(record), len(header))
		}
		for i, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("datasetio: column %q: %w", header[i], err)
			}
			columns[i] = append(columns[i], v)
		}
	}

	hashed := make(map[uint64][]float64, len(header))
	names := make(map[string]uint64, len(header))
	for i, name := range header {
		h := HashColumn(name)
		hashed[h] = columns[i]
		names[name] = h
	}

	ds, err := dataset.New(hashed)
	if err != nil {
		return nil, nil, err
	}
	return ds, names, nil
}

// WriteConvergencePlot renders a fit Summary's cost History as a line plot
// of cost versus iteration, saved as a PNG at path.
func WriteConvergencePlot(summary fit.Summary, path string) error {
	if len(summary.History) == 0 {
		return fmt.Errorf("datasetio: empty convergence history")
	}
	p := plot.New()
	p.Title.Text = "coefficient optimizer convergence"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "cost"

	pts := make(plotter.XYs, len(summary.History))
	for i, cost := range summary.History {
		pts[i].X = float64(i)
		pts[i].Y = cost
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("datasetio: building convergence line: %w", err)
	}
	line.Color = plotLineColor
	line.Width = vg.Points(1.5)
	p.Add(line, plotter.NewGrid())

	if err := p.Save(plotW, plotH, path); err != nil {
		return fmt.Errorf("datasetio: saving convergence plot: %w", err)
	}
	return nil
}

// WriteFitSummaryCSV writes one row per Summary (initial cost, final cost,
// iterations performed, termination reason) to path.
func WriteFitSummaryCSV(summaries []fit.Summary, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("datasetio: creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"initial_cost", "final_cost", "iterations", "termination_reason"}); err != nil {
		return err
	}
	for _, s := range summaries {
		row := []string{
			strconv.FormatFloat(s.InitialCost, 'g', -1, 64),
			strconv.FormatFloat(s.FinalCost, 'g', -1, 64),
			strconv.Itoa(s.IterationsPerformed),
			s.TerminationReason,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ColumnStats reports mean and variance for a named column, a thin wrapper
// over gonum/stat for sanity-checking a loaded dataset before fitting
// against it.
func ColumnStats(ds *dataset.Dataset, names map[string]uint64, name string) (mean, variance float64, err error) {
	hash, ok := names[name]
	if !ok {
		return 0, 0, fmt.Errorf("datasetio: unknown column %q", name)
	}
	idx, ok := ds.GetIndex(hash)
	if !ok {
		return 0, 0, fmt.Errorf("datasetio: column %q not present in dataset", name)
	}
	mean, variance = stat.MeanVariance(ds.Column(idx), nil)
	return mean, variance, nil
}
