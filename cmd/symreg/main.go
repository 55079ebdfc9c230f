/*
symreg fits a symbolic expression tree's numeric coefficients against a CSV
dataset using a trust-region Levenberg-Marquardt solver, reporting the
fitted coefficients, convergence summary, and final fitness score.

# MIT License

# Copyright (c) 2026 James Willson

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.

usage: symreg [flags]... <dataset_csv> <expr_file>

positional arguments:

	<dataset_csv>	CSV file, header row of column names
	<expr_file>		tree in exprio text format

flags:

	-target target
	  	name of the target column
	-i int
	  	iteration cap for the coefficient optimizer (default 50)
	-mode mode
	  	jacobian mode [autodiff|numeric] (default "autodiff")
	-metric metric
	  	fitness metric [nmse|r2] (default "nmse")
	-o string
	  	output prefix
	-v	prints version number and exits

examples:

	symreg -target y -o run1 data.csv tree.txt
*/
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"symreg/fitness"
	"symreg/internal/dataset"
	"symreg/internal/datasetio"
	"symreg/internal/expr"
	"symreg/internal/exprio"
	"symreg/internal/fit"
)

const (
	Version      = "v0.1.0"
	ErrorMessage = "symreg encountered an error ::"
	TimeFormat   = "2006-01-02_15-04-05"

	DefaultIterations = 50
	DefaultMode       = "autodiff"
	DefaultMetric     = "nmse"
)

// Args holds a fully parsed, validated invocation.
type Args struct {
	prefix     string
	datasetCSV string
	exprFile   string
	target     string
	iterations int
	mode       fit.Mode
	metric     string
}

func Usage() {
	fmt.Fprint(flag.CommandLine.Output(), // nolint
		"usage: symreg [flags]... <dataset_csv> <expr_file>\n",
		"\n",
		"positional arguments:\n\n",
		"  <dataset_csv>\tCSV file, header row of column names\n",
		"  <expr_file>\ttree in exprio text format\n",
		"\n",
		"flags:\n\n",
	)
	flag.PrintDefaults()
	fmt.Fprint(flag.CommandLine.Output(), // nolint
		"\n",
		"examples:\n\n",
		"\tsymreg -target y -o run1 data.csv tree.txt\n\n",
	)
}

func parseArgs() Args {
	flag.Usage = Usage
	prefix := flag.String("o", "", "output prefix")
	target := flag.String("target", "", "name of the `target` column")
	iterations := flag.Int("i", DefaultIterations, "iteration cap for the coefficient optimizer")
	mode := flag.String("mode", DefaultMode, "jacobian `mode` [autodiff|numeric]")
	metric := flag.String("metric", DefaultMetric, "fitness `metric` [nmse|r2]")
	ver := flag.Bool("v", false, "prints version number and exits")
	flag.Parse()
	if *ver {
		fmt.Printf("symreg %s\n", Version)
		os.Exit(0)
	}
	if flag.NArg() != 2 {
		parserError("two positional arguments required: <dataset_csv> <expr_file>")
	}
	if *target == "" {
		parserError("-target is required")
	}

	var fitMode fit.Mode
	switch *mode {
	case "autodiff":
		fitMode = fit.Autodiff
	case "numeric":
		fitMode = fit.Numeric
	default:
		parserError(fmt.Sprintf("%q is not a valid mode: valid modes are \"autodiff\" and \"numeric\"", *mode))
	}
	if *metric != "nmse" && *metric != "r2" {
		parserError(fmt.Sprintf("%q is not a valid metric: valid metrics are \"nmse\" and \"r2\"", *metric))
	}

	return Args{
		prefix:     *prefix,
		datasetCSV: flag.Arg(0),
		exprFile:   flag.Arg(1),
		target:     *target,
		iterations: *iterations,
		mode:       fitMode,
		metric:     *metric,
	}
}

func parserError(message string) {
	fmt.Fprintln(os.Stderr, message+"\n")
	Usage()
	os.Exit(1)
}

func defaultPrefix(args Args) string {
	parseName := func(s string) string {
		parts := strings.Split(s, string(os.PathSeparator))
		parts = strings.Split(parts[len(parts)-1], ".")
		if len(parts) > 1 {
			return strings.Join(parts[:len(parts)-1], ".")
		}
		return parts[0]
	}
	inputs := fmt.Sprintf("%s_%s", parseName(args.datasetCSV), parseName(args.exprFile))
	return fmt.Sprintf("symreg_%s_%s", inputs, time.Now().Local().Format(TimeFormat))
}

func main() {
	var exit int
	defer func() {
		os.Exit(exit)
	}()
	buf := &bytes.Buffer{} // capture pre-logfile-setup logging
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(io.MultiWriter(os.Stderr, buf))
	args := parseArgs()
	if args.prefix == "" {
		args.prefix = defaultPrefix(args)
		log.Printf("output prefix was not set, using %q", args.prefix)
	}
	if logf, err := os.Create(fmt.Sprintf("%s.log", args.prefix)); err == nil {
		logf.Write(buf.Bytes()) // nolint
		log.SetOutput(io.MultiWriter(os.Stderr, logf))
		defer func() {
			log.SetOutput(os.Stderr)
			_ = logf.Close()
		}()
	} else {
		log.Printf("failed to create log file %s.log, %s", args.prefix, err)
	}
	log.Printf("symreg %s", Version)
	log.Printf("invoked as: symreg %s", strings.Join(os.Args[1:], " "))
	if err := run(args); err != nil {
		log.Printf("%s %s", ErrorMessage, err)
		exit = 1
	}
}

func run(args Args) error {
	f, err := os.Open(args.datasetCSV)
	if err != nil {
		return err
	}
	defer f.Close()

	ds, names, err := datasetio.LoadCSV(f)
	if err != nil {
		return err
	}

	targetHash, ok := names[args.target]
	if !ok {
		return fmt.Errorf("target column %q not found in %s", args.target, args.datasetCSV)
	}
	targetIdx, ok := ds.GetIndex(targetHash)
	if !ok {
		return fmt.Errorf("target column %q not indexed", args.target)
	}
	target := ds.Column(targetIdx)

	exprSrc, err := os.ReadFile(args.exprFile)
	if err != nil {
		return err
	}
	tree, err := exprio.Parse(strings.TrimSpace(string(exprSrc)))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", args.exprFile, err)
	}

	rng := rangeOf(ds.Rows())
	summary, err := fit.Optimize(tree, ds, target, rng, fit.Options{
		Iterations:        args.iterations,
		WriteCoefficients: true,
		Report:            true,
		Mode:              args.mode,
	})
	if err != nil {
		return err
	}
	log.Printf("fit: %d iterations, initial cost %g, final cost %g, %s",
		summary.IterationsPerformed, summary.InitialCost, summary.FinalCost, summary.TerminationReason)

	if len(summary.History) > 1 {
		plotPath := fmt.Sprintf("%s_convergence.png", args.prefix)
		if err := datasetio.WriteConvergencePlot(summary, plotPath); err != nil {
			log.Printf("failed to write convergence plot: %s", err)
		}
	}

	ind := fittedIndividual{tree: tree, rng: rng}
	var score float64
	switch args.metric {
	case "r2":
		ev := fitness.NewOneMinusR2(ds, target, args.iterations, false, args.mode)
		score, err = ev.Evaluate(rng, ind)
	default:
		ev := fitness.NewNMSE(ds, target, args.iterations, false, args.mode)
		score, err = ev.Evaluate(rng, ind)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s\n%s=%g\n", exprio.Format(tree), args.metric, score)

	summaryPath := fmt.Sprintf("%s_summary.csv", args.prefix)
	if err := datasetio.WriteFitSummaryCSV([]fit.Summary{summary}, summaryPath); err != nil {
		log.Printf("error writing %s, %s", summaryPath, err)
	}
	return nil
}

func rangeOf(rows int) dataset.Range {
	return dataset.Range{Start: 0, Size: rows}
}

type fittedIndividual struct {
	tree *expr.Tree
	rng  dataset.Range
}

func (i fittedIndividual) Tree() *expr.Tree     { return i.tree }
func (i fittedIndividual) Range() dataset.Range { return i.rng }
