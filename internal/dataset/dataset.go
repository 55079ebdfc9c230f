// Package dataset implements the column-major numeric view the batched
// interpreter reads from: a variable-hash-to-column lookup over an
// immutable slab of float64 columns, with O(1) sub-range segment access.
// Parsing the columns from CSV or any other external source is out of
// scope here; datasetio builds a Dataset, this package only serves it.
package dataset

import "fmt"

// Range is a half-open row interval [Start, Start+Size) into a Dataset.
type Range struct {
	Start int
	Size  int
}

// End returns the exclusive upper bound of the range.
func (r Range) End() int { return r.Start + r.Size }

// Dataset is an immutable column-major numeric matrix. Columns are
// addressed by a 64-bit variable hash rather than a dense index, so callers
// never need to know column order, only the hash a Variable node carries.
type Dataset struct {
	columns []([]float64)
	index   map[uint64]int
	rows    int
}

// New builds a Dataset from a set of hash-keyed columns. All columns must
// have equal length; that length becomes the Dataset's row count.
func New(columns map[uint64][]float64) (*Dataset, error) {
	d := &Dataset{
		columns: make([][]float64, 0, len(columns)),
		index:   make(map[uint64]int, len(columns)),
	}
	first := true
	for hash, col := range columns {
		if first {
			d.rows = len(col)
			first = false
		} else if len(col) != d.rows {
			return nil, fmt.Errorf("dataset: column %d has %d rows, want %d", hash, len(col), d.rows)
		}
		d.index[hash] = len(d.columns)
		d.columns = append(d.columns, col)
	}
	return d, nil
}

// Rows reports the number of rows every column holds.
func (d *Dataset) Rows() int { return d.rows }

// GetIndex resolves a variable hash to its column index. It is a total
// function for known variables; callers are expected to have validated the
// hash against the dataset before evaluation (an unknown hash is a
// programming error, per the core's failure-semantics contract).
func (d *Dataset) GetIndex(hash uint64) (int, bool) {
	idx, ok := d.index[hash]
	return idx, ok
}

// Column returns the full backing slice for column index k. Callers should
// treat it as read-only.
func (d *Dataset) Column(k int) []float64 {
	return d.columns[k]
}

// Segment returns a contiguous view of n scalars from column k starting at
// offset: dataset.Values().col(k).segment(offset, n) in the language-neutral
// contract. The returned slice aliases the backing column; it must not be
// mutated or retained past the Dataset's lifetime.
func (d *Dataset) Segment(k, offset, n int) []float64 {
	return d.columns[k][offset : offset+n]
}
