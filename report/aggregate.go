package report

import (
	"errors"
	"fmt"
	"math"

	"github.com/weiihann/actorbench/harness"
)

// Header cells that frame the per-call columns.
const (
	VariantHeader = "ACTOR FILE"
	SizeHeader    = "FILE SIZE"
)

// Placeholder is the cell of a variant that produced no results.
const Placeholder = "-"

// Row is one variant's line of the comparison table.
type Row struct {
	Label string
	// Cells holds one cell per call followed by the size cell.
	Cells []string
}

// Table is the comparison of every variant against the cheapest one.
type Table struct {
	Header []string
	Rows   []Row
}

// Records returns the header and rows as string records.
func (t Table) Records() [][]string {
	records := make([][]string, 0, len(t.Rows)+1)
	records = append(records, t.Header)

	for _, r := range t.Rows {
		rec := make([]string, 0, len(r.Cells)+1)
		rec = append(rec, r.Label)
		rec = append(rec, r.Cells...)
		records = append(records, rec)
	}

	return records
}

// Percentage is how much a exceeds m, in percent of m, truncated toward
// zero. It is 0 when m is not positive.
func Percentage(a, m int64) int64 {
	if m <= 0 {
		return 0
	}

	return int64((float64(a) - float64(m)) / float64(m) * 100)
}

// Cell formats a value relative to the column minimum.
func Cell(v, m int64) string {
	return fmt.Sprintf("%d (+%d%%)", v, Percentage(v, m))
}

// Aggregate builds the comparison table for the calls named by labels.
// Missing results keep a row of placeholders and are left out of every
// minimum, as are receipts excluded by the exit-code policy.
func Aggregate(labels []string, results []harness.Result) (Table, error) {
	if len(results) == 0 {
		return Table{}, errors.New("no results to report")
	}

	header := make([]string, 0, len(labels)+2)
	header = append(header, VariantHeader)
	for _, l := range labels {
		header = append(header, l+" (gas)")
	}
	header = append(header, SizeHeader)

	for _, r := range results {
		if !r.Missing && len(r.Receipts) != len(labels) {
			return Table{}, fmt.Errorf("%s: %d receipts for %d calls",
				r.Variant, len(r.Receipts), len(labels))
		}
	}

	minGas := make([]int64, len(labels))
	for i := range labels {
		minGas[i] = columnMin(results, func(r harness.Result) (int64, bool) {
			rc := r.Receipts[i]
			return rc.GasUsed, !rc.Excluded
		})
	}

	minSize := columnMin(results, func(r harness.Result) (int64, bool) {
		return r.BinarySize, true
	})

	rows := make([]Row, 0, len(results))

	for _, r := range results {
		cells := make([]string, 0, len(labels)+1)

		if r.Missing {
			for range len(labels) + 1 {
				cells = append(cells, Placeholder)
			}

			rows = append(rows, Row{Label: r.Variant, Cells: cells})

			continue
		}

		for i, rc := range r.Receipts {
			if rc.Excluded {
				cells = append(cells, fmt.Sprintf("failed (exit %d)", rc.ExitCode))
				continue
			}

			cells = append(cells, Cell(rc.GasUsed, minGas[i]))
		}

		cells = append(cells, Cell(r.BinarySize, minSize))
		rows = append(rows, Row{Label: r.Variant, Cells: cells})
	}

	return Table{Header: header, Rows: rows}, nil
}

// columnMin returns the smallest value over present results. It is 0
// when no result contributes.
func columnMin(results []harness.Result, value func(harness.Result) (int64, bool)) int64 {
	m := int64(math.MaxInt64)

	for _, r := range results {
		if r.Missing {
			continue
		}

		if v, ok := value(r); ok && v < m {
			m = v
		}
	}

	if m == math.MaxInt64 {
		return 0
	}

	return m
}
