// Package report turns per-variant gas receipts into the comparison
// table printed on the console and written as CSV.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/weiihann/actorbench/harness"
)

// DefaultCSVPath is where the CSV report is written unless configured.
const DefaultCSVPath = "benchmark_results.csv"

// Generate renders table to w followed by a note on whether every
// variant ended with the same token state.
func Generate(w io.Writer, table Table, results []harness.Result) error {
	if len(table.Rows) == 0 {
		return errors.New("no results to report")
	}

	tw := tablewriter.NewWriter(w)
	tw.SetHeader(table.Header)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, r := range table.Records()[1:] {
		tw.Append(r)
	}

	tw.Render()

	fmt.Fprintln(w)

	if checkStateHeads(results) {
		fmt.Fprintln(w, "Final token state: all match")
	} else {
		fmt.Fprintln(w, "Final token state: MISMATCH")

		for _, r := range results {
			if r.Missing {
				continue
			}

			fmt.Fprintf(w, "  - %s: %s\n", r.Variant, r.StateHead)
		}
	}

	return nil
}

// GenerateJSON writes results as JSON to w.
func GenerateJSON(w io.Writer, results []harness.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(results)
}

// WriteCSV writes the records of table to w.
func WriteCSV(w io.Writer, table Table) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(table.Records()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	return nil
}

// WriteCSVFile creates or truncates path and writes table to it. Failures
// are harness.KindIO errors.
func WriteCSVFile(path string, table Table) error {
	f, err := os.Create(path)
	if err != nil {
		return &harness.Error{Kind: harness.KindIO, Op: "create " + path, Err: err}
	}

	if err := WriteCSV(f, table); err != nil {
		f.Close()
		return &harness.Error{Kind: harness.KindIO, Op: "write " + path, Err: err}
	}

	if err := f.Close(); err != nil {
		return &harness.Error{Kind: harness.KindIO, Op: "close " + path, Err: err}
	}

	return nil
}

// checkStateHeads reports whether all present results share a state head.
func checkStateHeads(results []harness.Result) bool {
	first := ""

	for _, r := range results {
		if r.Missing {
			continue
		}

		if first == "" {
			first = r.StateHead
			continue
		}

		if r.StateHead != first {
			return false
		}
	}

	return true
}
