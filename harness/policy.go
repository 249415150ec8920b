package harness

import "fmt"

// ExitCodePolicy decides what a call with a non-success exit code means
// for the variant's results.
type ExitCodePolicy string

const (
	// ExitCodesInclude keeps the gas of failed calls and logs a warning.
	ExitCodesInclude ExitCodePolicy = "include"
	// ExitCodesExclude marks failed calls so they are left out of the
	// comparison.
	ExitCodesExclude ExitCodePolicy = "exclude"
	// ExitCodesAbort fails the variant on the first failed call.
	ExitCodesAbort ExitCodePolicy = "abort"
)

// ParseExitCodePolicy parses an exit-code policy name. Empty means
// ExitCodesInclude.
func ParseExitCodePolicy(s string) (ExitCodePolicy, error) {
	switch p := ExitCodePolicy(s); p {
	case "":
		return ExitCodesInclude, nil
	case ExitCodesInclude, ExitCodesExclude, ExitCodesAbort:
		return p, nil
	default:
		return "", fmt.Errorf("unknown exit code policy %q (want include, exclude or abort)", s)
	}
}

// FailurePolicy decides what a failed variant means for the run.
type FailurePolicy string

const (
	// FailAbort stops the run at the first failed variant.
	FailAbort FailurePolicy = "abort"
	// FailSkip leaves failed variants out of the report.
	FailSkip FailurePolicy = "skip"
	// FailMissing keeps a row for failed variants with no values.
	FailMissing FailurePolicy = "missing"
)

// ParseFailurePolicy parses a failure policy name. Empty means FailAbort.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(s); p {
	case "":
		return FailAbort, nil
	case FailAbort, FailSkip, FailMissing:
		return p, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want abort, skip or missing)", s)
	}
}
