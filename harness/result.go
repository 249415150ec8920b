// Package harness installs each token actor variant into a fresh sandbox,
// replays the call sequence against it and collects gas receipts.
package harness

import (
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/weiihann/actorbench/workload"
)

// Receipt is the outcome of one call.
type Receipt struct {
	Label       string `json:"label"`
	Method      uint64 `json:"method"`
	Nonce       uint64 `json:"nonce"`
	ExitCode    int64  `json:"exit_code"`
	GasUsed     int64  `json:"gas_used"`
	Return      []byte `json:"return,omitempty"`
	FailureInfo string `json:"failure_info,omitempty"`
	// Excluded is set for failed calls under ExitCodesExclude.
	Excluded bool `json:"excluded,omitempty"`
}

// Succeeded reports whether the call exited with code 0.
func (r Receipt) Succeeded() bool {
	return r.ExitCode == int64(exitcode.Ok)
}

// Result holds everything measured for one variant.
type Result struct {
	Variant    string    `json:"variant"`
	Path       string    `json:"path"`
	BinarySize int64     `json:"binary_size"`
	StateHead  string    `json:"state_head,omitempty"`
	Receipts   []Receipt `json:"receipts,omitempty"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	// Missing is set for variants that failed under FailMissing.
	Missing bool   `json:"missing,omitempty"`
	Error   string `json:"error,omitempty"`

	Calls []workload.Call `json:"-"`
}
