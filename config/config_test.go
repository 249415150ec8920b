package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weiihann/actorbench/harness"
	"github.com/weiihann/actorbench/token"
	"github.com/weiihann/actorbench/workload"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Len(t, cfg.Variants, 4)
	require.Equal(t, "benchmark_results.csv", cfg.Output)
	require.Len(t, cfg.Plan.Calls, 6)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bench.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
variants:
  - label: Rust actor
    path: ./temp/rust-erc20-actor.wasm
  - label: Go actor
    path: ./temp/go-erc20-actor.wasm
output: out/results.csv
exit_codes: exclude
parallel: true
plan:
  gas_limit: 5000000
  calls:
    - label: GetName
      sender: 0
      method: 2
    - label: Transfer
      sender: 1
      method: 7
      args:
        - account: 0
        - uint: 42
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, []harness.Variant{
		{Label: "Rust actor", Path: "./temp/rust-erc20-actor.wasm"},
		{Label: "Go actor", Path: "./temp/go-erc20-actor.wasm"},
	}, cfg.Variants)
	require.Equal(t, "out/results.csv", cfg.Output)
	require.Equal(t, "exclude", cfg.ExitCodes)
	require.Equal(t, "abort", cfg.OnFailure)
	require.True(t, cfg.Parallel)

	// Unset plan keys keep their defaults.
	require.Equal(t, 3, cfg.Plan.Accounts)
	require.Equal(t, "ZondaxCoin", cfg.Plan.Token.Name)
	require.Equal(t, int64(5_000_000), cfg.Plan.GasLimit)

	require.Len(t, cfg.Plan.Calls, 2)
	transfer := cfg.Plan.Calls[1]
	require.Equal(t, token.MethodTransfer, transfer.Method)
	require.Equal(t, []workload.Arg{workload.AccountArg(0), workload.UintArg(42)}, transfer.Args)

	suite, err := cfg.Suite()
	require.NoError(t, err)
	require.Equal(t, harness.ExitCodesExclude, suite.ExitCodes)
	require.Equal(t, harness.FailAbort, suite.OnFailure)
	require.True(t, suite.Parallel)
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("varients: []\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "no variants",
			mutate:  func(c *Config) { c.Variants = nil },
			wantErr: "no variants",
		},
		{
			name: "duplicate label",
			mutate: func(c *Config) {
				c.Variants = append(c.Variants, harness.Variant{Label: "Go actor", Path: "x.wasm"})
			},
			wantErr: "duplicate variant label",
		},
		{
			name:    "empty path",
			mutate:  func(c *Config) { c.Variants[0].Path = "" },
			wantErr: "empty path",
		},
		{
			name:    "bad sender",
			mutate:  func(c *Config) { c.Plan.Calls[0].Sender = 9 },
			wantErr: "sender index 9",
		},
		{
			name:    "negative gas",
			mutate:  func(c *Config) { c.Plan.GasLimit = -1 },
			wantErr: "gas limit",
		},
		{
			name:    "unknown exit code policy",
			mutate:  func(c *Config) { c.ExitCodes = "ignore" },
			wantErr: "exit code policy",
		},
		{
			name:    "unknown failure policy",
			mutate:  func(c *Config) { c.OnFailure = "retry" },
			wantErr: "failure policy",
		},
		{
			name:    "empty output",
			mutate:  func(c *Config) { c.Output = "" },
			wantErr: "output",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}
