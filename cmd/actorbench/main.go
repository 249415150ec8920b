// Package main provides the CLI entry point for actorbench, a gas
// benchmarking tool for functionally equivalent WASM token actors.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/weiihann/actorbench/config"
	"github.com/weiihann/actorbench/harness"
	"github.com/weiihann/actorbench/report"
	"github.com/weiihann/actorbench/token"
	"github.com/weiihann/actorbench/workload"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	root := newRootCmd(logger, level)
	if err := root.Execute(); err != nil {
		logger.Error("actorbench failed",
			slog.String("error", err.Error()),
			slog.String("kind", harness.KindOf(err).String()),
		)
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "actorbench",
		Short: "Gas benchmarking for WASM token actors",
		Long: `Actorbench installs each variant of a token actor into a fresh sandboxed
chain state, replays the same deterministic call sequence against it and
compares the gas of every call and the binary size against the cheapest
variant.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if verbose {
				level.Set(slog.LevelDebug)
			}
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Log every call receipt")

	root.AddCommand(newRunCmd(logger), newSmokeCmd(logger))

	return root
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var (
		configPath string
		variants   []string
		output     string
		exitCodes  string
		onFailure  string
		parallel   bool
		outputJSON bool
		dumpCalls  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compare gas usage across actor variants",
		Long: `Run the call plan against every configured variant and write the
comparison table to the console and to a CSV file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()

			if configPath != "" {
				var err error

				cfg, err = config.Load(configPath)
				if err != nil {
					return err
				}
			}

			flags := cmd.Flags()

			if flags.Changed("variant") {
				parsed, err := parseVariants(variants)
				if err != nil {
					return err
				}

				cfg.Variants = parsed
			}

			if flags.Changed("output") {
				cfg.Output = output
			}

			if flags.Changed("exit-codes") {
				cfg.ExitCodes = exitCodes
			}

			if flags.Changed("on-failure") {
				cfg.OnFailure = onFailure
			}

			if flags.Changed("parallel") {
				cfg.Parallel = parallel
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			return runBenchmark(cmd.Context(), logger, runConfig{
				cfg:        cfg,
				outputJSON: outputJSON,
				dumpCalls:  dumpCalls,
				stdout:     cmd.OutOrStdout(),
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "",
		"Path to a YAML configuration file")
	flags.StringArrayVar(&variants, "variant", nil,
		"Variant as label=path (repeatable, replaces configured variants)")
	flags.StringVar(&output, "output", report.DefaultCSVPath,
		"CSV report path (overwritten)")
	flags.StringVar(&exitCodes, "exit-codes", string(harness.ExitCodesInclude),
		"Failed call policy: include, exclude, abort")
	flags.StringVar(&onFailure, "on-failure", string(harness.FailAbort),
		"Failed variant policy: abort, skip, missing")
	flags.BoolVar(&parallel, "parallel", false,
		"Run variants concurrently")
	flags.BoolVar(&outputJSON, "json", false,
		"Output results as JSON instead of a table")
	flags.StringVar(&dumpCalls, "dump-calls", "",
		"Write the call sequence as JSONL to this path")

	return cmd
}

func parseVariants(specs []string) ([]harness.Variant, error) {
	out := make([]harness.Variant, 0, len(specs))

	for _, s := range specs {
		v, err := harness.ParseVariant(s)
		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}

type runConfig struct {
	cfg        config.Config
	outputJSON bool
	dumpCalls  string
	stdout     io.Writer
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	rc runConfig,
) error {
	cfg := rc.cfg

	suite, err := cfg.Suite()
	if err != nil {
		return err
	}

	labels := make([]string, len(cfg.Variants))
	for i, v := range cfg.Variants {
		labels[i] = v.Label
	}

	logger.InfoContext(ctx, "starting benchmark",
		slog.Any("variants", labels),
		slog.Int("calls", len(cfg.Plan.Calls)),
		slog.String("exit_codes", string(suite.ExitCodes)),
		slog.String("on_failure", string(suite.OnFailure)),
		slog.Bool("parallel", suite.Parallel),
	)

	// Step 1: Run every variant.
	results, err := harness.RunSuite(ctx, logger, suite)
	if err != nil {
		return err
	}

	// Step 2: Dump the call sequence if requested.
	if rc.dumpCalls != "" {
		if err := dumpCallSequence(ctx, logger, rc.dumpCalls, results); err != nil {
			return err
		}
	}

	// Step 3: Aggregate.
	table, err := report.Aggregate(cfg.Plan.Labels(), results)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}

	// Step 4: Write the CSV. Nothing is printed when it cannot be written.
	if err := report.WriteCSVFile(cfg.Output, table); err != nil {
		return err
	}

	// Step 5: Report.
	if rc.outputJSON {
		if err := report.GenerateJSON(rc.stdout, results); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}
	} else {
		if err := report.Generate(rc.stdout, table, results); err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
	}

	logger.InfoContext(ctx, "benchmark complete",
		slog.String("csv", cfg.Output),
		slog.Int("rows", len(table.Rows)),
	)

	return nil
}

func dumpCallSequence(
	ctx context.Context,
	logger *slog.Logger,
	path string,
	results []harness.Result,
) error {
	var calls []workload.Call

	for _, r := range results {
		if !r.Missing {
			calls = r.Calls
			break
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return &harness.Error{Kind: harness.KindIO, Op: "create " + path, Err: err}
	}

	summary, err := workload.WriteJSONL(f, calls)
	if err != nil {
		f.Close()
		return &harness.Error{Kind: harness.KindIO, Op: "write " + path, Err: err}
	}

	if err := f.Close(); err != nil {
		return &harness.Error{Kind: harness.KindIO, Op: "close " + path, Err: err}
	}

	logger.InfoContext(ctx, "call sequence written",
		slog.String("path", path),
		slog.Int("calls", summary.TotalCalls),
		slog.Int("senders", summary.Senders),
	)

	return nil
}

func newSmokeCmd(logger *slog.Logger) *cobra.Command {
	var binary string

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Check that a single actor binary deploys and answers",
		Long: `Deploy one binary with a single unfunded account, print the persisted
token state and call GetName and GetSymbol, failing on a non-zero exit code.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSmoke(cmd.Context(), logger, cmd.OutOrStdout(),
				harness.Variant{Label: "smoke", Path: binary})
		},
	}

	cmd.Flags().StringVar(&binary, "binary", "",
		"Path to the actor WASM binary")
	_ = cmd.MarkFlagRequired("binary")

	return cmd
}

func runSmoke(
	ctx context.Context,
	logger *slog.Logger,
	w io.Writer,
	variant harness.Variant,
) error {
	path, err := harness.ResolveBinary(variant)
	if err != nil {
		return &harness.Error{Kind: harness.KindIO, Variant: variant.Label, Op: "stat binary", Err: err}
	}

	bin, err := os.ReadFile(path)
	if err != nil {
		return &harness.Error{Kind: harness.KindIO, Variant: variant.Label, Op: "read binary", Err: err}
	}

	env, err := harness.NewSandboxEnvironment()
	if err != nil {
		return &harness.Error{Kind: harness.KindEngine, Variant: variant.Label, Op: "create environment", Err: err}
	}

	plan := workload.SmokePlan()

	dep, err := harness.Bootstrap(ctx, env, variant.Label, bin, plan)
	if err != nil {
		return err
	}
	defer dep.Executor.Close(ctx)

	state, err := env.ReadObject(dep.StateCID)
	if err != nil {
		return &harness.Error{Kind: harness.KindEngine, Variant: variant.Label, Op: "read state", Err: err}
	}

	fmt.Fprintf(w, "Cbor hex state : %s\n", hex.EncodeToString(state))

	calls, err := workload.NewGenerator(plan).Generate(dep.Accounts, dep.Actor)
	if err != nil {
		return &harness.Error{Kind: harness.KindSerialization, Variant: variant.Label, Op: "generate calls", Err: err}
	}

	driver := &harness.Driver{
		Executor: dep.Executor,
		Policy:   harness.ExitCodesAbort,
		Variant:  variant.Label,
		Logger:   logger.With(slog.String("variant", variant.Label)),
	}

	receipts, err := driver.Run(ctx, calls)
	if err != nil {
		return err
	}

	for i, r := range receipts {
		fmt.Fprintf(w, "%s: exit %d, gas %d, return %x\n",
			token.MethodName(calls[i].Method), r.ExitCode, r.GasUsed, r.Return)
	}

	logger.InfoContext(ctx, "smoke test passed", slog.String("binary", path))

	return nil
}
