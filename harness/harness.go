package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dsnet/golib/unitconv"
	"github.com/weiihann/actorbench/workload"
)

// RunConfig holds parameters for a single variant run.
type RunConfig struct {
	Plan      workload.Plan
	ExitCodes ExitCodePolicy
}

// Runner benchmarks a single variant in its own environment.
type Runner struct {
	Variant Variant
	NewEnv  EnvironmentFactory
	Logger  *slog.Logger
}

// NewRunner creates a Runner for variant. A nil newEnv uses
// NewSandboxEnvironment.
func NewRunner(variant Variant, newEnv EnvironmentFactory, logger *slog.Logger) *Runner {
	if newEnv == nil {
		newEnv = NewSandboxEnvironment
	}

	return &Runner{
		Variant: variant,
		NewEnv:  newEnv,
		Logger:  logger.With(slog.String("variant", variant.Label)),
	}
}

// Run reads the variant's binary, deploys it into a fresh environment and
// drives the plan's calls against it.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	label := r.Variant.Label

	path, err := ResolveBinary(r.Variant)
	if err != nil {
		return nil, newError(KindIO, label, "stat binary", err)
	}

	bin, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(KindIO, label, "read binary", err)
	}

	// The size reported is that of the bytes deployed.
	size := int64(len(bin))
	if size == 0 {
		return nil, newError(KindIO, label, "read binary", fmt.Errorf("binary %s is empty", path))
	}

	r.Logger.InfoContext(ctx, "starting variant",
		slog.String("binary", path),
		slog.String("size", unitconv.FormatPrefix(float64(size), unitconv.SI, 1)+"B"),
	)

	wallStart := time.Now()

	env, err := r.NewEnv()
	if err != nil {
		return nil, newError(KindEngine, label, "create environment", err)
	}

	dep, err := Bootstrap(ctx, env, label, bin, cfg.Plan)
	if err != nil {
		return nil, err
	}
	defer dep.Executor.Close(ctx)

	r.Logger.DebugContext(ctx, "environment ready",
		slog.Int("accounts", len(dep.Accounts)),
		slog.String("actor", dep.Actor.String()),
		slog.String("state", dep.StateCID.String()),
	)

	calls, err := workload.NewGenerator(cfg.Plan).Generate(dep.Accounts, dep.Actor)
	if err != nil {
		return nil, newError(KindSerialization, label, "generate calls", err)
	}

	driver := &Driver{
		Executor: dep.Executor,
		Policy:   cfg.ExitCodes,
		Variant:  label,
		Logger:   r.Logger,
	}

	receipts, err := driver.Run(ctx, calls)
	if err != nil {
		return nil, err
	}

	head, err := dep.Executor.StateHead(dep.Actor)
	if err != nil {
		return nil, newError(KindEngine, label, "read state head", err)
	}

	wallElapsed := time.Since(wallStart)

	r.Logger.InfoContext(ctx, "variant finished",
		slog.Int("calls", len(receipts)),
		slog.Duration("wall_time", wallElapsed),
	)

	if len(receipts) != len(calls) {
		return nil, newError(KindEngine, label, "drive calls",
			fmt.Errorf("got %d receipts for %d calls", len(receipts), len(calls)))
	}

	return &Result{
		Variant:    label,
		Path:       path,
		BinarySize: size,
		StateHead:  head.String(),
		Receipts:   receipts,
		ElapsedMs:  wallElapsed.Milliseconds(),
		Calls:      calls,
	}, nil
}
