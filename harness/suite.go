package harness

import (
	"context"
	"errors"
	"log/slog"

	"github.com/weiihann/actorbench/workload"
	"golang.org/x/sync/errgroup"
)

// SuiteConfig describes a comparison run over several variants.
type SuiteConfig struct {
	Variants  []Variant
	Plan      workload.Plan
	ExitCodes ExitCodePolicy
	OnFailure FailurePolicy
	// Parallel runs variants concurrently. Each variant owns its
	// environment, so only the results slice is shared.
	Parallel bool
	NewEnv   EnvironmentFactory
}

// RunSuite runs every variant and returns their results in variant order.
// Under FailAbort the first variant error is returned and no results are.
func RunSuite(ctx context.Context, logger *slog.Logger, cfg SuiteConfig) ([]Result, error) {
	if len(cfg.Variants) == 0 {
		return nil, errors.New("no variants to run")
	}

	if err := cfg.Plan.Validate(); err != nil {
		return nil, newError(KindConfig, "", "validate plan", err)
	}

	runCfg := RunConfig{Plan: cfg.Plan, ExitCodes: cfg.ExitCodes}
	slots := make([]*Result, len(cfg.Variants))
	errs := make([]error, len(cfg.Variants))

	run := func(ctx context.Context, i int) error {
		runner := NewRunner(cfg.Variants[i], cfg.NewEnv, logger)

		res, err := runner.Run(ctx, runCfg)
		if err != nil {
			errs[i] = err
			if cfg.OnFailure == FailAbort || cfg.OnFailure == "" {
				return err
			}

			runner.Logger.WarnContext(ctx, "variant failed",
				slog.String("error", err.Error()),
				slog.String("policy", string(cfg.OnFailure)),
			)

			return nil
		}

		slots[i] = res

		return nil
	}

	if cfg.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i := range cfg.Variants {
			g.Go(func() error { return run(gctx, i) })
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range cfg.Variants {
			if err := run(ctx, i); err != nil {
				return nil, err
			}
		}
	}

	results := make([]Result, 0, len(cfg.Variants))

	for i, v := range cfg.Variants {
		switch {
		case slots[i] != nil:
			results = append(results, *slots[i])
		case cfg.OnFailure == FailMissing:
			results = append(results, Result{
				Variant: v.Label,
				Path:    v.Path,
				Missing: true,
				Error:   errs[i].Error(),
			})
		}
	}

	return results, nil
}
