// Package config loads the benchmark configuration: the variants to
// compare, the call plan, the report path and the failure policies.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/weiihann/actorbench/harness"
	"github.com/weiihann/actorbench/report"
	"github.com/weiihann/actorbench/workload"
	"gopkg.in/yaml.v3"
)

// Config is the complete benchmark configuration.
type Config struct {
	Variants  []harness.Variant `yaml:"variants"`
	Plan      workload.Plan     `yaml:"plan"`
	Output    string            `yaml:"output"`
	ExitCodes string            `yaml:"exit_codes"`
	OnFailure string            `yaml:"on_failure"`
	Parallel  bool              `yaml:"parallel"`
}

// Default returns the configuration of the four-variant ERC20
// comparison.
func Default() Config {
	return Config{
		Variants:  harness.DefaultVariants(),
		Plan:      workload.DefaultPlan(),
		Output:    report.DefaultCSVPath,
		ExitCodes: string(harness.ExitCodesInclude),
		OnFailure: string(harness.FailAbort),
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file
// keep their default values; a list present in the file replaces the
// default list.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Decode decodes YAML into cfg, rejecting unknown keys.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

// Validate checks the configuration for errors that would only surface
// midway through a run.
func (c Config) Validate() error {
	if len(c.Variants) == 0 {
		return errors.New("no variants configured")
	}

	seen := make(map[string]struct{}, len(c.Variants))
	for i, v := range c.Variants {
		if v.Label == "" {
			return fmt.Errorf("variant %d: empty label", i)
		}

		if v.Path == "" {
			return fmt.Errorf("variant %q: empty path", v.Label)
		}

		if _, dup := seen[v.Label]; dup {
			return fmt.Errorf("duplicate variant label %q", v.Label)
		}

		seen[v.Label] = struct{}{}
	}

	if err := c.Plan.Validate(); err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	if c.Output == "" {
		return errors.New("empty output path")
	}

	if _, err := harness.ParseExitCodePolicy(c.ExitCodes); err != nil {
		return err
	}

	if _, err := harness.ParseFailurePolicy(c.OnFailure); err != nil {
		return err
	}

	return nil
}

// Suite converts a validated configuration into a suite configuration.
func (c Config) Suite() (harness.SuiteConfig, error) {
	exitCodes, err := harness.ParseExitCodePolicy(c.ExitCodes)
	if err != nil {
		return harness.SuiteConfig{}, err
	}

	onFailure, err := harness.ParseFailurePolicy(c.OnFailure)
	if err != nil {
		return harness.SuiteConfig{}, err
	}

	return harness.SuiteConfig{
		Variants:  c.Variants,
		Plan:      c.Plan,
		ExitCodes: exitCodes,
		OnFailure: onFailure,
		Parallel:  c.Parallel,
	}, nil
}
