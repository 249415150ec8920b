package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Variant is one compiled token actor to benchmark.
type Variant struct {
	Label string `yaml:"label" json:"label"`
	Path  string `yaml:"path" json:"path"`
}

// DefaultVariants returns the four toolchain builds of the ERC20 actor,
// in report order.
func DefaultVariants() []Variant {
	return []Variant{
		{Label: "Assemblyscript (incremental)", Path: "./temp/as-incremental-erc20-actor.wasm"},
		{Label: "Assemblyscript (minimal)", Path: "./temp/as-minimal-erc20-actor.wasm"},
		{Label: "Assemblyscript (stub)", Path: "./temp/as-stub-erc20-actor.wasm"},
		{Label: "Go actor", Path: "./temp/go-erc20-actor.wasm"},
	}
}

// ParseVariant parses "label=path". The label may contain spaces; the
// first '=' separates it from the path.
func ParseVariant(s string) (Variant, error) {
	label, path, ok := strings.Cut(s, "=")
	label = strings.TrimSpace(label)
	path = strings.TrimSpace(path)

	if !ok || label == "" || path == "" {
		return Variant{}, fmt.Errorf("invalid variant %q (want label=path)", s)
	}

	return Variant{Label: label, Path: path}, nil
}

// ResolveBinary returns the absolute path of the variant's binary.
func ResolveBinary(v Variant) (string, error) {
	path, err := filepath.Abs(v.Path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", v.Path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("binary not found at %s: %w", path, err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("binary path %s is a directory", path)
	}

	return path, nil
}
