package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sofmeright/dockergen/src/engine"
)

// Validate checks structural invariants of a loaded Config.
// Returns warnings (soft issues) and a hard error if the config is invalid.
func Validate(cfg *Config) (warnings []string, err error) {
	var errs []string

	// ── Runtime ───────────────────────────────────────────────────────────

	if cfg.Runtime.Image == "" {
		errs = append(errs, "runtime.image: is required")
	}
	if cfg.Runtime.Version == "" {
		errs = append(errs, "runtime.version: is required")
	}
	if cfg.Runtime.Executable == "" {
		errs = append(errs, "runtime.executable: is required")
	}
	if cfg.Runtime.Home == "" {
		errs = append(errs, "runtime.home: is required")
	} else if !strings.HasPrefix(cfg.Runtime.Home, "/") {
		errs = append(errs, fmt.Sprintf("runtime.home: %q must be an absolute path", cfg.Runtime.Home))
	}
	if cfg.Runtime.Maintainer == "" {
		warnings = append(warnings, "runtime.maintainer: empty, generated images carry no maintainer label value")
	}

	// ── Engine ────────────────────────────────────────────────────────────

	if names := engine.All(); !slices.Contains(names, cfg.Engine.Name) {
		errs = append(errs, fmt.Sprintf("engine.name: unknown engine %q (supported: %s)", cfg.Engine.Name, strings.Join(names, ", ")))
	}
	if cfg.Engine.Timeouts.Build < 0 {
		errs = append(errs, "engine.timeouts.build: must not be negative")
	}
	if cfg.Engine.Timeouts.Push < 0 {
		errs = append(errs, "engine.timeouts.push: must not be negative")
	}
	if cfg.Engine.Timeouts.Build == 0 || cfg.Engine.Timeouts.Push == 0 {
		warnings = append(warnings, "engine.timeouts: a zero timeout waits for the engine without bound")
	}

	// ── Output ────────────────────────────────────────────────────────────

	errs = append(errs, validateOutputPath(cfg.Output.Dir, "output.dir")...)

	// ── Jobs ──────────────────────────────────────────────────────────────

	if cfg.Jobs < 1 {
		errs = append(errs, fmt.Sprintf("jobs: must be at least 1, got %d", cfg.Jobs))
	}

	if !cfg.Secrets.Scan && cfg.Secrets.Fail {
		warnings = append(warnings, "secrets.fail: has no effect while secrets.scan is false")
	}
	if !cfg.Lint.Enabled && cfg.Lint.Fail {
		warnings = append(warnings, "lint.fail: has no effect while lint.enabled is false")
	}

	if len(errs) > 0 {
		return warnings, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return warnings, nil
}

// validateOutputPath checks that an output path is safe.
func validateOutputPath(p string, itemPath string) []string {
	var errs []string

	if p == "" {
		errs = append(errs, fmt.Sprintf("%s: output path is empty", itemPath))
		return errs
	}

	// Absolute paths are allowed.
	if filepath.IsAbs(p) {
		return errs
	}

	// Tilde
	if strings.HasPrefix(p, "~") {
		errs = append(errs, fmt.Sprintf("%s: output path %q must not start with ~", itemPath, p))
		return errs
	}

	// Path traversal
	if slices.Contains(strings.Split(filepath.ToSlash(p), "/"), "..") {
		errs = append(errs, fmt.Sprintf("%s: output path %q must not contain '..'", itemPath, p))
		return errs
	}

	return errs
}
