package config

// ModuleConfig holds per-module overrides.
type ModuleConfig struct {
	Enabled *bool          `yaml:"enabled,omitempty"`
	Options map[string]any `yaml:"options,omitempty"`
}

// LintConfig controls the checks run over a staged build context.
type LintConfig struct {
	Enabled bool                    `yaml:"enabled"`
	Fail    bool                    `yaml:"fail"` // critical findings fail the unit
	Exclude []string                `yaml:"exclude"`
	Modules map[string]ModuleConfig `yaml:"modules"`
}

// DefaultLintConfig returns production defaults.
func DefaultLintConfig() LintConfig {
	return LintConfig{
		Enabled: true,
		Exclude: []string{},
		Modules: map[string]ModuleConfig{},
	}
}
