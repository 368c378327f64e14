// Package config loads the dockergen tool configuration.
package config

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sofmeright/dockergen/src/descriptor"
)

// DefaultConfigFile is read when no --config path is given.
const DefaultConfigFile = ".dockergen.yml"

// Config is the top-level dockergen configuration.
type Config struct {
	Runtime descriptor.Runtime `yaml:"runtime"`
	Engine  EngineConfig       `yaml:"engine"`
	Output  OutputConfig       `yaml:"output"`
	Secrets SecretsConfig      `yaml:"secrets"`
	Lint    LintConfig         `yaml:"lint"`

	// Jobs bounds how many units are processed at once.
	Jobs int `yaml:"jobs"`
}

// Load reads configuration from a YAML file.
// If path is empty, it tries the default file.
// Returns sensible defaults if the file doesn't exist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Runtime: descriptor.DefaultRuntime(),
		Engine:  DefaultEngineConfig(),
		Output:  DefaultOutputConfig(),
		Secrets: DefaultSecretsConfig(),
		Lint:    DefaultLintConfig(),
		Jobs:    4,
	}
}
