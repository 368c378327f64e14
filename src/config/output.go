package config

// OutputConfig controls where build contexts are staged.
type OutputConfig struct {
	// Dir is the parent of the per-unit output directories.
	Dir string `yaml:"dir"`

	// KeepOnFailure leaves a failed unit's output directory in place.
	KeepOnFailure bool `yaml:"keep_on_failure"`
}

// DefaultOutputConfig stages contexts under target/docker.
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{Dir: "target/docker"}
}

// SecretsConfig holds secret scanning of staged files.
type SecretsConfig struct {
	Scan bool `yaml:"scan"` // scan copied files before building (default: true)
	Fail bool `yaml:"fail"` // treat any finding as a failure
}

// DefaultSecretsConfig scans and warns.
func DefaultSecretsConfig() SecretsConfig {
	return SecretsConfig{Scan: true}
}
