package config

import "time"

// EngineConfig selects and tunes the container engine.
type EngineConfig struct {
	Name     string `yaml:"name"`      // registered engine name (default: docker)
	Host     string `yaml:"host"`      // daemon address; empty uses DOCKER_HOST
	CertPath string `yaml:"cert_path"` // directory with ca.pem, cert.pem, key.pem

	Timeouts TimeoutConfig `yaml:"timeouts"`

	NoCache bool `yaml:"no_cache"`
	Pull    bool `yaml:"pull"` // always attempt to pull a newer base image
}

// TimeoutConfig bounds the wait for an engine's terminal event.
// Values use Go duration syntax ("30m", "90s"); zero waits without bound.
type TimeoutConfig struct {
	Build time.Duration `yaml:"build"`
	Push  time.Duration `yaml:"push"`
}

// DefaultEngineConfig returns the docker engine with default timeouts.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Name: "docker",
		Timeouts: TimeoutConfig{
			Build: 30 * time.Minute,
			Push:  15 * time.Minute,
		},
	}
}
