package descriptor

import "fmt"

// ConfigError reports malformed or contradictory annotation input. It is
// always raised before anything is rendered, written, or sent to an engine.
type ConfigError struct {
	Unit string // compilation unit the annotation belongs to
	Key  string // annotation key, empty for cross-field checks
	Msg  string
	Err  error
}

func (e *ConfigError) Error() string {
	prefix := "config error"
	if e.Unit != "" {
		prefix += " in " + e.Unit
	}
	if e.Key != "" {
		prefix += ": " + e.Key
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Msg)
}

func (e *ConfigError) Unwrap() error { return e.Err }
