// Package lint checks a staged build context before it is sent to the
// engine. Checks are modules registered by name; the modules package
// registers the built-in set.
package lint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrCritical marks a unit stopped by a critical finding.
var ErrCritical = errors.New("critical lint findings")

// Severity indicates how serious a finding is.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Finding is a single lint result.
type Finding struct {
	File     string
	Line     int
	Column   int
	Module   string
	Severity Severity
	Message  string
}

// FileInfo is passed to each module for inspection.
type FileInfo struct {
	Path    string // relative to the build context
	AbsPath string
	Size    int64
}

// Module is one check over staged files.
type Module interface {
	Name() string
	Check(ctx context.Context, file FileInfo) ([]Finding, error)
}

// ConfigurableModule accepts options from the lint.modules config section.
// Configure is called with nil when no options are set.
type ConfigurableModule interface {
	Configure(opts map[string]any) error
}

// FileFilter limits a module to the files it understands.
type FileFilter interface {
	Applies(file FileInfo) bool
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Module{}
)

// Register adds a module constructor. Called from init() in module files.
func Register(name string, constructor func() Module) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("lint: duplicate module registration: %s", name))
	}
	registry[name] = constructor
}

// Get returns a new instance of the named module.
func Get(name string) (Module, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("lint: unknown module: %s", name)
	}
	return ctor(), nil
}

// All returns sorted names of all registered modules.
func All() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Critical returns the critical findings.
func Critical(findings []Finding) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Severity == SeverityCritical {
			out = append(out, f)
		}
	}
	return out
}
