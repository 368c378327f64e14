package lint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sofmeright/dockergen/src/config"
)

// Engine runs lint modules across the files of one build context.
type Engine struct {
	Config  config.LintConfig
	Modules []Module
	Log     *zap.Logger
}

// NewEngine creates an engine with every registered module that the
// config does not disable. Modules named in the config must exist.
func NewEngine(cfg config.LintConfig, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	registered := All()
	for name := range cfg.Modules {
		if !slices.Contains(registered, name) {
			return nil, fmt.Errorf("lint.modules: unknown module %q (available: %s)", name, strings.Join(registered, ", "))
		}
	}

	var modules []Module
	for _, name := range registered {
		mc := cfg.Modules[name]
		if mc.Enabled != nil && !*mc.Enabled {
			continue
		}
		m, err := Get(name)
		if err != nil {
			return nil, err
		}
		if cm, ok := m.(ConfigurableModule); ok {
			if err := cm.Configure(mc.Options); err != nil {
				return nil, fmt.Errorf("lint.modules.%s: %w", name, err)
			}
		}
		modules = append(modules, m)
	}
	return &Engine{Config: cfg, Modules: modules, Log: log}, nil
}

// Run executes all modules against files. Findings are sorted by file,
// line and module. A module error does not stop the others.
func (e *Engine) Run(ctx context.Context, files []FileInfo) ([]Finding, error) {
	var (
		mu       sync.Mutex
		findings []Finding
		errs     []error
		wg       sync.WaitGroup
	)
	sem := semaphore.NewWeighted(int64(runtime.NumCPU()))

	for _, file := range files {
		if e.isExcluded(file.Path) {
			continue
		}
		for _, mod := range e.Modules {
			if ff, ok := mod.(FileFilter); ok && !ff.Applies(file) {
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				return findings, err
			}
			wg.Add(1)
			go func(m Module, f FileInfo) {
				defer wg.Done()
				defer sem.Release(1)

				results, err := m.Check(ctx, f)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %s: %w", m.Name(), f.Path, err))
					return
				}
				findings = append(findings, results...)
			}(mod, file)
		}
	}
	wg.Wait()

	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Module < b.Module
	})

	for _, err := range errs {
		e.Log.Warn("lint module failed", zap.Error(err))
	}
	if len(errs) > 0 {
		return findings, fmt.Errorf("%d module errors (first: %w)", len(errs), errs[0])
	}
	return findings, nil
}

// ContextFiles lists the files staged in dir, relative to it.
func ContextFiles(dir string, paths []string) ([]FileInfo, error) {
	files := make([]FileInfo, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			rel = filepath.Base(p)
		}
		files = append(files, FileInfo{Path: filepath.ToSlash(rel), AbsPath: p, Size: info.Size()})
	}
	return files, nil
}

// ModuleNames returns the names of all active modules.
func (e *Engine) ModuleNames() []string {
	names := make([]string, len(e.Modules))
	for i, m := range e.Modules {
		names[i] = m.Name()
	}
	return names
}

// matchExcludePattern matches a single exclude pattern against a path.
// Patterns containing "/" or "**" match the full path; others the base name.
func matchExcludePattern(pattern, path string) bool {
	pattern = filepath.ToSlash(pattern)
	if strings.Contains(pattern, "/") || strings.Contains(pattern, "**") {
		return matchGlob(pattern, path)
	}
	return matchGlob(pattern, filepath.Base(path))
}

func (e *Engine) isExcluded(path string) bool {
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")
	for _, pattern := range e.Config.Exclude {
		if matchExcludePattern(pattern, path) {
			return true
		}
	}
	return false
}
