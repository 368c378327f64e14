package lint

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sofmeright/dockergen/src/config"
)

type markerModule struct {
	name   string
	suffix string
	fail   bool
}

func (m *markerModule) Name() string { return m.name }

func (m *markerModule) Applies(f FileInfo) bool { return strings.HasSuffix(f.Path, m.suffix) }

func (m *markerModule) Check(ctx context.Context, f FileInfo) ([]Finding, error) {
	if m.fail {
		return nil, errors.New("boom")
	}
	return []Finding{{File: f.Path, Line: 1, Module: m.name, Severity: SeverityCritical, Message: "marked"}}, nil
}

func init() {
	Register("test-conf", func() Module { return &markerModule{name: "test-conf", suffix: ".conf"} })
	Register("test-broken", func() Module { return &markerModule{name: "test-broken", suffix: ".broken", fail: true} })
}

func TestEngineRun(t *testing.T) {
	cfg := config.DefaultLintConfig()
	cfg.Exclude = []string{"skip/**"}
	e, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	files := []FileInfo{
		{Path: "conf/b.conf"},
		{Path: "a.conf"},
		{Path: "Dockerfile"},
		{Path: "skip/c.conf"},
	}
	findings, err := e.Run(context.Background(), files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(findings) != 2 {
		t.Fatalf("findings = %+v, want 2", findings)
	}
	if findings[0].File != "a.conf" || findings[1].File != "conf/b.conf" {
		t.Errorf("findings not sorted: %+v", findings)
	}
	if got := len(Critical(findings)); got != 2 {
		t.Errorf("critical = %d", got)
	}
}

func TestEngineModuleErrors(t *testing.T) {
	e, err := NewEngine(config.DefaultLintConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Run(context.Background(), []FileInfo{{Path: "x.broken"}})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v", err)
	}
}

func TestNewEngineHonoursConfig(t *testing.T) {
	off := false
	cfg := config.DefaultLintConfig()
	cfg.Modules = map[string]config.ModuleConfig{"test-broken": {Enabled: &off}}
	e, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range e.ModuleNames() {
		if name == "test-broken" {
			t.Error("disabled module still active")
		}
	}

	cfg.Modules = map[string]config.ModuleConfig{"nope": {}}
	if _, err := NewEngine(cfg, nil); err == nil || !strings.Contains(err.Error(), "nope") {
		t.Errorf("unknown module: err = %v", err)
	}
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern, path string
		want          bool
	}{
		{"*.pem", "key.pem", true},
		{"*.pem", "certs/key.pem", false},
		{"certs/**", "certs/a/key.pem", true},
		{"certs/**", "certsx/key.pem", false},
		{"**/*.pem", "a/b/key.pem", true},
		{"**/*.pem", "key.pem", true},
	}
	for _, tt := range tests {
		if got := matchGlob(tt.pattern, tt.path); got != tt.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}
