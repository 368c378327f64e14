package modules

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/sofmeright/dockergen/src/build"
	"github.com/sofmeright/dockergen/src/lint"
)

func init() {
	lint.Register("dockerfile", func() lint.Module { return &dockerfileModule{} })
}

// dockerfileModule checks the generated Dockerfile itself.
type dockerfileModule struct{}

func (m *dockerfileModule) Name() string { return "dockerfile" }

func (m *dockerfileModule) Applies(file lint.FileInfo) bool {
	return path.Base(file.Path) == "Dockerfile"
}

func (m *dockerfileModule) Check(ctx context.Context, file lint.FileInfo) ([]lint.Finding, error) {
	f, err := os.Open(file.AbsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := build.ReadDockerfile(f)
	if err != nil {
		return nil, err
	}

	var findings []lint.Finding
	add := func(line int, sev lint.Severity, format string, args ...any) {
		findings = append(findings, lint.Finding{
			File: file.Path, Line: line, Module: m.Name(), Severity: sev,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if len(info.Stages) == 0 {
		add(1, lint.SeverityCritical, "no FROM instruction")
	}
	for _, st := range info.Stages {
		if !pinned(st.BaseImage) {
			add(st.Line, lint.SeverityWarning, "base image %s is not pinned to a version", st.BaseImage)
		}
	}
	if info.Cmd == "" {
		add(0, lint.SeverityCritical, "no CMD instruction")
	}

	seen := map[string]bool{}
	for _, e := range info.Expose {
		num, _, _ := strings.Cut(e, "/")
		if p, err := strconv.Atoi(num); err != nil || p < 1 || p > 65535 {
			add(0, lint.SeverityCritical, "EXPOSE %s is not a valid port", e)
			continue
		}
		if seen[e] {
			add(0, lint.SeverityInfo, "port %s exposed twice", e)
		}
		seen[e] = true
	}
	return findings, nil
}

// pinned reports whether ref names a tag other than latest, or a digest.
func pinned(ref string) bool {
	if strings.Contains(ref, "@") {
		return true
	}
	slash := strings.LastIndex(ref, "/")
	colon := strings.LastIndex(ref, ":")
	if colon <= slash {
		return false
	}
	return ref[colon+1:] != "latest"
}
