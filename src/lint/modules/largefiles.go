package modules

import (
	"context"
	"fmt"

	"github.com/sofmeright/dockergen/src/lint"
)

const defaultLargeFileMax int64 = 5 * 1024 * 1024

func init() {
	lint.Register("largefiles", func() lint.Module { return &largeFilesModule{maxBytes: defaultLargeFileMax} })
}

// largeFilesModule warns about auxiliary files that bloat the image layer.
type largeFilesModule struct {
	maxBytes int64
}

func (m *largeFilesModule) Name() string { return "largefiles" }

func (m *largeFilesModule) Configure(opts map[string]any) error {
	raw, ok := opts["max_bytes"]
	if !ok {
		return nil
	}
	var n int64
	switch v := raw.(type) {
	case int:
		n = int64(v)
	case int64:
		n = v
	case float64:
		n = int64(v)
	default:
		return fmt.Errorf("max_bytes: expected a number, got %T", raw)
	}
	if n <= 0 {
		return fmt.Errorf("max_bytes: must be positive, got %d", n)
	}
	m.maxBytes = n
	return nil
}

func (m *largeFilesModule) Check(ctx context.Context, file lint.FileInfo) ([]lint.Finding, error) {
	if file.Size <= m.maxBytes {
		return nil, nil
	}
	return []lint.Finding{{
		File:     file.Path,
		Module:   m.Name(),
		Severity: lint.SeverityWarning,
		Message:  fmt.Sprintf("file size %s exceeds threshold %s", humanSize(file.Size), humanSize(m.maxBytes)),
	}}, nil
}

func humanSize(b int64) string {
	switch {
	case b >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(b)/(1024*1024))
	case b >= 1024:
		return fmt.Sprintf("%.1f KB", float64(b)/1024)
	default:
		return fmt.Sprintf("%d B", b)
	}
}
