package modules

import (
	"bytes"
	"context"
	"os"

	"github.com/sofmeright/dockergen/src/lint"
)

func init() {
	lint.Register("lineendings", func() lint.Module { return &lineEndingsModule{} })
}

// lineEndingsModule flags CRLF line endings in text files baked into a
// Linux image, where config parsers may keep the trailing \r.
type lineEndingsModule struct{}

func (m *lineEndingsModule) Name() string { return "lineendings" }

func (m *lineEndingsModule) Applies(file lint.FileInfo) bool {
	return !isBinaryName(file.Path)
}

func (m *lineEndingsModule) Check(ctx context.Context, file lint.FileInfo) ([]lint.Finding, error) {
	data, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || bytes.IndexByte(data, 0) >= 0 {
		return nil, nil
	}

	crlf := bytes.Count(data, []byte("\r\n"))
	lf := bytes.Count(data, []byte("\n")) - crlf

	var findings []lint.Finding
	switch {
	case crlf > 0 && lf > 0:
		findings = append(findings, m.finding(file, firstCRLFLine(data), lint.SeverityWarning, "mixed line endings (CRLF and LF)"))
	case crlf > 0:
		findings = append(findings, m.finding(file, 1, lint.SeverityWarning, "file uses CRLF line endings"))
	}

	if data[len(data)-1] != '\n' {
		findings = append(findings, m.finding(file, bytes.Count(data, []byte("\n"))+1, lint.SeverityInfo, "missing final newline"))
	}
	return findings, nil
}

func (m *lineEndingsModule) finding(file lint.FileInfo, line int, sev lint.Severity, msg string) lint.Finding {
	return lint.Finding{File: file.Path, Line: line, Module: m.Name(), Severity: sev, Message: msg}
}

func firstCRLFLine(data []byte) int {
	idx := bytes.Index(data, []byte("\r\n"))
	return bytes.Count(data[:idx], []byte("\n")) + 1
}
