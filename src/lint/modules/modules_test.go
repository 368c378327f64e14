package modules

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sofmeright/dockergen/src/lint"
)

func writeTempFile(t *testing.T, name string, content []byte) lint.FileInfo {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return lint.FileInfo{Path: name, AbsPath: path, Size: int64(len(content))}
}

func check(t *testing.T, m lint.Module, file lint.FileInfo) []lint.Finding {
	t.Helper()
	findings, err := m.Check(context.Background(), file)
	if err != nil {
		t.Fatalf("%s: %v", m.Name(), err)
	}
	return findings
}

func TestUnicodeFindsHiddenCharacters(t *testing.T) {
	file := writeTempFile(t, "app.conf", []byte("user = \"admin\u202e\"\nport\u00a0= 9090\nplain = yes\n"))
	findings := check(t, &unicodeModule{}, file)
	if len(findings) != 2 {
		t.Fatalf("findings = %+v, want 2", findings)
	}
	if findings[0].Line != 1 || findings[0].Severity != lint.SeverityCritical || !strings.Contains(findings[0].Message, "U+202E") {
		t.Errorf("first finding = %+v", findings[0])
	}
	if findings[1].Line != 2 || findings[1].Column != 5 || findings[1].Severity != lint.SeverityWarning {
		t.Errorf("second finding = %+v", findings[1])
	}
}

func TestUnicodeAllowsLeadingBOM(t *testing.T) {
	file := writeTempFile(t, "app.conf", []byte("\ufeffkey = value\n"))
	if findings := check(t, &unicodeModule{}, file); len(findings) != 0 {
		t.Errorf("findings = %+v", findings)
	}
}

func TestUnicodeInvalidUTF8(t *testing.T) {
	file := writeTempFile(t, "app.conf", []byte("ok\n\xff\xfe\n"))
	findings := check(t, &unicodeModule{}, file)
	if len(findings) != 1 || findings[0].Line != 2 || findings[0].Message != "invalid UTF-8 encoding" {
		t.Errorf("findings = %+v", findings)
	}
}

func TestLineEndings(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"clean", "a\nb\n", nil},
		{"crlf", "a\r\nb\r\n", []string{"file uses CRLF line endings"}},
		{"mixed", "a\nb\r\nc\n", []string{"mixed line endings (CRLF and LF)"}},
		{"no final newline", "a\nb", []string{"missing final newline"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := check(t, &lineEndingsModule{}, writeTempFile(t, "app.conf", []byte(tt.content)))
			var got []string
			for _, f := range findings {
				got = append(got, f.Message)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("messages = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLineEndingsSkipsBundles(t *testing.T) {
	m := &lineEndingsModule{}
	if m.Applies(lint.FileInfo{Path: "hello.balx"}) {
		t.Error("bundle should be skipped")
	}
	if !m.Applies(lint.FileInfo{Path: "conf/app.conf"}) {
		t.Error("config file should be checked")
	}
}

func TestLargeFilesConfigure(t *testing.T) {
	m := &largeFilesModule{maxBytes: defaultLargeFileMax}
	if err := m.Configure(map[string]any{"max_bytes": 10}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	findings := check(t, m, lint.FileInfo{Path: "data.bin", Size: 2048})
	if len(findings) != 1 || !strings.Contains(findings[0].Message, "2.0 KB exceeds threshold 10 B") {
		t.Errorf("findings = %+v", findings)
	}

	if err := m.Configure(map[string]any{"max_bytes": "big"}); err == nil {
		t.Error("expected error for non-numeric max_bytes")
	}
	if err := m.Configure(map[string]any{"max_bytes": 0}); err == nil {
		t.Error("expected error for zero max_bytes")
	}
}

func TestDockerfileModule(t *testing.T) {
	content := `# Auto Generated Dockerfile

FROM ballerina/ballerina-runtime:latest
LABEL maintainer="dev@example.com"

COPY hello.balx /home/ballerina
EXPOSE 9090 70000

CMD ballerina run hello.balx
`
	findings := check(t, &dockerfileModule{}, writeTempFile(t, "Dockerfile", []byte(content)))
	if len(findings) != 2 {
		t.Fatalf("findings = %+v, want 2", findings)
	}
	if findings[0].Line != 3 || !strings.Contains(findings[0].Message, "not pinned") {
		t.Errorf("pin finding = %+v", findings[0])
	}
	if findings[1].Severity != lint.SeverityCritical || !strings.Contains(findings[1].Message, "70000") {
		t.Errorf("port finding = %+v", findings[1])
	}
}

func TestPinned(t *testing.T) {
	tests := map[string]bool{
		"ballerina/ballerina-runtime:0.990.0": true,
		"ballerina/ballerina-runtime":         false,
		"ballerina/ballerina-runtime:latest":  false,
		"localhost:5000/runtime":              false,
		"localhost:5000/runtime:1.0":          true,
		"runtime@sha256:0123456789abcdef":     true,
	}
	for ref, want := range tests {
		if got := pinned(ref); got != want {
			t.Errorf("pinned(%q) = %v, want %v", ref, got, want)
		}
	}
}
