package modules

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"unicode"
	"unicode/utf8"

	"github.com/sofmeright/dockergen/src/lint"
)

func init() {
	lint.Register("unicode", func() lint.Module { return &unicodeModule{} })
}

// unicodeModule finds invisible and direction-changing characters in
// staged config files, where they hide values from review.
type unicodeModule struct{}

func (m *unicodeModule) Name() string { return "unicode" }

func (m *unicodeModule) Applies(file lint.FileInfo) bool {
	return !isBinaryName(file.Path)
}

// suspicious maps runes to a description. Critical ones can reorder or
// hide text.
var suspicious = map[rune]struct {
	msg      string
	critical bool
}{
	'\u202A': {"bidi override: left-to-right embedding", true},
	'\u202B': {"bidi override: right-to-left embedding", true},
	'\u202C': {"bidi override: pop directional formatting", true},
	'\u202D': {"bidi override: left-to-right override", true},
	'\u202E': {"bidi override: right-to-left override", true},
	'\u2066': {"bidi override: left-to-right isolate", true},
	'\u2067': {"bidi override: right-to-left isolate", true},
	'\u2068': {"bidi override: first strong isolate", true},
	'\u2069': {"bidi override: pop directional isolate", true},
	'\u200B': {"zero-width space", true},
	'\u200C': {"zero-width non-joiner", true},
	'\u200D': {"zero-width joiner", true},
	'\uFEFF': {"zero-width no-break space (unexpected BOM)", true},
	'\u00AD': {"soft hyphen (invisible)", false},
	'\u2060': {"word joiner (invisible)", false},
	'\u00A0': {"non-breaking space", false},
	'\u3000': {"ideographic space", false},
}

func (m *unicodeModule) Check(ctx context.Context, file lint.FileInfo) ([]lint.Finding, error) {
	f, err := os.Open(file.AbsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var findings []lint.Finding
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if !utf8.Valid(line) {
			findings = append(findings, lint.Finding{
				File: file.Path, Line: lineNum, Module: m.Name(),
				Severity: lint.SeverityWarning, Message: "invalid UTF-8 encoding",
			})
			continue
		}

		col := 0
		for i := 0; i < len(line); {
			r, size := utf8.DecodeRune(line[i:])
			i += size
			col++
			// A BOM at the very start of a file is legitimate.
			if r == '\uFEFF' && lineNum == 1 && col == 1 {
				continue
			}
			msg, sev, ok := classify(r)
			if !ok {
				continue
			}
			findings = append(findings, lint.Finding{
				File: file.Path, Line: lineNum, Column: col, Module: m.Name(),
				Severity: sev, Message: fmt.Sprintf("%s (U+%04X)", msg, r),
			})
		}
	}
	return findings, scanner.Err()
}

func classify(r rune) (string, lint.Severity, bool) {
	if s, ok := suspicious[r]; ok {
		if s.critical {
			return s.msg, lint.SeverityCritical, true
		}
		return s.msg, lint.SeverityWarning, true
	}
	switch {
	case r >= '\u2000' && r <= '\u200A':
		return "unusual whitespace character", lint.SeverityWarning, true
	case r >= 0xE0001 && r <= 0xE007F:
		return "tag character (invisible)", lint.SeverityCritical, true
	case r < 0x80 && r != '\t' && r != '\r' && unicode.IsControl(r):
		return "ASCII control character", lint.SeverityWarning, true
	}
	return "", 0, false
}
