package build

import (
	"errors"
	"fmt"
	"os"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// ErrSecretsFound is wrapped in the IOError returned when staged files
// contain probable credentials and findings are fatal.
var ErrSecretsFound = errors.New("probable secrets found")

// SecretFinding is a probable credential found in a file that is about to
// be baked into an image.
type SecretFinding struct {
	File   string
	Line   int
	RuleID string
	Desc   string
}

func (f SecretFinding) String() string {
	return fmt.Sprintf("%s:%d: %s (%s)", f.File, f.Line, f.Desc, f.RuleID)
}

// SecretScanner checks staged files with the gitleaks default rule set.
// The zero value is ready to use; the detector is created on first use.
type SecretScanner struct {
	detector *detect.Detector
}

// Scan returns findings for every file in paths.
func (s *SecretScanner) Scan(paths []string) ([]SecretFinding, error) {
	if s.detector == nil {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("initialising secret detector: %w", err)
		}
		s.detector = d
	}

	var findings []SecretFinding
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &IOError{Op: "scan", Path: path, Err: err}
		}
		for _, h := range s.detector.DetectBytes(data) {
			findings = append(findings, SecretFinding{
				File:   path,
				Line:   h.StartLine + 1, // gitleaks is 0-indexed
				RuleID: h.RuleID,
				Desc:   h.Description,
			})
		}
	}
	return findings, nil
}
