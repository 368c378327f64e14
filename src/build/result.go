package build

import (
	"time"

	"github.com/sofmeright/dockergen/src/descriptor"
	"github.com/sofmeright/dockergen/src/lint"
)

// Result captures the outcome of generating artifacts for one unit.
type Result struct {
	Unit       string
	Descriptor *descriptor.Descriptor
	Dockerfile string // rendered text
	Artifacts  *Artifacts
	Secrets    []SecretFinding
	Lint       []lint.Finding
	ImageID    string
	Built      bool
	Pushed     bool
	Digest     string
	Duration   time.Duration
	Steps      []StepTiming
}

// Image returns the composed image reference, or "" before assembly.
func (r *Result) Image() string {
	if r.Descriptor == nil {
		return ""
	}
	return r.Descriptor.Name
}

// StepTiming records how long one pipeline step took.
type StepTiming struct {
	Name     string
	Status   string // "success", "failed", "skipped"
	Duration time.Duration
}

// Step appends a timing entry for a step that started at start.
func (r *Result) Step(name, status string, start time.Time) {
	r.Steps = append(r.Steps, StepTiming{Name: name, Status: status, Duration: time.Since(start)})
}
