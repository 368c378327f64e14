package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Progress prints "@docker - complete N/M" markers as a unit moves
// through its steps.
type Progress struct {
	mu    sync.Mutex
	w     io.Writer
	label string
	total int
	done  int
}

// NewProgress starts a marker sequence with total steps.
func NewProgress(w io.Writer, label string, total int) *Progress {
	return &Progress{w: w, label: label, total: total}
}

// Step records one completed step and prints its marker.
func (p *Progress) Step() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done >= p.total {
		return
	}
	p.done++
	fmt.Fprintf(p.w, "\t%-24s - complete %d/%d\n", "@"+p.label, p.done, p.total)
}

// RunCommand formats the docker run line for an image, publishing each
// port on the same host port.
func RunCommand(image string, ports []int) string {
	var b strings.Builder
	b.WriteString("docker run -d")
	for _, p := range ports {
		port := strconv.Itoa(p)
		b.WriteString(" -p " + port + ":" + port)
	}
	b.WriteString(" " + image)
	return b.String()
}

// Instructions prints how to start a container from the built image.
func Instructions(w io.Writer, image string, ports []int) {
	fmt.Fprintf(w, "\n\tRun the following command to start a Docker container:\n\t%s\n\n", RunCommand(image, ports))
}
