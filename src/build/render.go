package build

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sofmeright/dockergen/src/descriptor"
)

// Tokens substituted into an explicit cmd template.
const (
	TokenApp        = "${APP}"
	TokenConfigFile = "${CONFIG_FILE}"
)

const dockerfileHeader = "# Auto Generated Dockerfile"

// Render turns a descriptor into Dockerfile text. It performs no I/O and
// returns byte-identical output for equal descriptors.
func Render(d *descriptor.Descriptor) string {
	var b strings.Builder

	b.WriteString(dockerfileHeader + "\n\n")
	fmt.Fprintf(&b, "FROM %s\n", d.BaseImage)
	if d.Runtime.Maintainer != "" {
		fmt.Fprintf(&b, "LABEL maintainer=%q\n", d.Runtime.Maintainer)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "COPY %s %s\n", d.BundleName, d.HomeDir())
	for _, f := range d.SortedCopyFiles() {
		fmt.Fprintf(&b, "COPY %s %s\n", f.FileName(), f.Target)
	}
	for _, k := range d.SortedEnv() {
		fmt.Fprintf(&b, "ENV %s=%s\n", k, d.Env[k])
	}
	if line := exposeLine(d); line != "" {
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")

	b.WriteString("CMD " + Command(d) + "\n")
	return b.String()
}

// exposeLine returns the EXPOSE instruction, or "" when nothing is exposed.
func exposeLine(d *descriptor.Descriptor) string {
	if !d.IsService || len(d.Ports) == 0 {
		return ""
	}
	ports := make([]string, len(d.Ports))
	for i, p := range d.Ports {
		ports[i] = strconv.Itoa(p)
	}
	return "EXPOSE " + strings.Join(ports, " ")
}

// Command returns the shell-form command the container starts with.
func Command(d *descriptor.Descriptor) string {
	if d.Cmd != "" {
		cmd := strings.ReplaceAll(d.Cmd, TokenApp, d.BundleName)
		if cf, ok := d.ConfigFile(); ok {
			cmd = strings.ReplaceAll(cmd, TokenConfigFile, cf.Target)
		}
		return cmd
	}

	parts := []string{d.Runtime.Executable, "run"}
	if d.CommandArg != "" {
		parts = append(parts, d.CommandArg)
	}
	if _, ok := d.ConfigFile(); ok {
		parts = append(parts, "--config", "${"+descriptor.ConfigFileEnv+"}")
	}
	if d.EnableDebug {
		parts = append(parts, "--debug", strconv.Itoa(d.DebugPort))
	}
	parts = append(parts, d.BundleName)
	return strings.Join(parts, " ")
}
