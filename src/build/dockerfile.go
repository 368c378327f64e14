package build

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"
)

// DockerfileInfo is what ParseDockerfile extracts from a Dockerfile.
type DockerfileInfo struct {
	Stages []Stage
	Copies []string // COPY arguments, verbatim
	Env    []string // ENV arguments, verbatim
	Expose []string
	Cmd    string
}

// Stage describes a single FROM stage in a Dockerfile.
type Stage struct {
	Name      string // alias from "AS name", empty if unnamed
	BaseImage string // the FROM image reference
	Line      int    // line number of the FROM instruction
}

// BaseImage returns the image of the final stage.
func (i *DockerfileInfo) BaseImage() string {
	if len(i.Stages) == 0 {
		return ""
	}
	return i.Stages[len(i.Stages)-1].BaseImage
}

var (
	// FROM [--platform=...] <image> [AS <name>]
	fromRe = regexp.MustCompile(`(?i)^FROM\s+(?:--platform=\S+\s+)?(\S+)(?:\s+AS\s+(\S+))?`)
	// COPY [--flags] <src>... <dest>
	copyRe = regexp.MustCompile(`(?i)^COPY\s+(.+)`)
	// ENV <key>=<value>
	envRe = regexp.MustCompile(`(?i)^ENV\s+(.+)`)
	// EXPOSE <port>[/<proto>]
	exposeRe = regexp.MustCompile(`(?i)^EXPOSE\s+(.+)`)
	// CMD <command>
	cmdRe = regexp.MustCompile(`(?i)^CMD\s+(.+)`)
)

// ParseDockerfile reads a Dockerfile from disk.
func ParseDockerfile(path string) (*DockerfileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadDockerfile(f)
}

// ReadDockerfile extracts stages, copies, env, exposed ports and the command.
// This is a regex-based parser, not a full AST. It is enough to check the
// files this tool generates.
func ReadDockerfile(r io.Reader) (*DockerfileInfo, error) {
	info := &DockerfileInfo{}
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if m := fromRe.FindStringSubmatch(line); m != nil {
			stage := Stage{
				BaseImage: m[1],
				Line:      lineNum,
			}
			if len(m) > 2 {
				stage.Name = m[2]
			}
			info.Stages = append(info.Stages, stage)
			continue
		}

		if m := copyRe.FindStringSubmatch(line); m != nil {
			info.Copies = append(info.Copies, m[1])
			continue
		}

		if m := envRe.FindStringSubmatch(line); m != nil {
			info.Env = append(info.Env, m[1])
			continue
		}

		if m := exposeRe.FindStringSubmatch(line); m != nil {
			// EXPOSE can list multiple ports on one line
			info.Expose = append(info.Expose, strings.Fields(m[1])...)
			continue
		}

		if m := cmdRe.FindStringSubmatch(line); m != nil {
			info.Cmd = m[1]
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return info, nil
}
