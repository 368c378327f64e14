// Package descriptor holds the deployment descriptor: every fact needed to
// render a Dockerfile for a compiled module and to drive its image build.
//
// Descriptors are never built directly. An Assembler accumulates annotation
// values for one compilation unit and Finalize produces the immutable
// Descriptor after all cross-field invariants have been checked.
package descriptor

import (
	"path/filepath"
	"sort"
	"strings"
)

const (
	DefaultTag       = "latest"
	DefaultDebugPort = 5005

	// ConfigFileEnv is the environment variable pointing at the config
	// file inside the image. It is set when a copy entry is marked as the
	// runtime configuration file.
	ConfigFileEnv = "CONFIG_FILE"

	// DockerfileName is the generated Dockerfile inside the build context.
	DockerfileName = "Dockerfile"
)

// Runtime describes the language runtime image the bundle is run on.
type Runtime struct {
	Image       string `yaml:"image"`      // repository of the runtime image
	Version     string `yaml:"version"`    // runtime image tag
	Executable  string `yaml:"executable"` // launcher inside the image
	Home        string `yaml:"home"`       // directory the bundle is copied to
	WindowsHome string `yaml:"windows_home"`
	Maintainer  string `yaml:"maintainer"`
}

// DefaultRuntime returns the runtime used when no configuration overrides it.
func DefaultRuntime() Runtime {
	return Runtime{
		Image:       "ballerina/ballerina-runtime",
		Version:     "0.990.0",
		Executable:  "ballerina",
		Home:        "/home/ballerina",
		WindowsHome: `C:\ballerina\home`,
		Maintainer:  "dev@ballerina.io",
	}
}

// BaseImage returns the default base image for the runtime. The windows
// variant is selected by the build flag alone.
func (r Runtime) BaseImage(windows bool) string {
	img := r.Image + ":" + r.Version
	if windows {
		img += "-windows"
	}
	return img
}

// HomeDir returns the directory the bundle is copied to inside the image.
func (r Runtime) HomeDir(windows bool) string {
	if windows && r.WindowsHome != "" {
		return r.WindowsHome
	}
	return r.Home
}

// CopyFile is one auxiliary file copied into the image.
type CopyFile struct {
	Source       string `validate:"required"`
	Target       string `validate:"required"`
	IsConfigFile bool
}

// FileName is the name the source file gets in the build context.
func (f CopyFile) FileName() string {
	return filepath.Base(filepath.FromSlash(f.Source))
}

// Descriptor is the aggregate build specification for one compiled module.
type Descriptor struct {
	Unit string

	// Name is the fully composed image reference: [registry/]name:tag.
	Name      string `validate:"required"`
	ShortName string `validate:"required,excludesall=/:@"`
	Registry  string
	Tag       string `validate:"required,max=128,dockertag"`
	BaseImage string `validate:"required"`

	// BundleName is the file name of the compiled bundle inside the image.
	BundleName string `validate:"required"`

	// Ports is sorted ascending with no duplicates.
	Ports     []int      `validate:"dive,min=0,max=65535"`
	CopyFiles []CopyFile `validate:"dive"`
	Env       map[string]string

	CommandArg string
	Cmd        string

	EnableDebug bool
	DebugPort   int `validate:"min=1,max=65535"`

	BuildImage bool
	Push       bool

	Username       string
	Password       string
	EngineHost     string
	EngineCertPath string

	IsService bool
	Windows   bool
	Runtime   Runtime
}

// HomeDir is the directory the bundle lands in inside the image.
func (d *Descriptor) HomeDir() string {
	return d.Runtime.HomeDir(d.Windows)
}

// ConfigFile returns the entry marked as the runtime configuration file.
func (d *Descriptor) ConfigFile() (CopyFile, bool) {
	for _, f := range d.CopyFiles {
		if f.IsConfigFile {
			return f, true
		}
	}
	return CopyFile{}, false
}

// SortedCopyFiles returns the copy entries in a stable order (target, then
// source) independent of how they were declared.
func (d *Descriptor) SortedCopyFiles() []CopyFile {
	files := make([]CopyFile, len(d.CopyFiles))
	copy(files, d.CopyFiles)
	sort.Slice(files, func(i, j int) bool {
		if files[i].Target != files[j].Target {
			return files[i].Target < files[j].Target
		}
		return files[i].Source < files[j].Source
	})
	return files
}

// SortedEnv returns env keys in lexicographic order.
func (d *Descriptor) SortedEnv() []string {
	keys := make([]string, 0, len(d.Env))
	for k := range d.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasPort reports whether port is exposed.
func (d *Descriptor) HasPort(port int) bool {
	i := sort.SearchInts(d.Ports, port)
	return i < len(d.Ports) && d.Ports[i] == port
}

// ShouldPush reports whether a successful build is followed by a push.
func (d *Descriptor) ShouldPush() bool {
	return d.BuildImage && d.Push
}

// RegistryHost returns the host part of the registry, or "" for the
// default registry. As with docker, the first path segment is a host only
// if it contains "." or ":" or is "localhost".
func (d *Descriptor) RegistryHost() string {
	host, _, _ := strings.Cut(d.Registry, "/")
	if host == "localhost" || strings.ContainsAny(host, ".:") {
		return host
	}
	return ""
}
