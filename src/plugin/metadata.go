package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/sofmeright/dockergen/src/descriptor"
)

// MetadataSuffix names the per-module file the compiler emits.
const MetadataSuffix = ".docker.toml"

// Metadata is the parsed package metadata file of one compiled module.
type Metadata struct {
	Path string `toml:"-"`

	Package PackageInfo `toml:"package"`

	// Docker holds the annotation key/value entries. Values are strings,
	// booleans or integers as written in the file.
	Docker map[string]any `toml:"docker"`

	Listeners []Endpoint `toml:"listener"`
	Services  []Endpoint `toml:"service"`

	Copies []CopyBlock `toml:"-"`
}

// PackageInfo identifies the compiled module.
type PackageInfo struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Bundle  string `toml:"bundle"`
}

// Endpoint is a listener or service declaration.
type Endpoint struct {
	Name string `toml:"name"`
	Port int    `toml:"port"`
}

// CopyBlock is one file-copy annotation block.
type CopyBlock struct {
	Source       string `toml:"source"`
	Target       string `toml:"target"`
	IsConfigFile bool   `toml:"isConfigFile"`
}

// copySection re-reads [[docker.copy]] with typed fields.
type copySection struct {
	Docker struct {
		Copy []CopyBlock `toml:"copy"`
	} `toml:"docker"`
}

// LoadMetadata reads a package metadata file.
func LoadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	m, err := ParseMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// ParseMetadata decodes package metadata from TOML.
func ParseMetadata(data []byte) (*Metadata, error) {
	m := &Metadata{}
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, err
	}
	var copies copySection
	if err := toml.Unmarshal(data, &copies); err != nil {
		return nil, err
	}
	m.Copies = copies.Docker.Copy
	delete(m.Docker, "copy")
	return m, nil
}

// UnitID returns the unit identifier: the package name, or the file name
// without its metadata suffix.
func (m *Metadata) UnitID() string {
	if m.Package.Name != "" {
		return m.Package.Name
	}
	return strings.TrimSuffix(filepath.Base(m.Path), MetadataSuffix)
}

// Dir is the directory relative paths in the file resolve against.
func (m *Metadata) Dir() string {
	if m.Path == "" {
		return ""
	}
	return filepath.Dir(m.Path)
}

// IsService reports whether any listener or service is declared.
func (m *Metadata) IsService() bool {
	return len(m.Listeners) > 0 || len(m.Services) > 0
}

// Ports returns every declared listener and service port.
func (m *Metadata) Ports() []int {
	var ports []int
	for _, e := range append(append([]Endpoint{}, m.Listeners...), m.Services...) {
		if e.Port > 0 {
			ports = append(ports, e.Port)
		}
	}
	return ports
}

// CopyFiles converts the copy blocks to descriptor entries.
func (m *Metadata) CopyFiles() []descriptor.CopyFile {
	files := make([]descriptor.CopyFile, 0, len(m.Copies))
	for _, c := range m.Copies {
		files = append(files, descriptor.CopyFile{Source: c.Source, Target: c.Target, IsConfigFile: c.IsConfigFile})
	}
	return files
}
