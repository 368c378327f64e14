package descriptor

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// TagResolver expands template placeholders in an image tag, e.g. {sha}.
type TagResolver func(tag string) (string, error)

// Options configure an Assembler. The zero value is usable.
type Options struct {
	Runtime Runtime

	// Windows selects the windows variant of the runtime image when the
	// annotations do not set it explicitly.
	Windows bool

	// PackageName is the fallback short image name.
	PackageName string

	// LookupEnv resolves $env{} references. Defaults to os.LookupEnv.
	LookupEnv LookupFunc

	// ResolveTag expands tag templates after env substitution.
	ResolveTag TagResolver
}

// partial is the descriptor state accumulated across callbacks.
type partial struct {
	name           string
	registry       string
	tag            string
	username       string
	password       string
	baseImage      string
	engineHost     string
	engineCertPath string
	cmd            string
	commandArg     string
	push           bool
	buildImage     bool
	enableDebug    bool
	windows        bool
	debugPort      int
	isService      bool
	bundlePath     string
}

// Assembler accumulates annotation values for a single compilation unit.
// It is not safe for concurrent use; each unit owns its own Assembler.
type Assembler struct {
	unit      string
	opts      Options
	lookup    LookupFunc
	p         partial
	ports     map[int]struct{}
	copyFiles []CopyFile
	env       map[string]string
	final     *Descriptor
}

// NewAssembler starts a descriptor for the given compilation unit.
func NewAssembler(unit string, opts Options) *Assembler {
	if opts.Runtime == (Runtime{}) {
		opts.Runtime = DefaultRuntime()
	}
	return &Assembler{
		unit:   unit,
		opts:   opts,
		lookup: opts.LookupEnv,
		p: partial{
			tag:        DefaultTag,
			debugPort:  DefaultDebugPort,
			buildImage: true,
			windows:    opts.Windows,
		},
		ports: make(map[int]struct{}),
		env:   make(map[string]string),
	}
}

// Set applies one annotation key/value pair. Unknown keys are ignored.
func (a *Assembler) Set(key string, value any) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	set, ok := setters[key]
	if !ok {
		return nil
	}
	return set(a, key, value)
}

// SetAll applies annotation pairs in key order so that errors are reported
// deterministically.
func (a *Assembler) SetAll(values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := a.Set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// AddCopyFile records one file-copy annotation block. A second entry marked
// as the config file fails immediately.
func (a *Assembler) AddCopyFile(f CopyFile) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	src, err := a.expand("copy.source", f.Source)
	if err != nil {
		return err
	}
	target, err := a.expand("copy.target", f.Target)
	if err != nil {
		return err
	}
	f.Source, f.Target = src, target
	if f.Source == "" || f.Target == "" {
		return a.configErr("copy", "source and target are required", nil)
	}

	for _, existing := range a.copyFiles {
		if existing == f {
			return nil
		}
	}
	name := f.FileName()
	if name == DockerfileName {
		return a.configErr("copy", fmt.Sprintf("%s would overwrite the generated Dockerfile", f.Source), nil)
	}
	for _, existing := range a.copyFiles {
		if existing.FileName() == name {
			return a.configErr("copy",
				fmt.Sprintf("%s and %s both stage as %s in the build context", existing.Source, f.Source, name), nil)
		}
	}

	if f.IsConfigFile {
		if prev, ok := a.configFile(); ok {
			return a.configErr("copy",
				fmt.Sprintf("cannot mark %s as config file: %s is already the config file", f.Source, prev.Source), nil)
		}
		a.env[ConfigFileEnv] = f.Target
	}
	a.copyFiles = append(a.copyFiles, f)
	return nil
}

// AddPorts merges ports discovered from listener declarations.
func (a *Assembler) AddPorts(ports ...int) {
	for _, p := range ports {
		a.ports[p] = struct{}{}
	}
}

// MarkService records that the unit declares at least one service, which
// enables EXPOSE lines.
func (a *Assembler) MarkService() { a.p.isService = true }

// SetBundle records the path of the compiled bundle.
func (a *Assembler) SetBundle(path string) { a.p.bundlePath = path }

// Finalize runs every cross-field check once and returns the descriptor.
// Later calls return the same descriptor.
func (a *Assembler) Finalize() (*Descriptor, error) {
	if a.final != nil {
		return a.final, nil
	}
	p := a.p

	if p.bundlePath == "" {
		return nil, a.configErr("bundle", "compiled bundle path is not set", nil)
	}

	shortName := p.name
	if shortName == "" {
		shortName = a.opts.PackageName
	}
	shortName = strings.ToLower(shortName)
	if shortName == "" {
		return nil, a.configErr(KeyName, "image name is empty and no package name is known", nil)
	}

	tag := p.tag
	if tag == "" {
		tag = DefaultTag
	}
	if a.opts.ResolveTag != nil && strings.Contains(tag, "{") {
		resolved, err := a.opts.ResolveTag(tag)
		if err != nil {
			return nil, a.configErr(KeyTag, "cannot resolve tag template", err)
		}
		tag = resolved
	}

	baseImage := p.baseImage
	if baseImage == "" {
		baseImage = a.opts.Runtime.BaseImage(p.windows)
	}

	ports := make(map[int]struct{}, len(a.ports)+1)
	for port := range a.ports {
		ports[port] = struct{}{}
	}
	if p.enableDebug {
		ports[p.debugPort] = struct{}{}
	}
	sorted := make([]int, 0, len(ports))
	for port := range ports {
		sorted = append(sorted, port)
	}
	sort.Ints(sorted)

	env := make(map[string]string, len(a.env))
	for k, v := range a.env {
		env[k] = v
	}
	files := make([]CopyFile, len(a.copyFiles))
	copy(files, a.copyFiles)
	bundleName := filepath.Base(p.bundlePath)
	for _, f := range files {
		if f.FileName() == bundleName {
			return nil, a.configErr("copy", fmt.Sprintf("%s would overwrite the bundle %s", f.Source, bundleName), nil)
		}
	}

	d := &Descriptor{
		Unit:           a.unit,
		Name:           ComposeName(p.registry, shortName, tag),
		ShortName:      shortName,
		Registry:       p.registry,
		Tag:            tag,
		BaseImage:      baseImage,
		BundleName:     bundleName,
		Ports:          sorted,
		CopyFiles:      files,
		Env:            env,
		CommandArg:     strings.TrimSpace(p.commandArg),
		Cmd:            p.cmd,
		EnableDebug:    p.enableDebug,
		DebugPort:      p.debugPort,
		BuildImage:     p.buildImage,
		Push:           p.push,
		Username:       p.username,
		Password:       p.password,
		EngineHost:     p.engineHost,
		EngineCertPath: p.engineCertPath,
		IsService:      p.isService,
		Windows:        p.windows,
		Runtime:        a.opts.Runtime,
	}
	if err := a.validate(d); err != nil {
		return nil, err
	}
	a.final = d
	return d, nil
}

// BundlePath returns the bundle path recorded with SetBundle.
func (a *Assembler) BundlePath() string { return a.p.bundlePath }

// ComposeName builds the image reference [registry/]name:tag.
func ComposeName(registry, name, tag string) string {
	ref := name
	if registry != "" {
		ref = registry + "/" + name
	}
	return ref + ":" + tag
}

var validate = newValidator()

// tagPattern is the reference grammar for a tag: a word character followed
// by up to 127 word characters, dots or dashes.
var tagPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]{0,127}$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("dockertag", func(fl validator.FieldLevel) bool {
		return tagPattern.MatchString(fl.Field().String())
	})
	return v
}

func (a *Assembler) validate(d *Descriptor) error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return a.configErr("", "invalid descriptor", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return a.configErr("", strings.Join(msgs, "; "), nil)
}

func (a *Assembler) configFile() (CopyFile, bool) {
	for _, f := range a.copyFiles {
		if f.IsConfigFile {
			return f, true
		}
	}
	return CopyFile{}, false
}

func (a *Assembler) checkOpen() error {
	if a.final != nil {
		return a.configErr("", "descriptor already finalized", nil)
	}
	return nil
}

func (a *Assembler) configErr(key, msg string, err error) error {
	return &ConfigError{Unit: a.unit, Key: key, Msg: msg, Err: err}
}
