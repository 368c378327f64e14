// Package plugin connects compiled-module metadata to Dockerfile
// generation and image builds.
//
// A Plugin holds only shared collaborators. Every compiled unit gets its
// own Unit from BeginPackage, so independent units can be processed
// concurrently without sharing descriptor state.
package plugin

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/sofmeright/dockergen/src/build"
	"github.com/sofmeright/dockergen/src/config"
	"github.com/sofmeright/dockergen/src/descriptor"
	"github.com/sofmeright/dockergen/src/engine"
	"github.com/sofmeright/dockergen/src/gitver"
	"github.com/sofmeright/dockergen/src/lint"
	_ "github.com/sofmeright/dockergen/src/lint/modules"
	"github.com/sofmeright/dockergen/src/output"
	"github.com/sofmeright/dockergen/src/registry"
)

// Opener opens an engine connection for one unit.
type Opener func(conn engine.Connection) (engine.Engine, error)

// Plugin generates Docker artifacts for compiled units.
type Plugin struct {
	Config *config.Config
	Log    *zap.Logger

	// Out receives user-facing progress unless a Unit overrides it.
	Out io.Writer

	// OpenEngine defaults to the engine named in the config.
	OpenEngine Opener

	// Credentials defaults to a resolver over the process environment.
	Credentials *registry.Resolver

	// LookupEnv resolves $env{} references. Defaults to os.LookupEnv.
	LookupEnv descriptor.LookupFunc

	// NoBuild stops after writing artifacts, whatever the annotations say.
	NoBuild bool
}

// New returns a plugin using cfg and the registered engines.
func New(cfg *config.Config, log *zap.Logger) *Plugin {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Plugin{
		Config:      cfg,
		Log:         log,
		Out:         os.Stdout,
		Credentials: registry.NewResolver(log),
		LookupEnv:   os.LookupEnv,
	}
	p.OpenEngine = func(conn engine.Connection) (engine.Engine, error) {
		return engine.Open(cfg.Engine.Name, conn, log.Named("engine"))
	}
	return p
}

// Unit is the per-package context: an assembler plus where its output goes.
type Unit struct {
	ID string

	// SourceRoot resolves relative bundle and copy paths.
	SourceRoot string
	Out        io.Writer

	plugin    *Plugin
	assembler *descriptor.Assembler
	log       *zap.Logger
}

// PackageOptions describe the package a unit is generated for.
type PackageOptions struct {
	Name       string // fallback image name
	Version    string // for {pkg.version} tags
	SourceRoot string
}

// BeginPackage starts a new unit. The caller owns the returned Unit.
func (p *Plugin) BeginPackage(unitID string, pkg PackageOptions) *Unit {
	name := pkg.Name
	if name == "" {
		name = unitID
	}
	return &Unit{
		ID:         unitID,
		SourceRoot: pkg.SourceRoot,
		Out:        p.Out,
		plugin:     p,
		log:        p.logger().With(zap.String("unit", unitID)),
		assembler: descriptor.NewAssembler(unitID, descriptor.Options{
			Runtime:     p.Config.Runtime,
			PackageName: name,
			LookupEnv:   p.LookupEnv,
			ResolveTag:  gitver.NewResolver(pkg.SourceRoot, pkg.Version).Resolve,
		}),
	}
}

// ProcessAnnotations applies annotation key/value pairs.
func (u *Unit) ProcessAnnotations(values map[string]any) error {
	return u.assembler.SetAll(values)
}

// AddCopyFile applies one file-copy annotation block.
func (u *Unit) AddCopyFile(f descriptor.CopyFile) error {
	return u.assembler.AddCopyFile(f)
}

// AddEndpoint records a listener or service; its port is exposed.
func (u *Unit) AddEndpoint(port int) {
	u.assembler.MarkService()
	if port > 0 {
		u.assembler.AddPorts(port)
	}
}

// SetBundle records the compiled bundle path.
func (u *Unit) SetBundle(path string) {
	u.assembler.SetBundle(path)
}

// Descriptor finalizes and returns the unit's descriptor.
func (u *Unit) Descriptor() (*descriptor.Descriptor, error) {
	return u.assembler.Finalize()
}

// Render finalizes the descriptor and renders its Dockerfile.
func (u *Unit) Render() (string, error) {
	d, err := u.Descriptor()
	if err != nil {
		return "", err
	}
	return build.Render(d), nil
}

// Complete finalizes the descriptor, writes artifacts to outputDir and,
// when enabled, builds and pushes the image. The result is returned even
// on failure, filled in as far as the unit got.
func (u *Unit) Complete(ctx context.Context, outputDir string) (*build.Result, error) {
	start := time.Now()
	res := &build.Result{Unit: u.ID}
	defer func() { res.Duration = time.Since(start) }()

	stepStart := time.Now()
	d, err := u.Descriptor()
	if err != nil {
		res.Step("assemble", "failed", stepStart)
		return res, err
	}
	res.Descriptor = d
	res.Dockerfile = build.Render(d)
	res.Step("assemble", "success", stepStart)

	doBuild := d.BuildImage && !u.plugin.NoBuild
	total := 1
	if doBuild {
		total++
		if d.ShouldPush() {
			total++
		}
	}
	progress := output.NewProgress(u.Out, "docker", total)

	stepStart = time.Now()
	writer := &build.Writer{SourceRoot: u.SourceRoot, Log: u.log}
	bundle := u.assembler.BundlePath()
	res.Artifacts, err = writer.Write(d, res.Dockerfile, outputDir, bundle)
	if err != nil {
		res.Step("write", "failed", stepStart)
		return res, err
	}
	res.Step("write", "success", stepStart)
	progress.Step()

	if err := u.scan(res); err != nil {
		return res, err
	}
	if err := u.runLint(ctx, res); err != nil {
		return res, err
	}

	if !doBuild {
		u.log.Info("image build disabled", zap.String("output", outputDir))
		res.Step("build", "skipped", time.Now())
		return res, nil
	}

	eng, err := u.plugin.OpenEngine(u.connection(d))
	if err != nil {
		res.Step("build", "failed", time.Now())
		return res, &engine.BuildError{Image: d.Name, Msg: engine.Canonicalize(err), Err: err}
	}
	defer eng.Close()

	orch := engine.NewOrchestrator(eng, u.log)
	orch.BuildTimeout = u.plugin.Config.Engine.Timeouts.Build
	orch.PushTimeout = u.plugin.Config.Engine.Timeouts.Push
	orch.NoCache = u.plugin.Config.Engine.NoCache
	orch.Pull = u.plugin.Config.Engine.Pull
	orch.Progress = func(line string) { u.log.Debug(line) }

	stepStart = time.Now()
	res.ImageID, err = orch.Build(ctx, d, res.Artifacts.Dir)
	if err != nil {
		res.Step("build", "failed", stepStart)
		return res, err
	}
	res.Built = true
	res.Step("build", "success", stepStart)
	progress.Step()

	if err := build.RemoveStagedBundle(res.Artifacts); err != nil {
		u.log.Warn("could not remove staged bundle", zap.Error(err))
	}

	if d.ShouldPush() {
		stepStart = time.Now()
		creds, source := u.plugin.credentials().Resolve(d.RegistryHost(), d.Username, d.Password)
		u.log.Debug("push credentials", zap.String("source", string(source)))
		res.Digest, err = orch.Push(ctx, d, creds)
		if err != nil {
			res.Step("push", "failed", stepStart)
			return res, err
		}
		res.Pushed = true
		res.Step("push", "success", stepStart)
		progress.Step()
	}

	var ports []int
	if d.IsService {
		ports = d.Ports
	}
	output.Instructions(u.Out, d.Name, ports)
	return res, nil
}

// scan checks staged auxiliary files for leaked credentials.
func (u *Unit) scan(res *build.Result) error {
	cfg := u.plugin.Config.Secrets
	if !cfg.Scan || len(res.Artifacts.Files) == 0 {
		return nil
	}
	stepStart := time.Now()
	var scanner build.SecretScanner
	findings, err := scanner.Scan(res.Artifacts.Files)
	if err != nil {
		res.Step("scan", "failed", stepStart)
		return err
	}
	res.Secrets = findings
	for _, f := range findings {
		u.log.Warn("probable secret in staged file",
			zap.String("file", f.File), zap.Int("line", f.Line), zap.String("rule", f.RuleID))
	}
	if len(findings) > 0 && cfg.Fail {
		res.Step("scan", "failed", stepStart)
		return &build.IOError{Op: "scan", Path: findings[0].File, Err: build.ErrSecretsFound}
	}
	res.Step("scan", "success", stepStart)
	return nil
}

// runLint runs the build-context checks over the Dockerfile and staged files.
func (u *Unit) runLint(ctx context.Context, res *build.Result) error {
	cfg := u.plugin.Config.Lint
	if !cfg.Enabled {
		return nil
	}
	stepStart := time.Now()
	eng, err := lint.NewEngine(cfg, u.log.Named("lint"))
	if err != nil {
		res.Step("lint", "failed", stepStart)
		return err
	}

	u.log.Debug("linting build context", zap.Strings("modules", eng.ModuleNames()))
	paths := append([]string{res.Artifacts.Dockerfile}, res.Artifacts.Files...)
	files, err := lint.ContextFiles(res.Artifacts.Dir, paths)
	if err != nil {
		res.Step("lint", "failed", stepStart)
		return &build.IOError{Op: "lint", Path: res.Artifacts.Dir, Err: err}
	}

	res.Lint, err = eng.Run(ctx, files)
	if err != nil {
		u.log.Warn("lint incomplete", zap.Error(err))
	}
	for _, f := range res.Lint {
		u.log.Info("lint finding",
			zap.String("file", f.File), zap.Int("line", f.Line),
			zap.String("module", f.Module), zap.Stringer("severity", f.Severity), zap.String("message", f.Message))
	}

	if crit := lint.Critical(res.Lint); len(crit) > 0 && cfg.Fail {
		res.Step("lint", "failed", stepStart)
		return &build.IOError{Op: "lint", Path: crit[0].File, Err: lint.ErrCritical}
	}
	res.Step("lint", "success", stepStart)
	return nil
}

// connection picks the engine endpoint: annotations override the config.
func (u *Unit) connection(d *descriptor.Descriptor) engine.Connection {
	conn := engine.Connection{
		Host:     u.plugin.Config.Engine.Host,
		CertPath: u.plugin.Config.Engine.CertPath,
	}
	if d.EngineHost != "" {
		conn.Host = d.EngineHost
	}
	if d.EngineCertPath != "" {
		conn.CertPath = d.EngineCertPath
	}
	return conn
}

// ProcessFile replays a metadata file through the unit callbacks and
// completes the unit into outputDir.
func (p *Plugin) ProcessFile(ctx context.Context, m *Metadata, outputDir string) (*build.Result, error) {
	u, err := p.Load(m)
	if err != nil {
		return &build.Result{Unit: m.UnitID()}, err
	}
	return u.Complete(ctx, outputDir)
}

// Load begins a unit for m and applies every annotation in it.
func (p *Plugin) Load(m *Metadata) (*Unit, error) {
	u := p.BeginPackage(m.UnitID(), PackageOptions{
		Name:       m.Package.Name,
		Version:    m.Package.Version,
		SourceRoot: m.Dir(),
	})
	if err := u.ProcessAnnotations(m.Docker); err != nil {
		return nil, err
	}
	for _, f := range m.CopyFiles() {
		if err := u.AddCopyFile(f); err != nil {
			return nil, err
		}
	}
	if m.IsService() {
		u.assembler.MarkService()
		for _, port := range m.Ports() {
			u.AddEndpoint(port)
		}
	}
	if m.Package.Bundle == "" {
		return nil, &descriptor.ConfigError{Unit: u.ID, Key: "bundle", Msg: "package.bundle is not set"}
	}
	u.SetBundle(m.Package.Bundle)
	return u, nil
}

// OutputDir is the unit's directory under the configured output root.
func (p *Plugin) OutputDir(root, unitID string) string {
	if root == "" {
		root = p.Config.Output.Dir
	}
	return filepath.Join(root, unitID)
}

// IsConfigError reports whether err came from descriptor assembly.
func IsConfigError(err error) bool {
	var ce *descriptor.ConfigError
	return errors.As(err, &ce)
}

func (p *Plugin) credentials() *registry.Resolver {
	if p.Credentials == nil {
		return registry.NewResolver(p.logger())
	}
	return p.Credentials
}

func (p *Plugin) logger() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}
