package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sofmeright/dockergen/src/build"
	"github.com/sofmeright/dockergen/src/output"
	"github.com/sofmeright/dockergen/src/plugin"
)

var (
	genOutput    string
	genDryRun    bool
	genNoBuild   bool
	genJobs      int
	genReportDir string
)

var generateCmd = &cobra.Command{
	Use:   "generate [metadata.docker.toml...]",
	Short: "Generate Dockerfiles and build images for compiled modules",
	Long: `Generate writes a Dockerfile and build context for every package metadata
file, then builds and pushes the image when the annotations ask for it.

With no arguments, every *.docker.toml below the working directory is used.
Units are independent: a failing unit does not stop the others.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "output root (default: output.dir from config)")
	generateCmd.Flags().BoolVar(&genDryRun, "dry-run", false, "render Dockerfiles to stdout without writing or building")
	generateCmd.Flags().BoolVar(&genNoBuild, "no-build", false, "write artifacts only, never call the engine")
	generateCmd.Flags().IntVarP(&genJobs, "jobs", "j", 0, "units processed in parallel (default: jobs from config)")
	generateCmd.Flags().StringVar(&genReportDir, "report-dir", "", "write a JUnit report to this directory")

	rootCmd.AddCommand(generateCmd)
}

// unitRun is the outcome of one metadata file.
type unitRun struct {
	path   string
	unit   string
	meta   *plugin.Metadata
	dir    string
	out    bytes.Buffer
	result *build.Result
	err    error
}

func runGenerate(cmd *cobra.Command, args []string) error {
	paths := args
	if len(paths) == 0 {
		found, err := discoverMetadata(".")
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return fmt.Errorf("no *%s files found", plugin.MetadataSuffix)
		}
		paths = found
	}

	w := cmd.OutOrStdout()
	color := output.UseColor()

	if genDryRun {
		return renderAll(w, paths)
	}

	p := plugin.New(cfg, logger)
	p.NoBuild = genNoBuild

	jobs := genJobs
	if jobs <= 0 {
		jobs = cfg.Jobs
	}

	start := time.Now()
	runs := loadRuns(paths)
	claimOutputDirs(p, runs)

	var g errgroup.Group
	g.SetLimit(jobs)
	for _, run := range runs {
		if run.err != nil {
			continue
		}
		g.Go(func() error {
			generateUnit(cmd.Context(), p, run)
			return nil
		})
	}
	_ = g.Wait()

	// Units write into their own buffers; flush them in argument order.
	for _, run := range runs {
		if output.IsCI() {
			output.SectionStartCollapsed(w, "dockergen_"+sectionID(run.unit), "dockergen "+run.unit)
		}
		_, _ = io.Copy(w, &run.out)
		printUnitSummary(w, run, color)
		if output.IsCI() {
			output.SectionEnd(w, "dockergen_"+sectionID(run.unit))
		}
	}

	elapsed := time.Since(start)
	failed := printTotals(w, runs, elapsed, color)

	if genReportDir != "" {
		if err := output.WriteJUnit(genReportDir, outcomes(runs), elapsed); err != nil {
			logger.Warn("could not write report", zap.Error(err))
		}
	}

	for _, run := range runs {
		if run.err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", run.unit, run.err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d units failed", failed, len(runs))
	}
	return nil
}

// loadRuns reads every metadata file. A file that cannot be read becomes a
// failed run named after the file.
func loadRuns(paths []string) []*unitRun {
	runs := make([]*unitRun, len(paths))
	for i, path := range paths {
		run := &unitRun{path: path}
		runs[i] = run
		m, err := plugin.LoadMetadata(path)
		if err != nil {
			run.unit = strings.TrimSuffix(filepath.Base(path), plugin.MetadataSuffix)
			run.err = err
			continue
		}
		run.unit = m.UnitID()
		run.meta = m
	}
	return runs
}

// claimOutputDirs gives each loaded run its output directory. The first run
// in argument order owns a directory; later runs resolving to the same one
// fail without touching it.
func claimOutputDirs(p *plugin.Plugin, runs []*unitRun) {
	owners := make(map[string]string, len(runs))
	for _, run := range runs {
		if run.err != nil {
			continue
		}
		dir := p.OutputDir(genOutput, run.unit)
		if owner, ok := owners[dir]; ok {
			run.err = fmt.Errorf("unit %s from %s: output directory %s is already used by %s",
				run.unit, run.path, dir, owner)
			continue
		}
		owners[dir] = run.path
		run.dir = dir
	}
}

// generateUnit processes one loaded metadata file into run.dir. Errors stay
// in run.
func generateUnit(ctx context.Context, p *plugin.Plugin, run *unitRun) {
	u, err := p.Load(run.meta)
	if err != nil {
		run.result = &build.Result{Unit: run.unit}
		run.err = err
		return
	}
	u.Out = &run.out

	run.result, run.err = u.Complete(ctx, run.dir)
	if run.err != nil && !cfg.Output.KeepOnFailure {
		if err := os.RemoveAll(run.dir); err != nil {
			logger.Warn("could not remove output", zap.String("dir", run.dir), zap.Error(err))
		}
	}
}

func renderAll(w io.Writer, paths []string) error {
	p := plugin.New(cfg, logger)
	for i, path := range paths {
		m, err := plugin.LoadMetadata(path)
		if err != nil {
			return err
		}
		u, err := p.Load(m)
		if err != nil {
			return err
		}
		text, err := u.Render()
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "# %s\n%s", u.ID, text)
	}
	return nil
}

func printUnitSummary(w io.Writer, run *unitRun, color bool) {
	var elapsed time.Duration
	if run.result != nil {
		elapsed = run.result.Duration
	}
	sec := output.NewSection(w, run.unit, elapsed, color)
	defer sec.Close()

	if run.result == nil || run.result.Descriptor == nil {
		output.RowStatus(sec, "assemble", errSummary(run.err), "failed", color)
		return
	}
	res := run.result
	sec.KV("image", res.Image())

	if res.Artifacts != nil {
		if info, err := build.ParseDockerfile(res.Artifacts.Dockerfile); err == nil {
			sec.KV("base", info.BaseImage())
			if len(info.Expose) > 0 {
				sec.KV("expose", strings.Join(info.Expose, " "))
			}
		}
		sec.KV("output", res.Artifacts.Dir)
	}
	if len(res.Secrets) > 0 || len(res.Lint) > 0 {
		findings := make([]output.Finding, 0, len(res.Secrets)+len(res.Lint))
		for _, s := range res.Secrets {
			file := s.File
			if rel, err := filepath.Rel(res.Artifacts.Dir, s.File); err == nil {
				file = rel
			}
			findings = append(findings, output.Finding{File: file, Line: s.Line, Rule: s.RuleID, Message: s.Desc})
		}
		for _, f := range res.Lint {
			findings = append(findings, output.Finding{
				File: f.File, Line: f.Line, Rule: f.Module,
				Message: fmt.Sprintf("%s: %s", f.Severity, f.Message),
			})
		}
		output.SectionFindings(sec, findings, color)
	}

	sec.Separator()
	for _, step := range res.Steps {
		detail := output.Dimmed(step.Duration.Round(time.Millisecond).String(), color)
		output.RowStatus(sec, step.Name, detail, step.Status, color)
	}
	if res.Digest != "" {
		sec.KV("digest", res.Digest)
	}
	if run.err != nil {
		sec.Row("%s", errSummary(run.err))
	}
}

func printTotals(w io.Writer, runs []*unitRun, elapsed time.Duration, color bool) int {
	failed := 0
	fmt.Fprintln(w)
	for _, run := range runs {
		status, detail := "success", ""
		if run.result != nil {
			detail = run.result.Image()
		}
		if run.err != nil {
			status = "failed"
			failed++
		}
		output.SummaryRow(w, run.unit, status, detail, color)
	}
	overall := "success"
	if failed > 0 {
		overall = "failed"
	}
	output.SummaryTotal(w, elapsed, overall, color)
	return failed
}

func outcomes(runs []*unitRun) []output.UnitOutcome {
	out := make([]output.UnitOutcome, 0, len(runs))
	for _, run := range runs {
		o := output.UnitOutcome{Unit: run.unit, Err: run.err}
		if run.result != nil {
			o.Image = run.result.Image()
			o.Elapsed = run.result.Duration
		}
		out = append(out, o)
	}
	return out
}

// discoverMetadata finds metadata files below root, skipping hidden
// directories and the configured output directory.
func discoverMetadata(root string) ([]string, error) {
	skip := filepath.Clean(cfg.Output.Dir)
	if !filepath.IsAbs(skip) {
		skip = filepath.Join(root, skip)
	}
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || filepath.Clean(path) == skip) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), plugin.MetadataSuffix) {
			found = append(found, path)
		}
		return nil
	})
	return found, err
}

func sectionID(unit string) string {
	return strings.NewReplacer("/", "_", ".", "_", "-", "_", " ", "_").Replace(unit)
}

func errSummary(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
