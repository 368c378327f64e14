package build

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
	"go.uber.org/zap"

	"github.com/sofmeright/dockergen/src/descriptor"
)

// DockerfileName is the name of the generated Dockerfile in the output dir.
const DockerfileName = descriptor.DockerfileName

// IOError reports a failure reading sources or writing artifacts.
type IOError struct {
	Op   string // "mkdir", "write", "copy", "remove"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if errors.Is(e.Err, fs.ErrNotExist) {
		return fmt.Sprintf("%s: %s does not exist", e.Op, e.Path)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Artifacts lists what was written to the output directory.
type Artifacts struct {
	Dir        string
	Dockerfile string
	Bundle     string   // staged copy of the compiled bundle
	Files      []string // staged auxiliary files, in copy order
}

// Writer stages the build context for one descriptor.
type Writer struct {
	// SourceRoot resolves relative copy sources. Empty means the working
	// directory.
	SourceRoot string
	Log        *zap.Logger
}

// Write creates outputDir, writes the rendered Dockerfile, and copies the
// bundle and every auxiliary file into it. A missing source is reported as
// an *IOError that satisfies errors.Is(err, fs.ErrNotExist). Files written
// before a failure are left in place.
func (w *Writer) Write(d *descriptor.Descriptor, rendered, outputDir, bundlePath string) (*Artifacts, error) {
	log := w.logger()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir", Path: outputDir, Err: err}
	}

	art := &Artifacts{
		Dir:        outputDir,
		Dockerfile: filepath.Join(outputDir, DockerfileName),
	}
	if err := atomicwriter.WriteFile(art.Dockerfile, []byte(rendered), 0o644); err != nil {
		return nil, &IOError{Op: "write", Path: art.Dockerfile, Err: err}
	}
	log.Debug("wrote dockerfile", zap.String("path", art.Dockerfile))

	bundleSrc, err := w.resolve(bundlePath)
	if err != nil {
		return art, err
	}
	art.Bundle = filepath.Join(outputDir, d.BundleName)
	if err := copyFile(bundleSrc, art.Bundle); err != nil {
		return art, err
	}

	for _, f := range d.SortedCopyFiles() {
		src, err := w.resolve(f.Source)
		if err != nil {
			return art, err
		}
		dst := filepath.Join(outputDir, f.FileName())
		if err := copyFile(src, dst); err != nil {
			return art, err
		}
		art.Files = append(art.Files, dst)
		log.Debug("staged file", zap.String("source", src), zap.String("target", f.Target))
	}

	return art, nil
}

// RemoveStagedBundle deletes the bundle copy once the image holds it.
func RemoveStagedBundle(art *Artifacts) error {
	if art == nil || art.Bundle == "" {
		return nil
	}
	if err := os.Remove(art.Bundle); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &IOError{Op: "remove", Path: art.Bundle, Err: err}
	}
	return nil
}

func (w *Writer) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) && w.SourceRoot != "" {
		path = filepath.Join(w.SourceRoot, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &IOError{Op: "copy", Path: path, Err: err}
	}
	return abs, nil
}

func (w *Writer) logger() *zap.Logger {
	if w.Log == nil {
		return zap.NewNop()
	}
	return w.Log
}

// copyFile copies a regular file, keeping its permission bits.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return &IOError{Op: "copy", Path: src, Err: err}
	}
	if info.IsDir() {
		return &IOError{Op: "copy", Path: src, Err: errors.New("is a directory")}
	}

	in, err := os.Open(src)
	if err != nil {
		return &IOError{Op: "copy", Path: src, Err: err}
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return &IOError{Op: "copy", Path: dst, Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return &IOError{Op: "copy", Path: dst, Err: err}
	}
	if err := out.Close(); err != nil {
		return &IOError{Op: "copy", Path: dst, Err: err}
	}
	return nil
}
