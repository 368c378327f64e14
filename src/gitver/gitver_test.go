package gitver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func commitFile(t *testing.T, repo *git.Repository, dir, name, content string) plumbing.Hash {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add(name); err != nil {
		t.Fatal(err)
	}
	hash, err := wt.Commit("update "+name, &git.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}
	return hash
}

func initRepo(t *testing.T) (*git.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	return repo, dir
}

func TestDetectVersionUntagged(t *testing.T) {
	repo, dir := initRepo(t)
	hash := commitFile(t, repo, dir, "a.txt", "a")

	v, err := DetectVersion(dir)
	if err != nil {
		t.Fatalf("DetectVersion: %v", err)
	}
	if v.SHA != hash.String() {
		t.Errorf("SHA = %q, want %q", v.SHA, hash)
	}
	if v.Base != "0.0.0" || v.IsRelease {
		t.Errorf("untagged repo: base=%q release=%v", v.Base, v.IsRelease)
	}
	if want := "0.0.0-dev+" + hash.String()[:7]; v.Version != want {
		t.Errorf("Version = %q, want %q", v.Version, want)
	}
	if v.Branch == "" {
		t.Error("branch not detected")
	}
}

func TestDetectVersionTaggedHead(t *testing.T) {
	repo, dir := initRepo(t)
	hash := commitFile(t, repo, dir, "a.txt", "a")
	if _, err := repo.CreateTag("v1.4.2", hash, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateTag("not-a-version", hash, nil); err != nil {
		t.Fatal(err)
	}

	v, err := DetectVersion(dir)
	if err != nil {
		t.Fatalf("DetectVersion: %v", err)
	}
	if v.Version != "1.4.2" || !v.IsRelease {
		t.Errorf("Version = %q release=%v, want 1.4.2 release", v.Version, v.IsRelease)
	}
	if v.Major != "1" || v.Minor != "4" || v.Patch != "2" {
		t.Errorf("components = %s.%s.%s", v.Major, v.Minor, v.Patch)
	}
}

func TestDetectVersionAfterTag(t *testing.T) {
	repo, dir := initRepo(t)
	first := commitFile(t, repo, dir, "a.txt", "a")
	if _, err := repo.CreateTag("v2.0.0-rc.1", first, &git.CreateTagOptions{
		Tagger:  &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()},
		Message: "release candidate",
	}); err != nil {
		t.Fatal(err)
	}
	head := commitFile(t, repo, dir, "b.txt", "b")

	// Subdirectories resolve to the enclosing repository.
	sub := filepath.Join(dir, "pkg")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	v, err := DetectVersion(sub)
	if err != nil {
		t.Fatalf("DetectVersion: %v", err)
	}
	if v.IsRelease {
		t.Error("HEAD is past the tag, should not be a release")
	}
	if !v.IsPrerelease || v.Prerelease != "rc.1" {
		t.Errorf("prerelease = %q (%v)", v.Prerelease, v.IsPrerelease)
	}
	want := "2.0.0-rc.1-dev+" + head.String()[:7]
	if v.Version != want {
		t.Errorf("Version = %q, want %q", v.Version, want)
	}
}

func TestDetectVersionNotARepo(t *testing.T) {
	if _, err := DetectVersion(t.TempDir()); err == nil {
		t.Error("expected error outside a git repository")
	}
}

func TestResolveTemplate(t *testing.T) {
	v := &VersionInfo{
		Version: "1.2.3-dev+abcdef1",
		Base:    "1.2.3",
		Major:   "1",
		Minor:   "2",
		Patch:   "3",
		SHA:     "abcdef1234567890",
		Branch:  "feature/ports",
	}
	tests := []struct {
		tmpl string
		want string
	}{
		{"latest", "latest"},
		{"{version}", "1.2.3-dev-abcdef1"},
		{"{base}", "1.2.3"},
		{"{major}.{minor}", "1.2"},
		{"v{patch}", "v3"},
		{"{branch}-{sha}", "feature-ports-abcdef1"},
		{"{sha:10}", "abcdef1234"},
		{"{pkg.version}", "0.990.0"},
		{"{pkg.version}-{sha:4}", "0.990.0-abcd"},
	}
	for _, tt := range tests {
		got, err := ResolveTemplate(tt.tmpl, v, "0.990.0")
		if err != nil {
			t.Errorf("ResolveTemplate(%q): %v", tt.tmpl, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveTemplate(%q) = %q, want %q", tt.tmpl, got, tt.want)
		}
	}
}

func TestResolveTemplateErrors(t *testing.T) {
	v := &VersionInfo{SHA: "abcdef1"}
	if _, err := ResolveTemplate("{nightly}", v, ""); err == nil || !strings.Contains(err.Error(), "{nightly}") {
		t.Errorf("unknown placeholder: err = %v", err)
	}
	if _, err := ResolveTemplate("{sha}", nil, ""); err == nil {
		t.Error("expected error without git metadata")
	}
	if got, err := ResolveTemplate("{pkg.version}", nil, "1.0.0"); err != nil || got != "1.0.0" {
		t.Errorf("pkg.version without git = %q, %v", got, err)
	}
}

func TestResolverSkipsGitForPackageVersion(t *testing.T) {
	r := NewResolver(t.TempDir(), "0.990.0")
	got, err := r.Resolve("{pkg.version}")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "0.990.0" {
		t.Errorf("Resolve = %q", got)
	}
	if _, err := r.Resolve("{sha}"); err == nil {
		t.Error("expected git error outside a repository")
	}
}
