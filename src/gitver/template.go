package gitver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// ResolveTemplate expands placeholders in an image tag against version
// info and the package's declared version.
//
// Supported placeholders:
//
//	{version}      → "1.2.3" or "1.2.3-alpha.1-dev-abc1234"
//	{base}         → "1.2.3"
//	{major}        → "1"
//	{minor}        → "2"
//	{patch}        → "3"
//	{prerelease}   → "alpha.1" or ""
//	{branch}       → "main"
//	{sha}          → "abc1234" (first 7 chars)
//	{sha:N}        → first N chars
//	{pkg.version}  → version declared in the package metadata
//
// Characters Docker rejects in tags are replaced with "-" in substituted
// values. Literals pass through as-is. An unrecognised placeholder is an
// error, as braces are not valid in image tags.
func ResolveTemplate(tmpl string, v *VersionInfo, pkgVersion string) (string, error) {
	s := strings.ReplaceAll(tmpl, "{pkg.version}", sanitizeTag(pkgVersion))
	if !strings.Contains(s, "{") {
		return s, nil
	}
	if v == nil {
		return "", fmt.Errorf("tag %q needs git metadata, but none is available", tmpl)
	}

	s = resolveSHA(s, v.SHA)

	s = strings.NewReplacer(
		"{version}", sanitizeTag(v.Version),
		"{base}", v.Base,
		"{major}", v.Major,
		"{minor}", v.Minor,
		"{patch}", v.Patch,
		"{prerelease}", v.Prerelease,
		"{branch}", sanitizeTag(v.Branch),
		"{sha}", v.ShortSHA(),
	).Replace(s)

	if m := placeholderRe.FindString(s); m != "" {
		return "", fmt.Errorf("unknown tag placeholder %s in %q", m, tmpl)
	}
	return s, nil
}

var placeholderRe = regexp.MustCompile(`\{[^{}]*\}`)

// Resolver resolves tag templates for one package root. Git metadata is
// read once, on the first template that needs it.
type Resolver struct {
	RootDir    string
	PkgVersion string

	once sync.Once
	info *VersionInfo
	err  error
}

// NewResolver returns a resolver for the repository containing rootDir.
func NewResolver(rootDir, pkgVersion string) *Resolver {
	return &Resolver{RootDir: rootDir, PkgVersion: pkgVersion}
}

// Resolve expands tmpl. Templates that only use {pkg.version} never touch git.
func (r *Resolver) Resolve(tmpl string) (string, error) {
	if !strings.Contains(strings.ReplaceAll(tmpl, "{pkg.version}", ""), "{") {
		return ResolveTemplate(tmpl, nil, r.PkgVersion)
	}
	r.once.Do(func() {
		r.info, r.err = DetectVersion(r.RootDir)
	})
	if r.err != nil {
		return "", r.err
	}
	return ResolveTemplate(tmpl, r.info, r.PkgVersion)
}

// resolveSHA replaces {sha:N} with the SHA truncated to N chars.
// Plain {sha} is handled by the simple replacement pass.
func resolveSHA(s string, sha string) string {
	for {
		start := strings.Index(s, "{sha:")
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], "}")
		if end == -1 {
			return s
		}
		end += start
		width, err := strconv.Atoi(s[start+5 : end])
		if err != nil || width <= 0 {
			width = 7
		}
		s = s[:start] + truncate(sha, width) + s[end+1:]
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// sanitizeTag replaces characters not allowed in Docker tags.
func sanitizeTag(s string) string {
	r := strings.NewReplacer(
		"/", "-",
		" ", "-",
		"+", "-",
	)
	return r.Replace(s)
}
