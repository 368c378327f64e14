// Package gitver resolves version metadata from the git repository that
// holds a package, and expands image tag templates against it.
package gitver

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// VersionInfo holds resolved version metadata from git.
type VersionInfo struct {
	Version      string // full version: "1.2.3", "1.2.3-alpha.1", "0.0.0-dev+abc1234"
	Base         string // semver base without prerelease: "1.2.3"
	Major        string
	Minor        string
	Patch        string
	Prerelease   string // "alpha.1", "rc.1", or "" for stable
	SHA          string // full commit hash
	Branch       string
	IsRelease    bool // HEAD is exactly at a tag
	IsPrerelease bool
}

// ShortSHA returns the first seven characters of the commit hash.
func (v *VersionInfo) ShortSHA() string {
	return truncate(v.SHA, 7)
}

// DetectVersion resolves version info for the repository containing
// rootDir. The nearest semver tag reachable from HEAD gives the version;
// when HEAD is not tagged a -dev+<sha> suffix is appended.
func DetectVersion(rootDir string) (*VersionInfo, error) {
	repo, err := git.PlainOpenWithOptions(rootDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening git repository at %s: %w", rootDir, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	v := &VersionInfo{SHA: head.Hash().String()}
	if head.Name().IsBranch() {
		v.Branch = head.Name().Short()
	}

	tagged, err := semverTags(repo)
	if err != nil {
		return nil, err
	}

	nearest, atHead, err := nearestTag(repo, head.Hash(), tagged)
	if err != nil {
		return nil, err
	}
	if nearest == nil {
		// No tags: dev version
		v.Version = fmt.Sprintf("0.0.0-dev+%s", v.ShortSHA())
		v.Base = "0.0.0"
		v.Major, v.Minor, v.Patch = "0", "0", "0"
		return v, nil
	}

	v.Major = fmt.Sprint(nearest.Major())
	v.Minor = fmt.Sprint(nearest.Minor())
	v.Patch = fmt.Sprint(nearest.Patch())
	v.Base = fmt.Sprintf("%s.%s.%s", v.Major, v.Minor, v.Patch)
	v.Prerelease = nearest.Prerelease()
	v.IsPrerelease = v.Prerelease != ""
	v.IsRelease = atHead

	v.Version = v.Base
	if v.IsPrerelease {
		v.Version = fmt.Sprintf("%s-%s", v.Base, v.Prerelease)
	}
	if !v.IsRelease {
		v.Version = fmt.Sprintf("%s-dev+%s", v.Version, v.ShortSHA())
	}
	return v, nil
}

// semverTags maps commit hashes to the highest semver tag pointing at them.
// Annotated tags are peeled to their commit; non-semver tags are skipped.
func semverTags(repo *git.Repository) (map[plumbing.Hash]*semver.Version, error) {
	refs, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	tagged := make(map[plumbing.Hash]*semver.Version)
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		ver, err := semver.NewVersion(ref.Name().Short())
		if err != nil {
			return nil
		}
		target := ref.Hash()
		if tag, err := repo.TagObject(target); err == nil {
			commit, err := tag.Commit()
			if err != nil {
				return nil
			}
			target = commit.Hash
		}
		if cur, ok := tagged[target]; !ok || ver.GreaterThan(cur) {
			tagged[target] = ver
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading tags: %w", err)
	}
	return tagged, nil
}

// nearestTag walks history from head and returns the first tagged commit's
// version, and whether that commit is head itself.
func nearestTag(repo *git.Repository, head plumbing.Hash, tagged map[plumbing.Hash]*semver.Version) (*semver.Version, bool, error) {
	if len(tagged) == 0 {
		return nil, false, nil
	}

	commits, err := repo.Log(&git.LogOptions{From: head})
	if err != nil {
		return nil, false, fmt.Errorf("walking history: %w", err)
	}
	defer commits.Close()

	var found *semver.Version
	var atHead bool
	err = commits.ForEach(func(c *object.Commit) error {
		if ver, ok := tagged[c.Hash]; ok {
			found = ver
			atHead = c.Hash == head
			return storer.ErrStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, false, fmt.Errorf("walking history: %w", err)
	}
	return found, atHead, nil
}
