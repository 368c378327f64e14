package lint

import (
	"path/filepath"
	"strings"
)

// matchGlob is filepath.Match plus "**", which matches zero or more path
// segments. Both arguments use "/" separators.
func matchGlob(pattern, path string) bool {
	before, after, found := strings.Cut(pattern, "**")
	if !found {
		matched, _ := filepath.Match(pattern, path)
		return matched
	}

	if prefix := strings.TrimRight(before, "/"); prefix != "" {
		if path != prefix && !strings.HasPrefix(path, prefix+"/") {
			return false
		}
		path = strings.TrimLeft(strings.TrimPrefix(path, prefix), "/")
	}

	rest := strings.TrimLeft(after, "/")
	if rest == "" {
		return true
	}

	parts := strings.Split(path, "/")
	for i := range parts {
		if matchGlob(rest, strings.Join(parts[i:], "/")) {
			return true
		}
	}
	return false
}
