// Package modules registers the built-in build-context lint checks.
package modules

import (
	"path"
	"strings"
)

var binaryExt = map[string]bool{
	".balx": true, ".jar": true, ".zip": true, ".gz": true, ".tgz": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".p12": true, ".jks": true, ".der": true, ".so": true,
}

// isBinaryName guesses from the extension whether a file is not text.
func isBinaryName(p string) bool {
	return binaryExt[strings.ToLower(path.Ext(p))]
}
