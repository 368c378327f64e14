package descriptor

import (
	"fmt"
	"os"
	"regexp"
)

// envTokenRe matches a single $env{NAME} reference.
var envTokenRe = regexp.MustCompile(`\$env\{([^{}]*)\}`)

// maxEnvExpansions bounds recursive substitution so a variable that expands
// to a reference to itself fails instead of looping.
const maxEnvExpansions = 64

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(name string) (string, bool)

// ExpandEnv replaces $env{NAME} tokens with the value of NAME, repeating
// until no token remains. Literal text around each token is kept as is.
// An unset variable is an error.
func ExpandEnv(value string, lookup LookupFunc) (string, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for i := 0; ; i++ {
		loc := envTokenRe.FindStringSubmatchIndex(value)
		if loc == nil {
			return value, nil
		}
		if i == maxEnvExpansions {
			return "", fmt.Errorf("environment substitution did not terminate after %d expansions", maxEnvExpansions)
		}
		name := value[loc[2]:loc[3]]
		if name == "" {
			return "", fmt.Errorf("empty environment variable reference in %q", value)
		}
		resolved, ok := lookup(name)
		if !ok {
			return "", fmt.Errorf("environment variable %q is not set", name)
		}
		value = value[:loc[0]] + resolved + value[loc[1]:]
	}
}
