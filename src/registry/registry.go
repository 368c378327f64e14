// Package registry resolves push credentials for container registries.
//
// Credentials come from, in order: the package metadata annotation, the
// environment (PREFIX_USER / PREFIX_PASS), and the OS keyring.
package registry

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"

	"github.com/sofmeright/dockergen/src/engine"
)

// DefaultCredentialPrefix selects DOCKERGEN_REGISTRY_USER / DOCKERGEN_REGISTRY_PASS.
const DefaultCredentialPrefix = "DOCKERGEN_REGISTRY"

// DefaultHost is the registry used when an image name carries none.
const DefaultHost = "docker.io"

// Source records where a set of credentials came from.
type Source string

const (
	SourceNone       Source = "none"
	SourceAnnotation Source = "annotation"
	SourceEnv        Source = "env"
	SourceKeyring    Source = "keyring"
)

// NormalizeHost maps registry aliases to their canonical host.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")
	switch host {
	case "", "docker.io", "index.docker.io", "registry-1.docker.io", "registry.hub.docker.com":
		return DefaultHost
	default:
		return host
	}
}

// KeyringService returns the keyring service name for a registry host.
func KeyringService(host string) string {
	return "dockergen:" + NormalizeHost(host)
}

// Resolver looks up push credentials.
type Resolver struct {
	// Prefix selects the PREFIX_USER / PREFIX_PASS environment variables.
	Prefix    string
	LookupEnv func(string) (string, bool)
	Log       *zap.Logger
}

// NewResolver returns a resolver reading the process environment with the
// default prefix.
func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{Prefix: DefaultCredentialPrefix, LookupEnv: os.LookupEnv, Log: log}
}

// Resolve returns credentials for host. Explicit username and password win.
// Otherwise the environment fills in whichever part is missing, and if the
// password is still unknown it is read from the keyring under the username.
// The returned credentials may be empty; callers check Credentials.Empty.
func (r *Resolver) Resolve(host, username, password string) (engine.Credentials, Source) {
	host = NormalizeHost(host)
	creds := engine.Credentials{Username: username, Password: password, ServerAddress: host}
	if !creds.Empty() {
		return creds, SourceAnnotation
	}

	source := SourceNone
	envUser, envPass := r.fromEnv()
	if creds.Username == "" && envUser != "" {
		creds.Username = envUser
		source = SourceEnv
	}
	if creds.Password == "" && envPass != "" {
		creds.Password = envPass
		source = SourceEnv
	}
	if !creds.Empty() {
		return creds, source
	}

	if creds.Username != "" && creds.Password == "" {
		pass, err := keyring.Get(KeyringService(host), creds.Username)
		switch {
		case err == nil:
			creds.Password = pass
			return creds, SourceKeyring
		case errors.Is(err, keyring.ErrNotFound):
			r.logger().Debug("no keyring entry", zap.String("registry", host), zap.String("user", creds.Username))
		default:
			r.logger().Warn("keyring lookup failed", zap.String("registry", host), zap.Error(err))
		}
	}
	return creds, source
}

// Store saves a password in the keyring for later pushes to host.
func Store(host, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("registry: username and password are required")
	}
	if err := keyring.Set(KeyringService(host), username, password); err != nil {
		return fmt.Errorf("storing credentials for %s: %w", NormalizeHost(host), err)
	}
	return nil
}

// Forget removes a stored password. Removing an absent entry succeeds.
func Forget(host, username string) error {
	err := keyring.Delete(KeyringService(host), username)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("removing credentials for %s: %w", NormalizeHost(host), err)
	}
	return nil
}

// fromEnv reads PREFIX_USER and PREFIX_PASS.
func (r *Resolver) fromEnv() (user, pass string) {
	if r.Prefix == "" || r.LookupEnv == nil {
		return "", ""
	}
	p := strings.ToUpper(r.Prefix)
	user, _ = r.LookupEnv(p + "_USER")
	pass, _ = r.LookupEnv(p + "_PASS")
	return user, pass
}

func (r *Resolver) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}
