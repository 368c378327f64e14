// Package engine drives a container engine through its build, push,
// inspect and remove operations.
//
// Engines report build and push progress asynchronously through event
// callbacks. The Orchestrator turns those event streams into synchronous
// results: it waits for the first terminal event and ignores the rest.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// BuildEvent is one message from a running build. At most one of the
// fields is meaningful per event.
type BuildEvent struct {
	Progress string // human readable build output
	ImageID  string // an image was produced; superseded by later IDs
	Error    string // terminal failure
	Done     bool   // the stream ended
}

// PushEvent is one message from a running push.
type PushEvent struct {
	Progress string
	Digest   string // terminal success
	Error    string // terminal failure
	Done     bool   // the stream ended
}

// BuildOptions tune a single build.
type BuildOptions struct {
	Dockerfile string
	Labels     map[string]string
	NoCache    bool
	Pull       bool
}

// Credentials authenticate a push.
type Credentials struct {
	Username      string
	Password      string
	ServerAddress string
}

// Empty reports whether no usable credentials are present.
func (c Credentials) Empty() bool {
	return c.Username == "" || c.Password == ""
}

// ImageInfo is the subset of image metadata the tool reports.
type ImageInfo struct {
	ID           string
	ExposedPorts []string // "port/proto"
	Cmd          []string
}

// Engine is the container engine boundary.
type Engine interface {
	// Build submits a build of contextDir tagged imageName and returns an
	// identifier for the image being built. Events are delivered to cb
	// asynchronously, possibly before Build returns.
	Build(ctx context.Context, contextDir, imageName string, opts BuildOptions, cb func(BuildEvent)) (buildID string, err error)

	// Push submits a push of imageName. Events are delivered to cb
	// asynchronously.
	Push(ctx context.Context, imageName string, auth Credentials, cb func(PushEvent)) error

	// RemoveImage deletes an image. Removing an absent image succeeds.
	RemoveImage(ctx context.Context, imageID string, force bool) error

	// InspectImage returns metadata about a local image.
	InspectImage(ctx context.Context, imageName string) (*ImageInfo, error)

	Close() error
}

// Connection describes how to reach an engine.
type Connection struct {
	Host     string // e.g. unix:///var/run/docker.sock, tcp://host:2376
	CertPath string // directory holding ca.pem, cert.pem, key.pem
}

// Constructor opens an engine for a connection.
type Constructor func(conn Connection, log *zap.Logger) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register adds an engine constructor to the global registry.
// Called from init() in each engine implementation.
func Register(name string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("engine: duplicate engine registration: %s", name))
	}
	registry[name] = constructor
}

// Open returns a new instance of the named engine.
func Open(name string, conn Connection, log *zap.Logger) (Engine, error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: unknown engine: %s", name)
	}
	return ctor(conn, log)
}

// All returns sorted names of all registered engines.
func All() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
