package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sofmeright/dockergen/src/descriptor"
)

// Default bounded waits for terminal engine events.
const (
	DefaultBuildTimeout = 30 * time.Minute
	DefaultPushTimeout  = 15 * time.Minute
)

// Orchestrator runs builds and pushes to completion. One Orchestrator may
// serve several units, but every call owns its own event state.
type Orchestrator struct {
	Engine       Engine
	Log          *zap.Logger
	BuildTimeout time.Duration
	PushTimeout  time.Duration

	// NoCache and Pull are passed to every build.
	NoCache bool
	Pull    bool

	// Progress, if set, receives every progress line from the engine.
	Progress func(line string)
}

// NewOrchestrator returns an orchestrator with default timeouts.
func NewOrchestrator(e Engine, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		Engine:       e,
		Log:          log,
		BuildTimeout: DefaultBuildTimeout,
		PushTimeout:  DefaultPushTimeout,
	}
}

// buildState collects the events of one build.
type buildState struct {
	mu          sync.Mutex
	image       string
	lastImageID string
	result      *completion[string]
	log         *zap.Logger
	progress    func(string)
}

func (s *buildState) handle(ev BuildEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result.fired() {
		s.log.Debug("ignoring build event after completion", zap.Any("event", ev))
		return
	}
	switch {
	case ev.Error != "":
		s.result.reject(&BuildError{Image: s.image, Msg: ev.Error})
	case ev.ImageID != "":
		s.lastImageID = ev.ImageID
	case ev.Done:
		if s.lastImageID == "" {
			s.result.reject(&BuildError{Image: s.image, Msg: "engine finished without reporting an image id"})
			return
		}
		s.result.resolve(s.lastImageID)
	case ev.Progress != "":
		if s.progress != nil {
			s.progress(ev.Progress)
		}
	}
}

func (s *buildState) imageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastImageID
}

// Build builds the descriptor's image from contextDir and returns its id.
// On failure every image the build may have left behind is removed; removal
// errors are logged and the build error is returned.
func (o *Orchestrator) Build(ctx context.Context, d *descriptor.Descriptor, contextDir string) (string, error) {
	log := o.logger().With(zap.String("unit", d.Unit), zap.String("image", d.Name))
	// The engine stream must not outlive a timed out or failed wait.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &buildState{
		image:    d.Name,
		result:   newCompletion[string](),
		log:      log,
		progress: o.Progress,
	}

	opts := BuildOptions{
		Dockerfile: "Dockerfile",
		Labels:     map[string]string{"io.dockergen.unit": d.Unit},
		NoCache:    o.NoCache,
		Pull:       o.Pull,
	}
	log.Info("submitting build", zap.String("context", contextDir))
	buildID, err := o.Engine.Build(ctx, contextDir, d.Name, opts, state.handle)
	if err != nil {
		state.result.reject(err)
		return "", &BuildError{Image: d.Name, Msg: Canonicalize(err), Err: err}
	}

	id, err := state.result.wait(ctx, o.BuildTimeout)
	if err != nil {
		err = o.settle(state.result, err, o.BuildTimeout, func(msg string, cause error) error {
			return &BuildError{Image: d.Name, Msg: msg, Err: cause}
		})
		cancel()
		o.cleanup(log, buildID, state.imageID())
		return "", err
	}

	log.Info("build complete", zap.String("image_id", id))
	return id, nil
}

// Push pushes the descriptor's image with the given credentials. It does
// not consult the descriptor's push flag; callers gate on ShouldPush.
func (o *Orchestrator) Push(ctx context.Context, d *descriptor.Descriptor, auth Credentials) (string, error) {
	log := o.logger().With(zap.String("unit", d.Unit), zap.String("image", d.Name))
	if auth.Empty() {
		return "", &PushError{Image: d.Name, Msg: "registry username and password are required"}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := newCompletion[string]()
	var mu sync.Mutex
	handle := func(ev PushEvent) {
		mu.Lock()
		defer mu.Unlock()
		if result.fired() {
			return
		}
		switch {
		case ev.Error != "":
			result.reject(&PushError{Image: d.Name, Msg: ev.Error})
		case ev.Digest != "":
			result.resolve(ev.Digest)
		case ev.Done:
			result.reject(&PushError{Image: d.Name, Msg: "engine finished without reporting a digest"})
		case ev.Progress != "":
			if o.Progress != nil {
				o.Progress(ev.Progress)
			}
		}
	}

	log.Info("submitting push", zap.String("registry", auth.ServerAddress))
	if err := o.Engine.Push(ctx, d.Name, auth, handle); err != nil {
		result.reject(err)
		return "", &PushError{Image: d.Name, Msg: Canonicalize(err), Err: err}
	}

	digest, err := result.wait(ctx, o.PushTimeout)
	if err != nil {
		return "", o.settle(result, err, o.PushTimeout, func(msg string, cause error) error {
			return &PushError{Image: d.Name, Msg: msg, Err: cause}
		})
	}
	log.Info("push complete", zap.String("digest", digest))
	return digest, nil
}

// settle turns a wait error into the operation's error type. Engine errors
// delivered through events pass through unchanged; a timeout or cancelled
// context also closes the cell so late events are dropped.
func (o *Orchestrator) settle(c interface{ reject(error) bool }, err error, timeout time.Duration, wrap func(string, error) error) error {
	var be *BuildError
	var pe *PushError
	if errors.As(err, &be) || errors.As(err, &pe) {
		return err
	}
	c.reject(err)
	if errors.Is(err, errTimeout) {
		return wrap(fmt.Sprintf("timed out after %s", timeout), context.DeadlineExceeded)
	}
	return wrap(err.Error(), err)
}

// cleanup removes images a failed build may have produced. Failures are
// logged only.
func (o *Orchestrator) cleanup(log *zap.Logger, ids ...string) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		// The build context may already be cancelled; removal gets its own.
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := o.Engine.RemoveImage(ctx, id, true)
		cancel()
		if err != nil {
			log.Warn("could not remove image after failed build", zap.String("id", id), zap.Error(err))
			continue
		}
		log.Debug("removed image after failed build", zap.String("id", id))
	}
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Log == nil {
		return zap.NewNop()
	}
	return o.Log
}
