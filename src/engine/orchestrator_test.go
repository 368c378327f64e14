package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sofmeright/dockergen/src/descriptor"
)

// fakeEngine replays scripted events and records removals.
type fakeEngine struct {
	buildID     string
	buildErr    error
	buildEvents []BuildEvent
	pushErr     error
	pushEvents  []PushEvent
	removeErr   error
	async       bool

	mu       sync.Mutex
	removed  []string
	pushed   []string
	buildCtx context.Context
	pushCtx  context.Context
}

func (f *fakeEngine) Build(ctx context.Context, _, imageName string, _ BuildOptions, cb func(BuildEvent)) (string, error) {
	f.mu.Lock()
	f.buildCtx = ctx
	f.mu.Unlock()
	if f.buildErr != nil {
		return "", f.buildErr
	}
	replay := func() {
		for _, ev := range f.buildEvents {
			cb(ev)
		}
	}
	if f.async {
		go replay()
	} else {
		replay()
	}
	if f.buildID != "" {
		return f.buildID, nil
	}
	return imageName, nil
}

func (f *fakeEngine) Push(ctx context.Context, imageName string, _ Credentials, cb func(PushEvent)) error {
	f.mu.Lock()
	f.pushCtx = ctx
	f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.mu.Lock()
	f.pushed = append(f.pushed, imageName)
	f.mu.Unlock()
	for _, ev := range f.pushEvents {
		cb(ev)
	}
	return nil
}

func (f *fakeEngine) RemoveImage(_ context.Context, id string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return f.removeErr
}

func (f *fakeEngine) InspectImage(context.Context, string) (*ImageInfo, error) {
	return &ImageInfo{}, nil
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) removals() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

func (f *fakeEngine) contexts() (build, push context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buildCtx, f.pushCtx
}

func testDescriptor() *descriptor.Descriptor {
	return &descriptor.Descriptor{Unit: "hello", Name: "hello:latest"}
}

func TestBuildSuccessReturnsLastImageID(t *testing.T) {
	fe := &fakeEngine{buildEvents: []BuildEvent{
		{Progress: "Step 1/4 : FROM ballerina/ballerina-runtime:0.990.0"},
		{ImageID: "sha256:aaa"},
		{ImageID: "sha256:bbb"},
		{Done: true},
	}}
	var lines []string
	o := NewOrchestrator(fe, nil)
	o.Progress = func(l string) { lines = append(lines, l) }

	id, err := o.Build(context.Background(), testDescriptor(), t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "sha256:bbb" {
		t.Errorf("image id = %q, want sha256:bbb", id)
	}
	if len(lines) != 1 {
		t.Errorf("progress lines = %v", lines)
	}
	if got := fe.removals(); len(got) != 0 {
		t.Errorf("successful build removed images: %v", got)
	}
}

func TestBuildErrorAfterImageIDCleansUp(t *testing.T) {
	fe := &fakeEngine{
		buildID: "build-1",
		buildEvents: []BuildEvent{
			{ImageID: "sha256:partial"},
			{Error: "COPY failed: file not found"},
			{Done: true},
		},
		removeErr: errors.New("image is in use"),
	}
	o := NewOrchestrator(fe, nil)

	_, err := o.Build(context.Background(), testDescriptor(), t.TempDir())
	if err == nil {
		t.Fatal("expected error")
	}
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("error type = %T, want *BuildError", err)
	}
	if !strings.Contains(err.Error(), "COPY failed: file not found") {
		t.Errorf("error %q does not carry the engine message", err)
	}

	got := fe.removals()
	if len(got) != 2 || got[0] != "build-1" || got[1] != "sha256:partial" {
		t.Errorf("removed = %v, want [build-1 sha256:partial]", got)
	}
}

func TestBuildDoneWithoutImageIDFails(t *testing.T) {
	fe := &fakeEngine{buildEvents: []BuildEvent{{Done: true}}}
	_, err := NewOrchestrator(fe, nil).Build(context.Background(), testDescriptor(), t.TempDir())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := fe.removals(); len(got) != 1 || got[0] != "hello:latest" {
		t.Errorf("removed = %v, want [hello:latest]", got)
	}
}

func TestBuildConnectionErrorIsCanonical(t *testing.T) {
	fe := &fakeEngine{buildErr: errors.New("dial tcp 10.0.0.1:2376: connect: connection refused")}
	_, err := NewOrchestrator(fe, nil).Build(context.Background(), testDescriptor(), t.TempDir())
	if err == nil {
		t.Fatal("expected error")
	}
	want := "unable to build docker image hello:latest: connection refused"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err, want)
	}
	if got := fe.removals(); len(got) != 0 {
		t.Errorf("submit failure removed images: %v", got)
	}
}

func TestBuildTimeout(t *testing.T) {
	fe := &fakeEngine{buildEvents: []BuildEvent{{ImageID: "sha256:slow"}}}
	o := NewOrchestrator(fe, nil)
	o.BuildTimeout = 20 * time.Millisecond

	_, err := o.Build(context.Background(), testDescriptor(), t.TempDir())
	if err == nil {
		t.Fatal("expected timeout")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error %v does not wrap context.DeadlineExceeded", err)
	}
	if !strings.Contains(err.Error(), "timed out after 20ms") {
		t.Errorf("error = %q", err)
	}
	if got := fe.removals(); len(got) != 2 {
		t.Errorf("removed = %v, want build id and partial image", got)
	}
}

func TestBuildTimeoutCancelsEngine(t *testing.T) {
	fe := &fakeEngine{buildEvents: []BuildEvent{{Progress: "Step 1/3"}}}
	o := NewOrchestrator(fe, nil)
	o.BuildTimeout = 10 * time.Millisecond

	if _, err := o.Build(context.Background(), testDescriptor(), t.TempDir()); err == nil {
		t.Fatal("expected timeout")
	}
	ctx, _ := fe.contexts()
	if ctx == nil {
		t.Fatal("engine never saw a context")
	}
	if ctx.Err() == nil {
		t.Error("engine context still live after build timed out")
	}
}

func TestPushTimeoutCancelsEngine(t *testing.T) {
	fe := &fakeEngine{pushEvents: []PushEvent{{Progress: "Pushing"}}}
	o := NewOrchestrator(fe, nil)
	o.PushTimeout = 10 * time.Millisecond

	auth := Credentials{Username: "u", Password: "p"}
	if _, err := o.Push(context.Background(), testDescriptor(), auth); err == nil {
		t.Fatal("expected timeout")
	}
	_, ctx := fe.contexts()
	if ctx == nil {
		t.Fatal("engine never saw a context")
	}
	if ctx.Err() == nil {
		t.Error("engine context still live after push timed out")
	}
}

func TestBuildCancelled(t *testing.T) {
	fe := &fakeEngine{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewOrchestrator(fe, nil).Build(ctx, testDescriptor(), t.TempDir())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestLateBuildEventsIgnored(t *testing.T) {
	fe := &fakeEngine{buildEvents: []BuildEvent{
		{ImageID: "sha256:first"},
		{Done: true},
		{Error: "late failure"},
		{ImageID: "sha256:late"},
	}}
	id, err := NewOrchestrator(fe, nil).Build(context.Background(), testDescriptor(), t.TempDir())
	if err != nil {
		t.Fatalf("late error leaked: %v", err)
	}
	if id != "sha256:first" {
		t.Errorf("image id = %q, want sha256:first", id)
	}
}

func TestBuildAsyncEvents(t *testing.T) {
	fe := &fakeEngine{async: true, buildEvents: []BuildEvent{
		{ImageID: "sha256:async"},
		{Done: true},
	}}
	id, err := NewOrchestrator(fe, nil).Build(context.Background(), testDescriptor(), t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "sha256:async" {
		t.Errorf("image id = %q", id)
	}
}

func TestPushRequiresCredentials(t *testing.T) {
	fe := &fakeEngine{}
	_, err := NewOrchestrator(fe, nil).Push(context.Background(), testDescriptor(), Credentials{Username: "ci"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(fe.pushed) != 0 {
		t.Errorf("engine push called without credentials")
	}
}

func TestPushDigest(t *testing.T) {
	fe := &fakeEngine{pushEvents: []PushEvent{
		{Progress: "layer: Pushed"},
		{Digest: "sha256:digest"},
		{Done: true},
	}}
	auth := Credentials{Username: "ci", Password: "secret", ServerAddress: "docker.io"}
	digest, err := NewOrchestrator(fe, nil).Push(context.Background(), testDescriptor(), auth)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if digest != "sha256:digest" {
		t.Errorf("digest = %q", digest)
	}
}

func TestPushFailures(t *testing.T) {
	auth := Credentials{Username: "ci", Password: "secret"}
	tests := []struct {
		name   string
		engine *fakeEngine
		want   string
	}{
		{
			name:   "engine error event",
			engine: &fakeEngine{pushEvents: []PushEvent{{Error: "denied: requested access to the resource is denied"}}},
			want:   "unable to push docker image hello:latest: denied: requested access to the resource is denied",
		},
		{
			name:   "stream ends without digest",
			engine: &fakeEngine{pushEvents: []PushEvent{{Done: true}}},
			want:   "unable to push docker image hello:latest: engine finished without reporting a digest",
		},
		{
			name:   "unreachable host",
			engine: &fakeEngine{pushErr: errors.New("Cannot connect to the Docker daemon at tcp://nowhere:2376")},
			want:   "unable to push docker image hello:latest: unable to connect to host",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrchestrator(tt.engine, nil).Push(context.Background(), testDescriptor(), auth)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.want {
				t.Errorf("error = %q, want %q", err, tt.want)
			}
		})
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		err  string
		want string
	}{
		{"open /certs/ca.pem: no such file or directory", MsgCertificateInvalid},
		{"tls: failed to verify certificate: x509: certificate signed by unknown authority", MsgCertificateInvalid},
		{"dial tcp 127.0.0.1:2375: connect: connection refused", MsgConnectionRefused},
		{"dial tcp: lookup dockerd.invalid: no such host", MsgUnreachable},
		{"Cannot connect to the Docker daemon at unix:///var/run/docker.sock", MsgUnreachable},
		{"unexpected EOF", MsgInternal},
	}
	for _, tt := range tests {
		if got := Canonicalize(errors.New(tt.err)); got != tt.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", tt.err, got, tt.want)
		}
	}
	if got := Canonicalize(nil); got != "" {
		t.Errorf("Canonicalize(nil) = %q", got)
	}
}

func TestRegistry(t *testing.T) {
	found := false
	for _, name := range All() {
		if name == "docker" {
			found = true
		}
	}
	if !found {
		t.Fatalf("docker engine not registered: %v", All())
	}
	if _, err := Open("podman-nonexistent", Connection{}, nil); err == nil {
		t.Error("expected error for unknown engine")
	}
}
