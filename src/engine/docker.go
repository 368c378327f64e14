package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	dockerregistry "github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BuildSessionLabel carries the per-build session id on every image built.
const BuildSessionLabel = "io.dockergen.build-id"

func init() {
	Register("docker", func(conn Connection, log *zap.Logger) (Engine, error) {
		return NewDocker(conn, log)
	})
}

// Docker talks to a Docker daemon through its HTTP API.
type Docker struct {
	cli *client.Client
	log *zap.Logger
}

// NewDocker creates a client for conn. Unset fields fall back to the
// DOCKER_HOST / DOCKER_CERT_PATH environment.
func NewDocker(conn Connection, log *zap.Logger) (*Docker, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if conn.Host != "" {
		opts = append(opts, client.WithHost(conn.Host))
	}
	if conn.CertPath != "" {
		opts = append(opts, client.WithTLSClientConfig(
			filepath.Join(conn.CertPath, "ca.pem"),
			filepath.Join(conn.CertPath, "cert.pem"),
			filepath.Join(conn.CertPath, "key.pem"),
		))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Docker{cli: cli, log: log}, nil
}

// Close closes the Docker client.
func (e *Docker) Close() error {
	return e.cli.Close()
}

// Build tars contextDir and submits it. The returned id is the image
// reference the build tags, which is what a partial build leaves behind.
func (e *Docker) Build(ctx context.Context, contextDir, imageName string, opts BuildOptions, cb func(BuildEvent)) (string, error) {
	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("creating build context: %w", err)
	}

	session := uuid.NewString()
	labels := map[string]string{BuildSessionLabel: session}
	for k, v := range opts.Labels {
		labels[k] = v
	}

	e.log.Debug("image build",
		zap.String("context", contextDir),
		zap.String("image", imageName),
		zap.String("session", session),
	)

	resp, err := e.cli.ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:        []string{imageName},
		Dockerfile:  opts.Dockerfile,
		Remove:      true,
		ForceRemove: true,
		NoCache:     opts.NoCache,
		PullParent:  opts.Pull,
		Labels:      labels,
		BuildID:     session,
	})
	if err != nil {
		buildCtx.Close()
		return "", err
	}

	go func() {
		defer buildCtx.Close()
		defer resp.Body.Close()
		streamBuild(resp.Body, cb)
	}()
	return imageName, nil
}

// streamBuild decodes the daemon's JSON message stream into events.
func streamBuild(r io.Reader, cb func(BuildEvent)) {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				cb(BuildEvent{Done: true})
			} else {
				cb(BuildEvent{Error: "reading build output: " + err.Error()})
			}
			return
		}

		if msg.Error != nil {
			cb(BuildEvent{Error: msg.Error.Message})
			continue
		}
		if msg.Aux != nil {
			var aux struct {
				ID string `json:"ID"`
			}
			if json.Unmarshal(*msg.Aux, &aux) == nil && aux.ID != "" {
				cb(BuildEvent{ImageID: aux.ID})
			}
			continue
		}
		if line := strings.TrimSpace(msg.Stream); line != "" {
			cb(BuildEvent{Progress: line})
		} else if msg.Status != "" {
			cb(BuildEvent{Progress: msg.Status})
		}
	}
}

// Push submits a push of imageName authenticated with auth.
func (e *Docker) Push(ctx context.Context, imageName string, auth Credentials, cb func(PushEvent)) error {
	encoded, err := dockerregistry.EncodeAuthConfig(dockerregistry.AuthConfig{
		Username:      auth.Username,
		Password:      auth.Password,
		ServerAddress: auth.ServerAddress,
	})
	if err != nil {
		return fmt.Errorf("encoding registry auth: %w", err)
	}

	e.log.Debug("image push", zap.String("image", imageName), zap.String("registry", auth.ServerAddress))
	body, err := e.cli.ImagePush(ctx, imageName, image.PushOptions{RegistryAuth: encoded})
	if err != nil {
		return err
	}

	go func() {
		defer body.Close()
		streamPush(body, cb)
	}()
	return nil
}

func streamPush(r io.Reader, cb func(PushEvent)) {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				cb(PushEvent{Done: true})
			} else {
				cb(PushEvent{Error: "reading push output: " + err.Error()})
			}
			return
		}

		if msg.Error != nil {
			cb(PushEvent{Error: msg.Error.Message})
			continue
		}
		if msg.Aux != nil {
			var aux struct {
				Tag    string `json:"Tag"`
				Digest string `json:"Digest"`
			}
			if json.Unmarshal(*msg.Aux, &aux) == nil && aux.Digest != "" {
				cb(PushEvent{Digest: aux.Digest})
			}
			continue
		}
		if msg.Status != "" {
			progress := msg.Status
			if msg.ID != "" {
				progress = msg.ID + ": " + progress
			}
			cb(PushEvent{Progress: progress})
		}
	}
}

// RemoveImage force-removes an image and its untagged parents.
func (e *Docker) RemoveImage(ctx context.Context, imageID string, force bool) error {
	_, err := e.cli.ImageRemove(ctx, imageID, image.RemoveOptions{Force: force, PruneChildren: true})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return err
	}
	return nil
}

// InspectImage reports exposed ports and the command of a local image.
func (e *Docker) InspectImage(ctx context.Context, imageName string) (*ImageInfo, error) {
	resp, err := e.cli.ImageInspect(ctx, imageName)
	if err != nil {
		return nil, err
	}
	info := &ImageInfo{ID: resp.ID}
	if resp.Config != nil {
		for p := range resp.Config.ExposedPorts {
			info.ExposedPorts = append(info.ExposedPorts, string(p))
		}
		info.Cmd = append(info.Cmd, resp.Config.Cmd...)
	}
	sort.Strings(info.ExposedPorts)
	return info, nil
}
