// Package docker implements container.Runtime on top of the Docker Engine API.
package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	dcontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/loykin/walletvisor/internal/container"
	"github.com/loykin/walletvisor/internal/metrics"
)

const (
	shortIDLen     = 12
	defaultBindIP  = "127.0.0.1"
	volumeDriver   = "local"
	defaultTimeout = 15 * time.Second
)

// API is the part of *client.Client used by Runtime.
type API interface {
	Ping(ctx context.Context) (types.Ping, error)
	VolumeCreate(ctx context.Context, options volume.CreateOptions) (volume.Volume, error)
	VolumeInspect(ctx context.Context, volumeID string) (volume.Volume, error)
	VolumeRemove(ctx context.Context, volumeID string, force bool) error
	ContainerCreate(ctx context.Context, config *dcontainer.Config, hostConfig *dcontainer.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (dcontainer.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options dcontainer.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (dcontainer.InspectResponse, error)
	ContainerStop(ctx context.Context, containerID string, options dcontainer.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options dcontainer.RemoveOptions) error
}

// Runtime talks to a Docker daemon. Every call is bounded by Timeout.
type Runtime struct {
	api     API
	timeout time.Duration
	log     *slog.Logger
}

// Config selects the Docker endpoint. An empty Host uses DOCKER_HOST and the
// other standard environment variables.
type Config struct {
	Host    string
	Timeout time.Duration
}

// New connects to the Docker daemon described by cfg.
func New(cfg Config, log *slog.Logger) (*Runtime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return NewWithAPI(cli, cfg.Timeout, log), nil
}

// NewWithAPI wraps an existing API implementation.
func NewWithAPI(api API, timeout time.Duration, log *slog.Logger) *Runtime {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runtime{api: api, timeout: timeout, log: log.With("component", "docker")}
}

func (r *Runtime) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Runtime) Ping(ctx context.Context) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	_, err := r.api.Ping(ctx)
	return classify("ping", err)
}

func (r *Runtime) CreateVolume(ctx context.Context, name string) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	_, err := r.api.VolumeCreate(ctx, volume.CreateOptions{Name: name, Driver: volumeDriver})
	return classify("volume_create", err)
}

func (r *Runtime) VolumeExists(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	_, err := r.api.VolumeInspect(ctx, name)
	return exists(classify("volume_inspect", err))
}

func (r *Runtime) RemoveVolume(ctx context.Context, name string) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	err := r.api.VolumeRemove(ctx, name, false)
	// Docker answers 409 when a container still mounts the volume.
	if err != nil && cerrdefs.IsConflict(err) {
		return fmt.Errorf("%w: volume %s: %v", container.ErrInUse, name, err)
	}
	return classify("volume_remove", err)
}

func (r *Runtime) Run(ctx context.Context, spec container.RunSpec) (string, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()

	cfg := &dcontainer.Config{
		Image:      spec.Image,
		Entrypoint: []string{"sh", "-c"},
		Cmd:        []string{spec.Command},
		Labels:     spec.Labels,
	}
	host := &dcontainer.HostConfig{AutoRemove: spec.AutoRemove}
	if spec.Volume != "" {
		host.Mounts = []mount.Mount{{
			Type:   mount.TypeVolume,
			Source: spec.Volume,
			Target: spec.MountPath,
		}}
	}
	if spec.ExposePort > 0 {
		port := tcpPort(spec.ExposePort)
		bindIP := spec.BindIP
		if bindIP == "" {
			bindIP = defaultBindIP
		}
		cfg.ExposedPorts = nat.PortSet{port: struct{}{}}
		// empty HostPort lets the engine pick an ephemeral port
		host.PortBindings = nat.PortMap{port: []nat.PortBinding{{HostIP: bindIP, HostPort: ""}}}
	}

	created, err := r.api.ContainerCreate(ctx, cfg, host, nil, nil, spec.Name)
	if err != nil {
		return "", classify("container_create", err)
	}
	if err := r.api.ContainerStart(ctx, created.ID, dcontainer.StartOptions{}); err != nil {
		if rmErr := r.api.ContainerRemove(ctx, created.ID, dcontainer.RemoveOptions{Force: true}); rmErr != nil {
			r.log.Warn("remove unstarted container", "name", spec.Name, "err", rmErr)
		}
		return "", classify("container_start", err)
	}
	return shortID(created.ID), nil
}

func (r *Runtime) Get(ctx context.Context, nameOrID string) (string, error) {
	if nameOrID == "" {
		return "", container.ErrNotFound
	}
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	info, err := r.api.ContainerInspect(ctx, nameOrID)
	if err != nil {
		return "", classify("container_inspect", err)
	}
	return shortID(info.ID), nil
}

func (r *Runtime) Port(ctx context.Context, id string, internalPort int) (int, error) {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	info, err := r.api.ContainerInspect(ctx, id)
	if err != nil {
		err = classify("container_inspect", err)
		if errors.Is(err, container.ErrNotFound) {
			return 0, fmt.Errorf("%w: %v", container.ErrPortUnresolved, err)
		}
		return 0, err
	}
	if info.NetworkSettings == nil {
		return 0, fmt.Errorf("%w: %s has no network settings", container.ErrPortUnresolved, id)
	}
	bindings := info.NetworkSettings.Ports[tcpPort(internalPort)]
	for _, b := range bindings {
		if b.HostPort == "" {
			continue
		}
		p, err := strconv.Atoi(b.HostPort)
		if err != nil {
			return 0, fmt.Errorf("%w: bad host port %q", container.ErrPortUnresolved, b.HostPort)
		}
		return p, nil
	}
	return 0, fmt.Errorf("%w: %s has no binding for %d/tcp", container.ErrPortUnresolved, id, internalPort)
}

func (r *Runtime) Stop(ctx context.Context, id string) error {
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	return classify("container_stop", r.api.ContainerStop(ctx, id, dcontainer.StopOptions{}))
}

// classify maps Docker client errors onto the container sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var class string
	var sentinel error
	switch {
	case cerrdefs.IsNotFound(err):
		// absence is an answer, not a failure
		return fmt.Errorf("%w: %v", container.ErrNotFound, err)
	case cerrdefs.IsConflict(err):
		class, sentinel = "conflict", container.ErrConflict
	case client.IsErrConnectionFailed(err), cerrdefs.IsUnavailable(err),
		errors.Is(err, context.DeadlineExceeded):
		class, sentinel = "unavailable", container.ErrUnavailable
	default:
		metrics.IncRuntimeError(op, "other")
		return fmt.Errorf("docker %s: %w", op, err)
	}
	metrics.IncRuntimeError(op, class)
	return fmt.Errorf("%w: %s: %v", sentinel, op, err)
}

func exists(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, container.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func tcpPort(p int) nat.Port { return nat.Port(strconv.Itoa(p) + "/tcp") }

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}
