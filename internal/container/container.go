// Package container defines the container runtime boundary used by the
// orchestrator. Implementations classify their native errors into the
// sentinels below so callers never see transport-specific failures.
package container

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means the runtime answered and the resource does not exist.
	ErrNotFound = errors.New("container runtime: not found")
	// ErrConflict means a resource with the requested name already exists.
	ErrConflict = errors.New("container runtime: name conflict")
	// ErrUnavailable means the runtime itself could not be reached.
	ErrUnavailable = errors.New("container runtime: unavailable")
	// ErrInUse means a volume is still referenced by a container.
	ErrInUse = errors.New("container runtime: resource in use")
	// ErrPortUnresolved means the container has no host binding for the port.
	ErrPortUnresolved = errors.New("container runtime: port not resolved")
)

// RunSpec describes a detached container launch.
type RunSpec struct {
	Image   string
	Name    string
	Command string // run through "sh -c"
	Volume  string
	// MountPath is where Volume is mounted inside the container.
	MountPath string
	// ExposePort, when non-zero, is published on an ephemeral host port.
	ExposePort int
	// BindIP restricts the published port; empty means 127.0.0.1.
	BindIP     string
	AutoRemove bool
	Labels     map[string]string
}

// Runtime is the subset of container engine operations the orchestrator
// needs. All methods must honour ctx cancellation.
type Runtime interface {
	Ping(ctx context.Context) error
	CreateVolume(ctx context.Context, name string) error
	VolumeExists(ctx context.Context, name string) (bool, error)
	RemoveVolume(ctx context.Context, name string) error
	// Run creates and starts a container and returns its short handle.
	Run(ctx context.Context, spec RunSpec) (string, error)
	// Get resolves a name or handle to the container's short handle.
	Get(ctx context.Context, nameOrID string) (string, error)
	// Port returns the host port bound to internalPort/tcp.
	Port(ctx context.Context, id string, internalPort int) (int, error)
	Stop(ctx context.Context, id string) error
}

// IsAbsent reports whether err means the resource is definitely gone.
func IsAbsent(err error) bool { return errors.Is(err, ErrNotFound) }
