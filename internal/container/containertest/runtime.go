// Package containertest provides an in-memory container.Runtime for tests.
package containertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/loykin/walletvisor/internal/container"
)

// Runtime is a thread-safe fake. Containers run until Stop, and Stop removes
// AutoRemove containers the way the engine does.
type Runtime struct {
	mu sync.Mutex

	Volumes    map[string]bool
	Containers map[string]*Container
	byID       map[string]*Container
	nextID     int
	nextPort   int

	// Down makes every call fail with container.ErrUnavailable.
	Down bool
	// InUse makes RemoveVolume fail with container.ErrInUse for these names.
	InUse map[string]bool
	// RunHook, when set, runs before a container is registered.
	RunHook func(spec container.RunSpec) error

	Calls []string
}

// Container is a fake container record.
type Container struct {
	ID      string
	Spec    container.RunSpec
	Port    int
	Running bool
}

func New() *Runtime {
	return &Runtime{
		Volumes:    map[string]bool{},
		Containers: map[string]*Container{},
		byID:       map[string]*Container{},
		InUse:      map[string]bool{},
		nextPort:   40000,
	}
}

func (r *Runtime) call(name string) error {
	r.Calls = append(r.Calls, name)
	if r.Down {
		return fmt.Errorf("%w: %s", container.ErrUnavailable, name)
	}
	return nil
}

func (r *Runtime) Ping(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.call("ping")
}

func (r *Runtime) CreateVolume(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.call("create_volume"); err != nil {
		return err
	}
	if r.Volumes[name] {
		return fmt.Errorf("%w: volume %s", container.ErrConflict, name)
	}
	r.Volumes[name] = true
	return nil
}

func (r *Runtime) VolumeExists(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.call("volume_exists"); err != nil {
		return false, err
	}
	return r.Volumes[name], nil
}

func (r *Runtime) RemoveVolume(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.call("remove_volume"); err != nil {
		return err
	}
	if !r.Volumes[name] {
		return fmt.Errorf("%w: volume %s", container.ErrNotFound, name)
	}
	if r.InUse[name] {
		return fmt.Errorf("%w: volume %s", container.ErrInUse, name)
	}
	for _, c := range r.Containers {
		if c.Running && c.Spec.Volume == name {
			return fmt.Errorf("%w: volume %s mounted by %s", container.ErrInUse, name, c.Spec.Name)
		}
	}
	delete(r.Volumes, name)
	return nil
}

func (r *Runtime) Run(_ context.Context, spec container.RunSpec) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.call("run:" + spec.Name); err != nil {
		return "", err
	}
	if _, ok := r.Containers[spec.Name]; ok {
		return "", fmt.Errorf("%w: container %s", container.ErrConflict, spec.Name)
	}
	if r.RunHook != nil {
		if err := r.RunHook(spec); err != nil {
			return "", err
		}
	}
	r.nextID++
	c := &Container{ID: fmt.Sprintf("c%011d", r.nextID), Spec: spec, Running: true}
	if spec.ExposePort > 0 {
		r.nextPort++
		c.Port = r.nextPort
	}
	r.Containers[spec.Name] = c
	r.byID[c.ID] = c
	return c.ID, nil
}

func (r *Runtime) lookup(nameOrID string) *Container {
	if c, ok := r.Containers[nameOrID]; ok {
		return c
	}
	return r.byID[nameOrID]
}

func (r *Runtime) Get(_ context.Context, nameOrID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.call("get"); err != nil {
		return "", err
	}
	c := r.lookup(nameOrID)
	if c == nil {
		return "", fmt.Errorf("%w: container %s", container.ErrNotFound, nameOrID)
	}
	return c.ID, nil
}

func (r *Runtime) Port(_ context.Context, id string, internalPort int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.call("port"); err != nil {
		return 0, err
	}
	c := r.lookup(id)
	if c == nil || c.Port == 0 || c.Spec.ExposePort != internalPort {
		return 0, fmt.Errorf("%w: %s", container.ErrPortUnresolved, id)
	}
	return c.Port, nil
}

func (r *Runtime) Stop(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.call("stop"); err != nil {
		return err
	}
	c := r.lookup(id)
	if c == nil {
		return fmt.Errorf("%w: container %s", container.ErrNotFound, id)
	}
	c.Running = false
	if c.Spec.AutoRemove {
		r.remove(c)
	}
	return nil
}

// Vanish drops a container as if it exited and was auto-removed.
func (r *Runtime) Vanish(nameOrID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c := r.lookup(nameOrID); c != nil {
		r.remove(c)
	}
}

// Has reports whether a container with the given name exists.
func (r *Runtime) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.Containers[name]
	return ok
}

// Count returns how many recorded calls match call.
func (r *Runtime) Count(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.Calls {
		if c == call {
			n++
		}
	}
	return n
}

func (r *Runtime) SetDown(down bool) {
	r.mu.Lock()
	r.Down = down
	r.mu.Unlock()
}

func (r *Runtime) remove(c *Container) {
	delete(r.Containers, c.Spec.Name)
	delete(r.byID, c.ID)
}

var _ container.Runtime = (*Runtime)(nil)
