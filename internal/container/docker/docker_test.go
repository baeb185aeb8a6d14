package docker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	dcontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/walletvisor/internal/container"
)

type fakeAPI struct {
	pingErr error

	volumes      map[string]bool
	volumeInUse  map[string]bool
	containers   map[string]dcontainer.InspectResponse
	lastConfig   *dcontainer.Config
	lastHost     *dcontainer.HostConfig
	startErr     error
	removed      []string
	stopped      []string
	createCalled int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		volumes:     map[string]bool{},
		volumeInUse: map[string]bool{},
		containers:  map[string]dcontainer.InspectResponse{},
	}
}

func (f *fakeAPI) Ping(context.Context) (types.Ping, error) { return types.Ping{}, f.pingErr }

func (f *fakeAPI) VolumeCreate(_ context.Context, o volume.CreateOptions) (volume.Volume, error) {
	if f.volumes[o.Name] {
		return volume.Volume{}, fmt.Errorf("volume %s: %w", o.Name, cerrdefs.ErrConflict)
	}
	f.volumes[o.Name] = true
	return volume.Volume{Name: o.Name, Driver: o.Driver}, nil
}

func (f *fakeAPI) VolumeInspect(_ context.Context, name string) (volume.Volume, error) {
	if !f.volumes[name] {
		return volume.Volume{}, fmt.Errorf("no such volume: %w", cerrdefs.ErrNotFound)
	}
	return volume.Volume{Name: name}, nil
}

func (f *fakeAPI) VolumeRemove(_ context.Context, name string, _ bool) error {
	if !f.volumes[name] {
		return fmt.Errorf("no such volume: %w", cerrdefs.ErrNotFound)
	}
	if f.volumeInUse[name] {
		return fmt.Errorf("volume is in use: %w", cerrdefs.ErrConflict)
	}
	delete(f.volumes, name)
	return nil
}

func (f *fakeAPI) ContainerCreate(_ context.Context, cfg *dcontainer.Config, host *dcontainer.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (dcontainer.CreateResponse, error) {
	f.createCalled++
	if _, ok := f.containers[name]; ok {
		return dcontainer.CreateResponse{}, fmt.Errorf("name in use: %w", cerrdefs.ErrConflict)
	}
	f.lastConfig, f.lastHost = cfg, host
	id := fmt.Sprintf("%064d", f.createCalled)
	info := dcontainer.InspectResponse{
		ContainerJSONBase: &dcontainer.ContainerJSONBase{ID: id, Name: "/" + name},
		NetworkSettings:   &dcontainer.NetworkSettings{},
	}
	info.NetworkSettings.Ports = nat.PortMap{}
	for p := range host.PortBindings {
		info.NetworkSettings.Ports[p] = []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: "49153"}}
	}
	f.containers[name] = info
	f.containers[id[:shortIDLen]] = info
	return dcontainer.CreateResponse{ID: id}, nil
}

func (f *fakeAPI) ContainerStart(context.Context, string, dcontainer.StartOptions) error {
	return f.startErr
}

func (f *fakeAPI) ContainerInspect(_ context.Context, id string) (dcontainer.InspectResponse, error) {
	info, ok := f.containers[id]
	if !ok {
		return dcontainer.InspectResponse{}, fmt.Errorf("no such container: %w", cerrdefs.ErrNotFound)
	}
	return info, nil
}

func (f *fakeAPI) ContainerStop(_ context.Context, id string, _ dcontainer.StopOptions) error {
	if _, ok := f.containers[id]; !ok {
		return fmt.Errorf("no such container: %w", cerrdefs.ErrNotFound)
	}
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeAPI) ContainerRemove(_ context.Context, id string, _ dcontainer.RemoveOptions) error {
	f.removed = append(f.removed, id)
	return nil
}

func TestVolumeLifecycle(t *testing.T) {
	api := newFakeAPI()
	rt := NewWithAPI(api, time.Second, nil)
	ctx := context.Background()

	ok, err := rt.VolumeExists(ctx, "user_alice_wallet")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rt.CreateVolume(ctx, "user_alice_wallet"))
	ok, err = rt.VolumeExists(ctx, "user_alice_wallet")
	require.NoError(t, err)
	assert.True(t, ok)

	err = rt.CreateVolume(ctx, "user_alice_wallet")
	assert.ErrorIs(t, err, container.ErrConflict)

	api.volumeInUse["user_alice_wallet"] = true
	assert.ErrorIs(t, rt.RemoveVolume(ctx, "user_alice_wallet"), container.ErrInUse)

	api.volumeInUse["user_alice_wallet"] = false
	require.NoError(t, rt.RemoveVolume(ctx, "user_alice_wallet"))
	assert.ErrorIs(t, rt.RemoveVolume(ctx, "user_alice_wallet"), container.ErrNotFound)

	ok, err = rt.VolumeExists(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunBuildsContainerConfig(t *testing.T) {
	api := newFakeAPI()
	rt := NewWithAPI(api, time.Second, nil)
	ctx := context.Background()

	id, err := rt.Run(ctx, container.RunSpec{
		Image:      "sn1f3rt/nerva:latest",
		Name:       "rpc_wallet_alice",
		Command:    "nerva-wallet-rpc --rpc-bind-port 8888",
		Volume:     "user_alice_wallet",
		MountPath:  "/wallet",
		ExposePort: 8888,
		AutoRemove: true,
	})
	require.NoError(t, err)
	assert.Len(t, id, shortIDLen)

	assert.Equal(t, []string{"sh", "-c"}, []string(api.lastConfig.Entrypoint))
	assert.Equal(t, []string{"nerva-wallet-rpc --rpc-bind-port 8888"}, []string(api.lastConfig.Cmd))
	assert.True(t, api.lastHost.AutoRemove)
	require.Len(t, api.lastHost.Mounts, 1)
	assert.Equal(t, mount.TypeVolume, api.lastHost.Mounts[0].Type)
	assert.Equal(t, "user_alice_wallet", api.lastHost.Mounts[0].Source)
	assert.Equal(t, "/wallet", api.lastHost.Mounts[0].Target)

	binding := api.lastHost.PortBindings[nat.Port("8888/tcp")]
	require.Len(t, binding, 1)
	assert.Equal(t, "127.0.0.1", binding[0].HostIP)
	assert.Equal(t, "", binding[0].HostPort)

	got, err := rt.Get(ctx, "rpc_wallet_alice")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	port, err := rt.Port(ctx, id, 8888)
	require.NoError(t, err)
	assert.Equal(t, 49153, port)
}

func TestRunConflictAndStartFailure(t *testing.T) {
	api := newFakeAPI()
	rt := NewWithAPI(api, time.Second, nil)
	ctx := context.Background()

	spec := container.RunSpec{Image: "img", Name: "init_wallet_bob", Command: "true"}
	_, err := rt.Run(ctx, spec)
	require.NoError(t, err)
	_, err = rt.Run(ctx, spec)
	assert.ErrorIs(t, err, container.ErrConflict)

	api.startErr = errors.New("exec format error")
	_, err = rt.Run(ctx, container.RunSpec{Image: "img", Name: "init_wallet_carol", Command: "true"})
	require.Error(t, err)
	assert.Len(t, api.removed, 1, "unstarted container should be removed")
}

func TestGetPortStopAbsent(t *testing.T) {
	rt := NewWithAPI(newFakeAPI(), time.Second, nil)
	ctx := context.Background()

	_, err := rt.Get(ctx, "rpc_wallet_nobody")
	assert.ErrorIs(t, err, container.ErrNotFound)
	assert.True(t, container.IsAbsent(err))

	_, err = rt.Get(ctx, "")
	assert.ErrorIs(t, err, container.ErrNotFound)

	_, err = rt.Port(ctx, "deadbeef", 8888)
	assert.ErrorIs(t, err, container.ErrPortUnresolved)

	assert.ErrorIs(t, rt.Stop(ctx, "deadbeef"), container.ErrNotFound)
}

func TestPortWithoutBinding(t *testing.T) {
	api := newFakeAPI()
	rt := NewWithAPI(api, time.Second, nil)
	ctx := context.Background()

	id, err := rt.Run(ctx, container.RunSpec{Image: "img", Name: "init_wallet_dave", Command: "true"})
	require.NoError(t, err)
	_, err = rt.Port(ctx, id, 8888)
	assert.ErrorIs(t, err, container.ErrPortUnresolved)
}

func TestPingUnavailable(t *testing.T) {
	api := newFakeAPI()
	rt := NewWithAPI(api, time.Second, nil)
	require.NoError(t, rt.Ping(context.Background()))

	api.pingErr = fmt.Errorf("daemon down: %w", cerrdefs.ErrUnavailable)
	assert.ErrorIs(t, rt.Ping(context.Background()), container.ErrUnavailable)

	api.pingErr = context.DeadlineExceeded
	assert.ErrorIs(t, rt.Ping(context.Background()), container.ErrUnavailable)
}
