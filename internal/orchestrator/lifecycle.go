package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/walletvisor/internal/container"
	"github.com/loykin/walletvisor/internal/history"
	"github.com/loykin/walletvisor/internal/naming"
	"github.com/loykin/walletvisor/internal/store"
	"github.com/loykin/walletvisor/pkg/template"
)

// CreateWallet provisions the user's wallet file in a detached,
// self-removing container and returns its handle without waiting. A
// non-empty seed restores instead of generating. When provisioning is
// already running the existing handle is returned and the stored
// credential is left untouched.
func (o *Orchestrator) CreateWallet(ctx context.Context, username, seed string) (handle string, err error) {
	defer o.observe("create_wallet", time.Now(), &err)
	if err := naming.Validate(username); err != nil {
		return "", err
	}
	rec, _, err := o.st.Load(ctx, username)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", username, err)
	}
	initName := naming.InitContainerName(username)
	if rec.Created {
		h, ok, err := o.provisioning(ctx, username)
		if err != nil {
			return "", err
		}
		if ok {
			return h, nil
		}
		return "", fmt.Errorf("%w: %s", ErrAlreadyCreated, username)
	}

	password, err := naming.NewPassword()
	if err != nil {
		return "", err
	}
	kind := template.KindGenerate
	params := o.params(username, password)
	if seed != "" {
		kind, params.Seed = template.KindRestore, seed
	} else {
		params.RestoreHeight = o.restoreHeight(ctx)
	}
	cmd, err := o.cmds.Render(kind, params)
	if err != nil {
		return "", err
	}
	if err := o.ensureVolume(ctx, naming.VolumeName(username)); err != nil {
		return "", err
	}

	handle, err = o.rt.Run(ctx, container.RunSpec{
		Image:      o.cfg.Image,
		Name:       initName,
		Command:    cmd,
		Volume:     naming.VolumeName(username),
		MountPath:  o.cfg.MountPath,
		AutoRemove: true,
		Labels:     map[string]string{labelUser: username, labelRole: "init"},
	})
	if errors.Is(err, container.ErrConflict) {
		// provisioning already in progress with the previous credential
		handle, err = o.rt.Get(ctx, initName)
		if err != nil {
			return "", fmt.Errorf("fetch running %s: %w", initName, err)
		}
		o.logger().Info("provisioning already running", "user", username, "container", handle)
		return handle, nil
	}
	if err != nil {
		return "", fmt.Errorf("run %s: %w", initName, err)
	}

	rec.Password = password
	rec.Created = true
	if err := o.st.Save(ctx, rec); err != nil {
		// the new wallet file would be sealed with a password nobody stored
		if stopErr := o.StopContainer(context.WithoutCancel(ctx), handle); stopErr != nil {
			o.logger().Warn("stop orphaned provisioning", "user", username, "container", handle, "err", stopErr)
		}
		return "", fmt.Errorf("save %s: %w", username, err)
	}
	if err := o.handleCache().Set(ctx, initName, handle, o.cfg.ProvisionTTL); err != nil {
		o.logger().Warn("cache provisioning handle", "user", username, "err", err)
	}

	evt := history.EventCreateWallet
	if kind == template.KindRestore {
		evt = history.EventRestoreWallet
	}
	ev := rec
	ev.Container = handle
	o.record(ctx, evt, ev, "")
	o.logger().Info("provisioning wallet", "user", username, "container", handle, "mode", kind)
	return handle, nil
}

// StartWallet launches the user's RPC container on an ephemeral host port.
// A container already running under the user's name is returned as is.
func (o *Orchestrator) StartWallet(ctx context.Context, username string) (handle string, err error) {
	defer o.observe("start_wallet", time.Now(), &err)
	if err := naming.Validate(username); err != nil {
		return "", err
	}
	rec, _, err := o.st.Load(ctx, username)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", username, err)
	}
	if !rec.Created || rec.Password == "" {
		return "", fmt.Errorf("%w: %s", ErrNotCreated, username)
	}
	cmd, err := o.cmds.Render(template.KindRPC, o.params(username, rec.Password))
	if err != nil {
		return "", err
	}
	name := naming.RPCContainerName(username)
	handle, err = o.rt.Run(ctx, container.RunSpec{
		Image:      o.cfg.Image,
		Name:       name,
		Command:    cmd,
		Volume:     naming.VolumeName(username),
		MountPath:  o.cfg.MountPath,
		ExposePort: o.cfg.ListenPort,
		BindIP:     o.cfg.BindIP,
		AutoRemove: true,
		Labels:     map[string]string{labelUser: username, labelRole: "rpc"},
	})
	if errors.Is(err, container.ErrConflict) {
		handle, err = o.rt.Get(ctx, name)
		if err != nil {
			return "", fmt.Errorf("fetch running %s: %w", name, err)
		}
		return handle, nil
	}
	if err != nil {
		return "", fmt.Errorf("run %s: %w", name, err)
	}
	return handle, nil
}

// Connect starts the RPC container when needed and records the session.
func (o *Orchestrator) Connect(ctx context.Context, username string) (rec store.Record, err error) {
	defer o.observe("connect", time.Now(), &err)
	if err := naming.Validate(username); err != nil {
		return store.Record{}, err
	}
	rec, _, err = o.st.Load(ctx, username)
	if err != nil {
		return store.Record{}, fmt.Errorf("load %s: %w", username, err)
	}
	if !rec.Created {
		return rec, fmt.Errorf("%w: %s", ErrNotCreated, username)
	}
	if rec.Connected {
		return rec, fmt.Errorf("%w: %s", ErrAlreadyConnected, username)
	}
	handle, err := o.StartWallet(ctx, username)
	if err != nil {
		return rec, err
	}
	if rec.Container != handle || rec.StartedAt.IsZero() {
		// recorded before the port resolves so cleanup can reap it
		rec.Container = handle
		rec.StartedAt = o.now().UTC()
		rec.Port = 0
		if err := o.st.Save(ctx, rec); err != nil {
			if stopErr := o.StopContainer(context.WithoutCancel(ctx), handle); stopErr != nil {
				o.logger().Warn("stop unrecorded rpc container", "user", username, "container", handle, "err", stopErr)
			}
			return rec, fmt.Errorf("save %s: %w", username, err)
		}
	}
	port, err := o.GetPort(ctx, handle)
	if err != nil {
		return rec, err
	}
	alive, err := o.ContainerExists(ctx, handle)
	if err != nil {
		return rec, err
	}
	rec.Connected = alive
	rec.Port = port
	if err := o.st.Save(ctx, rec); err != nil {
		return rec, fmt.Errorf("save %s: %w", username, err)
	}
	o.record(ctx, history.EventStartWallet, rec, "")
	o.logger().Info("wallet connected", "user", username, "container", handle, "port", port, "alive", alive)
	return rec, nil
}

// Disconnect stops the user's RPC container and clears the session fields.
func (o *Orchestrator) Disconnect(ctx context.Context, username string) (err error) {
	defer o.observe("disconnect", time.Now(), &err)
	if err := naming.Validate(username); err != nil {
		return err
	}
	rec, _, err := o.st.Load(ctx, username)
	if err != nil {
		return fmt.Errorf("load %s: %w", username, err)
	}
	handle := rec.Container
	if handle == "" {
		// a session that failed before it was recorded
		handle = naming.RPCContainerName(username)
	}
	alive, err := o.ContainerExists(ctx, handle)
	if err != nil {
		return err
	}
	if alive {
		if err := o.StopContainer(ctx, handle); err != nil {
			return err
		}
		o.record(ctx, history.EventStopContainer, rec, "disconnect")
	}
	if !rec.Connected && rec.Container == "" && rec.Port == 0 && rec.StartedAt.IsZero() {
		return nil
	}
	rec.ClearConnection()
	if err := o.st.Save(ctx, rec); err != nil {
		return fmt.Errorf("save %s: %w", username, err)
	}
	o.record(ctx, history.EventClearWallet, rec, "disconnect")
	return nil
}

// DeleteWallet stops any RPC container, removes the user's volume and
// resets the record to its never-provisioned state. A missing volume is
// tolerated; a volume still in use is reported as container.ErrInUse and the
// record is kept.
func (o *Orchestrator) DeleteWallet(ctx context.Context, username string) (err error) {
	defer o.observe("delete_wallet", time.Now(), &err)
	if err := naming.Validate(username); err != nil {
		return err
	}
	rec, _, err := o.st.Load(ctx, username)
	if err != nil {
		return fmt.Errorf("load %s: %w", username, err)
	}
	handle := rec.Container
	if handle == "" {
		handle = naming.RPCContainerName(username)
	}
	if err := o.StopContainer(ctx, handle); err != nil {
		return err
	}
	o.record(ctx, history.EventStopContainer, rec, "delete")
	if err := o.sleep(ctx, o.cfg.SettleDelay); err != nil {
		return err
	}
	if err := o.DeleteVolume(ctx, naming.VolumeName(username)); err != nil && !container.IsAbsent(err) {
		return err
	}
	if err := o.handleCache().Del(ctx, naming.InitContainerName(username)); err != nil {
		o.logger().Warn("drop provisioning handle", "user", username, "err", err)
	}
	rec.Reset()
	if err := o.st.Save(ctx, rec); err != nil {
		return fmt.Errorf("save %s: %w", username, err)
	}
	o.record(ctx, history.EventDeleteWallet, rec, "")
	o.logger().Info("wallet deleted", "user", username)
	return nil
}

// GetPort returns the host port bound to the wallet RPC port of handle.
func (o *Orchestrator) GetPort(ctx context.Context, handle string) (int, error) {
	return o.rt.Port(ctx, handle, o.cfg.ListenPort)
}

// ContainerExists reports (false, nil) for an absent container and
// container.ErrUnavailable when the runtime cannot answer.
func (o *Orchestrator) ContainerExists(ctx context.Context, handle string) (bool, error) {
	if handle == "" {
		return false, nil
	}
	_, err := o.rt.Get(ctx, handle)
	switch {
	case err == nil:
		return true, nil
	case container.IsAbsent(err):
		return false, nil
	default:
		return false, err
	}
}

// VolumeExists reports whether the named volume exists.
func (o *Orchestrator) VolumeExists(ctx context.Context, name string) (bool, error) {
	return o.rt.VolumeExists(ctx, name)
}

// StopContainer stops handle. An empty or absent handle is a no-op.
func (o *Orchestrator) StopContainer(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	if err := o.rt.Stop(ctx, handle); err != nil && !container.IsAbsent(err) {
		return err
	}
	return nil
}

// DeleteVolume removes name and reports container.ErrInUse unchanged.
func (o *Orchestrator) DeleteVolume(ctx context.Context, name string) error {
	return o.rt.RemoveVolume(ctx, name)
}

func (o *Orchestrator) ensureVolume(ctx context.Context, name string) error {
	ok, err := o.rt.VolumeExists(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	// a concurrent create for the same user may win the race
	if err := o.rt.CreateVolume(ctx, name); err != nil && !errors.Is(err, container.ErrConflict) {
		return fmt.Errorf("create volume %s: %w", name, err)
	}
	return nil
}

// provisioning returns the handle of the user's running provisioning
// container. The cache only short-cuts the lookup; a miss falls back to the
// runtime by the deterministic container name.
func (o *Orchestrator) provisioning(ctx context.Context, username string) (string, bool, error) {
	name := naming.InitContainerName(username)
	var handle string
	ok, err := o.handleCache().Get(ctx, name, &handle)
	if err != nil {
		o.logger().Warn("read provisioning handle", "user", username, "err", err)
	}
	if ok {
		alive, err := o.ContainerExists(ctx, handle)
		if err != nil {
			return "", false, err
		}
		if alive {
			return handle, true, nil
		}
	}
	handle, err = o.rt.Get(ctx, name)
	switch {
	case container.IsAbsent(err):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	if err := o.handleCache().Set(ctx, name, handle, o.cfg.ProvisionTTL); err != nil {
		o.logger().Warn("cache provisioning handle", "user", username, "err", err)
	}
	return handle, true, nil
}

func (o *Orchestrator) restoreHeight(ctx context.Context) uint64 {
	src := o.heightSource()
	if src == nil {
		return 0
	}
	h, err := src.Height(ctx)
	if err != nil {
		o.logger().Warn("daemon height unavailable, scanning from genesis", "err", err)
		return 0
	}
	return h
}

func (o *Orchestrator) params(username, password string) template.Params {
	return template.Params{
		Username:      username,
		Password:      password,
		WalletDir:     o.cfg.MountPath,
		DaemonAddress: o.cfg.DaemonAddress,
		DaemonLogin:   o.cfg.DaemonLogin,
		ListenPort:    o.cfg.ListenPort,
	}
}
