package orchestrator

import (
	"context"
	"fmt"

	"github.com/loykin/walletvisor/internal/naming"
	"github.com/loykin/walletvisor/internal/rpc"
)

// Status is the polling view of one user's wallet.
type Status struct {
	Username     string `json:"username"`
	Created      bool   `json:"created"`
	Connected    bool   `json:"connected"`
	Port         int    `json:"port"`
	Container    string `json:"container"`
	Volume       bool   `json:"volume"`
	Initializing bool   `json:"initializing"`
	Ready        bool   `json:"ready"`
}

// Status combines the stored record with live runtime and RPC checks.
// Initializing is true while the user's provisioning container still runs.
func (o *Orchestrator) Status(ctx context.Context, username string) (Status, error) {
	if err := naming.Validate(username); err != nil {
		return Status{}, err
	}
	rec, _, err := o.st.Load(ctx, username)
	if err != nil {
		return Status{}, fmt.Errorf("load %s: %w", username, err)
	}
	s := Status{
		Username:  username,
		Created:   rec.Created,
		Connected: rec.Connected,
		Port:      rec.Port,
		Container: rec.Container,
	}
	if s.Volume, err = o.VolumeExists(ctx, naming.VolumeName(username)); err != nil {
		return s, err
	}
	if _, s.Initializing, err = o.provisioning(ctx, username); err != nil {
		return s, err
	}
	if rec.Created && rec.Connected {
		s.Ready = o.walletFor(username, rec.Port, rec.Password).Connected(ctx)
	}
	return s, nil
}

// Wallet returns an RPC client for the user's running wallet.
func (o *Orchestrator) Wallet(ctx context.Context, username string) (*rpc.Wallet, error) {
	if err := naming.Validate(username); err != nil {
		return nil, err
	}
	rec, _, err := o.st.Load(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", username, err)
	}
	if !rec.Created {
		return nil, fmt.Errorf("%w: %s", ErrNotCreated, username)
	}
	if !rec.Connected {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, username)
	}
	return o.walletFor(username, rec.Port, rec.Password), nil
}

func (o *Orchestrator) walletFor(username string, port int, password string) *rpc.Wallet {
	return rpc.NewWallet(rpc.Config{
		Host:            o.cfg.RPCHost,
		Port:            port,
		Username:        username,
		Password:        password,
		Timeout:         o.cfg.RPCTimeout,
		ProbeTimeout:    o.cfg.RPCProbeTimeout,
		TransferTimeout: o.cfg.RPCTransferTimeout,
		Logger:          o.logger(),
	})
}
