package rpc

import (
	"context"
	"time"
)

// Daemon queries the chain daemon the wallets sync from.
type Daemon struct {
	c *Client
}

// DaemonConfig addresses a daemon JSON-RPC endpoint.
type DaemonConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	Timeout  time.Duration
}

func NewDaemon(cfg DaemonConfig) *Daemon {
	return &Daemon{c: NewClient(Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		TLS:      cfg.TLS,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
	})}
}

// Height returns the daemon's current chain height from get_info.
func (d *Daemon) Height(ctx context.Context) (uint64, error) {
	var res struct {
		Height uint64 `json:"height"`
	}
	if err := d.c.Call(ctx, "get_info", nil, &res); err != nil {
		return 0, err
	}
	return res.Height, nil
}
