// Package orchestrator drives the per-user wallet lifecycle: provisioning
// containers, RPC containers, their volumes and the persisted record that
// describes them.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/walletvisor/internal/cache"
	"github.com/loykin/walletvisor/internal/container"
	"github.com/loykin/walletvisor/internal/history"
	"github.com/loykin/walletvisor/internal/metrics"
	"github.com/loykin/walletvisor/internal/store"
	"github.com/loykin/walletvisor/pkg/template"
)

var (
	// ErrNotCreated means the user has never provisioned a wallet.
	ErrNotCreated = errors.New("wallet not created")
	// ErrNotConnected means no RPC container is recorded for the user.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrAlreadyCreated rejects provisioning over an existing wallet.
	ErrAlreadyCreated = errors.New("wallet already created")
	// ErrAlreadyConnected rejects a second connect for a live session.
	ErrAlreadyConnected = errors.New("wallet already connected")
)

const (
	labelUser = "walletvisor.user"
	labelRole = "walletvisor.role"
)

// Config holds everything the orchestrator needs to build containers and
// RPC clients.
type Config struct {
	Image      string
	MountPath  string // volume mount point inside containers
	ListenPort int    // wallet RPC port inside the container
	BindIP     string // host address published ports bind to

	// RPCHost is where this process reaches published wallet ports.
	RPCHost            string
	RPCTimeout         time.Duration
	RPCProbeTimeout    time.Duration
	RPCTransferTimeout time.Duration

	DaemonAddress string // scheme://host:port
	DaemonLogin   string // user:pass or empty

	Commands template.Set

	// ProvisionTTL is how long a provisioning handle stays cached.
	ProvisionTTL    time.Duration
	SessionLifetime time.Duration
	// SettleDelay pauses after stopping a container so the runtime can
	// release it.
	SettleDelay time.Duration
	// Concurrency bounds how many users Cleanup reconciles at once.
	Concurrency int
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		Image:              "sn1f3rt/nerva:latest",
		MountPath:          "/wallet",
		ListenPort:         8888,
		BindIP:             "127.0.0.1",
		RPCHost:            "127.0.0.1",
		RPCTimeout:         10 * time.Second,
		RPCProbeTimeout:    3 * time.Second,
		RPCTransferTimeout: 30 * time.Second,
		ProvisionTTL:       30 * time.Second,
		SessionLifetime:    time.Hour,
		SettleDelay:        2 * time.Second,
		Concurrency:        4,
	}
}

// HeightSource reports the chain height new wallets start scanning from.
type HeightSource interface {
	Height(ctx context.Context) (uint64, error)
}

// Orchestrator is safe for concurrent use. It holds no per-user lock:
// deterministic container names let the runtime reject duplicates.
type Orchestrator struct {
	cfg  Config
	rt   container.Runtime
	st   store.Store
	cmds *template.Generator

	mu        sync.Mutex
	histSinks []history.Sink
	cache     cache.Cache
	heights   HeightSource
	log       *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New validates the command templates and returns an orchestrator with an
// in-memory handle cache.
func New(cfg Config, rt container.Runtime, st store.Store) (*Orchestrator, error) {
	if rt == nil || st == nil {
		return nil, errors.New("orchestrator requires a runtime and a store")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	gen, err := template.NewGenerator(cfg.Commands)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:   cfg,
		rt:    rt,
		st:    st,
		cmds:  gen,
		cache: cache.NewMemory(),
		log:   slog.Default(),
		now:   time.Now,
		sleep: sleepCtx,
	}, nil
}

// SetHistorySinks replaces the event sinks.
func (o *Orchestrator) SetHistorySinks(sinks ...history.Sink) {
	o.mu.Lock()
	o.histSinks = append([]history.Sink(nil), sinks...)
	o.mu.Unlock()
}

// SetCache replaces the provisioning handle cache.
func (o *Orchestrator) SetCache(c cache.Cache) {
	if c == nil {
		return
	}
	o.mu.Lock()
	o.cache = c
	o.mu.Unlock()
}

// SetHeightSource sets where generate-mode provisioning reads the restore
// height. Without one new wallets scan from height 0.
func (o *Orchestrator) SetHeightSource(h HeightSource) {
	o.mu.Lock()
	o.heights = h
	o.mu.Unlock()
}

// SetLogger sets the logger used for lifecycle messages.
func (o *Orchestrator) SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	o.mu.Lock()
	o.log = l.With("component", "orchestrator")
	o.mu.Unlock()
}

// Runtime exposes the container runtime, used by health checks.
func (o *Orchestrator) Runtime() container.Runtime { return o.rt }

// Store exposes the record store, used by health checks.
func (o *Orchestrator) Store() store.Store { return o.st }

// Cache exposes the provisioning handle cache, used by health checks.
func (o *Orchestrator) Cache() cache.Cache { return o.handleCache() }

func (o *Orchestrator) logger() *slog.Logger {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.log
}

func (o *Orchestrator) handleCache() cache.Cache {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cache
}

func (o *Orchestrator) heightSource() HeightSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.heights
}

func (o *Orchestrator) record(ctx context.Context, typ history.EventType, rec store.Record, detail string) {
	o.mu.Lock()
	sinks := append([]history.Sink(nil), o.histSinks...)
	o.mu.Unlock()
	if len(sinks) == 0 {
		return
	}
	evt := history.Event{
		Type:       typ,
		OccurredAt: o.now().UTC(),
		Username:   rec.Username,
		Container:  rec.Container,
		Port:       rec.Port,
		Detail:     detail,
	}
	// sinks must not fail the lifecycle operation or inherit its cancellation
	ctx = context.WithoutCancel(ctx)
	for _, s := range sinks {
		if err := s.Send(ctx, evt); err != nil {
			o.logger().Warn("history sink", "type", typ, "user", rec.Username, "err", err)
		}
	}
}

func (o *Orchestrator) observe(op string, start time.Time, err *error) {
	metrics.ObserveOperation(op, *err, time.Since(start).Seconds())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
