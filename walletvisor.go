// Package walletvisor runs one isolated wallet RPC container per user and
// reclaims them when sessions expire. App wires the runtime, stores, sinks
// and API server from a Config; the type aliases below are the stable
// surface for embedding.
package walletvisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/walletvisor/internal/auth"
	"github.com/loykin/walletvisor/internal/cache"
	"github.com/loykin/walletvisor/internal/config"
	"github.com/loykin/walletvisor/internal/container"
	"github.com/loykin/walletvisor/internal/container/docker"
	"github.com/loykin/walletvisor/internal/history"
	hfactory "github.com/loykin/walletvisor/internal/history/factory"
	"github.com/loykin/walletvisor/internal/logger"
	"github.com/loykin/walletvisor/internal/metrics"
	"github.com/loykin/walletvisor/internal/orchestrator"
	"github.com/loykin/walletvisor/internal/reaper"
	"github.com/loykin/walletvisor/internal/rpc"
	iapi "github.com/loykin/walletvisor/internal/server"
	"github.com/loykin/walletvisor/internal/store"
	sfactory "github.com/loykin/walletvisor/internal/store/factory"
	apitls "github.com/loykin/walletvisor/internal/tls"
)

type (
	Config       = config.Config
	Orchestrator = orchestrator.Orchestrator
	Status       = orchestrator.Status
	Report       = orchestrator.Report
	Record       = store.Record
	Wallet       = rpc.Wallet
	HistorySink  = history.Sink
	Runtime      = container.Runtime
)

// LoadConfig reads a TOML file plus .env and WALLETVISOR_* overrides.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	return config.Load(path, envFiles...)
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config { return config.Default() }

// App is a fully wired walletvisor daemon.
type App struct {
	Config       *Config
	Log          *slog.Logger
	Orchestrator *Orchestrator
	Reaper       *reaper.Reaper

	store   store.Store
	sinks   []history.Sink
	cache   cache.Cache
	logFile io.Closer
}

// Options override components NewApp would otherwise build from Config.
type Options struct {
	Runtime container.Runtime
	Store   store.Store
	Logger  *slog.Logger
}

// NewApp builds every component described by cfg. Components given in opts
// are used as is.
func NewApp(ctx context.Context, cfg *Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: opts.Logger}
	if a.Log == nil {
		l, closer, err := logger.New(cfg.Log)
		if err != nil {
			return nil, err
		}
		a.Log, a.logFile = l, closer
	}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	rt := opts.Runtime
	if rt == nil {
		d, err := docker.New(docker.Config{Host: cfg.Runtime.Host, Timeout: cfg.Runtime.Timeout}, a.Log)
		if err != nil {
			return nil, err
		}
		rt = d
	}
	if err := rt.Ping(ctx); err != nil {
		a.Log.Warn("container runtime not reachable yet", "err", err)
	}

	a.store = opts.Store
	if a.store == nil {
		if err := ensureSQLiteDir(cfg.Store.DSN); err != nil {
			return nil, err
		}
		st, err := sfactory.New(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open record store: %w", err)
		}
		a.store = st
	}
	if err := a.store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("record store schema: %w", err)
	}

	sinks, err := hfactory.NewSinks(cfg.History.Sinks)
	if err != nil {
		return nil, fmt.Errorf("history sinks: %w", err)
	}
	a.sinks = sinks

	if a.cache, err = cache.New(cfg.Cache.DSN); err != nil {
		return nil, err
	}

	o, err := orchestrator.New(OrchestratorConfig(cfg), rt, a.store)
	if err != nil {
		return nil, err
	}
	o.SetLogger(a.Log)
	o.SetCache(a.cache)
	o.SetHistorySinks(a.sinks...)
	o.SetHeightSource(rpc.NewDaemon(rpc.DaemonConfig{
		Host:     cfg.Daemon.Host,
		Port:     cfg.Daemon.Port,
		TLS:      cfg.Daemon.TLS,
		Username: cfg.Daemon.Username,
		Password: cfg.Daemon.Password,
		Timeout:  cfg.Daemon.Timeout,
	}))
	a.Orchestrator = o

	if a.Reaper, err = reaper.New(o, cfg.Session.Interval, a.Log); err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

// OrchestratorConfig projects the daemon configuration onto the orchestrator.
func OrchestratorConfig(cfg *Config) orchestrator.Config {
	return orchestrator.Config{
		Image:              cfg.Runtime.Image,
		MountPath:          cfg.Runtime.MountPath,
		ListenPort:         cfg.Runtime.ListenPort,
		BindIP:             cfg.Runtime.BindIP,
		RPCHost:            cfg.RPC.Host,
		RPCTimeout:         cfg.RPC.Timeout,
		RPCProbeTimeout:    cfg.RPC.ProbeTimeout,
		RPCTransferTimeout: cfg.RPC.TransferTimeout,
		DaemonAddress:      cfg.Daemon.Address(),
		DaemonLogin:        cfg.Daemon.Login(),
		Commands:           cfg.Commands,
		ProvisionTTL:       cfg.Runtime.ProvisionTTL,
		SessionLifetime:    cfg.Session.Lifetime,
		SettleDelay:        cfg.Session.SettleDelay,
		Concurrency:        cfg.Session.Concurrency,
	}
}

// Handler returns the operator API handler, guarded by operator
// authentication when it is enabled.
func (a *App) Handler() (http.Handler, error) {
	r, err := a.router()
	if err != nil {
		return nil, err
	}
	return r.Handler(), nil
}

func (a *App) router() (*iapi.Router, error) {
	r := iapi.NewRouter(a.Orchestrator, a.Reaper, a.Config.Server.BasePath)
	if a.Config.Server.Auth.Enabled {
		svc, err := auth.NewService(a.Config.Server.Auth)
		if err != nil {
			return nil, fmt.Errorf("api auth: %w", err)
		}
		r.SetAuth(auth.NewMiddleware(svc))
	}
	return r, nil
}

// Serve runs the reaper, the operator API and, when enabled, the metrics
// endpoint until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	tlsCfg, err := apitls.Setup(a.Config.Server.TLS)
	if err != nil {
		return fmt.Errorf("api tls: %w", err)
	}
	router, err := a.router()
	if err != nil {
		return err
	}

	if a.Config.Metrics.Enabled {
		if err := RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		if a.Config.Metrics.Listen != "" {
			ms := NewMetricsServer(a.Config.Metrics.Listen)
			go func() {
				if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.Log.Error("metrics server stopped", "err", err)
				}
			}()
			defer func() { _ = ms.Close() }()
		}
		if sampler, err := metrics.NewSampler(ctx, a.Config.DataDir); err != nil {
			a.Log.Warn("host metrics disabled", "err", err)
		} else {
			go sampler.Run(ctx, a.Config.Metrics.HostInterval, a.Log)
		}
	}

	if err := a.Reaper.Start(ctx); err != nil {
		return err
	}
	defer a.Reaper.Stop()

	srv := iapi.NewServer(a.Config.Server.Listen, router, tlsCfg)
	a.Log.Info("walletvisor serving", "listen", a.Config.Server.Listen, "base_path", a.Config.Server.BasePath, "tls", tlsCfg != nil)

	<-ctx.Done()
	a.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Close releases stores, sinks, cache and the log file.
func (a *App) Close() error {
	var errs []error
	hfactory.Close(a.sinks)
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logFile != nil {
		errs = append(errs, a.logFile.Close())
	}
	return errors.Join(errs...)
}

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// NewMetricsServer returns a server exposing /metrics for the default registry.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ensureSQLiteDir creates the parent directory of a sqlite DSN path.
func ensureSQLiteDir(dsn string) error {
	var path string
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		path = strings.TrimPrefix(dsn, "sqlite://")
	case strings.Contains(dsn, "://"), dsn == "":
		return nil
	default:
		path = dsn
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(filepath.Clean(path)), 0o750)
}
