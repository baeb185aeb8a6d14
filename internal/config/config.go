// Package config loads walletvisor settings from TOML, .env files and
// WALLETVISOR_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/loykin/walletvisor/internal/auth"
	"github.com/loykin/walletvisor/internal/logger"
	"github.com/loykin/walletvisor/internal/store"
	apitls "github.com/loykin/walletvisor/internal/tls"
	"github.com/loykin/walletvisor/pkg/template"
)

// EnvPrefix prefixes every environment override, e.g. WALLETVISOR_DAEMON_HOST.
const EnvPrefix = "WALLETVISOR"

type Config struct {
	// DataDir holds local state such as the default SQLite record store.
	DataDir  string         `mapstructure:"data_dir"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Session  SessionConfig  `mapstructure:"session"`
	Commands template.Set   `mapstructure:"commands"`
	Store    store.Config   `mapstructure:"store"`
	History  HistoryConfig  `mapstructure:"history"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      logger.Config  `mapstructure:"log"`
}

type RuntimeConfig struct {
	Host         string        `mapstructure:"host"` // empty uses DOCKER_HOST
	Image        string        `mapstructure:"image"`
	Timeout      time.Duration `mapstructure:"timeout"`
	BindIP       string        `mapstructure:"bind_ip"`
	MountPath    string        `mapstructure:"mount_path"`
	ListenPort   int           `mapstructure:"listen_port"`
	ProvisionTTL time.Duration `mapstructure:"provision_ttl"`
}

type DaemonConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	TLS      bool          `mapstructure:"tls"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Address is the scheme://host:port form wallet processes dial.
func (d DaemonConfig) Address() string {
	scheme := "http"
	if d.TLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(d.Host, fmt.Sprint(d.Port)))
}

// Login is user:pass, or empty when the daemon is unauthenticated.
func (d DaemonConfig) Login() string {
	if d.Username == "" {
		return ""
	}
	return d.Username + ":" + d.Password
}

type RPCConfig struct {
	// Host is where published wallet ports are reachable from this process.
	Host            string        `mapstructure:"host"`
	Timeout         time.Duration `mapstructure:"timeout"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout"`
}

type SessionConfig struct {
	Lifetime    time.Duration `mapstructure:"lifetime"`
	Interval    time.Duration `mapstructure:"interval"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	Concurrency int           `mapstructure:"concurrency"`
}

type HistoryConfig struct {
	// Sinks are DSNs understood by history/factory.
	Sinks []string `mapstructure:"sinks"`
}

type CacheConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ServerConfig struct {
	Listen   string        `mapstructure:"listen"`
	BasePath string        `mapstructure:"base_path"`
	TLS      apitls.Config `mapstructure:"tls"`
	Auth     auth.Config   `mapstructure:"auth"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`

	// HostInterval paces the daemon memory, CPU and disk gauges.
	HostInterval time.Duration `mapstructure:"host_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")

	v.SetDefault("runtime.host", "")
	v.SetDefault("runtime.image", "sn1f3rt/nerva:latest")
	v.SetDefault("runtime.timeout", 15*time.Second)
	v.SetDefault("runtime.bind_ip", "127.0.0.1")
	v.SetDefault("runtime.mount_path", "/wallet")
	v.SetDefault("runtime.listen_port", 8888)
	v.SetDefault("runtime.provision_ttl", 30*time.Second)

	v.SetDefault("daemon.host", "127.0.0.1")
	v.SetDefault("daemon.port", 17566)
	v.SetDefault("daemon.tls", false)
	v.SetDefault("daemon.username", "")
	v.SetDefault("daemon.password", "")
	v.SetDefault("daemon.timeout", 10*time.Second)

	v.SetDefault("rpc.host", "127.0.0.1")
	v.SetDefault("rpc.timeout", 10*time.Second)
	v.SetDefault("rpc.probe_timeout", 3*time.Second)
	v.SetDefault("rpc.transfer_timeout", 30*time.Second)

	v.SetDefault("session.lifetime", time.Hour)
	v.SetDefault("session.interval", time.Minute)
	v.SetDefault("session.settle_delay", 2*time.Second)
	v.SetDefault("session.concurrency", 4)

	v.SetDefault("commands.generate", "")
	v.SetDefault("commands.restore", "")
	v.SetDefault("commands.rpc", "")

	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_open_conns", 0)
	v.SetDefault("store.max_idle_conns", 0)
	v.SetDefault("store.conn_max_age", time.Duration(0))

	v.SetDefault("history.sinks", []string{})
	v.SetDefault("cache.dsn", "memory://")

	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.dir", "")
	v.SetDefault("server.tls.auto_generate", false)
	v.SetDefault("server.auth.enabled", false)
	v.SetDefault("server.auth.jwt_secret", "")
	v.SetDefault("server.auth.token_ttl", 12*time.Hour)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9090")
	v.SetDefault("metrics.host_interval", 15*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logger.FormatText)
	v.SetDefault("log.source", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.compress", false)
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	c.finish()
	return &c
}

// Load reads path (optional) after loading envFiles into the process
// environment. With no envFiles a .env in the working directory is loaded
// when present.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadEnv(envFiles); err != nil {
		return nil, err
	}
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// list keys set from the environment arrive comma separated
	c.History.Sinks = splitList(strings.Join(c.History.Sinks, ","))
	c.finish()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func loadEnv(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	for _, f := range files {
		if err := godotenv.Load(filepath.Clean(f)); err != nil {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

// finish derives values that depend on other settings.
func (c *Config) finish() {
	if c.Store.DSN == "" {
		c.Store.DSN = "sqlite://" + filepath.Join(c.DataDir, "walletvisor.db")
	}
}

// Validate rejects settings no deployment can work with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Runtime.Image) == "" {
		errs = append(errs, errors.New("runtime.image is required"))
	}
	if !strings.HasPrefix(c.Runtime.MountPath, "/") {
		errs = append(errs, fmt.Errorf("runtime.mount_path must be absolute, got %q", c.Runtime.MountPath))
	}
	if c.Runtime.ListenPort <= 0 || c.Runtime.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("runtime.listen_port out of range: %d", c.Runtime.ListenPort))
	}
	if c.Daemon.Host == "" {
		errs = append(errs, errors.New("daemon.host is required"))
	}
	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		errs = append(errs, fmt.Errorf("daemon.port out of range: %d", c.Daemon.Port))
	}
	if c.Session.Lifetime <= 0 {
		errs = append(errs, errors.New("session.lifetime must be positive"))
	}
	if c.Session.Interval <= 0 {
		errs = append(errs, errors.New("session.interval must be positive"))
	}
	if c.Session.SettleDelay < 0 {
		errs = append(errs, errors.New("session.settle_delay must not be negative"))
	}
	if c.Session.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("session.concurrency must be at least 1, got %d", c.Session.Concurrency))
	}
	for name, d := range map[string]time.Duration{
		"runtime.timeout":      c.Runtime.Timeout,
		"rpc.timeout":          c.RPC.Timeout,
		"rpc.probe_timeout":    c.RPC.ProbeTimeout,
		"rpc.transfer_timeout": c.RPC.TransferTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if _, err := template.NewGenerator(c.Commands); err != nil {
		errs = append(errs, err)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if err := c.Server.TLS.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Server.Auth.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
