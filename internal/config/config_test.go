package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestDefaults(t *testing.T) {
	c := Default()
	if c.Runtime.Image != "sn1f3rt/nerva:latest" || c.Runtime.ListenPort != 8888 {
		t.Fatalf("unexpected runtime defaults: %+v", c.Runtime)
	}
	if c.Runtime.ProvisionTTL != 30*time.Second || c.Session.Lifetime != time.Hour {
		t.Fatalf("unexpected durations: %+v %+v", c.Runtime, c.Session)
	}
	if c.RPC.ProbeTimeout != 3*time.Second || c.RPC.TransferTimeout != 30*time.Second {
		t.Fatalf("unexpected rpc defaults: %+v", c.RPC)
	}
	if c.Store.DSN != "sqlite://"+filepath.Join("data", "walletvisor.db") {
		t.Fatalf("unexpected store dsn: %q", c.Store.DSN)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "walletvisor.toml", `
data_dir = "/var/lib/walletvisor"

[runtime]
image = "example/wallet:1.2"
listen_port = 9999

[daemon]
host = "node.example"
port = 443
tls = true
username = "rpc"
password = "secret"

[session]
lifetime = "30m"
settle_delay = "500ms"

[commands]
rpc = "wallet-rpc --port {{.ListenPort}}"

[history]
sinks = ["sqlite:///tmp/h.db", "opensearch://localhost:9200/events"]

[store]
dsn = "memory://"
`)
	c, err := Load(p, writeFile(t, dir, "empty.env", ""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Runtime.Image != "example/wallet:1.2" || c.Runtime.ListenPort != 9999 {
		t.Fatalf("runtime: %+v", c.Runtime)
	}
	if c.Daemon.Address() != "https://node.example:443" || c.Daemon.Login() != "rpc:secret" {
		t.Fatalf("daemon: %s %s", c.Daemon.Address(), c.Daemon.Login())
	}
	if c.Session.Lifetime != 30*time.Minute || c.Session.SettleDelay != 500*time.Millisecond {
		t.Fatalf("session: %+v", c.Session)
	}
	if c.Commands.RPC == "" || c.Commands.Generate != "" {
		t.Fatalf("commands: %+v", c.Commands)
	}
	if len(c.History.Sinks) != 2 {
		t.Fatalf("sinks: %v", c.History.Sinks)
	}
	if c.Store.DSN != "memory://" {
		t.Fatalf("store dsn overwritten: %q", c.Store.DSN)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "walletvisor.toml", "[daemon]\nhost = \"from-file\"\n")
	envFile := writeFile(t, dir, "test.env", "WALLETVISOR_SESSION_LIFETIME=2h\n")
	t.Setenv("WALLETVISOR_DAEMON_HOST", "from-env")
	t.Setenv("WALLETVISOR_HISTORY_SINKS", "sqlite:///a.db, sqlite:///b.db")
	t.Cleanup(func() { _ = os.Unsetenv("WALLETVISOR_SESSION_LIFETIME") })

	c, err := Load(p, envFile)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Daemon.Host != "from-env" {
		t.Fatalf("env should win over file, got %q", c.Daemon.Host)
	}
	if c.Session.Lifetime != 2*time.Hour {
		t.Fatalf(".env value not applied: %v", c.Session.Lifetime)
	}
	if len(c.History.Sinks) != 2 || c.History.Sinks[1] != "sqlite:///b.db" {
		t.Fatalf("sinks: %v", c.History.Sinks)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml"), writeFile(t, t.TempDir(), "x.env", "")); err == nil {
		t.Fatal("expected error for missing config file")
	}
	if _, err := Load("", filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected error for missing explicit env file")
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Runtime.Image = ""
	c.Runtime.MountPath = "wallet"
	c.Daemon.Port = 0
	c.Session.Concurrency = 0
	c.RPC.ProbeTimeout = 0
	c.Commands.RPC = "{{.Broken"
	c.Log.Level = "chatty"
	err := c.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"runtime.image", "mount_path", "daemon.port", "concurrency", "rpc.probe_timeout", "rpc command template", "log level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}

func TestDaemonLoginEmpty(t *testing.T) {
	d := DaemonConfig{Host: "::1", Port: 17566}
	if d.Login() != "" {
		t.Fatalf("login should be empty")
	}
	if d.Address() != "http://[::1]:17566" {
		t.Fatalf("address: %s", d.Address())
	}
}

func TestServerTLS(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "walletvisor.toml", `
[server.tls]
enabled = true
dir = "/etc/walletvisor/tls"
auto_generate = true
min_version = "1.2"
`)
	c, err := Load(p, writeFile(t, dir, "empty.env", ""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !c.Server.TLS.Enabled || !c.Server.TLS.AutoGenerate || c.Server.TLS.Dir != "/etc/walletvisor/tls" {
		t.Fatalf("tls: %+v", c.Server.TLS)
	}

	bad := writeFile(t, dir, "bad.toml", "[server.tls]\nenabled = true\n")
	if _, err := Load(bad, writeFile(t, dir, "empty.env", "")); err == nil || !strings.Contains(err.Error(), "server.tls") {
		t.Fatalf("want server.tls error, got %v", err)
	}
}

func TestExampleConfigLoads(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "walletvisor.example.toml"), writeFile(t, t.TempDir(), "empty.env", ""))
	if err != nil {
		t.Fatalf("example config: %v", err)
	}
	if c.Store.DSN != "sqlite://./data/walletvisor.db" || c.Server.BasePath != "/api" {
		t.Fatalf("unexpected values: %+v", c)
	}
	if c.Server.TLS.Enabled || c.Server.Auth.Enabled {
		t.Fatalf("example should ship with tls and auth off")
	}
}
