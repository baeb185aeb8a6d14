package template

import (
	"strings"
	"testing"
)

func defaultParams() Params {
	return Params{
		Username:      "alice",
		Password:      "0123456789abcdef",
		WalletDir:     "/wallet",
		DaemonAddress: "http://node.example:17566",
		DaemonLogin:   "rpcuser:rpcpass",
		RestoreHeight: 123456,
		ListenPort:    8888,
	}
}

func TestGenerator_Render(t *testing.T) {
	g, err := NewGenerator(Set{})
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	tests := []struct {
		name     string
		kind     Kind
		mutate   func(*Params)
		contains []string
		absent   []string
	}{
		{
			name: "generate",
			kind: KindGenerate,
			contains: []string{
				"nerva-wallet-cli --generate-new-wallet /wallet/alice.wallet",
				"--restore-height 123456",
				"--password '0123456789abcdef'",
				"--daemon-address http://node.example:17566",
				"--daemon-login 'rpcuser:rpcpass'",
				"--log-file /wallet/alice-init.log",
				"--command version",
			},
			absent: []string{"--electrum-seed"},
		},
		{
			name:   "restore",
			kind:   KindRestore,
			mutate: func(p *Params) { p.Seed = "abbey ablaze abort" },
			contains: []string{
				"yes '' | nerva-wallet-cli --restore-deterministic-wallet",
				"--restore-height 0",
				"--electrum-seed 'abbey ablaze abort'",
				"--command refresh",
			},
		},
		{
			name: "rpc",
			kind: KindRPC,
			contains: []string{
				"nerva-wallet-rpc --non-interactive --rpc-bind-port 8888 --rpc-bind-ip 0.0.0.0",
				"--wallet-file /wallet/alice.wallet",
				"--rpc-login 'alice:0123456789abcdef'",
				"--log-file /wallet/alice-rpc.log",
			},
		},
		{
			name:     "no daemon login",
			kind:     KindRPC,
			mutate:   func(p *Params) { p.DaemonLogin = "" },
			contains: []string{"--trusted-daemon"},
			absent:   []string{"--daemon-login"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := defaultParams()
			if tt.mutate != nil {
				tt.mutate(&p)
			}
			out, err := g.Render(tt.kind, p)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("missing %q in %q", want, out)
				}
			}
			for _, bad := range tt.absent {
				if strings.Contains(out, bad) {
					t.Errorf("unexpected %q in %q", bad, out)
				}
			}
		})
	}
}

func TestRenderRestoreRequiresSeed(t *testing.T) {
	g, _ := NewGenerator(Set{})
	if _, err := g.Render(KindRestore, defaultParams()); err == nil {
		t.Fatal("expected error without seed")
	}
}

func TestRenderUnknownKind(t *testing.T) {
	g, _ := NewGenerator(Set{})
	_, err := g.Render(Kind("bogus"), defaultParams())
	if err == nil || !strings.Contains(err.Error(), "generate, restore, rpc") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQuoteEscapesSingleQuotes(t *testing.T) {
	if got := Quote("it's"); got != `'it'\''s'` {
		t.Fatalf("Quote = %s", got)
	}
	g, _ := NewGenerator(Set{})
	p := defaultParams()
	p.Seed = "o'clock"
	out, err := g.Render(KindRestore, p)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `--electrum-seed 'o'\''clock'`) {
		t.Fatalf("seed not escaped: %s", out)
	}
}

func TestOverrideTemplate(t *testing.T) {
	g, err := NewGenerator(Set{RPC: "wallet-rpc --port {{.ListenPort}} --user {{.Username}}"})
	if err != nil {
		t.Fatal(err)
	}
	out, err := g.Render(KindRPC, defaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if out != "wallet-rpc --port 8888 --user alice" {
		t.Fatalf("override not applied: %s", out)
	}
	// other kinds keep their defaults
	out, _ = g.Render(KindGenerate, defaultParams())
	if !strings.HasPrefix(out, "nerva-wallet-cli") {
		t.Fatalf("default generate lost: %s", out)
	}
}

func TestParseError(t *testing.T) {
	if _, err := NewGenerator(Set{Generate: "{{.Username"}); err == nil {
		t.Fatal("expected parse error")
	}
}
