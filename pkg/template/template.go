// Package template renders the shell command lines run inside wallet
// containers. Each Kind has a default text/template that configuration may
// override.
package template

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// Kind selects which command line to render.
type Kind string

const (
	// KindGenerate provisions a fresh wallet file.
	KindGenerate Kind = "generate"
	// KindRestore rebuilds a wallet file from a mnemonic seed.
	KindRestore Kind = "restore"
	// KindRPC serves the wallet over JSON-RPC.
	KindRPC Kind = "rpc"
)

const (
	defaultGenerate = `nerva-wallet-cli --generate-new-wallet {{.WalletDir}}/{{.Username}}.wallet` +
		` --restore-height {{.RestoreHeight}} --password {{quote .Password}} --mnemonic-language English` +
		` --daemon-address {{.DaemonAddress}}{{with .DaemonLogin}} --daemon-login {{quote .}}{{end}} --trusted-daemon` +
		` --log-file {{.WalletDir}}/{{.Username}}-init.log --command version`

	defaultRestore = `yes '' | nerva-wallet-cli --restore-deterministic-wallet --generate-new-wallet {{.WalletDir}}/{{.Username}}.wallet` +
		` --restore-height 0 --password {{quote .Password}} --electrum-seed {{quote .Seed}}` +
		` --daemon-address {{.DaemonAddress}}{{with .DaemonLogin}} --daemon-login {{quote .}}{{end}} --trusted-daemon` +
		` --log-file {{.WalletDir}}/{{.Username}}-init.log --command refresh`

	defaultRPC = `nerva-wallet-rpc --non-interactive --rpc-bind-port {{.ListenPort}} --rpc-bind-ip 0.0.0.0 --confirm-external-bind` +
		` --wallet-file {{.WalletDir}}/{{.Username}}.wallet --rpc-login {{quote (printf "%s:%s" .Username .Password)}}` +
		` --password {{quote .Password}}` +
		` --daemon-address {{.DaemonAddress}}{{with .DaemonLogin}} --daemon-login {{quote .}}{{end}} --trusted-daemon` +
		` --log-file {{.WalletDir}}/{{.Username}}-rpc.log`
)

// Params are the values a command template may reference.
type Params struct {
	Username      string
	Password      string
	Seed          string
	WalletDir     string // path of the wallet volume inside the container
	DaemonAddress string // scheme://host:port
	DaemonLogin   string // user:pass, empty for none
	RestoreHeight uint64
	ListenPort    int
}

// Set holds template sources per kind. Empty entries fall back to defaults.
type Set struct {
	Generate string `mapstructure:"generate"`
	Restore  string `mapstructure:"restore"`
	RPC      string `mapstructure:"rpc"`
}

// Defaults returns the built-in command templates.
func Defaults() Set {
	return Set{Generate: defaultGenerate, Restore: defaultRestore, RPC: defaultRPC}
}

// Generator renders parsed command templates.
type Generator struct {
	tmpls map[Kind]*template.Template
}

// NewGenerator parses every template in set, filling gaps from Defaults.
func NewGenerator(set Set) (*Generator, error) {
	def := Defaults()
	src := map[Kind]string{
		KindGenerate: firstNonEmpty(set.Generate, def.Generate),
		KindRestore:  firstNonEmpty(set.Restore, def.Restore),
		KindRPC:      firstNonEmpty(set.RPC, def.RPC),
	}
	g := &Generator{tmpls: make(map[Kind]*template.Template, len(src))}
	for kind, text := range src {
		t, err := template.New(string(kind)).
			Funcs(template.FuncMap{"quote": Quote}).
			Option("missingkey=error").
			Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse %s command template: %w", kind, err)
		}
		g.tmpls[kind] = t
	}
	return g, nil
}

// Render produces the command line for kind.
func (g *Generator) Render(kind Kind, p Params) (string, error) {
	t, ok := g.tmpls[kind]
	if !ok {
		return "", fmt.Errorf("unknown command kind: %s (supported: %s)", kind, strings.Join(g.Kinds(), ", "))
	}
	if kind == KindRestore && p.Seed == "" {
		return "", fmt.Errorf("restore command requires a seed")
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("render %s command: %w", kind, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Kinds lists the supported command kinds.
func (g *Generator) Kinds() []string {
	out := make([]string, 0, len(g.tmpls))
	for k := range g.tmpls {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// Quote wraps s in single quotes for POSIX sh.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
