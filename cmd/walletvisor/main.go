package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	EnvFiles   []string
	APIUrl      string
	APITimeout  time.Duration
	APIToken    string
	APIUser     string
	APIPassword string
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "walletvisor",
		Short: "Per-user wallet container orchestrator",
		Long: `walletvisor provisions one wallet RPC container per user, tracks the
session in a record store and reclaims expired sessions.

Examples:
  walletvisor serve --config walletvisor.toml
  walletvisor create alice
  walletvisor create bob --seed "abbey about above ..."
  walletvisor connect alice
  walletvisor status alice --api-url=http://remote:8080/api`,
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	pf.StringSliceVar(&flags.EnvFiles, "env-file", nil, "dotenv files loaded before the config (default .env when present)")
	pf.StringVar(&flags.APIUrl, "api-url", "http://127.0.0.1:8080/api", "operator API base URL")
	pf.DurationVar(&flags.APITimeout, "api-timeout", 90*time.Second, "operator API request timeout")
	pf.StringVar(&flags.APIToken, "api-token", os.Getenv("WALLETVISOR_API_TOKEN"), "bearer token for the operator API")
	pf.StringVar(&flags.APIUser, "api-user", "", "operator name for basic auth")
	pf.StringVar(&flags.APIPassword, "api-password", os.Getenv("WALLETVISOR_API_PASSWORD"), "operator password for basic auth")

	root.AddCommand(
		createServeCommand(flags),
		createStatusCommand(flags),
		createCreateCommand(flags),
		createConnectCommand(flags),
		createStopCommand(flags),
		createDeleteCommand(flags),
		createBalanceCommand(flags),
		createCleanupCommand(flags),
		createHealthCommand(flags),
		createLoginCommand(flags),
		createHashPasswordCommand(),
	)
	return root
}
