package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/walletvisor"
)

func createServeCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the walletvisor daemon",
		Long: `Start the daemon: operator API, session reaper and optional metrics endpoint.
Settings come from the config file, .env files and WALLETVISOR_* variables.

Examples:
  walletvisor serve
  walletvisor serve walletvisor.toml
  WALLETVISOR_DAEMON_HOST=node.example walletvisor serve`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			return runServe(cmd.Context(), path, flags.EnvFiles)
		},
	}
}

func runServe(parent context.Context, configPath string, envFiles []string) error {
	cfg, err := walletvisor.LoadConfig(configPath, envFiles...)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := walletvisor.NewApp(ctx, cfg, walletvisor.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()
	return app.Serve(ctx)
}
