package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/loykin/walletvisor/internal/auth"
	"github.com/loykin/walletvisor/pkg/client"
)

// command binds CLI actions to an operator API client.
type command struct {
	api *client.Client
	out io.Writer
}

func newCommand(cmd *cobra.Command, flags *GlobalFlags) command {
	return command{
		api: client.New(client.Config{
			BaseURL:  flags.APIUrl,
			Timeout:  flags.APITimeout,
			Token:    flags.APIToken,
			Username: flags.APIUser,
			Password: flags.APIPassword,
		}),
		out: cmd.OutOrStdout(),
	}
}

func (c command) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c command) reachable(ctx context.Context) error {
	if !c.api.IsReachable(ctx) {
		return fmt.Errorf("walletvisor daemon not reachable; start it with 'walletvisor serve'")
	}
	return nil
}

// userCommand builds a command taking exactly one username argument.
func userCommand(flags *GlobalFlags, use, short string, run func(ctx context.Context, c command, user string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <username>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newCommand(cmd, flags)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := c.reachable(ctx); err != nil {
				return err
			}
			return run(ctx, c, args[0])
		},
	}
}

func createStatusCommand(flags *GlobalFlags) *cobra.Command {
	return userCommand(flags, "status", "Show a user's wallet status", func(ctx context.Context, c command, user string) error {
		st, err := c.api.Status(ctx, user)
		if err != nil {
			return err
		}
		return c.print(st)
	})
}

func createCreateCommand(flags *GlobalFlags) *cobra.Command {
	var seed string
	cmd := userCommand(flags, "create", "Provision a user's wallet", func(ctx context.Context, c command, user string) error {
		id, err := c.api.Create(ctx, user, client.CreateRequest{Seed: seed})
		if err != nil {
			return err
		}
		return c.print(client.CreateResponse{Container: id})
	})
	cmd.Flags().StringVar(&seed, "seed", "", "mnemonic seed to restore instead of generating")
	return cmd
}

func createConnectCommand(flags *GlobalFlags) *cobra.Command {
	return userCommand(flags, "connect", "Start a user's wallet RPC container", func(ctx context.Context, c command, user string) error {
		res, err := c.api.Connect(ctx, user)
		if err != nil {
			return err
		}
		return c.print(res)
	})
}

func createStopCommand(flags *GlobalFlags) *cobra.Command {
	return userCommand(flags, "stop", "Stop a user's wallet session", func(ctx context.Context, c command, user string) error {
		if err := c.api.Stop(ctx, user); err != nil {
			return err
		}
		_, err := fmt.Fprintf(c.out, "stopped %s\n", user)
		return err
	})
}

func createDeleteCommand(flags *GlobalFlags) *cobra.Command {
	return userCommand(flags, "delete", "Delete a user's wallet data", func(ctx context.Context, c command, user string) error {
		if err := c.api.Delete(ctx, user); err != nil {
			return err
		}
		_, err := fmt.Fprintf(c.out, "deleted %s\n", user)
		return err
	})
}

func createBalanceCommand(flags *GlobalFlags) *cobra.Command {
	return userCommand(flags, "balance", "Show a connected user's balance", func(ctx context.Context, c command, user string) error {
		b, err := c.api.Balance(ctx, user)
		if err != nil {
			return err
		}
		return c.print(b)
	})
}

func createCleanupCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run one session cleanup pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newCommand(cmd, flags)
			rep, err := c.api.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(rep)
		},
	}
}

func createHealthCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the daemon's dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newCommand(cmd, flags)
			h, err := c.api.Health(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.print(h); err != nil {
				return err
			}
			if !h.OK {
				return fmt.Errorf("daemon unhealthy")
			}
			return nil
		},
	}
}

func createLoginCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Exchange --api-user/--api-password for a bearer token",
		Long: `Print a bearer token for later commands, e.g.

  export WALLETVISOR_API_TOKEN=$(walletvisor login --api-user ops --api-password ... | jq -r .token.value)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.APIUser == "" {
				return fmt.Errorf("--api-user is required")
			}
			c := newCommand(cmd, flags)
			res, err := c.api.Login(cmd.Context(), flags.APIUser, flags.APIPassword)
			if err != nil {
				return err
			}
			return c.print(res)
		},
	}
}

func createHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for a [[server.auth.operators]] entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), h)
			return err
		},
	}
}
