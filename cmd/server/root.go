package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/user-auth/internal/config"
	"github.com/sakif/user-auth/internal/server"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command. Run without a subcommand it serves,
// so `user-auth --port 9000` and `user-auth serve --port 9000` are the same.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "user-auth",
		Short:   "user-auth - username/password login with server-side sessions",
		Version: versionString(),
		Long: `user-auth serves registration, login, a protected dashboard and logout
over HTTP, keeping users in SQLite or PostgreSQL and sessions in memory.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")
	config.RegisterFlags(cmd.Flags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server. Settings come from the built-in defaults, then the
--config file, then flags, then the USER_AUTH_SESSION_SECRET environment
variable.`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Println("user-auth " + versionString())
			return nil
		},
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	return srv.Start(ctx)
}
