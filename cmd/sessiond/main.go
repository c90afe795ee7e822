package main

import (
	"fmt"
	"os"
	"time"

	"sessiond/cmd/internal/app"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sessiond",
		Short: "Durable, lock-serialized session store",
		Long: `sessiond keeps opaque per-session blobs in Postgres, serializes
each session across processes with advisory locks, and reclaims expired
sessions with a per-replica skewed cutoff.

Configuration is read from SESSIOND_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		gcCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "sessiond: %s\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health, readiness and metrics, and reclaim expired sessions periodically",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return app.Run()
		},
	}
}

func gcCmd() *cobra.Command {
	var maxLifetime time.Duration

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Run one reclamation pass and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case !cmd.Flags().Changed("max-lifetime"):
				maxLifetime = -1
			case maxLifetime < 0:
				return fmt.Errorf("--max-lifetime must not be negative, got %s", maxLifetime)
			}
			return app.RunCollect(maxLifetime, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&maxLifetime, "max-lifetime", 0,
		"delete sessions idle longer than this (default: SESSIOND_GC_MAX_LIFETIME)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sessiond %s (%s)\n", version, commit)
		},
	}
}
