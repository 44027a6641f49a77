// commands.go contains the cobra command definitions. Each command
// delegates its work to a run function in its own file.
package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "openclaw",
		Short:         "OpenClaw multi-channel agent engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(buildServeCmd(), buildAuditCmd(), buildInitCmd(), buildVersionCmd())
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the engine version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}

// buildServeCmd creates the "serve" command that starts the engine.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent engine",
		Long: `Start the agent engine with all configured channels and providers.

The engine will:
1. Load configuration (JSON5, missing file falls back to defaults)
2. Bootstrap the agent workspace and discover skills
3. Register model providers and start all enabled channel adapters
4. Expose the HTTP gateway for health, status, metrics, and webhooks

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with the default config
  openclaw serve

  # Start with a custom config
  openclaw serve --config /etc/openclaw/config.json

  # Start with debug logging
  openclaw serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(),
		"Path to JSON5 configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// buildAuditCmd creates the "audit" command that checks the local setup
// for risky configuration and loose file permissions.
func buildAuditCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit configuration and state files for security issues",
		Long: `Audit the configuration and state files without modifying anything.

Findings are printed ranked by severity. The command exits non-zero
when any error-severity finding is present.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(),
		"Path to JSON5 configuration file")

	return cmd
}

// buildInitCmd creates the "init" command that seeds a default config.
func buildInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(),
		"Path to write the configuration file")

	return cmd
}
