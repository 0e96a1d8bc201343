// Package commands implements gochain's CLI using cobra, grounded on
// cmd/devclaw/commands.NewRootCmd: one root command, persistent
// --config/--verbose flags, and a flat subcommand list.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gochain",
		Short: "gochain - turn-based telephone-drawing game coordinator",
		Long: `gochain runs a Discord bot that coordinates turn-based
telephone-drawing games: on-demand games started with /new, and
recurring seasons managed by an admin.

Examples:
  gochain serve
  gochain season create --creator <player-id> --guild 123456789012345678 --config <season-config-id>
  gochain game list --guild 123456789012345678
  gochain health`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newSeasonCmd(),
		newGameCmd(),
		newHealthCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
