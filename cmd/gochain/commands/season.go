package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// newSeasonCmd groups admin season-lifecycle subcommands: spec §4.7's
// terminateSeason, read-only status, and the season open/close window
// (SPEC_FULL.md §12) entry points create/join. The window's close itself is
// evaluated by a scheduled job the coordinator arms on create, not by an
// admin command — see DESIGN.md.
func newSeasonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "season",
		Short: "Inspect and administer seasons",
	}
	cmd.AddCommand(newSeasonCreateCmd(), newSeasonJoinCmd(), newSeasonStatusCmd(), newSeasonTerminateCmd())
	return cmd
}

func newSeasonCreateCmd() *cobra.Command {
	var creatorID, guildID, configID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a season's membership window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfigAndLogger(cmd)
			if err != nil {
				return err
			}
			co, store, err := openAdminCoordinator(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			season, err := co.CreateSeason(context.Background(), creatorID, guildID, configID)
			if err != nil {
				return fmt.Errorf("creating season: %w", err)
			}
			fmt.Printf("season %s created, open for membership\n", season.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&creatorID, "creator", "", "creator player ID (required)")
	cmd.Flags().StringVar(&guildID, "guild", "", "guild ID (required)")
	cmd.Flags().StringVar(&configID, "config", "", "season config ID (required)")
	cmd.MarkFlagRequired("creator")
	cmd.MarkFlagRequired("guild")
	cmd.MarkFlagRequired("config")
	return cmd
}

func newSeasonJoinCmd() *cobra.Command {
	var playerID, seasonID string
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Add a player to a season's open membership window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfigAndLogger(cmd)
			if err != nil {
				return err
			}
			co, store, err := openAdminCoordinator(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := co.JoinSeason(context.Background(), playerID, seasonID); err != nil {
				return fmt.Errorf("joining season: %w", err)
			}
			fmt.Printf("player %s joined season %s\n", playerID, seasonID)
			return nil
		},
	}
	cmd.Flags().StringVar(&playerID, "player", "", "player ID (required)")
	cmd.Flags().StringVar(&seasonID, "season", "", "season ID (required)")
	cmd.MarkFlagRequired("player")
	cmd.MarkFlagRequired("season")
	return cmd
}

func newSeasonStatusCmd() *cobra.Command {
	var seasonID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a season's current status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfigAndLogger(cmd)
			if err != nil {
				return err
			}
			co, store, err := openAdminCoordinator(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			season, err := co.GetSeason(context.Background(), seasonID)
			if err != nil {
				return fmt.Errorf("fetching season: %w", err)
			}
			fmt.Printf("%s\tstatus=%s\tcreator=%s\tcreated=%s\n", season.ID, season.Status, season.CreatorID, season.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
			return nil
		},
	}
	cmd.Flags().StringVar(&seasonID, "season", "", "season ID (required)")
	cmd.MarkFlagRequired("season")
	return cmd
}

func newSeasonTerminateCmd() *cobra.Command {
	var seasonID string
	cmd := &cobra.Command{
		Use:   "terminate",
		Short: "Force-terminate a season and every non-terminal game in it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfigAndLogger(cmd)
			if err != nil {
				return err
			}
			co, store, err := openAdminCoordinator(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := co.TerminateSeason(context.Background(), seasonID); err != nil {
				return fmt.Errorf("terminating season: %w", err)
			}
			fmt.Printf("season %s terminated\n", seasonID)
			return nil
		},
	}
	cmd.Flags().StringVar(&seasonID, "season", "", "season ID to terminate (required)")
	cmd.MarkFlagRequired("season")
	return cmd
}
