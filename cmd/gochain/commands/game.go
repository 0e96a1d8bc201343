package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// newGameCmd groups admin game-inspection subcommands, grounded on the same
// one-verb-per-subcommand shape as devclaw's mcp.go.
func newGameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "game",
		Short: "Inspect and administer games",
	}
	cmd.AddCommand(newGameListCmd(), newGameExportCmd(), newGameTerminateCmd())
	return cmd
}

func newGameListCmd() *cobra.Command {
	var guildID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open on-demand games in a guild",
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

			games, err := co.ListOpenGames(context.Background(), guildID)
			if err != nil {
				return fmt.Errorf("listing open games: %w", err)
			}
			if len(games) == 0 {
				fmt.Println("no open games")
				return nil
			}
			for _, g := range games {
				fmt.Printf("%s\tstatus=%s\tcreator=%s\tupdated=%s\n", g.ID, g.Status, g.CreatorID, g.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "guild ID to filter by (required)")
	cmd.MarkFlagRequired("guild")
	return cmd
}

func newGameExportCmd() *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print a game's turn chain in order",
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

			chain, err := co.ExportChain(context.Background(), gameID)
			if err != nil {
				return fmt.Errorf("exporting chain: %w", err)
			}
			for _, t := range chain {
				content := t.TextContent
				if t.ImageURL != "" {
					content = t.ImageURL
				}
				fmt.Printf("#%d [%s] player=%s: %s\n", t.TurnNumber, t.Type, t.PlayerID, content)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game ID to export (required)")
	cmd.MarkFlagRequired("game")
	return cmd
}

func newGameTerminateCmd() *cobra.Command {
	var gameID string
	cmd := &cobra.Command{
		Use:   "terminate",
		Short: "Force-terminate a game, cancelling its pending jobs",
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

			if err := co.TerminateGame(context.Background(), gameID); err != nil {
				return fmt.Errorf("terminating game: %w", err)
			}
			fmt.Printf("game %s terminated\n", gameID)
			return nil
		},
	}
	cmd.Flags().StringVar(&gameID, "game", "", "game ID to terminate (required)")
	cmd.MarkFlagRequired("game")
	return cmd
}
