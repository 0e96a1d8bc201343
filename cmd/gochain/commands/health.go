package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jholhewres/gochain/internal/store/sqlite"
)

// newHealthCmd creates the `gochain health` command used by container
// HEALTHCHECK directives and external monitoring, grounded on
// cmd/copilot/commands/health.go's fixed-status-line shape, extended here
// to actually probe the database rather than always reporting ok.
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report the service's health status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfigAndLogger(cmd)
			if err != nil {
				fmt.Printf(`{"status":"error","error":%q}`+"\n", err.Error())
				return nil
			}
			store, err := sqlite.Open(cfg.SQLiteConfig())
			if err != nil {
				fmt.Printf(`{"status":"error","error":%q}`+"\n", err.Error())
				return nil
			}
			store.Close()
			fmt.Println(`{"status":"ok"}`)
			return nil
		},
	}
}
