package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/gochain/internal/chatbot/discord"
	"github.com/jholhewres/gochain/internal/clock"
	"github.com/jholhewres/gochain/internal/config"
	"github.com/jholhewres/gochain/internal/coordinator"
	"github.com/jholhewres/gochain/internal/id"
	"github.com/jholhewres/gochain/internal/jobstore"
	"github.com/jholhewres/gochain/internal/notify"
	"github.com/jholhewres/gochain/internal/store/sqlite"
)

// newServeCmd creates the `gochain serve` command that runs the bot daemon:
// the Discord gateway connection, the durable job scheduler, and the
// periodic stale-game sweep, grounded on cmd/devclaw/commands/serve.go's
// build-collaborators-then-wait-for-signal shape.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bot, job scheduler, and stale-cleanup sweep",
		RunE:  runServe,
	}
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfigAndLogger(cmd)
	if err != nil {
		return err
	}

	if cfg.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is not set")
	}

	store, err := sqlite.Open(cfg.SQLiteConfig())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	clk := clock.Real{}
	sched := jobstore.New(store, clk, logger)
	sched.SetMissedPolicy(jobstore.MissedPolicy(cfg.MissedJobPolicy))

	bot := discord.New(discord.Config{Token: cfg.DiscordToken}, logger)
	dispatcher := notify.NewDispatcher(bot, store, logger)
	co := coordinator.New(store, sched, dispatcher, id.UUIDGen{}, clk, logger)
	co.DevMode = cfg.DevMode
	bot.BindCoordinator(co)
	co.RegisterJobHandlers()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	cleanup := coordinator.NewStaleCleanupJob(co, logger)
	if err := cleanup.Start(ctx, cfg.StaleCleanupCron); err != nil {
		return fmt.Errorf("starting stale-cleanup job: %w", err)
	}
	defer cleanup.Stop()

	if err := bot.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to discord: %w", err)
	}
	defer bot.Disconnect()

	logger.Info("gochain running. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		bot.Disconnect()
		cleanup.Stop()
		sched.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out after 10s, forcing exit")
	}

	return nil
}

// loadConfigAndLogger resolves the --config/--verbose persistent flags into
// a config.Config and a slog.Logger, shared by every admin subcommand.
func loadConfigAndLogger(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	return cfg, logger, nil
}
