package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/jholhewres/gochain/internal/clock"
	"github.com/jholhewres/gochain/internal/config"
	"github.com/jholhewres/gochain/internal/coordinator"
	"github.com/jholhewres/gochain/internal/id"
	"github.com/jholhewres/gochain/internal/jobstore"
	"github.com/jholhewres/gochain/internal/notify"
	"github.com/jholhewres/gochain/internal/store/sqlite"
)

// loggingNotifier is the NotificationPort the admin subcommands (season,
// game) dispatch through: they run one-off against the database without a
// live Discord gateway connection, so delivery is logged rather than sent.
type loggingNotifier struct{ logger *slog.Logger }

func (n loggingNotifier) DM(_ context.Context, playerID, content string) error {
	n.logger.Info("admin CLI: would DM", "player", playerID, "content", content)
	return nil
}

func (n loggingNotifier) ChannelAnnounce(_ context.Context, channelID, content string) error {
	n.logger.Info("admin CLI: would announce", "channel", channelID, "content", content)
	return nil
}

func (n loggingNotifier) Offer(_ context.Context, playerID, turnID string, deadline time.Time, _ []string) error {
	n.logger.Info("admin CLI: would offer", "player", playerID, "turn", turnID, "deadline", deadline)
	return nil
}

// openAdminCoordinator opens the database named by cmd's --config flag and
// builds a Coordinator suitable for one-shot admin commands: its scheduler
// is never started (admin commands act synchronously, not via timers), and
// its NotificationPort only logs, since there is no live bot connection.
func openAdminCoordinator(cfg config.Config, logger *slog.Logger) (*coordinator.Coordinator, *sqlite.Store, error) {
	store, err := sqlite.Open(cfg.SQLiteConfig())
	if err != nil {
		return nil, nil, err
	}
	clk := clock.Real{}
	sched := jobstore.New(store, clk, logger)
	dispatcher := notify.NewDispatcher(loggingNotifier{logger: logger}, store, logger)
	co := coordinator.New(store, sched, dispatcher, id.UUIDGen{}, clk, logger)
	co.DevMode = cfg.DevMode
	co.RegisterJobHandlers()
	return co, store, nil
}
