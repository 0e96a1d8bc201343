package coordinator

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/jholhewres/gochain/internal/model"
	"github.com/jholhewres/gochain/internal/ports"
)

// StaleCleanupJob is C9: a periodic sweep that completes on-demand games
// which have sat inactive past their configured StaleTimeout with at least
// MinTurns recorded, since no player action naturally drives that
// transition (spec §4.9). Grounded on the teacher's
// scheduler.Scheduler.Start, which builds a cron.Cron with minute-level
// precision and registers one recurring AddFunc entry per job.
type StaleCleanupJob struct {
	Coordinator *Coordinator
	cron        *cron.Cron
	logger      *slog.Logger
}

// NewStaleCleanupJob returns a StaleCleanupJob bound to co. logger may be
// nil.
func NewStaleCleanupJob(co *Coordinator, logger *slog.Logger) *StaleCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaleCleanupJob{Coordinator: co, logger: logger.With("component", "stale-cleanup")}
}

// Start schedules the sweep at the given cron expression (e.g. "0 */5 * * * *"
// for every 5 minutes) and begins running it.
func (j *StaleCleanupJob) Start(ctx context.Context, schedule string) error {
	j.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)))
	if _, err := j.cron.AddFunc(schedule, func() { j.sweep(ctx) }); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("stale cleanup job started", "schedule", schedule)
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight sweep to finish.
func (j *StaleCleanupJob) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
	j.logger.Info("stale cleanup job stopped")
}

// sweep lists every non-terminal on-demand game across all guilds and asks
// the coordinator to complete whichever ones are now eligible.
func (j *StaleCleanupJob) sweep(ctx context.Context) {
	var games []*model.Game
	err := j.Coordinator.Repo.WithTx(ctx, func(tx ports.Tx) error {
		var err error
		games, err = tx.ListGamesByStatus(ctx, []model.GameStatus{model.GamePending, model.GameActive})
		return err
	})
	if err != nil {
		j.logger.Error("failed to list games for sweep", "error", err)
		return
	}

	var swept int
	for _, g := range games {
		if g.IsSeasonGame() {
			continue
		}
		before := g.Status
		updated, err := j.Coordinator.CompleteGame(ctx, g.ID)
		if err != nil {
			j.logger.Error("sweep failed to evaluate game", "game", g.ID, "error", err)
			continue
		}
		if updated.Status != before {
			swept++
		}
	}
	if swept > 0 {
		j.logger.Info("stale cleanup sweep completed games", "count", swept)
	}
}
