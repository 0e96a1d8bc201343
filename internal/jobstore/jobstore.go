// Package jobstore implements C2: a durable, at-least-once, cancelable
// timer service keyed by stable job IDs. Generalized from the teacher's
// pkg/devclaw/scheduler.Scheduler, whose cron-based recurring jobs are
// replaced here with the teacher's own one-shot goroutine+timer path
// (runOneShotJob in the original), since every job this core schedules
// fires exactly once at a specific fireAt instant (spec §4.2).
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jholhewres/gochain/internal/clock"
	"github.com/jholhewres/gochain/internal/coreerr"
	"github.com/jholhewres/gochain/internal/model"
	"github.com/jholhewres/gochain/internal/ports"
)

// Handler executes a job's payload when its timer fires. Handlers must be
// idempotent (G3: at-least-once) and must re-validate state before acting
// rather than assuming "we just scheduled this".
type Handler func(ctx context.Context, job *model.ScheduledJob) error

// MissedPolicy controls how jobs whose fireAt already passed at startup are
// treated (spec §6 operational flags).
type MissedPolicy string

const (
	MissedMarkFailed       MissedPolicy = "mark-failed"
	MissedExecuteImmediate MissedPolicy = "execute-immediately"
)

// Scheduler is the durable timer service (C2).
type Scheduler struct {
	storage ports.JobStorage
	clock   clock.Clock
	logger  *slog.Logger
	policy  MissedPolicy

	mu      sync.Mutex
	timers  map[string]*time.Timer
	handler map[string]Handler // jobType -> handler, registered once at startup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler backed by storage. Register handlers with
// RegisterHandler before calling Start.
func New(storage ports.JobStorage, c clock.Clock, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Scheduler{
		storage: storage,
		clock:   c,
		logger:  logger.With("component", "jobstore"),
		policy:  MissedMarkFailed,
		timers:  make(map[string]*time.Timer),
		handler: make(map[string]Handler),
	}
}

// SetMissedPolicy overrides the default mark-failed policy for jobs whose
// fireAt has already passed at LoadPersisted time.
func (s *Scheduler) SetMissedPolicy(p MissedPolicy) { s.policy = p }

// RegisterHandler binds jobType to handler. Registering the same jobType
// twice overwrites the previous binding. This replaces the source's
// closure-captured-service pattern (spec §9) with a plain registry: the
// scheduler never imports a service, it is handed one function per job
// type.
func (s *Scheduler) RegisterHandler(jobType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler[jobType] = h
}

// Schedule arms a new job. Fails if jobID already exists in a non-terminal
// state, or if fireAt is not strictly in the future.
func (s *Scheduler) Schedule(ctx context.Context, jobID string, fireAt time.Time, jobType string, payload []byte) (bool, error) {
	if !fireAt.After(s.clock.Now()) {
		return false, fmt.Errorf("%w: fireAt %s is not in the future", coreerr.ErrValidation, fireAt)
	}

	existing, err := s.storage.Get(ctx, jobID)
	if err != nil && !isNotFound(err) {
		return false, fmt.Errorf("%w: %v", coreerr.ErrSchedulerError, err)
	}
	if existing != nil && existing.Status == model.JobScheduled {
		return false, nil
	}

	job := &model.ScheduledJob{
		JobID:   jobID,
		FireAt:  fireAt,
		JobType: jobType,
		Payload: payload,
		Status:  model.JobScheduled,
	}
	if err := s.storage.Save(ctx, job); err != nil {
		return false, fmt.Errorf("%w: %v", coreerr.ErrSchedulerError, err)
	}

	s.arm(job)
	s.logger.Info("job scheduled", "id", jobID, "type", jobType, "fires_at", fireAt)
	return true, nil
}

// Cancel marks jobID CANCELLED and disarms its timer. Idempotent: returns
// false if no such job is currently armed.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	timer, armed := s.timers[jobID]
	if armed {
		timer.Stop()
		delete(s.timers, jobID)
	}
	s.mu.Unlock()

	job, err := s.storage.Get(ctx, jobID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", coreerr.ErrSchedulerError, err)
	}
	if job == nil || job.Status != model.JobScheduled {
		return armed, nil
	}

	job.Status = model.JobCancelled
	if err := s.storage.Save(ctx, job); err != nil {
		return armed, fmt.Errorf("%w: %v", coreerr.ErrSchedulerError, err)
	}
	s.logger.Info("job cancelled", "id", jobID)
	return true, nil
}

// CancelJobsForGame cancels every SCHEDULED job whose ID is derived from
// one of the given turn IDs belonging to a terminated game. Callers pass
// the deterministic IDs (see internal/timeout) they would otherwise cancel
// individually; this is a convenience batch operation used by
// GameCoordinator.terminateGame.
func (s *Scheduler) CancelJobsForGame(ctx context.Context, jobIDs []string) {
	for _, id := range jobIDs {
		if _, err := s.Cancel(ctx, id); err != nil {
			s.logger.Warn("failed to cancel job during game termination", "id", id, "error", err)
		}
	}
}

// ScheduleTx is Schedule's transactional counterpart: the job row is
// persisted through tx instead of the Scheduler's own storage, so it
// commits or rolls back atomically with the caller's state transition
// (spec §4.4/§5/§7). Callers inside a coordinator WithTx must use this, not
// Schedule, to avoid both the atomicity gap and the single-connection pool
// deadlock of writing to storage while tx still holds the connection.
func (s *Scheduler) ScheduleTx(ctx context.Context, tx ports.Tx, jobID string, fireAt time.Time, jobType string, payload []byte) (bool, error) {
	if !fireAt.After(s.clock.Now()) {
		return false, fmt.Errorf("%w: fireAt %s is not in the future", coreerr.ErrValidation, fireAt)
	}

	existing, err := tx.GetJob(ctx, jobID)
	if err != nil && !isNotFound(err) {
		return false, fmt.Errorf("%w: %v", coreerr.ErrSchedulerError, err)
	}
	if existing != nil && existing.Status == model.JobScheduled {
		return false, nil
	}

	job := &model.ScheduledJob{
		JobID:   jobID,
		FireAt:  fireAt,
		JobType: jobType,
		Payload: payload,
		Status:  model.JobScheduled,
	}
	if err := tx.SaveJob(ctx, job); err != nil {
		return false, fmt.Errorf("%w: %v", coreerr.ErrSchedulerError, err)
	}

	s.arm(job)
	s.logger.Info("job scheduled", "id", jobID, "type", jobType, "fires_at", fireAt)
	return true, nil
}

// CancelTx is Cancel's transactional counterpart; see ScheduleTx.
func (s *Scheduler) CancelTx(ctx context.Context, tx ports.Tx, jobID string) (bool, error) {
	s.mu.Lock()
	timer, armed := s.timers[jobID]
	if armed {
		timer.Stop()
		delete(s.timers, jobID)
	}
	s.mu.Unlock()

	job, err := tx.GetJob(ctx, jobID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", coreerr.ErrSchedulerError, err)
	}
	if job == nil || job.Status != model.JobScheduled {
		return armed, nil
	}

	job.Status = model.JobCancelled
	if err := tx.SaveJob(ctx, job); err != nil {
		return armed, fmt.Errorf("%w: %v", coreerr.ErrSchedulerError, err)
	}
	s.logger.Info("job cancelled", "id", jobID)
	return true, nil
}

// CancelJobsForGameTx is CancelJobsForGame's transactional counterpart; see
// ScheduleTx.
func (s *Scheduler) CancelJobsForGameTx(ctx context.Context, tx ports.Tx, jobIDs []string) {
	for _, id := range jobIDs {
		if _, err := s.CancelTx(ctx, tx, id); err != nil {
			s.logger.Warn("failed to cancel job during game termination", "id", id, "error", err)
		}
	}
}

// Start loads persisted jobs and arms timers for those still pending,
// applying MissedPolicy to jobs whose fireAt has already passed (G1, P9).
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	jobs, err := s.storage.LoadScheduled(ctx)
	if err != nil {
		return fmt.Errorf("%w: load persisted jobs: %v", coreerr.ErrSchedulerError, err)
	}

	now := s.clock.Now()
	missed := 0
	for _, job := range jobs {
		if !job.FireAt.After(now) {
			switch s.policy {
			case MissedExecuteImmediate:
				s.runHandler(job)
			default:
				if err := s.storage.MarkFailed(ctx, job.JobID, "missed execution due to downtime"); err != nil {
					s.logger.Error("failed to mark missed job failed", "id", job.JobID, "error", err)
				}
				missed++
			}
			continue
		}
		s.arm(job)
	}

	s.logger.Info("scheduler started", "loaded", len(jobs), "missed", missed)
	return nil
}

// Stop cancels all armed in-process timers. Persisted SCHEDULED jobs remain
// SCHEDULED so a future Start can re-arm them (G1: durability).
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) arm(job *model.ScheduledJob) {
	delay := job.FireAt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	timer := time.AfterFunc(delay, func() { s.fire(job.JobID) })

	s.mu.Lock()
	s.timers[job.JobID] = timer
	s.mu.Unlock()
}

// fire reloads the job (it may have been cancelled or re-scheduled since
// the timer was armed) and executes its handler if still SCHEDULED.
func (s *Scheduler) fire(jobID string) {
	s.mu.Lock()
	delete(s.timers, jobID)
	s.mu.Unlock()

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	job, err := s.storage.Get(ctx, jobID)
	if err != nil || job == nil {
		s.logger.Warn("job disappeared before firing", "id", jobID, "error", err)
		return
	}
	if job.Status != model.JobScheduled {
		s.logger.Debug("job no longer scheduled, skipping fire", "id", jobID, "status", job.Status)
		return
	}
	s.runHandler(job)
}

func (s *Scheduler) runHandler(job *model.ScheduledJob) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job handler panicked", "id", job.JobID, "panic", r)
			ctx := s.ctx
			if ctx == nil {
				ctx = context.Background()
			}
			_ = s.storage.MarkFailed(ctx, job.JobID, fmt.Sprintf("panic: %v", r))
		}
	}()

	s.mu.Lock()
	h, ok := s.handler[job.JobType]
	s.mu.Unlock()
	if !ok {
		s.logger.Error("no handler registered for job type", "id", job.JobID, "type", job.JobType)
		return
	}

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if err := h(ctx, job); err != nil {
		s.logger.Error("job handler failed", "id", job.JobID, "error", err)
		if mErr := s.storage.MarkFailed(ctx, job.JobID, err.Error()); mErr != nil {
			s.logger.Error("failed to persist job failure", "id", job.JobID, "error", mErr)
		}
		return
	}

	now := s.clock.Now()
	job.Status = model.JobExecuted
	job.ExecutedAt = &now
	if err := s.storage.Save(ctx, job); err != nil {
		s.logger.Error("failed to persist job completion", "id", job.JobID, "error", err)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, coreerr.ErrNotFound)
}
