// Package timeout implements TurnTimeoutService (C4): translating turn
// lifecycle events into scheduled warning/timeout jobs, with two concrete
// policies (Season, OnDemand) that diverge only in what a claim timeout
// does (spec §4.4). To avoid the cyclic offering<->timeout import the
// source exhibits (spec §9 design notes), this package owns only the
// scheduling decision and deterministic job identity; the actual timeout
// *handlers* that mutate state are registered with the jobstore.Scheduler
// by internal/coordinator, which is the single place that can legally
// reach both this package and internal/offering.
package timeout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jholhewres/gochain/internal/clock"
	"github.com/jholhewres/gochain/internal/jobstore"
	"github.com/jholhewres/gochain/internal/model"
	"github.com/jholhewres/gochain/internal/ports"
)

// JobKind identifies one of the four turn job kinds named in spec §4.2/I7,
// or the season-open-timeout kind.
type JobKind string

const (
	KindClaimWarning      JobKind = "claim-warning"
	KindClaimTimeout      JobKind = "claim-timeout"
	KindSubmissionWarning JobKind = "submission-warning"
	KindSubmissionTimeout JobKind = "submission-timeout"

	// KindSeasonOpenTimeout fires when a season's open-membership window
	// closes (SPEC_FULL.md §12's supplemented season open/close window).
	KindSeasonOpenTimeout JobKind = "season-open-timeout"
)

// Deterministic job IDs (spec §6): callers build these from the domain key
// and use them to cancel (G2).
func ClaimWarningJobID(turnID string) string      { return "turn-warning-" + turnID }
func ClaimTimeoutJobID(turnID string) string      { return "turn-claim-timeout-" + turnID }
func SubmissionWarningJobID(turnID string) string { return "turn-submission-warning-" + turnID }
func SubmissionTimeoutJobID(turnID string) string { return "turn-timeout-" + turnID }

// AllJobIDsForTurn returns every deterministic job ID that may exist for a
// turn, for batch-cancel callers (e.g. GameCoordinator.terminateGame).
func AllJobIDsForTurn(turnID string) []string {
	return []string{
		ClaimWarningJobID(turnID),
		ClaimTimeoutJobID(turnID),
		SubmissionWarningJobID(turnID),
		SubmissionTimeoutJobID(turnID),
	}
}

// SeasonOpenTimeoutJobID is the deterministic job ID for a season's
// open-window evaluation.
func SeasonOpenTimeoutJobID(seasonID string) string { return "season-open-timeout-" + seasonID }

// Config is the subset of SeasonConfig/GameConfig the timeout service
// needs; both model types already implement it.
type Config interface {
	ClaimTimeoutValue() time.Duration
	ClaimWarningValue() time.Duration
	SubmissionTimeout(model.TurnType) time.Duration
	SubmissionWarning(model.TurnType) time.Duration
}

// ClaimTimeoutAction is what a fired claim-timeout job should do; the two
// policies differ only in this value (spec §4.4's "Season vs on-demand
// divergence").
type ClaimTimeoutAction int

const (
	// DismissOffer returns the turn to AVAILABLE for re-offer (season).
	DismissOffer ClaimTimeoutAction = iota
	// SkipAndMaybeDeleteGame skips the turn; if it was turn #1, the whole
	// game is deleted (on-demand).
	SkipAndMaybeDeleteGame
)

// Policy is the per-game-type strategy (spec §9: "model as a tagged variant
// on Game plus a strategy chosen at dispatch; do not subclass").
type Policy interface {
	ClaimTimeoutAction() ClaimTimeoutAction
}

type seasonPolicy struct{}

func (seasonPolicy) ClaimTimeoutAction() ClaimTimeoutAction { return DismissOffer }

type onDemandPolicy struct{}

func (onDemandPolicy) ClaimTimeoutAction() ClaimTimeoutAction { return SkipAndMaybeDeleteGame }

// SeasonPolicy and OnDemandPolicy are the two concrete policies.
var (
	SeasonPolicy   Policy = seasonPolicy{}
	OnDemandPolicy Policy = onDemandPolicy{}
)

// Payload is the opaque record persisted with each scheduled job, carrying
// enough context for the handler to re-validate and act without relying on
// closure state (G3: handlers must be idempotent and self-sufficient).
type Payload struct {
	TurnID   string `json:"turn_id"`
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id,omitempty"`
	IsSeason bool   `json:"is_season"`
}

// DecodePayload parses a job's payload bytes.
func DecodePayload(b []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, fmt.Errorf("decode timeout payload: %w", err)
	}
	return p, nil
}

// Encode serializes the payload for storage.
func (p Payload) Encode() []byte {
	b, _ := json.Marshal(p)
	return b
}

// SeasonPayload is the opaque record persisted with a season-open-timeout
// job; unlike Payload it carries no turn/player, only the season.
type SeasonPayload struct {
	SeasonID string `json:"season_id"`
}

// DecodeSeasonPayload parses a season-open-timeout job's payload bytes.
func DecodeSeasonPayload(b []byte) (SeasonPayload, error) {
	var p SeasonPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return SeasonPayload{}, fmt.Errorf("decode season payload: %w", err)
	}
	return p, nil
}

// Encode serializes the payload for storage.
func (p SeasonPayload) Encode() []byte {
	b, _ := json.Marshal(p)
	return b
}

// Service schedules and cancels the warning/timeout jobs around Turn
// lifecycle transitions. It never touches the Turn or Game tables itself:
// GameCoordinator calls these methods inside the same transaction that
// performed the state transition (spec §4.4: "executed inside the
// transaction that produced the state change"), passing that transaction's
// ports.Tx through so the scheduled-job rows commit or roll back with it
// rather than landing on the storage's own separate connection.
type Service struct {
	Scheduler *jobstore.Scheduler
	Clock     clock.Clock
}

// New returns a Service driving sched, timestamping schedule offsets with c.
func New(sched *jobstore.Scheduler, c clock.Clock) *Service {
	if c == nil {
		c = clock.Real{}
	}
	return &Service{Scheduler: sched, Clock: c}
}

// OnOffer arms the claim-warning (if configured and shorter than the claim
// timeout) and claim-timeout jobs for a turn that just entered OFFERED. tx
// must be the same transaction that wrote the turn's OFFERED row.
func (s *Service) OnOffer(ctx context.Context, tx ports.Tx, t *model.Turn, cfg Config) error {
	payload := Payload{TurnID: t.ID, GameID: t.GameID, PlayerID: t.PlayerID}
	now := s.Clock.Now()

	claimTimeout := cfg.ClaimTimeoutValue()
	if claimWarning := cfg.ClaimWarningValue(); claimWarning > 0 && claimWarning < claimTimeout {
		if _, err := s.Scheduler.ScheduleTx(ctx, tx, ClaimWarningJobID(t.ID), now.Add(claimWarning), string(KindClaimWarning), payload.Encode()); err != nil {
			return err
		}
	}
	if _, err := s.Scheduler.ScheduleTx(ctx, tx, ClaimTimeoutJobID(t.ID), now.Add(claimTimeout), string(KindClaimTimeout), payload.Encode()); err != nil {
		return err
	}
	return nil
}

// OnClaim cancels the claim jobs and arms the submission-warning/timeout
// jobs for a turn that just entered PENDING. tx must be the same
// transaction that wrote the turn's PENDING row.
func (s *Service) OnClaim(ctx context.Context, tx ports.Tx, t *model.Turn, cfg Config) error {
	s.Scheduler.CancelJobsForGameTx(ctx, tx, []string{ClaimWarningJobID(t.ID), ClaimTimeoutJobID(t.ID)})

	payload := Payload{TurnID: t.ID, GameID: t.GameID, PlayerID: t.PlayerID}
	now := s.Clock.Now()

	submissionTimeout := cfg.SubmissionTimeout(t.Type)
	if submissionWarning := cfg.SubmissionWarning(t.Type); submissionWarning > 0 {
		if _, err := s.Scheduler.ScheduleTx(ctx, tx, SubmissionWarningJobID(t.ID), now.Add(submissionWarning), string(KindSubmissionWarning), payload.Encode()); err != nil {
			return err
		}
	}
	if _, err := s.Scheduler.ScheduleTx(ctx, tx, SubmissionTimeoutJobID(t.ID), now.Add(submissionTimeout), string(KindSubmissionTimeout), payload.Encode()); err != nil {
		return err
	}
	return nil
}

// OnSubmit cancels any outstanding submission jobs for a turn that just
// completed.
func (s *Service) OnSubmit(ctx context.Context, tx ports.Tx, t *model.Turn) error {
	s.Scheduler.CancelJobsForGameTx(ctx, tx, []string{SubmissionWarningJobID(t.ID), SubmissionTimeoutJobID(t.ID)})
	return nil
}

// OnSkip cancels any outstanding submission jobs for a turn that just
// skipped.
func (s *Service) OnSkip(ctx context.Context, tx ports.Tx, t *model.Turn) error {
	s.Scheduler.CancelJobsForGameTx(ctx, tx, []string{SubmissionWarningJobID(t.ID), SubmissionTimeoutJobID(t.ID)})
	return nil
}

// OnFlag is a no-op: COMPLETED->FLAGGED has no scheduled jobs to cancel
// (submission jobs already cancelled by OnSubmit).
func (s *Service) OnFlag(ctx context.Context, tx ports.Tx, t *model.Turn) error { return nil }

// OnSeasonOpen arms the job that evaluates a season's open-membership window
// after openDuration elapses (SPEC_FULL.md §12). Called once, from
// CreateSeason, which creates the season directly in OPEN.
func (s *Service) OnSeasonOpen(ctx context.Context, tx ports.Tx, seasonID string, openDuration time.Duration) error {
	payload := SeasonPayload{SeasonID: seasonID}
	now := s.Clock.Now()
	_, err := s.Scheduler.ScheduleTx(ctx, tx, SeasonOpenTimeoutJobID(seasonID), now.Add(openDuration), string(KindSeasonOpenTimeout), payload.Encode())
	return err
}

// OnDismiss cancels any leftover claim jobs for a turn that was dismissed
// back to AVAILABLE, whether by its claim timeout firing or by the offered
// player passing (OnClaim cancels the same jobs on the claim path).
func (s *Service) OnDismiss(ctx context.Context, tx ports.Tx, t *model.Turn) error {
	s.Scheduler.CancelJobsForGameTx(ctx, tx, []string{ClaimWarningJobID(t.ID), ClaimTimeoutJobID(t.ID)})
	return nil
}

