package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jholhewres/gochain/internal/coreerr"
	"github.com/jholhewres/gochain/internal/model"
	"github.com/jholhewres/gochain/internal/notify"
	"github.com/jholhewres/gochain/internal/ports"
	"github.com/jholhewres/gochain/internal/timeout"
)

// RegisterJobHandlers binds the four turn timeout job types (spec §4.2/I7)
// and the season-open-timeout job type to this coordinator's handlers. Call
// once before Scheduler.Start.
func (co *Coordinator) RegisterJobHandlers() {
	co.Scheduler.RegisterHandler(string(timeout.KindClaimWarning), co.handleClaimWarning)
	co.Scheduler.RegisterHandler(string(timeout.KindClaimTimeout), co.handleClaimTimeout)
	co.Scheduler.RegisterHandler(string(timeout.KindSubmissionWarning), co.handleSubmissionWarning)
	co.Scheduler.RegisterHandler(string(timeout.KindSubmissionTimeout), co.handleSubmissionTimeout)
	co.Scheduler.RegisterHandler(string(timeout.KindSeasonOpenTimeout), co.handleSeasonOpenTimeout)
}

// handleClaimWarning DMs the offered player that their claim window is
// closing soon. No-ops if the turn has already moved past OFFERED.
func (co *Coordinator) handleClaimWarning(ctx context.Context, job *model.ScheduledJob) error {
	payload, err := timeout.DecodePayload(job.Payload)
	if err != nil {
		return err
	}
	return co.warnIfStillHead(ctx, payload.TurnID, model.TurnOffered)
}

// handleClaimTimeout fires when an offered turn's claim window expires. The
// action taken diverges by game type (spec §4.4): season games dismiss the
// offer and run the season offering again; on-demand games skip the turn
// (cascading to game deletion if it was turn 1, spec S3).
func (co *Coordinator) handleClaimTimeout(ctx context.Context, job *model.ScheduledJob) error {
	payload, err := timeout.DecodePayload(job.Payload)
	if err != nil {
		return err
	}
	action, err := co.claimTimeoutAction(ctx, payload.TurnID)
	if err != nil {
		return err
	}
	switch action {
	case timeout.DismissOffer:
		_, err := co.DismissOffer(ctx, payload.TurnID)
		return err
	case timeout.SkipAndMaybeDeleteGame:
		_, err := co.SkipTurn(ctx, payload.TurnID)
		return err
	default:
		return fmt.Errorf("unknown claim timeout action %v", action)
	}
}

// handleSubmissionWarning DMs the claiming player that their submission
// window is closing soon.
func (co *Coordinator) handleSubmissionWarning(ctx context.Context, job *model.ScheduledJob) error {
	payload, err := timeout.DecodePayload(job.Payload)
	if err != nil {
		return err
	}
	return co.warnIfStillHead(ctx, payload.TurnID, model.TurnPending)
}

// handleSubmissionTimeout fires when a claimed turn's submission window
// expires; the turn is skipped regardless of game type. No-ops if the turn
// has already left PENDING.
func (co *Coordinator) handleSubmissionTimeout(ctx context.Context, job *model.ScheduledJob) error {
	payload, err := timeout.DecodePayload(job.Payload)
	if err != nil {
		return err
	}
	_, err = co.SkipTurn(ctx, payload.TurnID)
	if errors.Is(err, coreerr.ErrStaleState) {
		return nil // idempotency guard: turn already submitted or skipped
	}
	return err
}

// handleSeasonOpenTimeout fires when a season's open-membership window
// closes (SPEC_FULL.md §12).
func (co *Coordinator) handleSeasonOpenTimeout(ctx context.Context, job *model.ScheduledJob) error {
	payload, err := timeout.DecodeSeasonPayload(job.Payload)
	if err != nil {
		return err
	}
	return co.evaluateSeasonOpenWindow(ctx, payload.SeasonID)
}

// claimTimeoutAction resolves which policy applies to turnID's game without
// mutating anything.
func (co *Coordinator) claimTimeoutAction(ctx context.Context, turnID string) (timeout.ClaimTimeoutAction, error) {
	var action timeout.ClaimTimeoutAction
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		t, err := tx.GetTurn(ctx, turnID)
		if err != nil {
			return err
		}
		if t.Status != model.TurnOffered {
			action = timeout.DismissOffer // idempotency guard: handler below will no-op
			return nil
		}
		game, err := tx.GetGame(ctx, t.GameID)
		if err != nil {
			return err
		}
		rules, err := co.loadRules(ctx, tx, game)
		if err != nil {
			return err
		}
		action = rules.Policy.ClaimTimeoutAction()
		return nil
	})
	return action, err
}

// warnIfStillHead DMs a turn-warning intent only if the turn is still in the
// expected status, per the scheduler's at-least-once idempotency rule (G3).
// The remaining time is recomputed from the turn's persisted offeredAt
// (claim warning) or claimedAt (submission warning) plus the game's
// configured timeout, never hard-coded, since the handler may run later
// than its nominal fire time (spec §5).
func (co *Coordinator) warnIfStillHead(ctx context.Context, turnID string, expected model.TurnStatus) error {
	var guildID string
	var intent *notify.Intent
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		t, err := tx.GetTurn(ctx, turnID)
		if err != nil {
			return err
		}
		if t.Status != expected {
			return nil
		}
		game, err := tx.GetGame(ctx, t.GameID)
		if err != nil {
			return err
		}
		guildID = game.GuildID
		rules, err := co.loadRules(ctx, tx, game)
		if err != nil {
			return err
		}

		var deadline time.Time
		switch expected {
		case model.TurnOffered:
			if t.OfferedAt != nil {
				deadline = t.OfferedAt.Add(rules.Timeout.ClaimTimeoutValue())
			}
		case model.TurnPending:
			if t.ClaimedAt != nil {
				deadline = t.ClaimedAt.Add(rules.Timeout.SubmissionTimeout(t.Type))
			}
		}
		remaining := deadline.Sub(co.Clock.Now())
		if remaining < 0 {
			remaining = 0
		}

		in := notify.TurnWarning(t.PlayerID, t.ID, remaining)
		intent = &in
		return nil
	})
	if err != nil {
		return err
	}
	if intent != nil {
		co.Notify.Dispatch(ctx, guildID, []notify.Intent{*intent})
	}
	return nil
}
