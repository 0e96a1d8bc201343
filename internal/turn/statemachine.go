// Package turn implements TurnStateMachine (spec §4.3): the legal
// transitions over a Turn, each an atomic read-check-update with explicit
// preconditions. Every operation is idempotent in the sense that a second
// concurrent attempt against an already-transitioned turn returns a
// StateError rather than mutating anything.
package turn

import (
	"fmt"

	"github.com/jholhewres/gochain/internal/clock"
	"github.com/jholhewres/gochain/internal/coreerr"
	"github.com/jholhewres/gochain/internal/model"
)

// StateMachine applies transitions to Turn values. It holds no storage of
// its own: callers (the GameCoordinator, via the Repository) are
// responsible for the conditional persistence that makes a transition
// atomic under concurrency (spec §5) — this type only computes the next
// value and validates the precondition.
type StateMachine struct {
	Clock clock.Clock
}

// New returns a StateMachine using the given clock.
func New(c clock.Clock) *StateMachine {
	if c == nil {
		c = clock.Real{}
	}
	return &StateMachine{Clock: c}
}

// Offer transitions an AVAILABLE turn to OFFERED, assigned to playerID.
func (sm *StateMachine) Offer(t *model.Turn, playerID string) (*model.Turn, error) {
	if t.Status != model.TurnAvailable {
		return nil, coreerr.NewStateError(t.ID, "offer", string(t.Status), coreerr.ErrStaleState)
	}
	next := *t
	next.Status = model.TurnOffered
	next.PlayerID = playerID
	now := sm.Clock.Now()
	next.OfferedAt = &now
	next.UpdatedAt = now
	return &next, nil
}

// Claim transitions an OFFERED turn to PENDING. The claiming player must
// match the offered player.
func (sm *StateMachine) Claim(t *model.Turn, playerID string) (*model.Turn, error) {
	if t.Status != model.TurnOffered {
		return nil, coreerr.NewStateError(t.ID, "claim", string(t.Status), coreerr.ErrStaleState)
	}
	if t.PlayerID != playerID {
		return nil, coreerr.NewStateError(t.ID, "claim", string(t.Status), coreerr.ErrPreconditionViolated)
	}
	next := *t
	next.Status = model.TurnPending
	now := sm.Clock.Now()
	next.ClaimedAt = &now
	next.UpdatedAt = now
	return &next, nil
}

// Dismiss transitions an OFFERED turn back to AVAILABLE, clearing the
// assigned player and offer timestamp.
func (sm *StateMachine) Dismiss(t *model.Turn) (*model.Turn, error) {
	if t.Status != model.TurnOffered {
		return nil, coreerr.NewStateError(t.ID, "dismiss", string(t.Status), coreerr.ErrStaleState)
	}
	next := *t
	next.Status = model.TurnAvailable
	next.PlayerID = ""
	next.OfferedAt = nil
	next.UpdatedAt = sm.Clock.Now()
	return &next, nil
}

// ContentKind is the kind of content a submission carries.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
)

// Submit transitions a PENDING turn to COMPLETED, recording content that
// must match the turn's type (WRITING -> text, DRAWING -> image) and be
// non-empty.
func (sm *StateMachine) Submit(t *model.Turn, playerID string, kind ContentKind, content string) (*model.Turn, error) {
	if t.Status != model.TurnPending {
		return nil, coreerr.NewStateError(t.ID, "submit", string(t.Status), coreerr.ErrStaleState)
	}
	if t.PlayerID != playerID {
		return nil, coreerr.NewStateError(t.ID, "submit", string(t.Status), coreerr.ErrPreconditionViolated)
	}
	if content == "" {
		return nil, fmt.Errorf("%w: empty content for turn %s", coreerr.ErrValidation, t.ID)
	}
	wantKind := ContentText
	if t.Type == model.TurnDrawing {
		wantKind = ContentImage
	}
	if kind != wantKind {
		return nil, fmt.Errorf("%w: turn %s is %s, content kind %s does not match", coreerr.ErrValidation, t.ID, t.Type, kind)
	}

	next := *t
	next.Status = model.TurnCompleted
	now := sm.Clock.Now()
	next.CompletedAt = &now
	next.UpdatedAt = now
	if kind == ContentText {
		next.TextContent = content
	} else {
		next.ImageURL = content
	}
	return &next, nil
}

// Skip transitions a PENDING turn to SKIPPED, clearing no content (I3:
// skipped turns carry none) and recording skippedAt.
func (sm *StateMachine) Skip(t *model.Turn) (*model.Turn, error) {
	if t.Status != model.TurnPending {
		return nil, coreerr.NewStateError(t.ID, "skip", string(t.Status), coreerr.ErrStaleState)
	}
	next := *t
	next.Status = model.TurnSkipped
	now := sm.Clock.Now()
	next.SkippedAt = &now
	next.UpdatedAt = now
	return &next, nil
}

// Flag transitions a COMPLETED turn to FLAGGED (semi-terminal; admin may
// resolve it via ResolveFlag, outside the core's command scope but part of
// the state machine per SPEC_FULL.md §12).
func (sm *StateMachine) Flag(t *model.Turn) (*model.Turn, error) {
	if t.Status != model.TurnCompleted {
		return nil, coreerr.NewStateError(t.ID, "flag", string(t.Status), coreerr.ErrStaleState)
	}
	next := *t
	next.Status = model.TurnFlagged
	next.UpdatedAt = sm.Clock.Now()
	return &next, nil
}

// ResolveFlag resolves a FLAGGED turn back to a terminal disposition: keep
// (COMPLETED, content preserved) or reject (SKIPPED, content cleared).
func (sm *StateMachine) ResolveFlag(t *model.Turn, keep bool) (*model.Turn, error) {
	if t.Status != model.TurnFlagged {
		return nil, coreerr.NewStateError(t.ID, "resolveFlag", string(t.Status), coreerr.ErrStaleState)
	}
	next := *t
	now := sm.Clock.Now()
	next.UpdatedAt = now
	if keep {
		next.Status = model.TurnCompleted
		return &next, nil
	}
	next.Status = model.TurnSkipped
	next.TextContent = ""
	next.ImageURL = ""
	next.SkippedAt = &now
	return &next, nil
}
