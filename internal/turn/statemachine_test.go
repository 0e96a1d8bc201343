package turn

import (
	"errors"
	"testing"
	"time"

	"github.com/jholhewres/gochain/internal/clock"
	"github.com/jholhewres/gochain/internal/coreerr"
	"github.com/jholhewres/gochain/internal/model"
)

func newTurn(status model.TurnStatus) *model.Turn {
	return &model.Turn{
		ID:     "turn-1",
		GameID: "game-1",
		Type:   model.TurnWriting,
		Status: status,
	}
}

func TestOfferClaimDismiss(t *testing.T) {
	sm := New(clock.NewFixed(time.Unix(1000, 0)))

	tn := newTurn(model.TurnAvailable)
	offered, err := sm.Offer(tn, "alice")
	if err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if offered.Status != model.TurnOffered || offered.PlayerID != "alice" || offered.OfferedAt == nil {
		t.Fatalf("unexpected offered turn: %+v", offered)
	}

	// Claim by wrong player rejected.
	if _, err := sm.Claim(offered, "bob"); !errors.Is(err, coreerr.ErrPreconditionViolated) {
		t.Fatalf("Claim by wrong player: want precondition-violated, got %v", err)
	}

	claimed, err := sm.Claim(offered, "alice")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.Status != model.TurnPending || claimed.ClaimedAt == nil {
		t.Fatalf("unexpected claimed turn: %+v", claimed)
	}

	// Dismiss only legal from OFFERED.
	if _, err := sm.Dismiss(claimed); !errors.Is(err, coreerr.ErrStaleState) {
		t.Fatalf("Dismiss from PENDING: want stale-state, got %v", err)
	}

	dismissed, err := sm.Dismiss(offered)
	if err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	if dismissed.Status != model.TurnAvailable || dismissed.PlayerID != "" || dismissed.OfferedAt != nil {
		t.Fatalf("unexpected dismissed turn: %+v", dismissed)
	}
}

func TestSubmitContentMatchesType(t *testing.T) {
	sm := New(clock.Real{})

	writing := newTurn(model.TurnPending)
	writing.PlayerID = "alice"
	if _, err := sm.Submit(writing, "alice", ContentImage, "http://x/y.png"); !errors.Is(err, coreerr.ErrValidation) {
		t.Fatalf("submit image to writing turn: want validation error, got %v", err)
	}
	got, err := sm.Submit(writing, "alice", ContentText, "a cat in a hat")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got.Status != model.TurnCompleted || got.TextContent != "a cat in a hat" || got.ImageURL != "" {
		t.Fatalf("unexpected submitted turn: %+v", got)
	}

	if _, err := sm.Submit(writing, "alice", ContentText, ""); !errors.Is(err, coreerr.ErrValidation) {
		t.Fatalf("submit empty content: want validation error, got %v", err)
	}

	if _, err := sm.Submit(writing, "mallory", ContentText, "hijack"); !errors.Is(err, coreerr.ErrPreconditionViolated) {
		t.Fatalf("submit by non-assignee: want precondition-violated, got %v", err)
	}
}

func TestSkipClearsNoPriorContentAndIsTerminal(t *testing.T) {
	sm := New(clock.Real{})
	tn := newTurn(model.TurnPending)
	skipped, err := sm.Skip(tn)
	if err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if skipped.Status != model.TurnSkipped || skipped.TextContent != "" || skipped.ImageURL != "" {
		t.Fatalf("unexpected skipped turn: %+v", skipped)
	}
	if !skipped.IsTerminal() {
		t.Fatalf("skipped turn should be terminal")
	}
}

func TestFlagAndResolve(t *testing.T) {
	sm := New(clock.Real{})
	tn := newTurn(model.TurnCompleted)
	tn.TextContent = "hello"

	flagged, err := sm.Flag(tn)
	if err != nil {
		t.Fatalf("Flag: %v", err)
	}
	if flagged.Status != model.TurnFlagged {
		t.Fatalf("unexpected flagged turn: %+v", flagged)
	}

	kept, err := sm.ResolveFlag(flagged, true)
	if err != nil {
		t.Fatalf("ResolveFlag(keep): %v", err)
	}
	if kept.Status != model.TurnCompleted || kept.TextContent != "hello" {
		t.Fatalf("unexpected kept turn: %+v", kept)
	}

	rejected, err := sm.ResolveFlag(flagged, false)
	if err != nil {
		t.Fatalf("ResolveFlag(reject): %v", err)
	}
	if rejected.Status != model.TurnSkipped || rejected.TextContent != "" {
		t.Fatalf("unexpected rejected turn: %+v", rejected)
	}
}

// TestIllegalTransitionsAreRejectedAndNonMutating is property P2: for every
// (state, event) pair not in the explicit transition table, the operation
// returns an error and the original turn value passed in is unmodified
// (transitions build a copy, never mutate in place).
func TestIllegalTransitionsAreRejectedAndNonMutating(t *testing.T) {
	sm := New(clock.Real{})

	allStatuses := []model.TurnStatus{
		model.TurnAvailable, model.TurnOffered, model.TurnPending,
		model.TurnCompleted, model.TurnSkipped, model.TurnFlagged,
	}
	legal := map[model.TurnStatus]bool{} // per-op legal source states set per call below

	type op struct {
		name   string
		legal  model.TurnStatus
		invoke func(*model.Turn) (*model.Turn, error)
	}
	ops := []op{
		{"offer", model.TurnAvailable, func(tn *model.Turn) (*model.Turn, error) { return sm.Offer(tn, "alice") }},
		{"claim", model.TurnOffered, func(tn *model.Turn) (*model.Turn, error) { return sm.Claim(tn, "alice") }},
		{"dismiss", model.TurnOffered, func(tn *model.Turn) (*model.Turn, error) { return sm.Dismiss(tn) }},
		{"submit", model.TurnPending, func(tn *model.Turn) (*model.Turn, error) {
			return sm.Submit(tn, "alice", ContentText, "x")
		}},
		{"skip", model.TurnPending, func(tn *model.Turn) (*model.Turn, error) { return sm.Skip(tn) }},
		{"flag", model.TurnCompleted, func(tn *model.Turn) (*model.Turn, error) { return sm.Flag(tn) }},
	}
	_ = legal

	for _, o := range ops {
		for _, st := range allStatuses {
			if st == o.legal {
				continue
			}
			tn := newTurn(st)
			tn.PlayerID = "alice"
			before := *tn
			_, err := o.invoke(tn)
			if err == nil {
				t.Errorf("%s from %s: expected error, got success", o.name, st)
				continue
			}
			if !errors.Is(err, coreerr.ErrStaleState) && !errors.Is(err, coreerr.ErrPreconditionViolated) {
				t.Errorf("%s from %s: expected stale-state or precondition-violated, got %v", o.name, st, err)
			}
			if *tn != before {
				t.Errorf("%s from %s: turn was mutated in place", o.name, st)
			}
		}
	}
}
