package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jholhewres/gochain/internal/model"
	"github.com/jholhewres/gochain/internal/ports"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "gochain-sqlite-test-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := Open(Config{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPlayerRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &model.Player{ID: "p1", ExternalUserID: "disc-1", DisplayName: "Alice"}
	err := s.WithTx(ctx, func(tx ports.Tx) error { return tx.SavePlayer(ctx, p) })
	if err != nil {
		t.Fatalf("SavePlayer: %v", err)
	}

	err = s.WithTx(ctx, func(tx ports.Tx) error {
		got, err := tx.GetPlayerByExternalID(ctx, "disc-1")
		if err != nil {
			return err
		}
		if got.DisplayName != "Alice" {
			t.Fatalf("got %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
}

func TestGameAndTurnCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	game := &model.Game{ID: "g1", Status: model.GameActive, CreatedAt: now, UpdatedAt: now, LastActivityAt: now}
	turn := &model.Turn{ID: "t1", GameID: "g1", TurnNumber: 1, Type: model.TurnWriting, Status: model.TurnAvailable, CreatedAt: now, UpdatedAt: now}

	err := s.WithTx(ctx, func(tx ports.Tx) error {
		if err := tx.SaveGame(ctx, game); err != nil {
			return err
		}
		return tx.SaveTurn(ctx, turn)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	err = s.WithTx(ctx, func(tx ports.Tx) error {
		head, err := tx.GetHeadTurn(ctx, "g1")
		if err != nil {
			return err
		}
		if head == nil || head.ID != "t1" {
			t.Fatalf("expected head turn t1, got %+v", head)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("head lookup: %v", err)
	}
}

// TestSaveTurnConditionalEnforcesExpectedStatus covers the single-writer-wins
// rule: a conditional write only lands if the stored status still matches.
func TestSaveTurnConditionalEnforcesExpectedStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	turn := &model.Turn{ID: "t1", GameID: "g1", TurnNumber: 1, Type: model.TurnWriting, Status: model.TurnAvailable, CreatedAt: now, UpdatedAt: now}
	err := s.WithTx(ctx, func(tx ports.Tx) error {
		ok, err := tx.SaveTurnConditional(ctx, turn, model.TurnAvailable)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatalf("expected initial insert to succeed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	offered := *turn
	offered.Status = model.TurnOffered
	offered.PlayerID = "alice"
	offered.UpdatedAt = now.Add(time.Second)

	// Two concurrent claimants racing against expected status AVAILABLE.
	err = s.WithTx(ctx, func(tx ports.Tx) error {
		ok, err := tx.SaveTurnConditional(ctx, &offered, model.TurnAvailable)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatalf("expected first conditional write to succeed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("first write: %v", err)
	}

	pending := offered
	pending.Status = model.TurnPending
	err = s.WithTx(ctx, func(tx ports.Tx) error {
		// Stale precondition: turn is now OFFERED, not AVAILABLE.
		ok, err := tx.SaveTurnConditional(ctx, &pending, model.TurnAvailable)
		if err != nil {
			return err
		}
		if ok {
			t.Fatalf("expected stale conditional write to fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("second write: %v", err)
	}

	err = s.WithTx(ctx, func(tx ports.Tx) error {
		got, err := tx.GetTurn(ctx, "t1")
		if err != nil {
			return err
		}
		if got.Status != model.TurnOffered {
			t.Fatalf("expected status to still be OFFERED, got %s", got.Status)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestJobStorageRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	fireAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	job := &model.ScheduledJob{JobID: "turn-timeout-t1", FireAt: fireAt, JobType: "turn-timeout", Status: model.JobScheduled}
	if err := s.Save(ctx, job); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "turn-timeout-t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.JobScheduled {
		t.Fatalf("expected SCHEDULED, got %s", got.Status)
	}

	scheduled, err := s.LoadScheduled(ctx)
	if err != nil {
		t.Fatalf("LoadScheduled: %v", err)
	}
	if len(scheduled) != 1 {
		t.Fatalf("expected 1 scheduled job, got %d", len(scheduled))
	}

	if err := s.MarkFailed(ctx, "turn-timeout-t1", "missed execution due to downtime"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, err = s.Get(ctx, "turn-timeout-t1")
	if err != nil {
		t.Fatalf("Get after fail: %v", err)
	}
	if got.Status != model.JobFailed || got.FailureReason != "missed execution due to downtime" {
		t.Fatalf("unexpected job state: %+v", got)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	sentinel := errorString("boom")
	err := s.WithTx(ctx, func(tx ports.Tx) error {
		if err := tx.SaveGame(ctx, &model.Game{ID: "g-rollback", Status: model.GameActive, CreatedAt: now, UpdatedAt: now, LastActivityAt: now}); err != nil {
			return err
		}
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	err = s.WithTx(ctx, func(tx ports.Tx) error {
		_, err := tx.GetGame(ctx, "g-rollback")
		return err
	})
	if err == nil {
		t.Fatalf("expected rolled-back game to be absent")
	}
}

type errorString string

func (e errorString) Error() string { return string(e) }
