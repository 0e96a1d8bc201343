package completion

import (
	"testing"
	"time"

	"github.com/jholhewres/gochain/internal/model"
)

func terminalTurn(playerID string, status model.TurnStatus) *model.Turn {
	return &model.Turn{PlayerID: playerID, Status: status}
}

func TestIsGameCompleteSeason(t *testing.T) {
	game := &model.Game{SeasonID: "s1"}
	members := []string{"alice", "bob", "carol"}

	turns := []*model.Turn{
		terminalTurn("alice", model.TurnCompleted),
		terminalTurn("bob", model.TurnSkipped),
	}
	res := IsGameComplete(game, members, turns, nil, time.Now())
	if res.Complete {
		t.Fatalf("expected incomplete (carol missing), got %+v", res)
	}

	turns = append(turns, terminalTurn("carol", model.TurnCompleted))
	res = IsGameComplete(game, members, turns, nil, time.Now())
	if !res.Complete || res.Reason != ReasonSeasonAllMembersDone {
		t.Fatalf("expected complete all-members-done, got %+v", res)
	}
}

func TestIsGameCompleteOnDemandMaxTurns(t *testing.T) {
	game := &model.Game{}
	cfg := &model.GameConfig{MaxTurns: 3, MinTurns: 1, StaleTimeout: time.Hour}
	turns := []*model.Turn{
		terminalTurn("a", model.TurnCompleted),
		terminalTurn("b", model.TurnCompleted),
		terminalTurn("c", model.TurnCompleted),
	}
	res := IsGameComplete(game, nil, turns, cfg, time.Now())
	if !res.Complete || res.Reason != ReasonMaxTurnsReached {
		t.Fatalf("expected max-turns-reached, got %+v", res)
	}
}

func TestIsGameCompleteOnDemandStale(t *testing.T) {
	now := time.Now()
	game := &model.Game{LastActivityAt: now.Add(-2 * time.Hour)}
	cfg := &model.GameConfig{MinTurns: 1, StaleTimeout: time.Hour}
	turns := []*model.Turn{terminalTurn("a", model.TurnCompleted)}

	res := IsGameComplete(game, nil, turns, cfg, now)
	if !res.Complete || res.Reason != ReasonStaleWithMinTurns {
		t.Fatalf("expected stale-with-min-turns, got %+v", res)
	}

	// Not stale yet.
	game.LastActivityAt = now.Add(-30 * time.Minute)
	res = IsGameComplete(game, nil, turns, cfg, now)
	if res.Complete {
		t.Fatalf("expected incomplete, not yet stale: %+v", res)
	}

	// Stale but below minTurns.
	cfg.MinTurns = 5
	game.LastActivityAt = now.Add(-2 * time.Hour)
	res = IsGameComplete(game, nil, turns, cfg, now)
	if res.Complete {
		t.Fatalf("expected incomplete, below minTurns: %+v", res)
	}
}

// TestIsSeasonComplete covers P7: a season completes iff every game in it
// has reached COMPLETED (or TERMINATED) and at least one game was created.
func TestIsSeasonComplete(t *testing.T) {
	if IsSeasonComplete(nil) {
		t.Fatalf("empty season should not be complete")
	}

	games := []*model.Game{
		{Status: model.GameCompleted},
		{Status: model.GameActive},
	}
	if IsSeasonComplete(games) {
		t.Fatalf("expected incomplete while a game is still active")
	}

	games[1].Status = model.GameCompleted
	if !IsSeasonComplete(games) {
		t.Fatalf("expected complete when all games completed")
	}

	// A terminated game doesn't block completion, but also doesn't count
	// as "at least one game" by itself.
	onlyTerminated := []*model.Game{{Status: model.GameTerminated}}
	if IsSeasonComplete(onlyTerminated) {
		t.Fatalf("a season with only a terminated game should not be complete")
	}

	mixed := []*model.Game{{Status: model.GameTerminated}, {Status: model.GameCompleted}}
	if !IsSeasonComplete(mixed) {
		t.Fatalf("expected complete: terminated game ignored, completed game present")
	}
}
