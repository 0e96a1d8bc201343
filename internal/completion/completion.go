// Package completion implements CompletionEvaluator (C6): pure predicates
// deciding when a game and a season are complete. These functions perform
// no I/O; the coordinator loads their inputs.
package completion

import (
	"time"

	"github.com/jholhewres/gochain/internal/model"
)

// GameCompletionReason explains why isGameComplete returned true.
type GameCompletionReason string

const (
	ReasonNone                GameCompletionReason = ""
	ReasonSeasonAllMembersDone GameCompletionReason = "all-season-members-contributed"
	ReasonMaxTurnsReached      GameCompletionReason = "max-turns-reached"
	ReasonStaleWithMinTurns    GameCompletionReason = "stale-with-min-turns"
)

// GameCompletionResult is the outcome of IsGameComplete.
type GameCompletionResult struct {
	Complete bool
	Reason   GameCompletionReason
}

// IsGameComplete decides whether game is complete, per spec §4.6.
//
// Season games are complete iff every season member has at least one
// COMPLETED or SKIPPED turn in this game. On-demand games are complete iff
// terminal-turn count reaches maxTurns (if set), or reaches minTurns and
// the game has been inactive for at least staleTimeout.
func IsGameComplete(game *model.Game, seasonPlayerIDs []string, terminalTurns []*model.Turn, cfg *model.GameConfig, now time.Time) GameCompletionResult {
	if game.IsSeasonGame() {
		return isSeasonGameComplete(seasonPlayerIDs, terminalTurns)
	}
	return isOnDemandGameComplete(game, terminalTurns, cfg, now)
}

func isSeasonGameComplete(seasonPlayerIDs []string, terminalTurns []*model.Turn) GameCompletionResult {
	contributed := make(map[string]bool, len(terminalTurns))
	for _, t := range terminalTurns {
		if t.IsTerminal() && t.PlayerID != "" {
			contributed[t.PlayerID] = true
		}
	}
	for _, pid := range seasonPlayerIDs {
		if !contributed[pid] {
			return GameCompletionResult{Complete: false}
		}
	}
	return GameCompletionResult{Complete: true, Reason: ReasonSeasonAllMembersDone}
}

func isOnDemandGameComplete(game *model.Game, terminalTurns []*model.Turn, cfg *model.GameConfig, now time.Time) GameCompletionResult {
	count := 0
	for _, t := range terminalTurns {
		if t.IsTerminal() {
			count++
		}
	}

	if cfg.HasMaxTurns() && count >= cfg.MaxTurns {
		return GameCompletionResult{Complete: true, Reason: ReasonMaxTurnsReached}
	}
	if count >= cfg.MinTurns && !game.LastActivityAt.IsZero() && now.Sub(game.LastActivityAt) >= cfg.StaleTimeout {
		return GameCompletionResult{Complete: true, Reason: ReasonStaleWithMinTurns}
	}
	return GameCompletionResult{Complete: false}
}

// IsSeasonComplete is true iff every non-terminated game in the season is
// COMPLETED and the season has produced at least one game.
func IsSeasonComplete(games []*model.Game) bool {
	if len(games) == 0 {
		return false
	}
	any := false
	for _, g := range games {
		if g.Status == model.GameTerminated {
			continue
		}
		any = true
		if g.Status != model.GameCompleted {
			return false
		}
	}
	return any
}
