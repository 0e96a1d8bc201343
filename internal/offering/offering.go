// Package offering implements TurnOfferingService (C5): selecting the next
// player for a game's next turn, and the return-cooldown policy for
// on-demand games (spec §4.5).
package offering

import (
	"sort"
	"time"

	"github.com/jholhewres/gochain/internal/model"
)

// HeadTurnPlan is what the coordinator should do to (re)establish a game's
// head turn: either an existing head turn was found, or a brand-new one
// must be created with the given attributes.
type HeadTurnPlan struct {
	Existing *model.Turn // non-nil if a head turn already exists
	// Fields below are only meaningful when Existing is nil.
	TurnNumber     int
	Type           model.TurnType
	PreviousTurnID string
}

// PlanHeadTurn implements step 2 of offerNextTurn: find or create the head
// turn. allTurns must include every turn for the game (terminal and
// non-terminal).
func PlanHeadTurn(allTurns []*model.Turn, pattern []model.TurnType) HeadTurnPlan {
	var lastTerminal *model.Turn
	maxTerminal := 0
	for _, t := range allTurns {
		if t.Status.IsHead() {
			return HeadTurnPlan{Existing: t}
		}
		if t.IsTerminal() && t.TurnNumber > maxTerminal {
			maxTerminal = t.TurnNumber
			lastTerminal = t
		}
	}

	nextNumber := maxTerminal + 1
	var prevID string
	if lastTerminal != nil {
		prevID = lastTerminal.ID
	}
	turnType := pattern[(nextNumber-1)%len(pattern)]
	return HeadTurnPlan{TurnNumber: nextNumber, Type: turnType, PreviousTurnID: prevID}
}

// CandidateInput is one eligible season member considered for an offer.
type CandidateInput struct {
	PlayerID         string
	Banned           bool
	HasPendingTurn   bool // has an active PENDING turn in ANY game
	WasPreviousTurn  bool // was the player of the immediately previous turn
	CompletedInSeason int
	JoinedAt         time.Time
}

// SelectSeasonCandidate implements step 3: deterministic selection of the
// next season-game offeree. Returns "", false if nobody is eligible.
//
// Eligibility: season member, not banned, no active PENDING turn anywhere,
// and not the player of the immediately previous turn "where feasible" —
// if excluding the previous player would leave nobody eligible, they are
// allowed back in (this is the "where feasible" qualifier in spec §4.5).
//
// Ordering: ascending by completed-turns-in-season, then earliest joinedAt,
// then playerId.
func SelectSeasonCandidate(candidates []CandidateInput) (string, bool) {
	eligible := filterCandidates(candidates, true)
	if len(eligible) == 0 {
		eligible = filterCandidates(candidates, false)
	}
	if len(eligible) == 0 {
		return "", false
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.CompletedInSeason != b.CompletedInSeason {
			return a.CompletedInSeason < b.CompletedInSeason
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.PlayerID < b.PlayerID
	})
	return eligible[0].PlayerID, true
}

func filterCandidates(candidates []CandidateInput, excludePrevious bool) []CandidateInput {
	var out []CandidateInput
	for _, c := range candidates {
		if c.Banned || c.HasPendingTurn {
			continue
		}
		if excludePrevious && c.WasPreviousTurn {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ReturnPolicyInput is the context needed to evaluate the on-demand return
// cooldown for one candidate player against one game.
type ReturnPolicyInput struct {
	ReturnCount    int // 0 = unlimited
	ReturnCooldown int
	// PlayerTerminalCount is this player's count of COMPLETED+SKIPPED turns
	// in this game.
	PlayerTerminalCount int
	// OtherPlayerTurnsSinceLastTerminal is the count of terminal turns by
	// OTHER players since this player's last terminal turn in this game.
	OtherPlayerTurnsSinceLastTerminal int
}

// AllowsReturn implements the return-cooldown policy of spec §4.5.
func AllowsReturn(in ReturnPolicyInput) bool {
	if in.ReturnCount == 0 {
		return true
	}
	if in.PlayerTerminalCount < in.ReturnCount {
		return true
	}
	if in.ReturnCooldown == 0 {
		// Spec §9 open question: returnCooldown=0 with returnCount>0 is
		// interpreted as "cooldown disabled" here.
		return true
	}
	return in.OtherPlayerTurnsSinceLastTerminal >= in.ReturnCooldown
}

// OpenGameCandidate is one on-demand game a player might join.
type OpenGameCandidate struct {
	GameID        string
	StaleExpiryAt time.Time
	CreatedAt     time.Time
}

// SelectJoinGame implements the joinOnDemandGame selection order of spec
// §4.7: nearest staleTimeout expiry first, tie-broken by earliest
// createdAt. candidates must already be filtered to games the player
// passes the return policy for.
func SelectJoinGame(candidates []OpenGameCandidate) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.StaleExpiryAt.Before(best.StaleExpiryAt) ||
			(c.StaleExpiryAt.Equal(best.StaleExpiryAt) && c.CreatedAt.Before(best.CreatedAt)) {
			best = c
		}
	}
	return best.GameID, true
}
