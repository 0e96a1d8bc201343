// Package coordinator implements GameCoordinator (C7) and StaleCleanupJob
// (C9): the orchestration layer that binds TurnStateMachine, TurnTimeoutService,
// TurnOfferingService, and CompletionEvaluator behind one transactional
// Repository, emitting notification intents for delivery after commit (spec
// §9: side effects never happen inside the transaction that produced them).
//
// Grounded on the teacher's pkg/devclaw/gateway/gateway.go request-handler
// shape: one receiver struct holding every collaborator, one method per
// operation, structured logging per operation.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jholhewres/gochain/internal/clock"
	"github.com/jholhewres/gochain/internal/completion"
	"github.com/jholhewres/gochain/internal/coreerr"
	"github.com/jholhewres/gochain/internal/id"
	"github.com/jholhewres/gochain/internal/jobstore"
	"github.com/jholhewres/gochain/internal/model"
	"github.com/jholhewres/gochain/internal/notify"
	"github.com/jholhewres/gochain/internal/offering"
	"github.com/jholhewres/gochain/internal/ports"
	"github.com/jholhewres/gochain/internal/timeout"
	"github.com/jholhewres/gochain/internal/turn"
)

// Coordinator is the GameCoordinator (C7). It owns no storage of its own:
// every entity read/write goes through Repo inside a single transaction per
// operation.
type Coordinator struct {
	Repo      ports.Repository
	Scheduler *jobstore.Scheduler
	Timeout   *timeout.Service
	SM        *turn.StateMachine
	Notify    *notify.Dispatcher
	IDs       id.Gen
	Clock     clock.Clock

	// DefaultGameConfigID names the GameConfig new on-demand games are
	// created with when no guild-specific override exists. Spec §4.7 says
	// createOnDemandGame's config is "fetched from ChannelConfigPort", but
	// that port exposes only channel routing (spec §4.8/§6); resolved here
	// as a coordinator-level default, set at construction (see DESIGN.md).
	DefaultGameConfigID string

	// DevMode waives SeasonConfig.MinPlayers when a season's open window
	// closes (spec.md §9 open question, resolved in SPEC_FULL.md §12: "a
	// coordinator precondition only").
	DevMode bool

	logger *slog.Logger
}

// New builds a Coordinator. logger may be nil.
func New(repo ports.Repository, sched *jobstore.Scheduler, notifier *notify.Dispatcher, ids id.Gen, c clock.Clock, logger *slog.Logger) *Coordinator {
	if c == nil {
		c = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		Repo:      repo,
		Scheduler: sched,
		Timeout:   timeout.New(sched, c),
		SM:        turn.New(c),
		Notify:    notifier,
		IDs:       ids,
		Clock:     c,
		logger:    logger.With("component", "coordinator"),
	}
}

// gameRules bundles what offering/timeout/completion need about one game's
// configuration, resolved once per operation regardless of game type.
type gameRules struct {
	Pattern      []model.TurnType
	Timeout      timeout.Config
	Policy       timeout.Policy
	GameConfig   *model.GameConfig   // non-nil only for on-demand games
	SeasonConfig *model.SeasonConfig // non-nil only for season games
}

func (co *Coordinator) loadRules(ctx context.Context, tx ports.Tx, game *model.Game) (gameRules, error) {
	if game.IsSeasonGame() {
		season, err := tx.GetSeason(ctx, game.SeasonID)
		if err != nil {
			return gameRules{}, err
		}
		cfg, err := tx.GetSeasonConfig(ctx, season.ConfigID)
		if err != nil {
			return gameRules{}, err
		}
		return gameRules{Pattern: cfg.TurnPattern, Timeout: cfg, Policy: timeout.SeasonPolicy, SeasonConfig: cfg}, nil
	}
	cfg, err := tx.GetGameConfig(ctx, game.ConfigID)
	if err != nil {
		return gameRules{}, err
	}
	return gameRules{Pattern: cfg.TurnPattern, Timeout: cfg, Policy: timeout.OnDemandPolicy, GameConfig: cfg}, nil
}

// applyTransition implements spec §7's stale-state retry policy: re-read,
// re-validate, and conditionally persist; on a second concurrent loss return
// precondition-violated rather than retrying forever.
func (co *Coordinator) applyTransition(ctx context.Context, tx ports.Tx, turnID string, apply func(cur *model.Turn) (*model.Turn, error)) (*model.Turn, error) {
	for attempt := 0; attempt < 2; attempt++ {
		cur, err := tx.GetTurn(ctx, turnID)
		if err != nil {
			return nil, err
		}
		next, err := apply(cur)
		if err != nil {
			return nil, err
		}
		ok, err := tx.SaveTurnConditional(ctx, next, cur.Status)
		if err != nil {
			return nil, err
		}
		if ok {
			return next, nil
		}
		co.logger.Debug("conditional turn write lost a race, retrying", "turn", turnID, "attempt", attempt)
	}
	return nil, fmt.Errorf("%w: turn %s changed concurrently", coreerr.ErrPreconditionViolated, turnID)
}

// CreateOnDemandGame implements createOnDemandGame (spec §4.7).
func (co *Coordinator) CreateOnDemandGame(ctx context.Context, creatorID, guildID string) (*model.Game, error) {
	var result *model.Game
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		player, err := tx.GetPlayer(ctx, creatorID)
		if err != nil {
			return err
		}
		if player.Banned() {
			return fmt.Errorf("%w: player %s is banned", coreerr.ErrPreconditionViolated, creatorID)
		}

		cfg, err := tx.GetGameConfig(ctx, co.DefaultGameConfigID)
		if err != nil {
			return err
		}
		now := co.Clock.Now()
		game := &model.Game{
			ID: co.IDs.Next(), Status: model.GamePending, CreatorID: creatorID, GuildID: guildID,
			ConfigID: cfg.ID, CreatedAt: now, UpdatedAt: now, LastActivityAt: now,
		}
		if err := tx.SaveGame(ctx, game); err != nil {
			return err
		}

		first := &model.Turn{
			ID: co.IDs.Next(), GameID: game.ID, TurnNumber: 1, Type: cfg.TurnPattern[0],
			Status: model.TurnPending, PlayerID: creatorID, ClaimedAt: &now, CreatedAt: now, UpdatedAt: now,
		}
		ok, err := tx.SaveTurnConditional(ctx, first, model.TurnAvailable)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: turn 1 already exists for new game %s", coreerr.ErrInternal, game.ID)
		}
		if err := co.Timeout.OnClaim(ctx, tx, first, cfg); err != nil {
			return err
		}

		result = game
		return nil
	})
	if err != nil {
		return nil, err
	}
	co.logger.Info("created on-demand game", "game", result.ID, "creator", creatorID)
	return result, nil
}

// JoinOnDemandGame implements joinOnDemandGame (spec §4.7).
func (co *Coordinator) JoinOnDemandGame(ctx context.Context, playerID, guildID string) (*model.Game, error) {
	var result *model.Game
	var intents []notify.Intent
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		player, err := tx.GetPlayer(ctx, playerID)
		if err != nil {
			return err
		}
		if player.Banned() {
			return fmt.Errorf("%w: player %s is banned", coreerr.ErrPreconditionViolated, playerID)
		}

		games, err := tx.ListGamesByGuildAndStatus(ctx, guildID, []model.GameStatus{model.GamePending, model.GameActive})
		if err != nil {
			return err
		}

		type candidateGame struct {
			game *model.Game
			head *model.Turn
			cfg  *model.GameConfig
		}
		var eligible []candidateGame
		var joinCandidates []offering.OpenGameCandidate

		for _, g := range games {
			if g.IsSeasonGame() {
				continue
			}
			head, err := tx.GetHeadTurn(ctx, g.ID)
			if err != nil {
				return err
			}
			if head == nil || head.Status != model.TurnAvailable {
				continue
			}
			cfg, err := tx.GetGameConfig(ctx, g.ConfigID)
			if err != nil {
				return err
			}
			allowed, err := co.allowsReturn(ctx, tx, g, playerID, cfg)
			if err != nil {
				return err
			}
			if !allowed {
				continue
			}
			eligible = append(eligible, candidateGame{game: g, head: head, cfg: cfg})
			joinCandidates = append(joinCandidates, offering.OpenGameCandidate{
				GameID: g.ID, StaleExpiryAt: g.LastActivityAt.Add(cfg.StaleTimeout), CreatedAt: g.CreatedAt,
			})
		}

		chosenID, ok := offering.SelectJoinGame(joinCandidates)
		if !ok {
			return fmt.Errorf("%w: no joinable on-demand game for player %s", coreerr.ErrPreconditionViolated, playerID)
		}
		var chosen candidateGame
		for _, c := range eligible {
			if c.game.ID == chosenID {
				chosen = c
				break
			}
		}

		offered, err := co.applyTransition(ctx, tx, chosen.head.ID, func(cur *model.Turn) (*model.Turn, error) {
			return co.SM.Offer(cur, playerID)
		})
		if err != nil {
			return err
		}
		claimed, err := co.applyTransition(ctx, tx, offered.ID, func(cur *model.Turn) (*model.Turn, error) {
			return co.SM.Claim(cur, playerID)
		})
		if err != nil {
			return err
		}

		now := co.Clock.Now()
		chosen.game.LastActivityAt = now
		chosen.game.UpdatedAt = now
		if chosen.game.Status == model.GamePending {
			chosen.game.Status = model.GameActive
		}
		if err := tx.SaveGame(ctx, chosen.game); err != nil {
			return err
		}
		if err := co.Timeout.OnClaim(ctx, tx, claimed, chosen.cfg); err != nil {
			return err
		}

		intents = []notify.Intent{notify.TurnClaimedAck(playerID)}
		result = chosen.game
		return nil
	})
	if err != nil {
		return nil, err
	}
	co.Notify.Dispatch(ctx, guildID, intents)
	return result, nil
}

func (co *Coordinator) allowsReturn(ctx context.Context, tx ports.Tx, game *model.Game, playerID string, cfg *model.GameConfig) (bool, error) {
	if cfg.ReturnCount == 0 {
		return true, nil
	}
	playerTurns, err := tx.ListTurnsByPlayer(ctx, game.ID, playerID)
	if err != nil {
		return false, err
	}
	var terminalCount int
	var lastTerminalNumber int
	for _, t := range playerTurns {
		if t.IsTerminal() {
			terminalCount++
			if t.TurnNumber > lastTerminalNumber {
				lastTerminalNumber = t.TurnNumber
			}
		}
	}
	allTurns, err := tx.ListTurns(ctx, game.ID)
	if err != nil {
		return false, err
	}
	var otherSince int
	for _, t := range allTurns {
		if t.PlayerID != playerID && t.IsTerminal() && t.TurnNumber > lastTerminalNumber {
			otherSince++
		}
	}
	return offering.AllowsReturn(offering.ReturnPolicyInput{
		ReturnCount: cfg.ReturnCount, ReturnCooldown: cfg.ReturnCooldown,
		PlayerTerminalCount: terminalCount, OtherPlayerTurnsSinceLastTerminal: otherSince,
	}), nil
}

// SubmitTurn implements submitTurn (spec §4.7).
func (co *Coordinator) SubmitTurn(ctx context.Context, turnID, playerID string, kind turn.ContentKind, content string) (*model.Turn, error) {
	var result *model.Turn
	var intents []notify.Intent
	var guildID string
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		next, err := co.applyTransition(ctx, tx, turnID, func(cur *model.Turn) (*model.Turn, error) {
			return co.SM.Submit(cur, playerID, kind, content)
		})
		if err != nil {
			return err
		}
		if err := co.Timeout.OnSubmit(ctx, tx, next); err != nil {
			return err
		}

		game, err := tx.GetGame(ctx, next.GameID)
		if err != nil {
			return err
		}
		guildID = game.GuildID
		rules, err := co.loadRules(ctx, tx, game)
		if err != nil {
			return err
		}
		now := co.Clock.Now()
		game.LastActivityAt = now
		game.UpdatedAt = now
		if err := tx.SaveGame(ctx, game); err != nil {
			return err
		}

		advance, err := co.advanceAfterTerminal(ctx, tx, game, rules, now)
		if err != nil {
			return err
		}
		intents = append([]notify.Intent{notify.TurnSubmittedAck(playerID)}, advance...)
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	co.Notify.Dispatch(ctx, guildID, intents)
	return result, nil
}

// SkipTurn implements skipTurn (spec §4.7), including the on-demand
// initial-turn-timeout cascade deletion (S3).
func (co *Coordinator) SkipTurn(ctx context.Context, turnID string) (*model.Turn, error) {
	var result *model.Turn
	var intents []notify.Intent
	var guildID string
	var cancelJobIDs []string
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		before, err := tx.GetTurn(ctx, turnID)
		if err != nil {
			return err
		}
		game, err := tx.GetGame(ctx, before.GameID)
		if err != nil {
			return err
		}
		guildID = game.GuildID

		next, err := co.applyTransition(ctx, tx, turnID, func(cur *model.Turn) (*model.Turn, error) {
			return co.SM.Skip(cur)
		})
		if err != nil {
			return err
		}
		if err := co.Timeout.OnSkip(ctx, tx, next); err != nil {
			return err
		}

		if !game.IsSeasonGame() && next.TurnNumber == 1 {
			cancelJobIDs = timeout.AllJobIDsForTurn(next.ID)
			if err := tx.DeleteGame(ctx, game.ID); err != nil {
				return err
			}
			intents = []notify.Intent{notify.GameDeletedInitialTurnTimeout(next.PlayerID)}
			result = next
			return nil
		}

		rules, err := co.loadRules(ctx, tx, game)
		if err != nil {
			return err
		}
		now := co.Clock.Now()
		game.LastActivityAt = now
		game.UpdatedAt = now
		if err := tx.SaveGame(ctx, game); err != nil {
			return err
		}

		advance, err := co.advanceAfterTerminal(ctx, tx, game, rules, now)
		if err != nil {
			return err
		}
		intents = append([]notify.Intent{notify.TurnSkipped(next.PlayerID)}, advance...)
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	co.Scheduler.CancelJobsForGame(ctx, cancelJobIDs)
	co.Notify.Dispatch(ctx, guildID, intents)
	return result, nil
}

// FlagTurn implements flagTurn (spec §4.7): flags a COMPLETED turn and
// pauses its game pending admin resolution.
func (co *Coordinator) FlagTurn(ctx context.Context, turnID, flaggerID string) (*model.Turn, error) {
	var result *model.Turn
	var intents []notify.Intent
	var guildID string
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		next, err := co.applyTransition(ctx, tx, turnID, func(cur *model.Turn) (*model.Turn, error) {
			return co.SM.Flag(cur)
		})
		if err != nil {
			return err
		}
		game, err := tx.GetGame(ctx, next.GameID)
		if err != nil {
			return err
		}
		guildID = game.GuildID
		game.Status = model.GamePaused
		game.UpdatedAt = co.Clock.Now()
		if err := tx.SaveGame(ctx, game); err != nil {
			return err
		}
		intents = []notify.Intent{notify.ContentFlagged(next.ID, flaggerID)}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	co.Notify.Dispatch(ctx, guildID, intents)
	return result, nil
}

// ResolveFlag implements the admin resolution of a FLAGGED turn
// (SPEC_FULL.md §12): keep restores COMPLETED and resumes the game; reject
// moves to SKIPPED and resumes offering the next turn.
func (co *Coordinator) ResolveFlag(ctx context.Context, turnID string, keep bool) (*model.Turn, error) {
	var result *model.Turn
	var intents []notify.Intent
	var guildID string
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		next, err := co.applyTransition(ctx, tx, turnID, func(cur *model.Turn) (*model.Turn, error) {
			return co.SM.ResolveFlag(cur, keep)
		})
		if err != nil {
			return err
		}
		game, err := tx.GetGame(ctx, next.GameID)
		if err != nil {
			return err
		}
		guildID = game.GuildID
		rules, err := co.loadRules(ctx, tx, game)
		if err != nil {
			return err
		}
		now := co.Clock.Now()
		game.Status = model.GameActive
		game.LastActivityAt = now
		game.UpdatedAt = now
		if err := tx.SaveGame(ctx, game); err != nil {
			return err
		}

		advance, err := co.advanceAfterTerminal(ctx, tx, game, rules, now)
		if err != nil {
			return err
		}
		intents = advance
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	co.Notify.Dispatch(ctx, guildID, intents)
	return result, nil
}

// advanceAfterTerminal runs CompletionEvaluator over the game's current
// terminal turns and either completes the game (and possibly its season) or
// offers the next head turn.
func (co *Coordinator) advanceAfterTerminal(ctx context.Context, tx ports.Tx, game *model.Game, rules gameRules, now time.Time) ([]notify.Intent, error) {
	allTurns, err := tx.ListTurns(ctx, game.ID)
	if err != nil {
		return nil, err
	}
	var terminal []*model.Turn
	for _, t := range allTurns {
		if t.IsTerminal() {
			terminal = append(terminal, t)
		}
	}

	var seasonPlayerIDs []string
	if game.IsSeasonGame() {
		members, err := tx.ListSeasonMembers(ctx, game.SeasonID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			seasonPlayerIDs = append(seasonPlayerIDs, m.PlayerID)
		}
	}

	result := completion.IsGameComplete(game, seasonPlayerIDs, terminal, rules.GameConfig, now)
	if !result.Complete {
		return co.offerNextTurn(ctx, tx, game, rules, now)
	}

	game.Status = model.GameCompleted
	game.CompletedAt = &now
	game.UpdatedAt = now
	if err := tx.SaveGame(ctx, game); err != nil {
		return nil, err
	}
	intents := []notify.Intent{notify.GameCompleted(game)}

	if game.IsSeasonGame() {
		games, err := tx.ListSeasonGames(ctx, game.SeasonID)
		if err != nil {
			return nil, err
		}
		if completion.IsSeasonComplete(games) {
			season, err := tx.GetSeason(ctx, game.SeasonID)
			if err != nil {
				return nil, err
			}
			season.Status = model.SeasonCompleted
			if err := tx.SaveSeason(ctx, season); err != nil {
				return nil, err
			}
			intents = append(intents, notify.SeasonCompleted(season))
		}
	}
	return intents, nil
}

// offerNextTurn implements TurnOfferingService.offerNextTurn (spec §4.5),
// orchestrated here because it needs both Repository access and the
// TurnStateMachine/TurnTimeoutService collaborators.
func (co *Coordinator) offerNextTurn(ctx context.Context, tx ports.Tx, game *model.Game, rules gameRules, now time.Time) ([]notify.Intent, error) {
	if game.Status != model.GameActive && game.Status != model.GamePending {
		return nil, nil
	}

	allTurns, err := tx.ListTurns(ctx, game.ID)
	if err != nil {
		return nil, err
	}
	plan := offering.PlanHeadTurn(allTurns, rules.Pattern)

	var head *model.Turn
	if plan.Existing != nil {
		if plan.Existing.Status != model.TurnAvailable {
			return nil, nil // head already offered/claimed, nothing to do
		}
		head = plan.Existing
	} else {
		head = &model.Turn{
			ID: co.IDs.Next(), GameID: game.ID, TurnNumber: plan.TurnNumber, Type: plan.Type,
			Status: model.TurnAvailable, PreviousTurnID: plan.PreviousTurnID, CreatedAt: now, UpdatedAt: now,
		}
		ok, err := tx.SaveTurnConditional(ctx, head, model.TurnAvailable)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: head turn race for game %s", coreerr.ErrPreconditionViolated, game.ID)
		}
	}

	if !game.IsSeasonGame() {
		return nil, nil // on-demand: turn waits AVAILABLE for a player to join via JoinOnDemandGame (spec §4.5 step 4)
	}

	candidates, err := co.buildSeasonCandidates(ctx, tx, game, head)
	if err != nil {
		return nil, err
	}
	chosen, ok := offering.SelectSeasonCandidate(candidates)
	if !ok {
		return nil, nil // nobody eligible yet; head stays AVAILABLE
	}

	offered, err := co.applyTransition(ctx, tx, head.ID, func(cur *model.Turn) (*model.Turn, error) {
		return co.SM.Offer(cur, chosen)
	})
	if err != nil {
		return nil, err
	}
	if err := co.Timeout.OnOffer(ctx, tx, offered, rules.SeasonConfig); err != nil {
		return nil, err
	}

	deadline := now.Add(rules.SeasonConfig.ClaimTimeoutValue())
	return []notify.Intent{notify.TurnOffered(chosen, offered.ID, deadline, []string{"claim", "dismiss"})}, nil
}

func (co *Coordinator) buildSeasonCandidates(ctx context.Context, tx ports.Tx, game *model.Game, head *model.Turn) ([]offering.CandidateInput, error) {
	members, err := tx.ListSeasonMembers(ctx, game.SeasonID)
	if err != nil {
		return nil, err
	}
	var prevPlayer string
	if head.PreviousTurnID != "" {
		prev, err := tx.GetTurn(ctx, head.PreviousTurnID)
		if err == nil {
			prevPlayer = prev.PlayerID
		}
	}
	seasonGames, err := tx.ListSeasonGames(ctx, game.SeasonID)
	if err != nil {
		return nil, err
	}

	out := make([]offering.CandidateInput, 0, len(members))
	for _, m := range members {
		player, err := tx.GetPlayer(ctx, m.PlayerID)
		if err != nil {
			return nil, err
		}
		pending, err := tx.ListPendingTurnsByPlayer(ctx, m.PlayerID)
		if err != nil {
			return nil, err
		}
		var completed int
		for _, g := range seasonGames {
			turns, err := tx.ListTurnsByPlayer(ctx, g.ID, m.PlayerID)
			if err != nil {
				return nil, err
			}
			for _, t := range turns {
				if t.IsTerminal() {
					completed++
				}
			}
		}
		out = append(out, offering.CandidateInput{
			PlayerID: m.PlayerID, Banned: player.Banned(), HasPendingTurn: len(pending) > 0,
			WasPreviousTurn: m.PlayerID == prevPlayer, CompletedInSeason: completed, JoinedAt: m.JoinedAt,
		})
	}
	return out, nil
}

// ClaimOfferedTurn implements claimTurn (spec §4.7): a player accepts an
// OFFERED turn assigned to them, moving it to PENDING and arming the
// submission timeout. Used by the chat adapter's claim button/command for
// season offers (on-demand joins go through JoinOnDemandGame's
// offer-then-claim instead, since there the claimant and the offer target
// are chosen together).
func (co *Coordinator) ClaimOfferedTurn(ctx context.Context, turnID, playerID string) (*model.Turn, error) {
	var result *model.Turn
	var guildID string
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		next, err := co.applyTransition(ctx, tx, turnID, func(cur *model.Turn) (*model.Turn, error) {
			return co.SM.Claim(cur, playerID)
		})
		if err != nil {
			return err
		}
		game, err := tx.GetGame(ctx, next.GameID)
		if err != nil {
			return err
		}
		guildID = game.GuildID
		rules, err := co.loadRules(ctx, tx, game)
		if err != nil {
			return err
		}
		if err := co.Timeout.OnClaim(ctx, tx, next, rules.Timeout); err != nil {
			return err
		}
		now := co.Clock.Now()
		game.LastActivityAt = now
		game.UpdatedAt = now
		if game.Status == model.GamePending {
			game.Status = model.GameActive
		}
		if err := tx.SaveGame(ctx, game); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	co.Notify.Dispatch(ctx, guildID, []notify.Intent{notify.TurnClaimedAck(playerID)})
	return result, nil
}

// DismissOffer is the scheduler handler for a season claim timeout (spec
// §4.7 bullet list): dismisses an OFFERED turn back to AVAILABLE and runs
// offerNextTurn for the game again. The dismissed player is not excluded
// from that selection, so the same player can be offered the turn again.
// Re-checks the turn's status first (idempotency guard, spec §9's
// "at-least-once handlers" rule).
func (co *Coordinator) DismissOffer(ctx context.Context, turnID string) (*model.Turn, error) {
	var result *model.Turn
	var intents []notify.Intent
	var guildID string
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		before, err := tx.GetTurn(ctx, turnID)
		if err != nil {
			return err
		}
		if before.Status != model.TurnOffered {
			co.logger.Debug("dismissOffer no-op: turn not OFFERED", "turn", turnID, "status", before.Status)
			result = before
			return nil
		}
		game, err := tx.GetGame(ctx, before.GameID)
		if err != nil {
			return err
		}
		guildID = game.GuildID
		rules, err := co.loadRules(ctx, tx, game)
		if err != nil {
			return err
		}

		dismissed, err := co.SM.Dismiss(before)
		if err != nil {
			return err
		}
		ok, err := tx.SaveTurnConditional(ctx, dismissed, model.TurnOffered)
		if err != nil {
			return err
		}
		if !ok {
			co.logger.Debug("dismissOffer lost race", "turn", turnID)
			result = before
			return nil
		}
		if err := co.Timeout.OnDismiss(ctx, tx, dismissed); err != nil {
			return err
		}

		now := co.Clock.Now()
		offerIntents, err := co.offerNextTurn(ctx, tx, game, rules, now)
		if err != nil {
			return err
		}
		intents = offerIntents
		result = dismissed
		return nil
	})
	if err != nil {
		return nil, err
	}
	co.Notify.Dispatch(ctx, guildID, intents)
	return result, nil
}

// CompleteGame is the idempotent wrapper StaleCleanupJob (C9) calls: it
// transitions an eligible on-demand game to COMPLETED, or no-ops if the game
// is already terminal or not yet eligible.
func (co *Coordinator) CompleteGame(ctx context.Context, gameID string) (*model.Game, error) {
	var result *model.Game
	var intents []notify.Intent
	var guildID string
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		game, err := tx.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		if game.Status == model.GameCompleted || game.Status == model.GameTerminated {
			result = game
			return nil
		}
		guildID = game.GuildID
		rules, err := co.loadRules(ctx, tx, game)
		if err != nil {
			return err
		}

		turns, err := tx.ListTurns(ctx, game.ID)
		if err != nil {
			return err
		}
		var terminal []*model.Turn
		for _, t := range turns {
			if t.IsTerminal() {
				terminal = append(terminal, t)
			}
		}

		now := co.Clock.Now()
		res := completion.IsGameComplete(game, nil, terminal, rules.GameConfig, now)
		if !res.Complete {
			result = game
			return nil
		}

		game.Status = model.GameCompleted
		game.CompletedAt = &now
		game.UpdatedAt = now
		if err := tx.SaveGame(ctx, game); err != nil {
			return err
		}
		intents = []notify.Intent{notify.GameCompleted(game)}
		result = game
		return nil
	})
	if err != nil {
		return nil, err
	}
	co.Notify.Dispatch(ctx, guildID, intents)
	return result, nil
}

// TerminateGame implements terminateGame (spec §4.7): sets Game status
// TERMINATED and cancels every scheduled job for its turns.
func (co *Coordinator) TerminateGame(ctx context.Context, gameID string) error {
	var jobIDs []string
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		game, err := tx.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		game.Status = model.GameTerminated
		game.UpdatedAt = co.Clock.Now()
		if err := tx.SaveGame(ctx, game); err != nil {
			return err
		}
		turns, err := tx.ListTurns(ctx, gameID)
		if err != nil {
			return err
		}
		for _, t := range turns {
			jobIDs = append(jobIDs, timeout.AllJobIDsForTurn(t.ID)...)
		}
		return nil
	})
	if err != nil {
		return err
	}
	co.Scheduler.CancelJobsForGame(ctx, jobIDs)
	co.logger.Info("game terminated", "game", gameID)
	return nil
}

// TerminateSeason implements terminateSeason (spec §4.7): sets Season and
// every non-terminal game in it to TERMINATED, cancelling all their jobs.
func (co *Coordinator) TerminateSeason(ctx context.Context, seasonID string) error {
	var jobIDs []string
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		season, err := tx.GetSeason(ctx, seasonID)
		if err != nil {
			return err
		}
		season.Status = model.SeasonTerminated
		if err := tx.SaveSeason(ctx, season); err != nil {
			return err
		}

		games, err := tx.ListSeasonGames(ctx, seasonID)
		if err != nil {
			return err
		}
		now := co.Clock.Now()
		for _, g := range games {
			if g.Status == model.GameTerminated || g.Status == model.GameCompleted {
				continue
			}
			g.Status = model.GameTerminated
			g.UpdatedAt = now
			if err := tx.SaveGame(ctx, g); err != nil {
				return err
			}
			turns, err := tx.ListTurns(ctx, g.ID)
			if err != nil {
				return err
			}
			for _, t := range turns {
				jobIDs = append(jobIDs, timeout.AllJobIDsForTurn(t.ID)...)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	co.Scheduler.CancelJobsForGame(ctx, jobIDs)
	co.logger.Info("season terminated", "season", seasonID)
	return nil
}

// CreateSeason opens a season's membership window and arms the job that
// evaluates SeasonConfig.MinPlayers when it closes (SPEC_FULL.md §12's
// season open/close window). spec.md names no createSeason entry point, so
// SETUP is folded into creation rather than exposed as a separate admin
// step, mirroring createOnDemandGame going straight to PENDING with no
// externally visible pre-creation state (see DESIGN.md).
func (co *Coordinator) CreateSeason(ctx context.Context, creatorID, guildID, configID string) (*model.Season, error) {
	var result *model.Season
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		player, err := tx.GetPlayer(ctx, creatorID)
		if err != nil {
			return err
		}
		if player.Banned() {
			return fmt.Errorf("%w: player %s is banned", coreerr.ErrPreconditionViolated, creatorID)
		}
		cfg, err := tx.GetSeasonConfig(ctx, configID)
		if err != nil {
			return err
		}
		now := co.Clock.Now()
		season := &model.Season{
			ID: co.IDs.Next(), Status: model.SeasonOpen, CreatorID: creatorID, ConfigID: cfg.ID,
			CreatedAt: now, GuildID: guildID,
		}
		if err := tx.SaveSeason(ctx, season); err != nil {
			return err
		}
		if err := tx.AddSeasonMember(ctx, &model.Membership{PlayerID: creatorID, SeasonID: season.ID, JoinedAt: now}); err != nil {
			return err
		}
		if err := co.Timeout.OnSeasonOpen(ctx, tx, season.ID, cfg.OpenDuration); err != nil {
			return err
		}
		result = season
		return nil
	})
	if err != nil {
		return nil, err
	}
	co.logger.Info("created season", "season", result.ID, "creator", creatorID)
	return result, nil
}

// JoinSeason registers playerID as a member of seasonID while its open
// window is still accepting members. spec.md names no joinSeason entry
// point, but membership is a precondition buildSeasonCandidates already
// assumes, so something has to populate it; modeled on joinOnDemandGame's
// precondition checks (banned player, already a member, season full).
func (co *Coordinator) JoinSeason(ctx context.Context, playerID, seasonID string) (*model.Season, error) {
	var result *model.Season
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		player, err := tx.GetPlayer(ctx, playerID)
		if err != nil {
			return err
		}
		if player.Banned() {
			return fmt.Errorf("%w: player %s is banned", coreerr.ErrPreconditionViolated, playerID)
		}
		season, err := tx.GetSeason(ctx, seasonID)
		if err != nil {
			return err
		}
		if season.Status != model.SeasonOpen {
			return fmt.Errorf("%w: season %s is not accepting members", coreerr.ErrPreconditionViolated, seasonID)
		}
		members, err := tx.ListSeasonMembers(ctx, seasonID)
		if err != nil {
			return err
		}
		for _, m := range members {
			if m.PlayerID == playerID {
				result = season
				return nil // already a member: idempotent no-op
			}
		}
		cfg, err := tx.GetSeasonConfig(ctx, season.ConfigID)
		if err != nil {
			return err
		}
		if cfg.MaxPlayers > 0 && len(members) >= cfg.MaxPlayers {
			return fmt.Errorf("%w: season %s is full", coreerr.ErrPreconditionViolated, seasonID)
		}
		if err := tx.AddSeasonMember(ctx, &model.Membership{PlayerID: playerID, SeasonID: seasonID, JoinedAt: co.Clock.Now()}); err != nil {
			return err
		}
		result = season
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// evaluateSeasonOpenWindow is the season-open-timeout handler (SPEC_FULL.md
// §12): if membership meets SeasonConfig.MinPlayers (or DevMode waives it),
// the season activates and one game starts per member (spec.md S6);
// otherwise it falls back to SETUP. Re-checks status first (idempotency
// guard, spec §9's at-least-once handler rule).
func (co *Coordinator) evaluateSeasonOpenWindow(ctx context.Context, seasonID string) error {
	var intents []notify.Intent
	var guildID string
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		season, err := tx.GetSeason(ctx, seasonID)
		if err != nil {
			return err
		}
		if season.Status != model.SeasonOpen {
			return nil // already activated/terminated elsewhere
		}
		guildID = season.GuildID

		cfg, err := tx.GetSeasonConfig(ctx, season.ConfigID)
		if err != nil {
			return err
		}
		members, err := tx.ListSeasonMembers(ctx, seasonID)
		if err != nil {
			return err
		}
		now := co.Clock.Now()

		if len(members) < cfg.MinPlayers && !co.DevMode {
			season.Status = model.SeasonSetup
			if err := tx.SaveSeason(ctx, season); err != nil {
				return err
			}
			intents = append(intents, notify.SeasonReverted(season))
			return nil
		}

		season.Status = model.SeasonActive
		if err := tx.SaveSeason(ctx, season); err != nil {
			return err
		}
		rules := gameRules{Pattern: cfg.TurnPattern, Timeout: cfg, Policy: timeout.SeasonPolicy, SeasonConfig: cfg}
		for range members {
			game := &model.Game{
				ID: co.IDs.Next(), Status: model.GamePending, SeasonID: season.ID, GuildID: season.GuildID,
				CreatedAt: now, UpdatedAt: now, LastActivityAt: now,
			}
			if err := tx.SaveGame(ctx, game); err != nil {
				return err
			}
			gameIntents, err := co.offerNextTurn(ctx, tx, game, rules, now)
			if err != nil {
				return err
			}
			intents = append(intents, gameIntents...)
		}
		intents = append(intents, notify.SeasonActivated(season, len(members)))
		return nil
	})
	if err != nil {
		return err
	}
	co.Notify.Dispatch(ctx, guildID, intents)
	return nil
}

// EnsurePlayer resolves externalUserID to a Player, registering a new one
// with displayName if this is the chat platform's first sighting of them.
// The chat adapter calls this before every command so downstream
// coordinator methods can assume playerID already names an existing row.
func (co *Coordinator) EnsurePlayer(ctx context.Context, externalUserID, displayName string) (*model.Player, error) {
	var result *model.Player
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		existing, err := tx.GetPlayerByExternalID(ctx, externalUserID)
		if err == nil {
			if existing.DisplayName != displayName {
				existing.DisplayName = displayName
				if err := tx.SavePlayer(ctx, existing); err != nil {
					return err
				}
			}
			result = existing
			return nil
		}
		if !errors.Is(err, coreerr.ErrNotFound) {
			return err
		}
		p := &model.Player{ID: co.IDs.Next(), ExternalUserID: externalUserID, DisplayName: displayName}
		if err := tx.SavePlayer(ctx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	return result, err
}

// GetPlayer is a read-only accessor the chat adapter uses to resolve a
// Player's external platform ID before sending a DM (NotificationPort
// carries only the internal playerID, spec §4.8).
func (co *Coordinator) GetPlayer(ctx context.Context, playerID string) (*model.Player, error) {
	var result *model.Player
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		p, err := tx.GetPlayer(ctx, playerID)
		if err != nil {
			return err
		}
		result = p
		return nil
	})
	return result, err
}

// GetGame is a read-only accessor for a single game's state.
func (co *Coordinator) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	var result *model.Game
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		g, err := tx.GetGame(ctx, gameID)
		if err != nil {
			return err
		}
		result = g
		return nil
	})
	return result, err
}

// GetSeason is a read-only accessor the `season` admin inspection command
// uses to render season state.
func (co *Coordinator) GetSeason(ctx context.Context, seasonID string) (*model.Season, error) {
	var result *model.Season
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		s, err := tx.GetSeason(ctx, seasonID)
		if err != nil {
			return err
		}
		result = s
		return nil
	})
	return result, err
}

// FindPendingTurnForPlayer returns playerID's single currently-claimed
// (PENDING) turn, if any, so a command surface can resolve "skip/submit my
// turn" without the caller needing to track turn IDs itself. Returns
// coreerr.ErrNotFound if the player has no pending turn.
func (co *Coordinator) FindPendingTurnForPlayer(ctx context.Context, playerID string) (*model.Turn, error) {
	var result *model.Turn
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		pending, err := tx.ListPendingTurnsByPlayer(ctx, playerID)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return fmt.Errorf("player %s has no pending turn: %w", playerID, coreerr.ErrNotFound)
		}
		result = pending[0]
		return nil
	})
	return result, err
}

// ExportChain implements the supplemented GameCoordinator.exportChain
// (SPEC_FULL.md §12): returns the game's turns ordered by turnNumber.
func (co *Coordinator) ExportChain(ctx context.Context, gameID string) ([]*model.Turn, error) {
	var chain []*model.Turn
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		turns, err := tx.ListTurns(ctx, gameID)
		if err != nil {
			return err
		}
		byNumber := make(map[int]*model.Turn, len(turns))
		maxNumber := 0
		for _, t := range turns {
			byNumber[t.TurnNumber] = t
			if t.TurnNumber > maxNumber {
				maxNumber = t.TurnNumber
			}
		}
		for n := 1; n <= maxNumber; n++ {
			if t, ok := byNumber[n]; ok {
				chain = append(chain, t)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// ListOpenGames implements the supplemented GameCoordinator.listOpenGames
// (SPEC_FULL.md §12): on-demand games in a guild with an AVAILABLE head turn.
func (co *Coordinator) ListOpenGames(ctx context.Context, guildID string) ([]*model.Game, error) {
	var open []*model.Game
	err := co.Repo.WithTx(ctx, func(tx ports.Tx) error {
		games, err := tx.ListGamesByGuildAndStatus(ctx, guildID, []model.GameStatus{model.GamePending, model.GameActive})
		if err != nil {
			return err
		}
		for _, g := range games {
			if g.IsSeasonGame() {
				continue
			}
			head, err := tx.GetHeadTurn(ctx, g.ID)
			if err != nil {
				return err
			}
			if head != nil && head.Status == model.TurnAvailable {
				open = append(open, g)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return open, nil
}
