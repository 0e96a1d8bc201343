// Package notify defines the intents GameCoordinator emits (spec §4.7) and a
// Dispatcher that delivers them through ports.NotificationPort outside any
// database transaction (spec §9: "produce an intent list inside the
// transaction, then execute notification I/O after commit"). Generalized
// from the teacher's scheduler.AnnounceHandler (func(channel, chatID,
// message string) error), which is likewise invoked after a job's state
// change has already been persisted.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jholhewres/gochain/internal/model"
	"github.com/jholhewres/gochain/internal/ports"
)

// Kind identifies one of the intent shapes named in spec §4.7.
type Kind string

const (
	KindTurnOffered                  Kind = "turn-offered"
	KindTurnWarning                  Kind = "turn-warning"
	KindTurnSubmittedAck             Kind = "turn-submitted-ack"
	KindTurnClaimedAck               Kind = "turn-claimed-ack"
	KindTurnSkipped                  Kind = "turn-skipped"
	KindGameCompleted                Kind = "game-completed"
	KindSeasonCompleted              Kind = "season-completed"
	KindContentFlagged               Kind = "content-flagged"
	KindGameDeletedInitialTurnTimeout Kind = "game-deleted-initial-turn-timeout"
	KindSeasonActivated               Kind = "season-activated"
	KindSeasonReverted                Kind = "season-reverted"
)

// Intent is one notification GameCoordinator queued inside a transaction for
// delivery after commit. Only the payload fields marked for its Kind are
// populated.
type Intent struct {
	Kind Kind

	PlayerID  string
	ChannelID string
	TurnID    string
	GameID    string

	Deadline  time.Time     // KindTurnOffered
	Remaining time.Duration // KindTurnWarning
	Actions   []string      // KindTurnOffered

	Game      *model.Game   // KindGameCompleted
	Season    *model.Season // KindSeasonCompleted, KindSeasonActivated, KindSeasonReverted
	Flagger   string        // KindContentFlagged
	GameCount int           // KindSeasonActivated
}

// TurnOffered builds the intent for a turn freshly transitioned to OFFERED.
func TurnOffered(playerID, turnID string, deadline time.Time, actions []string) Intent {
	return Intent{Kind: KindTurnOffered, PlayerID: playerID, TurnID: turnID, Deadline: deadline, Actions: actions}
}

// TurnWarning builds the intent for a claim/submission warning firing.
func TurnWarning(playerID, turnID string, remaining time.Duration) Intent {
	return Intent{Kind: KindTurnWarning, PlayerID: playerID, TurnID: turnID, Remaining: remaining}
}

// TurnSubmittedAck acknowledges a successful submission.
func TurnSubmittedAck(playerID string) Intent {
	return Intent{Kind: KindTurnSubmittedAck, PlayerID: playerID}
}

// TurnClaimedAck acknowledges a successful claim of an offered turn.
func TurnClaimedAck(playerID string) Intent {
	return Intent{Kind: KindTurnClaimedAck, PlayerID: playerID}
}

// TurnSkipped notifies a player their turn was skipped.
func TurnSkipped(playerID string) Intent {
	return Intent{Kind: KindTurnSkipped, PlayerID: playerID}
}

// GameCompleted announces a finished game to its channel.
func GameCompleted(game *model.Game) Intent {
	return Intent{Kind: KindGameCompleted, Game: game}
}

// SeasonCompleted announces a finished season.
func SeasonCompleted(season *model.Season) Intent {
	return Intent{Kind: KindSeasonCompleted, Season: season}
}

// ContentFlagged notifies admins that a turn's content was flagged.
func ContentFlagged(turnID, flaggerID string) Intent {
	return Intent{Kind: KindContentFlagged, TurnID: turnID, Flagger: flaggerID}
}

// SeasonActivated announces that a season's open window closed with enough
// members and gameCount games were started (SPEC_FULL.md §12).
func SeasonActivated(season *model.Season, gameCount int) Intent {
	return Intent{Kind: KindSeasonActivated, Season: season, GameCount: gameCount}
}

// SeasonReverted announces that a season's open window closed without
// reaching SeasonConfig.MinPlayers and the season fell back to SETUP.
func SeasonReverted(season *model.Season) Intent {
	return Intent{Kind: KindSeasonReverted, Season: season}
}

// GameDeletedInitialTurnTimeout notifies a creator their never-claimed,
// never-submitted on-demand game was deleted (spec S3).
func GameDeletedInitialTurnTimeout(playerID string) Intent {
	return Intent{Kind: KindGameDeletedInitialTurnTimeout, PlayerID: playerID}
}

// Dispatcher delivers queued intents through a NotificationPort and
// ChannelConfigPort. Every delivery is advisory (spec §4.8): a failure is
// logged and never propagated to the caller.
type Dispatcher struct {
	Notifications ports.NotificationPort
	Channels      ports.ChannelConfigPort
	logger        *slog.Logger
}

// NewDispatcher returns a Dispatcher. logger may be nil.
func NewDispatcher(n ports.NotificationPort, c ports.ChannelConfigPort, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{Notifications: n, Channels: c, logger: logger.With("component", "notify")}
}

// Dispatch delivers every queued intent, best-effort. guildID resolves
// channel routing for announcement-style intents; it may be empty for
// intents that only DM a player.
func (d *Dispatcher) Dispatch(ctx context.Context, guildID string, intents []Intent) {
	for _, in := range intents {
		if err := d.deliver(ctx, guildID, in); err != nil {
			d.logger.Error("notification delivery failed", "kind", in.Kind, "error", err)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, guildID string, in Intent) error {
	switch in.Kind {
	case KindTurnOffered:
		return d.Notifications.Offer(ctx, in.PlayerID, in.TurnID, in.Deadline, in.Actions)
	case KindTurnWarning:
		return d.Notifications.DM(ctx, in.PlayerID, fmt.Sprintf("turn %s: %s remaining", in.TurnID, in.Remaining))
	case KindTurnSubmittedAck:
		return d.Notifications.DM(ctx, in.PlayerID, "your submission was recorded")
	case KindTurnClaimedAck:
		return d.Notifications.DM(ctx, in.PlayerID, "you claimed the turn")
	case KindTurnSkipped:
		return d.Notifications.DM(ctx, in.PlayerID, "your turn was skipped")
	case KindGameDeletedInitialTurnTimeout:
		return d.Notifications.DM(ctx, in.PlayerID, "your game was deleted: turn 1 was never submitted in time")
	case KindGameCompleted:
		channelID, err := d.Channels.GetCompletedChannelID(ctx, guildID)
		if err != nil || channelID == "" {
			return err
		}
		return d.Notifications.ChannelAnnounce(ctx, channelID, fmt.Sprintf("game %s is complete", in.Game.ID))
	case KindSeasonCompleted:
		channelID, err := d.Channels.GetCompletedChannelID(ctx, guildID)
		if err != nil || channelID == "" {
			return err
		}
		return d.Notifications.ChannelAnnounce(ctx, channelID, fmt.Sprintf("season %s is complete", in.Season.ID))
	case KindContentFlagged:
		channelID, err := d.Channels.GetAdminChannelID(ctx, guildID)
		if err != nil || channelID == "" {
			return err
		}
		return d.Notifications.ChannelAnnounce(ctx, channelID, fmt.Sprintf("turn %s flagged by %s", in.TurnID, in.Flagger))
	case KindSeasonActivated:
		channelID, err := d.Channels.GetCompletedChannelID(ctx, guildID)
		if err != nil || channelID == "" {
			return err
		}
		return d.Notifications.ChannelAnnounce(ctx, channelID, fmt.Sprintf("season %s is active: %d games started", in.Season.ID, in.GameCount))
	case KindSeasonReverted:
		channelID, err := d.Channels.GetAdminChannelID(ctx, guildID)
		if err != nil || channelID == "" {
			return err
		}
		return d.Notifications.ChannelAnnounce(ctx, channelID, fmt.Sprintf("season %s reverted to setup: not enough members", in.Season.ID))
	default:
		return fmt.Errorf("unknown intent kind %q", in.Kind)
	}
}
