// Package ports declares the external collaborator interfaces the core
// consumes (spec §6): persistence, notification delivery, and channel
// configuration. Concrete implementations live outside this package
// (internal/store/sqlite, internal/chatbot/discord).
package ports

import (
	"context"
	"time"

	"github.com/jholhewres/gochain/internal/model"
)

// Repository is the transactional persistence boundary the GameCoordinator
// drives. WithTx runs fn inside a single transaction; if fn returns an
// error the transaction is rolled back.
type Repository interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is a Repository operating inside a single transaction.
type Tx interface {
	GetPlayer(ctx context.Context, id string) (*model.Player, error)
	GetPlayerByExternalID(ctx context.Context, externalID string) (*model.Player, error)
	SavePlayer(ctx context.Context, p *model.Player) error

	GetSeason(ctx context.Context, id string) (*model.Season, error)
	SaveSeason(ctx context.Context, s *model.Season) error
	ListSeasonGames(ctx context.Context, seasonID string) ([]*model.Game, error)
	ListSeasonMembers(ctx context.Context, seasonID string) ([]*model.Membership, error)
	AddSeasonMember(ctx context.Context, m *model.Membership) error
	GetSeasonConfig(ctx context.Context, id string) (*model.SeasonConfig, error)
	SaveSeasonConfig(ctx context.Context, c *model.SeasonConfig) error

	GetGame(ctx context.Context, id string) (*model.Game, error)
	SaveGame(ctx context.Context, g *model.Game) error
	DeleteGame(ctx context.Context, id string) error
	ListGamesByGuildAndStatus(ctx context.Context, guildID string, statuses []model.GameStatus) ([]*model.Game, error)
	// ListGamesByStatus lists games in any of statuses across all guilds, for
	// StaleCleanupJob (C9), which sweeps on-demand games irrespective of guild.
	ListGamesByStatus(ctx context.Context, statuses []model.GameStatus) ([]*model.Game, error)
	GetGameConfig(ctx context.Context, id string) (*model.GameConfig, error)
	SaveGameConfig(ctx context.Context, c *model.GameConfig) error

	GetTurn(ctx context.Context, id string) (*model.Turn, error)
	SaveTurn(ctx context.Context, t *model.Turn) error
	// SaveTurnConditional persists next only if the currently stored turn's
	// status equals expectedStatus, enforcing the single-writer-wins rule
	// of spec §4.3/§5. Returns false (no error) if the precondition failed.
	SaveTurnConditional(ctx context.Context, next *model.Turn, expectedStatus model.TurnStatus) (bool, error)
	// GetHeadTurn returns the turn currently in {AVAILABLE, OFFERED,
	// PENDING} for gameID, if any (invariant I1: at most one).
	GetHeadTurn(ctx context.Context, gameID string) (*model.Turn, error)
	ListTurns(ctx context.Context, gameID string) ([]*model.Turn, error)
	ListTurnsByPlayer(ctx context.Context, gameID, playerID string) ([]*model.Turn, error)
	ListPendingTurnsByPlayer(ctx context.Context, playerID string) ([]*model.Turn, error)

	// SaveJob and GetJob let the scheduler participate in this transaction:
	// arming or cancelling a job then commits or rolls back atomically with
	// the state transition that required it (spec §4.4/§5/§7), instead of
	// landing on a separate connection the way JobStorage's own methods do.
	SaveJob(ctx context.Context, job *model.ScheduledJob) error
	GetJob(ctx context.Context, jobID string) (*model.ScheduledJob, error)
}

// JobStorage is the durable persistence boundary for C2's JobStore, used
// outside any coordinator transaction: background timer firing (Scheduler.fire
// /runHandler) and startup reconciliation (Scheduler.Start).
type JobStorage interface {
	Save(ctx context.Context, job *model.ScheduledJob) error
	Get(ctx context.Context, jobID string) (*model.ScheduledJob, error)
	LoadScheduled(ctx context.Context) ([]*model.ScheduledJob, error)
	MarkFailed(ctx context.Context, jobID, reason string) error
}

// NotificationPort is the abstract sink for DMs, channel announcements, and
// interactive offer prompts (spec §4.8). Every call is advisory: failures
// are logged and reported, never fatal to a committed state change.
type NotificationPort interface {
	DM(ctx context.Context, playerID, content string) error
	ChannelAnnounce(ctx context.Context, channelID, content string) error
	Offer(ctx context.Context, playerID, turnID string, deadline time.Time, actions []string) error
}

// ChannelConfigPort resolves per-guild chat-platform channel routing.
type ChannelConfigPort interface {
	GetCompletedChannelID(ctx context.Context, guildID string) (string, error)
	GetAdminChannelID(ctx context.Context, guildID string) (string, error)
}
