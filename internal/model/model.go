// Package model defines the persisted entities shared by every core
// component: players, seasons, games, turns, and scheduled jobs.
package model

import "time"

// TurnType is the kind of contribution a Turn asks for.
type TurnType string

const (
	TurnWriting TurnType = "WRITING"
	TurnDrawing TurnType = "DRAWING"
)

// TurnStatus is the TurnStateMachine's state.
type TurnStatus string

const (
	TurnAvailable TurnStatus = "AVAILABLE"
	TurnOffered   TurnStatus = "OFFERED"
	TurnPending   TurnStatus = "PENDING"
	TurnCompleted TurnStatus = "COMPLETED"
	TurnSkipped   TurnStatus = "SKIPPED"
	TurnFlagged   TurnStatus = "FLAGGED"
)

// HeadStatuses are the non-terminal statuses of which at most one may exist
// per game at any time (invariant I1).
var HeadStatuses = []TurnStatus{TurnAvailable, TurnOffered, TurnPending}

// IsHead reports whether status is one of the head statuses.
func (s TurnStatus) IsHead() bool {
	for _, h := range HeadStatuses {
		if s == h {
			return true
		}
	}
	return false
}

// SeasonStatus is the lifecycle state of a Season.
type SeasonStatus string

const (
	SeasonSetup      SeasonStatus = "SETUP"
	SeasonOpen       SeasonStatus = "OPEN"
	SeasonActive     SeasonStatus = "ACTIVE"
	SeasonCompleted  SeasonStatus = "COMPLETED"
	SeasonTerminated SeasonStatus = "TERMINATED"
)

// GameStatus is the lifecycle state of a Game.
type GameStatus string

const (
	GameSetup      GameStatus = "SETUP"
	GamePending    GameStatus = "PENDING"
	GameActive     GameStatus = "ACTIVE"
	GameCompleted  GameStatus = "COMPLETED"
	GameTerminated GameStatus = "TERMINATED"
	GamePaused     GameStatus = "PAUSED"
)

// JobStatus is the lifecycle state of a ScheduledJob (G4: monotonic).
type JobStatus string

const (
	JobScheduled JobStatus = "SCHEDULED"
	JobExecuted  JobStatus = "EXECUTED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// Player is a registered chat-platform user.
type Player struct {
	ID             string     `json:"id" yaml:"id"`
	ExternalUserID string     `json:"external_user_id" yaml:"external_user_id"`
	DisplayName    string     `json:"display_name" yaml:"display_name"`
	BannedAt       *time.Time `json:"banned_at,omitempty" yaml:"banned_at,omitempty"`
}

// Banned reports whether the player is currently banned.
func (p *Player) Banned() bool { return p != nil && p.BannedAt != nil }

// SeasonConfig holds the timeout/warning/turn-pattern rules shared by all
// games in a season.
type SeasonConfig struct {
	ID             string        `json:"id" yaml:"id"`
	ClaimTimeout   time.Duration `json:"claim_timeout" yaml:"claim_timeout"`
	WritingTimeout time.Duration `json:"writing_timeout" yaml:"writing_timeout"`
	DrawingTimeout time.Duration `json:"drawing_timeout" yaml:"drawing_timeout"`
	ClaimWarning   time.Duration `json:"claim_warning,omitempty" yaml:"claim_warning,omitempty"`
	WritingWarning time.Duration `json:"writing_warning,omitempty" yaml:"writing_warning,omitempty"`
	DrawingWarning time.Duration `json:"drawing_warning,omitempty" yaml:"drawing_warning,omitempty"`
	MinPlayers     int           `json:"min_players" yaml:"min_players"`
	MaxPlayers     int           `json:"max_players" yaml:"max_players"`
	OpenDuration   time.Duration `json:"open_duration" yaml:"open_duration"`
	TurnPattern    []TurnType    `json:"turn_pattern" yaml:"turn_pattern"`
}

// SubmissionTimeout returns the timeout that applies to a PENDING turn of
// the given type.
func (c *SeasonConfig) SubmissionTimeout(t TurnType) time.Duration {
	if t == TurnDrawing {
		return c.DrawingTimeout
	}
	return c.WritingTimeout
}

// SubmissionWarning returns the warning offset for a PENDING turn of the
// given type.
func (c *SeasonConfig) SubmissionWarning(t TurnType) time.Duration {
	if t == TurnDrawing {
		return c.DrawingWarning
	}
	return c.WritingWarning
}

// ClaimTimeoutValue returns the claim timeout.
func (c *SeasonConfig) ClaimTimeoutValue() time.Duration { return c.ClaimTimeout }

// ClaimWarningValue returns the claim warning offset.
func (c *SeasonConfig) ClaimWarningValue() time.Duration { return c.ClaimWarning }

// GameConfig holds the per-game rules for on-demand (non-season) games.
type GameConfig struct {
	ID             string        `json:"id" yaml:"id"`
	TurnPattern    []TurnType    `json:"turn_pattern" yaml:"turn_pattern"`
	MinTurns       int           `json:"min_turns" yaml:"min_turns"`
	MaxTurns       int           `json:"max_turns,omitempty" yaml:"max_turns,omitempty"`
	StaleTimeout   time.Duration `json:"stale_timeout" yaml:"stale_timeout"`
	ReturnCount    int           `json:"return_count" yaml:"return_count"`
	ReturnCooldown int           `json:"return_cooldown" yaml:"return_cooldown"`
	ClaimTimeout   time.Duration `json:"claim_timeout" yaml:"claim_timeout"`
	WritingTimeout time.Duration `json:"writing_timeout" yaml:"writing_timeout"`
	DrawingTimeout time.Duration `json:"drawing_timeout" yaml:"drawing_timeout"`
	ClaimWarning   time.Duration `json:"claim_warning,omitempty" yaml:"claim_warning,omitempty"`
	WritingWarning time.Duration `json:"writing_warning,omitempty" yaml:"writing_warning,omitempty"`
	DrawingWarning time.Duration `json:"drawing_warning,omitempty" yaml:"drawing_warning,omitempty"`
}

// SubmissionTimeout returns the timeout that applies to a PENDING turn of
// the given type.
func (c *GameConfig) SubmissionTimeout(t TurnType) time.Duration {
	if t == TurnDrawing {
		return c.DrawingTimeout
	}
	return c.WritingTimeout
}

// SubmissionWarning returns the warning offset for a PENDING turn of the
// given type.
func (c *GameConfig) SubmissionWarning(t TurnType) time.Duration {
	if t == TurnDrawing {
		return c.DrawingWarning
	}
	return c.WritingWarning
}

// HasMaxTurns reports whether MaxTurns is set (non-zero).
func (c *GameConfig) HasMaxTurns() bool { return c.MaxTurns > 0 }

// ClaimTimeoutValue returns the claim timeout.
func (c *GameConfig) ClaimTimeoutValue() time.Duration { return c.ClaimTimeout }

// ClaimWarningValue returns the claim warning offset.
func (c *GameConfig) ClaimWarningValue() time.Duration { return c.ClaimWarning }

// Membership links a Player to a Season with a join timestamp used for
// deterministic offering order (§4.5).
type Membership struct {
	PlayerID string    `json:"player_id" yaml:"player_id"`
	SeasonID string    `json:"season_id" yaml:"season_id"`
	JoinedAt time.Time `json:"joined_at" yaml:"joined_at"`
}

// Season is a cohort of players sharing a SeasonConfig.
type Season struct {
	ID        string       `json:"id" yaml:"id"`
	Status    SeasonStatus `json:"status" yaml:"status"`
	CreatorID string       `json:"creator_id" yaml:"creator_id"`
	ConfigID  string       `json:"config_id" yaml:"config_id"`
	CreatedAt time.Time    `json:"created_at" yaml:"created_at"`
	GuildID   string       `json:"guild_id,omitempty" yaml:"guild_id,omitempty"`
}

// Game is a chain of alternating turns, either bound to a Season or created
// on demand by a single player.
type Game struct {
	ID             string     `json:"id" yaml:"id"`
	Status         GameStatus `json:"status" yaml:"status"`
	SeasonID       string     `json:"season_id,omitempty" yaml:"season_id,omitempty"`
	CreatorID      string     `json:"creator_id,omitempty" yaml:"creator_id,omitempty"`
	GuildID        string     `json:"guild_id,omitempty" yaml:"guild_id,omitempty"`
	ConfigID       string     `json:"config_id,omitempty" yaml:"config_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" yaml:"updated_at"`
	LastActivityAt time.Time  `json:"last_activity_at" yaml:"last_activity_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// IsSeasonGame reports whether this game belongs to a season rather than
// being an on-demand game.
func (g *Game) IsSeasonGame() bool { return g.SeasonID != "" }

// Turn is one contribution in a Game's chain.
type Turn struct {
	ID             string     `json:"id" yaml:"id"`
	GameID         string     `json:"game_id" yaml:"game_id"`
	TurnNumber     int        `json:"turn_number" yaml:"turn_number"`
	Type           TurnType   `json:"type" yaml:"type"`
	Status         TurnStatus `json:"status" yaml:"status"`
	PlayerID       string     `json:"player_id,omitempty" yaml:"player_id,omitempty"`
	TextContent    string     `json:"text_content,omitempty" yaml:"text_content,omitempty"`
	ImageURL       string     `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	PreviousTurnID string     `json:"previous_turn_id,omitempty" yaml:"previous_turn_id,omitempty"`
	OfferedAt      *time.Time `json:"offered_at,omitempty" yaml:"offered_at,omitempty"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty" yaml:"claimed_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	SkippedAt      *time.Time `json:"skipped_at,omitempty" yaml:"skipped_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" yaml:"updated_at"`
}

// IsTerminal reports whether the turn has reached a state counted toward
// completion (COMPLETED or SKIPPED; FLAGGED is semi-terminal and is not
// counted here, matching spec.md I5).
func (t *Turn) IsTerminal() bool {
	return t.Status == TurnCompleted || t.Status == TurnSkipped
}

// ScheduledJob is a durable, at-least-once timer entry.
type ScheduledJob struct {
	JobID         string     `json:"job_id" yaml:"job_id"`
	FireAt        time.Time  `json:"fire_at" yaml:"fire_at"`
	JobType       string     `json:"job_type" yaml:"job_type"`
	Payload       []byte     `json:"payload" yaml:"payload"`
	Status        JobStatus  `json:"status" yaml:"status"`
	ExecutedAt    *time.Time `json:"executed_at,omitempty" yaml:"executed_at,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
}
