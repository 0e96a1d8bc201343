package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jholhewres/gochain/internal/coreerr"
	"github.com/jholhewres/gochain/internal/model"
)

// txImpl implements ports.Tx over a single *sql.Tx.
type txImpl struct {
	tx *sql.Tx
}

func (t *txImpl) GetPlayer(ctx context.Context, id string) (*model.Player, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT id, external_user_id, display_name, banned_at FROM player WHERE id = ?`, id)
	return scanPlayer(row)
}

func (t *txImpl) GetPlayerByExternalID(ctx context.Context, externalID string) (*model.Player, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT id, external_user_id, display_name, banned_at FROM player WHERE external_user_id = ?`, externalID)
	return scanPlayer(row)
}

func scanPlayer(row *sql.Row) (*model.Player, error) {
	var p model.Player
	if err := row.Scan(&p.ID, &p.ExternalUserID, &p.DisplayName, &p.BannedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("player: %w", coreerr.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInternal, err)
	}
	return &p, nil
}

func (t *txImpl) SavePlayer(ctx context.Context, p *model.Player) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO player (id, external_user_id, display_name, banned_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET external_user_id=excluded.external_user_id,
			display_name=excluded.display_name, banned_at=excluded.banned_at
	`, p.ID, p.ExternalUserID, p.DisplayName, p.BannedAt)
	return wrapErr(err)
}

func (t *txImpl) GetSeason(ctx context.Context, id string) (*model.Season, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT id, status, creator_id, config_id, created_at, guild_id FROM season WHERE id = ?`, id)
	var s model.Season
	var guildID sql.NullString
	var status string
	if err := row.Scan(&s.ID, &status, &s.CreatorID, &s.ConfigID, &s.CreatedAt, &guildID); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("season %s: %w", id, coreerr.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInternal, err)
	}
	s.Status = model.SeasonStatus(status)
	s.GuildID = guildID.String
	return &s, nil
}

func (t *txImpl) SaveSeason(ctx context.Context, s *model.Season) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO season (id, status, creator_id, config_id, created_at, guild_id) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, creator_id=excluded.creator_id,
			config_id=excluded.config_id, created_at=excluded.created_at, guild_id=excluded.guild_id
	`, s.ID, string(s.Status), s.CreatorID, s.ConfigID, s.CreatedAt, nullable(s.GuildID))
	return wrapErr(err)
}

func (t *txImpl) ListSeasonGames(ctx context.Context, seasonID string) ([]*model.Game, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+gameColumns+` FROM game WHERE season_id = ?`, seasonID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	return scanGames(rows)
}

func (t *txImpl) ListSeasonMembers(ctx context.Context, seasonID string) ([]*model.Membership, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT player_id, season_id, joined_at FROM players_on_seasons WHERE season_id = ?`, seasonID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []*model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.PlayerID, &m.SeasonID, &m.JoinedAt); err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (t *txImpl) AddSeasonMember(ctx context.Context, m *model.Membership) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO players_on_seasons (player_id, season_id, joined_at) VALUES (?, ?, ?)
		ON CONFLICT(player_id, season_id) DO NOTHING
	`, m.PlayerID, m.SeasonID, m.JoinedAt)
	return wrapErr(err)
}

func (t *txImpl) GetSeasonConfig(ctx context.Context, id string) (*model.SeasonConfig, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, claim_timeout_ms, writing_timeout_ms, drawing_timeout_ms,
			claim_warning_ms, writing_warning_ms, drawing_warning_ms,
			min_players, max_players, open_duration_ms, turn_pattern
		FROM season_config WHERE id = ?
	`, id)
	var c model.SeasonConfig
	var claimMs, writingMs, drawingMs, claimWarnMs, writingWarnMs, drawingWarnMs, openMs int64
	var pattern string
	if err := row.Scan(&c.ID, &claimMs, &writingMs, &drawingMs, &claimWarnMs, &writingWarnMs, &drawingWarnMs,
		&c.MinPlayers, &c.MaxPlayers, &openMs, &pattern); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("season config %s: %w", id, coreerr.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInternal, err)
	}
	c.ClaimTimeout = msToDuration(claimMs)
	c.WritingTimeout = msToDuration(writingMs)
	c.DrawingTimeout = msToDuration(drawingMs)
	c.ClaimWarning = msToDuration(claimWarnMs)
	c.WritingWarning = msToDuration(writingWarnMs)
	c.DrawingWarning = msToDuration(drawingWarnMs)
	c.OpenDuration = msToDuration(openMs)
	if err := json.Unmarshal([]byte(pattern), &c.TurnPattern); err != nil {
		return nil, fmt.Errorf("%w: decode turn_pattern: %v", coreerr.ErrInternal, err)
	}
	return &c, nil
}

func (t *txImpl) SaveSeasonConfig(ctx context.Context, c *model.SeasonConfig) error {
	pattern, err := json.Marshal(c.TurnPattern)
	if err != nil {
		return fmt.Errorf("%w: encode turn_pattern: %v", coreerr.ErrInternal, err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO season_config (id, claim_timeout_ms, writing_timeout_ms, drawing_timeout_ms,
			claim_warning_ms, writing_warning_ms, drawing_warning_ms, min_players, max_players, open_duration_ms, turn_pattern)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET claim_timeout_ms=excluded.claim_timeout_ms,
			writing_timeout_ms=excluded.writing_timeout_ms, drawing_timeout_ms=excluded.drawing_timeout_ms,
			claim_warning_ms=excluded.claim_warning_ms, writing_warning_ms=excluded.writing_warning_ms,
			drawing_warning_ms=excluded.drawing_warning_ms, min_players=excluded.min_players,
			max_players=excluded.max_players, open_duration_ms=excluded.open_duration_ms, turn_pattern=excluded.turn_pattern
	`, c.ID, durationToMs(c.ClaimTimeout), durationToMs(c.WritingTimeout), durationToMs(c.DrawingTimeout),
		durationToMs(c.ClaimWarning), durationToMs(c.WritingWarning), durationToMs(c.DrawingWarning),
		c.MinPlayers, c.MaxPlayers, durationToMs(c.OpenDuration), string(pattern))
	return wrapErr(err)
}

func (t *txImpl) SaveGameConfig(ctx context.Context, c *model.GameConfig) error {
	pattern, err := json.Marshal(c.TurnPattern)
	if err != nil {
		return fmt.Errorf("%w: encode turn_pattern: %v", coreerr.ErrInternal, err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO game_config (id, turn_pattern, min_turns, max_turns, stale_timeout_ms, return_count, return_cooldown,
			claim_timeout_ms, writing_timeout_ms, drawing_timeout_ms, claim_warning_ms, writing_warning_ms, drawing_warning_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET turn_pattern=excluded.turn_pattern, min_turns=excluded.min_turns,
			max_turns=excluded.max_turns, stale_timeout_ms=excluded.stale_timeout_ms, return_count=excluded.return_count,
			return_cooldown=excluded.return_cooldown, claim_timeout_ms=excluded.claim_timeout_ms,
			writing_timeout_ms=excluded.writing_timeout_ms, drawing_timeout_ms=excluded.drawing_timeout_ms,
			claim_warning_ms=excluded.claim_warning_ms, writing_warning_ms=excluded.writing_warning_ms,
			drawing_warning_ms=excluded.drawing_warning_ms
	`, c.ID, string(pattern), c.MinTurns, c.MaxTurns, durationToMs(c.StaleTimeout), c.ReturnCount, c.ReturnCooldown,
		durationToMs(c.ClaimTimeout), durationToMs(c.WritingTimeout), durationToMs(c.DrawingTimeout),
		durationToMs(c.ClaimWarning), durationToMs(c.WritingWarning), durationToMs(c.DrawingWarning))
	return wrapErr(err)
}

const gameColumns = `id, status, season_id, creator_id, guild_id, config_id, created_at, updated_at, last_activity_at, completed_at`

func (t *txImpl) GetGame(ctx context.Context, id string) (*model.Game, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM game WHERE id = ?`, id)
	g, err := scanGame(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("game %s: %w", id, coreerr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInternal, err)
	}
	return g, nil
}

func (t *txImpl) SaveGame(ctx context.Context, g *model.Game) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO game (id, status, season_id, creator_id, guild_id, config_id, created_at, updated_at, last_activity_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, season_id=excluded.season_id,
			creator_id=excluded.creator_id, guild_id=excluded.guild_id, config_id=excluded.config_id,
			updated_at=excluded.updated_at, last_activity_at=excluded.last_activity_at, completed_at=excluded.completed_at
	`, g.ID, string(g.Status), nullable(g.SeasonID), nullable(g.CreatorID), nullable(g.GuildID), nullable(g.ConfigID),
		g.CreatedAt, g.UpdatedAt, g.LastActivityAt, g.CompletedAt)
	return wrapErr(err)
}

func (t *txImpl) DeleteGame(ctx context.Context, id string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM turn WHERE game_id = ?`, id); err != nil {
		return wrapErr(err)
	}
	_, err := t.tx.ExecContext(ctx, `DELETE FROM game WHERE id = ?`, id)
	return wrapErr(err)
}

func (t *txImpl) ListGamesByGuildAndStatus(ctx context.Context, guildID string, statuses []model.GameStatus) ([]*model.Game, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + gameColumns + ` FROM game WHERE guild_id = ? AND status IN (` + placeholders(len(statuses)) + `)`
	args := make([]any, 0, len(statuses)+1)
	args = append(args, guildID)
	for _, s := range statuses {
		args = append(args, string(s))
	}
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	return scanGames(rows)
}

func (t *txImpl) ListGamesByStatus(ctx context.Context, statuses []model.GameStatus) ([]*model.Game, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + gameColumns + ` FROM game WHERE status IN (` + placeholders(len(statuses)) + `)`
	args := make([]any, 0, len(statuses))
	for _, s := range statuses {
		args = append(args, string(s))
	}
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	return scanGames(rows)
}

func (t *txImpl) GetGameConfig(ctx context.Context, id string) (*model.GameConfig, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, turn_pattern, min_turns, max_turns, stale_timeout_ms, return_count, return_cooldown,
			claim_timeout_ms, writing_timeout_ms, drawing_timeout_ms,
			claim_warning_ms, writing_warning_ms, drawing_warning_ms
		FROM game_config WHERE id = ?
	`, id)
	var c model.GameConfig
	var pattern string
	var staleMs, claimMs, writingMs, drawingMs, claimWarnMs, writingWarnMs, drawingWarnMs int64
	if err := row.Scan(&c.ID, &pattern, &c.MinTurns, &c.MaxTurns, &staleMs, &c.ReturnCount, &c.ReturnCooldown,
		&claimMs, &writingMs, &drawingMs, &claimWarnMs, &writingWarnMs, &drawingWarnMs); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("game config %s: %w", id, coreerr.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInternal, err)
	}
	if err := json.Unmarshal([]byte(pattern), &c.TurnPattern); err != nil {
		return nil, fmt.Errorf("%w: decode turn_pattern: %v", coreerr.ErrInternal, err)
	}
	c.StaleTimeout = msToDuration(staleMs)
	c.ClaimTimeout = msToDuration(claimMs)
	c.WritingTimeout = msToDuration(writingMs)
	c.DrawingTimeout = msToDuration(drawingMs)
	c.ClaimWarning = msToDuration(claimWarnMs)
	c.WritingWarning = msToDuration(writingWarnMs)
	c.DrawingWarning = msToDuration(drawingWarnMs)
	return &c, nil
}

const turnColumns = `id, game_id, turn_number, type, status, player_id, text_content, image_url, previous_turn_id, offered_at, claimed_at, completed_at, skipped_at, created_at, updated_at`

func (t *txImpl) GetTurn(ctx context.Context, id string) (*model.Turn, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+turnColumns+` FROM turn WHERE id = ?`, id)
	turn, err := scanTurn(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("turn %s: %w", id, coreerr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInternal, err)
	}
	return turn, nil
}

func (t *txImpl) SaveTurn(ctx context.Context, turn *model.Turn) error {
	_, err := t.tx.ExecContext(ctx, insertTurnSQL,
		turn.ID, turn.GameID, turn.TurnNumber, string(turn.Type), string(turn.Status),
		nullable(turn.PlayerID), nullable(turn.TextContent), nullable(turn.ImageURL), nullable(turn.PreviousTurnID),
		turn.OfferedAt, turn.ClaimedAt, turn.CompletedAt, turn.SkippedAt, turn.CreatedAt, turn.UpdatedAt)
	return wrapErr(err)
}

const insertTurnSQL = `
	INSERT INTO turn (id, game_id, turn_number, type, status, player_id, text_content, image_url,
		previous_turn_id, offered_at, claimed_at, completed_at, skipped_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET status=excluded.status, player_id=excluded.player_id,
		text_content=excluded.text_content, image_url=excluded.image_url,
		offered_at=excluded.offered_at, claimed_at=excluded.claimed_at,
		completed_at=excluded.completed_at, skipped_at=excluded.skipped_at, updated_at=excluded.updated_at
`

// SaveTurnConditional enforces the single-writer-wins rule (spec §4.3/§5):
// the write only lands if the currently stored row's status still matches
// expectedStatus. A newly-created turn (no stored row yet) is treated as
// matching any expectedStatus so offerNextTurn's first write succeeds.
func (t *txImpl) SaveTurnConditional(ctx context.Context, next *model.Turn, expectedStatus model.TurnStatus) (bool, error) {
	var current sql.NullString
	err := t.tx.QueryRowContext(ctx, `SELECT status FROM turn WHERE id = ?`, next.ID).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		// No existing row: insert unconditionally.
		if insErr := t.SaveTurn(ctx, next); insErr != nil {
			return false, insErr
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("%w: %v", coreerr.ErrInternal, err)
	}
	if current.String != string(expectedStatus) {
		return false, nil
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE turn SET status=?, player_id=?, text_content=?, image_url=?,
			offered_at=?, claimed_at=?, completed_at=?, skipped_at=?, updated_at=?
		WHERE id = ? AND status = ?
	`, string(next.Status), nullable(next.PlayerID), nullable(next.TextContent), nullable(next.ImageURL),
		next.OfferedAt, next.ClaimedAt, next.CompletedAt, next.SkippedAt, next.UpdatedAt,
		next.ID, string(expectedStatus))
	if err != nil {
		return false, fmt.Errorf("%w: %v", coreerr.ErrInternal, err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (t *txImpl) GetHeadTurn(ctx context.Context, gameID string) (*model.Turn, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+turnColumns+` FROM turn
		WHERE game_id = ? AND status IN ('AVAILABLE', 'OFFERED', 'PENDING')
	`, gameID)
	turn, err := scanTurn(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInternal, err)
	}
	return turn, nil
}

func (t *txImpl) ListTurns(ctx context.Context, gameID string) ([]*model.Turn, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+turnColumns+` FROM turn WHERE game_id = ? ORDER BY turn_number ASC`, gameID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (t *txImpl) ListTurnsByPlayer(ctx context.Context, gameID, playerID string) ([]*model.Turn, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+turnColumns+` FROM turn WHERE game_id = ? AND player_id = ? ORDER BY turn_number ASC`, gameID, playerID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (t *txImpl) ListPendingTurnsByPlayer(ctx context.Context, playerID string) ([]*model.Turn, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+turnColumns+` FROM turn WHERE player_id = ? AND status = 'PENDING'`, playerID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// SaveJob and GetJob implement ports.Tx's scheduler-participation methods
// against this same *sql.Tx, using the identical scheduled_job SQL Store's
// JobStorage methods use against the raw connection (sqlite.go).

func (t *txImpl) SaveJob(ctx context.Context, job *model.ScheduledJob) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO scheduled_job (job_id, fire_at, job_type, payload, status, executed_at, failure_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			fire_at=excluded.fire_at, job_type=excluded.job_type, payload=excluded.payload,
			status=excluded.status, executed_at=excluded.executed_at, failure_reason=excluded.failure_reason
	`, job.JobID, job.FireAt, job.JobType, job.Payload, string(job.Status), job.ExecutedAt, job.FailureReason)
	if err != nil {
		return fmt.Errorf("%w: save job %s: %v", coreerr.ErrSchedulerError, job.JobID, err)
	}
	return nil
}

func (t *txImpl) GetJob(ctx context.Context, jobID string) (*model.ScheduledJob, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT job_id, fire_at, job_type, payload, status, executed_at, failure_reason
		FROM scheduled_job WHERE job_id = ?
	`, jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s: %w", jobID, coreerr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get job %s: %v", coreerr.ErrSchedulerError, jobID, err)
	}
	return job, nil
}

// --- scanning helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanGame(row scannable) (*model.Game, error) {
	var g model.Game
	var status string
	var seasonID, creatorID, guildID, configID sql.NullString
	if err := row.Scan(&g.ID, &status, &seasonID, &creatorID, &guildID, &configID,
		&g.CreatedAt, &g.UpdatedAt, &g.LastActivityAt, &g.CompletedAt); err != nil {
		return nil, err
	}
	g.Status = model.GameStatus(status)
	g.SeasonID = seasonID.String
	g.CreatorID = creatorID.String
	g.GuildID = guildID.String
	g.ConfigID = configID.String
	return &g, nil
}

func scanGames(rows *sql.Rows) ([]*model.Game, error) {
	var out []*model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanTurn(row scannable) (*model.Turn, error) {
	var t model.Turn
	var turnType, status string
	var playerID, textContent, imageURL, prevTurnID sql.NullString
	if err := row.Scan(&t.ID, &t.GameID, &t.TurnNumber, &turnType, &status, &playerID, &textContent, &imageURL,
		&prevTurnID, &t.OfferedAt, &t.ClaimedAt, &t.CompletedAt, &t.SkippedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Type = model.TurnType(turnType)
	t.Status = model.TurnStatus(status)
	t.PlayerID = playerID.String
	t.TextContent = textContent.String
	t.ImageURL = imageURL.String
	t.PreviousTurnID = prevTurnID.String
	return &t, nil
}

func scanTurns(rows *sql.Rows) ([]*model.Turn, error) {
	var out []*model.Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		out = append(out, turn)
	}
	return out, rows.Err()
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", coreerr.ErrInternal, err)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func durationToMs(d time.Duration) int64 {
	return d.Milliseconds()
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
