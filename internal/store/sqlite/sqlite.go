// Package sqlite provides the default embedded persistence backend:
// Repository, JobStorage, and ChannelConfigPort implementations over
// database/sql + mattn/go-sqlite3, adapted wholesale from the teacher's
// pkg/devclaw/database/backends/sqlite.go (OpenSQLite's DSN construction,
// WAL journal mode, busy-timeout handling, and startup schema migration;
// here the migration is one idempotent CREATE ... IF NOT EXISTS schema with
// no version tracking).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jholhewres/gochain/internal/coreerr"
	"github.com/jholhewres/gochain/internal/model"
	"github.com/jholhewres/gochain/internal/ports"
)

// Config holds SQLite-specific connection configuration.
type Config struct {
	Path        string
	JournalMode string
	BusyTimeout int
}

// DefaultConfig returns sane zero-config defaults.
func DefaultConfig() Config {
	return Config{
		Path:        "./data/gochain.db",
		JournalMode: "WAL",
		BusyTimeout: 5000,
	}
}

// Store is the sqlite-backed implementation of ports.Repository,
// ports.JobStorage, and ports.ChannelConfigPort.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database and applies the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg = DefaultConfig()
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = "WAL"
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5000
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %q: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d&_foreign_keys=ON", cfg.Path, cfg.JournalMode, cfg.BusyTimeout)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", cfg.Path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// SQLite + WAL: serialize writers, mirrors teacher's conservative pool
	// defaults. Safe with a single connection only because every write that
	// runs inside a coordinator transaction, including job scheduling, goes
	// through that same *sql.Tx (txImpl) rather than back through s.db.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS player (
	id TEXT PRIMARY KEY,
	external_user_id TEXT UNIQUE NOT NULL,
	display_name TEXT NOT NULL,
	banned_at DATETIME
);

CREATE TABLE IF NOT EXISTS season_config (
	id TEXT PRIMARY KEY,
	claim_timeout_ms INTEGER NOT NULL,
	writing_timeout_ms INTEGER NOT NULL,
	drawing_timeout_ms INTEGER NOT NULL,
	claim_warning_ms INTEGER NOT NULL DEFAULT 0,
	writing_warning_ms INTEGER NOT NULL DEFAULT 0,
	drawing_warning_ms INTEGER NOT NULL DEFAULT 0,
	min_players INTEGER NOT NULL,
	max_players INTEGER NOT NULL,
	open_duration_ms INTEGER NOT NULL,
	turn_pattern TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS game_config (
	id TEXT PRIMARY KEY,
	turn_pattern TEXT NOT NULL,
	min_turns INTEGER NOT NULL,
	max_turns INTEGER NOT NULL DEFAULT 0,
	stale_timeout_ms INTEGER NOT NULL,
	return_count INTEGER NOT NULL DEFAULT 0,
	return_cooldown INTEGER NOT NULL DEFAULT 0,
	claim_timeout_ms INTEGER NOT NULL,
	writing_timeout_ms INTEGER NOT NULL,
	drawing_timeout_ms INTEGER NOT NULL,
	claim_warning_ms INTEGER NOT NULL DEFAULT 0,
	writing_warning_ms INTEGER NOT NULL DEFAULT 0,
	drawing_warning_ms INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS season (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	creator_id TEXT NOT NULL,
	config_id TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	guild_id TEXT
);

CREATE TABLE IF NOT EXISTS players_on_seasons (
	player_id TEXT NOT NULL,
	season_id TEXT NOT NULL,
	joined_at DATETIME NOT NULL,
	PRIMARY KEY (player_id, season_id)
);

CREATE TABLE IF NOT EXISTS game (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	season_id TEXT,
	creator_id TEXT,
	guild_id TEXT,
	config_id TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	last_activity_at DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS turn (
	id TEXT PRIMARY KEY,
	game_id TEXT NOT NULL,
	turn_number INTEGER NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	player_id TEXT,
	text_content TEXT,
	image_url TEXT,
	previous_turn_id TEXT,
	offered_at DATETIME,
	claimed_at DATETIME,
	completed_at DATETIME,
	skipped_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE (game_id, turn_number)
);

-- Invariant I1: at most one head turn (AVAILABLE/OFFERED/PENDING) per game.
CREATE UNIQUE INDEX IF NOT EXISTS idx_turn_head_unique
	ON turn(game_id)
	WHERE status IN ('AVAILABLE', 'OFFERED', 'PENDING');

CREATE TABLE IF NOT EXISTS scheduled_job (
	job_id TEXT PRIMARY KEY,
	fire_at DATETIME NOT NULL,
	job_type TEXT NOT NULL,
	payload BLOB,
	status TEXT NOT NULL,
	executed_at DATETIME,
	failure_reason TEXT
);

CREATE TABLE IF NOT EXISTS channel_config (
	guild_id TEXT PRIMARY KEY,
	completed_channel_id TEXT,
	admin_channel_id TEXT
);
`

// WithTx implements ports.Repository.
func (s *Store) WithTx(ctx context.Context, fn func(ports.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", coreerr.ErrInternal, err)
	}

	tx := &txImpl{tx: sqlTx}
	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit transaction: %v", coreerr.ErrInternal, err)
	}
	return nil
}

// JobStorage methods below run on the raw connection, outside any coordinator
// transaction: they back the scheduler's own bookkeeping (background timer
// firing, startup reconciliation), which never overlaps with an open WithTx.
// Scheduling/cancelling from inside a coordinator transaction goes through
// txImpl's SaveJob/GetJob (tx.go) instead, so it shares that transaction's
// connection and commit/rollback (spec §4.4/§5/§7) rather than contending
// with it on this single-connection pool.

func (s *Store) Save(ctx context.Context, job *model.ScheduledJob) error {
	_, err := s.db.ExecContext(ctx, `
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

func (s *Store) Get(ctx context.Context, jobID string) (*model.ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx, `
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

func (s *Store) LoadScheduled(ctx context.Context) ([]*model.ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, fire_at, job_type, payload, status, executed_at, failure_reason
		FROM scheduled_job WHERE status = 'SCHEDULED'
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: load scheduled jobs: %v", coreerr.ErrSchedulerError, err)
	}
	defer rows.Close()

	var out []*model.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan job: %v", coreerr.ErrSchedulerError, err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *Store) MarkFailed(ctx context.Context, jobID, reason string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scheduled_job SET status = 'FAILED', failure_reason = ? WHERE job_id = ?`, reason, jobID)
	if err != nil {
		return fmt.Errorf("%w: mark job %s failed: %v", coreerr.ErrSchedulerError, jobID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("job %s: %w", jobID, coreerr.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.ScheduledJob, error) {
	var j model.ScheduledJob
	var status string
	if err := row.Scan(&j.JobID, &j.FireAt, &j.JobType, &j.Payload, &status, &j.ExecutedAt, &j.FailureReason); err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)
	return &j, nil
}

// ChannelConfigPort implementation.

func (s *Store) GetCompletedChannelID(ctx context.Context, guildID string) (string, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT completed_channel_id FROM channel_config WHERE guild_id = ?`, guildID).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", coreerr.ErrInternal, err)
	}
	return v.String, nil
}

func (s *Store) GetAdminChannelID(ctx context.Context, guildID string) (string, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT admin_channel_id FROM channel_config WHERE guild_id = ?`, guildID).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", coreerr.ErrInternal, err)
	}
	return v.String, nil
}
