// Package config loads gochain's YAML configuration and .env secrets,
// grounded on the teacher's channels/discord.Config (struct + DefaultConfig
// constructor) and cmd/devclaw's godotenv.Load() startup step.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/gochain/internal/jobstore"
	"github.com/jholhewres/gochain/internal/store/sqlite"
)

// Config is the top-level bot configuration.
type Config struct {
	// DiscordToken is read from the DISCORD_TOKEN environment variable, not
	// from YAML, so it never lands in a config file on disk.
	DiscordToken string `yaml:"-"`

	// DatabasePath is the sqlite file path.
	DatabasePath string `yaml:"database_path"`

	// CompletedChannelID and AdminChannelID are loaded from YAML but not
	// consulted by channel routing, which reads only the channel_config
	// table (a guild with no row there gets no announcements).
	CompletedChannelID string `yaml:"completed_channel_id"`
	AdminChannelID     string `yaml:"admin_channel_id"`

	// MissedJobPolicy controls scheduler recovery behavior on restart
	// (spec §6 operational flags).
	MissedJobPolicy string `yaml:"missed_job_policy"`

	// DevMode waives SeasonConfig.MinPlayers when a season's open window
	// closes (spec.md §9 open question, resolved in SPEC_FULL.md §12).
	DevMode bool `yaml:"dev_mode"`

	// StaleCleanupCron names the cron expression for C9. Defaults to
	// every 5 minutes per spec §4.9.
	StaleCleanupCron string `yaml:"stale_cleanup_cron"`
}

// DefaultConfig returns sane zero-config defaults.
func DefaultConfig() Config {
	return Config{
		DatabasePath:     "./data/gochain.db",
		MissedJobPolicy:  string(jobstore.MissedMarkFailed),
		StaleCleanupCron: "0 */5 * * * *",
	}
}

// Load reads .env (if present) then a YAML config file at path, layering
// file values over DefaultConfig and the bot token from the environment.
func Load(path string) (Config, error) {
	_ = godotenv.Load() // optional: missing .env is not an error

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	return cfg, nil
}

// SQLiteConfig derives a sqlite.Config from the bot Config.
func (c Config) SQLiteConfig() sqlite.Config {
	return sqlite.Config{Path: c.DatabasePath, JournalMode: "WAL", BusyTimeout: 5000}
}
