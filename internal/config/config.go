package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the sync daemon.
type Config struct {
	// Comma-separated list of project directories to watch. Each one is
	// expected to contain (or receive) a .ai-project/ document root.
	ProjectDirs []string `env:"ROKI_PROJECT_DIRS" envSeparator:","`

	// Number of backups retained per file. Older backups beyond this
	// count are deleted right after a new one is created.
	BackupRetention int `env:"ROKI_BACKUP_RETENTION" envDefault:"10"`

	// Path to the bbolt journal database. Defaults to
	// ~/.roki-sync/journal.db when empty.
	JournalPath string `env:"ROKI_JOURNAL_PATH"`

	// Buffer size of each event subscriber channel. Events beyond a full
	// buffer are dropped rather than blocking the engine.
	EventBuffer int `env:"ROKI_EVENT_BUFFER" envDefault:"256"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing settings to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Resolve project dirs to absolute paths at startup. The bridge keys
	// its watch registrations and cache by path string, so two spellings
	// of the same directory must not register twice.
	for i, dir := range cfg.ProjectDirs {
		abs, err := filepath.Abs(strings.TrimSpace(dir))
		if err != nil {
			return nil, fmt.Errorf("resolving project dir %q: %w", dir, err)
		}

		cfg.ProjectDirs[i] = abs
	}

	if cfg.JournalPath == "" {
		path, err := defaultJournalPath()
		if err != nil {
			return nil, err
		}

		cfg.JournalPath = path
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.ProjectDirs) == 0 {
		return fmt.Errorf("ROKI_PROJECT_DIRS must name at least one project directory")
	}

	for _, dir := range c.ProjectDirs {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("ROKI_PROJECT_DIRS contains an empty entry")
		}
	}

	if c.BackupRetention < 1 {
		return fmt.Errorf("ROKI_BACKUP_RETENTION must be at least 1, got %d", c.BackupRetention)
	}

	if c.EventBuffer < 1 {
		return fmt.Errorf("ROKI_EVENT_BUFFER must be at least 1, got %d", c.EventBuffer)
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func defaultJournalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".roki-sync", "journal.db"), nil
}
