// Package config handles loading the corral config.toml configuration file.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	corralerrors "github.com/ScriptedAlchemy/corral/internal/errors"
)

// QueueBackend selects which worktree operation queue backend to use.
type QueueBackend string

const (
	// QueueBackendMemory runs the queue purely in-process.
	QueueBackendMemory QueueBackend = "memory"
	// QueueBackendJournal journals operation intents to the store before
	// running them. The queue contract is identical under both backends.
	QueueBackendJournal QueueBackend = "journal"
)

// Config represents the corral config.toml configuration file.
type Config struct {
	Git    Git    `toml:"git"`
	Status Status `toml:"status"`
	Queue  Queue  `toml:"queue"`
	Store  Store  `toml:"store"`
}

// Git contains worktree and branch settings.
type Git struct {
	// WorktreeDirName is the sibling directory worktrees are created in.
	WorktreeDirName string `toml:"worktree-dir"`
	// BranchPrefix is prepended to auto-generated branch names.
	BranchPrefix string `toml:"branch-prefix"`
}

// Status contains git status polling settings.
type Status struct {
	// PollIntervalMS is how long a snapshot stays fresh.
	PollIntervalMS int `toml:"poll-interval-ms"`
	// DebounceMS is the window within which per-project status results
	// coalesce into one batched notification.
	DebounceMS int `toml:"debounce-ms"`
	// ChunkSize bounds how many results are processed before yielding.
	ChunkSize int `toml:"chunk-size"`
}

// Queue contains worktree operation queue settings.
type Queue struct {
	Backend string `toml:"backend"`
}

// Store contains persistence settings.
type Store struct {
	DBPath string `toml:"db-path"`
}

const (
	defaultPollIntervalMS = 5000
	defaultDebounceMS     = 150
	defaultChunkSize      = 25
)

// DashboardTTL is how long a dashboard cache entry stays valid. The boundary
// is exclusive: at exactly DashboardTTL elapsed the entry is expired.
const DashboardTTL = 60 * time.Second

// Load reads the global config file, applying defaults for anything unset.
// A missing file yields the default configuration.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads a config file from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, corralerrors.ConfigLoadFailed(path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, corralerrors.ConfigLoadFailed(path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Git: Git{
			WorktreeDirName: ".corral-worktrees",
		},
		Status: Status{
			PollIntervalMS: defaultPollIntervalMS,
			DebounceMS:     defaultDebounceMS,
			ChunkSize:      defaultChunkSize,
		},
		Queue: Queue{
			Backend: string(QueueBackendMemory),
		},
		Store: Store{
			DBPath: defaultDBPath(),
		},
	}
}

func (c *Config) validate() error {
	switch QueueBackend(c.Queue.Backend) {
	case QueueBackendMemory, QueueBackendJournal:
	default:
		return corralerrors.ConfigInvalid("queue.backend must be \"memory\" or \"journal\"")
	}
	if c.Status.PollIntervalMS <= 0 {
		return corralerrors.ConfigInvalid("status.poll-interval-ms must be positive")
	}
	if c.Status.DebounceMS <= 0 {
		return corralerrors.ConfigInvalid("status.debounce-ms must be positive")
	}
	if c.Status.ChunkSize <= 0 {
		return corralerrors.ConfigInvalid("status.chunk-size must be positive")
	}
	return nil
}

// PollInterval returns the status freshness window as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Status.PollIntervalMS) * time.Millisecond
}

// Debounce returns the status batching window as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Status.DebounceMS) * time.Millisecond
}

func configPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", corralerrors.ConfigLoadFailed("", err)
	}
	return filepath.Join(homeDir, ".config", "corral", "config.toml"), nil
}

func defaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "corral.db")
	}
	return filepath.Join(homeDir, ".local", "share", "corral", "corral.db")
}
