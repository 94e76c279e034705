package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Git.WorktreeDirName != ".corral-worktrees" {
		t.Errorf("worktree dir = %q", cfg.Git.WorktreeDirName)
	}
	if cfg.Status.PollIntervalMS != 5000 || cfg.Status.DebounceMS != 150 || cfg.Status.ChunkSize != 25 {
		t.Errorf("status defaults = %+v", cfg.Status)
	}
	if cfg.Queue.Backend != string(QueueBackendMemory) {
		t.Errorf("queue backend = %q, want memory", cfg.Queue.Backend)
	}
}

func TestLoadFromOverrides(t *testing.T) {
	path := writeConfig(t, `
[git]
worktree-dir = ".trees"
branch-prefix = "corral/"

[status]
poll-interval-ms = 2000
debounce-ms = 50

[queue]
backend = "journal"
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Git.WorktreeDirName != ".trees" || cfg.Git.BranchPrefix != "corral/" {
		t.Errorf("git section = %+v", cfg.Git)
	}
	if cfg.PollInterval() != 2*time.Second {
		t.Errorf("poll interval = %v", cfg.PollInterval())
	}
	if cfg.Debounce() != 50*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Debounce())
	}
	if cfg.Queue.Backend != string(QueueBackendJournal) {
		t.Errorf("backend = %q", cfg.Queue.Backend)
	}
	// Untouched settings keep their defaults.
	if cfg.Status.ChunkSize != 25 {
		t.Errorf("chunk size = %d, want default 25", cfg.Status.ChunkSize)
	}
}

func TestLoadFromRejectsBadValues(t *testing.T) {
	cases := []string{
		"[queue]\nbackend = \"redis\"\n",
		"[status]\npoll-interval-ms = -1\n",
		"[status]\ndebounce-ms = 0\n",
		"[status]\nchunk-size = -5\n",
	}
	for _, content := range cases {
		if _, err := LoadFrom(writeConfig(t, content)); err == nil {
			t.Errorf("config %q should be rejected", content)
		}
	}
}

func TestLoadFromRejectsMalformedTOML(t *testing.T) {
	if _, err := LoadFrom(writeConfig(t, "[git\nbroken")); err == nil {
		t.Error("malformed toml should fail")
	}
}
