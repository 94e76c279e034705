// Package cmd implements the corral command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ScriptedAlchemy/corral/internal/config"
	"github.com/ScriptedAlchemy/corral/internal/logger"
	"github.com/ScriptedAlchemy/corral/internal/orchestrator"
	"github.com/ScriptedAlchemy/corral/internal/store"
)

var (
	debugMode             bool
	quietMode             bool
	configPath            string
	noStore               bool
	version, commit, date string
)

// SetVersionInfo sets version information from ldflags
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

var rootCmd = &cobra.Command{
	Use:   "corral",
	Short: "Session and worktree orchestration engine",
	Long: `Corral manages agent sessions, each isolated in its own git worktree.
Git-mutating operations are serialized per session through an operation
queue, working-tree status is polled and cached, and every commit a
session produces is tracked as an execution.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initLogging)
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quietMode, "quiet", "q", false, "Reduce logging to warnings only")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml (default ~/.config/corral/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&noStore, "no-store", false, "Run without persistence")
}

func initLogging() {
	if quietMode {
		logger.SetLevel(logger.LevelWarn)
	} else if debugMode {
		logger.SetDebug(true)
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(versionTemplate())
	defer logger.Close()
	return rootCmd.Execute()
}

func versionTemplate() string {
	if commit != "none" && commit != "" {
		return fmt.Sprintf("corral %s\n  commit: %s\n  built:  %s\n", version, commit, date)
	}
	return fmt.Sprintf("corral %s\n", version)
}

// loadConfig reads the config file, honoring --config.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

// withEngine builds a fully wired engine for one command invocation and
// tears it down afterwards.
func withEngine(fn func(e *orchestrator.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := orchestrator.Options{Notify: true}
	if !noStore {
		s, err := store.Open(cfg.Store.DBPath)
		if err != nil {
			return err
		}
		defer s.Close()
		opts.Store = s
	}

	engine, err := orchestrator.New(cfg, opts)
	if err != nil {
		return err
	}
	defer engine.Close()
	return fn(engine)
}
