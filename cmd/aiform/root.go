// ABOUTME: Root Cobra command for the aiform CLI.
// ABOUTME: Opens storage and preferences and runs the day rollover before each command.
package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harperreed/aiform/internal/config"
	"github.com/harperreed/aiform/internal/logging"
	"github.com/harperreed/aiform/internal/prefs"
	"github.com/harperreed/aiform/internal/rollover"
	"github.com/harperreed/aiform/internal/storage"
)

// skipSetupAnnotation marks commands that do not touch storage or preferences.
const skipSetupAnnotation = "aiform.skip-setup"

var (
	cfg       *config.Config
	repo      storage.Repository
	prefStore *prefs.Store
	logger    = zerolog.Nop()

	dataDirFlag  string
	backendFlag  string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "aiform",
	Short: "Guided strength workouts with a daily ledger",
	Long: `aiform walks you through a planned strength workout set by set and keeps a
ledger of which calendar days you trained.

HOW IT WORKS:

  A day plan lists exercises, their sets, and the rest between sets. During
  'aiform train' you mark each set done, optionally leave a note, and rest
  while a countdown runs. Every set is saved the moment you finish it.

  Each session is stamped with the calendar day in your selected time zone.
  When aiform starts on a new day it closes the previous one in the ledger,
  recording whether you trained.

QUICK START:

  $ aiform timezone set Europe/Madrid    # Pick the zone that defines "today"
  $ aiform plan validate today.json      # Check a plan file
  $ aiform train today.json              # Run the guided session
  $ aiform day close --calories 2400     # Close today by hand
  $ aiform day list                      # See the ledger

MCP INTEGRATION:

  Run 'aiform mcp' to start the Model Context Protocol server so an AI
  assistant can drive sessions and read the ledger:

  {
    "mcpServers": {
      "aiform": { "command": "aiform", "args": ["mcp"] }
    }
  }

DATA STORAGE:

  Sessions and the ledger live in SQLite at ~/.local/share/aiform/aiform.db
  (or Postgres, see 'aiform migrate'). Preferences live in a badger store
  next to it, or in Charm KV when preferences is set to "charm".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipSetup(cmd) {
			return nil
		}
		return setup(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown()
	},
}

func skipSetup(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "version", "completion", "__complete":
		return true
	}
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipSetupAnnotation] == "true" {
			return true
		}
	}
	return false
}

func setup(cmd *cobra.Command) error {
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	if backendFlag != "" {
		cfg.Backend = backendFlag
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	logger = logging.Init(cfg.GetLogLevel(), cfg.LogFormat)

	ctx := cmd.Context()
	repo, err = cfg.OpenStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	prefStore, err = cfg.OpenPreferences(logger)
	if err != nil {
		_ = teardown()
		return fmt.Errorf("failed to open preferences: %w", err)
	}

	// A failed rollover leaves the last observed day in place, so the next
	// start retries it. The command still runs.
	res, err := rollover.New(prefStore, repo, rollover.WithLogger(logger)).Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("day rollover failed")
		color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "⚠ Day rollover failed: %v (will retry next start)\n", err)
		return nil
	}
	if res.Closed {
		logger.Info().Str("day_key", res.PreviousDayKey).Msg("closed previous day")
	}
	return nil
}

func teardown() error {
	var errs []error
	if repo != nil {
		errs = append(errs, repo.Close())
		repo = nil
	}
	if prefStore != nil {
		errs = append(errs, prefStore.Close())
		prefStore = nil
	}
	return errors.Join(errs...)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default ~/.local/share/aiform)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "storage backend: sqlite or postgres")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")
}
