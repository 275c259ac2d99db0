// ABOUTME: CLI command for copying history between storage backends.
// ABOUTME: Moves everything from the configured backend into SQLite or Postgres.
package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/aiform/internal/config"
	"github.com/harperreed/aiform/internal/storage"
)

var (
	migrateTo          string
	migrateDatabaseURL string
	migrateTargetDir   string
	migrateDryRun      bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy all data to another storage backend",
	Long: `Copy sessions, set logs, notes, and the day ledger from the configured
backend into another one in a single transaction.

IMPORTANT:

  - The destination should be empty; existing session IDs cause an error
  - Run with --dry-run first to see what would be copied
  - Afterwards point aiform at the new backend with 'backend' in
    ~/.config/aiform/config.json or AIFORM_BACKEND

USAGE:

  aiform migrate --to postgres --database-url postgres://localhost/aiform --dry-run
  aiform migrate --to postgres --database-url postgres://localhost/aiform
  aiform --backend postgres migrate --to sqlite --target-dir ~/aiform-backup`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if migrateDryRun {
			data, err := repo.GetAllData(ctx)
			if err != nil {
				return fmt.Errorf("read source: %w", err)
			}
			sets := 0
			for _, s := range data.Sessions {
				sets += len(s.SetLogs)
			}
			color.New(color.FgYellow).Fprintln(out, "Dry run mode - no changes will be made")
			fmt.Fprintf(out, "  Sessions: %d\n  Set logs: %d\n  Days: %d\n", len(data.Sessions), sets, len(data.DailySummaries))
			return nil
		}

		target := &config.Config{Backend: migrateTo, DatabaseURL: migrateDatabaseURL}
		switch migrateTo {
		case config.BackendPostgres:
			if migrateDatabaseURL == "" {
				return fmt.Errorf("--database-url is required for postgres")
			}
		case config.BackendSQLite:
			if migrateTargetDir == "" {
				return fmt.Errorf("--target-dir is required for sqlite")
			}
			target.DataDir = migrateTargetDir
			nonEmpty, err := storage.IsDirNonEmpty(config.ExpandPath(migrateTargetDir))
			if err != nil {
				return err
			}
			if nonEmpty {
				return fmt.Errorf("target directory %s is not empty", migrateTargetDir)
			}
		default:
			return fmt.Errorf("unknown target backend: %q (use sqlite or postgres)", migrateTo)
		}

		dst, err := target.OpenStorage(ctx)
		if err != nil {
			return fmt.Errorf("open destination: %w", err)
		}
		defer dst.Close()

		summary, err := storage.MigrateData(ctx, repo, dst)
		if err != nil {
			return err
		}

		color.New(color.FgGreen).Fprintln(out, "✓ Migration complete")
		fmt.Fprintf(out, "  Sessions: %d\n  Set logs: %d\n  Notes: %d\n  Days: %d\n",
			summary.Sessions, summary.SetLogs, summary.Observations, summary.DailySummaries)
		if migrateTo == config.BackendSQLite {
			fmt.Fprintf(out, "  Database: %s\n", filepath.Join(target.GetDataDir(), "aiform.db"))
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateTo, "to", config.BackendPostgres, "destination backend: postgres or sqlite")
	migrateCmd.Flags().StringVar(&migrateDatabaseURL, "database-url", "", "destination Postgres connection string")
	migrateCmd.Flags().StringVar(&migrateTargetDir, "target-dir", "", "destination data directory for sqlite")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "preview migration without making changes")
	rootCmd.AddCommand(migrateCmd)
}
