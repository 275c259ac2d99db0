// ABOUTME: CLI commands for exporting and importing workout history.
// ABOUTME: Supports JSON, YAML, and Markdown export formats.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/aiform/internal/storage"
)

var (
	exportOutput string
	exportSince  string
	importFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export <format>",
	Short: "Export workout history",
	Long: `Export sessions, set logs, notes, and the day ledger.

FORMATS:

  json       Full JSON export (suitable for backup/restore)
  yaml       YAML export (human-readable, also restorable)
  markdown   Markdown tables (for sharing)

EXAMPLES:

  aiform export json                        # Export all data as JSON
  aiform export json -o backup.json         # Save to file
  aiform export yaml                        # Export as YAML
  aiform export markdown --since 2026-01-01 # Sessions from 2026 onward`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"json", "yaml", "markdown"},
	RunE: func(cmd *cobra.Command, args []string) error {
		format := args[0]

		data, err := repo.GetAllData(cmd.Context())
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		var body []byte
		switch format {
		case "json":
			body, err = data.JSON()
		case "yaml":
			body, err = data.YAML()
		case "markdown":
			var since *time.Time
			if exportSince != "" {
				t, err := time.Parse("2006-01-02", exportSince)
				if err != nil {
					return fmt.Errorf("invalid date format: %s (use YYYY-MM-DD)", exportSince)
				}
				since = &t
			}
			body = []byte(data.Markdown(since))
		default:
			return fmt.Errorf("unknown format: %s (use json, yaml, or markdown)", format)
		}
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		if exportOutput != "" {
			if err := os.WriteFile(exportOutput, body, 0600); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ Exported to %s\n", exportOutput)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import workout history from a JSON or YAML export",
	Long: `Import a previously exported JSON or YAML file.

The format is taken from the file extension unless --format is given.
Sessions with an ID that already exists cause an error; day summaries that
already exist are kept as they are.

EXAMPLES:

  aiform import backup.json
  aiform import backup.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := args[0]

		raw, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		format := importFormat
		if format == "" {
			format = strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
		}
		data, err := storage.ParseExport(raw, format)
		if err != nil {
			return err
		}

		if err := repo.ImportData(cmd.Context(), data); err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ Imported %d sessions and %d days from %s\n",
			len(data.Sessions), len(data.DailySummaries), filename)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "only include data since date (YYYY-MM-DD, markdown only)")
	importCmd.Flags().StringVar(&importFormat, "format", "", "json or yaml (default: from extension)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
