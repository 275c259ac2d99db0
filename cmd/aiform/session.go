// ABOUTME: CLI commands for browsing logged sessions.
// ABOUTME: Supports list, show, and delete subcommands.
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var sessionLimit int

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"s", "sessions"},
	Short:   "Browse logged sessions",
	Long: `Browse workout sessions and the sets logged in them.

The ID column shows an 8-character prefix you can pass to show and delete.

COMMANDS:

  list     List recent sessions
  show     Show a session with its sets and notes
  delete   Delete a session and everything logged in it`,
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "l"},
	Short:   "List recent sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := repo.ListSessions(cmd.Context(), sessionLimit)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}

		faint := color.New(color.Faint)
		now := time.Now()
		for _, s := range sessions {
			status := faint.Sprint(s.Duration(now).Round(time.Minute).String())
			if s.Active() {
				status = color.New(color.FgYellow).Sprint("open")
			}
			fmt.Fprintf(out, "%s %s %s %s\n",
				faint.Sprint(s.ID.String()[:8]),
				s.DayKey,
				padRight(truncate(s.Title, 28), 28),
				status)
		}
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session with its sets and notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := repo.GetSession(ctx, args[0])
		if err != nil {
			return fmt.Errorf("session not found: %s", args[0])
		}
		logs, err := repo.SetLogsBySession(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("failed to load sets: %w", err)
		}
		obs, err := repo.ObservationsBySession(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("failed to load notes: %w", err)
		}

		out := cmd.OutOrStdout()
		faint := color.New(color.Faint)
		color.New(color.Bold).Fprintf(out, "%s\n", s.Title)
		fmt.Fprintf(out, "  %s %s\n", faint.Sprint("ID:"), s.ID)
		fmt.Fprintf(out, "  %s %s (%s)\n", faint.Sprint("Day:"), s.DayKey, s.TimezoneID)
		fmt.Fprintf(out, "  %s %s\n", faint.Sprint("Started:"), s.StartedAt.Local().Format("2006-01-02 15:04"))
		if s.EndedAt != nil {
			fmt.Fprintf(out, "  %s %s\n", faint.Sprint("Ended:"), s.EndedAt.Local().Format("2006-01-02 15:04"))
		}

		notes := make(map[string]string, len(obs))
		for _, o := range obs {
			notes[fmt.Sprintf("%s/%d", o.ExerciseID, o.SetIndex)] = o.Text
		}

		if len(logs) == 0 {
			fmt.Fprintln(out, "\nNo sets logged.")
			return nil
		}
		fmt.Fprintln(out, "\nSets:")
		for _, l := range logs {
			actual := ""
			if l.ActualReps != nil {
				actual += fmt.Sprintf(" did %d", *l.ActualReps)
			}
			if l.ActualWeightKg != nil {
				actual += fmt.Sprintf(" @ %g kg", *l.ActualWeightKg)
			}
			fmt.Fprintf(out, "  %s #%d  %d × %g kg%s\n",
				padRight(l.ExerciseName, 20), l.SetIndex+1, l.TargetReps, l.TargetWeightKg, actual)
			if note := notes[fmt.Sprintf("%s/%d", l.ExerciseID, l.SetIndex)]; note != "" {
				faint.Fprintf(out, "      %s\n", note)
			}
		}
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"del", "rm"},
	Short:   "Delete a session",
	Long: `Delete a session and its set logs and notes.

CAUTION:

  This permanently deletes the session. There is no undo.
  If the prefix matches multiple sessions, an error is returned.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := repo.GetSession(ctx, args[0])
		if err != nil {
			return fmt.Errorf("session not found: %s", args[0])
		}
		if err := repo.DeleteSession(ctx, s.ID.String()); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}

		color.New(color.FgYellow).Fprintf(cmd.OutOrStdout(), "✗ Deleted %s (%s)\n", s.Title, s.ID.String()[:8])
		return nil
	},
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}

func init() {
	sessionListCmd.Flags().IntVarP(&sessionLimit, "limit", "n", 20, "max number of results")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	rootCmd.AddCommand(sessionCmd)
}
