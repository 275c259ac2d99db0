// ABOUTME: CLI commands for the day ledger.
// ABOUTME: Supports close, status, list, and key subcommands.
package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/aiform/internal/models"
	"github.com/harperreed/aiform/internal/rollover"
	"github.com/harperreed/aiform/internal/storage"
	"github.com/harperreed/aiform/internal/zone"
)

var (
	dayCalories int
	dayWeightKg float64
	dayLimit    int
	dayAt       string
	dayTZ       string
)

var dayCmd = &cobra.Command{
	Use:     "day",
	Aliases: []string{"d"},
	Short:   "Manage the day ledger",
	Long: `The day ledger holds one summary per calendar day.

A day closes automatically the first time aiform runs on a later day, with
reason auto_day_rollover. You can also close today yourself with totals.
A day closes at most once; later closes report that it was already closed.

COMMANDS:

  close    Close today with optional calories and weight
  status   Show whether a day is closed
  list     List recent summaries
  key      Show the day key for an instant and zone`,
}

var dayCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close today",
	Long: `Close today in the selected time zone with reason manual.

Examples:
  aiform day close
  aiform day close --calories 2400 --weight 81.2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var mc rollover.ManualClose
		if cmd.Flags().Changed("calories") {
			mc.Calories = &dayCalories
		}
		if cmd.Flags().Changed("weight") {
			mc.WeightKg = &dayWeightKg
		}

		key, created, err := rollover.New(prefStore, repo, rollover.WithLogger(logger)).CloseToday(cmd.Context(), mc)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !created {
			color.New(color.FgYellow).Fprintf(out, "%s was already closed\n", key)
			return nil
		}
		color.New(color.FgGreen).Fprintf(out, "✓ Closed %s\n", key)
		return nil
	},
}

var dayStatusCmd = &cobra.Command{
	Use:   "status [day-key]",
	Short: "Show whether a day is closed",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var key string
		if len(args) == 1 {
			if _, err := zone.ParseDayKey(args[0]); err != nil {
				return err
			}
			key = args[0]
		} else {
			tz, err := prefStore.SelectedTimezone(ctx)
			if err != nil {
				return err
			}
			if key, err = zone.DayKey(time.Now(), tz); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		d, err := repo.GetDailySummary(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Fprintf(out, "%s is open\n", key)
			return nil
		}
		if err != nil {
			return err
		}
		printSummary(cmd, d)
		return nil
	},
}

var dayListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recent day summaries",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, err := repo.ListDailySummaries(cmd.Context(), dayLimit)
		if err != nil {
			return fmt.Errorf("failed to list days: %w", err)
		}
		if len(days) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No closed days.")
			return nil
		}
		for _, d := range days {
			printSummary(cmd, d)
		}
		return nil
	},
}

var dayKeyCmd = &cobra.Command{
	Use:   "key",
	Short: "Show the day key for an instant",
	Long: `Show the calendar day an instant falls on in a time zone.

Examples:
  aiform day key
  aiform day key --at 2026-02-10T05:30:00Z --tz Asia/Tokyo`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		instant := time.Now()
		if dayAt != "" {
			t, err := parseTime(dayAt)
			if err != nil {
				return fmt.Errorf("invalid timestamp: %s", dayAt)
			}
			instant = t
		}

		tz := dayTZ
		if tz == "" {
			var err error
			if tz, err = prefStore.SelectedTimezone(cmd.Context()); err != nil {
				return err
			}
		}

		key, err := zone.DayKey(instant, tz)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", key, tz)
		return nil
	},
}

func printSummary(cmd *cobra.Command, d *models.DailySummary) {
	out := cmd.OutOrStdout()
	faint := color.New(color.Faint)

	trained := color.New(color.FgYellow).Sprint("rest day")
	if d.TrainingCompleted {
		trained = color.New(color.FgGreen).Sprint("trained ")
	}
	extra := ""
	if d.PlansCompleted != nil {
		extra += fmt.Sprintf(" sessions=%d", *d.PlansCompleted)
	}
	if d.Calories != nil {
		extra += fmt.Sprintf(" kcal=%d", *d.Calories)
	}
	if d.WeightKg != nil {
		extra += fmt.Sprintf(" weight=%gkg", *d.WeightKg)
	}
	fmt.Fprintf(out, "%s %s %s%s\n",
		d.DayKey,
		trained,
		faint.Sprint(padRight(string(d.CloseReason), 18)+" "+d.TimezoneID),
		extra)
}

// parseTime accepts the timestamp formats used by CLI flags.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"2006-01-02",
		time.RFC3339,
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format")
}

func init() {
	dayCloseCmd.Flags().IntVar(&dayCalories, "calories", 0, "calories eaten today")
	dayCloseCmd.Flags().Float64Var(&dayWeightKg, "weight", 0, "body weight in kg")
	dayListCmd.Flags().IntVarP(&dayLimit, "limit", "n", 30, "max number of results")
	dayKeyCmd.Flags().StringVar(&dayAt, "at", "", "instant (RFC3339 or YYYY-MM-DD HH:MM, UTC)")
	dayKeyCmd.Flags().StringVar(&dayTZ, "tz", "", "IANA zone (default: selected zone)")

	dayCmd.AddCommand(dayCloseCmd)
	dayCmd.AddCommand(dayStatusCmd)
	dayCmd.AddCommand(dayListCmd)
	dayCmd.AddCommand(dayKeyCmd)
	rootCmd.AddCommand(dayCmd)
}
