// ABOUTME: CLI commands for the selected time zone.
// ABOUTME: Supports show, set, and list subcommands.
package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/aiform/internal/zone"
)

var timezoneCmd = &cobra.Command{
	Use:     "timezone",
	Aliases: []string{"tz"},
	Short:   "Show or change the time zone that defines today",
	Long: `The selected time zone decides which calendar day a session belongs to
and when a day rolls over. It defaults to the host zone.

Changing the zone affects future sessions only. Sessions already logged keep
the day key and zone they were stamped with.`,
}

var timezoneShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the selected zone and today's day key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tz, err := prefStore.SelectedTimezone(cmd.Context())
		if err != nil {
			return err
		}
		key, err := zone.DayKey(time.Now(), tz)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (today is %s)\n", tz, key)
		return nil
	},
}

var timezoneSetCmd = &cobra.Command{
	Use:   "set <zone>",
	Short: "Select an IANA time zone",
	Long: `Select an IANA time zone such as Europe/Madrid or America/Mexico_City.

Examples:
  aiform timezone set Europe/Madrid
  aiform tz set UTC`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := prefStore.SetSelectedTimezone(cmd.Context(), args[0]); err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ Time zone set to %s\n", args[0])
		return nil
	},
}

var timezoneListCmd = &cobra.Command{
	Use:         "list",
	Short:       "List common zones",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipSetupAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		for _, id := range zone.Common {
			key, err := zone.DayKey(now, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", padRight(id, 24), color.New(color.Faint).Sprint(key))
		}
		return nil
	},
}

func init() {
	timezoneCmd.AddCommand(timezoneShowCmd)
	timezoneCmd.AddCommand(timezoneSetCmd)
	timezoneCmd.AddCommand(timezoneListCmd)
	rootCmd.AddCommand(timezoneCmd)
}
