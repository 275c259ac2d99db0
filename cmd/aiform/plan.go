// ABOUTME: CLI command for checking plan files.
// ABOUTME: Validates a payload and prints the workout it describes.
package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/aiform/internal/plan"
)

var planCmd = &cobra.Command{
	Use:         "plan",
	Short:       "Work with plan files",
	Annotations: map[string]string{skipSetupAnnotation: "true"},
}

var planValidateCmd = &cobra.Command{
	Use:   "validate <plan-file>",
	Short: "Validate a plan file and show its workout",
	Long: `Validate a JSON or YAML plan payload.

A valid plan has schemaVersion 1, at least one exercise, unique exercise
ids, at least one set per exercise, and no negative rest or targets. If
dayPlan.timezoneId is present it must be a known IANA zone.

EXAMPLES:

  aiform plan validate today.json
  aiform plan validate legs.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := plan.LoadFile(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		faint := color.New(color.Faint)
		w := p.DayPlan.Workout

		color.New(color.FgGreen).Fprintf(out, "✓ Valid plan: %s\n", w.Title)
		if p.DayPlan.Date != "" {
			faint.Fprintf(out, "  date %s %s\n", p.DayPlan.Date, p.DayPlan.TimezoneID)
		}
		for _, ex := range w.Exercises {
			fmt.Fprintf(out, "  %s %d sets, rest %ds\n", padRight(ex.Name, 24), len(ex.Sets), ex.RestBetweenSetsSec)
			for i, set := range ex.Sets {
				faint.Fprintf(out, "    %d. %d × %g kg\n", i+1, set.TargetReps, set.TargetWeightKg)
			}
		}
		fmt.Fprintf(out, "  total %d sets\n", w.TotalSets())
		return nil
	},
}

func init() {
	planCmd.AddCommand(planValidateCmd)
	rootCmd.AddCommand(planCmd)
}
