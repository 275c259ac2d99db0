// ABOUTME: CLI command for running a guided workout interactively.
// ABOUTME: Reads one line per prompt and drives the guided engine until the session ends.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/aiform/internal/guided"
	"github.com/harperreed/aiform/internal/plan"
)

var trainCmd = &cobra.Command{
	Use:   "train <plan-file>",
	Short: "Run a guided workout from a plan file",
	Long: `Run a guided workout from a JSON or YAML plan file.

FLOW:

  For each set aiform shows the target. Press Enter when the set is done,
  then type an optional note. The note may start with actuals:

    reps=7 kg=57.5 last rep was a grind

  The rest countdown then starts. Press Enter to skip it. Type q at a set
  prompt to finish early; sets already logged are kept.

EXAMPLES:

  aiform train today.json
  aiform train legs.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := plan.LoadFile(args[0])
		if err != nil {
			return err
		}

		updates := make(chan guided.Snapshot, 256)
		eng := guided.NewEngine(repo, prefStore,
			guided.WithLogger(logger),
			guided.WithObserver(func(s guided.Snapshot) {
				select {
				case updates <- s:
				default:
				}
			}),
		)
		eng.Start()
		defer eng.Stop()

		return runGuided(cmd.Context(), eng, &payload.DayPlan, updates, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// runGuided starts a session for p and prompts on out until it ends.
// updates must receive every snapshot the engine publishes.
func runGuided(ctx context.Context, eng *guided.Engine, p *plan.DayPlan, updates <-chan guided.Snapshot, in io.Reader, out io.Writer) error {
	start, err := eng.StartSession(ctx, p)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	bold := color.New(color.Bold)
	faint := color.New(color.Faint)
	bold.Fprintf(out, "%s\n", p.Workout.Title)
	faint.Fprintf(out, "session %s, %d sets\n\n", start.SessionID.String()[:8], p.Workout.TotalSets())

	lines := readLines(in)
	logged := 0

	for {
		snap, err := eng.State(ctx)
		if err != nil {
			return err
		}

		switch st := snap.State.(type) {
		case guided.Idle, guided.Finished:
			color.New(color.FgGreen).Fprintf(out, "✓ Session complete: %d sets logged\n", logged)
			return nil

		case guided.InSet:
			ex, _ := snap.Exercise()
			target, _ := snap.Target()
			fmt.Fprintf(out, "%s set %d/%d: %d reps @ %.1f kg  [Enter done, q finish] ",
				ex.Name, st.SetIdx+1, len(ex.Sets), target.TargetReps, target.TargetWeightKg)

			line, ok, err := nextLine(ctx, lines)
			if err != nil {
				return err
			}
			if !ok || strings.EqualFold(strings.TrimSpace(line), "q") {
				if _, err := eng.Finish(ctx); err != nil {
					return fmt.Errorf("failed to finish session: %w", err)
				}
				continue
			}
			if _, err := eng.MarkSetDone(ctx); err != nil {
				return err
			}

		case guided.AwaitingObservation:
			fmt.Fprint(out, "  note: ")
			line, ok, err := nextLine(ctx, lines)
			if err != nil {
				return err
			}
			note, actuals := parseObservation(line)
			snap, err := eng.SubmitObservation(ctx, note, actuals)
			if err != nil {
				if _, saved := snap.State.(guided.Resting); !saved {
					if !ok {
						return fmt.Errorf("failed to save set: %w", err)
					}
					color.New(color.FgRed).Fprintf(out, "  ✗ could not save set: %v\n", err)
					continue
				}
				// The set is stored; only moving past it failed.
				color.New(color.FgRed).Fprintf(out, "  ✗ could not finish session: %v\n", err)
			}
			logged++

		case guided.Resting:
			if err := waitRest(ctx, eng, updates, lines, out); err != nil {
				return err
			}
		}
	}
}

// waitRest shows the countdown until the engine leaves Resting or the user
// skips with Enter.
func waitRest(ctx context.Context, eng *guided.Engine, updates <-chan guided.Snapshot, lines <-chan string, out io.Writer) error {
	drain(updates)
	snap, err := eng.State(ctx)
	if err != nil {
		return err
	}
	st, ok := snap.State.(guided.Resting)
	if !ok {
		return nil
	}
	if st.RemainingSec == 0 {
		// The countdown ended but the next step could not be saved.
		fmt.Fprint(out, "  press Enter to retry saving ")
		if _, _, err := nextLine(ctx, lines); err != nil {
			return err
		}
		_, err := eng.SkipRest(ctx)
		return err
	}
	fmt.Fprintf(out, "  rest %3ds [Enter skip]", st.RemainingSec)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case _, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if _, err := eng.SkipRest(ctx); err != nil && !errors.Is(err, guided.ErrInvalidTransition) {
				return err
			}
			fmt.Fprintln(out)
			return nil

		case u := <-updates:
			r, resting := u.State.(guided.Resting)
			if !resting {
				fmt.Fprintln(out)
				return nil
			}
			if u.Err != nil {
				color.New(color.FgRed).Fprintf(out, "\n  ✗ %v\n", u.Err)
				return nil
			}
			if r.RemainingSec == 0 {
				fmt.Fprint(out, "\r  rest done             \a")
				continue
			}
			fmt.Fprintf(out, "\r  rest %3ds [Enter skip]", r.RemainingSec)
		}
	}
}

func drain(ch <-chan guided.Snapshot) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// nextLine returns the next input line; ok is false at end of input.
func nextLine(ctx context.Context, lines <-chan string) (string, bool, error) {
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case line, ok := <-lines:
		return line, ok, nil
	}
}

// parseObservation splits leading reps=N and kg=X tokens from the note text.
func parseObservation(line string) (string, guided.Actuals) {
	var actuals guided.Actuals
	fields := strings.Fields(line)
	i := 0
	for ; i < len(fields); i++ {
		key, value, found := strings.Cut(fields[i], "=")
		if !found {
			break
		}
		switch strings.ToLower(key) {
		case "reps":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return strings.Join(fields[i:], " "), actuals
			}
			actuals.Reps = &n
		case "kg":
			w, err := strconv.ParseFloat(value, 64)
			if err != nil || w < 0 {
				return strings.Join(fields[i:], " "), actuals
			}
			actuals.WeightKg = &w
		default:
			return strings.Join(fields[i:], " "), actuals
		}
	}
	return strings.Join(fields[i:], " "), actuals
}

func init() {
	rootCmd.AddCommand(trainCmd)
}
