// ABOUTME: CLI commands for Charm-synced preferences.
// ABOUTME: Supports link, unlink, status, repair, reset, and wipe operations.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/charm/kv"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/aiform/internal/charm"
	"github.com/harperreed/aiform/internal/prefs"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync preferences across devices",
	Long: `Sync preferences (selected time zone, last opened day) across devices
using Charm Cloud. Workout history stays in the SQL backend.

Your data is E2E encrypted with your SSH key before upload.

GETTING STARTED:

  1. Use Charm for preferences:
     export AIFORM_PREFERENCES=charm

  2. Link your device (creates/uses SSH key automatically):
     aiform sync link

  3. Check sync status:
     aiform sync status

COMMANDS:

  link        Link this device to your Charm account
  unlink      Disconnect this device from Charm
  status      Show sync status and synced preferences
  repair      Repair database corruption (checkpoints WAL, removes SHM, vacuums)
  reset       Reset local preferences and restore from cloud (destructive)
  wipe        Delete cloud and local preferences (destructive)`,
	Annotations: map[string]string{skipSetupAnnotation: "true"},
}

var syncLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link this device to Charm",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runCharm(cmd, "link"); err != nil {
			return fmt.Errorf("failed to link: %w\n\nMake sure 'charm' CLI is installed: go install github.com/charmbracelet/charm@latest", err)
		}

		out := cmd.OutOrStdout()
		color.New(color.FgGreen).Fprintln(out, "\n✓ Device linked to Charm")

		c, err := charm.Open()
		if err != nil {
			color.New(color.FgYellow).Fprintf(out, "⚠ Initial sync skipped: %v\n", err)
			return nil
		}
		defer c.Close()
		if err := c.Sync(); err != nil {
			color.New(color.FgYellow).Fprintf(out, "⚠ Initial sync failed: %v\n", err)
		} else {
			color.New(color.FgGreen).Fprintln(out, "✓ Initial sync complete")
		}
		return nil
	},
}

var syncUnlinkCmd = &cobra.Command{
	Use:   "unlink",
	Short: "Disconnect from Charm",
	Long: `Disconnect this device from Charm.

Local preferences and workout history are preserved.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runCharm(cmd, "unlink"); err != nil {
			return fmt.Errorf("failed to unlink: %w", err)
		}
		color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "✓ Device unlinked from Charm")
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		yellow := color.New(color.FgYellow)

		c, err := charm.Open()
		if err != nil {
			yellow.Fprintf(out, "Charm preferences unavailable: %v\n", err)
			return nil
		}
		defer c.Close()

		id, err := c.ID()
		if err != nil {
			yellow.Fprintln(out, "Not linked to Charm")
			fmt.Fprintln(out, "\nRun 'aiform sync link' to connect to Charm.")
			return nil
		}

		fmt.Fprintln(out, "Charm ID:", id)
		if c.IsReadOnly() {
			yellow.Fprintln(out, "Read-only: another aiform process holds the lock")
		}
		fmt.Fprintln(out)

		ctx := cmd.Context()
		color.New(color.FgGreen).Fprintln(out, "✓ Connected to Charm")
		for _, key := range []string{prefs.KeySelectedTimezone, prefs.KeyLastOpenedDayKey} {
			v, ok, err := c.Get(ctx, key)
			if err != nil {
				return err
			}
			if !ok {
				v = "(unset)"
			}
			fmt.Fprintf(out, "  %s %s\n", padRight(key+":", 22), v)
		}
		return nil
	},
}

var syncRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Repair database corruption",
	Long: `Repair the local Charm database by checkpointing WAL, removing SHM files,
checking integrity, and vacuuming.

Run with --force to attempt recovery even if integrity checks fail.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		out := cmd.OutOrStdout()
		green := color.New(color.FgGreen)

		fmt.Fprintln(out, "Repairing preferences database...")
		result, err := kv.Repair(charm.DBName, force)
		if result.WalCheckpointed {
			green.Fprintln(out, "  ✓ WAL checkpointed")
		}
		if result.ShmRemoved {
			green.Fprintln(out, "  ✓ SHM file removed")
		}
		if result.IntegrityOK {
			green.Fprintln(out, "  ✓ Integrity check passed")
		} else {
			color.New(color.FgRed).Fprintln(out, "  ✗ Integrity check failed")
		}
		if result.Vacuumed {
			green.Fprintln(out, "  ✓ Database vacuumed")
		}

		if err != nil {
			if !force {
				color.New(color.FgYellow).Fprintln(out, "\nRun with --force to attempt recovery.")
			}
			return fmt.Errorf("repair failed: %w", err)
		}

		green.Fprintln(out, "\n✓ Repair complete")
		return nil
	},
}

var syncResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset local preferences and restore from cloud",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm(cmd, "This will DELETE local preferences and restore them from cloud.\nContinue? [y/N]: ", "y", "Y") {
			return nil
		}

		c, err := charm.Open()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.Reset(); err != nil {
			return fmt.Errorf("reset failed: %w", err)
		}
		color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "✓ Local preferences reset and restored from cloud")
		return nil
	},
}

var syncWipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete all cloud and local preferences",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm(cmd, "This will PERMANENTLY DELETE all cloud backups and local preferences.\nType 'wipe' to confirm: ", "wipe") {
			return nil
		}

		result, err := kv.Wipe(charm.DBName)
		if err != nil {
			return fmt.Errorf("wipe failed: %w", err)
		}

		out := cmd.OutOrStdout()
		color.New(color.FgGreen).Fprintln(out, "✓ Preferences wiped")
		fmt.Fprintf(out, "  Cloud backups deleted: %d\n", result.CloudBackupsDeleted)
		fmt.Fprintf(out, "  Local files deleted: %d\n", result.LocalFilesDeleted)
		return nil
	},
}

func runCharm(cmd *cobra.Command, sub string) error {
	c := exec.CommandContext(cmd.Context(), "charm", sub)
	c.Stdin = os.Stdin
	c.Stdout = cmd.OutOrStdout()
	c.Stderr = cmd.ErrOrStderr()
	return c.Run()
}

// confirm prompts on the command's output and reads one line of input.
func confirm(cmd *cobra.Command, prompt string, accept ...string) bool {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, prompt)

	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	answer := strings.TrimSpace(line)
	for _, a := range accept {
		if answer == a {
			return true
		}
	}
	fmt.Fprintln(out, "Canceled.")
	return false
}

func init() {
	syncRepairCmd.Flags().Bool("force", false, "Attempt recovery even if integrity checks fail")

	syncCmd.AddCommand(syncLinkCmd)
	syncCmd.AddCommand(syncUnlinkCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncRepairCmd)
	syncCmd.AddCommand(syncResetCmd)
	syncCmd.AddCommand(syncWipeCmd)
	rootCmd.AddCommand(syncCmd)
}
