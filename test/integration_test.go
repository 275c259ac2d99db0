// ABOUTME: Integration tests for the aiform CLI.
// ABOUTME: Builds the binary and drives a guided session and the day ledger end to end.
package test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

const planJSON = `{
  "schemaVersion": 1,
  "dayPlan": {
    "workout": {
      "title": "Legs",
      "exercises": [
        {"id": "squat", "name": "Back squat", "restBetweenSetsSec": 0,
         "sets": [{"targetReps": 5, "targetWeightKg": 100}, {"targetReps": 5, "targetWeightKg": 100}]}
      ]
    }
  }
}`

func TestFullWorkflow(t *testing.T) {
	projectRoot, _ := filepath.Abs("..")
	binary := filepath.Join(t.TempDir(), "aiform")

	buildCmd := exec.Command("go", "build", "-o", binary, "./cmd/aiform")
	buildCmd.Dir = projectRoot
	if output, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build: %v\n%s", err, output)
	}

	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, "data")
	planPath := filepath.Join(tmpDir, "legs.json")
	if err := os.WriteFile(planPath, []byte(planJSON), 0600); err != nil {
		t.Fatal(err)
	}

	run := func(stdin string, args ...string) (string, error) {
		fullArgs := append([]string{"--data-dir", dataDir}, args...)
		cmd := exec.Command(binary, fullArgs...)
		cmd.Dir = tmpDir
		cmd.Env = append(os.Environ(), "XDG_CONFIG_HOME="+filepath.Join(tmpDir, "config"), "AIFORM_PREFERENCES=badger")
		cmd.Stdin = strings.NewReader(stdin)
		output, err := cmd.CombinedOutput()
		return string(output), err
	}

	output, err := run("", "timezone", "set", "UTC")
	if err != nil {
		t.Fatalf("Failed to set timezone: %v\n%s", err, output)
	}

	output, err = run("", "plan", "validate", planPath)
	if err != nil {
		t.Fatalf("Failed to validate plan: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Valid plan: Legs") {
		t.Errorf("Expected 'Valid plan: Legs' in output, got: %s", output)
	}

	output, err = run("\nreps=5 kg=100 easy\n\nfive, grindy\n", "train", planPath)
	if err != nil {
		t.Fatalf("Failed to train: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Session complete: 2 sets logged") {
		t.Errorf("Expected completed session in output, got: %s", output)
	}

	output, err = run("", "session", "list")
	if err != nil {
		t.Fatalf("Failed to list sessions: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Legs") {
		t.Errorf("Expected 'Legs' in session list, got: %s", output)
	}

	output, err = run("", "day", "close", "--calories", "2600")
	if err != nil {
		t.Fatalf("Failed to close day: %v\n%s", err, output)
	}

	output, err = run("", "day", "list")
	if err != nil {
		t.Fatalf("Failed to list days: %v\n%s", err, output)
	}
	if !strings.Contains(output, "trained") || !strings.Contains(output, "kcal=2600") {
		t.Errorf("Expected trained day with calories, got: %s", output)
	}

	output, err = run("", "export", "markdown")
	if err != nil {
		t.Fatalf("Failed to export: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Back squat") {
		t.Errorf("Expected 'Back squat' in export, got: %s", output)
	}
}
