// ABOUTME: Export and import functionality for workout history.
// ABOUTME: Supports JSON, YAML, and Markdown export formats.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harperreed/aiform/internal/models"
)

// ExportVersion is written into every export.
const ExportVersion = "1.0"

// ExportData represents the full export format.
type ExportData struct {
	Version        string                 `json:"version" yaml:"version"`
	ExportedAt     time.Time              `json:"exported_at" yaml:"exported_at"`
	Tool           string                 `json:"tool" yaml:"tool"`
	Sessions       []*models.Session      `json:"sessions" yaml:"sessions"`
	DailySummaries []*models.DailySummary `json:"daily_summaries" yaml:"daily_summaries"`
}

// collectExport gathers sessions with their children plus the day ledger.
func collectExport(ctx context.Context, r Repository) (*ExportData, error) {
	sessions, err := r.ListSessions(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	for _, s := range sessions {
		logs, err := r.SetLogsBySession(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("list set logs: %w", err)
		}
		for _, l := range logs {
			s.SetLogs = append(s.SetLogs, *l)
		}

		obs, err := r.ObservationsBySession(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("list observations: %w", err)
		}
		for _, o := range obs {
			s.Observations = append(s.Observations, *o)
		}
	}

	summaries, err := r.ListDailySummaries(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list daily summaries: %w", err)
	}

	return &ExportData{
		Version:        ExportVersion,
		ExportedAt:     time.Now().UTC(),
		Tool:           "aiform",
		Sessions:       sessions,
		DailySummaries: summaries,
	}, nil
}

// GetAllData retrieves all data for export.
func (d *DB) GetAllData(ctx context.Context) (*ExportData, error) {
	return collectExport(ctx, d)
}

// ImportData imports an export in one transaction. Existing ids conflict.
func (d *DB) ImportData(ctx context.Context, data *ExportData) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range data.Sessions {
		if err := d.insertSession(ctx, tx, s); err != nil {
			return fmt.Errorf("import session %s: %w", s.ID, err)
		}
		for i := range s.SetLogs {
			l := s.SetLogs[i]
			l.SessionID = s.ID
			if err := insertSetLog(ctx, tx, &l); err != nil {
				return fmt.Errorf("import set log %s: %w", l.ID, err)
			}
		}
		for i := range s.Observations {
			o := s.Observations[i]
			o.SessionID = s.ID
			if err := insertObservation(ctx, tx, &o); err != nil {
				return fmt.Errorf("import observation %s: %w", o.ID, err)
			}
		}
	}

	for _, sum := range data.DailySummaries {
		if err := insertSummary(ctx, tx, sum); err != nil {
			return fmt.Errorf("import daily summary %s: %w", sum.DayKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

func insertSummary(ctx context.Context, tx *sql.Tx, s *models.DailySummary) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO daily_summaries (`+summaryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(day_key) DO NOTHING
	`,
		s.DayKey,
		s.TimezoneID,
		s.TrainingCompleted,
		s.PlansCompleted,
		s.Calories,
		s.WeightKg,
		formatTime(s.CreatedAt),
		string(s.CloseReason),
	)
	return err
}

// JSON encodes the export with indentation.
func (e *ExportData) JSON() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

// YAML encodes the export as YAML.
func (e *ExportData) YAML() ([]byte, error) {
	return yaml.Marshal(e)
}

// Markdown renders the export as one table per session plus the day ledger.
func (e *ExportData) Markdown(since *time.Time) string {
	var b strings.Builder
	b.WriteString("# Workout History\n\n")
	b.WriteString(fmt.Sprintf("Exported: %s\n\n", e.ExportedAt.Format("2006-01-02 15:04")))

	if len(e.DailySummaries) > 0 {
		b.WriteString("## Days\n\n")
		b.WriteString("| Day | Zone | Trained | Sessions | Reason |\n")
		b.WriteString("|-----|------|---------|----------|--------|\n")
		for _, d := range e.DailySummaries {
			if since != nil && d.CreatedAt.Before(*since) {
				continue
			}
			plans := "-"
			if d.PlansCompleted != nil {
				plans = fmt.Sprintf("%d", *d.PlansCompleted)
			}
			trained := "no"
			if d.TrainingCompleted {
				trained = "yes"
			}
			b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				d.DayKey, d.TimezoneID, trained, plans, d.CloseReason))
		}
		b.WriteString("\n")
	}

	for _, s := range e.Sessions {
		if since != nil && s.StartedAt.Before(*since) {
			continue
		}
		b.WriteString(fmt.Sprintf("## %s (%s)\n\n", s.Title, s.DayKey))
		if len(s.SetLogs) == 0 {
			b.WriteString("No sets logged.\n\n")
			continue
		}

		notes := make(map[string]string, len(s.Observations))
		for _, o := range s.Observations {
			notes[fmt.Sprintf("%s/%d", o.ExerciseID, o.SetIndex)] = o.Text
		}

		b.WriteString("| Exercise | Set | Target | Actual | Note |\n")
		b.WriteString("|----------|-----|--------|--------|------|\n")
		for _, l := range s.SetLogs {
			actual := "-"
			if l.ActualReps != nil || l.ActualWeightKg != nil {
				actual = formatLoad(l.ActualReps, l.ActualWeightKg)
			}
			target := formatLoad(&l.TargetReps, &l.TargetWeightKg)
			note := notes[fmt.Sprintf("%s/%d", l.ExerciseID, l.SetIndex)]
			b.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s |\n",
				l.ExerciseName, l.SetIndex+1, target, actual, note))
		}
		b.WriteString("\n")
	}

	return b.String()
}

func formatLoad(reps *int, kg *float64) string {
	r, w := "?", "?"
	if reps != nil {
		r = fmt.Sprintf("%d", *reps)
	}
	if kg != nil {
		w = fmt.Sprintf("%g kg", *kg)
	}
	return r + " × " + w
}

// ParseExport decodes an export produced by JSON or YAML.
func ParseExport(data []byte, format string) (*ExportData, error) {
	var out ExportData
	switch format {
	case "json":
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parse json export: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("parse yaml export: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown export format: %q", format)
	}
	return &out, nil
}
