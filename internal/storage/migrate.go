// ABOUTME: Data migration between storage backends.
// ABOUTME: Copies sessions, set logs, observations, and day summaries from source to destination.

package storage

import (
	"context"
	"fmt"
	"os"
)

// MigrateSummary holds counts of migrated entities.
type MigrateSummary struct {
	Sessions       int
	SetLogs        int
	Observations   int
	DailySummaries int
}

// MigrateData copies all data from src to dst storage in a single import.
// The destination should be empty before calling this function.
func MigrateData(ctx context.Context, src, dst Repository) (*MigrateSummary, error) {
	data, err := src.GetAllData(ctx)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	if err := dst.ImportData(ctx, data); err != nil {
		return nil, fmt.Errorf("write destination: %w", err)
	}

	summary := &MigrateSummary{
		Sessions:       len(data.Sessions),
		DailySummaries: len(data.DailySummaries),
	}
	for _, s := range data.Sessions {
		summary.SetLogs += len(s.SetLogs)
		summary.Observations += len(s.Observations)
	}
	return summary, nil
}

// IsDirNonEmpty checks whether a directory exists and contains any files or subdirectories.
// Returns false if the directory does not exist or is empty.
func IsDirNonEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read directory %q: %w", path, err)
	}
	return len(entries) > 0, nil
}
