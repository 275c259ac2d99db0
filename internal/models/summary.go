// ABOUTME: DailySummary ledger rows and close reasons.
// ABOUTME: One row per closed calendar day, keyed by day key.
package models

import "time"

// CloseReason records why a day was closed.
type CloseReason string

const (
	CloseAutoRollover CloseReason = "auto_day_rollover"
	CloseManual       CloseReason = "manual"
)

// IsValid reports whether r is a known reason.
func (r CloseReason) IsValid() bool {
	switch r {
	case CloseAutoRollover, CloseManual:
		return true
	}
	return false
}

// DailySummary is the closure record for one calendar day.
type DailySummary struct {
	DayKey            string      `json:"day_key" yaml:"day_key"`
	TimezoneID        string      `json:"timezone_id" yaml:"timezone_id"`
	TrainingCompleted bool        `json:"training_completed" yaml:"training_completed"`
	PlansCompleted    *int        `json:"plans_completed,omitempty" yaml:"plans_completed,omitempty"`
	Calories          *int        `json:"calories,omitempty" yaml:"calories,omitempty"`
	WeightKg          *float64    `json:"weight_kg,omitempty" yaml:"weight_kg,omitempty"`
	CreatedAt         time.Time   `json:"created_at" yaml:"created_at"`
	CloseReason       CloseReason `json:"close_reason" yaml:"close_reason"`
}

// NewDailySummary creates a summary for dayKey closed at now.
func NewDailySummary(dayKey, timezoneID string, reason CloseReason, now time.Time) *DailySummary {
	return &DailySummary{
		DayKey:      dayKey,
		TimezoneID:  timezoneID,
		CreatedAt:   now.UTC(),
		CloseReason: reason,
	}
}

// WithCalories sets the day's calorie total.
func (d *DailySummary) WithCalories(kcal int) *DailySummary {
	d.Calories = &kcal
	return d
}

// WithWeight sets the day's body weight.
func (d *DailySummary) WithWeight(kg float64) *DailySummary {
	d.WeightKg = &kg
	return d
}
