// ABOUTME: Day rollover coordinator run once at process start.
// ABOUTME: Closes the last observed day when the calendar date has moved on.
package rollover

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/harperreed/aiform/internal/models"
	"github.com/harperreed/aiform/internal/zone"
)

// Preferences is the subset of the preference store the coordinator needs.
type Preferences interface {
	SelectedTimezone(ctx context.Context) (string, error)
	LastOpenedDayKey(ctx context.Context) (string, bool, error)
	SetLastOpenedDayKey(ctx context.Context, key string) error
}

// DayCloser writes day summaries.
type DayCloser interface {
	CloseDayIfOpen(ctx context.Context, dayKey, timezoneID string, reason models.CloseReason, now time.Time) (bool, error)
	CloseDay(ctx context.Context, summary *models.DailySummary) (bool, error)
}

// Result describes what a start-up pass did.
type Result struct {
	CurrentDayKey  string
	PreviousDayKey string
	// Closed is true when this pass created the previous day's summary.
	Closed bool
}

// Coordinator detects day changes between process starts.
type Coordinator struct {
	prefs Preferences
	days  DayCloser
	clock clockwork.Clock
	log   zerolog.Logger

	mu sync.Mutex
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock used by Run and CloseToday.
func WithClock(c clockwork.Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(co *Coordinator) { co.log = l }
}

// New creates a Coordinator.
func New(prefs Preferences, days DayCloser, opts ...Option) *Coordinator {
	c := &Coordinator{
		prefs: prefs,
		days:  days,
		clock: clockwork.NewRealClock(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run performs the start-up pass at the current clock time.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	return c.OnStart(ctx, c.clock.Now())
}

// OnStart closes the previously observed day if it differs from the day of
// now in the selected zone, then records the current day. The previous day
// is closed under the currently selected zone. If closing fails the
// observed day is left unchanged so the next start retries.
func (c *Coordinator) OnStart(ctx context.Context, now time.Time) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tz, err := c.prefs.SelectedTimezone(ctx)
	if err != nil {
		return Result{}, err
	}
	current, err := zone.DayKey(now, tz)
	if err != nil {
		return Result{}, fmt.Errorf("compute day key: %w", err)
	}
	res := Result{CurrentDayKey: current}

	last, ok, err := c.prefs.LastOpenedDayKey(ctx)
	if err != nil {
		return Result{}, err
	}
	if ok && last != current {
		res.PreviousDayKey = last
		created, err := c.days.CloseDayIfOpen(ctx, last, tz, models.CloseAutoRollover, now)
		if err != nil {
			return Result{}, fmt.Errorf("close day %s: %w", last, err)
		}
		res.Closed = created
		c.log.Info().
			Str("day_key", last).
			Str("timezone", tz).
			Bool("created", created).
			Msg("closed previous day")
	}

	if err := c.prefs.SetLastOpenedDayKey(ctx, current); err != nil {
		return Result{}, err
	}
	c.log.Debug().Str("day_key", current).Str("timezone", tz).Msg("recorded current day")
	return res, nil
}

// ManualClose carries optional totals recorded when the user closes a day.
type ManualClose struct {
	Calories *int
	WeightKg *float64
}

// CloseToday closes the current day with reason manual. It reports the day
// key and whether this call created the summary.
func (c *Coordinator) CloseToday(ctx context.Context, mc ManualClose) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	tz, err := c.prefs.SelectedTimezone(ctx)
	if err != nil {
		return "", false, err
	}
	key, err := zone.DayKey(now, tz)
	if err != nil {
		return "", false, fmt.Errorf("compute day key: %w", err)
	}

	summary := models.NewDailySummary(key, tz, models.CloseManual, now)
	summary.Calories = mc.Calories
	summary.WeightKg = mc.WeightKg

	created, err := c.days.CloseDay(ctx, summary)
	if err != nil {
		return "", false, fmt.Errorf("close day %s: %w", key, err)
	}
	c.log.Info().Str("day_key", key).Bool("created", created).Msg("closed day manually")
	return key, created, nil
}
