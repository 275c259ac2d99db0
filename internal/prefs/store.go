// ABOUTME: Timezone preference store backed by a pluggable key-value backend.
// ABOUTME: Holds the selected zone id and the last observed day key.
package prefs

import (
	"context"
	"fmt"

	"github.com/harperreed/aiform/internal/zone"
)

// Preference keys.
const (
	KeySelectedTimezone = "selected_time_zone_id"
	KeyLastOpenedDayKey = "last_opened_day_key"
)

// KV is the minimal key-value contract a preference backend must satisfy.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Store reads and writes user preferences through a KV backend.
type Store struct {
	kv       KV
	hostZone func() string
}

// NewStore wraps a KV backend.
func NewStore(kv KV) *Store {
	return &Store{kv: kv, hostZone: zone.HostZoneID}
}

// WithHostZone overrides the fallback used when no zone has been selected.
func (s *Store) WithHostZone(fn func() string) *Store {
	s.hostZone = fn
	return s
}

// SelectedTimezone returns the user's zone id, or the host zone when unset.
func (s *Store) SelectedTimezone(ctx context.Context) (string, error) {
	v, ok, err := s.kv.Get(ctx, KeySelectedTimezone)
	if err != nil {
		return "", fmt.Errorf("read selected timezone: %w", err)
	}
	if !ok || v == "" {
		return s.hostZone(), nil
	}
	return v, nil
}

// SetSelectedTimezone validates and stores the zone id.
func (s *Store) SetSelectedTimezone(ctx context.Context, id string) error {
	if err := zone.Validate(id); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, KeySelectedTimezone, id); err != nil {
		return fmt.Errorf("write selected timezone: %w", err)
	}
	return nil
}

// LastOpenedDayKey returns the most recently observed day key, if any.
func (s *Store) LastOpenedDayKey(ctx context.Context) (string, bool, error) {
	v, ok, err := s.kv.Get(ctx, KeyLastOpenedDayKey)
	if err != nil {
		return "", false, fmt.Errorf("read last opened day key: %w", err)
	}
	if !ok || v == "" {
		return "", false, nil
	}
	return v, true, nil
}

// SetLastOpenedDayKey stores the observed day key.
func (s *Store) SetLastOpenedDayKey(ctx context.Context, key string) error {
	if _, err := zone.ParseDayKey(key); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, KeyLastOpenedDayKey, key); err != nil {
		return fmt.Errorf("write last opened day key: %w", err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.kv.Close()
}
