// ABOUTME: Tests for the preference store over memory and badger backends.
// ABOUTME: Verifies defaults, validation, and persistence across reopen.
package prefs

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/aiform/internal/zone"
)

func TestSelectedTimezoneDefaultsToHostZone(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryKV()).WithHostZone(func() string { return "Europe/Madrid" })

	got, err := s.SelectedTimezone(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Madrid", got)
}

func TestSetSelectedTimezone(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryKV())

	require.NoError(t, s.SetSelectedTimezone(ctx, "Asia/Tokyo"))

	got, err := s.SelectedTimezone(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", got)
}

func TestSetSelectedTimezoneRejectsUnknownZone(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryKV()).WithHostZone(func() string { return "UTC" })

	err := s.SetSelectedTimezone(ctx, "Atlantis/Capital")
	assert.ErrorIs(t, err, zone.ErrInvalidTimezone)

	got, err := s.SelectedTimezone(ctx)
	require.NoError(t, err)
	assert.Equal(t, "UTC", got, "invalid zone must not be stored")
}

func TestLastOpenedDayKey(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryKV())

	_, ok, err := s.LastOpenedDayKey(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetLastOpenedDayKey(ctx, "2026-02-09"))

	key, ok, err := s.LastOpenedDayKey(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2026-02-09", key)

	assert.Error(t, s.SetLastOpenedDayKey(ctx, "yesterday"))
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	kv, err := OpenBadger(dir, zerolog.Nop())
	require.NoError(t, err)
	s := NewStore(kv)
	require.NoError(t, s.SetSelectedTimezone(ctx, "America/Bogota"))
	require.NoError(t, s.SetLastOpenedDayKey(ctx, "2026-03-01"))
	require.NoError(t, s.Close())

	kv, err = OpenBadger(dir, zerolog.Nop())
	require.NoError(t, err)
	s = NewStore(kv)
	defer s.Close()

	tz, err := s.SelectedTimezone(ctx)
	require.NoError(t, err)
	assert.Equal(t, "America/Bogota", tz)

	key, ok, err := s.LastOpenedDayKey(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2026-03-01", key)
}

func TestBadgerInMemoryMissingKey(t *testing.T) {
	kv, err := OpenBadgerInMemory()
	require.NoError(t, err)
	defer kv.Close()

	_, ok, err := kv.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
