// ABOUTME: Badger-backed preference storage on local disk.
// ABOUTME: Routes badger's internal logging through zerolog.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
)

// BadgerKV stores preferences in an embedded badger database.
type BadgerKV struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a badger database in dir.
func OpenBadger(dir string, logger zerolog.Logger) (*BadgerKV, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create preferences directory: %w", err)
	}
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{l: logger})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	return &BadgerKV{db: db}, nil
}

// OpenBadgerInMemory opens a non-persistent badger database.
func OpenBadgerInMemory() (*BadgerKV, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory preferences: %w", err)
	}
	return &BadgerKV{db: db}, nil
}

// Get returns the value for key.
func (b *BadgerKV) Get(_ context.Context, key string) (string, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(value), true, nil
}

// Set stores value under key.
func (b *BadgerKV) Set(_ context.Context, key, value string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

// Close closes the database.
func (b *BadgerKV) Close() error {
	return b.db.Close()
}

type badgerLogger struct {
	l zerolog.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error().Str("component", "badger").Msgf(format, args...)
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn().Str("component", "badger").Msgf(format, args...)
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug().Str("component", "badger").Msgf(format, args...)
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Trace().Str("component", "badger").Msgf(format, args...)
}
