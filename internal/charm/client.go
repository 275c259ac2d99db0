// ABOUTME: Charm KV client wrapper for cloud-synced preferences.
// ABOUTME: Implements prefs.KV with a key prefix and sync after each write.
package charm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/charm/client"
	"github.com/charmbracelet/charm/kv"
	"github.com/dgraph-io/badger/v3"
)

const (
	DBName           = "aiform"
	defaultCharmHost = "charm.2389.dev"

	PrefPrefix = "pref:"
)

// ErrReadOnly is returned for writes while another process holds the lock.
var ErrReadOnly = errors.New("cannot write: preferences are locked by another process (MCP server?)")

// Client stores preferences in Charm KV.
type Client struct {
	kv *kv.KV
	mu sync.RWMutex
}

// Open opens the Charm KV database, pulling remote state when writable.
// CHARM_HOST is respected when already set.
func Open() (*Client, error) {
	if os.Getenv("CHARM_HOST") == "" {
		if err := os.Setenv("CHARM_HOST", defaultCharmHost); err != nil {
			return nil, err
		}
	}

	db, err := kv.OpenWithDefaultsFallback(DBName)
	if err != nil {
		return nil, fmt.Errorf("open charm kv: %w", err)
	}

	c := &Client{kv: db}
	if !db.IsReadOnly() {
		_ = db.Sync()
	}
	return c, nil
}

// Key returns the stored key for a preference name.
func Key(name string) []byte {
	return []byte(PrefPrefix + name)
}

// Get returns the preference value for name.
func (c *Client) Get(_ context.Context, name string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	val, err := c.kv.Get(Key(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(val), true, nil
}

// Set stores the preference and pushes it to Charm Cloud.
func (c *Client) Set(_ context.Context, name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.kv.IsReadOnly() {
		return ErrReadOnly
	}
	if err := c.kv.Set(Key(name), []byte(value)); err != nil {
		return err
	}
	_ = c.kv.Sync()
	return nil
}

// Close closes the KV database connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kv != nil {
		return c.kv.Close()
	}
	return nil
}

// IsReadOnly reports whether another process holds the database lock.
func (c *Client) IsReadOnly() bool {
	return c.kv.IsReadOnly()
}

// Sync synchronizes local state with Charm Cloud.
func (c *Client) Sync() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.kv.IsReadOnly() {
		return nil
	}
	return c.kv.Sync()
}

// ID returns the Charm user ID for the linked account.
func (c *Client) ID() (string, error) {
	cc, err := client.NewClientWithDefaults()
	if err != nil {
		return "", fmt.Errorf("create charm client: %w", err)
	}
	return cc.ID()
}

// Reset wipes local data and rebuilds from Charm Cloud.
func (c *Client) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.Reset()
}
