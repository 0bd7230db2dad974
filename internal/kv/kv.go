// Package kv is the persistent key-value layer. Values are whole JSON
// documents stored under named slots; there are no partial updates.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Slot names a persisted value.
type Slot string

const (
	SlotBookmarks           Slot = "bookmarks"
	SlotCollections         Slot = "collections"
	SlotFeeds               Slot = "feeds"
	SlotFeedCategories      Slot = "feed-categories"
	SlotTheme               Slot = "preferences/theme"
	SlotFeedRefreshInterval Slot = "feed-refresh-interval"
	SlotReaderPrefs         Slot = "reader-prefs"
	SlotVaultConfig         Slot = "vault-config"
	SlotVaultMeta           Slot = "vault-meta"
	SlotVaultBlob           Slot = "vault-blob"
)

// ErrNotFound is returned by Get for an absent slot.
var ErrNotFound = errors.New("kv: slot not found")

// Write is one element of an atomic Commit.
type Write struct {
	Slot   Slot
	Value  []byte
	Delete bool
}

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, slot Slot) ([]byte, error)
	Put(ctx context.Context, slot Slot, value []byte) error
	Delete(ctx context.Context, slot Slot) error
	// Commit applies all writes or none of them.
	Commit(ctx context.Context, writes ...Write) error
	Ping(ctx context.Context) error
	Close() error
}

// Set builds a Write holding v encoded as JSON.
func Set(slot Slot, v any) (Write, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Write{}, fmt.Errorf("encode %s: %w", slot, err)
	}
	return Write{Slot: slot, Value: data}, nil
}

// Del builds a deleting Write.
func Del(slot Slot) Write {
	return Write{Slot: slot, Delete: true}
}

// LoadJSON decodes slot into out. found is false, with a nil error, when
// the slot is absent so callers can keep their defaults.
func LoadJSON(ctx context.Context, s Store, slot Slot, out any) (found bool, err error) {
	data, err := s.Get(ctx, slot)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", slot, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return true, fmt.Errorf("decode %s: %w", slot, err)
	}
	return true, nil
}

// SaveJSON encodes v and stores it under slot.
func SaveJSON(ctx context.Context, s Store, slot Slot, v any) error {
	w, err := Set(slot, v)
	if err != nil {
		return err
	}
	if err := s.Put(ctx, slot, w.Value); err != nil {
		return fmt.Errorf("write %s: %w", slot, err)
	}
	return nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
