package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

const pebblePrefix = "stash/"

// Pebble stores slots in an embedded LSM. Commit is one synced batch.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) the database directory at path. opts may
// be nil; tests pass an in-memory filesystem.
func OpenPebble(path string, opts *pebble.Options) (*Pebble, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", path, err)
	}
	return &Pebble{db: db}, nil
}

func pebbleKey(slot Slot) []byte {
	return []byte(pebblePrefix + string(slot))
}

func (p *Pebble) Get(_ context.Context, slot Slot) ([]byte, error) {
	value, closer, err := p.db.Get(pebbleKey(slot))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", slot, err)
	}
	defer closer.Close()
	// value is only valid until closer.Close.
	return copyBytes(value), nil
}

func (p *Pebble) Put(ctx context.Context, slot Slot, value []byte) error {
	return p.Commit(ctx, Write{Slot: slot, Value: value})
}

func (p *Pebble) Delete(ctx context.Context, slot Slot) error {
	return p.Commit(ctx, Del(slot))
}

func (p *Pebble) Commit(_ context.Context, writes ...Write) error {
	b := p.db.NewBatch()
	defer b.Close()

	for _, w := range writes {
		var err error
		if w.Delete {
			err = b.Delete(pebbleKey(w.Slot), nil)
		} else {
			err = b.Set(pebbleKey(w.Slot), w.Value, nil)
		}
		if err != nil {
			return fmt.Errorf("batch %s: %w", w.Slot, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (p *Pebble) Ping(context.Context) error {
	if p.db == nil {
		return errors.New("pebble closed")
	}
	return nil
}

func (p *Pebble) Close() error {
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}
