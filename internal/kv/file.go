package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File keeps every slot in a single JSON document on disk. Each write
// rewrites the document through a temp file and a rename, so a crash never
// leaves a half-written store.
type File struct {
	mu    sync.Mutex
	path  string
	slots map[Slot]json.RawMessage
}

// OpenFile loads (or creates on first write) the document at path.
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	f := &File{path: path, slots: make(map[Slot]json.RawMessage)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f.slots); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

func (f *File) Get(_ context.Context, slot Slot) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.slots[slot]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBytes(v), nil
}

func (f *File) Put(ctx context.Context, slot Slot, value []byte) error {
	return f.Commit(ctx, Write{Slot: slot, Value: value})
}

func (f *File) Delete(ctx context.Context, slot Slot) error {
	return f.Commit(ctx, Del(slot))
}

// Commit stages the writes on a copy of the document, persists it, and only
// then swaps it in.
func (f *File) Commit(_ context.Context, writes ...Write) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := make(map[Slot]json.RawMessage, len(f.slots)+len(writes))
	for k, v := range f.slots {
		next[k] = v
	}
	for _, w := range writes {
		if w.Delete {
			delete(next, w.Slot)
			continue
		}
		if !json.Valid(w.Value) {
			return fmt.Errorf("slot %s: value is not valid json", w.Slot)
		}
		next[w.Slot] = json.RawMessage(copyBytes(w.Value))
	}

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(f.path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	f.slots = next
	return nil
}

func (f *File) Ping(context.Context) error {
	_, err := os.Stat(filepath.Dir(f.path))
	return err
}

func (f *File) Close() error { return nil }

// writeFileAtomic writes via a temp file in the same directory, then renames.
func writeFileAtomic(path string, b []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer func() { _ = os.Remove(name) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}
