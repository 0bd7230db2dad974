package kv

import (
	"context"
	"sync"
)

// Memory keeps slots in a map. Nothing survives the process.
type Memory struct {
	mu    sync.RWMutex
	slots map[Slot][]byte
	// failWrites makes every write fail; used to exercise error paths.
	failWrites error
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[Slot][]byte)}
}

func (m *Memory) Get(_ context.Context, slot Slot) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.slots[slot]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBytes(v), nil
}

func (m *Memory) Put(ctx context.Context, slot Slot, value []byte) error {
	return m.Commit(ctx, Write{Slot: slot, Value: value})
}

func (m *Memory) Delete(ctx context.Context, slot Slot) error {
	return m.Commit(ctx, Del(slot))
}

func (m *Memory) Commit(_ context.Context, writes ...Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	for _, w := range writes {
		if w.Delete {
			delete(m.slots, w.Slot)
			continue
		}
		m.slots[w.Slot] = copyBytes(w.Value)
	}
	return nil
}

// FailWrites makes subsequent writes return err (nil restores normal behavior).
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	m.failWrites = err
	m.mu.Unlock()
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
