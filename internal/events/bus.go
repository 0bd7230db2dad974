// Package events fans store change notifications out to subscribers
// (the SSE endpoint, the CLI in watch mode, tests).
package events

import (
	"sync"
	"time"
)

// Kind names a change.
type Kind string

const (
	BookmarksChanged   Kind = "bookmarks"
	CollectionsChanged Kind = "collections"
	FeedsChanged       Kind = "feeds"
	PrefsChanged       Kind = "prefs"
	VaultChanged       Kind = "vault"
	UndoAvailable      Kind = "undo"
	Show               Kind = "show"
)

// Event is one notification. IDs are the touched records, if known.
type Event struct {
	Kind   Kind      `json:"kind"`
	Action string    `json:"action,omitempty"`
	IDs    []string  `json:"ids,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher is what stores depend on.
type Publisher interface {
	Publish(e Event)
}

// Nop drops everything.
type Nop struct{}

func (Nop) Publish(Event) {}

const defaultBuffer = 32

// Bus is an in-process broadcaster. Slow subscribers lose events rather
// than blocking publishers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	buffer int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event), buffer: defaultBuffer}
}

// Subscribe returns a channel of events and a cancel func that closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
