package undo

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("undo command not found")
	ErrExpired  = errors.New("undo command expired")
)

// DefaultCapacity bounds how many commands the log keeps.
const DefaultCapacity = 64

// Log keeps pending inverse commands until they are taken or expire.
type Log struct {
	mu       sync.Mutex
	order    []string
	commands map[string]*Command
	capacity int
}

// NewLog creates a log holding at most capacity commands (oldest dropped).
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		commands: make(map[string]*Command, capacity),
		capacity: capacity,
	}
}

// Push records c. Noop commands are ignored.
func (l *Log) Push(c *Command) {
	if c == nil || c.IsNoop() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.commands[c.ID]; !exists {
		l.order = append(l.order, c.ID)
	}
	l.commands[c.ID] = c

	for len(l.order) > l.capacity {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.commands, oldest)
	}
}

// Take removes and returns the command with id. An expired command is
// removed too and reported as ErrExpired.
func (l *Log) Take(id string, now time.Time) (*Command, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.commands[id]
	if !ok {
		return nil, ErrNotFound
	}
	l.removeLocked(id)
	if c.Expired(now) {
		return nil, ErrExpired
	}
	return c, nil
}

// Latest returns the most recent live command without removing it.
func (l *Log) Latest(now time.Time) (*Command, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.order) - 1; i >= 0; i-- {
		c := l.commands[l.order[i]]
		if !c.Expired(now) {
			return c, true
		}
	}
	return nil, false
}

// Sweep drops every expired command and returns how many were dropped.
func (l *Log) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.order[:0]
	dropped := 0
	for _, id := range l.order {
		if l.commands[id].Expired(now) {
			delete(l.commands, id)
			dropped++
			continue
		}
		kept = append(kept, id)
	}
	l.order = kept
	return dropped
}

// Len returns the number of pending commands, expired or not.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.order)
}

func (l *Log) removeLocked(id string) {
	delete(l.commands, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}
