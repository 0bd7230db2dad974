// Package prefs holds the user preferences: theme, feed auto-refresh
// interval and reader-view typography.
package prefs

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/MrSnakeDoc/stash/internal/events"
	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/logger"
)

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

func ParseTheme(s string) (Theme, error) {
	switch t := Theme(s); t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return t, nil
	default:
		return "", fmt.Errorf("unknown theme %q", s)
	}
}

// Reader is the reader-view typography.
type Reader struct {
	FontSize   int     `json:"fontSize"`
	FontFamily string  `json:"fontFamily"`
	LineHeight float64 `json:"lineHeight"`
	MaxWidth   int     `json:"maxWidth"`
}

const (
	MinFontSize   = 14
	MaxFontSize   = 28
	MinLineHeight = 1.2
	MaxLineHeight = 2.4
	MinMaxWidth   = 480
	MaxMaxWidth   = 960
)

// FontStacks maps a font family to its CSS stack.
var FontStacks = map[string]string{
	"serif": `Georgia, "Times New Roman", serif`,
	"sans":  `"Inter", ui-sans-serif, system-ui, -apple-system, sans-serif`,
	"mono":  `"JetBrains Mono", "Fira Code", ui-monospace, monospace`,
}

func DefaultReader() Reader {
	return Reader{FontSize: 18, FontFamily: "serif", LineHeight: 1.8, MaxWidth: 672}
}

// Clamp pulls every field into its range. Unknown font families and
// zero values fall back to the defaults.
func (r Reader) Clamp() Reader {
	def := DefaultReader()
	if r.FontSize == 0 {
		r.FontSize = def.FontSize
	}
	r.FontSize = min(max(r.FontSize, MinFontSize), MaxFontSize)

	if _, ok := FontStacks[r.FontFamily]; !ok {
		r.FontFamily = def.FontFamily
	}

	if r.LineHeight == 0 || math.IsNaN(r.LineHeight) {
		r.LineHeight = def.LineHeight
	}
	r.LineHeight = math.Round(min(max(r.LineHeight, MinLineHeight), MaxLineHeight)*10) / 10

	if r.MaxWidth == 0 {
		r.MaxWidth = def.MaxWidth
	}
	r.MaxWidth = min(max(r.MaxWidth, MinMaxWidth), MaxMaxWidth)
	return r
}

// Prefs is a snapshot of every preference.
type Prefs struct {
	Theme              Theme  `json:"theme"`
	FeedRefreshMinutes int    `json:"feedRefreshMinutes"`
	Reader             Reader `json:"reader"`
}

func Defaults() Prefs {
	return Prefs{Theme: ThemeSystem, Reader: DefaultReader()}
}

type Options struct {
	Logger    logger.Logger
	Publisher events.Publisher
}

// Store keeps preferences in memory and writes each one to its own slot.
type Store struct {
	mu  sync.RWMutex
	kv  kv.Store
	log logger.Logger
	pub events.Publisher
	cur Prefs
	now func() time.Time
}

func New(store kv.Store, opts Options) *Store {
	s := &Store{kv: store, log: opts.Logger, pub: opts.Publisher, cur: Defaults(), now: time.Now}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.pub == nil {
		s.pub = events.Nop{}
	}
	return s
}

// Load reads the persisted values. Missing or invalid ones keep their
// defaults.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Defaults()

	var theme string
	if _, err := kv.LoadJSON(ctx, s.kv, kv.SlotTheme, &theme); err != nil {
		s.log.Warn("theme unreadable, using default", logger.Error(err))
	} else if t, err := ParseTheme(theme); err == nil {
		p.Theme = t
	}

	var mins int
	if _, err := kv.LoadJSON(ctx, s.kv, kv.SlotFeedRefreshInterval, &mins); err != nil {
		s.log.Warn("feed refresh interval unreadable, using default", logger.Error(err))
	} else if mins > 0 {
		p.FeedRefreshMinutes = mins
	}

	var r Reader
	found, err := kv.LoadJSON(ctx, s.kv, kv.SlotReaderPrefs, &r)
	switch {
	case err != nil:
		s.log.Warn("reader prefs unreadable, using defaults", logger.Error(err))
	case found:
		p.Reader = r.Clamp()
	}

	s.cur = p
	return nil
}

func (s *Store) Get() Prefs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Store) SetTheme(ctx context.Context, t Theme) error {
	if _, err := ParseTheme(string(t)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Theme = t
	return s.saveLocked(ctx, kv.SlotTheme, t, "theme")
}

// SetFeedRefreshInterval stores minutes between automatic refreshes;
// 0 or less turns auto refresh off.
func (s *Store) SetFeedRefreshInterval(ctx context.Context, minutes int) error {
	minutes = max(minutes, 0)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.FeedRefreshMinutes = minutes
	return s.saveLocked(ctx, kv.SlotFeedRefreshInterval, minutes, "feed-refresh-interval")
}

// FeedRefreshInterval is the auto refresh period, 0 when disabled.
func (s *Store) FeedRefreshInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Duration(s.cur.FeedRefreshMinutes) * time.Minute
}

// SetReader clamps r, stores it and returns what was stored.
func (s *Store) SetReader(ctx context.Context, r Reader) (Reader, error) {
	r = r.Clamp()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Reader = r
	return r, s.saveLocked(ctx, kv.SlotReaderPrefs, r, "reader")
}

// ResetReader restores the default typography.
func (s *Store) ResetReader(ctx context.Context) (Reader, error) {
	return s.SetReader(ctx, DefaultReader())
}

func (s *Store) saveLocked(ctx context.Context, slot kv.Slot, v any, action string) error {
	s.pub.Publish(events.Event{Kind: events.PrefsChanged, Action: action, At: s.now()})
	if err := kv.SaveJSON(ctx, s.kv, slot, v); err != nil {
		s.log.Error("failed to save preference", logger.String("slot", string(slot)), logger.Error(err))
		return err
	}
	return nil
}
