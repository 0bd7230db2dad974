package prefs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/stash/internal/events"
	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/logger"
)

func TestReaderClamp(t *testing.T) {
	tests := []struct {
		name string
		in   Reader
		want Reader
	}{
		{name: "zero is defaults", in: Reader{}, want: DefaultReader()},
		{name: "in range kept", in: Reader{FontSize: 20, FontFamily: "mono", LineHeight: 1.5, MaxWidth: 768},
			want: Reader{FontSize: 20, FontFamily: "mono", LineHeight: 1.5, MaxWidth: 768}},
		{name: "too small", in: Reader{FontSize: 4, FontFamily: "sans", LineHeight: 0.5, MaxWidth: 100},
			want: Reader{FontSize: 14, FontFamily: "sans", LineHeight: 1.2, MaxWidth: 480}},
		{name: "too large", in: Reader{FontSize: 99, FontFamily: "serif", LineHeight: 9, MaxWidth: 4000},
			want: Reader{FontSize: 28, FontFamily: "serif", LineHeight: 2.4, MaxWidth: 960}},
		{name: "unknown family", in: Reader{FontSize: 16, FontFamily: "comic", LineHeight: 2, MaxWidth: 600},
			want: Reader{FontSize: 16, FontFamily: "serif", LineHeight: 2, MaxWidth: 600}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Clamp(); got != tt.want {
				t.Fatalf("Clamp() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStorePersistsAndReloads(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	bus := events.NewBus()
	ch, cancel := bus.Subscribe()
	defer cancel()

	s := New(mem, Options{Logger: logger.New("error", false), Publisher: bus})
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Get() != Defaults() {
		t.Fatalf("fresh prefs = %+v", s.Get())
	}

	if err := s.SetTheme(ctx, ThemeDark); err != nil {
		t.Fatal(err)
	}
	if err := s.SetFeedRefreshInterval(ctx, 15); err != nil {
		t.Fatal(err)
	}
	stored, err := s.SetReader(ctx, Reader{FontSize: 40, FontFamily: "sans", LineHeight: 1.6, MaxWidth: 700})
	if err != nil {
		t.Fatal(err)
	}
	if stored.FontSize != MaxFontSize {
		t.Fatalf("stored = %+v", stored)
	}

	select {
	case e := <-ch:
		if e.Kind != events.PrefsChanged || e.Action != "theme" {
			t.Fatalf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}

	again := New(mem, Options{})
	if err := again.Load(ctx); err != nil {
		t.Fatal(err)
	}
	got := again.Get()
	if got.Theme != ThemeDark || got.FeedRefreshMinutes != 15 || got.Reader != stored {
		t.Fatalf("reloaded = %+v", got)
	}
	if again.FeedRefreshInterval() != 15*time.Minute {
		t.Fatalf("interval = %v", again.FeedRefreshInterval())
	}
}

func TestResetReader(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory(), Options{})
	if _, err := s.SetReader(ctx, Reader{FontSize: 24, FontFamily: "mono", LineHeight: 2.2, MaxWidth: 900}); err != nil {
		t.Fatal(err)
	}
	r, err := s.ResetReader(ctx)
	if err != nil || r != DefaultReader() || s.Get().Reader != DefaultReader() {
		t.Fatalf("reset = %+v, %v", r, err)
	}
}

func TestInvalidValues(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory(), Options{})
	if err := s.SetTheme(ctx, Theme("neon")); err == nil {
		t.Fatal("unknown theme accepted")
	}
	if err := s.SetFeedRefreshInterval(ctx, -5); err != nil {
		t.Fatal(err)
	}
	if s.FeedRefreshInterval() != 0 {
		t.Fatalf("negative interval stored as %v", s.FeedRefreshInterval())
	}
}

func TestWriteFailureKeepsMemoryValue(t *testing.T) {
	mem := kv.NewMemory()
	mem.FailWrites(errors.New("disk full"))
	s := New(mem, Options{Logger: logger.New("error", false)})
	if err := s.SetTheme(context.Background(), ThemeLight); err == nil {
		t.Fatal("write error swallowed")
	}
	if s.Get().Theme != ThemeLight {
		t.Fatal("in-memory value not updated")
	}
}

func TestLoadIgnoresGarbage(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	_ = mem.Put(ctx, kv.SlotTheme, []byte(`"purple"`))
	_ = mem.Put(ctx, kv.SlotReaderPrefs, []byte(`{not json`))
	s := New(mem, Options{Logger: logger.New("error", false)})
	if err := s.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if s.Get() != Defaults() {
		t.Fatalf("prefs = %+v", s.Get())
	}
}
