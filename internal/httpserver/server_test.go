package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/stash/internal/events"
	"github.com/MrSnakeDoc/stash/internal/httpserver/deps"
	"github.com/MrSnakeDoc/stash/internal/items"
	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/logger"
	"github.com/MrSnakeDoc/stash/internal/metrics"
	"github.com/MrSnakeDoc/stash/internal/vault"
)

type fakeVault struct{ locks atomic.Int32 }

func (v *fakeVault) Lock() { v.locks.Add(1) }

func (v *fakeVault) Status() vault.Status {
	return vault.Status{Enabled: true, State: vault.Locked.String()}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

type bridge struct {
	store   *items.Store
	bus     *events.Bus
	vault   *fakeVault
	trigger chan struct{}
	deps    deps.Deps
	handler http.Handler
}

func newBridge(t *testing.T, mutate ...func(*deps.Deps)) *bridge {
	t.Helper()
	mem := kv.NewMemory()
	bus := events.NewBus()
	log := logger.New("error", false)
	store := items.New(mem, items.Options{Logger: log, Publisher: bus})
	if err := store.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	b := &bridge{store: store, bus: bus, vault: &fakeVault{}, trigger: make(chan struct{}, 1)}
	b.deps = deps.Deps{
		Logger:             log,
		StartTime:          time.Now().Add(-time.Minute),
		Version:            "test",
		RateBurst:          1000,
		RatePerMin:         1000,
		Items:              store,
		Vault:              b.vault,
		Bus:                bus,
		Storage:            mem,
		Backend:            "memory",
		Metrics:            metrics.New(),
		FeedRefreshTrigger: b.trigger,
	}
	for _, m := range mutate {
		m(&b.deps)
	}
	b.handler = Handler(b.deps)
	return b
}

func (b *bridge) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Host = "127.0.0.1:21890"
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestPing(t *testing.T) {
	b := newBridge(t)
	rec := b.do(t, http.MethodGet, "/api/ping", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[map[string]string](t, rec)
	if got["status"] != "ok" || got["app"] != "Stash" {
		t.Fatalf("body = %v", got)
	}
}

func TestSaveBookmark(t *testing.T) {
	b := newBridge(t)

	rec := b.do(t, http.MethodPost, "/api/bookmark",
		`{"url":"example.com/article","title":"An article","description":"From the page","tags":["read","#later"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	first := decode[map[string]any](t, rec)
	if first["status"] != "saved" || first["created"] != true || first["id"] == "" {
		t.Fatalf("body = %v", first)
	}

	saved, ok := b.store.Get(first["id"].(string))
	if !ok || saved.Title != "An article" || saved.Description != "From the page" || saved.URL != "https://example.com/article" {
		t.Fatalf("stored = %+v", saved)
	}
	if len(saved.Tags) != 2 || saved.Tags[1] != "later" {
		t.Fatalf("tags = %v", saved.Tags)
	}

	rec = b.do(t, http.MethodPost, "/api/bookmark", `{"url":"https://example.com/article/?utm_source=x"}`)
	again := decode[map[string]any](t, rec)
	if again["created"] != false || again["id"] != first["id"] {
		t.Fatalf("duplicate save = %v", again)
	}
	if b.store.Len() != 1 {
		t.Fatalf("len = %d", b.store.Len())
	}
}

func TestSaveBookmarkRejectsBadInput(t *testing.T) {
	b := newBridge(t)
	for name, body := range map[string]string{
		"invalid url": `{"url":"ftp://files.example/x"}`,
		"empty url":   `{"url":"  "}`,
		"bad json":    `{"url":`,
	} {
		t.Run(name, func(t *testing.T) {
			if rec := b.do(t, http.MethodPost, "/api/bookmark", body); rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
		})
	}
	if b.store.Len() != 0 {
		t.Fatal("rejected input was stored")
	}
}

func TestShowPublishes(t *testing.T) {
	b := newBridge(t)
	ch, cancel := b.bus.Subscribe()
	defer cancel()

	if rec := b.do(t, http.MethodPost, "/api/show", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	select {
	case e := <-ch:
		if e.Kind != events.Show {
			t.Fatalf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no show event")
	}
}

func TestRefreshFeedsTrigger(t *testing.T) {
	b := newBridge(t)
	if rec := b.do(t, http.MethodPost, "/api/feeds/refresh", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("first = %d", rec.Code)
	}
	if rec := b.do(t, http.MethodPost, "/api/feeds/refresh", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second = %d", rec.Code)
	}
	<-b.trigger
	if rec := b.do(t, http.MethodPost, "/api/feeds/refresh", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("after drain = %d", rec.Code)
	}

	off := newBridge(t, func(d *deps.Deps) { d.FeedRefreshTrigger = nil })
	if rec := off.do(t, http.MethodPost, "/api/feeds/refresh", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled = %d", rec.Code)
	}
}

func TestUndoEndpoint(t *testing.T) {
	b := newBridge(t)
	ctx := context.Background()
	id, _, err := b.store.Add(ctx, newBookmark("https://undo.example/"))
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := b.store.Delete(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	if rec := b.do(t, http.MethodPost, "/api/undo/"+cmd.ID, ""); rec.Code != http.StatusOK {
		t.Fatalf("undo = %d %s", rec.Code, rec.Body)
	}
	if _, ok := b.store.Get(id); !ok {
		t.Fatal("bookmark not restored")
	}
	if rec := b.do(t, http.MethodPost, "/api/undo/"+cmd.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second undo = %d", rec.Code)
	}
}

func TestLockVault(t *testing.T) {
	b := newBridge(t)
	if rec := b.do(t, http.MethodPost, "/api/vault/lock", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if b.vault.locks.Load() != 1 {
		t.Fatal("vault not locked")
	}
}

func TestStatus(t *testing.T) {
	b := newBridge(t)
	if _, _, err := b.store.Add(context.Background(), newBookmark("https://one.example/")); err != nil {
		t.Fatal(err)
	}
	rec := b.do(t, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Items   items.Stats  `json:"items"`
		Vault   vault.Status `json:"vault"`
		Storage struct {
			OK      bool   `json:"ok"`
			Backend string `json:"backend"`
		} `json:"storage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Items.Total != 1 || got.Items.Inbox != 1 || !got.Vault.Enabled || !got.Storage.OK || got.Storage.Backend != "memory" {
		t.Fatalf("status = %+v", got)
	}
}

func TestProbes(t *testing.T) {
	b := newBridge(t)
	health := b.do(t, http.MethodGet, "/healthz", "")
	if health.Code != http.StatusOK {
		t.Fatalf("healthz = %d", health.Code)
	}
	if body := health.Body.String(); !strings.Contains(body, `"app":"Stash"`) || !strings.Contains(body, `"backend":"memory"`) {
		t.Fatalf("healthz body = %s", body)
	}
	if rec := b.do(t, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}
	rec := b.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("metrics = %d", rec.Code)
	}

	down := newBridge(t, func(d *deps.Deps) { d.Storage = downPinger{} })
	if rec := down.do(t, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with storage down = %d", rec.Code)
	}
}

func TestAccessControl(t *testing.T) {
	b := newBridge(t)

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.RemoteAddr = "203.0.113.9:5000"
	req.Host = "127.0.0.1:21890"
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote client = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	req.Host = "attacker.example"
	rec = httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign host = %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	b := newBridge(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/bookmark", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	req.Host = "127.0.0.1:21890"
	req.Header.Set("Origin", "chrome-extension://abcdef")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	// browsers send the requested header names lowercased
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	b.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow origin = %q (status %d)", got, rec.Code)
	}
}

func TestEventStream(t *testing.T) {
	b := newBridge(t)
	srv := httptest.NewServer(b.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	rd := bufio.NewReader(resp.Body)
	line, err := rd.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q, %v", line, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for b.bus.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.bus.Publish(events.Event{Kind: events.Show, At: time.Now()})

	for {
		line, err = rd.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended: %v", err)
		}
		if strings.HasPrefix(line, "event: ") {
			break
		}
	}
	if strings.TrimSpace(line) != "event: show" {
		t.Fatalf("event line = %q", line)
	}
	data, _ := rd.ReadString('\n')
	if !strings.HasPrefix(data, `data: {"kind":"show"`) {
		t.Fatalf("data line = %q", data)
	}
}
