package items

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/logger"
	"github.com/MrSnakeDoc/stash/internal/undo"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%03d", s.n)
}

// fakeMeta answers from a map; when gate is set it blocks until gate closes.
type fakeMeta struct {
	pages map[string]domain.PageMetadata
	gate  chan struct{}
}

func (f *fakeMeta) Fetch(ctx context.Context, url string) domain.PageMetadata {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return domain.PageMetadata{}
		}
	}
	return f.pages[url]
}

type fakeExtractor struct {
	content map[string]domain.ExtractedContent
}

func (f *fakeExtractor) Extract(_ context.Context, url string) (domain.ExtractedContent, error) {
	c, ok := f.content[url]
	if !ok {
		return domain.ExtractedContent{}, fmt.Errorf("no content for %s", url)
	}
	return c, nil
}

type fakeFeeds struct {
	mu   sync.Mutex
	docs map[string]domain.FeedDocument
	errs map[string]error
	// block, when set, holds every fetch until closed.
	block chan struct{}
}

func (f *fakeFeeds) Fetch(ctx context.Context, url string) (domain.FeedDocument, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return domain.FeedDocument{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[url]; err != nil {
		return domain.FeedDocument{}, err
	}
	doc, ok := f.docs[url]
	if !ok {
		return domain.FeedDocument{}, fmt.Errorf("404 %s", url)
	}
	return doc, nil
}

func (f *fakeFeeds) set(url string, doc domain.FeedDocument, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docs == nil {
		f.docs = map[string]domain.FeedDocument{}
		f.errs = map[string]error{}
	}
	f.docs[url] = doc
	f.errs[url] = err
}

type harness struct {
	store *Store
	kv    *kv.Memory
	clock *testClock
	ids   *seqIDs
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		kv:    kv.NewMemory(),
		clock: &testClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		ids:   &seqIDs{},
	}
	opts.Logger = logger.New("error", false)
	opts.Now = h.clock.Now
	opts.NewID = h.ids.Next
	if opts.UndoLog == nil {
		opts.UndoLog = undo.NewLog(0)
	}
	h.store = New(h.kv, opts)
	if err := h.store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = h.store.Close(context.Background()) })
	return h
}

// fixture seeds a small library directly into memory:
//
//	b1 manual, tags [go], collection c1
//	b2 manual, favorite, archived
//	b3 manual, read, tags [go, db], collection c1
//	b4 feed f1
//	b5 feed f2
func (h *harness) fixture(t *testing.T) {
	t.Helper()
	base := h.clock.Now().Add(-time.Hour)
	mk := func(id, url string, mins int) domain.Bookmark {
		return domain.Bookmark{
			ID:        id,
			URL:       url,
			Title:     id + " title",
			Tags:      []string{},
			Source:    domain.SourceManual,
			CreatedAt: base.Add(time.Duration(mins) * time.Minute),
			UpdatedAt: base,
		}
	}
	b1 := mk("b1", "https://one.example/", 1)
	b1.Tags = []string{"go"}
	b1.CollectionID = "c1"
	b2 := mk("b2", "https://two.example/", 2)
	b2.IsFavorite, b2.IsArchived = true, true
	b3 := mk("b3", "https://three.example/", 3)
	b3.IsRead = true
	b3.Tags = []string{"go", "db"}
	b3.CollectionID = "c1"
	b4 := mk("b4", "https://feed.example/post-1", 4)
	b4.Source, b4.FeedID = domain.SourceFeed, "f1"
	b5 := mk("b5", "https://other.example/post", 5)
	b5.Source, b5.FeedID = domain.SourceFeed, "f2"

	s := h.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookmarks = []domain.Bookmark{b1, b2, b3, b4, b5}
	s.collections = []domain.Collection{
		{ID: "c1", Name: "Reading", CreatedAt: base},
		{ID: "c2", Name: "Later", CreatedAt: base},
	}
	s.feeds = []domain.Feed{
		{ID: "f1", URL: "https://feed.example/rss", Title: "Feed One", CreatedAt: base},
		{ID: "f2", URL: "https://other.example/rss", Title: "Feed Two", CreatedAt: base},
	}
}

// state is everything undo must restore, with updatedAt cleared.
type state struct {
	Bookmarks   []domain.Bookmark
	Collections []domain.Collection
	Feeds       []domain.Feed
	Sort        domain.SortMode
}

func (h *harness) snapshot() state {
	bs := h.store.Bookmarks()
	for i := range bs {
		bs[i].UpdatedAt = time.Time{}
	}
	return state{
		Bookmarks:   bs,
		Collections: h.store.Collections(),
		Feeds:       h.store.Feeds(),
		Sort:        h.store.SortMode(),
	}
}

func ids(bs []domain.Bookmark) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}

// gatedKV holds every Commit until release is closed.
type gatedKV struct {
	kv.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedKV) Commit(ctx context.Context, writes ...kv.Write) error {
	g.entered <- struct{}{}
	<-g.release
	return g.Store.Commit(ctx, writes...)
}
