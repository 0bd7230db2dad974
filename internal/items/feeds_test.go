package items

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/stash/internal/domain"
)

func feedDoc(title, site string, urls ...string) domain.FeedDocument {
	doc := domain.FeedDocument{Title: title, SiteURL: site}
	for i, u := range urls {
		doc.Items = append(doc.Items, domain.FeedItem{
			GUID:        u,
			Title:       title + " item",
			URL:         u,
			Description: "summary",
			PublishedAt: time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC),
		})
	}
	return doc
}

func TestAddFeedIngestsItems(t *testing.T) {
	ctx := context.Background()
	src := &fakeFeeds{}
	src.set("https://news.example/rss", feedDoc("News", "https://news.example/",
		"https://news.example/a", "https://news.example/b", "not a url at all"), nil)
	h := newHarness(t, Options{Feeds: src})
	h.fixture(t)

	feed, added, created, err := h.store.AddFeed(ctx, "news.example/rss")
	if err != nil || !created {
		t.Fatalf("AddFeed = %v, %v", created, err)
	}
	if added != 2 || feed.Favicon != "https://news.example/favicon.ico" || feed.Title != "News" {
		t.Fatalf("feed = %+v added=%d", feed, added)
	}

	items := h.store.Filter(domain.View{Kind: domain.ViewFeed, Arg: feed.ID}, "")
	if len(items) != 2 {
		t.Fatalf("feed view = %d items", len(items))
	}
	for _, b := range items {
		if b.Source != domain.SourceFeed || b.Favicon != feed.Favicon || b.CreatedAt.Year() != 2024 || b.CreatedAt.Month() != time.January {
			t.Errorf("ingested %+v", b)
		}
	}
	inbox := h.store.Filter(domain.View{Kind: domain.ViewInbox}, "")
	for _, b := range inbox {
		if b.Source == domain.SourceFeed {
			t.Fatal("feed item leaked into inbox")
		}
	}

	again, added, created, err := h.store.AddFeed(ctx, "https://news.example/rss/")
	if err != nil || created || added != 0 || again.ID != feed.ID {
		t.Fatalf("second AddFeed = %+v %d %v %v", again, added, created, err)
	}
}

func TestRefreshFeedTracksErrors(t *testing.T) {
	ctx := context.Background()
	src := &fakeFeeds{}
	url := "https://news.example/rss"
	src.set(url, feedDoc("News", "https://news.example/", "https://news.example/a"), nil)
	h := newHarness(t, Options{Feeds: src})

	feed, _, _, err := h.store.AddFeed(ctx, url)
	if err != nil {
		t.Fatal(err)
	}

	src.set(url, domain.FeedDocument{}, errors.New("timeout"))
	for i := 1; i <= 2; i++ {
		if _, err := h.store.RefreshFeed(ctx, feed.ID); err == nil {
			t.Fatal("refresh error not surfaced")
		}
		if got := h.store.Feeds()[0].ErrorCount; got != i {
			t.Fatalf("errorCount = %d, want %d", got, i)
		}
	}

	h.clock.Advance(time.Hour)
	src.set(url, feedDoc("News", "https://news.example/", "https://news.example/a", "https://news.example/c"), nil)
	n, err := h.store.RefreshFeed(ctx, feed.ID)
	if err != nil || n != 1 {
		t.Fatalf("RefreshFeed = %d, %v", n, err)
	}
	f := h.store.Feeds()[0]
	if f.ErrorCount != 0 || !f.LastFetchedAt.Equal(h.clock.Now()) {
		t.Fatalf("feed after success = %+v", f)
	}

	if _, err := h.store.RefreshFeed(ctx, "missing"); !errors.Is(err, ErrFeedNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}

func TestRefreshAllFeedsDoesNotOverlap(t *testing.T) {
	ctx := context.Background()
	src := &fakeFeeds{}
	src.set("https://a.example/rss", feedDoc("A", "https://a.example/", "https://a.example/1"), nil)
	src.set("https://b.example/rss", domain.FeedDocument{}, errors.New("boom"))
	h := newHarness(t, Options{Feeds: src})

	if _, err := h.store.ImportFeeds(ctx, []FeedSeed{{URL: "https://a.example/rss"}, {URL: "https://b.example/rss"}}); err != nil {
		t.Fatal(err)
	}

	src.block = make(chan struct{})
	var (
		wg  sync.WaitGroup
		sum RefreshSummary
		err error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sum, err = h.store.RefreshAllFeeds(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !h.store.Refreshing() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := h.store.RefreshAllFeeds(ctx); !errors.Is(err, ErrRefreshInProgress) {
		t.Fatalf("overlapping refresh err = %v", err)
	}
	close(src.block)
	wg.Wait()

	if err != nil {
		t.Fatal(err)
	}
	if sum != (RefreshSummary{Feeds: 2, Failed: 1, Added: 1}) {
		t.Fatalf("summary = %+v", sum)
	}
	if h.store.Refreshing() {
		t.Fatal("guard not released")
	}
}

func TestRemoveFeedDeletesOnlyItsItems(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	h.fixture(t)

	if _, err := h.store.RemoveFeed(ctx, "f1"); err != nil {
		t.Fatal(err)
	}
	if got := ids(h.store.Bookmarks()); !reflect.DeepEqual(got, []string{"b1", "b2", "b3", "b5"}) {
		t.Fatalf("remaining = %v", got)
	}
	feeds := h.store.Feeds()
	if len(feeds) != 1 || feeds[0].ID != "f2" {
		t.Fatalf("feeds = %+v", feeds)
	}
	if _, err := h.store.RemoveFeed(ctx, "f1"); !errors.Is(err, ErrFeedNotFound) {
		t.Fatalf("second remove err = %v", err)
	}
}

func TestImportFeeds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	h.fixture(t)

	res, err := h.store.ImportFeeds(ctx, []FeedSeed{
		{URL: "https://feed.example/rss"},
		{URL: "https://new.example/atom.xml", Title: "New", SiteURL: "https://new.example"},
		{URL: "bad url with spaces"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res != (ImportResult{Added: 1, Skipped: 1, Invalid: 1}) {
		t.Fatalf("result = %+v", res)
	}
	f := h.store.Feeds()[2]
	if f.Title != "New" || f.Favicon != "https://new.example/favicon.ico" {
		t.Fatalf("imported feed = %+v", f)
	}
}

func TestFeedOperationsNeedFetcher(t *testing.T) {
	h := newHarness(t, Options{})
	if _, _, _, err := h.store.AddFeed(context.Background(), "https://x.example/rss"); !errors.Is(err, ErrNoFeedFetcher) {
		t.Fatalf("err = %v", err)
	}
}
