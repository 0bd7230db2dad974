package items

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/events"
	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/logger"
	"github.com/MrSnakeDoc/stash/internal/undo"
)

// Feeds returns a copy of the subscriptions.
func (s *Store) Feeds() []domain.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Feed(nil), s.feeds...)
}

// FeedSeed is a subscription without fetched content (OPML import).
type FeedSeed struct {
	URL     string
	Title   string
	SiteURL string
}

// AddFeed subscribes to feedURL and ingests its items. Subscribing twice
// returns the existing feed with created == false.
func (s *Store) AddFeed(ctx context.Context, feedURL string) (feed domain.Feed, added int, created bool, err error) {
	if s.feedSrc == nil {
		return domain.Feed{}, 0, false, ErrNoFeedFetcher
	}
	u, err := domain.CanonicalURL(feedURL)
	if err != nil {
		return domain.Feed{}, 0, false, err
	}
	if f, ok := s.feedByURL(u); ok {
		return f, 0, false, nil
	}

	doc, err := s.fetchFeed(ctx, u)
	if err != nil {
		s.m.FeedRefresh("error")
		return domain.Feed{}, 0, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.feedIndexByURLLocked(u); i >= 0 {
		return s.feeds[i], 0, false, nil
	}

	now := s.now()
	f := domain.Feed{
		ID:            s.newID(),
		URL:           u,
		SiteURL:       doc.SiteURL,
		Title:         doc.Title,
		Favicon:       domain.FeedFavicon(doc.SiteURL),
		LastFetchedAt: now,
		CreatedAt:     now,
	}
	s.feeds = append(s.feeds, f)
	added = s.ingestLocked(f, doc.Items)

	s.m.FeedRefresh("ok")
	s.changed(events.FeedsChanged, "add-feed", f.ID)
	s.log.Info("feed added", logger.String("feed", f.Title), logger.Int("items", added))
	return f, added, true, s.persistLocked(ctx, kv.SlotFeeds, kv.SlotBookmarks)
}

// ImportFeeds subscribes without fetching; the next refresh ingests items.
func (s *Store) ImportFeeds(ctx context.Context, seeds []FeedSeed) (ImportResult, error) {
	var res ImportResult
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var ids []string
	for _, sd := range seeds {
		u, err := domain.CanonicalURL(sd.URL)
		if err != nil {
			res.Invalid++
			continue
		}
		if s.feedIndexByURLLocked(u) >= 0 {
			res.Skipped++
			continue
		}
		title := sd.Title
		if title == "" {
			title = domain.Hostname(u)
		}
		f := domain.Feed{
			ID:        s.newID(),
			URL:       u,
			SiteURL:   sd.SiteURL,
			Title:     title,
			Favicon:   domain.FeedFavicon(firstNonEmpty(sd.SiteURL, u)),
			CreatedAt: now,
		}
		s.feeds = append(s.feeds, f)
		ids = append(ids, f.ID)
		res.Added++
	}
	if res.Added == 0 {
		return res, nil
	}
	s.changed(events.FeedsChanged, "import-feeds", ids...)
	return res, s.persistLocked(ctx, kv.SlotFeeds)
}

// RefreshFeed fetches one feed. A failure bumps errorCount and is
// returned; a success resets it and ingests unseen items.
func (s *Store) RefreshFeed(ctx context.Context, id string) (int, error) {
	if s.feedSrc == nil {
		return 0, ErrNoFeedFetcher
	}
	s.mu.Lock()
	i := s.feedIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return 0, ErrFeedNotFound
	}
	url := s.feeds[i].URL
	s.mu.Unlock()

	doc, fetchErr := s.fetchFeed(ctx, url)

	s.mu.Lock()
	defer s.mu.Unlock()
	i = s.feedIndexLocked(id)
	if i < 0 {
		// removed while fetching
		return 0, ErrFeedNotFound
	}
	f := &s.feeds[i]

	if fetchErr != nil {
		f.ErrorCount++
		s.m.FeedRefresh("error")
		s.log.Warn("feed refresh failed",
			logger.String("feed", f.Title), logger.Int("errors", f.ErrorCount), logger.Error(fetchErr))
		s.changed(events.FeedsChanged, "refresh-feed", id)
		if err := s.persistLocked(ctx, kv.SlotFeeds); err != nil {
			return 0, errors.Join(fetchErr, err)
		}
		return 0, fetchErr
	}

	f.ErrorCount = 0
	f.LastFetchedAt = s.now()
	if f.SiteURL == "" {
		f.SiteURL = doc.SiteURL
		f.Favicon = domain.FeedFavicon(doc.SiteURL)
	}
	added := s.ingestLocked(*f, doc.Items)

	s.m.FeedRefresh("ok")
	s.changed(events.FeedsChanged, "refresh-feed", id)
	s.log.Debug("feed refreshed", logger.String("feed", f.Title), logger.Int("new", added))
	return added, s.persistLocked(ctx, kv.SlotFeeds, kv.SlotBookmarks)
}

// RefreshSummary aggregates RefreshAllFeeds.
type RefreshSummary struct {
	Feeds  int `json:"feeds"`
	Failed int `json:"failed"`
	Added  int `json:"added"`
}

// RefreshAllFeeds refreshes every feed in turn. Concurrent calls do not
// overlap: the second one returns ErrRefreshInProgress.
func (s *Store) RefreshAllFeeds(ctx context.Context) (RefreshSummary, error) {
	if !s.refreshing.CompareAndSwap(false, true) {
		return RefreshSummary{}, ErrRefreshInProgress
	}
	defer s.refreshing.Store(false)

	var sum RefreshSummary
	for _, f := range s.Feeds() {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Feeds++
		n, err := s.RefreshFeed(ctx, f.ID)
		if err != nil {
			sum.Failed++
			continue
		}
		sum.Added += n
	}
	s.log.Info("feeds refreshed",
		logger.Int("feeds", sum.Feeds), logger.Int("failed", sum.Failed), logger.Int("new", sum.Added))
	return sum, nil
}

// Refreshing reports whether RefreshAllFeeds is running.
func (s *Store) Refreshing() bool { return s.refreshing.Load() }

// RemoveFeed unsubscribes and deletes every bookmark ingested from it.
func (s *Store) RemoveFeed(ctx context.Context, id string) (*undo.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fi := s.feedIndexLocked(id)
	if fi < 0 {
		return nil, ErrFeedNotFound
	}
	feed := s.feeds[fi]
	s.feeds = removeAt(s.feeds, fi)

	cmd := &undo.Command{
		Kind:         undo.KindRemoveFeed,
		Label:        "Unsubscribed from " + feed.Title,
		RestoreFeeds: []undo.FeedPlacement{{Feed: feed, Index: fi}},
	}
	kept := make([]domain.Bookmark, 0, len(s.bookmarks))
	for i, b := range s.bookmarks {
		if b.FeedID == id {
			cmd.Restore = append(cmd.Restore, undo.Placement{Bookmark: b.Clone(), Index: i})
			continue
		}
		kept = append(kept, b)
	}
	s.bookmarks = kept

	cmd = s.recordLocked(cmd)
	s.changed(events.FeedsChanged, "remove-feed", id)
	s.log.Info("feed removed", logger.String("feed", feed.Title), logger.Int("items", len(cmd.Restore)))
	return cmd, s.persistLocked(ctx, kv.SlotFeeds, kv.SlotBookmarks)
}

func (s *Store) fetchFeed(ctx context.Context, url string) (domain.FeedDocument, error) {
	fctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	doc, err := s.feedSrc.Fetch(fctx, url)
	if err != nil {
		return domain.FeedDocument{}, fmt.Errorf("fetch feed %s: %w", url, err)
	}
	return doc, nil
}

// ingestLocked prepends items whose normalized URL is not stored yet,
// keeping document order.
func (s *Store) ingestLocked(f domain.Feed, items []domain.FeedItem) int {
	seen := make(map[string]bool, len(s.bookmarks))
	for _, b := range s.bookmarks {
		seen[domain.NormalizeKey(b.URL)] = true
	}

	var fresh []domain.Bookmark
	for _, it := range items {
		url, err := domain.CanonicalURL(it.URL)
		if err != nil {
			continue
		}
		key := domain.NormalizeKey(url)
		if seen[key] {
			continue
		}
		seen[key] = true
		fresh = append(fresh, s.newBookmarkLocked(url, domain.NewBookmark{
			Title:       it.Title,
			Description: it.Description,
			Source:      domain.SourceFeed,
			FeedID:      f.ID,
			Favicon:     f.Favicon,
			CoverImage:  it.Image,
			PublishedAt: it.PublishedAt,
		}))
	}
	if len(fresh) == 0 {
		return 0
	}
	s.bookmarks = append(fresh, s.bookmarks...)
	ids := make([]string, len(fresh))
	for i, b := range fresh {
		ids[i] = b.ID
	}
	s.changed(events.BookmarksChanged, "ingest", ids...)
	return len(fresh)
}

func (s *Store) feedByURL(u string) (domain.Feed, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.feedIndexByURLLocked(u); i >= 0 {
		return s.feeds[i], true
	}
	return domain.Feed{}, false
}

func (s *Store) feedIndexByURLLocked(u string) int {
	key := domain.NormalizeKey(u)
	for i := range s.feeds {
		if domain.NormalizeKey(s.feeds[i].URL) == key {
			return i
		}
	}
	return -1
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
