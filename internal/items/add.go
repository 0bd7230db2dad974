package items

import (
	"context"
	"strings"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/events"
	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/logger"
)

// seed is the value of the enrichable fields at insert time. Enrichment
// only overwrites a field that is still at its seed and whose seed was a
// default.
type seed struct {
	Title       string
	Description string
	Favicon     string
	CoverImage  string
	titleIsAuto bool
}

func seedOf(b domain.Bookmark) seed {
	return seed{
		Title:       b.Title,
		Description: b.Description,
		Favicon:     b.Favicon,
		CoverImage:  b.CoverImage,
		titleIsAuto: b.Title == domain.PlaceholderTitle(b.URL),
	}
}

// Add inserts a bookmark at the head of the list. If a bookmark with the
// same normalized URL exists, its id is returned with created == false and
// nothing changes (tags included). The new bookmark is enriched in the
// background unless in.SkipEnrich is set.
func (s *Store) Add(ctx context.Context, in domain.NewBookmark) (id string, created bool, err error) {
	url, err := domain.CanonicalURL(in.URL)
	if err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.findByKeyLocked(domain.NormalizeKey(url)); existing >= 0 {
		return s.bookmarks[existing].ID, false, nil
	}

	b := s.newBookmarkLocked(url, in)
	enrich := !in.SkipEnrich && (s.metadata != nil || s.extractor != nil)
	b.Loading = enrich

	s.bookmarks = insertAt(s.bookmarks, 0, b)
	if enrich {
		s.startEnrichLocked(b.ID, b.URL, seedOf(b))
	}
	s.changed(events.BookmarksChanged, "add", b.ID)
	s.log.Debug("bookmark added", logger.String("id", b.ID), logger.String("url", b.URL))
	return b.ID, true, s.persistLocked(ctx, kv.SlotBookmarks)
}

func (s *Store) newBookmarkLocked(url string, in domain.NewBookmark) domain.Bookmark {
	now := s.now()
	created := now
	if !in.PublishedAt.IsZero() {
		created = in.PublishedAt
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = domain.PlaceholderTitle(url)
	}
	source := in.Source
	if source == "" {
		source = domain.SourceManual
	}
	return domain.Bookmark{
		ID:             s.newID(),
		URL:            url,
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		Favicon:        in.Favicon,
		CoverImage:     in.CoverImage,
		Tags:           domain.NormalizeTags(in.Tags),
		Notes:          in.Notes,
		IsFavorite:     in.IsFavorite,
		IsArchived:     in.IsArchived,
		IsRead:         in.IsRead,
		ReadingMinutes: in.ReadingMinutes,
		Source:         source,
		FeedID:         in.FeedID,
		CreatedAt:      created,
		UpdatedAt:      now,
	}
}

func (s *Store) findByKeyLocked(key string) int {
	for i := range s.bookmarks {
		if domain.NormalizeKey(s.bookmarks[i].URL) == key {
			return i
		}
	}
	return -1
}

func (s *Store) startEnrichLocked(id, url string, sd seed) {
	if s.inflight[id] || s.baseCtx.Err() != nil {
		return
	}
	s.inflight[id] = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.enrich(id, url, sd)
	}()
}

// enrich fetches metadata and readable content, then patches the bookmark
// by id. Fields the user changed meanwhile are left alone.
func (s *Store) enrich(id, url string, sd seed) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.timeout)
	defer cancel()

	var md domain.PageMetadata
	if s.metadata != nil {
		md = s.metadata.Fetch(ctx, url)
	}
	var content domain.ExtractedContent
	var contentErr error = ErrNoExtractor
	if s.extractor != nil {
		content, contentErr = s.extractor.Extract(ctx, url)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)

	i := s.indexLocked(id)
	if i < 0 {
		return
	}
	cur := &s.bookmarks[i]

	if sd.titleIsAuto && cur.Title == sd.Title && md.Title != "" {
		cur.Title = md.Title
	}
	if sd.Description == "" && cur.Description == "" && md.Description != "" {
		cur.Description = md.Description
	}
	if sd.Favicon == "" && cur.Favicon == "" && md.Favicon != "" {
		cur.Favicon = md.Favicon
	}
	if sd.CoverImage == "" && cur.CoverImage == "" && md.CoverImage != "" {
		cur.CoverImage = md.CoverImage
	}
	if contentErr == nil && cur.ExtractedContent == "" && content.Markdown != "" {
		cur.ExtractedContent = content.Markdown
		cur.ReadingMinutes = domain.EstimateReadingMinutes(content.Words)
	}
	cur.Loading = false

	outcome := "ok"
	if md == (domain.PageMetadata{}) {
		outcome = "empty"
		s.log.Debug("enrichment found nothing", logger.String("id", id), logger.String("url", url))
	}
	s.m.Enrichment(outcome)
	s.pub.Publish(events.Event{Kind: events.BookmarksChanged, Action: "enrich", IDs: []string{id}, At: s.now()})

	if err := s.persistLocked(s.baseCtxOrBackground(), kv.SlotBookmarks); err != nil {
		s.log.Warn("enrichment not persisted", logger.String("id", id), logger.Error(err))
	}
}

// baseCtxOrBackground lets enrichment finishing during Close still write.
func (s *Store) baseCtxOrBackground() context.Context {
	if s.baseCtx.Err() != nil {
		return context.Background()
	}
	return s.baseCtx
}

// ExtractContent runs reader-mode extraction for one bookmark now.
func (s *Store) ExtractContent(ctx context.Context, id string) (domain.Bookmark, error) {
	if s.extractor == nil {
		return domain.Bookmark{}, ErrNoExtractor
	}
	b, ok := s.Get(id)
	if !ok {
		return domain.Bookmark{}, ErrNotFound
	}

	fctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	content, err := s.extractor.Extract(fctx, b.URL)
	if err != nil {
		return b, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return domain.Bookmark{}, ErrNotFound
	}
	cur := &s.bookmarks[i]
	cur.ExtractedContent = content.Markdown
	cur.ReadingMinutes = domain.EstimateReadingMinutes(content.Words)
	cur.UpdatedAt = s.now()
	s.changed(events.BookmarksChanged, "extract", id)
	return cur.Clone(), s.persistLocked(ctx, kv.SlotBookmarks)
}

// ImportResult counts what an import did.
type ImportResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Invalid int `json:"invalid"`
}

// Import adds many bookmarks through the de-duplicating path with one
// write. Imported bookmarks are not enriched; their order is kept at the
// head of the list.
func (s *Store) Import(ctx context.Context, in []domain.NewBookmark) (ImportResult, error) {
	var res ImportResult

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(s.bookmarks))
	for _, b := range s.bookmarks {
		seen[domain.NormalizeKey(b.URL)] = true
	}

	added := make([]domain.Bookmark, 0, len(in))
	for _, nb := range in {
		url, err := domain.CanonicalURL(nb.URL)
		if err != nil {
			res.Invalid++
			continue
		}
		key := domain.NormalizeKey(url)
		if seen[key] {
			res.Skipped++
			continue
		}
		seen[key] = true
		added = append(added, s.newBookmarkLocked(url, nb))
	}
	res.Added = len(added)
	if res.Added == 0 {
		return res, nil
	}

	s.bookmarks = append(added, s.bookmarks...)
	ids := make([]string, len(added))
	for i, b := range added {
		ids[i] = b.ID
	}
	s.changed(events.BookmarksChanged, "import", ids...)
	s.log.Info("bookmarks imported",
		logger.Int("added", res.Added), logger.Int("skipped", res.Skipped), logger.Int("invalid", res.Invalid))
	return res, s.persistLocked(ctx, kv.SlotBookmarks)
}
