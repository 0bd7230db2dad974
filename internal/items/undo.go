package items

import (
	"context"
	"errors"
	"sort"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/events"
	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/logger"
	"github.com/MrSnakeDoc/stash/internal/undo"
)

// Undo applies the pending command id. Expired or unknown commands fail
// with undo.ErrExpired or undo.ErrNotFound.
func (s *Store) Undo(ctx context.Context, id string) error {
	c, err := s.undo.Take(id, s.now())
	if err != nil {
		if errors.Is(err, undo.ErrExpired) {
			s.m.Undo("expired")
		}
		return err
	}
	return s.Apply(ctx, c)
}

// UndoLatest applies the most recent live command.
func (s *Store) UndoLatest(ctx context.Context) (*undo.Command, error) {
	c, ok := s.undo.Latest(s.now())
	if !ok {
		return nil, undo.ErrNotFound
	}
	return c, s.Undo(ctx, c.ID)
}

// LatestUndo peeks at the most recent live command.
func (s *Store) LatestUndo() (*undo.Command, bool) {
	return s.undo.Latest(s.now())
}

// SweepUndo drops expired commands.
func (s *Store) SweepUndo() int {
	n := s.undo.Sweep(s.now())
	s.m.UndoSwept(n)
	return n
}

// Apply runs an inverse command against the current state. It does not
// consult the undo log or the expiry; Undo does that.
func (s *Store) Apply(ctx context.Context, c *undo.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots := s.applyLocked(c)
	s.m.Undo("applied")
	s.log.Debug("undo applied", logger.String("kind", string(c.Kind)), logger.String("command", c.ID))
	return s.persistLocked(ctx, slots...)
}

// applyLocked runs removals, then restores in ascending index order, then
// renames and field patches. It returns the slots it touched.
func (s *Store) applyLocked(c *undo.Command) []kv.Slot {
	touched := map[kv.Slot]bool{}

	if len(c.Remove) > 0 {
		drop := make(map[string]bool, len(c.Remove))
		for _, id := range c.Remove {
			drop[id] = true
		}
		kept := s.bookmarks[:0]
		for _, b := range s.bookmarks {
			if !drop[b.ID] {
				kept = append(kept, b)
			}
		}
		s.bookmarks = kept
		touched[kv.SlotBookmarks] = true
	}

	if len(c.RemoveCollections) > 0 {
		for _, id := range c.RemoveCollections {
			if i := s.collectionIndexLocked(id); i >= 0 {
				s.collections = removeAt(s.collections, i)
			}
		}
		touched[kv.SlotCollections] = true
	}

	colls := append([]undo.CollectionPlacement(nil), c.RestoreCollections...)
	sort.SliceStable(colls, func(i, j int) bool { return colls[i].Index < colls[j].Index })
	for _, p := range colls {
		if i := s.collectionIndexLocked(p.Collection.ID); i >= 0 {
			s.collections[i] = p.Collection
		} else {
			s.collections = insertAt(s.collections, p.Index, p.Collection)
		}
		touched[kv.SlotCollections] = true
	}

	feeds := append([]undo.FeedPlacement(nil), c.RestoreFeeds...)
	sort.SliceStable(feeds, func(i, j int) bool { return feeds[i].Index < feeds[j].Index })
	for _, p := range feeds {
		if i := s.feedIndexLocked(p.Feed.ID); i >= 0 {
			s.feeds[i] = p.Feed
		} else {
			s.feeds = insertAt(s.feeds, p.Index, p.Feed)
		}
		touched[kv.SlotFeeds] = true
	}

	restore := append([]undo.Placement(nil), c.Restore...)
	sort.SliceStable(restore, func(i, j int) bool { return restore[i].Index < restore[j].Index })
	var ids []string
	for _, p := range restore {
		b := p.Bookmark.Clone()
		if b.Tags == nil {
			b.Tags = []string{}
		}
		if i := s.indexLocked(b.ID); i >= 0 {
			s.bookmarks[i] = b
		} else {
			s.bookmarks = insertAt(s.bookmarks, p.Index, b)
		}
		ids = append(ids, b.ID)
		touched[kv.SlotBookmarks] = true
		if b.Loading {
			s.resumeEnrichLocked(b)
		}
	}

	if r := c.RenameCollection; r != nil {
		if i := s.collectionIndexLocked(r.ID); i >= 0 {
			s.collections[i].Name = r.Name
			touched[kv.SlotCollections] = true
		}
	}

	for _, p := range c.Patches {
		i := s.indexLocked(p.ID)
		if i < 0 {
			continue
		}
		p.Changes.Apply(&s.bookmarks[i])
		s.bookmarks[i].UpdatedAt = s.now()
		ids = append(ids, p.ID)
		touched[kv.SlotBookmarks] = true
	}

	if c.SortMode != "" {
		s.sortMode = c.SortMode
	}

	if touched[kv.SlotBookmarks] || c.SortMode != "" {
		s.changed(events.BookmarksChanged, "undo", append(ids, c.Remove...)...)
	}
	if touched[kv.SlotCollections] {
		s.changed(events.CollectionsChanged, "undo")
	}
	if touched[kv.SlotFeeds] {
		s.changed(events.FeedsChanged, "undo")
	}

	slots := make([]kv.Slot, 0, len(touched))
	for sl := range touched {
		slots = append(slots, sl)
	}
	return slots
}

// resumeEnrichLocked restarts enrichment for a restored bookmark that was
// still loading when it was removed.
func (s *Store) resumeEnrichLocked(b domain.Bookmark) {
	if s.metadata == nil && s.extractor == nil {
		return
	}
	s.startEnrichLocked(b.ID, b.URL, seedOf(b))
}
