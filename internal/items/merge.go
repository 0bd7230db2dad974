package items

import (
	"context"
	"sort"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/events"
	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/logger"
	"github.com/MrSnakeDoc/stash/internal/undo"
)

// FindDuplicates groups bookmarks by normalized URL, largest groups first.
func (s *Store) FindDuplicates() []domain.DuplicateGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.FindDuplicates(s.bookmarks)
}

// MergeDuplicates folds removeIDs into keepID (see domain.Merge) and deletes
// them. The merged record keeps keepID and its position.
func (s *Store) MergeDuplicates(ctx context.Context, keepID string, removeIDs []string) (domain.Bookmark, *undo.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ki := s.indexLocked(keepID)
	if ki < 0 {
		return domain.Bookmark{}, nil, ErrNotFound
	}
	var filtered []string
	for _, id := range removeIDs {
		if id != keepID {
			filtered = append(filtered, id)
		}
	}
	idx, err := s.indicesLocked(filtered)
	if err != nil {
		return domain.Bookmark{}, nil, err
	}

	keep := s.bookmarks[ki].Clone()
	others := make([]domain.Bookmark, len(idx))
	for n, i := range idx {
		others[n] = s.bookmarks[i].Clone()
	}
	merged := domain.Merge(keep, others, s.now())

	cmd := &undo.Command{
		Kind:    undo.KindMerge,
		Label:   "Merged duplicates of " + keep.Title,
		Restore: []undo.Placement{{Bookmark: keep, Index: ki}},
	}
	for n, i := range idx {
		cmd.Restore = append(cmd.Restore, undo.Placement{Bookmark: others[n], Index: i})
	}
	sort.SliceStable(cmd.Restore, func(a, b int) bool { return cmd.Restore[a].Index < cmd.Restore[b].Index })

	drop := make(map[string]bool, len(idx))
	for _, o := range others {
		drop[o.ID] = true
	}
	kept := s.bookmarks[:0]
	for _, b := range s.bookmarks {
		switch {
		case drop[b.ID]:
		case b.ID == keepID:
			kept = append(kept, merged)
		default:
			kept = append(kept, b)
		}
	}
	s.bookmarks = kept

	cmd = s.recordLocked(cmd)
	ids := append([]string{keepID}, filtered...)
	s.changed(events.BookmarksChanged, "merge", ids...)
	s.log.Info("duplicates merged", logger.String("keep", keepID), logger.Int("removed", len(others)))
	return merged.Clone(), cmd, s.persistLocked(ctx, kv.SlotBookmarks)
}
