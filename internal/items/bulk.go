package items

import (
	"context"
	"fmt"
	"sort"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/events"
	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/undo"
)

// Bulk operations resolve every id first; one unknown id aborts the whole
// batch before anything changes. Each returns a single command for the
// batch.

// BulkDelete removes every id.
func (s *Store) BulkDelete(ctx context.Context, ids []string) (*undo.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.indicesLocked(ids)
	if err != nil {
		return nil, err
	}
	if len(idx) == 0 {
		return nil, nil
	}
	sort.Ints(idx)

	cmd := &undo.Command{Kind: undo.KindBulkDelete, Label: labelFor(undo.KindBulkDelete, len(idx))}
	drop := make(map[int]bool, len(idx))
	for _, i := range idx {
		cmd.Restore = append(cmd.Restore, undo.Placement{Bookmark: s.bookmarks[i].Clone(), Index: i})
		drop[i] = true
	}
	kept := make([]domain.Bookmark, 0, len(s.bookmarks)-len(idx))
	removed := make([]string, 0, len(idx))
	for i, b := range s.bookmarks {
		if drop[i] {
			removed = append(removed, b.ID)
			continue
		}
		kept = append(kept, b)
	}
	s.bookmarks = kept

	cmd = s.recordLocked(cmd)
	s.changed(events.BookmarksChanged, string(undo.KindBulkDelete), removed...)
	return cmd, s.persistLocked(ctx, kv.SlotBookmarks)
}

// BulkArchive archives every id. Undo restores each item's own previous
// archive flag.
func (s *Store) BulkArchive(ctx context.Context, ids []string) (*undo.Command, error) {
	return s.bulkPatch(ctx, undo.KindBulkArchive, ids, domain.BookmarkPatch{IsArchived: domain.Ptr(true)})
}

// BulkMarkRead marks every id read.
func (s *Store) BulkMarkRead(ctx context.Context, ids []string) (*undo.Command, error) {
	return s.bulkPatch(ctx, undo.KindBulkRead, ids, domain.BookmarkPatch{IsRead: domain.Ptr(true)})
}

// BulkTag adds tag to every id that lacks it.
func (s *Store) BulkTag(ctx context.Context, ids []string, tag string) (*undo.Command, error) {
	return s.tagOp(ctx, undo.KindBulkTag, ids, tag, true)
}

// BulkMoveToCollection assigns every id to collectionID ("" for none).
func (s *Store) BulkMoveToCollection(ctx context.Context, ids []string, collectionID string) (*undo.Command, error) {
	return s.move(ctx, undo.KindBulkMove, ids, collectionID)
}

func (s *Store) bulkPatch(ctx context.Context, kind undo.Kind, ids []string, p domain.BookmarkPatch) (*undo.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.indicesLocked(ids)
	if err != nil {
		return nil, err
	}
	return s.patchLocked(ctx, kind, idx, func(domain.Bookmark) (domain.BookmarkPatch, bool) {
		return p, true
	})
}

func labelFor(kind undo.Kind, n int) string {
	noun := "bookmark"
	if n != 1 {
		noun = "bookmarks"
	}
	verb := map[undo.Kind]string{
		undo.KindUpdate:      "Updated",
		undo.KindFavorite:    "Toggled favorite on",
		undo.KindArchive:     "Toggled archive on",
		undo.KindRead:        "Toggled read on",
		undo.KindTag:         "Tagged",
		undo.KindUntag:       "Untagged",
		undo.KindMove:        "Moved",
		undo.KindBulkDelete:  "Deleted",
		undo.KindBulkArchive: "Archived",
		undo.KindBulkRead:    "Marked read",
		undo.KindBulkTag:     "Tagged",
		undo.KindBulkMove:    "Moved",
	}[kind]
	if verb == "" {
		verb = string(kind)
	}
	return fmt.Sprintf("%s %d %s", verb, n, noun)
}
