package items

import (
	"context"
	"strings"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/events"
	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/undo"
)

// Every mutation below returns the inverse command it pushed into the undo
// log, or nil when nothing changed. A command is returned together with a
// persistence error: the change happened in memory and can still be undone.

// Delete removes one bookmark.
func (s *Store) Delete(ctx context.Context, id string) (*undo.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	removed := s.bookmarks[i].Clone()
	s.bookmarks = removeAt(s.bookmarks, i)

	cmd := s.recordLocked(&undo.Command{
		Kind:    undo.KindDelete,
		Label:   "Deleted " + removed.Title,
		Restore: []undo.Placement{{Bookmark: removed, Index: i}},
	})
	s.changed(events.BookmarksChanged, "delete", id)
	return cmd, s.persistLocked(ctx, kv.SlotBookmarks)
}

func (s *Store) ToggleFavorite(ctx context.Context, id string) (*undo.Command, error) {
	return s.toggle(ctx, id, undo.KindFavorite, func(b domain.Bookmark) domain.BookmarkPatch {
		return domain.BookmarkPatch{IsFavorite: domain.Ptr(!b.IsFavorite)}
	})
}

func (s *Store) ToggleArchive(ctx context.Context, id string) (*undo.Command, error) {
	return s.toggle(ctx, id, undo.KindArchive, func(b domain.Bookmark) domain.BookmarkPatch {
		return domain.BookmarkPatch{IsArchived: domain.Ptr(!b.IsArchived)}
	})
}

func (s *Store) ToggleRead(ctx context.Context, id string) (*undo.Command, error) {
	return s.toggle(ctx, id, undo.KindRead, func(b domain.Bookmark) domain.BookmarkPatch {
		return domain.BookmarkPatch{IsRead: domain.Ptr(!b.IsRead)}
	})
}

func (s *Store) toggle(ctx context.Context, id string, kind undo.Kind, build func(domain.Bookmark) domain.BookmarkPatch) (*undo.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	return s.patchLocked(ctx, kind, []int{i}, func(b domain.Bookmark) (domain.BookmarkPatch, bool) {
		return build(b), true
	})
}

// Update merges p into one bookmark. URL is re-validated and tags are
// normalized.
func (s *Store) Update(ctx context.Context, id string, p domain.BookmarkPatch) (*undo.Command, error) {
	if p.URL != nil {
		u, err := domain.CanonicalURL(*p.URL)
		if err != nil {
			return nil, err
		}
		p.URL = &u
	}
	if p.Tags != nil {
		p.Tags = domain.Ptr(domain.NormalizeTags(*p.Tags))
	}
	if p.Title != nil {
		p.Title = domain.Ptr(strings.TrimSpace(*p.Title))
	}
	p.Loading = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return nil, ErrNotFound
	}
	if p.CollectionID != nil && *p.CollectionID != "" && s.collectionIndexLocked(*p.CollectionID) < 0 {
		return nil, ErrCollectionNotFound
	}
	if p.IsEmpty() {
		return nil, nil
	}
	return s.patchLocked(ctx, undo.KindUpdate, []int{i}, func(domain.Bookmark) (domain.BookmarkPatch, bool) {
		return p, true
	})
}

// AddTag attaches tag; adding an attached tag is a no-op.
func (s *Store) AddTag(ctx context.Context, id, tag string) (*undo.Command, error) {
	return s.tagOp(ctx, undo.KindTag, []string{id}, tag, true)
}

// RemoveTag detaches tag.
func (s *Store) RemoveTag(ctx context.Context, id, tag string) (*undo.Command, error) {
	return s.tagOp(ctx, undo.KindUntag, []string{id}, tag, false)
}

func (s *Store) tagOp(ctx context.Context, kind undo.Kind, ids []string, tag string, add bool) (*undo.Command, error) {
	tags := domain.NormalizeTags([]string{tag})
	if len(tags) == 0 {
		return nil, nil
	}
	tag = tags[0]

	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.indicesLocked(ids)
	if err != nil {
		return nil, err
	}
	return s.patchLocked(ctx, kind, idx, func(b domain.Bookmark) (domain.BookmarkPatch, bool) {
		has := b.HasTag(tag)
		switch {
		case add && !has:
			return domain.BookmarkPatch{Tags: domain.Ptr(append(append([]string{}, b.Tags...), tag))}, true
		case !add && has:
			next := make([]string, 0, len(b.Tags))
			for _, t := range b.Tags {
				if t != tag {
					next = append(next, t)
				}
			}
			return domain.BookmarkPatch{Tags: &next}, true
		default:
			return domain.BookmarkPatch{}, false
		}
	})
}

// MoveToCollection assigns a collection; "" removes the assignment.
func (s *Store) MoveToCollection(ctx context.Context, id, collectionID string) (*undo.Command, error) {
	return s.move(ctx, undo.KindMove, []string{id}, collectionID)
}

func (s *Store) move(ctx context.Context, kind undo.Kind, ids []string, collectionID string) (*undo.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if collectionID != "" && s.collectionIndexLocked(collectionID) < 0 {
		return nil, ErrCollectionNotFound
	}
	idx, err := s.indicesLocked(ids)
	if err != nil {
		return nil, err
	}
	return s.patchLocked(ctx, kind, idx, func(b domain.Bookmark) (domain.BookmarkPatch, bool) {
		return domain.BookmarkPatch{CollectionID: &collectionID}, b.CollectionID != collectionID
	})
}

// patchLocked applies build's patch to each index, bumps updatedAt and
// records one command holding every inverse.
func (s *Store) patchLocked(ctx context.Context, kind undo.Kind, indices []int, build func(domain.Bookmark) (domain.BookmarkPatch, bool)) (*undo.Command, error) {
	now := s.now()
	cmd := &undo.Command{Kind: kind}
	var ids []string
	for _, i := range indices {
		b := &s.bookmarks[i]
		p, ok := build(*b)
		if !ok || p.IsEmpty() {
			continue
		}
		cmd.Patches = append(cmd.Patches, undo.Patch{ID: b.ID, Changes: p.Inverse(*b)})
		p.Apply(b)
		b.UpdatedAt = now
		ids = append(ids, b.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	cmd.Label = labelFor(kind, len(ids))
	cmd = s.recordLocked(cmd)
	s.changed(events.BookmarksChanged, string(kind), ids...)
	return cmd, s.persistLocked(ctx, kv.SlotBookmarks)
}

// indicesLocked resolves ids, failing on the first unknown one. Duplicate
// ids are collapsed.
func (s *Store) indicesLocked(ids []string) ([]int, error) {
	seen := make(map[string]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		i := s.indexLocked(id)
		if i < 0 {
			return nil, ErrNotFound
		}
		out = append(out, i)
	}
	return out, nil
}

// Reorder moves activeID to the current index of overID and switches the
// sort mode to manual.
func (s *Store) Reorder(ctx context.Context, activeID, overID string) (*undo.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.indexLocked(activeID)
	to := s.indexLocked(overID)
	if from < 0 || to < 0 {
		return nil, ErrNotFound
	}
	prevMode := s.sortMode
	if from == to && prevMode == domain.SortManual {
		return nil, nil
	}

	moved := s.bookmarks[from]
	s.bookmarks = removeAt(s.bookmarks, from)
	s.bookmarks = insertAt(s.bookmarks, to, moved)
	s.sortMode = domain.SortManual

	inv := &undo.Command{
		Kind:    undo.KindReorder,
		Label:   "Reordered " + moved.Title,
		Remove:  []string{moved.ID},
		Restore: []undo.Placement{{Bookmark: moved.Clone(), Index: from}},
	}
	if prevMode != domain.SortManual {
		inv.SortMode = prevMode
	}
	cmd := s.recordLocked(inv)
	s.changed(events.BookmarksChanged, "reorder", moved.ID)
	return cmd, s.persistLocked(ctx, kv.SlotBookmarks)
}

// SortMode returns the active sort mode.
func (s *Store) SortMode() domain.SortMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortMode
}

// SetSortMode picks a sort mode explicitly. Manual order stays in effect
// until this is called.
func (s *Store) SetSortMode(mode domain.SortMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == "" {
		mode = domain.DefaultSortMode
	}
	s.sortMode = mode
	s.changed(events.BookmarksChanged, "sort")
}
