package items

import (
	"context"
	"strings"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/events"
	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/undo"
)

// Collections returns a copy in creation order.
func (s *Store) Collections() []domain.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Collection(nil), s.collections...)
}

func (s *Store) CreateCollection(ctx context.Context, name string) (domain.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Collection{}, ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := domain.Collection{ID: s.newID(), Name: name, CreatedAt: s.now()}
	s.collections = append(s.collections, c)
	s.changed(events.CollectionsChanged, "create-collection", c.ID)
	return c, s.persistLocked(ctx, kv.SlotCollections)
}

func (s *Store) RenameCollection(ctx context.Context, id, name string) (*undo.Command, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.collectionIndexLocked(id)
	if i < 0 {
		return nil, ErrCollectionNotFound
	}
	old := s.collections[i].Name
	if old == name {
		return nil, nil
	}
	s.collections[i].Name = name

	cmd := s.recordLocked(&undo.Command{
		Kind:             undo.KindRenameColl,
		Label:            "Renamed " + old,
		RenameCollection: &undo.CollectionRename{ID: id, Name: old},
	})
	s.changed(events.CollectionsChanged, "rename-collection", id)
	return cmd, s.persistLocked(ctx, kv.SlotCollections)
}

// DeleteCollection removes the collection and clears collectionId on its
// members. Members are never deleted.
func (s *Store) DeleteCollection(ctx context.Context, id string) (*undo.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ci := s.collectionIndexLocked(id)
	if ci < 0 {
		return nil, ErrCollectionNotFound
	}
	removed := s.collections[ci]
	s.collections = removeAt(s.collections, ci)

	cmd := &undo.Command{
		Kind:               undo.KindDeleteColl,
		Label:              "Deleted collection " + removed.Name,
		RestoreCollections: []undo.CollectionPlacement{{Collection: removed, Index: ci}},
	}
	now := s.now()
	var members []string
	for i := range s.bookmarks {
		b := &s.bookmarks[i]
		if b.CollectionID != id {
			continue
		}
		p := domain.BookmarkPatch{CollectionID: domain.Ptr("")}
		cmd.Patches = append(cmd.Patches, undo.Patch{ID: b.ID, Changes: p.Inverse(*b)})
		p.Apply(b)
		b.UpdatedAt = now
		members = append(members, b.ID)
	}

	cmd = s.recordLocked(cmd)
	s.changed(events.CollectionsChanged, "delete-collection", id)
	if len(members) > 0 {
		s.changed(events.BookmarksChanged, "delete-collection", members...)
	}
	return cmd, s.persistLocked(ctx, kv.SlotCollections, kv.SlotBookmarks)
}
