// Package undo holds inverse commands: small serializable values that
// describe how to revert a mutation, instead of closures over live state.
package undo

import (
	"time"

	"github.com/MrSnakeDoc/stash/internal/domain"
)

// Kind names the mutation a command reverts.
type Kind string

const (
	KindDelete      Kind = "delete"
	KindUpdate      Kind = "update"
	KindFavorite    Kind = "favorite"
	KindArchive     Kind = "archive"
	KindRead        Kind = "read"
	KindTag         Kind = "tag"
	KindUntag       Kind = "untag"
	KindMove        Kind = "move"
	KindReorder     Kind = "reorder"
	KindBulkDelete  Kind = "bulk-delete"
	KindBulkArchive Kind = "bulk-archive"
	KindBulkRead    Kind = "bulk-read"
	KindBulkTag     Kind = "bulk-tag"
	KindBulkMove    Kind = "bulk-move"
	KindMerge       Kind = "merge"
	KindDeleteColl  Kind = "delete-collection"
	KindRemoveFeed  Kind = "remove-feed"
	KindRenameColl  Kind = "rename-collection"
)

// Patch reverts selected fields of one bookmark.
type Patch struct {
	ID      string               `json:"id"`
	Changes domain.BookmarkPatch `json:"changes"`
}

// Placement puts a bookmark back. If a bookmark with the same id exists it is
// replaced in place, otherwise it is inserted at Index (clamped).
type Placement struct {
	Bookmark domain.Bookmark `json:"bookmark"`
	Index    int             `json:"index"`
}

// CollectionPlacement is Placement for collections.
type CollectionPlacement struct {
	Collection domain.Collection `json:"collection"`
	Index      int               `json:"index"`
}

// FeedPlacement is Placement for feeds.
type FeedPlacement struct {
	Feed  domain.Feed `json:"feed"`
	Index int         `json:"index"`
}

// Command is the inverse of one forward mutation. Applying it runs, in order:
// removals, restores (ascending Index), then field patches.
type Command struct {
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Label string `json:"label"`

	Remove  []string    `json:"remove,omitempty"`
	Restore []Placement `json:"restore,omitempty"`
	Patches []Patch     `json:"patches,omitempty"`

	RemoveCollections  []string              `json:"removeCollections,omitempty"`
	RestoreCollections []CollectionPlacement `json:"restoreCollections,omitempty"`
	RenameCollection   *CollectionRename     `json:"renameCollection,omitempty"`

	RestoreFeeds []FeedPlacement `json:"restoreFeeds,omitempty"`

	// SortMode, when set, is restored too (reorder switches to manual).
	SortMode domain.SortMode `json:"sortMode,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CollectionRename restores a collection name.
type CollectionRename struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Expired reports whether the command can no longer be applied at now.
func (c *Command) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// IsNoop reports whether applying c would change nothing.
func (c *Command) IsNoop() bool {
	return len(c.Remove) == 0 && len(c.Restore) == 0 && len(c.Patches) == 0 &&
		len(c.RemoveCollections) == 0 && len(c.RestoreCollections) == 0 &&
		c.RenameCollection == nil && len(c.RestoreFeeds) == 0 && c.SortMode == ""
}

// BookmarkIDs lists every bookmark id the command touches.
func (c *Command) BookmarkIDs() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range c.Remove {
		add(id)
	}
	for _, p := range c.Restore {
		add(p.Bookmark.ID)
	}
	for _, p := range c.Patches {
		add(p.ID)
	}
	return out
}
