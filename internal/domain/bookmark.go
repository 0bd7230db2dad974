package domain

import (
	"strings"
	"time"
)

// Source tells where a bookmark came from.
type Source string

const (
	SourceManual Source = "manual"
	SourceFeed   Source = "feed"
)

// Bookmark is a saved link in the reading list.
type Bookmark struct {
	// ─────────────────────────────
	// Identity
	// ─────────────────────────────

	// ID is a random UUID, unique across the whole collection.
	ID string `json:"id"`

	// URL is the canonical form of what the user saved (scheme defaulted).
	// Duplicates are allowed; they are detected through NormalizeKey.
	URL string `json:"url"`

	// ─────────────────────────────
	// Display metadata (enriched)
	// ─────────────────────────────

	Title       string `json:"title"`
	Description string `json:"description"`
	Favicon     string `json:"favicon,omitempty"`
	CoverImage  string `json:"coverImage,omitempty"`

	// ─────────────────────────────
	// Organisation
	// ─────────────────────────────

	Tags []string `json:"tags"`

	// CollectionID is empty when the bookmark belongs to no collection.
	CollectionID string `json:"collectionId,omitempty"`

	IsFavorite bool `json:"isFavorite"`
	IsArchived bool `json:"isArchived"`
	IsRead     bool `json:"isRead"`

	// ─────────────────────────────
	// Reading
	// ─────────────────────────────

	ExtractedContent string `json:"extractedContent,omitempty"`
	Notes            string `json:"notes"`
	ReadingMinutes   int    `json:"readingMinutes"`

	// ─────────────────────────────
	// Provenance
	// ─────────────────────────────

	Source Source `json:"source"`

	// FeedID links feed-ingested items to their subscription.
	FeedID string `json:"feedId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Loading is set while metadata enrichment is in flight.
	Loading bool `json:"loading,omitempty"`
}

// Clone returns a deep copy; the tag slice is not shared.
func (b Bookmark) Clone() Bookmark {
	if b.Tags != nil {
		b.Tags = append([]string(nil), b.Tags...)
	}
	return b
}

// HasTag reports whether tag is attached (exact match).
func (b Bookmark) HasTag(tag string) bool {
	for _, t := range b.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Hostname returns the host of the bookmark URL without a "www." prefix.
func (b Bookmark) Hostname() string {
	return Hostname(b.URL)
}

// NewBookmark is the input of an add operation.
type NewBookmark struct {
	URL         string
	Title       string
	Description string
	Tags        []string
	Notes       string

	// Feed-ingested fields.
	Source      Source
	FeedID      string
	Favicon     string
	CoverImage  string
	PublishedAt time.Time

	// Restored state, set by imports of our own export format.
	IsFavorite     bool
	IsArchived     bool
	IsRead         bool
	ReadingMinutes int

	// SkipEnrich disables the asynchronous metadata fetch (imports, feeds).
	SkipEnrich bool
}

// NormalizeTags trims, drops empties and removes duplicates, keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = trimTag(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func trimTag(t string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(t), "#"))
}
