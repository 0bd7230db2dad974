package domain

import (
	"sort"
	"time"
)

// DuplicateGroup is a set of bookmarks sharing one normalized URL key.
type DuplicateGroup struct {
	Key       string     `json:"key"`
	Bookmarks []Bookmark `json:"bookmarks"`
}

// FindDuplicates groups bookmarks by NormalizeKey and returns only groups of
// two or more, largest first. Equal sizes keep first-seen order and members
// keep collection order.
func FindDuplicates(bookmarks []Bookmark) []DuplicateGroup {
	index := make(map[string]int)
	var groups []DuplicateGroup
	for _, b := range bookmarks {
		key := NormalizeKey(b.URL)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DuplicateGroup{Key: key})
		}
		groups[i].Bookmarks = append(groups[i].Bookmarks, b.Clone())
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.Bookmarks) >= 2 {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].Bookmarks) > len(out[j].Bookmarks)
	})
	return out
}

// Merge folds others into keep:
//   - tags: union, keep's order first
//   - notes, description, extracted content, collection: first non-empty
//     scanning keep then others in order
//   - favorite: true if any member is
//   - createdAt: earliest of all members
//
// Everything else comes from keep. The result keeps keep's id.
func Merge(keep Bookmark, others []Bookmark, now time.Time) Bookmark {
	merged := keep.Clone()
	all := append([]Bookmark{keep}, others...)

	var tags []string
	for _, b := range all {
		tags = append(tags, b.Tags...)
	}
	merged.Tags = NormalizeTags(tags)

	merged.Notes = firstNonEmpty(all, func(b Bookmark) string { return b.Notes })
	merged.Description = firstNonEmpty(all, func(b Bookmark) string { return b.Description })
	merged.ExtractedContent = firstNonEmpty(all, func(b Bookmark) string { return b.ExtractedContent })
	merged.CollectionID = firstNonEmpty(all, func(b Bookmark) string { return b.CollectionID })

	for _, b := range all {
		if b.IsFavorite {
			merged.IsFavorite = true
		}
		if !b.CreatedAt.IsZero() && (merged.CreatedAt.IsZero() || b.CreatedAt.Before(merged.CreatedAt)) {
			merged.CreatedAt = b.CreatedAt
		}
	}
	merged.UpdatedAt = now
	return merged
}

func firstNonEmpty(all []Bookmark, field func(Bookmark) string) string {
	for _, b := range all {
		if v := field(b); v != "" {
			return v
		}
	}
	return ""
}
