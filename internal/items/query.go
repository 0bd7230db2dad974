package items

import (
	"sort"

	"github.com/MrSnakeDoc/stash/internal/domain"
)

// Filter returns the bookmarks of view using the store's sort mode and
// locale. For the search view, relevance order is kept.
func (s *Store) Filter(view domain.View, search string) []domain.Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Filter(s.bookmarks, domain.Query{View: view, Search: search, Sort: s.sortMode, Locale: s.locale})
}

// TagCount is one entry of Tags.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Tags lists every tag with its usage, most used first, then by name.
func (s *Store) Tags() []TagCount {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[string]int{}
	for _, b := range s.bookmarks {
		for _, t := range b.Tags {
			counts[t]++
		}
	}
	out := make([]TagCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, TagCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Stats summarises the collection.
type Stats struct {
	Total       int `json:"total"`
	Inbox       int `json:"inbox"`
	Unread      int `json:"unread"`
	Favorites   int `json:"favorites"`
	Archived    int `json:"archived"`
	Tags        int `json:"tags"`
	Collections int `json:"collections"`
	Feeds       int `json:"feeds"`
	FromFeeds   int `json:"fromFeeds"`
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Total:       len(s.bookmarks),
		Collections: len(s.collections),
		Feeds:       len(s.feeds),
	}
	tags := map[string]bool{}
	inbox := domain.View{Kind: domain.ViewInbox}
	for _, b := range s.bookmarks {
		if !b.IsRead && !b.IsArchived {
			st.Unread++
		}
		if inbox.Matches(b) {
			st.Inbox++
		}
		if b.IsFavorite {
			st.Favorites++
		}
		if b.IsArchived {
			st.Archived++
		}
		if b.Source == domain.SourceFeed {
			st.FromFeeds++
		}
		for _, t := range b.Tags {
			tags[t] = true
		}
	}
	st.Tags = len(tags)
	return st
}
