package domain

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ViewKind names a list the presentation layer can show.
type ViewKind string

const (
	ViewInbox      ViewKind = "inbox"
	ViewAll        ViewKind = "all"
	ViewFavorites  ViewKind = "favorites"
	ViewArchive    ViewKind = "archive"
	ViewTag        ViewKind = "tag"
	ViewCollection ViewKind = "collection"
	ViewFeed       ViewKind = "feed"
	ViewSearch     ViewKind = "search"
)

// View is a ViewKind plus its argument (tag name, collection or feed id).
type View struct {
	Kind ViewKind
	Arg  string
}

// ParseView accepts "inbox", "all", "favorites", "archive", "search",
// "tag:<name>", "collection:<id>" and "feed:<id>".
func ParseView(s string) (View, error) {
	s = strings.TrimSpace(s)
	switch ViewKind(s) {
	case ViewInbox, ViewAll, ViewFavorites, ViewArchive, ViewSearch:
		return View{Kind: ViewKind(s)}, nil
	case "":
		return View{Kind: ViewInbox}, nil
	}
	for _, k := range []ViewKind{ViewTag, ViewCollection, ViewFeed} {
		if arg, ok := strings.CutPrefix(s, string(k)+":"); ok && arg != "" {
			return View{Kind: k, Arg: arg}, nil
		}
	}
	return View{}, fmt.Errorf("unknown view %q", s)
}

func (v View) String() string {
	if v.Arg == "" {
		return string(v.Kind)
	}
	return string(v.Kind) + ":" + v.Arg
}

// Matches reports whether b belongs to the view. Search is handled separately.
func (v View) Matches(b Bookmark) bool {
	switch v.Kind {
	case ViewInbox:
		return !b.IsArchived && !b.IsRead && b.Source != SourceFeed
	case ViewAll:
		return !b.IsArchived && b.Source != SourceFeed
	case ViewFavorites:
		return b.IsFavorite && b.Source != SourceFeed
	case ViewArchive:
		return b.IsArchived && b.Source != SourceFeed
	case ViewTag:
		return b.HasTag(v.Arg)
	case ViewCollection:
		return b.CollectionID == v.Arg
	case ViewFeed:
		return b.FeedID == v.Arg
	default:
		return true
	}
}

// SortMode orders a filtered list.
type SortMode string

const (
	SortManual    SortMode = "manual"
	SortNewest    SortMode = "newest"
	SortOldest    SortMode = "oldest"
	SortTitleAsc  SortMode = "title-asc"
	SortTitleDesc SortMode = "title-desc"
	SortDomain    SortMode = "domain"
)

// DefaultSortMode is used until the user picks one.
const DefaultSortMode = SortNewest

func ParseSortMode(s string) (SortMode, error) {
	switch m := SortMode(strings.TrimSpace(s)); m {
	case SortManual, SortNewest, SortOldest, SortTitleAsc, SortTitleDesc, SortDomain:
		return m, nil
	case "":
		return DefaultSortMode, nil
	default:
		return "", fmt.Errorf("unknown sort mode %q", s)
	}
}

// Query is the full input of Filter.
type Query struct {
	View   View
	Search string
	Sort   SortMode
	// Locale drives title collation, e.g. "en" or "fr". Empty means English.
	Locale string
}

// Filter is a pure function of (bookmarks, view, search, sort). The input
// order is the manual order. For the search view the relevance order is kept
// and the sort mode is ignored.
func Filter(bookmarks []Bookmark, q Query) []Bookmark {
	if q.View.Kind == ViewSearch {
		return Search(bookmarks, q.Search)
	}

	out := make([]Bookmark, 0, len(bookmarks))
	for _, b := range bookmarks {
		if q.View.Matches(b) {
			out = append(out, b.Clone())
		}
	}
	Sort(out, q.Sort, q.Locale)
	return out
}

// Sort orders bookmarks in place. SortManual keeps the current order.
func Sort(bookmarks []Bookmark, mode SortMode, locale string) {
	switch mode {
	case SortManual:
		return
	case SortOldest:
		sort.SliceStable(bookmarks, func(i, j int) bool {
			return bookmarks[i].CreatedAt.Before(bookmarks[j].CreatedAt)
		})
	case SortTitleAsc, SortTitleDesc:
		c := newCollator(locale)
		desc := mode == SortTitleDesc
		sort.SliceStable(bookmarks, func(i, j int) bool {
			cmp := c.CompareString(bookmarks[i].Title, bookmarks[j].Title)
			if desc {
				return cmp > 0
			}
			return cmp < 0
		})
	case SortDomain:
		c := newCollator(locale)
		sort.SliceStable(bookmarks, func(i, j int) bool {
			return c.CompareString(bookmarks[i].Hostname(), bookmarks[j].Hostname()) < 0
		})
	default:
		sort.SliceStable(bookmarks, func(i, j int) bool {
			return bookmarks[i].CreatedAt.After(bookmarks[j].CreatedAt)
		})
	}
}

func newCollator(locale string) *collate.Collator {
	tag := language.English
	if locale != "" {
		if t, err := language.Parse(locale); err == nil {
			tag = t
		}
	}
	return collate.New(tag, collate.IgnoreCase)
}
