package domain

import (
	"math"
	"sort"
	"strings"
)

const (
	// Scoring weights
	ScoreExactMatch     = 100.0
	ScorePrefixMatch    = 75.0
	ScoreSubstringMatch = 50.0
	ScoreWordsMatch     = 25.0

	// Position bonus (earlier is better)
	ScorePositionBonus = 10.0

	// Field weights: a hit in the title counts more than one in the notes.
	weightTitle       = 1.0
	weightTag         = 0.9
	weightURL         = 0.6
	weightDescription = 0.5
	weightNotes       = 0.4
)

// SearchHit is a bookmark with its relevance score.
type SearchHit struct {
	Bookmark Bookmark
	Score    float64
}

// ScoreBookmark scores b against a query. Zero means no match.
func ScoreBookmark(query string, b Bookmark) float64 {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return 0.0
	}

	best := scoreField(query, b.Title) * weightTitle
	for _, t := range b.Tags {
		best = math.Max(best, scoreField(query, t)*weightTag)
	}
	best = math.Max(best, scoreField(query, b.URL)*weightURL)
	best = math.Max(best, scoreField(query, b.Description)*weightDescription)
	best = math.Max(best, scoreField(query, b.Notes)*weightNotes)
	return best
}

// scoreField scores one text field: exact, prefix, substring (earlier is
// better), then all query words present in any order.
func scoreField(query, field string) float64 {
	field = strings.ToLower(strings.TrimSpace(field))
	if field == "" {
		return 0.0
	}

	if query == field {
		return ScoreExactMatch + ScorePositionBonus
	}
	if strings.HasPrefix(field, query) {
		return ScorePrefixMatch + ScorePositionBonus
	}
	if idx := strings.Index(field, query); idx >= 0 {
		bonus := ScorePositionBonus * (1.0 - float64(idx)/float64(len(field)))
		return ScoreSubstringMatch + bonus
	}

	words := strings.Fields(query)
	if len(words) < 2 {
		return 0.0
	}
	for _, w := range words {
		if !strings.Contains(field, w) {
			return 0.0
		}
	}
	return ScoreWordsMatch
}

// RankBookmarks returns every matching bookmark, best first. Ties keep the
// input order.
func RankBookmarks(query string, bookmarks []Bookmark) []SearchHit {
	hits := make([]SearchHit, 0, len(bookmarks))
	for _, b := range bookmarks {
		score := ScoreBookmark(query, b)
		if score == 0.0 {
			continue
		}
		hits = append(hits, SearchHit{Bookmark: b.Clone(), Score: score})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	return hits
}

// Search returns matches in relevance order. A blank query returns the
// input unchanged (copied).
func Search(bookmarks []Bookmark, query string) []Bookmark {
	if strings.TrimSpace(query) == "" {
		out := make([]Bookmark, len(bookmarks))
		for i, b := range bookmarks {
			out[i] = b.Clone()
		}
		return out
	}
	hits := RankBookmarks(query, bookmarks)
	out := make([]Bookmark, len(hits))
	for i, h := range hits {
		out[i] = h.Bookmark
	}
	return out
}
