package domain

import "time"

// Feed is an RSS/Atom subscription. Its items live in the bookmark list
// with Source == SourceFeed and FeedID pointing here.
type Feed struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	SiteURL       string    `json:"siteUrl"`
	Title         string    `json:"title"`
	Favicon       string    `json:"favicon,omitempty"`
	ErrorCount    int       `json:"errorCount"`
	LastFetchedAt time.Time `json:"lastFetchedAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// FeedDocument is what a feed fetcher returns.
type FeedDocument struct {
	Title   string
	SiteURL string
	Items   []FeedItem
}

// FeedItem is one entry of a FeedDocument.
type FeedItem struct {
	GUID        string
	Title       string
	URL         string
	Description string
	Image       string
	PublishedAt time.Time
}

// FeedFavicon guesses the icon of a site from its origin.
func FeedFavicon(siteURL string) string {
	origin := Origin(siteURL)
	if origin == "" {
		return ""
	}
	return origin + "/favicon.ico"
}
