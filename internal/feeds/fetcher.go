// Package feeds fetches and parses RSS and Atom documents.
package feeds

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/webfetch"
)

const (
	// DescriptionLimit is the number of characters kept from item summaries.
	DescriptionLimit = 300
	untitledFeed     = "Untitled Feed"
	untitledItem     = "Untitled"
)

type Fetcher struct {
	client *webfetch.Client
	parser *gofeed.Parser
	now    func() time.Time
}

func NewFetcher(client *webfetch.Client) *Fetcher {
	return &Fetcher{client: client, parser: gofeed.NewParser(), now: time.Now}
}

// Fetch downloads and parses feedURL.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (domain.FeedDocument, error) {
	page, err := f.client.Get(ctx, feedURL)
	if err != nil {
		return domain.FeedDocument{}, err
	}
	return f.Parse(page.Body)
}

// Parse converts a raw RSS/Atom/JSON feed.
func (f *Fetcher) Parse(data []byte) (domain.FeedDocument, error) {
	feed, err := f.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return domain.FeedDocument{}, fmt.Errorf("parsing feed: %w", err)
	}

	doc := domain.FeedDocument{
		Title:   strings.TrimSpace(feed.Title),
		SiteURL: strings.TrimSpace(feed.Link),
		Items:   make([]domain.FeedItem, 0, len(feed.Items)),
	}
	if doc.Title == "" {
		doc.Title = untitledFeed
	}
	for _, it := range feed.Items {
		doc.Items = append(doc.Items, f.convertItem(it))
	}
	return doc, nil
}

func (f *Fetcher) convertItem(it *gofeed.Item) domain.FeedItem {
	var published time.Time
	switch {
	case it.PublishedParsed != nil:
		published = *it.PublishedParsed
	case it.UpdatedParsed != nil:
		published = *it.UpdatedParsed
	default:
		published = f.now()
	}

	summary := it.Description
	if strings.TrimSpace(summary) == "" {
		summary = it.Content
	}

	link := strings.TrimSpace(it.Link)
	guid := strings.TrimSpace(it.GUID)
	if guid == "" {
		guid = link
	}
	title := strings.TrimSpace(it.Title)
	if title == "" {
		title = untitledItem
	}

	var image string
	if it.Image != nil {
		image = it.Image.URL
	}
	if image == "" {
		for _, enc := range it.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") {
				image = enc.URL
				break
			}
		}
	}

	return domain.FeedItem{
		GUID:        guid,
		Title:       title,
		URL:         link,
		Description: Summarize(summary),
		Image:       image,
		PublishedAt: published.UTC(),
	}
}

// Summarize strips markup and truncates to DescriptionLimit characters.
func Summarize(html string) string {
	text := html
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		text = doc.Text()
	}
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= DescriptionLimit {
		return text
	}
	return string([]rune(text)[:DescriptionLimit])
}
