// Package metadata scrapes title, description, favicon and cover image
// from a web page. It is best effort and never returns an error.
package metadata

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/logger"
	"github.com/MrSnakeDoc/stash/internal/webfetch"
)

type Fetcher struct {
	client *webfetch.Client
	log    logger.Logger
}

func NewFetcher(client *webfetch.Client, log logger.Logger) *Fetcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Fetcher{client: client, log: log}
}

// Fetch downloads rawURL and parses it. On any failure the zero value is
// returned, which callers treat as "nothing to patch".
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) domain.PageMetadata {
	page, err := f.client.Get(ctx, rawURL)
	if err != nil {
		f.log.Debug("metadata fetch failed", logger.String("url", rawURL), logger.Error(err))
		return domain.PageMetadata{}
	}
	md, err := Parse(page.Body, page.URL)
	if err != nil {
		f.log.Debug("metadata parse failed", logger.String("url", rawURL), logger.Error(err))
		return domain.PageMetadata{}
	}
	return md
}

// Parse extracts metadata from an HTML document. Relative links resolve
// against pageURL.
func Parse(html []byte, pageURL string) (domain.PageMetadata, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return domain.PageMetadata{}, err
	}
	base, _ := url.Parse(pageURL)

	md := domain.PageMetadata{
		Title: firstNonEmpty(
			meta(doc, "og:title"),
			meta(doc, "twitter:title"),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		Description: firstNonEmpty(
			meta(doc, "og:description"),
			meta(doc, "description"),
			meta(doc, "twitter:description"),
		),
		CoverImage: resolve(base, firstNonEmpty(
			meta(doc, "og:image"),
			meta(doc, "twitter:image"),
		)),
	}

	for _, sel := range []string{`link[rel="icon"]`, `link[rel="shortcut icon"]`, `link[rel="apple-touch-icon"]`} {
		if href, ok := doc.Find(sel).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			md.Favicon = resolve(base, href)
			break
		}
	}
	if md.Favicon == "" {
		md.Favicon = domain.FeedFavicon(pageURL)
	}
	return md, nil
}

func meta(doc *goquery.Document, key string) string {
	sel := doc.Find(`meta[property="` + key + `"]`)
	if sel.Length() == 0 {
		sel = doc.Find(`meta[name="` + key + `"]`)
	}
	v, _ := sel.First().Attr("content")
	return strings.TrimSpace(v)
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
