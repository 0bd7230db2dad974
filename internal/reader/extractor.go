// Package reader turns a web page into readable Markdown.
package reader

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/webfetch"
)

// ErrNoContent means no readable block was found.
var ErrNoContent = errors.New("no readable content")

// noise is stripped before looking for the main block.
var noise = []string{
	"script", "style", "noscript", "nav", "header", "footer", "aside", "iframe", "form",
	`[role="navigation"]`, `[role="banner"]`, ".sidebar", ".nav", ".footer",
	".header", ".ads", ".advertisement", ".social-share", ".comments",
	".related", ".share", ".newsletter",
}

type Extractor struct {
	client    *webfetch.Client
	converter *md.Converter
}

func NewExtractor(client *webfetch.Client) *Extractor {
	return &Extractor{client: client, converter: md.NewConverter("", true, nil)}
}

// Extract fetches rawURL and returns its main content.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (domain.ExtractedContent, error) {
	page, err := e.client.Get(ctx, rawURL)
	if err != nil {
		return domain.ExtractedContent{}, err
	}
	return e.FromHTML(page.Body, page.URL)
}

// FromHTML extracts from an already downloaded document.
func (e *Extractor) FromHTML(html []byte, pageURL string) (domain.ExtractedContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return domain.ExtractedContent{}, err
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find(strings.Join(noise, ", ")).Remove()

	main := mainBlock(doc)
	if main == nil {
		return domain.ExtractedContent{}, ErrNoContent
	}
	words := countWords(main)
	if words == 0 {
		return domain.ExtractedContent{}, ErrNoContent
	}

	inner, err := main.Html()
	if err != nil {
		return domain.ExtractedContent{}, err
	}
	conv := e.converter
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		// relative links resolve against the page host
		conv = md.NewConverter(u.Host, true, nil)
	}
	markdown, err := conv.ConvertString(inner)
	if err != nil {
		return domain.ExtractedContent{}, err
	}

	return domain.ExtractedContent{
		Title:    title,
		Markdown: strings.TrimSpace(markdown),
		Words:    words,
	}, nil
}

// mainBlock prefers semantic containers, then the div or section with the
// most paragraphs (at least two), then the body.
func mainBlock(doc *goquery.Document) *goquery.Selection {
	for _, sel := range []string{"article", "main", `[role="main"]`} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}

	var best *goquery.Selection
	bestCount := 0
	doc.Find("div, section").Each(func(_ int, s *goquery.Selection) {
		if n := s.Find("p").Length(); n > bestCount {
			bestCount = n
			best = s
		}
	})
	if bestCount >= 2 {
		return best
	}
	if body := doc.Find("body"); body.Length() > 0 {
		return body
	}
	return nil
}

// countWords sums the words of every text node so adjacent blocks do not
// run together.
func countWords(s *goquery.Selection) int {
	n := 0
	s.Find("*").AddBack().Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			n += domain.CountWords(c.Text())
		}
	})
	return n
}
