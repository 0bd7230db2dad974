package transfer

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/items"
)

type opmlDoc struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    opmlHead `xml:"head"`
	Body    opmlBody `xml:"body"`
}

type opmlHead struct {
	Title       string `xml:"title"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr,omitempty"`
	Type     string        `xml:"type,attr,omitempty"`
	XMLURL   string        `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string        `xml:"htmlUrl,attr,omitempty"`
	Outlines []opmlOutline `xml:"outline"`
}

// ExportOPML writes the subscriptions as OPML 2.0 under a single group.
func ExportOPML(w io.Writer, feeds []domain.Feed) error {
	group := opmlOutline{Text: "Stash Feeds", Title: "Stash Feeds"}
	for _, f := range feeds {
		group.Outlines = append(group.Outlines, opmlOutline{
			Text:    f.Title,
			Title:   f.Title,
			Type:    "rss",
			XMLURL:  f.URL,
			HTMLURL: f.SiteURL,
		})
	}
	doc := opmlDoc{
		Version: "2.0",
		Head: opmlHead{
			Title:       "Stash Feed Subscriptions",
			DateCreated: time.Now().UTC().Format(time.RFC1123Z),
		},
		Body: opmlBody{Outlines: []opmlOutline{group}},
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode opml: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// ParseOPML returns every outline carrying an xmlUrl, at any depth.
func ParseOPML(r io.Reader) ([]items.FeedSeed, error) {
	var doc opmlDoc
	dec := xml.NewDecoder(r)
	dec.Strict = false
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse opml: %w", err)
	}

	var out []items.FeedSeed
	var walk func([]opmlOutline)
	walk = func(os []opmlOutline) {
		for _, o := range os {
			if u := strings.TrimSpace(o.XMLURL); u != "" {
				out = append(out, items.FeedSeed{
					URL:     u,
					Title:   strings.TrimSpace(firstOf(o.Title, o.Text)),
					SiteURL: strings.TrimSpace(o.HTMLURL),
				})
			}
			walk(o.Outlines)
		}
	}
	walk(doc.Body.Outlines)
	return out, nil
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
