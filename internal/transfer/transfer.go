// Package transfer converts the library to and from exchange formats:
// our own JSON export, Netscape bookmark HTML, OPML for feeds and
// Homepage (gethomepage.dev) YAML.
package transfer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/items"
)

// Format names a supported file format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatHTML     Format = "html"
	FormatOPML     Format = "opml"
	FormatHomepage Format = "homepage"
)

// ErrUnknownFormat is returned when a file cannot be classified.
var ErrUnknownFormat = errors.New("unknown import format")

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatHTML, FormatOPML, FormatHomepage:
		return f, nil
	case "yaml", "yml":
		return FormatHomepage, nil
	case "htm":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Detect guesses the format from the file name, then from the content.
func Detect(name string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".opml":
		return FormatOPML, nil
	case ".yaml", ".yml":
		return FormatHomepage, nil
	}

	head := bytes.ToLower(bytes.TrimSpace(data))
	if len(head) > 512 {
		head = head[:512]
	}
	switch {
	case bytes.HasPrefix(head, []byte("[")):
		return FormatJSON, nil
	case bytes.Contains(head, []byte("<opml")):
		return FormatOPML, nil
	case bytes.Contains(head, []byte("netscape-bookmark-file")), bytes.Contains(head, []byte("<dl")):
		return FormatHTML, nil
	case bytes.HasPrefix(head, []byte("---")), bytes.HasPrefix(head, []byte("- ")):
		return FormatHomepage, nil
	}
	return "", ErrUnknownFormat
}

// Batch is the parsed content of an import file.
type Batch struct {
	Bookmarks []domain.NewBookmark
	Feeds     []items.FeedSeed
}

// Parse decodes r according to f.
func Parse(f Format, r io.Reader) (Batch, error) {
	switch f {
	case FormatJSON:
		bs, err := ParseJSON(r)
		return Batch{Bookmarks: bs}, err
	case FormatHTML:
		bs, err := ParseHTML(r)
		return Batch{Bookmarks: bs}, err
	case FormatOPML:
		fs, err := ParseOPML(r)
		return Batch{Feeds: fs}, err
	case FormatHomepage:
		bs, err := ParseHomepage(r)
		return Batch{Bookmarks: bs}, err
	default:
		return Batch{}, ErrUnknownFormat
	}
}

// Export writes the manual bookmarks (f is JSON or HTML) or the feeds (OPML).
func Export(w io.Writer, f Format, bookmarks []domain.Bookmark, feeds []domain.Feed) error {
	switch f {
	case FormatJSON:
		return ExportJSON(w, bookmarks)
	case FormatHTML:
		return ExportHTML(w, bookmarks)
	case FormatOPML:
		return ExportOPML(w, feeds)
	default:
		return fmt.Errorf("%w: cannot export %q", ErrUnknownFormat, f)
	}
}

func manualOnly(bookmarks []domain.Bookmark) []domain.Bookmark {
	out := make([]domain.Bookmark, 0, len(bookmarks))
	for _, b := range bookmarks {
		if b.Source == domain.SourceFeed {
			continue
		}
		b = b.Clone()
		b.Loading = false
		out = append(out, b)
	}
	return out
}
