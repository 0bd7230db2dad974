package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MrSnakeDoc/stash/internal/domain"
)

// ExportJSON writes every manual bookmark as an indented JSON array.
func ExportJSON(w io.Writer, bookmarks []domain.Bookmark) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(manualOnly(bookmarks))
}

// jsonBookmark is lenient: any missing field takes its default.
type jsonBookmark struct {
	URL            string    `json:"url"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Favicon        string    `json:"favicon"`
	CoverImage     string    `json:"coverImage"`
	Tags           []string  `json:"tags"`
	Notes          string    `json:"notes"`
	IsFavorite     bool      `json:"isFavorite"`
	IsArchived     bool      `json:"isArchived"`
	IsRead         bool      `json:"isRead"`
	ReadingMinutes int       `json:"readingMinutes"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ParseJSON reads the array produced by ExportJSON. Entries without a URL
// are kept so the import can count them as invalid.
func ParseJSON(r io.Reader) ([]domain.NewBookmark, error) {
	var raw []jsonBookmark
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "" {
			return nil, fmt.Errorf("invalid format: expected an array")
		}
		return nil, fmt.Errorf("parse json: %w", err)
	}

	out := make([]domain.NewBookmark, 0, len(raw))
	for _, jb := range raw {
		out = append(out, domain.NewBookmark{
			URL:            jb.URL,
			Title:          jb.Title,
			Description:    jb.Description,
			Favicon:        jb.Favicon,
			CoverImage:     jb.CoverImage,
			Tags:           jb.Tags,
			Notes:          jb.Notes,
			IsFavorite:     jb.IsFavorite,
			IsArchived:     jb.IsArchived,
			IsRead:         jb.IsRead,
			ReadingMinutes: jb.ReadingMinutes,
			PublishedAt:    jb.CreatedAt,
			SkipEnrich:     true,
		})
	}
	return out, nil
}
