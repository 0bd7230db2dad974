package domain

import "time"

// VaultBookmark is the reduced bookmark shape stored inside the encrypted
// vault blob. It has no archive/read flags and no feed linkage.
type VaultBookmark struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Favicon     string    `json:"favicon,omitempty"`
	CoverImage  string    `json:"coverImage,omitempty"`
	Tags        []string  `json:"tags"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Clone returns a deep copy.
func (v VaultBookmark) Clone() VaultBookmark {
	v.Tags = append([]string{}, v.Tags...)
	return v
}

// VaultPatch is a partial update of a vault bookmark.
type VaultPatch struct {
	URL         *string   `json:"url,omitempty"`
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Favicon     *string   `json:"favicon,omitempty"`
	CoverImage  *string   `json:"coverImage,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
}

// Apply merges the patch into v.
func (p VaultPatch) Apply(v *VaultBookmark) {
	setIf(&v.URL, p.URL)
	setIf(&v.Title, p.Title)
	setIf(&v.Description, p.Description)
	setIf(&v.Favicon, p.Favicon)
	setIf(&v.CoverImage, p.CoverImage)
	if p.Tags != nil {
		v.Tags = NormalizeTags(*p.Tags)
	}
	setIf(&v.Notes, p.Notes)
}
