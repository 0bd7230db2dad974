package domain

// BookmarkPatch is a partial update. Nil fields are left untouched.
type BookmarkPatch struct {
	URL              *string   `json:"url,omitempty"`
	Title            *string   `json:"title,omitempty"`
	Description      *string   `json:"description,omitempty"`
	Favicon          *string   `json:"favicon,omitempty"`
	CoverImage       *string   `json:"coverImage,omitempty"`
	Tags             *[]string `json:"tags,omitempty"`
	CollectionID     *string   `json:"collectionId,omitempty"`
	IsFavorite       *bool     `json:"isFavorite,omitempty"`
	IsArchived       *bool     `json:"isArchived,omitempty"`
	IsRead           *bool     `json:"isRead,omitempty"`
	ExtractedContent *string   `json:"extractedContent,omitempty"`
	Notes            *string   `json:"notes,omitempty"`
	ReadingMinutes   *int      `json:"readingMinutes,omitempty"`
	Loading          *bool     `json:"loading,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// IsEmpty reports whether the patch changes nothing.
func (p BookmarkPatch) IsEmpty() bool {
	return p.URL == nil && p.Title == nil && p.Description == nil &&
		p.Favicon == nil && p.CoverImage == nil && p.Tags == nil &&
		p.CollectionID == nil && p.IsFavorite == nil && p.IsArchived == nil &&
		p.IsRead == nil && p.ExtractedContent == nil && p.Notes == nil &&
		p.ReadingMinutes == nil && p.Loading == nil
}

// Apply merges the patch into b. UpdatedAt is left to the caller.
func (p BookmarkPatch) Apply(b *Bookmark) {
	setIf(&b.URL, p.URL)
	setIf(&b.Title, p.Title)
	setIf(&b.Description, p.Description)
	setIf(&b.Favicon, p.Favicon)
	setIf(&b.CoverImage, p.CoverImage)
	if p.Tags != nil {
		b.Tags = append([]string{}, (*p.Tags)...)
	}
	setIf(&b.CollectionID, p.CollectionID)
	setIf(&b.IsFavorite, p.IsFavorite)
	setIf(&b.IsArchived, p.IsArchived)
	setIf(&b.IsRead, p.IsRead)
	setIf(&b.ExtractedContent, p.ExtractedContent)
	setIf(&b.Notes, p.Notes)
	setIf(&b.ReadingMinutes, p.ReadingMinutes)
	setIf(&b.Loading, p.Loading)
}

// Inverse returns the patch that restores, from before, every field p touches.
func (p BookmarkPatch) Inverse(before Bookmark) BookmarkPatch {
	var inv BookmarkPatch
	if p.URL != nil {
		inv.URL = Ptr(before.URL)
	}
	if p.Title != nil {
		inv.Title = Ptr(before.Title)
	}
	if p.Description != nil {
		inv.Description = Ptr(before.Description)
	}
	if p.Favicon != nil {
		inv.Favicon = Ptr(before.Favicon)
	}
	if p.CoverImage != nil {
		inv.CoverImage = Ptr(before.CoverImage)
	}
	if p.Tags != nil {
		inv.Tags = Ptr(append([]string{}, before.Tags...))
	}
	if p.CollectionID != nil {
		inv.CollectionID = Ptr(before.CollectionID)
	}
	if p.IsFavorite != nil {
		inv.IsFavorite = Ptr(before.IsFavorite)
	}
	if p.IsArchived != nil {
		inv.IsArchived = Ptr(before.IsArchived)
	}
	if p.IsRead != nil {
		inv.IsRead = Ptr(before.IsRead)
	}
	if p.ExtractedContent != nil {
		inv.ExtractedContent = Ptr(before.ExtractedContent)
	}
	if p.Notes != nil {
		inv.Notes = Ptr(before.Notes)
	}
	if p.ReadingMinutes != nil {
		inv.ReadingMinutes = Ptr(before.ReadingMinutes)
	}
	if p.Loading != nil {
		inv.Loading = Ptr(before.Loading)
	}
	return inv
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
