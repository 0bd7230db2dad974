package domain

// PageMetadata is the best-effort result of scraping a page.
type PageMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Favicon     string `json:"favicon"`
	CoverImage  string `json:"coverImage"`
}

// ExtractedContent is the readable form of a page.
type ExtractedContent struct {
	Title    string
	Markdown string
	Words    int
}
