package httpserver

import "github.com/MrSnakeDoc/stash/internal/domain"

func newBookmark(url string) domain.NewBookmark {
	return domain.NewBookmark{URL: url}
}
