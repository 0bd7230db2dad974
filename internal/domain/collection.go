package domain

import "time"

// Collection groups bookmarks. Deleting one never deletes its members.
type Collection struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
