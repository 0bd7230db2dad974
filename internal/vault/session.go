package vault

import (
	"context"
	"strings"

	"github.com/MrSnakeDoc/stash/internal/domain"
)

// Session is the capability returned by Setup and Unlock. It holds the
// decrypted items and the password; Lock wipes both and every method then
// returns ErrLocked.
type Session struct {
	v      *Vault
	secret []byte
	items  []domain.VaultBookmark
	closed bool
}

// NewVaultBookmark is the input of Session.Add.
type NewVaultBookmark struct {
	URL         string
	Title       string
	Description string
	Favicon     string
	CoverImage  string
	Tags        []string
	Notes       string
}

// Items returns a copy of the decrypted bookmarks, newest first.
func (s *Session) Items() ([]domain.VaultBookmark, error) {
	s.v.mu.Lock()
	defer s.v.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}
	out := make([]domain.VaultBookmark, len(s.items))
	for i, it := range s.items {
		out[i] = it.Clone()
	}
	return out, nil
}

// Search filters the items by a case-insensitive substring over title,
// URL, description, notes and tags.
func (s *Session) Search(query string) ([]domain.VaultBookmark, error) {
	items, err := s.Items()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items, nil
	}
	out := items[:0]
	for _, it := range items {
		hay := strings.ToLower(strings.Join(append([]string{it.Title, it.URL, it.Description, it.Notes}, it.Tags...), "\n"))
		if strings.Contains(hay, q) {
			out = append(out, it)
		}
	}
	return out, nil
}

// Add inserts a bookmark at the head and persists the re-encrypted list.
// On a write failure the item stays in memory and the error is returned.
func (s *Session) Add(ctx context.Context, in NewVaultBookmark) (domain.VaultBookmark, error) {
	url, err := domain.CanonicalURL(in.URL)
	if err != nil {
		return domain.VaultBookmark{}, err
	}

	s.v.mu.Lock()
	defer s.v.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return domain.VaultBookmark{}, err
	}

	now := s.v.now()
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = domain.PlaceholderTitle(url)
	}
	b := domain.VaultBookmark{
		ID:          s.v.newID(),
		URL:         url,
		Title:       title,
		Description: in.Description,
		Favicon:     in.Favicon,
		CoverImage:  in.CoverImage,
		Tags:        domain.NormalizeTags(in.Tags),
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.items = append([]domain.VaultBookmark{b}, s.items...)
	s.v.lastActivity = now
	err = s.v.persistLocked(ctx, s)
	s.v.publish("add")
	return b.Clone(), err
}

// Update patches one bookmark and persists.
func (s *Session) Update(ctx context.Context, id string, p domain.VaultPatch) (domain.VaultBookmark, error) {
	if p.URL != nil {
		u, err := domain.CanonicalURL(*p.URL)
		if err != nil {
			return domain.VaultBookmark{}, err
		}
		p.URL = &u
	}

	s.v.mu.Lock()
	defer s.v.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return domain.VaultBookmark{}, err
	}
	i := s.indexOf(id)
	if i < 0 {
		return domain.VaultBookmark{}, ErrNotFound
	}

	now := s.v.now()
	p.Apply(&s.items[i])
	s.items[i].UpdatedAt = now
	s.v.lastActivity = now
	err := s.v.persistLocked(ctx, s)
	s.v.publish("update")
	return s.items[i].Clone(), err
}

// Delete removes one bookmark and persists.
func (s *Session) Delete(ctx context.Context, id string) error {
	s.v.mu.Lock()
	defer s.v.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	i := s.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.v.lastActivity = s.v.now()
	err := s.v.persistLocked(ctx, s)
	s.v.publish("delete")
	return err
}

// Unlocked reports whether the session is still usable.
func (s *Session) Unlocked() bool {
	s.v.mu.Lock()
	defer s.v.mu.Unlock()
	return s.checkLocked() == nil
}

func (s *Session) checkLocked() error {
	if s.closed || s.v.session != s {
		return ErrLocked
	}
	return nil
}

func (s *Session) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) setSecret(password []byte) {
	wipe(s.secret)
	s.secret = append([]byte(nil), password...)
}

// close wipes the secret and drops the plaintext. Callers hold v.mu.
func (s *Session) close() {
	wipe(s.secret)
	s.secret = nil
	for i := range s.items {
		s.items[i] = domain.VaultBookmark{}
	}
	s.items = nil
	s.closed = true
}
