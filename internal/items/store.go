// Package items is the canonical bookmark, collection and feed store.
// Mutations change memory first, then write the affected slots; a failed
// write is returned but never rolled back, and the slot is retried on the
// next write or Flush.
package items

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/events"
	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/logger"
	"github.com/MrSnakeDoc/stash/internal/metrics"
	"github.com/MrSnakeDoc/stash/internal/undo"
)

var (
	ErrNotFound           = errors.New("bookmark not found")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrFeedNotFound       = errors.New("feed not found")
	ErrEmptyName          = errors.New("name must not be empty")
	ErrNoFeedFetcher      = errors.New("no feed fetcher configured")
	ErrNoExtractor        = errors.New("no content extractor configured")
	ErrRefreshInProgress  = errors.New("feed refresh already in progress")
)

const (
	DefaultUndoWindow   = 10 * time.Second
	DefaultFetchTimeout = 8 * time.Second
)

// MetadataFetcher scrapes a page. It must not fail; empty fields mean
// nothing was found.
type MetadataFetcher interface {
	Fetch(ctx context.Context, url string) domain.PageMetadata
}

// ContentExtractor produces reader-mode content.
type ContentExtractor interface {
	Extract(ctx context.Context, url string) (domain.ExtractedContent, error)
}

// FeedFetcher downloads and parses RSS/Atom.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) (domain.FeedDocument, error)
}

type Options struct {
	Metadata  MetadataFetcher
	Extractor ContentExtractor
	Feeds     FeedFetcher

	UndoLog      *undo.Log
	UndoWindow   time.Duration
	FetchTimeout time.Duration
	// Locale drives title collation ("en", "fr", ...).
	Locale string

	Logger    logger.Logger
	Publisher events.Publisher
	Metrics   *metrics.Metrics

	Now   func() time.Time
	NewID func() string
}

type Store struct {
	mu sync.Mutex

	kv        kv.Store
	metadata  MetadataFetcher
	extractor ContentExtractor
	feedSrc   FeedFetcher
	undo      *undo.Log
	window    time.Duration
	timeout   time.Duration
	locale    string
	log       logger.Logger
	pub       events.Publisher
	m         *metrics.Metrics
	now       func() time.Time
	newID     func() string

	bookmarks   []domain.Bookmark
	collections []domain.Collection
	feeds       []domain.Feed
	sortMode    domain.SortMode

	// dirty holds slots whose last write failed.
	dirty map[kv.Slot]bool

	// seq numbers snapshots under mu; wmu serialises commits and guards
	// committed, the newest snapshot written per slot.
	seq       uint64
	wmu       sync.Mutex
	committed map[kv.Slot]uint64

	// enrichment bookkeeping
	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight map[string]bool

	refreshing atomic.Bool
}

func New(store kv.Store, opts Options) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		kv:        store,
		metadata:  opts.Metadata,
		extractor: opts.Extractor,
		feedSrc:   opts.Feeds,
		undo:      opts.UndoLog,
		window:    opts.UndoWindow,
		timeout:   opts.FetchTimeout,
		locale:    opts.Locale,
		log:       opts.Logger,
		pub:       opts.Publisher,
		m:         opts.Metrics,
		now:       opts.Now,
		newID:     opts.NewID,
		sortMode:  domain.DefaultSortMode,
		dirty:     make(map[kv.Slot]bool),
		committed: make(map[kv.Slot]uint64),
		baseCtx:   ctx,
		cancel:    cancel,
		inflight:  make(map[string]bool),
	}
	if s.undo == nil {
		s.undo = undo.NewLog(undo.DefaultCapacity)
	}
	if s.window <= 0 {
		s.window = DefaultUndoWindow
	}
	if s.timeout <= 0 {
		s.timeout = DefaultFetchTimeout
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.pub == nil {
		s.pub = events.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Load replaces the in-memory state with the persisted slots. Bookmarks
// left in the loading state by a previous run are enriched again.
func (s *Store) Load(ctx context.Context) error {
	var (
		bookmarks   []domain.Bookmark
		collections []domain.Collection
		feeds       []domain.Feed
	)
	if _, err := kv.LoadJSON(ctx, s.kv, kv.SlotBookmarks, &bookmarks); err != nil {
		return err
	}
	if _, err := kv.LoadJSON(ctx, s.kv, kv.SlotCollections, &collections); err != nil {
		return err
	}
	if _, err := kv.LoadJSON(ctx, s.kv, kv.SlotFeeds, &feeds); err != nil {
		return err
	}

	for i := range bookmarks {
		normalizeLoaded(&bookmarks[i])
	}
	if bookmarks == nil {
		bookmarks = []domain.Bookmark{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookmarks = bookmarks
	s.collections = collections
	s.feeds = feeds
	s.dirty = make(map[kv.Slot]bool)
	s.m.SetBookmarks(len(bookmarks))

	canEnrich := s.metadata != nil || s.extractor != nil
	for i, b := range s.bookmarks {
		switch {
		case !b.Loading:
		case canEnrich:
			s.startEnrichLocked(b.ID, b.URL, seedOf(b))
		default:
			s.bookmarks[i].Loading = false
		}
	}
	s.log.Info("item store loaded",
		logger.Int("bookmarks", len(bookmarks)),
		logger.Int("collections", len(collections)),
		logger.Int("feeds", len(feeds)))
	return nil
}

func normalizeLoaded(b *domain.Bookmark) {
	b.Tags = domain.NormalizeTags(b.Tags)
	if b.Source == "" {
		b.Source = domain.SourceManual
	}
}

// Close stops enrichment, waits for in-flight work and flushes dirty slots.
func (s *Store) Close(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Flush(ctx)
}

// Wait blocks until every in-flight enrichment has finished.
func (s *Store) Wait() { s.wg.Wait() }

// Flush retries the writes of every dirty slot.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.dirty) == 0 {
		return nil
	}
	return s.persistLocked(ctx)
}

// Dirty reports whether some slot still needs to be written.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty) > 0
}

// persistLocked snapshots slots plus every dirty slot, then commits them
// with s.mu released so a slow backend does not stall readers. The caller
// holds s.mu on entry and on return, but state may have moved in between.
func (s *Store) persistLocked(ctx context.Context, slots ...kv.Slot) error {
	want := make(map[kv.Slot]bool, len(slots)+len(s.dirty))
	for _, sl := range slots {
		want[sl] = true
	}
	for sl := range s.dirty {
		want[sl] = true
	}
	if len(want) == 0 {
		return nil
	}

	writes := make([]kv.Write, 0, len(want))
	for _, sl := range []kv.Slot{kv.SlotBookmarks, kv.SlotCollections, kv.SlotFeeds} {
		if !want[sl] {
			continue
		}
		w, err := kv.Set(sl, s.slotValueLocked(sl))
		if err != nil {
			return err
		}
		writes = append(writes, w)
	}
	s.seq++
	seq := s.seq

	s.mu.Unlock()
	written, err := s.commit(ctx, seq, writes)
	s.mu.Lock()

	if err != nil {
		for _, sl := range written {
			s.dirty[sl] = true
			s.m.PersistError(string(sl))
		}
		s.log.Error("persist failed", logger.Int("slots", len(written)), logger.Error(err))
		return fmt.Errorf("persist: %w", err)
	}
	for _, sl := range written {
		delete(s.dirty, sl)
	}
	s.m.SetBookmarks(len(s.bookmarks))
	return nil
}

// commit writes the snapshot taken at seq. Slots that already hold a newer
// snapshot are skipped. It returns the slots it tried to write.
func (s *Store) commit(ctx context.Context, seq uint64, writes []kv.Write) ([]kv.Slot, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	fresh := make([]kv.Write, 0, len(writes))
	slots := make([]kv.Slot, 0, len(writes))
	for _, w := range writes {
		if s.committed[w.Slot] >= seq {
			continue
		}
		fresh = append(fresh, w)
		slots = append(slots, w.Slot)
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	if err := s.kv.Commit(ctx, fresh...); err != nil {
		return slots, err
	}
	for _, sl := range slots {
		s.committed[sl] = seq
	}
	return slots, nil
}

func (s *Store) slotValueLocked(sl kv.Slot) any {
	switch sl {
	case kv.SlotCollections:
		if s.collections == nil {
			return []domain.Collection{}
		}
		return s.collections
	case kv.SlotFeeds:
		if s.feeds == nil {
			return []domain.Feed{}
		}
		return s.feeds
	default:
		return s.bookmarks
	}
}

// Get returns a copy of one bookmark.
func (s *Store) Get(id string) (domain.Bookmark, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return domain.Bookmark{}, false
	}
	return s.bookmarks[i].Clone(), true
}

// Bookmarks returns a copy of every bookmark in manual order.
func (s *Store) Bookmarks() []domain.Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.bookmarks)
}

// Len returns the number of bookmarks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bookmarks)
}

func (s *Store) indexLocked(id string) int {
	for i := range s.bookmarks {
		if s.bookmarks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) collectionIndexLocked(id string) int {
	for i := range s.collections {
		if s.collections[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) feedIndexLocked(id string) int {
	for i := range s.feeds {
		if s.feeds[i].ID == id {
			return i
		}
	}
	return -1
}

// record stamps c, pushes it into the undo log and publishes. It returns
// nil for a command that would change nothing.
func (s *Store) recordLocked(c *undo.Command) *undo.Command {
	if c == nil || c.IsNoop() {
		return nil
	}
	now := s.now()
	c.ID = s.newID()
	c.CreatedAt = now
	c.ExpiresAt = now.Add(s.window)
	s.undo.Push(c)
	s.pub.Publish(events.Event{Kind: events.UndoAvailable, Action: string(c.Kind), IDs: []string{c.ID}, At: now})
	return c
}

func (s *Store) changed(kind events.Kind, action string, ids ...string) {
	s.pub.Publish(events.Event{Kind: kind, Action: action, IDs: ids, At: s.now()})
	s.m.Mutation(action)
}

func cloneAll(in []domain.Bookmark) []domain.Bookmark {
	out := make([]domain.Bookmark, len(in))
	for i, b := range in {
		out[i] = b.Clone()
	}
	return out
}

func insertAt[T any](list []T, i int, v T) []T {
	if i < 0 {
		i = 0
	}
	if i > len(list) {
		i = len(list)
	}
	list = append(list, v)
	copy(list[i+1:], list[i:])
	list[i] = v
	return list
}

func removeAt[T any](list []T, i int) []T {
	return append(list[:i], list[i+1:]...)
}
