package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/events"
	"github.com/MrSnakeDoc/stash/internal/items"
	"github.com/MrSnakeDoc/stash/internal/logger"
	"github.com/MrSnakeDoc/stash/internal/metrics"
	"github.com/MrSnakeDoc/stash/internal/vault"
)

// Items is the part of the item store the bridge drives.
type Items interface {
	Add(ctx context.Context, in domain.NewBookmark) (id string, created bool, err error)
	Undo(ctx context.Context, id string) error
	Stats() items.Stats
	Refreshing() bool
}

// Vault is the part of the vault the bridge drives.
type Vault interface {
	Lock()
	Status() vault.Status
}

// Pinger reports whether the storage backend answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger    logger.Logger
	StartTime time.Time
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
	TimeNow   func() time.Time // for testing, defaults to time.Now

	AllowedHosts []string // Host headers accepted on the bridge (DNS rebinding guard)
	AllowedCIDRS []string // client IPs allowed, loopback when empty
	TrustProxy   bool     // resolve client IP from proxy headers
	CORSOrigins  []string // browser-extension origins, "*" for any
	RateBurst    int      // per-IP token bucket size
	RatePerMin   int      // per-IP refill rate

	Items   Items
	Vault   Vault
	Bus     *events.Bus
	Storage Pinger
	Backend string // storage backend name, reported by /api/status
	Metrics *metrics.Metrics

	// FeedRefreshTrigger queues a refresh of every feed (nil when feeds
	// are not wired).
	FeedRefreshTrigger chan struct{}
}

// Now returns d.TimeNow() or time.Now().
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
