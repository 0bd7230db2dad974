package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/stash/internal/config"
	"github.com/MrSnakeDoc/stash/internal/events"
	"github.com/MrSnakeDoc/stash/internal/feeds"
	"github.com/MrSnakeDoc/stash/internal/items"
	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/logger"
	"github.com/MrSnakeDoc/stash/internal/metadata"
	"github.com/MrSnakeDoc/stash/internal/metrics"
	"github.com/MrSnakeDoc/stash/internal/prefs"
	"github.com/MrSnakeDoc/stash/internal/reader"
	"github.com/MrSnakeDoc/stash/internal/undo"
	"github.com/MrSnakeDoc/stash/internal/utils"
	"github.com/MrSnakeDoc/stash/internal/vault"
	"github.com/MrSnakeDoc/stash/internal/vaultcrypto"
	"github.com/MrSnakeDoc/stash/internal/webfetch"
)

// Core holds the stores and their collaborators. The service and every
// CLI command share it; nothing here is global.
type Core struct {
	Cfg     *config.Config
	Logger  logger.Logger
	KV      kv.Store
	Bus     *events.Bus
	Metrics *metrics.Metrics

	Items *items.Store
	Prefs *prefs.Store
	Vault *vault.Vault
}

// Open connects the storage backend and loads every store.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (*Core, error) {
	store, err := OpenStorage(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage, err)
	}
	log.Info("storage ready", logger.String("backend", cfg.Storage))

	c := &Core{
		Cfg:     cfg,
		Logger:  log,
		KV:      store,
		Bus:     events.NewBus(),
		Metrics: metrics.New(),
	}

	client := webfetch.New(cfg.FetchTimeout)
	c.Items = items.New(store, items.Options{
		Metadata:     metadata.NewFetcher(client, log),
		Extractor:    reader.NewExtractor(client),
		Feeds:        feeds.NewFetcher(client),
		UndoLog:      undo.NewLog(undo.DefaultCapacity),
		UndoWindow:   cfg.UndoWindow,
		FetchTimeout: cfg.FetchTimeout,
		Locale:       cfg.Locale,
		Logger:       log.With(logger.String("store", "items")),
		Publisher:    c.Bus,
		Metrics:      c.Metrics,
	})
	c.Prefs = prefs.New(store, prefs.Options{
		Logger:    log.With(logger.String("store", "prefs")),
		Publisher: c.Bus,
	})
	c.Vault = vault.New(store, vaultcrypto.New(vaultcrypto.Options{KDF: vaultcrypto.KDF(cfg.VaultKDF)}), vault.Options{
		Logger:    log.With(logger.String("store", "vault")),
		Publisher: c.Bus,
		Metrics:   c.Metrics,
	})

	if err := c.load(ctx); err != nil {
		utils.Close(store)
		return nil, err
	}
	return c, nil
}

func (c *Core) load(ctx context.Context) error {
	if err := c.Items.Load(ctx); err != nil {
		return fmt.Errorf("load bookmarks: %w", err)
	}
	if err := c.Prefs.Load(ctx); err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	if err := c.Vault.Load(ctx); err != nil {
		return fmt.Errorf("load vault: %w", err)
	}
	c.Logger.Info("stores loaded",
		logger.Int("bookmarks", c.Items.Len()),
		logger.String("vault", c.Vault.State().String()))
	return nil
}

// FeedRefreshInterval prefers the configured override over the stored
// preference.
func (c *Core) FeedRefreshInterval() func() time.Duration {
	return func() time.Duration {
		if c.Cfg.FeedRefreshInterval > 0 {
			return c.Cfg.FeedRefreshInterval
		}
		return c.Prefs.FeedRefreshInterval()
	}
}

// Close locks the vault, flushes the item store and closes the backend.
func (c *Core) Close(ctx context.Context) error {
	c.Vault.Lock()
	var errs []error
	if err := c.Items.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush bookmarks: %w", err))
	}
	utils.CloseLogged(c.KV, c.Logger, c.Cfg.Storage+" storage")
	return errors.Join(errs...)
}
