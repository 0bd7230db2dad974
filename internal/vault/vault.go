// Package vault keeps a second, encrypted-at-rest bookmark set. Plaintext
// and the password exist in memory only inside an unlocked Session.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/stash/internal/domain"
	"github.com/MrSnakeDoc/stash/internal/events"
	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/logger"
	"github.com/MrSnakeDoc/stash/internal/metrics"
	"github.com/MrSnakeDoc/stash/internal/vaultcrypto"
)

// Crypto is the opaque key-derivation and sealing capability.
type Crypto interface {
	Setup(password []byte) ([]byte, error)
	Verify(password, meta []byte) (bool, error)
	Encrypt(password, meta, plaintext []byte) ([]byte, error)
	Decrypt(password, meta, ciphertext []byte) ([]byte, error)
	ChangePassword(oldPassword, newPassword, meta, ciphertext []byte) ([]byte, []byte, error)
}

// State of the vault.
type State int

const (
	Disabled State = iota
	Locked
	Unlocked
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	default:
		return "disabled"
	}
}

// Config is the persisted vault-config slot.
type Config struct {
	Enabled        bool `json:"enabled"`
	SidebarVisible bool `json:"sidebarVisible"`
}

// Status summarises the vault without exposing its content.
type Status struct {
	Enabled        bool   `json:"enabled"`
	Unlocked       bool   `json:"unlocked"`
	Count          int    `json:"count"`
	SidebarVisible bool   `json:"sidebarVisible"`
	State          string `json:"state"`
}

// Options are optional collaborators.
type Options struct {
	Logger    logger.Logger
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Now       func() time.Time
	NewID     func() string
}

// Vault is the state machine. Create it with New, then call Load.
type Vault struct {
	mu sync.Mutex

	store  kv.Store
	crypto Crypto
	log    logger.Logger
	pub    events.Publisher
	m      *metrics.Metrics
	now    func() time.Time
	newID  func() string

	cfg          Config
	meta         []byte
	session      *Session
	lastActivity time.Time
}

func New(store kv.Store, crypto Crypto, opts Options) *Vault {
	v := &Vault{
		store:  store,
		crypto: crypto,
		log:    opts.Logger,
		pub:    opts.Publisher,
		m:      opts.Metrics,
		now:    opts.Now,
		newID:  opts.NewID,
	}
	if v.log == nil {
		v.log = logger.Nop()
	}
	if v.pub == nil {
		v.pub = events.Nop{}
	}
	if v.now == nil {
		v.now = time.Now
	}
	if v.newID == nil {
		v.newID = uuid.NewString
	}
	return v
}

// Load reads config and meta. The vault starts Locked when enabled.
func (v *Vault) Load(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var cfg Config
	if _, err := kv.LoadJSON(ctx, v.store, kv.SlotVaultConfig, &cfg); err != nil {
		return backend("load config", err)
	}

	meta, err := v.store.Get(ctx, kv.SlotVaultMeta)
	switch {
	case err == nil:
	case errors.Is(err, kv.ErrNotFound):
		meta = nil
	default:
		return backend("load meta", err)
	}

	if cfg.Enabled && len(meta) == 0 {
		v.log.Warn("vault config says enabled but meta is missing; treating vault as disabled")
		cfg.Enabled = false
	}
	v.cfg = cfg
	v.meta = meta
	v.log.Info("vault loaded", logger.String("state", v.stateLocked().String()))
	return nil
}

// State returns the current state.
func (v *Vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *Vault) stateLocked() State {
	switch {
	case !v.cfg.Enabled:
		return Disabled
	case v.session == nil:
		return Locked
	default:
		return Unlocked
	}
}

// Status reports enabled/unlocked and the item count (0 while locked).
func (v *Vault) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	st := Status{
		Enabled:        v.cfg.Enabled,
		Unlocked:       v.session != nil,
		SidebarVisible: v.cfg.SidebarVisible,
		State:          v.stateLocked().String(),
	}
	if v.session != nil {
		st.Count = len(v.session.items)
	}
	return st
}

// Setup enables the vault with password and returns an unlocked session
// with no items.
func (v *Vault) Setup(ctx context.Context, password []byte) (*Session, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cfg.Enabled {
		return nil, ErrAlreadyEnabled
	}

	meta, err := v.crypto.Setup(password)
	if err != nil {
		return nil, backend("setup", err)
	}

	cfg := Config{Enabled: true, SidebarVisible: true}
	writes, err := slotWrites(meta, nil, &cfg)
	if err != nil {
		return nil, backend("setup", err)
	}
	if err := v.store.Commit(ctx, writes...); err != nil {
		v.m.PersistError(string(kv.SlotVaultMeta))
		return nil, backend("setup", err)
	}

	v.cfg = cfg
	v.meta = meta
	s := v.openSessionLocked(password, nil)
	v.log.Info("vault set up")
	v.m.VaultTransition("setup")
	v.publish("setup")
	return s, nil
}

// Unlock checks password against the sentinel, then decrypts the blob. A
// blob that fails to decrypt or parse after a correct password yields an
// empty session instead of an error. Unlocking an unlocked vault re-checks
// the password and returns the live session.
func (v *Vault) Unlock(ctx context.Context, password []byte) (*Session, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.cfg.Enabled {
		return nil, ErrNotEnabled
	}
	if err := v.verifyLocked(password); err != nil {
		if errors.Is(err, ErrWrongPassword) {
			v.log.Warn("vault unlock rejected")
			v.m.VaultTransition("unlock_rejected")
		}
		return nil, err
	}
	if v.session != nil {
		v.lastActivity = v.now()
		return v.session, nil
	}

	blob, err := v.readBlobLocked(ctx)
	if err != nil {
		return nil, backend("read blob", err)
	}

	items := v.decodeLocked(password, blob)
	s := v.openSessionLocked(password, items)
	v.log.Info("vault unlocked", logger.Int("items", len(items)))
	v.m.VaultTransition("unlock")
	v.publish("unlock")
	return s, nil
}

// readBlobLocked returns the stored ciphertext. Only a storage failure is
// an error: a slot that does not decode is logged and read as empty.
func (v *Vault) readBlobLocked(ctx context.Context) ([]byte, error) {
	raw, err := v.store.Get(ctx, kv.SlotVaultBlob)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var blob []byte
	if err := json.Unmarshal(raw, &blob); err != nil {
		v.log.Warn("vault blob slot unreadable, starting empty", logger.Error(err))
		return nil, nil
	}
	return blob, nil
}

func (v *Vault) decodeLocked(password, blob []byte) []domain.VaultBookmark {
	if len(blob) == 0 {
		return nil
	}
	plain, err := v.crypto.Decrypt(password, v.meta, blob)
	if err != nil {
		v.log.Warn("vault blob undecryptable, starting empty", logger.Error(err))
		return nil
	}
	defer wipe(plain)

	var items []domain.VaultBookmark
	if err := json.Unmarshal(plain, &items); err != nil {
		v.log.Warn("vault blob unparseable, starting empty", logger.Error(err))
		return nil
	}
	for i := range items {
		if items[i].Tags == nil {
			items[i].Tags = []string{}
		}
	}
	return items
}

// Lock wipes the session. It is unconditional and idempotent.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lockLocked() {
		v.log.Info("vault locked")
		v.m.VaultTransition("lock")
		v.publish("lock")
	}
}

// LockIfIdle locks when no session activity happened for idle.
func (v *Vault) LockIfIdle(idle time.Duration) bool {
	if idle <= 0 {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.session == nil || v.now().Sub(v.lastActivity) < idle {
		return false
	}
	v.lockLocked()
	v.log.Info("vault locked after inactivity", logger.Duration("idle", idle))
	v.m.VaultTransition("idle_lock")
	v.publish("lock")
	return true
}

func (v *Vault) lockLocked() bool {
	s := v.session
	if s == nil {
		return false
	}
	s.close()
	v.session = nil
	return true
}

// ChangePassword re-keys the vault. Meta and blob are written in one
// commit; on any failure neither changes and the old password stays valid.
func (v *Vault) ChangePassword(ctx context.Context, oldPassword, newPassword []byte) error {
	if len(newPassword) == 0 {
		return ErrEmptyPassword
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.cfg.Enabled {
		return ErrNotEnabled
	}
	if v.session == nil {
		return ErrLocked
	}
	if err := v.verifyLocked(oldPassword); err != nil {
		return err
	}

	// The session items are authoritative; the stored blob can be stale
	// after a failed write or unreadable after a recovery.
	plain, err := json.Marshal(v.session.items)
	if err != nil {
		return backend("encode", err)
	}
	defer wipe(plain)
	blob, err := v.crypto.Encrypt(oldPassword, v.meta, plain)
	if err != nil {
		return backend("change password", err)
	}

	newMeta, newBlob, err := v.crypto.ChangePassword(oldPassword, newPassword, v.meta, blob)
	if err != nil {
		return backend("change password", err)
	}
	writes, err := slotWrites(newMeta, newBlob, nil)
	if err != nil {
		return backend("change password", err)
	}
	if err := v.store.Commit(ctx, writes...); err != nil {
		v.m.PersistError(string(kv.SlotVaultMeta))
		return backend("change password", err)
	}

	v.meta = newMeta
	v.session.setSecret(newPassword)
	v.lastActivity = v.now()
	v.log.Info("vault password changed")
	v.m.VaultTransition("change_password")
	v.publish("passwd")
	return nil
}

// Remove destroys the vault after a fresh password check.
func (v *Vault) Remove(ctx context.Context, password []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.cfg.Enabled {
		return ErrNotEnabled
	}
	if err := v.verifyLocked(password); err != nil {
		return err
	}

	cfg := Config{}
	w, err := kv.Set(kv.SlotVaultConfig, cfg)
	if err != nil {
		return backend("remove", err)
	}
	if err := v.store.Commit(ctx, kv.Del(kv.SlotVaultMeta), kv.Del(kv.SlotVaultBlob), w); err != nil {
		v.m.PersistError(string(kv.SlotVaultMeta))
		return backend("remove", err)
	}

	v.lockLocked()
	wipe(v.meta)
	v.meta = nil
	v.cfg = cfg
	v.log.Info("vault removed")
	v.m.VaultTransition("remove")
	v.publish("remove")
	return nil
}

// ToggleSidebar flips and persists the sidebar visibility.
func (v *Vault) ToggleSidebar(ctx context.Context) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	cfg := v.cfg
	cfg.SidebarVisible = !cfg.SidebarVisible
	if err := kv.SaveJSON(ctx, v.store, kv.SlotVaultConfig, cfg); err != nil {
		return v.cfg.SidebarVisible, backend("save config", err)
	}
	v.cfg = cfg
	v.publish("sidebar")
	return cfg.SidebarVisible, nil
}

func (v *Vault) verifyLocked(password []byte) error {
	if len(password) == 0 {
		return ErrWrongPassword
	}
	ok, err := v.crypto.Verify(password, v.meta)
	if err != nil {
		return backend("verify", err)
	}
	if !ok {
		return ErrWrongPassword
	}
	return nil
}

func (v *Vault) openSessionLocked(password []byte, items []domain.VaultBookmark) *Session {
	if items == nil {
		items = []domain.VaultBookmark{}
	}
	s := &Session{v: v, items: items}
	s.setSecret(password)
	v.session = s
	v.lastActivity = v.now()
	return s
}

// persistLocked re-encrypts the whole item list and writes the blob.
func (v *Vault) persistLocked(ctx context.Context, s *Session) error {
	plain, err := json.Marshal(s.items)
	if err != nil {
		return backend("encode", err)
	}
	defer wipe(plain)

	blob, err := v.crypto.Encrypt(s.secret, v.meta, plain)
	if err != nil {
		return backend("encrypt", err)
	}
	if err := kv.SaveJSON(ctx, v.store, kv.SlotVaultBlob, blob); err != nil {
		v.m.PersistError(string(kv.SlotVaultBlob))
		return backend("write blob", err)
	}
	return nil
}

func (v *Vault) publish(action string) {
	v.pub.Publish(events.Event{Kind: events.VaultChanged, Action: action, At: v.now()})
}

// slotWrites builds the commit for meta, blob and optionally config. meta
// is JSON already and stored verbatim; the blob is stored as a JSON string.
func slotWrites(meta, blob []byte, cfg *Config) ([]kv.Write, error) {
	if !json.Valid(meta) {
		return nil, fmt.Errorf("crypto returned non-JSON meta")
	}
	if blob == nil {
		blob = []byte{}
	}
	bw, err := kv.Set(kv.SlotVaultBlob, blob)
	if err != nil {
		return nil, err
	}
	writes := []kv.Write{{Slot: kv.SlotVaultMeta, Value: meta}, bw}
	if cfg != nil {
		cw, err := kv.Set(kv.SlotVaultConfig, cfg)
		if err != nil {
			return nil, err
		}
		writes = append(writes, cw)
	}
	return writes, nil
}

func wipe(b []byte) { vaultcrypto.Wipe(b) }
