package vault

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/stash/internal/kv"
	"github.com/MrSnakeDoc/stash/internal/logger"
	"github.com/MrSnakeDoc/stash/internal/vaultcrypto"
)

func testCrypto() *vaultcrypto.Engine {
	return vaultcrypto.New(vaultcrypto.Options{
		KDF:    vaultcrypto.KDFArgon2id,
		Params: &vaultcrypto.Params{Time: 1, Memory: 1024, Threads: 1},
	})
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestVault(t *testing.T, store kv.Store, c Crypto) (*Vault, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	v := New(store, c, Options{Logger: logger.New("error", false), Now: clk.now})
	if err := v.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return v, clk
}

func mustSetup(t *testing.T, v *Vault, pw string) *Session {
	t.Helper()
	s, err := v.Setup(context.Background(), []byte(pw))
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return s
}

func TestLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	v, _ := newTestVault(t, store, testCrypto())

	if v.State() != Disabled {
		t.Fatalf("initial state = %v", v.State())
	}

	s := mustSetup(t, v, "pw1")
	if v.State() != Unlocked {
		t.Fatalf("state after setup = %v", v.State())
	}
	a, err := s.Add(ctx, NewVaultBookmark{URL: "bank.example/login", Tags: []string{"money"}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(ctx, NewVaultBookmark{URL: "https://doctor.example", Title: "Doctor"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if a.Title != "bank.example" || a.URL != "https://bank.example/login" {
		t.Fatalf("unexpected first item %+v", a)
	}

	blob, _ := store.Get(ctx, kv.SlotVaultBlob)
	if bytes.Contains(blob, []byte("bank.example")) {
		t.Fatal("blob holds plaintext")
	}

	v.Lock()
	if v.State() != Locked {
		t.Fatalf("state after lock = %v", v.State())
	}
	if len(s.items) != 0 || s.secret != nil {
		t.Fatalf("lock left items=%d secret=%v", len(s.items), s.secret)
	}
	if _, err := s.Items(); !errors.Is(err, ErrLocked) {
		t.Fatalf("Items after lock err = %v", err)
	}

	if _, err := v.Unlock(ctx, []byte("wrong")); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("wrong unlock err = %v", err)
	}
	if v.State() != Locked || v.Status().Count != 0 {
		t.Fatalf("wrong password changed state: %+v", v.Status())
	}

	s2, err := v.Unlock(ctx, []byte("pw1"))
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	items, err := s2.Items()
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 2 || items[0].Title != "Doctor" || items[1].ID != a.ID {
		t.Fatalf("restored items = %+v", items)
	}
	if _, err := s.Items(); !errors.Is(err, ErrLocked) {
		t.Fatal("old session came back to life")
	}
}

func TestReloadFromStore(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	c := testCrypto()
	v, _ := newTestVault(t, store, c)
	s := mustSetup(t, v, "pw")
	if _, err := s.Add(ctx, NewVaultBookmark{URL: "https://a.example"}); err != nil {
		t.Fatal(err)
	}

	v2, _ := newTestVault(t, store, c)
	if v2.State() != Locked {
		t.Fatalf("reloaded state = %v", v2.State())
	}
	s2, err := v2.Unlock(ctx, []byte("pw"))
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if items, _ := s2.Items(); len(items) != 1 {
		t.Fatalf("items = %d", len(items))
	}
}

func TestPreconditions(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t, kv.NewMemory(), testCrypto())

	if _, err := v.Unlock(ctx, []byte("x")); !errors.Is(err, ErrNotEnabled) {
		t.Errorf("unlock disabled err = %v", err)
	}
	if err := v.Remove(ctx, []byte("x")); !errors.Is(err, ErrNotEnabled) {
		t.Errorf("remove disabled err = %v", err)
	}
	if _, err := v.Setup(ctx, nil); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("empty setup err = %v", err)
	}

	mustSetup(t, v, "pw")
	if _, err := v.Setup(ctx, []byte("again")); !errors.Is(err, ErrAlreadyEnabled) {
		t.Errorf("second setup err = %v", err)
	}

	v.Lock()
	if err := v.ChangePassword(ctx, []byte("pw"), []byte("new")); !errors.Is(err, ErrLocked) {
		t.Errorf("change while locked err = %v", err)
	}
}

func TestUnlockWhenUnlockedReturnsLiveSession(t *testing.T) {
	ctx := context.Background()
	v, _ := newTestVault(t, kv.NewMemory(), testCrypto())
	s := mustSetup(t, v, "pw")

	again, err := v.Unlock(ctx, []byte("pw"))
	if err != nil || again != s {
		t.Fatalf("Unlock = %p, %v; want live session %p", again, err, s)
	}
	if _, err := v.Unlock(ctx, []byte("bad")); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("wrong password err = %v", err)
	}
	if !s.Unlocked() {
		t.Fatal("failed unlock attempt closed the live session")
	}
}

func TestCorruptBlobStartsEmpty(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		raw  []byte
	}{
		{"unsealed bytes", []byte(`"Z2FyYmFnZSB0aGF0IGlzIG5vdCBzZWFsZWQ="`)},
		{"truncated json", []byte(`"Z2FyYmFn`)},
		{"bad base64", []byte(`"!!not base64!!"`)},
		{"raw bytes", []byte{0x00, 0x01, 0xfe, 0xff}},
		{"wrong json type", []byte(`{"items":[]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := kv.NewMemory()
			v, _ := newTestVault(t, store, testCrypto())
			s := mustSetup(t, v, "pw")
			if _, err := s.Add(ctx, NewVaultBookmark{URL: "https://a.example"}); err != nil {
				t.Fatal(err)
			}
			v.Lock()

			if err := store.Put(ctx, kv.SlotVaultBlob, tt.raw); err != nil {
				t.Fatal(err)
			}
			s2, err := v.Unlock(ctx, []byte("pw"))
			if err != nil {
				t.Fatalf("Unlock with corrupt blob: %v", err)
			}
			if got := v.State(); got != Unlocked {
				t.Fatalf("state = %v, want unlocked", got)
			}
			if items, _ := s2.Items(); len(items) != 0 {
				t.Fatalf("items = %d, want 0", len(items))
			}

			// The recovered session is fully usable.
			if _, err := s2.Add(ctx, NewVaultBookmark{URL: "https://b.example"}); err != nil {
				t.Fatalf("Add after recovery: %v", err)
			}
			if err := v.ChangePassword(ctx, []byte("pw"), []byte("pw2")); err != nil {
				t.Fatalf("ChangePassword after recovery: %v", err)
			}
			v.Lock()
			s3, err := v.Unlock(ctx, []byte("pw2"))
			if err != nil {
				t.Fatalf("Unlock new password: %v", err)
			}
			if items, _ := s3.Items(); len(items) != 1 {
				t.Fatalf("items = %d, want 1", len(items))
			}
		})
	}
}

func TestChangePasswordAfterFailedWrite(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	v, _ := newTestVault(t, store, testCrypto())
	s := mustSetup(t, v, "old")
	if _, err := s.Add(ctx, NewVaultBookmark{URL: "https://a.example"}); err != nil {
		t.Fatal(err)
	}

	// Corrupt the stored blob, then fail the next write so the session is
	// ahead of storage.
	if err := store.Put(ctx, kv.SlotVaultBlob, []byte(`"AAAA"`)); err != nil {
		t.Fatal(err)
	}
	store.FailWrites(errors.New("io"))
	if _, err := s.Add(ctx, NewVaultBookmark{URL: "https://b.example"}); err == nil {
		t.Fatal("Add with failing store returned nil error")
	}
	store.FailWrites(nil)

	if err := v.ChangePassword(ctx, []byte("old"), []byte("new")); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	v.Lock()
	s2, err := v.Unlock(ctx, []byte("new"))
	if err != nil {
		t.Fatalf("Unlock new: %v", err)
	}
	if items, _ := s2.Items(); len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
}

func TestSessionMutations(t *testing.T) {
	ctx := context.Background()
	v, clk := newTestVault(t, kv.NewMemory(), testCrypto())
	s := mustSetup(t, v, "pw")

	b, _ := s.Add(ctx, NewVaultBookmark{URL: "https://a.example", Title: "A"})
	clk.advance(time.Minute)

	title := "Renamed"
	tags := []string{"#x", "y", "x"}
	got, err := s.Update(ctx, b.ID, patch(&title, &tags))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Title != "Renamed" || len(got.Tags) != 2 || !got.UpdatedAt.After(got.CreatedAt) {
		t.Fatalf("updated = %+v", got)
	}

	hits, _ := s.Search("renam")
	if len(hits) != 1 {
		t.Fatalf("search hits = %d", len(hits))
	}

	if _, err := s.Update(ctx, "missing", patch(&title, nil)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing err = %v", err)
	}
	if err := s.Delete(ctx, b.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	if _, err := s.Add(ctx, NewVaultBookmark{URL: "ftp://nope"}); err == nil {
		t.Fatal("invalid URL accepted")
	}
}

func TestWriteFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	v, _ := newTestVault(t, store, testCrypto())
	s := mustSetup(t, v, "pw")

	store.FailWrites(errors.New("disk full"))
	_, err := s.Add(ctx, NewVaultBookmark{URL: "https://a.example"})
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want BackendError", err)
	}
	if errors.Is(err, ErrWrongPassword) {
		t.Fatal("backend failure reported as wrong password")
	}
	if items, _ := s.Items(); len(items) != 1 {
		t.Fatalf("in-memory items = %d, want 1", len(items))
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	v, _ := newTestVault(t, store, testCrypto())
	s := mustSetup(t, v, "old")
	if _, err := s.Add(ctx, NewVaultBookmark{URL: "https://a.example"}); err != nil {
		t.Fatal(err)
	}

	if err := v.ChangePassword(ctx, []byte("nope"), []byte("new")); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("wrong old err = %v", err)
	}
	if err := v.ChangePassword(ctx, []byte("old"), []byte("new")); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	// The session keeps working with the new secret.
	if _, err := s.Add(ctx, NewVaultBookmark{URL: "https://b.example"}); err != nil {
		t.Fatalf("Add after change: %v", err)
	}

	v.Lock()
	if _, err := v.Unlock(ctx, []byte("old")); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("old password still unlocks: %v", err)
	}
	s2, err := v.Unlock(ctx, []byte("new"))
	if err != nil {
		t.Fatalf("Unlock new: %v", err)
	}
	if items, _ := s2.Items(); len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
}

func TestChangePasswordIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	v, _ := newTestVault(t, store, testCrypto())
	s := mustSetup(t, v, "old")
	if _, err := s.Add(ctx, NewVaultBookmark{URL: "https://a.example"}); err != nil {
		t.Fatal(err)
	}
	metaBefore, _ := store.Get(ctx, kv.SlotVaultMeta)
	blobBefore, _ := store.Get(ctx, kv.SlotVaultBlob)

	store.FailWrites(errors.New("io"))
	err := v.ChangePassword(ctx, []byte("old"), []byte("new"))
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want BackendError", err)
	}
	store.FailWrites(nil)

	metaAfter, _ := store.Get(ctx, kv.SlotVaultMeta)
	blobAfter, _ := store.Get(ctx, kv.SlotVaultBlob)
	if !bytes.Equal(metaBefore, metaAfter) || !bytes.Equal(blobBefore, blobAfter) {
		t.Fatal("failed change touched persisted state")
	}
	v.Lock()
	if _, err := v.Unlock(ctx, []byte("old")); err != nil {
		t.Fatalf("old password no longer unlocks: %v", err)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	v, _ := newTestVault(t, store, testCrypto())
	s := mustSetup(t, v, "pw")
	if _, err := s.Add(ctx, NewVaultBookmark{URL: "https://a.example"}); err != nil {
		t.Fatal(err)
	}
	v.Lock()

	if err := v.Remove(ctx, []byte("bad")); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("remove wrong err = %v", err)
	}
	if err := v.Remove(ctx, []byte("pw")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if v.State() != Disabled {
		t.Fatalf("state = %v", v.State())
	}
	for _, slot := range []kv.Slot{kv.SlotVaultMeta, kv.SlotVaultBlob} {
		if _, err := store.Get(ctx, slot); !errors.Is(err, kv.ErrNotFound) {
			t.Errorf("%s still present: %v", slot, err)
		}
	}
	// Setup is allowed again.
	mustSetup(t, v, "fresh")
}

func TestLockIfIdle(t *testing.T) {
	ctx := context.Background()
	v, clk := newTestVault(t, kv.NewMemory(), testCrypto())
	s := mustSetup(t, v, "pw")

	clk.advance(4 * time.Minute)
	if v.LockIfIdle(5 * time.Minute) {
		t.Fatal("locked before idle window")
	}
	if _, err := s.Add(ctx, NewVaultBookmark{URL: "https://a.example"}); err != nil {
		t.Fatal(err)
	}
	clk.advance(4 * time.Minute)
	if v.LockIfIdle(5 * time.Minute) {
		t.Fatal("activity did not reset idle timer")
	}
	clk.advance(2 * time.Minute)
	if !v.LockIfIdle(5 * time.Minute) {
		t.Fatal("idle vault stayed unlocked")
	}
	if v.LockIfIdle(0) {
		t.Fatal("zero idle must never lock")
	}
}

func TestToggleSidebar(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	v, _ := newTestVault(t, store, testCrypto())
	mustSetup(t, v, "pw")

	visible, err := v.ToggleSidebar(ctx)
	if err != nil || visible {
		t.Fatalf("ToggleSidebar = %v, %v", visible, err)
	}
	var cfg Config
	if _, err := kv.LoadJSON(ctx, store, kv.SlotVaultConfig, &cfg); err != nil {
		t.Fatal(err)
	}
	if !cfg.Enabled || cfg.SidebarVisible {
		t.Fatalf("persisted config = %+v", cfg)
	}
}
