package commands

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrSnakeDoc/stash/internal/vault"
)

// env points every command at a fresh file store.
func env(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STASH_ENV_FILE", filepath.Join(dir, "none.env"))
	t.Setenv("STASH_DATA_DIR", dir)
	t.Setenv("STASH_STORAGE", "file")
	t.Setenv("STASH_VAULT_KDF", "scrypt")
	t.Setenv("STASH_PRETTY_LOG", "false")
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := run(t, stdin, args...)
	if err != nil {
		t.Fatalf("stash %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestVersion(t *testing.T) {
	out := mustRun(t, "", "version")
	if !strings.HasPrefix(out, "Stash dev") {
		t.Fatalf("version output = %q", out)
	}
}

func TestImportListExport(t *testing.T) {
	dir := env(t)
	file := filepath.Join(dir, "bookmarks.json")
	data := `[
  {"url": "https://go.dev/doc", "title": "Go docs", "tags": ["go"], "createdAt": "2024-02-10T08:00:00Z"},
  {"url": "https://sqlite.org/", "title": "SQLite", "isFavorite": true},
  {"url": "https://go.dev/doc/?utm_source=x", "title": "Go docs again"},
  {"title": "no url"}
]`
	if err := os.WriteFile(file, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	out := mustRun(t, "", "import", file)
	if !strings.Contains(out, "2 added, 1 already saved, 1 invalid") {
		t.Fatalf("import output = %q", out)
	}

	out = mustRun(t, "", "list", "all", "--sort", "title-asc")
	goIdx, sqlIdx := strings.Index(out, "Go docs"), strings.Index(out, "SQLite")
	if goIdx < 0 || sqlIdx < 0 || goIdx > sqlIdx {
		t.Fatalf("list output = %q", out)
	}
	if !strings.Contains(out, "2 bookmarks") {
		t.Fatalf("missing count: %q", out)
	}

	out = mustRun(t, "", "list", "favorites")
	if strings.Contains(out, "Go docs") || !strings.Contains(out, "SQLite") {
		t.Fatalf("favorites = %q", out)
	}

	out = mustRun(t, "", "list", "--search", "sqlite")
	if !strings.Contains(out, "SQLite") {
		t.Fatalf("search = %q", out)
	}

	out = mustRun(t, "", "export", "--format", "html")
	if !strings.Contains(out, "NETSCAPE-Bookmark-file-1") || !strings.Contains(out, `HREF="https://go.dev/doc"`) {
		t.Fatalf("html export = %q", out)
	}

	exported := filepath.Join(dir, "out.json")
	mustRun(t, "", "export", "-o", exported)
	raw, err := os.ReadFile(exported)
	if err != nil || !strings.Contains(string(raw), `"title": "SQLite"`) {
		t.Fatalf("json export = %s (%v)", raw, err)
	}

	if out := mustRun(t, "", "dupes"); !strings.Contains(out, "No duplicates.") {
		t.Fatalf("dupes = %q", out)
	}
}

func TestImportUnknownFormat(t *testing.T) {
	dir := env(t)
	file := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(file, []byte("just some text"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "", "import", file); err == nil {
		t.Fatal("expected an error for an unknown format")
	}
}

func TestAddWaitsForMetadata(t *testing.T) {
	env(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head><title>Release notes</title>
<meta name="description" content="What changed"></head>
<body><article><p>Plenty of words to read here.</p></article></body></html>`)
	}))
	defer srv.Close()

	out := mustRun(t, "", "add", srv.URL+"/notes", "--tag", "go")
	if !strings.Contains(out, "Saved Release notes") {
		t.Fatalf("add output = %q", out)
	}
	out = mustRun(t, "", "add", srv.URL+"/notes/")
	if !strings.Contains(out, "Already saved as Release notes") {
		t.Fatalf("second add = %q", out)
	}
	out = mustRun(t, "", "list", "tag:go")
	if !strings.Contains(out, "Release notes") {
		t.Fatalf("tag view = %q", out)
	}
}

const rss = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Example News</title><link>https://news.example/</link>
<item><title>First</title><link>https://news.example/1</link></item>
<item><title>Second</title><link>https://news.example/2</link></item>
</channel></rss>`

func TestFeedsLifecycle(t *testing.T) {
	env(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rss)
	}))
	defer srv.Close()

	out := mustRun(t, "", "feeds", "add", srv.URL+"/rss")
	if !strings.Contains(out, "Subscribed to Example News (2 items)") {
		t.Fatalf("feeds add = %q", out)
	}

	out = mustRun(t, "", "feeds", "list")
	if !strings.Contains(out, "Example News") {
		t.Fatalf("feeds list = %q", out)
	}
	fields := strings.Fields(strings.Split(out, "\n")[1])
	short := fields[0]

	out = mustRun(t, "", "feeds", "refresh")
	if !strings.Contains(out, "1 feeds refreshed, 0 failed, 0 new items") {
		t.Fatalf("feeds refresh = %q", out)
	}

	if out := mustRun(t, "", "list", "inbox"); !strings.Contains(out, "Nothing here.") {
		t.Fatalf("feed items leaked into the inbox: %q", out)
	}

	out = mustRun(t, "", "feeds", "remove", short)
	if !strings.Contains(out, "2 items removed") {
		t.Fatalf("feeds remove = %q", out)
	}
	if out := mustRun(t, "", "feeds", "list"); !strings.Contains(out, "No feeds.") {
		t.Fatalf("feeds after remove = %q", out)
	}
	if _, err := run(t, "", "feeds", "remove", "nope"); err == nil {
		t.Fatal("expected an error for an unknown feed")
	}
}

func TestVaultCommands(t *testing.T) {
	env(t)

	if out := mustRun(t, "", "vault", "status"); !strings.Contains(out, "not set up") {
		t.Fatalf("status = %q", out)
	}
	if _, err := run(t, "secret\nother\n", "vault", "setup"); !errors.Is(err, errPasswordMismatch) {
		t.Fatalf("mismatch err = %v", err)
	}

	mustRun(t, "secret\nsecret\n", "vault", "setup")
	if out := mustRun(t, "", "vault", "status"); !strings.Contains(out, "set up, locked") {
		t.Fatalf("status = %q", out)
	}

	out := mustRun(t, "secret\n", "vault", "add", "https://private.example/page", "--title", "Private page", "-t", "me")
	if !strings.Contains(out, "Added Private page") {
		t.Fatalf("vault add = %q", out)
	}
	out = mustRun(t, "secret\n", "vault", "list")
	if !strings.Contains(out, "Private page") || !strings.Contains(out, "https://private.example/page") {
		t.Fatalf("vault list = %q", out)
	}
	if _, err := run(t, "wrong\n", "vault", "list"); !errors.Is(err, vault.ErrWrongPassword) {
		t.Fatalf("wrong password err = %v", err)
	}

	if _, err := run(t, "nope\nnewer\nnewer\n", "vault", "passwd"); !errors.Is(err, vault.ErrWrongPassword) {
		t.Fatalf("passwd with wrong current password err = %v", err)
	}
	if out := mustRun(t, "secret\nnewer\nnewer\n", "vault", "passwd"); !strings.Contains(out, "Password changed.") {
		t.Fatalf("vault passwd = %q", out)
	}
	if _, err := run(t, "secret\n", "vault", "list"); !errors.Is(err, vault.ErrWrongPassword) {
		t.Fatalf("old password still works: %v", err)
	}
	if out := mustRun(t, "newer\n", "vault", "list"); !strings.Contains(out, "Private page") {
		t.Fatalf("items lost after passwd: %q", out)
	}

	mustRun(t, "newer\n", "vault", "remove")
	if out := mustRun(t, "", "vault", "status"); !strings.Contains(out, "not set up") {
		t.Fatalf("status after remove = %q", out)
	}

	// The bookmark list never sees vault items.
	if out := mustRun(t, "", "list", "all"); strings.Contains(out, "Private page") {
		t.Fatalf("vault item leaked: %q", out)
	}
}

func TestVaultLockNeedsService(t *testing.T) {
	env(t)
	t.Setenv("STASH_LISTEN_ADDR", "127.0.0.1:1")
	if _, err := run(t, "", "vault", "lock"); err == nil {
		t.Fatal("expected an error without a running service")
	}
}

func TestVaultLockTalksToBridge(t *testing.T) {
	env(t)
	var hit bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = r.Method == http.MethodPost && r.URL.Path == "/api/vault/lock"
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	t.Setenv("STASH_LISTEN_ADDR", strings.TrimPrefix(srv.URL, "http://"))

	out := mustRun(t, "", "vault", "lock")
	if !hit || !strings.Contains(out, "Vault locked.") {
		t.Fatalf("hit=%v out=%q", hit, out)
	}
}
