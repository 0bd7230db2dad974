package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// isolate points Load at a missing .env so the working directory never
// leaks into a test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("STASH_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{"valid duration", "5s", time.Second, 5 * time.Second},
		{"invalid duration uses default", "invalid", 10 * time.Second, 10 * time.Second},
		{"missing variable uses default", "", 15 * time.Second, 15 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			if got := mustDuration("TEST_DURATION", tt.def); got != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMustBool(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{"true value", "true", false, true},
		{"false value", "false", true, false},
		{"invalid value uses default", "invalid", true, true},
		{"missing variable uses default", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			if got := mustBool("TEST_BOOL", tt.def); got != tt.expected {
				t.Errorf("mustBool() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetenvInt(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected int
	}{
		{"valid integer", "42", 42},
		{"invalid integer uses default", "not_a_number", 7},
		{"missing variable uses default", "", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.value)
			if got := getenvInt("TEST_INT", 7); got != tt.expected {
				t.Errorf("getenvInt() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"value1", []string{"value1"}},
		{"value1, value2 ,value3", []string{"value1", "value2", "value3"}},
		{`"127.0.0.0/8", '::1/128', ,`, []string{"127.0.0.0/8", "::1/128"}},
	}
	for _, tt := range tests {
		got := splitAndTrim(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitAndTrim(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		in, want string
	}{
		{"~/.stash", filepath.Join(home, ".stash")},
		{"~", home},
		{"/var/lib/stash", "/var/lib/stash"},
		{"relative/dir", "relative/dir"},
	}
	for _, tt := range tests {
		if got := expandHome(tt.in); got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg := Load()

	if cfg.ListenAddr != "127.0.0.1:21890" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Storage != StorageFile || !strings.HasSuffix(cfg.StoragePath(), "stash.json") {
		t.Errorf("storage = %q at %q", cfg.Storage, cfg.StoragePath())
	}
	if cfg.UndoWindow != 10*time.Second || cfg.FetchTimeout != 8*time.Second {
		t.Errorf("undo window %v, fetch timeout %v", cfg.UndoWindow, cfg.FetchTimeout)
	}
	if cfg.FeedRefreshInterval != 0 || cfg.VaultIdleLock != 5*time.Minute {
		t.Errorf("feed refresh %v, vault idle lock %v", cfg.FeedRefreshInterval, cfg.VaultIdleLock)
	}
	if !reflect.DeepEqual(cfg.CORSOrigins, []string{"*"}) || cfg.AllowedCIDRS != nil {
		t.Errorf("cors %v, cidrs %v", cfg.CORSOrigins, cfg.AllowedCIDRS)
	}
	if cfg.RateBurst != 60 || cfg.RatePerMin != 120 {
		t.Errorf("rate limit %d/%d", cfg.RateBurst, cfg.RatePerMin)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, "stash.env")
	content := "STASH_STORAGE=sqlite\nSTASH_DATA_DIR=" + dir + "\nSTASH_LOCALE=fr\n"
	if err := os.WriteFile(env, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"STASH_STORAGE", "STASH_DATA_DIR", "STASH_LOCALE"} {
		t.Cleanup(func() { _ = os.Unsetenv(k) })
	}
	t.Setenv("STASH_ENV_FILE", env)

	cfg := Load()
	if cfg.Storage != StorageSQLite || cfg.Locale != "fr" {
		t.Fatalf("storage %q locale %q", cfg.Storage, cfg.Locale)
	}
	if cfg.StoragePath() != filepath.Join(dir, "stash.db") {
		t.Fatalf("StoragePath = %q", cfg.StoragePath())
	}
}

func TestLoadPanicsOnInvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown storage", "STASH_STORAGE", "mongodb"},
		{"unknown kdf", "STASH_VAULT_KDF", "md5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.value)
			defer func() {
				r := recover()
				if r == nil {
					t.Fatal("Load() should have panicked")
				}
				if !strings.Contains(r.(string), "FATAL") || !strings.Contains(r.(string), tt.key) {
					t.Errorf("panic = %v", r)
				}
			}()
			Load()
		})
	}
}

func TestRedacted(t *testing.T) {
	cfg := &Config{RedisUser: "stash", RedisPassword: "hunter2"}
	r := cfg.Redacted()
	if r.RedisPassword == "hunter2" || r.RedisUser == "stash" {
		t.Fatalf("secrets leaked: %+v", r)
	}
	if cfg.RedisPassword != "hunter2" {
		t.Fatal("Redacted must not modify the receiver")
	}
}
