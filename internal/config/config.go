package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends accepted by STASH_STORAGE.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
	StoragePebble = "pebble"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

type Config struct {
	ListenAddr      string        // ex: "127.0.0.1:21890"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	DataDir string // where file, sqlite and pebble backends live
	Storage string // file | sqlite | pebble | redis | memory

	UndoWindow          time.Duration // how long a mutation stays undoable
	UndoSweepInterval   time.Duration // expired undo commands cleanup
	FetchTimeout        time.Duration // metadata and feed HTTP requests
	FeedRefreshInterval time.Duration // 0 => use the stored preference
	ReconcileInterval   time.Duration // retry of failed writes
	VaultIdleLock       time.Duration // 0 => no auto-lock
	VaultKDF            string        // argon2id | scrypt
	Locale              string        // title collation

	// Redis (STASH_STORAGE=redis only)
	RedisAddr           string
	RedisUser           string
	RedisPassword       string
	RedisDB             int
	RedisDT             time.Duration // dial timeout
	RedisRT             time.Duration // read timeout
	RedisWT             time.Duration // write timeout
	RedisMaxWait        time.Duration // max wait between retries
	RedisPingTimeout    time.Duration // timeout for each ping attempt
	RedisPoolSize       int
	RedisConnectTimeout time.Duration // total time to retry connecting
	RedisRetryInterval  time.Duration // initial wait between retries, grows exponentially
	RedisWarnThreshold  int           // warn after this many attempts

	AllowedHosts []string // Host headers accepted by the bridge, local names when empty
	AllowedCIDRS []string // client IPs accepted by the bridge, loopback when empty
	TrustProxy   bool     // true => trust X-Forwarded-For headers
	CORSOrigins  []string // extension origins, "*" for any
	RateBurst    int
	RatePerMin   int
}

// Load reads the environment, after merging a .env file when one exists
// (STASH_ENV_FILE, default ".env"). Variables already set win over the
// file. Invalid values that cannot be defaulted panic.
func Load() *Config {
	loadDotEnv(getenv("STASH_ENV_FILE", ".env"))

	cfg := &Config{
		// Server settings
		ListenAddr:      getenv("STASH_LISTEN_ADDR", "127.0.0.1:21890"),
		ShutdownTimeout: mustDuration("STASH_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("STASH_LOG_LEVEL", "info"),
		PrettyLog: mustBool("STASH_PRETTY_LOG", true),

		// Storage
		DataDir: expandHome(getenv("STASH_DATA_DIR", "~/.stash")),
		Storage: strings.ToLower(getenv("STASH_STORAGE", StorageFile)),

		// Behaviour
		UndoWindow:          mustDuration("STASH_UNDO_WINDOW", 10*time.Second),
		UndoSweepInterval:   mustDuration("STASH_UNDO_SWEEP_INTERVAL", 5*time.Second),
		FetchTimeout:        mustDuration("STASH_FETCH_TIMEOUT", 8*time.Second),
		FeedRefreshInterval: mustDuration("STASH_FEED_REFRESH_INTERVAL", 0),
		ReconcileInterval:   mustDuration("STASH_RECONCILE_INTERVAL", 30*time.Second),
		VaultIdleLock:       mustDuration("STASH_VAULT_IDLE_LOCK", 5*time.Minute),
		VaultKDF:            strings.ToLower(getenv("STASH_VAULT_KDF", "argon2id")),
		Locale:              getenv("STASH_LOCALE", "en"),

		// Redis settings
		RedisAddr:           getenv("STASH_REDIS_ADDR", "localhost:6379"),
		RedisUser:           getenv("STASH_REDIS_USERNAME", ""),
		RedisPassword:       getenv("STASH_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("STASH_REDIS_DB", 0),
		RedisDT:             mustDuration("STASH_REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("STASH_REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("STASH_REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("STASH_REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("STASH_REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("STASH_REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("STASH_REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("STASH_REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("STASH_REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("STASH_ALLOWED_HOSTS", "")),
		AllowedCIDRS: splitAndTrim(getenv("STASH_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("STASH_TRUST_PROXY", false),
		CORSOrigins:  splitAndTrim(getenv("STASH_CORS_ORIGINS", "*")),
		RateBurst:    getenvInt("STASH_RATE_LIMIT_BURST", 60),
		RatePerMin:   getenvInt("STASH_RATE_LIMIT_PER_MIN", 120),
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageFile, StorageSQLite, StoragePebble, StorageRedis, StorageMemory:
	default:
		return fmt.Errorf("STASH_STORAGE must be one of file, sqlite, pebble, redis, memory (got %q)", c.Storage)
	}
	if c.VaultKDF != "argon2id" && c.VaultKDF != "scrypt" {
		return fmt.Errorf("STASH_VAULT_KDF must be argon2id or scrypt (got %q)", c.VaultKDF)
	}
	if c.Storage == StorageRedis && c.RedisAddr == "" {
		return errors.New("STASH_REDIS_ADDR is required when STASH_STORAGE=redis")
	}
	if c.DataDir == "" && c.needsDataDir() {
		return errors.New("STASH_DATA_DIR is required")
	}
	return nil
}

func (c *Config) needsDataDir() bool {
	return c.Storage == StorageFile || c.Storage == StorageSQLite || c.Storage == StoragePebble
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.RedisPassword != "" {
		cp.RedisPassword = "***REDACTED***"
	}
	if cp.RedisUser != "" {
		cp.RedisUser = "***REDACTED***"
	}
	return cp
}

// StoragePath is where the selected local backend keeps its data.
func (c *Config) StoragePath() string {
	switch c.Storage {
	case StorageSQLite:
		return filepath.Join(c.DataDir, "stash.db")
	case StoragePebble:
		return filepath.Join(c.DataDir, "pebble")
	default:
		return filepath.Join(c.DataDir, "stash.json")
	}
}

// helpers
func loadDotEnv(path string) {
	if path == "" {
		return
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(fmt.Sprintf("❌ FATAL: cannot read env file %s: %v", path, err))
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return strings.TrimPrefix(strings.TrimPrefix(p, "~"), "/")
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
