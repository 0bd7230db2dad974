// Package vaultcrypto turns a password into a vault key and seals blobs
// with it. Meta is an opaque JSON record (KDF, salt, parameters and an
// encrypted sentinel) that callers persist verbatim.
package vaultcrypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	formatVersion = 1
	saltBytes     = 16
	keyBytes      = chacha20poly1305.KeySize

	// Sentinel is sealed into Meta; opening it proves the password without
	// touching user data.
	Sentinel = "stash-vault-ok"
)

var (
	// ErrWrongPassword means the sentinel did not open under the password.
	ErrWrongPassword = errors.New("wrong vault password")
	// ErrDecrypt means a blob failed authentication or is truncated.
	ErrDecrypt = errors.New("vault blob cannot be decrypted")
	// ErrBadMeta means the meta record is unreadable or unsupported.
	ErrBadMeta = errors.New("invalid vault meta")
)

// KDF selects the key-derivation function.
type KDF string

const (
	KDFArgon2id KDF = "argon2id"
	KDFScrypt   KDF = "scrypt"
)

// Params holds the cost settings of both KDFs; only the fields of the
// selected KDF are used.
type Params struct {
	Time    uint32 `json:"t,omitempty"`
	Memory  uint32 `json:"m,omitempty"` // KiB
	Threads uint8  `json:"p,omitempty"`

	N int `json:"N,omitempty"`
	R int `json:"r,omitempty"`
	P int `json:"sp,omitempty"`
}

// DefaultArgon2Params are the interactive-login recommendations.
func DefaultArgon2Params() Params { return Params{Time: 3, Memory: 64 * 1024, Threads: 4} }

// DefaultScryptParams match the usual interactive settings.
func DefaultScryptParams() Params { return Params{N: 1 << 15, R: 8, P: 1} }

// Meta is the persisted record.
type Meta struct {
	V        int    `json:"v"`
	KDF      KDF    `json:"kdf"`
	Salt     []byte `json:"salt"`
	Params   Params `json:"params"`
	Sentinel []byte `json:"sentinel"`
}

// Options configure new metas. Existing metas always use their own settings.
type Options struct {
	KDF    KDF
	Params *Params
}

// Engine implements the vault crypto capability.
type Engine struct {
	kdf    KDF
	params Params
}

// New returns an engine; zero Options mean argon2id with default costs.
func New(opts Options) *Engine {
	kdf := opts.KDF
	if kdf != KDFScrypt {
		kdf = KDFArgon2id
	}
	var params Params
	switch {
	case opts.Params != nil:
		params = *opts.Params
	case kdf == KDFScrypt:
		params = DefaultScryptParams()
	default:
		params = DefaultArgon2Params()
	}
	return &Engine{kdf: kdf, params: params}
}

// Setup creates a fresh meta bound to password.
func (e *Engine) Setup(password []byte) ([]byte, error) {
	m, key, err := e.newMeta(password)
	if err != nil {
		return nil, err
	}
	defer zero(key)
	return json.Marshal(m)
}

// Verify reports whether password opens the sentinel of meta. A false
// result with a nil error is the normal wrong-password outcome.
func (e *Engine) Verify(password, meta []byte) (bool, error) {
	m, err := parseMeta(meta)
	if err != nil {
		return false, err
	}
	key, err := deriveKey(password, m)
	if err != nil {
		return false, err
	}
	defer zero(key)
	return checkSentinel(key, m), nil
}

// Encrypt seals plaintext under the key derived from password and meta.
func (e *Engine) Encrypt(password, meta, plaintext []byte) ([]byte, error) {
	m, key, err := unlockedKey(password, meta)
	if err != nil {
		return nil, err
	}
	defer zero(key)
	return seal(key, m.Salt, plaintext)
}

// Decrypt opens ciphertext. Authentication failure returns ErrDecrypt.
func (e *Engine) Decrypt(password, meta, ciphertext []byte) ([]byte, error) {
	m, key, err := unlockedKey(password, meta)
	if err != nil {
		return nil, err
	}
	defer zero(key)
	return open(key, m.Salt, ciphertext)
}

// ChangePassword re-keys in one step: it checks oldPassword, decrypts
// ciphertext, and returns a fresh meta for newPassword together with the
// re-encrypted blob. An empty ciphertext stays empty. Nothing is persisted
// here; callers write both results in one transaction.
func (e *Engine) ChangePassword(oldPassword, newPassword, meta, ciphertext []byte) (newMeta, newCiphertext []byte, err error) {
	m, oldKey, err := unlockedKey(oldPassword, meta)
	if err != nil {
		return nil, nil, err
	}
	defer zero(oldKey)

	var plaintext []byte
	if len(ciphertext) > 0 {
		plaintext, err = open(oldKey, m.Salt, ciphertext)
		if err != nil {
			return nil, nil, err
		}
		defer zero(plaintext)
	}

	nm, newKey, err := e.newMeta(newPassword)
	if err != nil {
		return nil, nil, err
	}
	defer zero(newKey)

	if len(ciphertext) > 0 {
		newCiphertext, err = seal(newKey, nm.Salt, plaintext)
		if err != nil {
			return nil, nil, err
		}
	}
	newMeta, err = json.Marshal(nm)
	if err != nil {
		return nil, nil, err
	}
	return newMeta, newCiphertext, nil
}

func (e *Engine) newMeta(password []byte) (*Meta, []byte, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("salt: %w", err)
	}
	m := &Meta{V: formatVersion, KDF: e.kdf, Salt: salt, Params: e.params}
	key, err := deriveKey(password, m)
	if err != nil {
		return nil, nil, err
	}
	m.Sentinel, err = seal(key, salt, []byte(Sentinel))
	if err != nil {
		zero(key)
		return nil, nil, err
	}
	return m, key, nil
}

// unlockedKey parses meta, derives the key and proves it with the sentinel.
func unlockedKey(password, meta []byte) (*Meta, []byte, error) {
	m, err := parseMeta(meta)
	if err != nil {
		return nil, nil, err
	}
	key, err := deriveKey(password, m)
	if err != nil {
		return nil, nil, err
	}
	if !checkSentinel(key, m) {
		zero(key)
		return nil, nil, ErrWrongPassword
	}
	return m, key, nil
}

func parseMeta(meta []byte) (*Meta, error) {
	var m Meta
	if err := json.Unmarshal(meta, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMeta, err)
	}
	if m.V > formatVersion || m.V < 1 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadMeta, m.V)
	}
	if len(m.Salt) != saltBytes || len(m.Sentinel) == 0 {
		return nil, fmt.Errorf("%w: missing salt or sentinel", ErrBadMeta)
	}
	return &m, nil
}

func deriveKey(password []byte, m *Meta) ([]byte, error) {
	switch m.KDF {
	case KDFArgon2id:
		p := m.Params
		if p.Time == 0 || p.Memory == 0 || p.Threads == 0 {
			return nil, fmt.Errorf("%w: argon2id params", ErrBadMeta)
		}
		return argon2.IDKey(password, m.Salt, p.Time, p.Memory, p.Threads, keyBytes), nil
	case KDFScrypt:
		key, err := scrypt.Key(password, m.Salt, m.Params.N, m.Params.R, m.Params.P, keyBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadMeta, err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: unknown kdf %q", ErrBadMeta, m.KDF)
	}
}

func checkSentinel(key []byte, m *Meta) bool {
	pt, err := open(key, m.Salt, m.Sentinel)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(pt, []byte(Sentinel)) == 1
}

// seal returns nonce || ciphertext, with the salt as associated data.
func seal(key, salt, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, salt), nil
}

func open(key, salt, blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrDecrypt
	}
	nonce, ct := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, salt)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}
