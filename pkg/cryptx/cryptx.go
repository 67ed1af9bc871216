// Package cryptx provides at-rest encryption for sensitive fields in the
// metadata store: AES-256-GCM with a key derived from a passphrase via
// PBKDF2, or generated and held in the OS keyring.
package cryptx

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/abraxas-365/personal-ai-core/pkg/errx"
	"golang.org/x/crypto/pbkdf2"
)

var errorRegistry = errx.NewRegistry("CRYPTO")

var (
	codeSealFailed   = errorRegistry.Register("SEAL_FAILED", errx.TypeInternal, http.StatusInternalServerError, "failed to seal value")
	codeUnsealFailed = errorRegistry.Register("UNSEAL_FAILED", errx.TypeInternal, http.StatusInternalServerError, "failed to unseal value")
	codeInvalidKey   = errorRegistry.Register("INVALID_KEY", errx.TypeValidation, http.StatusBadRequest, "key must be 32 bytes")
	codeMalformed    = errorRegistry.Register("MALFORMED_CIPHERTEXT", errx.TypeValidation, http.StatusBadRequest, "ciphertext is malformed")
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// SaltSize is the PBKDF2 salt length in bytes.
	SaltSize = 16
	// NonceSize is the AES-GCM nonce length in bytes.
	NonceSize = 12
	// DefaultIterations is the PBKDF2 work factor for passphrase-derived keys.
	DefaultIterations = 100_000

	// sealedPrefix marks a stored string as ciphertext so reads can
	// transparently unseal it without a schema flag.
	sealedPrefix = "enc:v1:"
)

// GenerateSalt returns a cryptographically random salt of SaltSize bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errorRegistry.NewWithCause(codeSealFailed, err)
	}
	return salt, nil
}

// GenerateKey returns a fresh random 256-bit key, for deployments that don't
// derive the key from a user passphrase.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errorRegistry.NewWithCause(codeSealFailed, err)
	}
	return key, nil
}

// DeriveKey derives a 256-bit key from a passphrase and salt using
// PBKDF2-HMAC-SHA256.
func DeriveKey(passphrase string, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key([]byte(passphrase), salt, iterations, KeySize, sha256.New)
}

// Seal encrypts plaintext with AES-256-GCM, prepending a random nonce to the
// ciphertext: nonce(12) || ciphertext || tag.
func Seal(plaintext []byte, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, errorRegistry.New(codeInvalidKey)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errorRegistry.NewWithCause(codeSealFailed, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, errorRegistry.NewWithCause(codeSealFailed, err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errorRegistry.NewWithCause(codeSealFailed, err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Unseal reverses Seal.
func Unseal(ciphertext []byte, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, errorRegistry.New(codeInvalidKey)
	}
	if len(ciphertext) < NonceSize {
		return nil, errorRegistry.New(codeMalformed)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errorRegistry.NewWithCause(codeUnsealFailed, err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, errorRegistry.NewWithCause(codeUnsealFailed, err)
	}
	nonce, sealed := ciphertext[:NonceSize], ciphertext[NonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errorRegistry.NewWithCause(codeUnsealFailed, err)
	}
	return plaintext, nil
}

// SealString seals a string and renders it as a prefixed base64 token,
// suitable for storing directly in a text column.
func SealString(plaintext string, key []byte) (string, error) {
	ciphertext, err := Seal([]byte(plaintext), key)
	if err != nil {
		return "", err
	}
	return sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// UnsealString reverses SealString. If the input does not carry the sealed
// prefix it is returned unchanged, so callers can migrate plaintext columns
// to sealed ones without a backfill step.
func UnsealString(stored string, key []byte) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", errorRegistry.NewWithCause(codeMalformed, err)
	}
	plaintext, err := Unseal(raw, key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// IsSealed reports whether a stored string carries the sealed-value prefix.
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, sealedPrefix)
}

// KeyStore acquires and persists the master encryption key, backed by the
// OS credential store.
type KeyStore interface {
	Load() ([]byte, error)
	Save(key []byte) error
}

// ErrKeyNotFound is returned by a KeyStore when no key has been saved yet.
var ErrKeyNotFound = errors.New("cryptx: no master key in key store")

// LoadOrCreateMasterKey returns the master key from store, generating and
// persisting a new one on first run.
func LoadOrCreateMasterKey(store KeyStore) ([]byte, error) {
	key, err := store.Load()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, fmt.Errorf("loading master key: %w", err)
	}
	key, err = GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := store.Save(key); err != nil {
		return nil, fmt.Errorf("persisting master key: %w", err)
	}
	return key, nil
}
