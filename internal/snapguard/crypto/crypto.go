// Package crypto holds the primitives the audit trail relies on: a deterministic
// digest for ledger payloads, an authenticated symmetric cipher for key material at
// rest, password hashing, and key-pair minting for per-user attribution.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/vaibhaw-/snapguard/internal/snapguard/apperr"
	"github.com/vaibhaw-/snapguard/internal/snapguard/config"
)

// ErrDecrypt is returned for a wrong key or corrupted ciphertext. Decrypt never
// returns partial plaintext.
var ErrDecrypt = errors.New("crypto: decrypt failed")

const hkdfInfo = "snapguard/aes-256-gcm/v1"

// Hash returns the hex-encoded SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString is Hash over the UTF-8 bytes of s.
func HashString(s string) string {
	return Hash([]byte(s))
}

// Cipher is AES-256-GCM keyed by HKDF-SHA256(secret, salt=master).
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the data key. Both inputs are required.
func NewCipher(secret, master string) (*Cipher, error) {
	if secret == "" || master == "" {
		return nil, apperr.Configuration("encryption key material is missing")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), []byte(master), []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// LoadCipher builds the process cipher from configuration, failing with
// ErrConfiguration when either key is absent.
func LoadCipher(cfg *config.Config) (*Cipher, error) {
	if err := cfg.RequireKeys(); err != nil {
		return nil, err
	}
	return NewCipher(cfg.Crypto.EncryptionKey, cfg.Crypto.MasterEncryptionKey)
}

// Encrypt returns base64(nonce | ciphertext | tag).
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any failure is reported as ErrDecrypt.
func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}
