// Package vault encrypts and decrypts secrets at rest with AES-256-GCM.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/trailframes/server/internal/errs"
)

// KeyLen is the required symmetric key length in bytes.
const KeyLen = 32

// Vault performs authenticated encryption of short secrets. The key is
// loaded once at process start; a missing or wrong-length key is a
// startup error, never a per-call one.
type Vault struct {
	gcm cipher.AEAD
}

// New builds a Vault from a hex-encoded 32-byte key.
func New(hexKey string) (*Vault, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid hex: %w", err)
	}
	if len(key) != KeyLen {
		return nil, fmt.Errorf("encryption key must be %d bytes (%d hex chars), got %d bytes", KeyLen, KeyLen*2, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Vault{gcm: gcm}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns a
// bundle of three colon-delimited hex segments: nonce:authTag:ciphertext.
// Two encryptions of the same plaintext produce different bundles.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	// Seal returns ciphertext||tag; the tag is the trailing Overhead() bytes.
	sealed := v.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	split := len(sealed) - v.gcm.Overhead()
	ct, tag := sealed[:split], sealed[split:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt. Any malformed bundle (wrong segment count,
// bad hex, nonce of the wrong size) or failed tag verification yields
// errs.ErrDecryption; no partial plaintext is ever returned.
func (v *Vault) Decrypt(bundle string) (string, error) {
	parts := strings.Split(bundle, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 segments, got %d", errs.ErrDecryption, len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: bad nonce hex", errs.ErrDecryption)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: bad tag hex", errs.ErrDecryption)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext hex", errs.ErrDecryption)
	}
	if len(nonce) != v.gcm.NonceSize() {
		return "", fmt.Errorf("%w: bad nonce size", errs.ErrDecryption)
	}

	plaintext, err := v.gcm.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", errs.ErrDecryption)
	}
	return string(plaintext), nil
}
