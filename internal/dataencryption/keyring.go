package dataencryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"unicode"
	"unicode/utf8"

	"github.com/chirino/student-memory-service/internal/config"
)

// ErrUndecryptable is returned when no key in the ring opens a ciphertext.
var ErrUndecryptable = errors.New("dataencryption: no key could decrypt value")

// KeyRing seals values with its primary AES-GCM key and opens values sealed
// with any of its keys. A nil or empty KeyRing passes bytes through unchanged.
type KeyRing struct {
	gcms []cipher.AEAD
}

// NewKeyRing builds a ring whose first key is used for new values.
func NewKeyRing(keys [][]byte) (*KeyRing, error) {
	ring := &KeyRing{}
	for i, key := range keys {
		gcm, err := newGCM(key)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		ring.gcms = append(ring.gcms, gcm)
	}
	return ring, nil
}

// FromConfig builds the ring from the configured primary and legacy keys.
// It returns a pass-through ring when encryption at rest is not configured.
func FromConfig(cfg *config.Config) (*KeyRing, error) {
	keys, err := cfg.EncryptionKeys()
	if err != nil {
		return nil, err
	}
	return NewKeyRing(keys)
}

// Enabled reports whether values are sealed.
func (r *KeyRing) Enabled() bool {
	return r != nil && len(r.gcms) > 0
}

// Seal encrypts plaintext as nonce||ciphertext.
func (r *KeyRing) Seal(plaintext []byte) ([]byte, error) {
	if !r.Enabled() || plaintext == nil {
		return plaintext, nil
	}
	gcm := r.gcms[0]
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a value produced by Seal with any key of the ring.
func (r *KeyRing) Open(ciphertext []byte) ([]byte, error) {
	if !r.Enabled() || ciphertext == nil {
		return ciphertext, nil
	}
	for _, gcm := range r.gcms {
		nonceSize := gcm.NonceSize()
		if len(ciphertext) < nonceSize {
			continue
		}
		nonce, payload := ciphertext[:nonceSize], ciphertext[nonceSize:]
		if plaintext, err := gcm.Open(nil, nonce, payload, nil); err == nil {
			return plaintext, nil
		}
	}
	return nil, ErrUndecryptable
}

// OpenStored opens a value read back from storage. Values written before
// encryption was enabled are plaintext and are returned as-is when they are
// readable text and cannot be opened. Anything else, such as a value sealed
// with a key no longer in the ring, fails with ErrUndecryptable.
func (r *KeyRing) OpenStored(stored []byte) ([]byte, error) {
	plaintext, err := r.Open(stored)
	if err == nil {
		return plaintext, nil
	}
	if isText(stored) {
		return stored, nil
	}
	return nil, err
}

func isText(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return false
		}
	}
	return true
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
