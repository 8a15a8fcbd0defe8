// Package seal encrypts biometric thumbnails at rest. The key comes from
// configuration via the Keeper constructor; nothing in this package reads
// ambient state.
package seal

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrBadKey reports a key of the wrong size. It is a configuration error:
// callers must not retry.
var ErrBadKey = errors.New("encryption key must be 32 bytes")

// Keeper seals and opens thumbnail bytes with XChaCha20-Poly1305.
type Keeper struct {
	key []byte
}

// NewKeeper creates a Keeper from a 32-byte key.
func NewKeeper(key []byte) (*Keeper, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrBadKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Keeper{key: k}, nil
}

// Seal encrypts plaintext and returns the ciphertext with the nonce it was
// sealed under. The nonce is random per call and stored alongside the
// ciphertext, never reused.
func (k *Keeper) Seal(plaintext []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.NewX(k.key)
	if err != nil {
		return nil, nil, fmt.Errorf("creating cipher: %w", err)
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generating nonce: %w", err)
	}

	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Open decrypts ciphertext sealed with the given nonce.
func (k *Keeper) Open(ciphertext, nonce []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(k.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("invalid nonce size %d", len(nonce))
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("opening ciphertext: %w", err)
	}
	return plaintext, nil
}
