// Package crypto encrypts the persisted token document with AES-256-GCM.
//
// The key is derived from a passphrase with PBKDF2-SHA256, so any
// non-empty TOKEN_ENCRYPTION_KEY value yields a 32-byte AES key. Every Seal
// call uses a fresh random nonce, which is prepended to the ciphertext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength  = 32
	iterations = 100_000
)

// salt is static so the same passphrase decrypts files across restarts.
var salt = []byte("salesforce-mcp-token-store")

// ErrEmptyKey is returned when no passphrase is supplied.
var ErrEmptyKey = errors.New("encryption key cannot be empty")

// ErrCiphertextTooShort is returned for input shorter than a GCM nonce.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Encryptor seals and opens byte slices. It is safe for concurrent use.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor derives an AES-256 key from passphrase.
func NewEncryptor(passphrase string) (*Encryptor, error) {
	if passphrase == "" {
		return nil, ErrEmptyKey
	}

	key := pbkdf2.Key([]byte(passphrase), salt, iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// Seal encrypts plaintext and returns nonce||ciphertext.
func (e *Encryptor) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to create nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal. Tampered input or a wrong key fails authentication.
func (e *Encryptor) Open(sealed []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
