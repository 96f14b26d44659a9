package transform

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required symmetric key length in bytes.
const KeySize = chacha20poly1305.KeySize

// ErrCiphertextTooShort is returned by Open when the buffer cannot even hold
// a nonce.
var ErrCiphertextTooShort = errors.New("transform: ciphertext too short")

// Encryptor seals and opens payloads with XChaCha20-Poly1305. Each Seal uses
// a fresh random nonce prepended to the ciphertext, so decryption needs only
// the stored buffer and the standing key. Safe for concurrent use.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor builds an Encryptor from a KeySize-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("transform: encryptor: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Seal encrypts plain and returns nonce||ciphertext.
func (e *Encryptor) Seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plain)+e.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("transform: nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plain, nil), nil
}

// Open decrypts a buffer produced by Seal. Authentication failure (a
// corrupted or foreign buffer) returns an error; the cache treats it as a
// miss.
func (e *Encryptor) Open(buf []byte) ([]byte, error) {
	ns := e.aead.NonceSize()
	if len(buf) < ns {
		return nil, ErrCiphertextTooShort
	}
	plain, err := e.aead.Open(nil, buf[:ns], buf[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("transform: open: %w", err)
	}
	return plain, nil
}
