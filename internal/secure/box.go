package secure

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// Box seals and opens the user-context blobs that ride along with job
// arguments. The plaintext holds PII and must only ever exist inside a job;
// everything that crosses the queue or the database is sealed.
type Box struct {
	key [32]byte
}

var ErrBadCiphertext = errors.New("secure: cannot open sealed context")

// NewBox derives a box from a base64-encoded 32-byte key.
func NewBox(encodedKey string) (*Box, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("secure: decode key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secure: key must be 32 bytes, got %d", len(raw))
	}
	b := &Box{}
	copy(b.key[:], raw)
	return b, nil
}

// Seal encrypts plaintext with a fresh random nonce. The nonce is prepended
// to the returned ciphertext.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("secure: generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &b.key), nil
}

// Open decrypts a blob produced by Seal. Tampered or truncated input returns
// ErrBadCiphertext.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < 24 {
		return nil, ErrBadCiphertext
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &b.key)
	if !ok {
		return nil, ErrBadCiphertext
	}
	return plaintext, nil
}
