package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrUnseal is returned when a sealed token cannot be opened with the key.
var ErrUnseal = errors.New("session: cannot open sealed token")

// Sealer encrypts API access tokens at rest with NaCl secretbox.
type Sealer struct {
	key [keySize]byte
}

// NewSealer creates a Sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("session key must be %d bytes, got %d", keySize, len(key))
	}
	s := &Sealer{}
	copy(s.key[:], key)
	return s, nil
}

// NewSealerFromHex creates a Sealer from a hex-encoded 32-byte key.
func NewSealerFromHex(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode session key: %w", err)
	}
	return NewSealer(key)
}

// NewRandomSealer creates a Sealer with a random key. Sealed tokens cannot be
// opened after a restart.
func NewRandomSealer() (*Sealer, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	return NewSealer(key)
}

// Seal encrypts plain. The nonce is prepended to the ciphertext.
func (s *Sealer) Seal(plain string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed []byte) (string, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrUnseal
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrUnseal
	}
	return string(plain), nil
}
