// Package security seals credentials at rest.
package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/goliatone/go-redirects/core"
)

// SealedPrefix marks a value produced by Sealer.Encrypt.
const SealedPrefix = "redirects.sealed.v1:"

// Sealer encrypts values with AES-GCM under a key derived from the
// configured passphrase. Output is SealedPrefix followed by
// base64(nonce || ciphertext). The storage key is bound as additional data
// so a sealed value cannot be moved between keys.
type Sealer struct {
	aead cipher.AEAD
	aad  []byte
}

type SealerOption func(*Sealer)

// WithAssociatedData binds sealed values to label.
func WithAssociatedData(label string) SealerOption {
	return func(s *Sealer) {
		s.aad = []byte(label)
	}
}

func NewSealer(keyMaterial []byte, opts ...SealerOption) (*Sealer, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	block, err := aes.NewCipher(deriveKey(key))
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	sealer := &Sealer{aead: aead}
	for _, opt := range opts {
		if opt != nil {
			opt(sealer)
		}
	}
	return sealer, nil
}

func NewSealerFromString(key string, opts ...SealerOption) (*Sealer, error) {
	return NewSealer([]byte(key), opts...)
}

func (s *Sealer) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if s == nil || s.aead == nil {
		return nil, fmt.Errorf("security: sealer is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, s.aad)
	out := make([]byte, 0, len(SealedPrefix)+base64.RawURLEncoding.EncodedLen(len(sealed)))
	out = append(out, SealedPrefix...)
	return base64.RawURLEncoding.AppendEncode(out, sealed), nil
}

func (s *Sealer) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if s == nil || s.aead == nil {
		return nil, fmt.Errorf("security: sealer is nil")
	}
	if !IsSealed(ciphertext) {
		return nil, fmt.Errorf("security: value is not sealed")
	}
	raw, err := base64.RawURLEncoding.DecodeString(string(ciphertext[len(SealedPrefix):]))
	if err != nil {
		return nil, fmt.Errorf("security: decode sealed value: %w", err)
	}
	nonceSize := s.aead.NonceSize()
	if len(raw) <= nonceSize {
		return nil, fmt.Errorf("security: sealed value is truncated")
	}
	plaintext, err := s.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], s.aad)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value []byte) bool {
	return bytes.HasPrefix(value, []byte(SealedPrefix))
}

func deriveKey(value []byte) []byte {
	if len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ core.SecretProvider = (*Sealer)(nil)
