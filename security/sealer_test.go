package security

import (
	"bytes"
	"context"
	"testing"
)

func TestSealer_RoundTrip(t *testing.T) {
	sealer, err := NewSealerFromString("super-secret-test-key", WithAssociatedData("token"))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	plaintext := []byte("Bearer abc")
	sealed, err := sealer.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("expected sealed prefix, got %q", sealed)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatalf("sealed value leaks plaintext")
	}
	again, err := sealer.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt again: %v", err)
	}
	if bytes.Equal(sealed, again) {
		t.Fatalf("expected fresh nonce per seal")
	}
	opened, err := sealer.Decrypt(context.Background(), sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("expected %q, got %q", plaintext, opened)
	}
}

func TestSealer_RejectsForeignValues(t *testing.T) {
	issuer, err := NewSealerFromString("key-one", WithAssociatedData("token"))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	sealed, err := issuer.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	otherKey, _ := NewSealerFromString("key-two", WithAssociatedData("token"))
	if _, err := otherKey.Decrypt(context.Background(), sealed); err == nil {
		t.Fatalf("expected failure with a different key")
	}
	otherLabel, _ := NewSealerFromString("key-one", WithAssociatedData("other"))
	if _, err := otherLabel.Decrypt(context.Background(), sealed); err == nil {
		t.Fatalf("expected failure with different associated data")
	}
	if _, err := issuer.Decrypt(context.Background(), []byte("Bearer plain")); err == nil {
		t.Fatalf("expected failure for unsealed input")
	}
	if _, err := issuer.Decrypt(context.Background(), []byte(SealedPrefix+"AAAA")); err == nil {
		t.Fatalf("expected failure for truncated input")
	}
}

func TestNewSealer_RequiresKey(t *testing.T) {
	if _, err := NewSealer([]byte("   ")); err == nil {
		t.Fatalf("expected error for empty key")
	}
	var sealer *Sealer
	if _, err := sealer.Encrypt(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected error for nil sealer")
	}
}
