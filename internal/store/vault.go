package store

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSecretNotFound is returned when no secret is stored for a profile.
var ErrSecretNotFound = errors.New("store: secret not found")

// Vault seals secrets with XChaCha20-Poly1305 before writing them to a KV.
// The profile ID is bound as additional data so a sealed value cannot be
// replayed under another profile.
type Vault struct {
	kv   KV
	aead cipher.AEAD
}

// NewVault wraps kv with a 32-byte key.
func NewVault(kv KV, key []byte) (*Vault, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("store: vault key: %w", err)
	}
	return &Vault{kv: kv, aead: aead}, nil
}

// LoadOrCreateKey reads the key file at path, generating one on first use.
func LoadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path) //nolint:gosec // path from config.KeyPath
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("store: key file %s has %d bytes, want %d", path, len(key), chacha20poly1305.KeySize)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("store: reading key file: %w", err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("store: generating key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("store: creating key dir: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("store: writing key file: %w", err)
	}
	return key, nil
}

// GetSecret returns the plaintext secret for a profile.
func (v *Vault) GetSecret(ctx context.Context, profileID string) (string, error) {
	key := SecretKey(profileID)
	sealed, err := v.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", err
	}

	ns := v.aead.NonceSize()
	if len(sealed) < ns {
		return "", fmt.Errorf("store: sealed secret for %s is truncated", profileID)
	}
	plain, err := v.aead.Open(nil, sealed[:ns], sealed[ns:], []byte(key))
	if err != nil {
		return "", fmt.Errorf("store: opening secret for %s: %w", profileID, err)
	}
	return string(plain), nil
}

// SetSecret seals and stores the secret for a profile.
func (v *Vault) SetSecret(ctx context.Context, profileID, secret string) error {
	key := SecretKey(profileID)
	nonce := make([]byte, v.aead.NonceSize(), v.aead.NonceSize()+len(secret)+v.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("store: generating nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(secret), []byte(key))
	return v.kv.Set(ctx, key, sealed)
}

// DeleteSecret removes the secret for a profile.
func (v *Vault) DeleteSecret(ctx context.Context, profileID string) error {
	return v.kv.Delete(ctx, SecretKey(profileID))
}
