// Package crypto derives the application's signing and encryption keys from
// the single configured session secret.
package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key purposes. Each yields an independent key from the same secret.
const (
	PurposeSessionHash  = "yellow/session/hash"
	PurposeSessionBlock = "yellow/session/block"
	PurposeTokens       = "yellow/identity/tokens"
)

// DeriveKey expands secret into a size-byte key bound to purpose using
// HKDF-SHA256. The same inputs always yield the same key.
func DeriveKey(secret, purpose string, size int) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("cannot derive %q key from an empty secret", purpose)
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid key size %d", size)
	}

	key := make([]byte, size)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive %q key: %w", purpose, err)
	}
	return key, nil
}

// SessionKeys returns the hash and block keys for signing and encrypting
// session cookies, in securecookie.CodecsFromPairs order.
func SessionKeys(secret string) ([][]byte, error) {
	hashKey, err := DeriveKey(secret, PurposeSessionHash, 64)
	if err != nil {
		return nil, err
	}
	blockKey, err := DeriveKey(secret, PurposeSessionBlock, 32)
	if err != nil {
		return nil, err
	}
	return [][]byte{hashKey, blockKey}, nil
}
