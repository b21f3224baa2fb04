package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base32"
	"fmt"

	"github.com/opd-ai/neochat/models"
)

const (
	// KeySize is the size of the at-rest key.
	KeySize = 32
	// NonceSize is the AES-GCM nonce length.
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag length.
	TagSize = 16
)

var fileEncoding = base32.StdEncoding

// Seal encrypts plaintext under key with a fresh random nonce and returns the
// base-32 text written to disk.
func Seal(key [KeySize]byte, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	blob := gcm.Seal(nonce, nonce, plaintext, nil)

	out := make([]byte, fileEncoding.EncodedLen(len(blob)))
	fileEncoding.Encode(out, blob)
	return out, nil
}

// Unseal reverses Seal.
func Unseal(key [KeySize]byte, text []byte) ([]byte, error) {
	blob := make([]byte, fileEncoding.DecodedLen(len(text)))
	n, err := fileEncoding.Decode(blob, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	blob = blob[:n]

	// The decoder ignores spare trailing bits; only the canonical text is accepted.
	if !bytes.Equal(text, []byte(fileEncoding.EncodeToString(blob))) {
		return nil, fmt.Errorf("%w: non-canonical base-32", ErrDecode)
	}

	if len(blob) < NonceSize+TagSize {
		return nil, fmt.Errorf("%w: %d bytes after decoding", ErrDecode, len(blob))
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return nil, ErrAuth
	}
	return plaintext, nil
}

// Encode serialises and seals a node state.
func Encode(state *models.NodeState, key [KeySize]byte) ([]byte, error) {
	plaintext, err := EncodeState(state)
	if err != nil {
		return nil, err
	}
	return Seal(key, plaintext)
}

// Decode unseals and deserialises a node state.
func Decode(text []byte, key [KeySize]byte) (*models.NodeState, error) {
	plaintext, err := Unseal(key, text)
	if err != nil {
		return nil, err
	}
	return DecodeState(plaintext)
}

func newGCM(key [KeySize]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
