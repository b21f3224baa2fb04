package storage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"github.com/tyler-smith/go-bip39"

	"github.com/opd-ai/neochat/crypto"
)

// KeyPath returns the key-file path for a state file.
func KeyPath(statePath string) string {
	return statePath + ".key"
}

// LoadOrCreateKey reads the raw 32-byte key at path, generating and writing a
// new one if the file does not exist. The key is never rotated here.
func LoadOrCreateKey(path string) (key [KeySize]byte, created bool, err error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != KeySize {
			return key, false, fmt.Errorf("%w: %d bytes, want %d", ErrKeyFile, len(data), KeySize)
		}
		copy(key[:], data)
		crypto.ZeroBytes(data)
		return key, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return key, false, fmt.Errorf("%w: %v", ErrKeyFile, err)
	}

	if _, err := rand.Read(key[:]); err != nil {
		return key, false, fmt.Errorf("generate storage key: %w", err)
	}
	if err := WriteKey(path, key); err != nil {
		return [KeySize]byte{}, false, err
	}
	return key, true, nil
}

// WriteKey stores key at path with owner-only permissions.
func WriteKey(path string, key [KeySize]byte) error {
	if err := writeFileAtomic(path, key[:]); err != nil {
		return fmt.Errorf("save storage key: %w", err)
	}
	return nil
}

// KeyMnemonic renders the storage key as a 24-word BIP-39 phrase.
func KeyMnemonic(key [KeySize]byte) (string, error) {
	return bip39.NewMnemonic(key[:])
}

// KeyFromMnemonic recovers a storage key from its BIP-39 phrase.
func KeyFromMnemonic(mnemonic string) ([KeySize]byte, error) {
	var key [KeySize]byte
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return key, fmt.Errorf("%w: %v", ErrKeyFile, err)
	}
	if len(entropy) != KeySize {
		return key, fmt.Errorf("%w: phrase encodes %d bytes", ErrKeyFile, len(entropy))
	}
	copy(key[:], entropy)
	crypto.ZeroBytes(entropy)
	return key, nil
}
