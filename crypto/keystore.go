package crypto

import (
	"crypto/ed25519"
	"errors"
	"sync"
)

// ErrNoIdentity is returned by a KeyStore that has not been given an identity.
var ErrNoIdentity = errors.New("no identity loaded")

// KeyStore owns the node's identity and serialises every use of it.
type KeyStore struct {
	mu   sync.Mutex
	keys *IdentityKeys
}

// NewKeyStore wraps an existing identity.
func NewKeyStore(keys *IdentityKeys) *KeyStore {
	return &KeyStore{keys: keys}
}

// Replace swaps in a new identity, returning the previous one.
func (ks *KeyStore) Replace(keys *IdentityKeys) *IdentityKeys {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	prev := ks.keys
	ks.keys = keys
	return prev
}

// Peer returns the public view of the current identity.
func (ks *KeyStore) Peer() (*PeerIdentity, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.keys == nil {
		return nil, ErrNoIdentity
	}
	return ks.keys.Peer(), nil
}

// IDString returns the current identity's base-32 id, or "" if none is loaded.
func (ks *KeyStore) IDString() string {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.keys == nil {
		return ""
	}
	return ks.keys.IDString()
}

// EncryptionPubString returns the current identity's base-32 DH public key.
func (ks *KeyStore) EncryptionPubString() string {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.keys == nil {
		return ""
	}
	return ks.keys.EncryptionPubString()
}

// NodeHash returns the routing hash of the current identity.
func (ks *KeyStore) NodeHash() string {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.keys == nil {
		return ""
	}
	return ks.keys.NodeHash()
}

// Secrets returns copies of the private key material for persistence.
func (ks *KeyStore) Secrets() (signingSeed, encryptionSecret []byte, err error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.keys == nil {
		return nil, nil, ErrNoIdentity
	}
	return ks.keys.SigningSeed(), ks.keys.EncryptionSecret(), nil
}

// Seal encrypts plaintext for peer under the current identity.
func (ks *KeyStore) Seal(peer *PeerIdentity, plaintext []byte) ([]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.keys == nil {
		return nil, ErrNoIdentity
	}
	return EncryptForPeer(ks.keys, peer, plaintext)
}

// Open decrypts an envelope addressed to the current identity.
func (ks *KeyStore) Open(senderVerifyKey ed25519.PublicKey, envelope []byte) ([]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.keys == nil {
		return nil, ErrNoIdentity
	}
	return DecryptFromPeer(ks.keys, senderVerifyKey, envelope)
}
