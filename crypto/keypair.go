package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the size of X25519 keys and Ed25519 public keys in bytes.
const KeySize = 32

// IdentityKeys holds the node's long-term signing and key-agreement key pairs.
// The signing pair is the node's identity; the DH pair is never used to sign.
type IdentityKeys struct {
	signing       ed25519.PrivateKey
	encryption    [KeySize]byte
	encryptionPub [KeySize]byte
}

// GenerateIdentity creates a fresh signing key pair and a fresh DH key pair
// from the system CSPRNG.
func GenerateIdentity() (*IdentityKeys, error) {
	_, signing, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}

	var secret [KeySize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, fmt.Errorf("generate encryption key: %w", err)
	}

	keys, err := newIdentity(signing, secret)
	ZeroBytes(secret[:])
	return keys, err
}

// IdentityFromSecrets rebuilds an identity from its persisted private halves:
// the 32-byte Ed25519 seed and the 32-byte X25519 private scalar.
func IdentityFromSecrets(signingSeed, encryptionSecret []byte) (*IdentityKeys, error) {
	if len(signingSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: signing seed is %d bytes", ErrInvalidKey, len(signingSeed))
	}
	if len(encryptionSecret) != KeySize {
		return nil, fmt.Errorf("%w: encryption secret is %d bytes", ErrInvalidKey, len(encryptionSecret))
	}

	var secret [KeySize]byte
	copy(secret[:], encryptionSecret)
	if isZeroKey(secret) {
		return nil, fmt.Errorf("%w: encryption secret is all zeros", ErrInvalidKey)
	}

	keys, err := newIdentity(ed25519.NewKeyFromSeed(signingSeed), secret)
	ZeroBytes(secret[:])
	return keys, err
}

func newIdentity(signing ed25519.PrivateKey, secret [KeySize]byte) (*IdentityKeys, error) {
	pub, err := publicFromPrivate(secret)
	if err != nil {
		return nil, err
	}
	return &IdentityKeys{signing: signing, encryption: secret, encryptionPub: pub}, nil
}

// publicFromPrivate derives the X25519 public key for a private scalar.
func publicFromPrivate(private [KeySize]byte) ([KeySize]byte, error) {
	var pub [KeySize]byte
	raw, err := curve25519.X25519(private[:], curve25519.Basepoint)
	if err != nil {
		return pub, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	copy(pub[:], raw)
	return pub, nil
}

// VerifyKey returns the public half of the signing key.
func (k *IdentityKeys) VerifyKey() ed25519.PublicKey {
	return k.signing.Public().(ed25519.PublicKey)
}

// EncryptionPublic returns the public half of the DH key.
func (k *IdentityKeys) EncryptionPublic() [KeySize]byte {
	return k.encryptionPub
}

// SigningSeed returns a copy of the Ed25519 seed for persistence.
func (k *IdentityKeys) SigningSeed() []byte {
	seed := make([]byte, ed25519.SeedSize)
	copy(seed, k.signing.Seed())
	return seed
}

// EncryptionSecret returns a copy of the X25519 private scalar for persistence.
func (k *IdentityKeys) EncryptionSecret() []byte {
	secret := make([]byte, KeySize)
	copy(secret, k.encryption[:])
	return secret
}

// Peer returns the public view of this identity, as a remote node would see it.
func (k *IdentityKeys) Peer() *PeerIdentity {
	return &PeerIdentity{
		VerifyKey:     k.VerifyKey(),
		EncryptionKey: k.encryptionPub,
	}
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [KeySize]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
