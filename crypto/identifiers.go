package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
)

// NodeHashSize is the number of SHA-256 bytes kept in a node hash.
const NodeHashSize = 4

var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// PeerIdentity is a remote peer's verification key and DH public key.
type PeerIdentity struct {
	VerifyKey     ed25519.PublicKey
	EncryptionKey [KeySize]byte
}

// IDString returns the unpadded base-32 encoding of the signing public key.
func (k *IdentityKeys) IDString() string {
	return idEncoding.EncodeToString(k.VerifyKey())
}

// EncryptionPubString returns the unpadded base-32 encoding of the DH public key.
func (k *IdentityKeys) EncryptionPubString() string {
	return idEncoding.EncodeToString(k.encryptionPub[:])
}

// NodeHash returns the routing hash of this identity.
func (k *IdentityKeys) NodeHash() string {
	return NodeHash(k.VerifyKey())
}

// IDString returns the peer's identifier in the same form as IdentityKeys.IDString.
func (p *PeerIdentity) IDString() string {
	return idEncoding.EncodeToString(p.VerifyKey)
}

// NodeHash returns the routing hash of the peer.
func (p *PeerIdentity) NodeHash() string {
	return NodeHash(p.VerifyKey)
}

// ParsePeerIdentity reconstructs a peer from its two base-32 identifiers.
func ParsePeerIdentity(idStr, encStr string) (*PeerIdentity, error) {
	verifyKey, err := ParseVerifyKey(idStr)
	if err != nil {
		return nil, err
	}

	encBytes, err := decodeKey(encStr)
	if err != nil {
		return nil, fmt.Errorf("%w: encryption key: %v", ErrInvalidKey, err)
	}

	peer := &PeerIdentity{VerifyKey: verifyKey}
	copy(peer.EncryptionKey[:], encBytes)
	return peer, nil
}

// ParseVerifyKey decodes an identifier produced by IDString.
func ParseVerifyKey(idStr string) (ed25519.PublicKey, error) {
	raw, err := decodeKey(idStr)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrInvalidKey, err)
	}
	return ed25519.PublicKey(raw), nil
}

func decodeKey(s string) ([]byte, error) {
	raw, err := idEncoding.DecodeString(strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return nil, err
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("decoded %d bytes, want %d", len(raw), KeySize)
	}
	return raw, nil
}

// NodeHash is the lowercase hex of the first four SHA-256 bytes of a signing
// public key. It is short enough to route on without revealing the full key.
func NodeHash(verifyKey ed25519.PublicKey) string {
	sum := sha256.Sum256(verifyKey)
	return hex.EncodeToString(sum[:NodeHashSize])
}
