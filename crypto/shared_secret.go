package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

var (
	// envelopeSalt and messageKeyInfo are used for no other derivation.
	envelopeSalt   = []byte("NeoChat_P2P_Encryption_Salt_v1")
	messageKeyInfo = []byte("NeoChat_Message_Key")
)

// DeriveSharedSecret computes X25519(privateKey, peerPublicKey). Low-order
// peer keys that would yield an all-zero secret are rejected.
func DeriveSharedSecret(peerPublicKey, privateKey [KeySize]byte) ([KeySize]byte, error) {
	log := NewLogger("DeriveSharedSecret").WithField("peer_key_prefix", fmt.Sprintf("%x", peerPublicKey[:8]))

	sharedSecret, err := curve25519.X25519(privateKey[:], peerPublicKey[:])
	if err != nil {
		log.WithError(err, "ecdh", "x25519").Debug("X25519 computation failed")
		return [KeySize]byte{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	var result [KeySize]byte
	copy(result[:], sharedSecret)
	ZeroBytes(sharedSecret)

	return result, nil
}

// deriveMessageKey expands an ECDH output into a one-time AEAD key.
func deriveMessageKey(shared [KeySize]byte) ([KeySize]byte, error) {
	var key [KeySize]byte
	r := hkdf.New(sha256.New, shared[:], envelopeSalt, messageKeyInfo)
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return [KeySize]byte{}, fmt.Errorf("hkdf expand: %w", err)
	}
	return key, nil
}
