package crypto

import (
	"crypto/ed25519"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// DecryptFromPeer authenticates an envelope against the sender's verification
// key and then opens it with the receiver's DH key. The signature is checked
// before any key agreement or decryption takes place.
func DecryptFromPeer(receiver *IdentityKeys, senderVerifyKey ed25519.PublicKey, envelope []byte) ([]byte, error) {
	log := NewLogger("DecryptFromPeer").WithField("envelope_size", len(envelope))

	if receiver == nil {
		return nil, fmt.Errorf("%w: nil receiver identity", ErrInvalidKey)
	}
	if len(envelope) < EnvelopeHeaderSize {
		log.Debug("Rejecting short envelope")
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrEnvelopeTooShort, len(envelope), EnvelopeHeaderSize)
	}

	var ephemeralPub [KeySize]byte
	copy(ephemeralPub[:], envelope[:EphemeralKeySize])
	signature := envelope[EphemeralKeySize:EnvelopeHeaderSize]
	ciphertext := envelope[EnvelopeHeaderSize:]

	if err := Verify(senderVerifyKey, signedPortion(envelope), signature); err != nil {
		log.WithError(err, "authentication", "verify").Debug("Envelope signature rejected")
		return nil, err
	}

	key, err := sessionKey(receiver.encryption, ephemeralPub)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(key[:])

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}

	plaintext, err := aead.Open(nil, zeroNonce[:], ciphertext, nil)
	if err != nil {
		log.Debug("Envelope AEAD authentication failed")
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}
