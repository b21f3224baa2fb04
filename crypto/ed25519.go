package crypto

import (
	"crypto/ed25519"
	"fmt"
)

// SignatureSize is the size of an Ed25519 signature in bytes.
const SignatureSize = ed25519.SignatureSize

// Sign creates an Ed25519 signature over message with the identity's signing key.
func (k *IdentityKeys) Sign(message []byte) []byte {
	return ed25519.Sign(k.signing, message)
}

// Verify checks an Ed25519 signature. A malformed verification key is reported
// as ErrInvalidKey, a signature that does not match as ErrSignatureInvalid.
func Verify(verifyKey ed25519.PublicKey, message, signature []byte) error {
	if len(verifyKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: verify key is %d bytes", ErrInvalidKey, len(verifyKey))
	}
	if len(signature) != SignatureSize {
		return ErrSignatureInvalid
	}
	if !ed25519.Verify(verifyKey, message, signature) {
		return ErrSignatureInvalid
	}
	return nil
}
