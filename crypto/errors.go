package crypto

import "errors"

var (
	// ErrInvalidKey indicates malformed or unusable key bytes.
	ErrInvalidKey = errors.New("invalid key")
	// ErrEnvelopeTooShort indicates an envelope shorter than the fixed header.
	ErrEnvelopeTooShort = errors.New("envelope too short")
	// ErrSignatureInvalid indicates the envelope signature did not verify.
	ErrSignatureInvalid = errors.New("signature verification failed")
	// ErrDecryptionFailed indicates AEAD authentication failed.
	ErrDecryptionFailed = errors.New("decryption failed")
)
