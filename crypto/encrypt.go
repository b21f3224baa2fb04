package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// EphemeralKeySize is the size of the ephemeral X25519 public key prefix.
	EphemeralKeySize = KeySize
	// EnvelopeHeaderSize is the fixed prefix of every envelope.
	EnvelopeHeaderSize = EphemeralKeySize + SignatureSize
	// EnvelopeOverhead is the total size added to a plaintext.
	EnvelopeOverhead = EnvelopeHeaderSize + chacha20poly1305.Overhead
)

// zeroNonce is safe only because every envelope key is derived from a fresh
// ephemeral key. Nothing may cache or reuse an ephemeral key pair.
var zeroNonce [chacha20poly1305.NonceSize]byte

// ephemeralKeyPair is a single-use X25519 key pair.
type ephemeralKeyPair struct {
	public  [KeySize]byte
	private [KeySize]byte
}

func newEphemeralKeyPair() (*ephemeralKeyPair, error) {
	var kp ephemeralKeyPair
	if _, err := rand.Read(kp.private[:]); err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	pub, err := publicFromPrivate(kp.private)
	if err != nil {
		return nil, err
	}
	kp.public = pub
	return &kp, nil
}

func (kp *ephemeralKeyPair) wipe() {
	ZeroBytes(kp.private[:])
}

// EncryptForPeer seals plaintext for peer and signs the result with the
// sender's identity. The output layout is ephemeral_pub || signature || ciphertext.
func EncryptForPeer(sender *IdentityKeys, peer *PeerIdentity, plaintext []byte) ([]byte, error) {
	if sender == nil || peer == nil {
		return nil, fmt.Errorf("%w: nil identity", ErrInvalidKey)
	}

	ephemeral, err := newEphemeralKeyPair()
	if err != nil {
		return nil, err
	}
	defer ephemeral.wipe()

	key, err := sessionKey(ephemeral.private, peer.EncryptionKey)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(key[:])

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}

	envelope := make([]byte, EnvelopeHeaderSize, EnvelopeOverhead+len(plaintext))
	copy(envelope, ephemeral.public[:])
	envelope = aead.Seal(envelope, zeroNonce[:], plaintext, nil)

	signature := sender.Sign(signedPortion(envelope))
	copy(envelope[EphemeralKeySize:EnvelopeHeaderSize], signature)

	NewLogger("EncryptForPeer").WithFields(SecureFieldHash(ephemeral.public[:], "ephemeral")).
		WithField("envelope_size", len(envelope)).Debug("Envelope sealed")

	return envelope, nil
}

// sessionKey runs ECDH and HKDF; both sides of an envelope call it.
func sessionKey(private, public [KeySize]byte) ([KeySize]byte, error) {
	shared, err := DeriveSharedSecret(public, private)
	if err != nil {
		return [KeySize]byte{}, err
	}
	defer ZeroBytes(shared[:])
	return deriveMessageKey(shared)
}

// signedPortion returns ephemeral_pub || ciphertext without copying twice.
func signedPortion(envelope []byte) []byte {
	out := make([]byte, 0, len(envelope)-SignatureSize)
	out = append(out, envelope[:EphemeralKeySize]...)
	return append(out, envelope[EnvelopeHeaderSize:]...)
}
