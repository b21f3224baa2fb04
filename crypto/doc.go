// Package crypto implements the identity and envelope primitives for neochat.
//
// Every node owns two long-term key pairs: an Ed25519 signing key, which is the
// node's identity, and an X25519 key used only for key agreement. The public
// halves are exchanged out-of-band as unpadded base-32 strings.
//
// # Identity
//
//	keys, err := crypto.GenerateIdentity()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(keys.IDString(), keys.EncryptionPubString())
//
// A remote peer is reconstructed from those two strings:
//
//	peer, err := crypto.ParsePeerIdentity(idStr, encStr)
//
// # Envelopes
//
// [EncryptForPeer] produces a self-authenticating envelope:
//
//	ephemeral_x25519_pub(32) || ed25519_signature(64) || chacha20poly1305_ciphertext
//
// The sender generates a fresh ephemeral X25519 key for every envelope, derives
// a one-time ChaCha20-Poly1305 key with HKDF-SHA-256 from the ECDH output and
// encrypts under an all-zero nonce. The signature covers the ephemeral key and
// the ciphertext, binding both to the sender's identity.
//
// [DecryptFromPeer] verifies the signature before any decryption is attempted
// and fails closed: a short envelope, a bad signature or an AEAD failure each
// return a distinct sentinel error and never any plaintext.
//
//	envelope, err := crypto.EncryptForPeer(alice, bobPeer, []byte("hi"))
//	plaintext, err := crypto.DecryptFromPeer(bob, alice.VerifyKey(), envelope)
//
// # Concurrency
//
// [IdentityKeys] values are immutable after generation. [KeyStore] wraps the
// node's identity behind a mutex for code that may replace it at runtime (for
// example after a storage reset).
package crypto
