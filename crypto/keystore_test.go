package crypto

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyStoreEmpty(t *testing.T) {
	ks := NewKeyStore(nil)

	_, err := ks.Peer()
	assert.ErrorIs(t, err, ErrNoIdentity)
	_, _, err = ks.Secrets()
	assert.ErrorIs(t, err, ErrNoIdentity)
	_, err = ks.Seal(&PeerIdentity{}, []byte("x"))
	assert.ErrorIs(t, err, ErrNoIdentity)
	assert.Empty(t, ks.IDString())
	assert.Empty(t, ks.NodeHash())
}

func TestKeyStoreSealOpen(t *testing.T) {
	alice, bob := newPair(t)
	aliceStore := NewKeyStore(alice)
	bobStore := NewKeyStore(bob)

	bobPeer, err := bobStore.Peer()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			envelope, err := aliceStore.Seal(bobPeer, []byte("concurrent"))
			if !assert.NoError(t, err) {
				return
			}
			plaintext, err := bobStore.Open(alice.VerifyKey(), envelope)
			if assert.NoError(t, err) {
				assert.Equal(t, "concurrent", string(plaintext))
			}
		}()
	}
	wg.Wait()
}

func TestKeyStoreReplace(t *testing.T) {
	alice, bob := newPair(t)
	ks := NewKeyStore(alice)

	prev := ks.Replace(bob)
	assert.Same(t, alice, prev)
	assert.Equal(t, bob.IDString(), ks.IDString())
	assert.Equal(t, bob.EncryptionPubString(), ks.EncryptionPubString())

	seed, secret, err := ks.Secrets()
	require.NoError(t, err)
	restored, err := IdentityFromSecrets(seed, secret)
	require.NoError(t, err)
	assert.Equal(t, bob.IDString(), restored.IDString())
}
