package crypto

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifierStrings(t *testing.T) {
	keys, err := GenerateIdentity()
	require.NoError(t, err)

	id := keys.IDString()
	enc := keys.EncryptionPubString()

	// 32 bytes -> 52 base-32 characters without padding.
	assert.Len(t, id, 52)
	assert.Len(t, enc, 52)
	assert.NotContains(t, id, "=")
	assert.NotContains(t, enc, "=")
	assert.Equal(t, id, keys.IDString(), "id must be stable")
	assert.NotEqual(t, id, enc)
}

func TestParsePeerIdentity(t *testing.T) {
	keys, err := GenerateIdentity()
	require.NoError(t, err)

	peer, err := ParsePeerIdentity(keys.IDString(), keys.EncryptionPubString())
	require.NoError(t, err)

	assert.Equal(t, keys.VerifyKey(), peer.VerifyKey)
	assert.Equal(t, keys.EncryptionPublic(), peer.EncryptionKey)
	assert.Equal(t, keys.IDString(), peer.IDString())
	assert.Equal(t, keys.NodeHash(), peer.NodeHash())

	lower, err := ParsePeerIdentity(strings.ToLower(keys.IDString()), keys.EncryptionPubString())
	require.NoError(t, err)
	assert.Equal(t, peer.VerifyKey, lower.VerifyKey)
}

func TestParsePeerIdentityRejectsMalformed(t *testing.T) {
	keys, err := GenerateIdentity()
	require.NoError(t, err)

	cases := map[string][2]string{
		"invalid alphabet": {"!!!!", keys.EncryptionPubString()},
		"short id":         {keys.IDString()[:20], keys.EncryptionPubString()},
		"short enc key":    {keys.IDString(), keys.EncryptionPubString()[:20]},
		"empty":            {"", ""},
	}

	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePeerIdentity(in[0], in[1])
			assert.True(t, errors.Is(err, ErrInvalidKey), "got %v", err)
		})
	}
}

func TestNodeHash(t *testing.T) {
	keys, err := GenerateIdentity()
	require.NoError(t, err)

	hash := keys.NodeHash()
	assert.Len(t, hash, NodeHashSize*2)
	assert.Equal(t, strings.ToLower(hash), hash)
	assert.Equal(t, hash, NodeHash(keys.VerifyKey()))
}
