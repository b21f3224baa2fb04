package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFindPeerAlwaysNotFound(t *testing.T) {
	d := New(DefaultConfig())
	_, err := d.FindPeer("ABCDEFGHIJKLMNOP")
	assert.ErrorIs(t, err, ErrPeerNotFound)
}

func TestValidatePubkey(t *testing.T) {
	assert.False(t, ValidatePubkey(""))
	assert.False(t, ValidatePubkey("abc"))
	assert.False(t, ValidatePubkey("   ab  "))
	assert.True(t, ValidatePubkey("abcd"))
	assert.True(t, ValidatePubkey("MFRGGZDFMZTWQ2LKNNWG23TPOBYXE43UOV3HO6DZPJQWEY3E"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, cfg.BootstrapNodes)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}
