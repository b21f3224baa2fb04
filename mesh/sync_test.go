package mesh

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncBetweenTwoStores(t *testing.T) {
	alice := NewStore(nil)
	bob := NewStore(nil)

	for i := 0; i < 3; i++ {
		require.True(t, alice.AcceptPacket(packet(fmt.Sprintf("a%d", i), "carol", 4, epoch), epoch))
	}
	require.True(t, bob.AcceptPacket(packet("b0", "dave", 4, epoch), epoch))
	require.True(t, bob.AcceptPacket(packet("a0", "carol", 4, epoch), epoch))

	now := epoch.Add(time.Minute)

	// Alice sends what Bob lacks; Bob sends what Alice lacks.
	toBob, aliceResult := alice.Sync("alice", "bob", bob.SeenIDs(), nil, now)
	toAlice, bobResult := bob.Sync("bob", "alice", alice.SeenIDs(), toBob, now)
	_, aliceResult2 := alice.Sync("alice", "bob", nil, toAlice, now)

	assert.Equal(t, uint32(2), aliceResult.Sent)
	assert.Equal(t, uint32(2), bobResult.Received)
	assert.Equal(t, uint32(1), bobResult.Sent)
	assert.Equal(t, uint32(1), aliceResult2.Received)
	assert.Equal(t, "bob", aliceResult.PeerHash)

	assert.Equal(t, []string{"a0", "a1", "a2", "b0"}, ids(alice.Packets()))
	assert.Equal(t, []string{"a0", "a1", "a2", "b0"}, ids(bob.Packets()))

	for _, p := range bob.Packets() {
		if p.MessageID == "a1" {
			assert.Equal(t, MaxTTL-1, p.TTL, "received packets spend one hop")
		}
	}
}

func TestSyncStopsAtHopLimit(t *testing.T) {
	p := packet("hop", "x", 4, epoch)
	p.TTL = 1

	store := NewStore(nil)
	_, result := store.Sync("relay", "peer", nil, []Packet{p}, epoch)
	assert.Equal(t, uint32(0), result.Received)
	assert.Empty(t, store.Packets())
}

func TestSyncDeliversLastHopToRecipient(t *testing.T) {
	p := packet("last", "ab12cd34", 4, epoch)
	p.TTL = 1

	store := NewStore(nil)
	_, result := store.Sync("ab12cd34", "peer", nil, []Packet{p}, epoch)
	assert.Equal(t, uint32(1), result.Received)

	mine := store.ExtractMyPackets("ab12cd34")
	require.Len(t, mine, 1)
	assert.Equal(t, "last", mine[0].MessageID)
	assert.Equal(t, uint8(1), mine[0].TTL, "arrival spends no hop")
}

func TestSyncFullHopBudget(t *testing.T) {
	p := packet("trip", "ab12cd34", 4, epoch)
	stores := make([]*Store, MaxTTL)
	for i := range stores {
		stores[i] = NewStore(nil)
	}

	// MaxTTL-1 carriers each spend a hop; the recipient spends none.
	offered := []Packet{p}
	for i := 0; i < int(MaxTTL)-1; i++ {
		hash := fmt.Sprintf("carrier%02d", i)
		_, result := stores[i].Sync(hash, "prev", nil, offered, epoch)
		require.Equal(t, uint32(1), result.Received, "carrier %d", i)
		offered = stores[i].PacketsForSync(nil, epoch)
	}
	require.Len(t, offered, 1)
	assert.Equal(t, uint8(1), offered[0].TTL)

	recipient := stores[MaxTTL-1]
	_, result := recipient.Sync("ab12cd34", "prev", nil, offered, epoch)
	assert.Equal(t, uint32(1), result.Received)
	assert.Len(t, recipient.ExtractMyPackets("ab12cd34"), 1)
}

func TestPacketWireRoundTrip(t *testing.T) {
	in := []Packet{
		packet("one", "ab12", 3, epoch),
		NewPacket("cd34", []byte{1, 2, 3}, epoch),
	}

	raw, err := MarshalPackets(in)
	require.NoError(t, err)
	out, err := UnmarshalPackets(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = UnmarshalPackets([]byte{0xc1})
	assert.Error(t, err)
}

func TestBeacon(t *testing.T) {
	store := NewStore(nil)
	require.True(t, store.AcceptPacket(packet("x", "y", 1, epoch), epoch))

	b := store.Beacon("ab12cd34")
	assert.Equal(t, Beacon{Version: BeaconVersion, NodeHash: "ab12cd34", PacketCount: 1}, b)

	raw, err := MarshalBeacon(b)
	require.NoError(t, err)
	decoded, err := UnmarshalBeacon(raw)
	require.NoError(t, err)
	assert.Equal(t, b, decoded)
}
