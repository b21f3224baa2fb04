package neochat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/neochat/config"
	"github.com/opd-ai/neochat/models"
	"github.com/opd-ai/neochat/storage"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestNode(t *testing.T, configure ...func(*Options)) *Node {
	t.Helper()
	return openTestNode(t, filepath.Join(t.TempDir(), "state.dat"), configure...)
}

func openTestNode(t *testing.T, path string, configure ...func(*Options)) *Node {
	t.Helper()
	opts := NewOptions()
	opts.StoragePath = path
	opts.TimeProvider = &MockTimeProvider{currentTime: testEpoch}
	for _, c := range configure {
		c(opts)
	}
	n, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })
	return n
}

func TestNewFreshNode(t *testing.T) {
	n := newTestNode(t)

	assert.Equal(t, storage.OutcomeFresh, n.LoadResult().Outcome)
	assert.NotEmpty(t, n.ID())
	assert.NotEmpty(t, n.EncryptionPub())
	assert.Len(t, n.NodeHash(), 8)

	profile := n.Profile()
	assert.Equal(t, n.ID(), profile.ID)
	assert.Equal(t, n.EncryptionPub(), profile.EncryptionPubkey)
	assert.Equal(t, models.DefaultUsername, profile.Username)
	assert.False(t, profile.IsRegistered)
	assert.Equal(t, models.NetworkDisconnected, n.NetworkStatus())
}

func TestNodeRestoresState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.dat")

	first := openTestNode(t, path)
	_, err := first.Register("alice")
	require.NoError(t, err)
	peer := newTestNode(t)
	_, err = first.CreateChat(peer.ID())
	require.NoError(t, err)
	id, hash := first.ID(), first.NodeHash()
	require.NoError(t, first.Close())

	second := openTestNode(t, path)
	assert.Equal(t, storage.OutcomeRestored, second.LoadResult().Outcome)
	assert.Equal(t, id, second.ID())
	assert.Equal(t, hash, second.NodeHash())
	assert.Equal(t, "alice", second.Profile().Username)
	assert.Len(t, second.Chats(), 1)
	assert.Len(t, second.Contacts(), 1)
}

func TestNodeResetsOnCorruptState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.dat")

	first := openTestNode(t, path)
	_, err := first.Register("alice")
	require.NoError(t, err)
	oldID := first.ID()
	require.NoError(t, first.Close())

	require.NoError(t, os.WriteFile(path, []byte("definitely not base32 !!"), 0o600))

	var reported *storage.LoadResult
	second := openTestNode(t, path, func(o *Options) {
		o.OnStateReset = func(r *storage.LoadResult) { reported = r }
	})

	require.NotNil(t, reported, "reset hook must fire")
	assert.Equal(t, storage.OutcomeReset, second.LoadResult().Outcome)
	assert.Error(t, second.LoadResult().Err)
	assert.NotEqual(t, oldID, second.ID())
	assert.Equal(t, models.DefaultUsername, second.Profile().Username)
	newID := second.ID()
	require.NoError(t, second.UpdateProfile("bob", ""))
	require.NoError(t, second.Close())

	backups, err := filepath.Glob(path + ".reset-*")
	require.NoError(t, err)
	require.Len(t, backups, 1, "the unreadable file is moved aside, not overwritten")
	kept, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "definitely not base32 !!", string(kept))

	third := openTestNode(t, path)
	assert.Equal(t, storage.OutcomeRestored, third.LoadResult().Outcome)
	assert.Equal(t, newID, third.ID(), "the replacement identity is kept")
	assert.Equal(t, "bob", third.Profile().Username)
}

func TestNodeRecoversIdentityFromMnemonicAfterReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.dat")

	first := openTestNode(t, path)
	_, err := first.Register("alice")
	require.NoError(t, err)
	phrase, err := first.StorageMnemonic()
	require.NoError(t, err)
	oldID := first.ID()
	require.NoError(t, first.Close())

	require.NoError(t, os.Remove(storage.KeyPath(path)))

	second := openTestNode(t, path)
	require.Equal(t, storage.OutcomeReset, second.LoadResult().Outcome)
	assert.NotEqual(t, oldID, second.ID())
	require.NoError(t, second.Close())

	key, err := storage.KeyFromMnemonic(phrase)
	require.NoError(t, err)
	require.NoError(t, storage.WriteKey(storage.KeyPath(path), key))

	third := openTestNode(t, path)
	require.Equal(t, storage.OutcomeRestored, third.LoadResult().Outcome, "err: %v", third.LoadResult().Err)
	assert.Equal(t, oldID, third.ID())
	assert.Equal(t, "alice", third.Profile().Username)
}

func TestNodeResetsOnForeignKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.dat")

	first := openTestNode(t, path)
	require.NoError(t, first.UpdateProfile("alice", ""))
	require.NoError(t, first.Close())

	require.NoError(t, os.Remove(storage.KeyPath(path)))

	second := openTestNode(t, path)
	assert.Equal(t, storage.OutcomeReset, second.LoadResult().Outcome)
	assert.ErrorIs(t, second.LoadResult().Err, storage.ErrAuth)
	assert.True(t, second.LoadResult().KeyCreated)
}

func TestStorageMnemonic(t *testing.T) {
	n := newTestNode(t)
	phrase, err := n.StorageMnemonic()
	require.NoError(t, err)
	assert.Len(t, strings.Fields(phrase), 24)
}

func TestNodeMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	newTestNode(t, func(o *Options) { o.Registerer = reg })

	opts := NewOptions()
	opts.StoragePath = filepath.Join(t.TempDir(), "state.dat")
	opts.Registerer = reg
	_, err := New(opts)
	assert.Error(t, err, "a registry accepts one node's mesh metrics")
}

func TestProfileLifecycle(t *testing.T) {
	n := newTestNode(t)

	_, err := n.Register("   ")
	assert.ErrorIs(t, err, ErrEmptyUsername)

	user, err := n.Register("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, models.StatusOnline, user.Status)
	assert.True(t, user.IsRegistered)
	assert.Equal(t, uint64(testEpoch.Unix()), user.LastSeen)

	require.NoError(t, n.UpdateProfile("Alice A.", "https://example.com/a.png"))
	assert.Equal(t, "Alice A.", n.Profile().Username)
	assert.Equal(t, "https://example.com/a.png", n.Profile().AvatarURL)
}

func TestClearDatabaseKeepsIdentity(t *testing.T) {
	n := newTestNode(t)
	peer := newTestNode(t)

	_, err := n.Register("alice")
	require.NoError(t, err)
	_, err = n.CreateChat(peer.ID())
	require.NoError(t, err)

	require.NoError(t, n.ClearDatabase())

	profile := n.Profile()
	assert.Equal(t, n.ID(), profile.ID)
	assert.Equal(t, n.EncryptionPub(), profile.EncryptionPubkey)
	assert.False(t, profile.IsRegistered)
	assert.Equal(t, models.DefaultUsername, profile.Username)
	assert.Empty(t, n.Chats())
	assert.Empty(t, n.Contacts())
}

func TestConnectPeer(t *testing.T) {
	n := newTestNode(t)
	n.ConnectPeer("192.0.2.1:33445")
	assert.Equal(t, models.NetworkConnected, n.NetworkStatus())
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.StoragePath = filepath.Join(t.TempDir(), "state.dat")
	cfg.Mesh.MaxTTL = 7

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.StoragePath, opts.StoragePath)
	assert.Equal(t, uint8(7), opts.MeshTTL)
	assert.Nil(t, opts.Relay)
	assert.Nil(t, opts.DNSResolver)

	cfg.Relay.URL = "https://relay.example.com"
	cfg.DNSTunnel.Resolver = "127.0.0.1:53"
	opts, err = OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.NotNil(t, opts.Relay)
	assert.NotNil(t, opts.DNSResolver)

	n, err := New(opts)
	require.NoError(t, err)
	defer n.Close()
	assert.ElementsMatch(t,
		[]models.TransportMode{models.TransportMesh, models.TransportCdnRelay, models.TransportDNSTunnel},
		n.Router().Modes())
}
