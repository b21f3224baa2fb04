package neochat

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/neochat/crypto"
	"github.com/opd-ai/neochat/discovery"
	"github.com/opd-ai/neochat/mesh"
	"github.com/opd-ai/neochat/models"
	"github.com/opd-ai/neochat/storage"
	"github.com/opd-ai/neochat/transport"
)

// Node is one NeoChat participant: its identity, its registries, the mesh
// packets it carries and the transports it can send over.
type Node struct {
	options *Options
	clock   TimeProvider

	keys       *crypto.KeyStore
	store      *storage.Store
	loadResult *storage.LoadResult
	discovery  *discovery.PeerDiscovery

	mesh   *mesh.Store
	router *transport.Router
	dns    *transport.DNSChannel

	// mu guards the registries below. It is never held across I/O.
	mu            sync.Mutex
	profile       models.User
	chats         map[string]models.Chat
	messages      map[string][]models.Message
	contacts      map[string]models.Contact
	networkStatus models.NetworkStatus

	// saveMu orders snapshot-and-write so the newest snapshot lands last.
	saveMu sync.Mutex
}

// New creates a node, restoring saved state when possible. If a state file
// exists but cannot be loaded the node starts with a new identity and empty
// registries; the outcome is available from LoadResult and reported through
// Options.OnStateReset.
func New(options *Options) (*Node, error) {
	if options == nil {
		options = NewOptions()
	}
	if options.TimeProvider == nil {
		options.TimeProvider = RealTimeProvider{}
	}
	if options.Discovery == nil {
		options.Discovery = discovery.New(discovery.DefaultConfig())
	}

	store, err := storage.Open(options.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	metrics, err := mesh.NewMetrics(options.Registerer)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("register mesh metrics: %w", err)
	}

	n := &Node{
		options:       options,
		clock:         options.TimeProvider,
		store:         store,
		discovery:     options.Discovery,
		mesh:          mesh.NewStore(metrics),
		router:        transport.NewRouter(),
		networkStatus: models.NetworkDisconnected,
	}

	result := store.Load()
	state, keys, err := n.restore(result)
	if err != nil {
		store.Close()
		return nil, err
	}
	n.loadResult = result
	n.keys = crypto.NewKeyStore(keys)
	n.profile = state.Profile
	n.chats = state.Chats
	n.messages = state.Messages
	n.contacts = state.Contacts

	if err := n.registerChannels(); err != nil {
		n.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":  "neochat.New",
		"outcome":   result.Outcome.String(),
		"node_hash": keys.NodeHash(),
		"chats":     len(n.chats),
		"contacts":  len(n.contacts),
		"modes":     fmt.Sprint(n.router.Modes()),
	}).Info("Node started")

	if result.Outcome == storage.OutcomeReset {
		// Nothing is written here: the unreadable file stays in place until
		// the first mutation, so restoring the key from its recovery phrase
		// before then still recovers the old identity.
		if options.OnStateReset != nil {
			options.OnStateReset(result)
		}
	}

	return n, nil
}

// restore turns a load result into state and identity. Restored state whose
// identity cannot be rebuilt is downgraded to a reset.
func (n *Node) restore(result *storage.LoadResult) (*models.NodeState, *crypto.IdentityKeys, error) {
	if result.Outcome == storage.OutcomeRestored {
		keys, err := crypto.IdentityFromSecrets(result.State.Identity.SigningSeed, result.State.Identity.EncryptionSecret)
		if err == nil {
			state := result.State
			state.Profile.ID = keys.IDString()
			state.Profile.EncryptionPubkey = keys.EncryptionPubString()
			return state, keys, nil
		}
		result.Outcome = storage.OutcomeReset
		result.Err = fmt.Errorf("%w: %v", storage.ErrSchema, err)
		result.State = nil
		logrus.WithFields(logrus.Fields{
			"function": "neochat.restore",
			"error":    err.Error(),
		}).Warn("Saved identity is unusable; starting from fresh state")
	}

	keys, err := crypto.GenerateIdentity()
	if err != nil {
		return nil, nil, fmt.Errorf("generate identity: %w", err)
	}

	state := models.NewNodeState()
	state.Profile.ID = keys.IDString()
	state.Profile.EncryptionPubkey = keys.EncryptionPubString()

	logrus.WithFields(logrus.Fields{
		"function":  "neochat.restore",
		"outcome":   result.Outcome.String(),
		"node_hash": keys.NodeHash(),
	}).Info("Generated new identity")

	return state, keys, nil
}

func (n *Node) registerChannels() error {
	opts := n.options
	if err := n.router.Register(models.TransportMesh, transport.NewMeshChannel(n.mesh, opts.MeshTTL, n.clock.Now)); err != nil {
		return err
	}
	if opts.Relay != nil {
		if err := n.router.Register(models.TransportCdnRelay, transport.NewRelayChannel(opts.Relay)); err != nil {
			return err
		}
	}
	if opts.DNSResolver != nil {
		n.dns = transport.NewDNSChannel(opts.DNSTunnel, opts.DNSResolver)
		if err := n.router.Register(models.TransportDNSTunnel, n.dns); err != nil {
			return err
		}
	}
	if opts.SmsSender != nil {
		if err := n.router.Register(models.TransportSMS, transport.NewSmsChannel(opts.SmsSender)); err != nil {
			return err
		}
	}
	if opts.Direct != nil {
		if err := n.router.Register(models.TransportDirect, opts.Direct); err != nil {
			return err
		}
	}
	return nil
}

// LoadResult reports how the saved state was loaded at startup.
func (n *Node) LoadResult() *storage.LoadResult {
	return n.loadResult
}

// ID returns the node's base-32 verify key.
func (n *Node) ID() string {
	return n.keys.IDString()
}

// EncryptionPub returns the node's base-32 key-agreement public key.
func (n *Node) EncryptionPub() string {
	return n.keys.EncryptionPubString()
}

// NodeHash returns the routing hash peers use to address this node.
func (n *Node) NodeHash() string {
	return n.keys.NodeHash()
}

// StorageMnemonic returns the recovery phrase of the storage key.
func (n *Node) StorageMnemonic() (string, error) {
	return n.store.Mnemonic()
}

// Mesh returns the node's mesh packet store.
func (n *Node) Mesh() *mesh.Store {
	return n.mesh
}

// Router returns the node's transport router, for registering channels
// after construction.
func (n *Node) Router() *transport.Router {
	return n.router
}

// Close wipes key material. The node must not be used afterwards.
func (n *Node) Close() error {
	if prev := n.keys.Replace(nil); prev != nil {
		prev.Wipe()
	}
	return n.store.Close()
}

// persist writes a snapshot of the current state. The registry lock is
// released before the file is written.
func (n *Node) persist() error {
	n.saveMu.Lock()
	defer n.saveMu.Unlock()

	seed, secret, err := n.keys.Secrets()
	if err != nil {
		return err
	}

	n.mu.Lock()
	state := n.snapshotLocked()
	n.mu.Unlock()

	state.Identity = models.IdentitySecrets{SigningSeed: seed, EncryptionSecret: secret}
	err = n.store.Save(state)
	crypto.ZeroBytes(seed)
	crypto.ZeroBytes(secret)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Node.persist",
			"error":    err.Error(),
		}).Error("Failed to save state")
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// snapshotLocked copies the registries. Message slices are copied because
// statuses are updated in place.
func (n *Node) snapshotLocked() *models.NodeState {
	state := &models.NodeState{
		Profile:  n.profile,
		Chats:    make(map[string]models.Chat, len(n.chats)),
		Messages: make(map[string][]models.Message, len(n.messages)),
		Contacts: make(map[string]models.Contact, len(n.contacts)),
	}
	for id, chat := range n.chats {
		state.Chats[id] = chat
	}
	for id, msgs := range n.messages {
		state.Messages[id] = append([]models.Message(nil), msgs...)
	}
	for id, contact := range n.contacts {
		state.Contacts[id] = contact
	}
	return state
}

func (n *Node) now() uint64 {
	return uint64(n.clock.Now().Unix())
}
