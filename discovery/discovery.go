// Package discovery resolves peer public keys to profiles. Lookup is not
// implemented yet: FindPeer reports every key as unknown, and callers fall
// back to a pending contact.
package discovery

import (
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/neochat/models"
)

// MinPubkeyLength is the shortest string accepted as a peer key.
const MinPubkeyLength = 4

// ErrPeerNotFound is returned when no profile is known for a key.
var ErrPeerNotFound = errors.New("peer not found")

// Config configures peer discovery.
type Config struct {
	BootstrapNodes []string
	Timeout        time.Duration
}

// DefaultConfig returns a config with no bootstrap nodes and a 10 second
// timeout.
func DefaultConfig() Config {
	return Config{Timeout: 10 * time.Second}
}

// PeerDiscovery looks up peer profiles.
type PeerDiscovery struct {
	config Config
}

// New creates a discovery service.
func New(config Config) *PeerDiscovery {
	return &PeerDiscovery{config: config}
}

// FindPeer looks up the profile published for pubkey.
func (d *PeerDiscovery) FindPeer(pubkey string) (models.User, error) {
	logrus.WithFields(logrus.Fields{
		"function":   "PeerDiscovery.FindPeer",
		"pubkey":     prefix(pubkey),
		"bootstraps": len(d.config.BootstrapNodes),
	}).Debug("Peer lookup has no backing network")
	return models.User{}, ErrPeerNotFound
}

// ValidatePubkey reports whether pubkey is plausible as a peer key.
func ValidatePubkey(pubkey string) bool {
	return len(strings.TrimSpace(pubkey)) >= MinPubkeyLength
}

func prefix(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
