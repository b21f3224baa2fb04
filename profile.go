package neochat

import (
	"context"
	"strings"

	"github.com/opd-ai/neochat/models"
)

// Register sets the profile name and marks the profile registered and online.
func (n *Node) Register(username string) (models.User, error) {
	if strings.TrimSpace(username) == "" {
		return models.User{}, ErrEmptyUsername
	}

	n.mu.Lock()
	n.profile.Username = username
	n.profile.Status = models.StatusOnline
	n.profile.LastSeen = n.now()
	n.profile.IsRegistered = true
	profile := n.profile
	n.mu.Unlock()

	if err := n.persist(); err != nil {
		return models.User{}, err
	}
	return profile, nil
}

// Profile returns the local profile.
func (n *Node) Profile() models.User {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.profile
}

// UpdateProfile changes the display name and avatar.
func (n *Node) UpdateProfile(name, avatarURL string) error {
	n.mu.Lock()
	n.profile.Username = name
	n.profile.AvatarURL = avatarURL
	n.mu.Unlock()

	return n.persist()
}

// PublishProfile pushes the local profile to the relay.
func (n *Node) PublishProfile(ctx context.Context) error {
	if n.options.Relay == nil {
		return ErrNoRelay
	}
	return n.options.Relay.UpdateProfile(ctx, n.Profile())
}

// ClearDatabase drops every chat, message and contact and returns the
// profile to its unregistered defaults. The identity is kept.
func (n *Node) ClearDatabase() error {
	n.mu.Lock()
	n.chats = make(map[string]models.Chat)
	n.messages = make(map[string][]models.Message)
	n.contacts = make(map[string]models.Contact)
	n.profile = models.User{
		ID:               n.profile.ID,
		Username:         models.DefaultUsername,
		Status:           models.StatusOffline,
		EncryptionPubkey: n.profile.EncryptionPubkey,
	}
	n.mu.Unlock()

	return n.persist()
}
