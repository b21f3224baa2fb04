package neochat

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/neochat/discovery"
	"github.com/opd-ai/neochat/models"
)

// Chats returns all chats, most recently active first.
func (n *Node) Chats() []models.Chat {
	n.mu.Lock()
	chats := make([]models.Chat, 0, len(n.chats))
	for _, chat := range n.chats {
		chats = append(chats, chat)
	}
	n.mu.Unlock()

	sort.Slice(chats, func(i, j int) bool {
		ti, tj := lastActivity(chats[i]), lastActivity(chats[j])
		if ti != tj {
			return ti > tj
		}
		return chats[i].ID < chats[j].ID
	})
	return chats
}

// Chat returns one chat.
func (n *Node) Chat(chatID string) (models.Chat, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	chat, ok := n.chats[chatID]
	if !ok {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, nil
}

// CreateChat opens a private chat with participant, or returns the existing
// one. An unknown participant is added as a pending contact.
func (n *Node) CreateChat(participant string) (models.Chat, error) {
	if !discovery.ValidatePubkey(participant) {
		return models.Chat{}, ErrInvalidPubkey
	}

	found := n.lookupPeer(participant)

	n.mu.Lock()
	if chat, ok := n.privateChatLocked(participant); ok {
		n.mu.Unlock()
		return chat, nil
	}
	chat := n.newPrivateChatLocked(participant, found)
	n.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Node.CreateChat",
		"chat_id":  chat.ID,
		"peer":     shortID(participant),
	}).Info("Chat created")

	if err := n.persist(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// CreateGroup creates a group chat with the given members and this node.
func (n *Node) CreateGroup(name string, participants []string) (models.Chat, error) {
	n.mu.Lock()
	members := append(append([]string(nil), participants...), n.profile.ID)
	chat := models.Chat{
		ID:           uuid.NewString(),
		Type:         models.ChatGroup,
		Name:         name,
		Participants: members,
		Transport:    models.TransportDirect,
	}
	n.chats[chat.ID] = chat
	n.mu.Unlock()

	if err := n.persist(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// DeleteChat removes a chat and its messages. Deleting an unknown chat is
// not an error.
func (n *Node) DeleteChat(chatID string) error {
	n.mu.Lock()
	delete(n.chats, chatID)
	delete(n.messages, chatID)
	n.mu.Unlock()

	return n.persist()
}

// SetChatTransport switches the transport used for a chat's messages.
func (n *Node) SetChatTransport(chatID string, mode models.TransportMode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown transport mode %d", uint8(mode))
	}

	n.mu.Lock()
	chat, ok := n.chats[chatID]
	if !ok {
		n.mu.Unlock()
		return ErrChatNotFound
	}
	chat.Transport = mode
	n.chats[chatID] = chat
	n.mu.Unlock()

	return n.persist()
}

func (n *Node) privateChatLocked(participant string) (models.Chat, bool) {
	for _, chat := range n.chats {
		if chat.Type == models.ChatPrivate && chat.HasParticipant(participant) {
			return chat, true
		}
	}
	return models.Chat{}, false
}

// lookupPeer asks discovery for the profile of a participant that is not
// yet a contact. It must be called without n.mu held.
func (n *Node) lookupPeer(participant string) *models.User {
	n.mu.Lock()
	_, known := n.contacts[participant]
	n.mu.Unlock()
	if known {
		return nil
	}
	user, err := n.discovery.FindPeer(participant)
	if err != nil {
		return nil
	}
	return &user
}

// newPrivateChatLocked creates a chat and, if needed, a contact for
// participant. A profile from discovery names both; otherwise the contact
// is pending and offline.
func (n *Node) newPrivateChatLocked(participant string, found *models.User) models.Chat {
	name := "User " + shortID(participant)
	status := models.StatusOffline
	avatar := ""

	if contact, ok := n.contacts[participant]; ok {
		name = contact.Name
	} else if found != nil {
		name, status, avatar = found.Username, found.Status, found.AvatarURL
	}

	chat := models.Chat{
		ID:           uuid.NewString(),
		Type:         models.ChatPrivate,
		Name:         name,
		AvatarURL:    avatar,
		Participants: []string{n.profile.ID, participant},
		Transport:    models.TransportDirect,
	}
	n.chats[chat.ID] = chat

	if _, ok := n.contacts[participant]; !ok {
		n.contacts[participant] = models.Contact{
			ID:        participant,
			Name:      name,
			AvatarURL: avatar,
			Status:    status,
		}
	}
	return chat
}

func lastActivity(chat models.Chat) uint64 {
	if chat.LastMessage == nil {
		return 0
	}
	return chat.LastMessage.Timestamp
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
