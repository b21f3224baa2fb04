// Package models defines the node-state records that neochat persists: the
// local profile, contacts, chats and messages, plus the identity secrets that
// are stored alongside them.
package models

// UserStatus is the presence of a user or contact.
type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
	StatusTyping  UserStatus = "typing"
)

// ChatType distinguishes one-to-one chats from groups.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

// MessageStatus tracks delivery of a single message.
type MessageStatus string

const (
	MessageSending    MessageStatus = "sending"
	MessageSent       MessageStatus = "sent"
	MessageDelivered  MessageStatus = "delivered"
	MessageRead       MessageStatus = "read"
	MessageFailed     MessageStatus = "failed"
	MessagePendingSms MessageStatus = "pendingsms"
)

// NetworkStatus is the node's view of its own connectivity.
type NetworkStatus string

const (
	NetworkConnected    NetworkStatus = "connected"
	NetworkDisconnected NetworkStatus = "disconnected"
	NetworkConnecting   NetworkStatus = "connecting"
)

// User is the local profile, or a profile published to a relay.
type User struct {
	ID               string     `json:"id" msgpack:"id"`
	Username         string     `json:"username" msgpack:"username"`
	Status           UserStatus `json:"status" msgpack:"status"`
	LastSeen         uint64     `json:"last_seen" msgpack:"last_seen"`
	AvatarURL        string     `json:"avatar_url,omitempty" msgpack:"avatar_url"`
	EncryptionPubkey string     `json:"encryption_pubkey,omitempty" msgpack:"encryption_pubkey"`
	IsRegistered     bool       `json:"is_registered" msgpack:"is_registered"`
}

// Contact is a known peer. ID is the peer's base-32 signing key.
type Contact struct {
	ID               string     `json:"id" msgpack:"id"`
	Name             string     `json:"name" msgpack:"name"`
	AvatarURL        string     `json:"avatar_url,omitempty" msgpack:"avatar_url"`
	Status           UserStatus `json:"status" msgpack:"status"`
	EncryptionPubkey string     `json:"encryption_pubkey,omitempty" msgpack:"encryption_pubkey"`
	PhoneNumber      string     `json:"phone_number,omitempty" msgpack:"phone_number"`
}

// ChatLastMessage is the preview shown in a chat list.
type ChatLastMessage struct {
	Text      string `json:"text" msgpack:"text"`
	Timestamp uint64 `json:"timestamp" msgpack:"timestamp"`
	SenderID  string `json:"sender_id" msgpack:"sender_id"`
}

// Chat is a conversation and the transport its messages use.
type Chat struct {
	ID           string           `json:"id" msgpack:"id"`
	Type         ChatType         `json:"chat_type" msgpack:"chat_type"`
	Name         string           `json:"name" msgpack:"name"`
	AvatarURL    string           `json:"avatar_url,omitempty" msgpack:"avatar_url"`
	UnreadCount  uint32           `json:"unread_count" msgpack:"unread_count"`
	LastMessage  *ChatLastMessage `json:"last_message,omitempty" msgpack:"last_message"`
	Participants []string         `json:"participants" msgpack:"participants"`
	Transport    TransportMode    `json:"transport" msgpack:"transport"`
}

// HasParticipant reports whether id takes part in the chat.
func (c *Chat) HasParticipant(id string) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// Message is a decrypted chat message as stored locally.
type Message struct {
	ID          string        `json:"id" msgpack:"id"`
	ChatID      string        `json:"chat_id" msgpack:"chat_id"`
	SenderID    string        `json:"sender_id" msgpack:"sender_id"`
	Text        string        `json:"text" msgpack:"text"`
	Timestamp   uint64        `json:"timestamp" msgpack:"timestamp"`
	Status      MessageStatus `json:"status" msgpack:"status"`
	Attachments []string      `json:"attachments" msgpack:"attachments"`
	Transport   TransportMode `json:"transport" msgpack:"transport"`
}

// IdentitySecrets is the private key material persisted with the node state.
type IdentitySecrets struct {
	SigningSeed      []byte `msgpack:"signing_seed"`
	EncryptionSecret []byte `msgpack:"encryption_secret"`
}

// NodeState is the complete local state written by the storage codec. It is
// replaced wholesale on every save.
type NodeState struct {
	Profile  User                 `msgpack:"user"`
	Chats    map[string]Chat      `msgpack:"chats"`
	Messages map[string][]Message `msgpack:"messages"`
	Contacts map[string]Contact   `msgpack:"contacts"`
	Identity IdentitySecrets      `msgpack:"identity"`
}

// NewNodeState returns an empty state with a default, unregistered profile.
func NewNodeState() *NodeState {
	return &NodeState{
		Profile: User{
			Username: DefaultUsername,
			Status:   StatusOffline,
		},
		Chats:    make(map[string]Chat),
		Messages: make(map[string][]Message),
		Contacts: make(map[string]Contact),
	}
}

// DefaultUsername is the profile name before registration.
const DefaultUsername = "New User"
