package neochat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/neochat/crypto"
	"github.com/opd-ai/neochat/limits"
	"github.com/opd-ai/neochat/mesh"
	"github.com/opd-ai/neochat/models"
	"github.com/opd-ai/neochat/transport"
)

// Messages returns up to limit messages of a chat starting at offset, oldest
// first. An unknown chat or an offset past the end yields nothing.
func (n *Node) Messages(chatID string, limit, offset int) []models.Message {
	n.mu.Lock()
	defer n.mu.Unlock()

	msgs := n.messages[chatID]
	if offset < 0 || limit <= 0 || offset >= len(msgs) {
		return []models.Message{}
	}
	end := offset + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	return append([]models.Message(nil), msgs[offset:end]...)
}

// SendMessage records a message in a chat and, for every participant whose
// encryption key is known, seals it and hands it to the chat's transport.
// The message is stored before any delivery is attempted. A delivery
// failure marks it failed; a transport with no registered channel leaves it
// queued in its initial state.
func (n *Node) SendMessage(ctx context.Context, chatID, text string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if err := limits.ValidateText(text); err != nil {
		return models.Message{}, err
	}

	n.mu.Lock()
	chat, ok := n.chats[chatID]
	if !ok {
		n.mu.Unlock()
		return models.Message{}, ErrChatNotFound
	}

	status := models.MessageSent
	if chat.Transport == models.TransportDirect {
		status = models.MessageSending
	}
	msg := models.Message{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		SenderID:    n.profile.ID,
		Text:        text,
		Timestamp:   n.now(),
		Status:      status,
		Attachments: []string{},
		Transport:   chat.Transport,
	}
	n.messages[chatID] = append(n.messages[chatID], msg)
	chat.LastMessage = &models.ChatLastMessage{Text: text, Timestamp: msg.Timestamp, SenderID: msg.SenderID}
	n.chats[chatID] = chat
	n.mu.Unlock()

	if err := n.persist(); err != nil {
		return models.Message{}, err
	}

	if err := n.deliver(ctx, chat, msg); err != nil {
		msg.Status = models.MessageFailed
		n.setMessageStatus(chatID, msg.ID, models.MessageFailed)
		if perr := n.persist(); perr != nil {
			return msg, perr
		}
		return msg, err
	}
	return msg, nil
}

// deliver seals msg for each remote participant and dispatches it.
func (n *Node) deliver(ctx context.Context, chat models.Chat, msg models.Message) error {
	body := chatMessage{
		ID:        msg.ID,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
		Transport: msg.Transport,
	}
	if chat.Type == models.ChatGroup {
		body.ChatID = chat.ID
	}
	plaintext, err := encodeChatMessage(body)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	myID := n.ID()
	for _, participant := range chat.Participants {
		if participant == myID {
			continue
		}

		n.mu.Lock()
		contact, known := n.contacts[participant]
		n.mu.Unlock()
		if !known || contact.EncryptionPubkey == "" {
			logrus.WithFields(logrus.Fields{
				"function":   "Node.deliver",
				"message_id": msg.ID,
				"peer":       shortID(participant),
			}).Debug("No encryption key for participant; message kept locally")
			continue
		}

		peer, err := crypto.ParsePeerIdentity(participant, contact.EncryptionPubkey)
		if err != nil {
			return fmt.Errorf("participant %s: %w", shortID(participant), err)
		}
		envelope, err := n.keys.Seal(peer, plaintext)
		if err != nil {
			return fmt.Errorf("seal message: %w", err)
		}
		data, err := encodeFrame(frame{From: myID, Envelope: envelope})
		if err != nil {
			return fmt.Errorf("encode frame: %w", err)
		}

		deliveryID := msg.ID
		if chat.Type == models.ChatGroup {
			deliveryID = msg.ID + "-" + peer.NodeHash()
		}
		err = n.router.Dispatch(ctx, chat.Transport, transport.Delivery{
			MessageID:      deliveryID,
			RecipientID:    participant,
			RecipientHash:  peer.NodeHash(),
			RecipientPhone: contact.PhoneNumber,
			SenderHash:     n.NodeHash(),
			Envelope:       data,
			CreatedAt:      n.clock.Now(),
		})
		if errors.Is(err, transport.ErrNoChannel) {
			logrus.WithFields(logrus.Fields{
				"function":   "Node.deliver",
				"message_id": msg.ID,
				"mode":       chat.Transport.String(),
			}).Debug("Transport not available; message queued")
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ReceiveEnvelope authenticates, decrypts and records a message produced by
// a peer's SendMessage. Crypto failures are returned unchanged so callers
// can tell them apart with errors.Is. A message already recorded is
// returned again without being duplicated.
func (n *Node) ReceiveEnvelope(data []byte) (models.Message, error) {
	if err := limits.ValidateFrame(data); err != nil {
		return models.Message{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	f, err := decodeFrame(data)
	if err != nil {
		return models.Message{}, err
	}
	verifyKey, err := crypto.ParseVerifyKey(f.From)
	if err != nil {
		return models.Message{}, fmt.Errorf("sender id: %w", err)
	}
	plaintext, err := n.keys.Open(verifyKey, f.Envelope)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Node.ReceiveEnvelope",
			"sender":   shortID(f.From),
			"error":    err.Error(),
		}).Warn("Rejected inbound envelope")
		return models.Message{}, err
	}
	body, err := decodeChatMessage(plaintext)
	crypto.ZeroBytes(plaintext)
	if err != nil {
		return models.Message{}, err
	}

	found := n.lookupPeer(f.From)

	n.mu.Lock()
	chat := n.inboundChatLocked(f.From, body.ChatID, found)
	for _, existing := range n.messages[chat.ID] {
		if existing.ID == body.ID {
			n.mu.Unlock()
			return existing, nil
		}
	}

	msg := models.Message{
		ID:          body.ID,
		ChatID:      chat.ID,
		SenderID:    f.From,
		Text:        body.Text,
		Timestamp:   body.Timestamp,
		Status:      models.MessageDelivered,
		Attachments: []string{},
		Transport:   body.Transport,
	}
	n.messages[chat.ID] = append(n.messages[chat.ID], msg)
	chat.LastMessage = &models.ChatLastMessage{Text: msg.Text, Timestamp: msg.Timestamp, SenderID: msg.SenderID}
	chat.UnreadCount++
	n.chats[chat.ID] = chat
	n.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "Node.ReceiveEnvelope",
		"chat_id":    chat.ID,
		"message_id": msg.ID,
		"sender":     shortID(f.From),
	}).Info("Message received")

	if err := n.persist(); err != nil {
		return msg, err
	}
	return msg, nil
}

// inboundChatLocked picks the chat for an inbound message: the named group
// when the sender belongs to it, otherwise the private chat with the sender,
// created on first contact.
func (n *Node) inboundChatLocked(sender, groupID string, found *models.User) models.Chat {
	if groupID != "" {
		if chat, ok := n.chats[groupID]; ok && chat.Type == models.ChatGroup && chat.HasParticipant(sender) {
			return chat
		}
	}
	if chat, ok := n.privateChatLocked(sender); ok {
		return chat
	}
	return n.newPrivateChatLocked(sender, found)
}

// MarkAsRead sets the given messages of a chat to read and clears the
// chat's unread count.
func (n *Node) MarkAsRead(chatID string, messageIDs []string) error {
	ids := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		ids[id] = struct{}{}
	}

	n.mu.Lock()
	msgs := n.messages[chatID]
	for i := range msgs {
		if _, ok := ids[msgs[i].ID]; ok {
			msgs[i].Status = models.MessageRead
		}
	}
	if chat, ok := n.chats[chatID]; ok {
		chat.UnreadCount = 0
		n.chats[chatID] = chat
	}
	n.mu.Unlock()

	return n.persist()
}

func (n *Node) setMessageStatus(chatID, messageID string, status models.MessageStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	msgs := n.messages[chatID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].Status = status
			return
		}
	}
}

// SyncMesh runs one anti-entropy exchange with a nearby peer and then
// delivers any packets addressed to this node. It returns the packets to
// send back and the messages received.
func (n *Node) SyncMesh(peerHash string, peerSeen []string, incoming []mesh.Packet) ([]mesh.Packet, mesh.SyncResult, []models.Message) {
	outgoing, result := n.mesh.Sync(n.NodeHash(), peerHash, peerSeen, incoming, n.clock.Now())
	return outgoing, result, n.CollectMeshPackets()
}

// CollectMeshPackets removes the packets addressed to this node from the
// mesh store and receives them. Packets that fail to open are dropped.
func (n *Node) CollectMeshPackets() []models.Message {
	var received []models.Message
	for _, packet := range n.mesh.ExtractMyPackets(n.NodeHash()) {
		msg, err := n.ReceiveEnvelope(packet.EncryptedPayload)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "Node.CollectMeshPackets",
				"message_id": packet.MessageID,
				"error":      err.Error(),
			}).Warn("Dropped undeliverable mesh packet")
			continue
		}
		received = append(received, msg)
	}
	return received
}

// MeshBeacon returns this node's mesh advertisement.
func (n *Node) MeshBeacon() mesh.Beacon {
	return n.mesh.Beacon(n.NodeHash())
}

// PollRelay fetches envelopes queued at the relay, receives them and
// acknowledges each one. Envelopes that cannot be opened are acknowledged
// too, so they do not occupy the poll window until they expire.
func (n *Node) PollRelay(ctx context.Context) ([]models.Message, error) {
	client := n.options.Relay
	if client == nil {
		return nil, ErrNoRelay
	}

	hash := n.NodeHash()
	envelopes, err := client.Poll(ctx, hash)
	if err != nil {
		return nil, err
	}

	var received []models.Message
	for _, env := range envelopes {
		data, err := base64.StdEncoding.DecodeString(env.Payload)
		if err == nil {
			var msg models.Message
			msg, err = n.ReceiveEnvelope(data)
			if err == nil {
				received = append(received, msg)
			}
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "Node.PollRelay",
				"message_id": env.MessageID,
				"from":       env.From,
				"error":      err.Error(),
			}).Warn("Discarding undeliverable relay envelope")
		}
		if err := client.Ack(ctx, hash, env.MessageID); err != nil {
			return received, err
		}
	}
	return received, nil
}

// PollDNS asks the DNS tunnel for a queued message. It reports false when
// nothing was waiting.
func (n *Node) PollDNS(ctx context.Context) (models.Message, bool, error) {
	if n.dns == nil {
		return models.Message{}, false, ErrNoDNSTunnel
	}
	data, ok, err := n.dns.Poll(ctx, n.NodeHash())
	if err != nil || !ok {
		return models.Message{}, false, err
	}
	msg, err := n.ReceiveEnvelope(data)
	if err != nil {
		return models.Message{}, false, err
	}
	return msg, true, nil
}
