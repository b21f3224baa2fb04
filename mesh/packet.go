// Package mesh implements the store-and-forward packet cache used on
// intermittent device-to-device links (BLE, Wi-Fi Direct).
//
// Packets carry opaque envelopes; the store never inspects payloads. Each
// node keeps the packets it is carrying, a bounded memory of message IDs it
// has already seen, and reconciles with any peer it meets by exchanging the
// packets the other side has not seen (anti-entropy sync).
package mesh

import (
	"time"

	"github.com/google/uuid"
)

const (
	// MaxTTL is the hop budget of a newly created packet.
	MaxTTL uint8 = 20
	// MaxAge is how long a packet is carried before it is garbage-collected.
	MaxAge = 7 * 24 * time.Hour
	// MaxStoreBytes caps the total payload bytes held by a store.
	MaxStoreBytes = 50 * 1024 * 1024
	// MaxSeenIDs caps the dedup memory.
	MaxSeenIDs = 10000
)

// Packet is one relayed envelope.
type Packet struct {
	// MessageID deduplicates the packet across the mesh.
	MessageID string `msgpack:"message_id" json:"message_id"`
	// RecipientHash is the truncated hash of the recipient's key.
	RecipientHash string `msgpack:"recipient_hash" json:"recipient_hash"`
	// EncryptedPayload is opaque to every node but the recipient.
	EncryptedPayload []byte `msgpack:"encrypted_payload" json:"encrypted_payload"`
	// TTL is the remaining hop budget.
	TTL uint8 `msgpack:"ttl" json:"ttl"`
	// CreatedAt is the creation time in Unix seconds.
	CreatedAt uint64 `msgpack:"created_at" json:"created_at"`
}

// NewPacket creates a packet with a fresh message ID and the full hop budget.
func NewPacket(recipientHash string, payload []byte, now time.Time) Packet {
	return Packet{
		MessageID:        uuid.NewString(),
		RecipientHash:    recipientHash,
		EncryptedPayload: payload,
		TTL:              MaxTTL,
		CreatedAt:        unixSeconds(now),
	}
}

// IsExpired reports whether the packet is older than MaxAge at now.
func (p *Packet) IsExpired(now time.Time) bool {
	created := p.CreatedAt
	current := unixSeconds(now)
	if current <= created {
		return false
	}
	return current-created > uint64(MaxAge/time.Second)
}

// IsAlive reports whether the packet has hops left.
func (p *Packet) IsAlive() bool {
	return p.TTL > 0
}

// Forward spends one hop. It saturates at zero.
func (p *Packet) Forward() {
	if p.TTL > 0 {
		p.TTL--
	}
}

func (p Packet) clone() Packet {
	p.EncryptedPayload = append([]byte(nil), p.EncryptedPayload...)
	return p
}

func unixSeconds(t time.Time) uint64 {
	s := t.Unix()
	if s < 0 {
		return 0
	}
	return uint64(s)
}
