package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/neochat/dnstunnel"
	"github.com/opd-ai/neochat/mesh"
	"github.com/opd-ai/neochat/relay"
)

var (
	// ErrPacketRejected is returned when the mesh store refuses a new packet.
	ErrPacketRejected = errors.New("mesh store rejected packet")
	// ErrNoPhone is returned by the SMS channel for a recipient without a
	// phone number.
	ErrNoPhone = errors.New("recipient has no phone number")
)

// MeshChannel queues envelopes in a mesh store.
type MeshChannel struct {
	store *mesh.Store
	ttl   uint8
	now   func() time.Time
}

// NewMeshChannel creates a channel over store. New packets get ttl hops;
// zero or anything above mesh.MaxTTL means mesh.MaxTTL. now may be nil.
func NewMeshChannel(store *mesh.Store, ttl uint8, now func() time.Time) *MeshChannel {
	if ttl == 0 || ttl > mesh.MaxTTL {
		ttl = mesh.MaxTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MeshChannel{store: store, ttl: ttl, now: now}
}

// Deliver admits the envelope as a fresh packet. A packet already carried is
// not an error.
func (c *MeshChannel) Deliver(_ context.Context, d Delivery) error {
	now := c.now()
	packet := mesh.NewPacket(d.RecipientHash, d.Envelope, now)
	packet.TTL = c.ttl
	if d.MessageID != "" {
		packet.MessageID = d.MessageID
	}

	switch outcome := c.store.Admit(packet, now); outcome {
	case mesh.Admitted, mesh.Duplicate:
		logrus.WithFields(logrus.Fields{
			"function":       "MeshChannel.Deliver",
			"message_id":     packet.MessageID,
			"recipient_hash": packet.RecipientHash,
			"outcome":        outcome.String(),
		}).Debug("Envelope queued for mesh sync")
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrPacketRejected, outcome)
	}
}

// RelaySender is the part of relay.Client the relay channel uses.
type RelaySender interface {
	Send(ctx context.Context, env relay.Envelope) error
}

// RelayChannel posts envelopes to an HTTP relay.
type RelayChannel struct {
	client RelaySender
}

// NewRelayChannel creates a channel over client.
func NewRelayChannel(client RelaySender) *RelayChannel {
	return &RelayChannel{client: client}
}

// Deliver posts the envelope, base64 encoded, addressed to the recipient's
// node hash.
func (c *RelayChannel) Deliver(ctx context.Context, d Delivery) error {
	var ts uint64
	if unix := d.CreatedAt.Unix(); !d.CreatedAt.IsZero() && unix > 0 {
		ts = uint64(unix)
	}
	return c.client.Send(ctx, relay.Envelope{
		From:      d.SenderHash,
		To:        d.RecipientHash,
		Payload:   base64.StdEncoding.EncodeToString(d.Envelope),
		MessageID: d.MessageID,
		Timestamp: ts,
	})
}

// TXTResolver performs TXT lookups. *net.Resolver satisfies it.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// NewResolver returns a resolver that sends queries to addr, or the system
// resolver when addr is empty.
func NewResolver(addr string) *net.Resolver {
	if addr == "" {
		return net.DefaultResolver
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}
}

// DNSChannel sends envelopes through a DNS tunnel responder.
type DNSChannel struct {
	config   dnstunnel.Config
	resolver TXTResolver
}

// NewDNSChannel creates a tunnel channel. An empty base domain falls back to
// dnstunnel.DefaultBaseDomain.
func NewDNSChannel(config dnstunnel.Config, resolver TXTResolver) *DNSChannel {
	if config.BaseDomain == "" {
		config.BaseDomain = dnstunnel.DefaultBaseDomain
	}
	return &DNSChannel{config: config, resolver: resolver}
}

// Deliver issues one lookup per query name, in order. The answers carry
// nothing for uploads and are ignored.
func (c *DNSChannel) Deliver(ctx context.Context, d Delivery) error {
	names := dnstunnel.EncodeMessageAsDNS(d.Envelope, d.RecipientHash, d.MessageID, c.config.BaseDomain)
	for i, name := range names {
		if _, err := c.resolver.LookupTXT(ctx, name); err != nil {
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
				continue
			}
			return fmt.Errorf("dns chunk %d/%d: %w", i+1, len(names), err)
		}
	}
	return nil
}

// Poll asks the responder for data queued for myHash. It reports false when
// nothing decodable came back.
func (c *DNSChannel) Poll(ctx context.Context, myHash string) ([]byte, bool, error) {
	records, err := c.resolver.LookupTXT(ctx, dnstunnel.EncodePollAsDNS(myHash, c.config.BaseDomain))
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("dns poll: %w", err)
	}
	data, ok := dnstunnel.DecodeDNSResponse(records)
	return data, ok, nil
}

// SmsEnvelope is the payload handed to an SMS gateway.
type SmsEnvelope struct {
	ID               string `json:"id"`
	RecipientPhone   string `json:"recipient_phone"`
	EncryptedPayload string `json:"encrypted_payload"`
}

// SmsSender sends an SMS envelope. Implementations are platform specific.
type SmsSender interface {
	SendSms(ctx context.Context, env SmsEnvelope) error
}

// SmsChannel delivers envelopes as SMS payloads.
type SmsChannel struct {
	sender SmsSender
}

// NewSmsChannel creates a channel over sender.
func NewSmsChannel(sender SmsSender) *SmsChannel {
	return &SmsChannel{sender: sender}
}

// Deliver wraps the envelope for the recipient's phone number.
func (c *SmsChannel) Deliver(ctx context.Context, d Delivery) error {
	if d.RecipientPhone == "" {
		return ErrNoPhone
	}
	return c.sender.SendSms(ctx, SmsEnvelope{
		ID:               d.MessageID,
		RecipientPhone:   d.RecipientPhone,
		EncryptedPayload: base64.StdEncoding.EncodeToString(d.Envelope),
	})
}
