package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/neochat/models"
)

var (
	// ErrUnknownMode is returned for a TransportMode outside the enumeration.
	ErrUnknownMode = errors.New("unknown transport mode")
	// ErrNoChannel is returned when no channel is registered for a mode.
	ErrNoChannel = errors.New("no channel registered for transport mode")
	// ErrEmptyEnvelope is returned when a delivery carries no envelope.
	ErrEmptyEnvelope = errors.New("delivery has no envelope")
)

// Delivery is one envelope addressed to one peer.
type Delivery struct {
	// MessageID identifies the message end to end.
	MessageID string
	// RecipientID is the recipient's base-32 verify key.
	RecipientID string
	// RecipientHash is the recipient's node hash.
	RecipientHash string
	// RecipientPhone is used by the SMS channel only.
	RecipientPhone string
	// SenderHash is the sender's node hash.
	SenderHash string
	// Envelope is the encrypted, signed message.
	Envelope []byte
	// CreatedAt is when the message was produced.
	CreatedAt time.Time
}

// Channel delivers envelopes over one transport.
type Channel interface {
	Deliver(ctx context.Context, d Delivery) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, d Delivery) error

// Deliver calls f.
func (f ChannelFunc) Deliver(ctx context.Context, d Delivery) error {
	return f(ctx, d)
}

// Router dispatches deliveries to the channel registered for a mode.
type Router struct {
	channels map[models.TransportMode]Channel
	mu       sync.RWMutex
}

// NewRouter creates a router with no channels.
func NewRouter() *Router {
	logrus.WithField("function", "NewRouter").Debug("Creating transport router")
	return &Router{channels: make(map[models.TransportMode]Channel)}
}

// Register sets the channel for mode, replacing any earlier registration.
func (r *Router) Register(mode models.TransportMode, ch Channel) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMode, uint8(mode))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Router.Register",
		"mode":     mode.String(),
		"channel":  fmt.Sprintf("%T", ch),
	}).Info("Registering transport channel")

	r.channels[mode] = ch
	return nil
}

// Modes returns the modes that have a channel, in enumeration order.
func (r *Router) Modes() []models.TransportMode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var modes []models.TransportMode
	for _, mode := range models.TransportModes {
		if _, ok := r.channels[mode]; ok {
			modes = append(modes, mode)
		}
	}
	return modes
}

// Dispatch hands d to the channel for mode. Channel errors are returned
// unchanged apart from wrapping; the router never retries.
func (r *Router) Dispatch(ctx context.Context, mode models.TransportMode, d Delivery) error {
	if len(d.Envelope) == 0 {
		return ErrEmptyEnvelope
	}

	ch, err := r.selectChannel(mode)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "Router.Dispatch",
			"mode":       mode.String(),
			"message_id": d.MessageID,
			"error":      err.Error(),
		}).Warn("No channel for transport mode")
		return err
	}

	if err := ch.Deliver(ctx, d); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "Router.Dispatch",
			"mode":       mode.String(),
			"message_id": d.MessageID,
			"error":      err.Error(),
		}).Warn("Delivery failed")
		return fmt.Errorf("%s delivery: %w", mode, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":       "Router.Dispatch",
		"mode":           mode.String(),
		"message_id":     d.MessageID,
		"recipient_hash": d.RecipientHash,
		"bytes":          len(d.Envelope),
	}).Debug("Envelope dispatched")
	return nil
}

// selectChannel is the single point where a mode becomes a channel. Every
// mode of the enumeration is listed; adding a mode means adding a case.
func (r *Router) selectChannel(mode models.TransportMode) (Channel, error) {
	switch mode {
	case models.TransportDirect,
		models.TransportCdnRelay,
		models.TransportMesh,
		models.TransportDNSTunnel,
		models.TransportSMS:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, uint8(mode))
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoChannel, mode)
	}
	return ch, nil
}
