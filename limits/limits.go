package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxMessageText is the maximum chat message text, in bytes.
	MaxMessageText = 16 * 1024

	// EnvelopeOverhead is what sealing adds to a plaintext: the ephemeral
	// X25519 key (32), the Ed25519 signature (64) and the Poly1305 tag (16).
	EnvelopeOverhead = 32 + 64 + 16

	// MaxFrameSize is the largest inbound frame a node accepts.
	MaxFrameSize = 64 * 1024

	// MaxRequestBody is the largest relay request body.
	MaxRequestBody = 1024 * 1024
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateText checks outgoing message text against MaxMessageText.
func ValidateText(text string) error {
	if len(text) == 0 {
		return ErrMessageEmpty
	}
	if len(text) > MaxMessageText {
		return fmt.Errorf("%w: text size %d exceeds limit %d", ErrMessageTooLarge, len(text), MaxMessageText)
	}
	return nil
}

// ValidateFrame checks an inbound frame against MaxFrameSize. Frames come
// from untrusted peers, so this runs before any decoding.
func ValidateFrame(frame []byte) error {
	if len(frame) == 0 {
		return ErrMessageEmpty
	}
	if len(frame) > MaxFrameSize {
		return fmt.Errorf("%w: frame size %d exceeds limit %d", ErrMessageTooLarge, len(frame), MaxFrameSize)
	}
	return nil
}
