// Package relay speaks the HTTP relay contract used by the CdnRelay
// transport. The relay stores opaque envelopes per recipient hash until they
// are polled and acknowledged, and keeps a directory of published profiles.
// It never sees plaintext.
//
// Client is the node side of the contract; Server is a reference relay that
// implements the same routes.
package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/opd-ai/neochat/models"
)

const (
	// MessageTTL is how long a relay keeps an unacknowledged envelope.
	MessageTTL = 7 * 24 * time.Hour
	// MaxPollMessages caps the envelopes returned by one poll.
	MaxPollMessages = 100
	// MinHashLength is the shortest recipient hash a relay accepts.
	MinHashLength = 4
)

var (
	// ErrUserNotFound is returned when the relay has no profile for an ID.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoURL is returned when a client is built without a relay URL.
	ErrNoURL = errors.New("relay url is required")
)

// StatusError reports a non-success HTTP status from the relay.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay error: status %d", e.Code)
}

// Envelope is one relayed message. Payload is the base64 encoded output of
// the envelope codec; the relay treats it as opaque.
type Envelope struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Payload   string `json:"payload"`
	MessageID string `json:"message_id"`
	Timestamp uint64 `json:"timestamp"`
}

// PollResponse is the body of GET /poll/{hash}.
type PollResponse struct {
	Messages []Envelope `json:"messages"`
}

// ProfileUpdate is the body of POST /profile.
type ProfileUpdate struct {
	ID        string            `json:"id"`
	Username  string            `json:"username"`
	Status    models.UserStatus `json:"status"`
	AvatarURL string            `json:"avatar_url,omitempty"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Timestamp int64  `json:"timestamp"`
}

type errorResponse struct {
	Error string `json:"error"`
}
