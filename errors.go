package neochat

import "errors"

var (
	// ErrEmptyUsername is returned by Register for a blank name.
	ErrEmptyUsername = errors.New("username cannot be empty")
	// ErrInvalidPubkey is returned for a peer key that cannot be a key.
	ErrInvalidPubkey = errors.New("invalid public key format")
	// ErrChatNotFound is returned for an unknown chat ID.
	ErrChatNotFound = errors.New("chat not found")
	// ErrContactNotFound is returned for an unknown contact ID.
	ErrContactNotFound = errors.New("contact not found")
	// ErrEmptyMessage is returned by SendMessage for blank text.
	ErrEmptyMessage = errors.New("empty message")
	// ErrMalformedFrame is returned for inbound data that is not a frame.
	ErrMalformedFrame = errors.New("malformed message frame")
	// ErrNoRelay is returned by relay operations on a node without a relay.
	ErrNoRelay = errors.New("no relay configured")
	// ErrNoDNSTunnel is returned by tunnel operations on a node without one.
	ErrNoDNSTunnel = errors.New("no dns tunnel configured")
)
