package storage

import "errors"

var (
	// ErrNotFound indicates that no state file exists yet.
	ErrNotFound = errors.New("storage: no saved state")
	// ErrKeyFile indicates an unreadable or malformed key file.
	ErrKeyFile = errors.New("storage: invalid key file")
	// ErrDecode indicates the file is not valid base-32 or is truncated.
	ErrDecode = errors.New("storage: invalid encoding")
	// ErrAuth indicates AEAD authentication failed: wrong key or tampering.
	ErrAuth = errors.New("storage: authentication failed")
	// ErrSchema indicates the decrypted payload is not a valid node state.
	ErrSchema = errors.New("storage: malformed state")
)
