package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/neochat/crypto"
	"github.com/opd-ai/neochat/models"
)

// Outcome classifies the result of Store.Load.
type Outcome int

const (
	// OutcomeRestored means the saved state was decrypted and decoded.
	OutcomeRestored Outcome = iota
	// OutcomeFresh means no state file existed.
	OutcomeFresh
	// OutcomeReset means a state file existed but could not be loaded and the
	// caller must start over with a new identity.
	OutcomeReset
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRestored:
		return "restored"
	case OutcomeFresh:
		return "fresh"
	case OutcomeReset:
		return "reset"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// LoadResult is returned by Store.Load. State is non-nil only for
// OutcomeRestored; Err carries the cause of a reset.
type LoadResult struct {
	Outcome    Outcome
	State      *models.NodeState
	Err        error
	KeyCreated bool
}

// Store reads and writes one state file and its sibling key file.
type Store struct {
	mu         sync.Mutex
	path       string
	keyPath    string
	key        [KeySize]byte
	keyCreated bool
	// unreadable is set when Load resets over an existing file. The next
	// Save moves that file aside instead of overwriting it.
	unreadable bool
}

// Open prepares a store for the state file at path, creating its directory
// and key file as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	keyPath := KeyPath(path)
	key, created, err := LoadOrCreateKey(keyPath)
	if err != nil {
		return nil, err
	}

	if created {
		logrus.WithFields(logrus.Fields{
			"function": "storage.Open",
			"key_path": keyPath,
		}).Info("Generated new storage key")
	}

	return &Store{path: path, keyPath: keyPath, key: key, keyCreated: created}, nil
}

// Path returns the state file path.
func (s *Store) Path() string { return s.path }

// KeyPath returns the key file path.
func (s *Store) KeyPath() string { return s.keyPath }

// Mnemonic returns the BIP-39 recovery phrase of the storage key.
func (s *Store) Mnemonic() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return KeyMnemonic(s.key)
}

// Save encrypts state and atomically replaces the state file. Callers pass a
// snapshot; Save holds only the store's file lock.
func (s *Store) Save(state *models.NodeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	text, err := Encode(state, s.key)
	if err != nil {
		return err
	}
	if s.unreadable {
		if err := s.preserveLocked(); err != nil {
			return err
		}
	}
	if err := writeFileAtomic(s.path, text); err != nil {
		return fmt.Errorf("write state: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "storage.Save",
		"path":     s.path,
		"bytes":    len(text),
	}).Debug("State saved")
	return nil
}

// Load reads the state file. It never returns an error: failures are folded
// into OutcomeReset so that startup can always proceed.
func (s *Store) Load() *LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &LoadResult{KeyCreated: s.keyCreated}

	text, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		result.Outcome = OutcomeFresh
		result.Err = ErrNotFound
		return result
	}
	if err == nil {
		result.State, err = Decode(text, s.key)
	}
	if err != nil {
		result.Outcome = OutcomeReset
		result.State = nil
		result.Err = err
		s.unreadable = true
		logrus.WithFields(logrus.Fields{
			"function":    "storage.Load",
			"path":        s.path,
			"key_created": s.keyCreated,
			"error":       err.Error(),
		}).Warn("Saved state could not be loaded; starting from fresh state")
		return result
	}

	result.Outcome = OutcomeRestored
	return result
}

// preserveLocked renames the state file that could not be loaded to
// ResetPath so a later recovery of the key can still open it.
func (s *Store) preserveLocked() error {
	backup := ResetPath(s.path, time.Now())
	if err := os.Rename(s.path, backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("preserve unreadable state: %w", err)
	}
	s.unreadable = false

	logrus.WithFields(logrus.Fields{
		"function": "storage.Save",
		"path":     s.path,
		"backup":   backup,
	}).Warn("Moved unreadable state file aside")
	return nil
}

// ResetPath names the copy of an unreadable state file kept when it is
// replaced at t.
func ResetPath(statePath string, t time.Time) string {
	return fmt.Sprintf("%s.reset-%d", statePath, t.Unix())
}

// Close wipes the key from memory.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	crypto.ZeroBytes(s.key[:])
	return nil
}

// writeFileAtomic writes via a temporary file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
