package dnstunnel

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MaxPendingMessages caps the incomplete messages a Reassembler holds.
const MaxPendingMessages = 1024

var (
	// ErrTotalMismatch is returned when chunks of one message disagree on
	// the chunk count.
	ErrTotalMismatch = errors.New("chunk total does not match earlier chunks")
	// ErrReassemblerFull is returned for the first chunk of a new message
	// while MaxPendingMessages messages are incomplete.
	ErrReassemblerFull = errors.New("too many incomplete tunnel messages")
)

type messageKey struct {
	recipient string
	shortID   string
}

type partial struct {
	total     int
	fragments map[int]string
	firstSeen time.Time
}

// Reassembler collects message chunks arriving in any order and yields the
// ciphertext once every chunk of a message is present. It is safe for
// concurrent use.
type Reassembler struct {
	mu      sync.Mutex
	pending map[messageKey]*partial
}

// NewReassembler creates an empty reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{pending: make(map[messageKey]*partial)}
}

// Add records a chunk. When it completes its message the ciphertext is
// returned with true and the partial state is discarded. A repeated chunk
// keeps the fragment that arrived first. Chunks outside the grammar's
// bounds (see ParseQueryName) are rejected.
func (r *Reassembler) Add(chunk Chunk, now time.Time) ([]byte, bool, error) {
	if chunk.Total < 1 || chunk.Total > MaxChunks || chunk.Seq < 1 || chunk.Seq > chunk.Total {
		return nil, false, fmt.Errorf("%w: sequence %d of %d", ErrMalformedName, chunk.Seq, chunk.Total)
	}
	if len(chunk.Fragment) == 0 || len(chunk.Fragment) > FragmentSize {
		return nil, false, fmt.Errorf("%w: fragment length %d", ErrMalformedName, len(chunk.Fragment))
	}
	key := messageKey{recipient: chunk.RecipientHash, shortID: chunk.ShortID}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[key]
	if !ok {
		if len(r.pending) >= MaxPendingMessages {
			return nil, false, ErrReassemblerFull
		}
		p = &partial{total: chunk.Total, fragments: make(map[int]string), firstSeen: now}
		r.pending[key] = p
	}
	if p.total != chunk.Total {
		return nil, false, fmt.Errorf("%w: %d vs %d", ErrTotalMismatch, chunk.Total, p.total)
	}
	if _, dup := p.fragments[chunk.Seq]; dup {
		return nil, false, nil
	}
	p.fragments[chunk.Seq] = chunk.Fragment
	if len(p.fragments) < p.total {
		return nil, false, nil
	}

	delete(r.pending, key)

	ordered := make([]string, p.total)
	for seq, fragment := range p.fragments {
		ordered[seq-1] = fragment
	}
	data, ok := DecodeDNSResponse(ordered)
	if !ok {
		return nil, false, fmt.Errorf("%w: fragments do not decode", ErrMalformedName)
	}

	logrus.WithFields(logrus.Fields{
		"function":       "Reassembler.Add",
		"recipient_hash": chunk.RecipientHash,
		"short_id":       chunk.ShortID,
		"chunks":         p.total,
	}).Debug("Reassembled tunnel message")

	return data, true, nil
}

// AddName parses name and adds the resulting chunk.
func (r *Reassembler) AddName(name, baseDomain string, now time.Time) ([]byte, bool, error) {
	chunk, err := ParseQueryName(name, baseDomain)
	if err != nil {
		return nil, false, err
	}
	return r.Add(chunk, now)
}

// Prune drops incomplete messages first seen more than maxAge before now and
// returns how many were dropped.
func (r *Reassembler) Prune(now time.Time, maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for key, p := range r.pending {
		if now.Sub(p.firstSeen) > maxAge {
			delete(r.pending, key)
			dropped++
		}
	}
	return dropped
}

// Pending returns the number of incomplete messages.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

