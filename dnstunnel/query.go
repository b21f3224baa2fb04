package dnstunnel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotTunnelName is returned for names outside the tunnel's message space.
	ErrNotTunnelName = errors.New("not a tunnel message name")
	// ErrMalformedName is returned for message names that break the grammar.
	ErrMalformedName = errors.New("malformed tunnel message name")
)

// Chunk is one parsed message name.
type Chunk struct {
	Fragment      string
	Seq           int
	Total         int
	ShortID       string
	RecipientHash string
}

// ParseQueryName inverts EncodeMessageAsDNS for a single name. Matching is
// case-insensitive and a trailing root dot is accepted.
func ParseQueryName(name, baseDomain string) (Chunk, error) {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	suffix := "." + messageMarker + "." + strings.ToLower(strings.TrimSuffix(baseDomain, "."))
	if !strings.HasSuffix(name, suffix) {
		return Chunk{}, ErrNotTunnelName
	}

	labels := strings.Split(strings.TrimSuffix(name, suffix), ".")
	if len(labels) != 4 {
		return Chunk{}, fmt.Errorf("%w: expected 4 labels, got %d", ErrMalformedName, len(labels))
	}

	seq, total, err := parseSequence(labels[1])
	if err != nil {
		return Chunk{}, err
	}
	if labels[0] == "" || len(labels[0]) > FragmentSize {
		return Chunk{}, fmt.Errorf("%w: fragment length %d", ErrMalformedName, len(labels[0]))
	}
	if labels[2] == "" || labels[3] == "" {
		return Chunk{}, fmt.Errorf("%w: empty id or recipient", ErrMalformedName)
	}

	return Chunk{
		Fragment:      labels[0],
		Seq:           seq,
		Total:         total,
		ShortID:       labels[2],
		RecipientHash: labels[3],
	}, nil
}

// ParsePollName extracts the node hash from a poll name.
func ParsePollName(name, baseDomain string) (string, error) {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	suffix := "." + pollMarker + "." + strings.ToLower(strings.TrimSuffix(baseDomain, "."))
	hash := strings.TrimSuffix(name, suffix)
	if hash == name || hash == "" || strings.Contains(hash, ".") {
		return "", ErrNotTunnelName
	}
	return hash, nil
}

func parseSequence(label string) (int, int, error) {
	parts := strings.SplitN(label, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: sequence %q", ErrMalformedName, label)
	}
	seq, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: sequence %q", ErrMalformedName, label)
	}
	total, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: sequence %q", ErrMalformedName, label)
	}
	if total < 1 || seq < 1 || seq > total {
		return 0, 0, fmt.Errorf("%w: sequence %d of %d", ErrMalformedName, seq, total)
	}
	if total > MaxChunks {
		return 0, 0, fmt.Errorf("%w: %d chunks exceeds limit %d", ErrMalformedName, total, MaxChunks)
	}
	return seq, total, nil
}
