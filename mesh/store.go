package mesh

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Admission is the outcome of offering a packet to the store. Rejections are
// routine and are not errors.
type Admission int

const (
	// Admitted means the packet was recorded and stored.
	Admitted Admission = iota
	// Duplicate means the message ID was already seen.
	Duplicate
	// DeadOnArrival means the packet had no hops left.
	DeadOnArrival
)

func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case Duplicate:
		return "duplicate"
	case DeadOnArrival:
		return "dead_on_arrival"
	default:
		return "unknown"
	}
}

// GCStats reports what a garbage-collection pass removed.
type GCStats struct {
	Expired  int
	Dead     int
	Capacity int
	SeenIDs  int
}

// StoreStats describes the store's current contents.
type StoreStats struct {
	Packets      int
	PayloadBytes int
	SeenIDs      int
}

// Store is the local packet cache. All methods are safe for concurrent use;
// each holds the store lock for its whole duration and never blocks on I/O.
type Store struct {
	mu         sync.Mutex
	packets    []Packet
	seen       map[string]struct{}
	seenOrder  []string
	totalBytes int
	metrics    *Metrics
}

// NewStore creates an empty store. metrics may be nil.
func NewStore(metrics *Metrics) *Store {
	return &Store{
		seen:    make(map[string]struct{}),
		metrics: metrics,
	}
}

// Admit offers a packet to the store. A packet whose ID was seen before, or
// whose TTL is zero, is rejected. Otherwise its ID is recorded, the packet is
// appended and the store is garbage-collected at now.
func (s *Store) Admit(packet Packet, now time.Time) Admission {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome := s.admitLocked(packet, now)
	s.metrics.observeAdmission(outcome)
	return outcome
}

// AcceptPacket is Admit reduced to a boolean.
func (s *Store) AcceptPacket(packet Packet, now time.Time) bool {
	return s.Admit(packet, now) == Admitted
}

func (s *Store) admitLocked(packet Packet, now time.Time) Admission {
	if _, ok := s.seen[packet.MessageID]; ok {
		return Duplicate
	}
	if !packet.IsAlive() {
		return DeadOnArrival
	}

	s.seen[packet.MessageID] = struct{}{}
	s.seenOrder = append(s.seenOrder, packet.MessageID)
	s.packets = append(s.packets, packet.clone())
	s.totalBytes += len(packet.EncryptedPayload)

	s.gcLocked(now)
	return Admitted
}

// GC drops expired and dead packets, trims the dedup memory to MaxSeenIDs and
// evicts the oldest packets until the payload total fits MaxStoreBytes.
func (s *Store) GC(now time.Time) GCStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gcLocked(now)
}

func (s *Store) gcLocked(now time.Time) GCStats {
	var stats GCStats

	kept := s.packets[:0]
	for _, p := range s.packets {
		switch {
		case p.IsExpired(now):
			stats.Expired++
			s.totalBytes -= len(p.EncryptedPayload)
		case !p.IsAlive():
			stats.Dead++
			s.totalBytes -= len(p.EncryptedPayload)
		default:
			kept = append(kept, p)
		}
	}
	clearTail(s.packets, len(kept))
	s.packets = kept

	if excess := len(s.seenOrder) - MaxSeenIDs; excess > 0 {
		for _, id := range s.seenOrder[:excess] {
			delete(s.seen, id)
		}
		s.seenOrder = append([]string(nil), s.seenOrder[excess:]...)
		stats.SeenIDs = excess
	}

	drop := 0
	for drop < len(s.packets) && s.totalBytes > MaxStoreBytes {
		s.totalBytes -= len(s.packets[drop].EncryptedPayload)
		drop++
	}
	if drop > 0 {
		s.packets = append([]Packet(nil), s.packets[drop:]...)
		stats.Capacity = drop
	}

	if stats.Expired+stats.Dead+stats.Capacity > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "mesh.Store.GC",
			"expired":  stats.Expired,
			"dead":     stats.Dead,
			"capacity": stats.Capacity,
			"packets":  len(s.packets),
			"bytes":    s.totalBytes,
		}).Debug("Mesh store garbage collected")
	}
	s.metrics.observeGC(stats, len(s.packets), s.totalBytes)
	return stats
}

// PacketsForSync returns copies of every live, unexpired packet whose ID is
// not in peerSeen, in store order.
func (s *Store) PacketsForSync(peerSeen []string, now time.Time) []Packet {
	skip := make(map[string]struct{}, len(peerSeen))
	for _, id := range peerSeen {
		skip[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Packet
	for _, p := range s.packets {
		if _, ok := skip[p.MessageID]; ok {
			continue
		}
		if !p.IsAlive() || p.IsExpired(now) {
			continue
		}
		out = append(out, p.clone())
	}
	return out
}

// ExtractMyPackets removes and returns every packet addressed to myHash,
// leaving the rest for further forwarding. The IDs stay in the dedup memory.
func (s *Store) ExtractMyPackets(myHash string) []Packet {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mine []Packet
	others := s.packets[:0]
	for _, p := range s.packets {
		if p.RecipientHash == myHash {
			mine = append(mine, p)
			s.totalBytes -= len(p.EncryptedPayload)
			continue
		}
		others = append(others, p)
	}
	clearTail(s.packets, len(others))
	s.packets = others

	s.metrics.observeSize(len(s.packets), s.totalBytes)
	return mine
}

// SeenIDs returns the dedup memory, oldest first, for a peer to compute what
// to offer.
func (s *Store) SeenIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seenOrder...)
}

// HasSeen reports whether id is in the dedup memory.
func (s *Store) HasSeen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok
}

// Packets returns copies of all carried packets in store order.
func (s *Store) Packets() []Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Packet, len(s.packets))
	for i, p := range s.packets {
		out[i] = p.clone()
	}
	return out
}

// Stats returns current store statistics.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StoreStats{
		Packets:      len(s.packets),
		PayloadBytes: s.totalBytes,
		SeenIDs:      len(s.seenOrder),
	}
}

// clearTail zeroes the slots past n so dropped payloads can be collected.
func clearTail(packets []Packet, n int) {
	for i := n; i < len(packets); i++ {
		packets[i] = Packet{}
	}
}
