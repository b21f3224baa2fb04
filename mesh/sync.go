package mesh

import (
	"bytes"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack"
)

// BeaconVersion is the advertised mesh protocol version.
const BeaconVersion uint8 = 1

// Beacon is the advertisement a node broadcasts so nearby devices can decide
// whether to connect and sync.
type Beacon struct {
	Version     uint8  `msgpack:"version" json:"version"`
	NodeHash    string `msgpack:"node_hash" json:"node_hash"`
	PacketCount uint32 `msgpack:"packet_count" json:"packet_count"`
}

// SyncResult summarises one exchange with a peer.
type SyncResult struct {
	Received uint32 `json:"received"`
	Sent     uint32 `json:"sent"`
	PeerHash string `json:"peer_hash"`
}

// Beacon returns the advertisement for this store.
func (s *Store) Beacon(nodeHash string) Beacon {
	stats := s.Stats()
	return Beacon{
		Version:     BeaconVersion,
		NodeHash:    nodeHash,
		PacketCount: uint32(stats.Packets),
	}
}

// Sync performs one anti-entropy exchange for the node whose hash is myHash.
// It returns the packets to send to the peer (those absent from peerSeen),
// then offers each incoming packet to the store. A packet carried onward
// spends one hop on receipt; a packet addressed to myHash has arrived and is
// admitted as is, so a packet on its last hop still reaches its recipient.
// Outgoing packets are selected before any incoming packet is admitted so
// nothing is echoed back.
func (s *Store) Sync(myHash, peerHash string, peerSeen []string, incoming []Packet, now time.Time) ([]Packet, SyncResult) {
	outgoing := s.PacketsForSync(peerSeen, now)

	result := SyncResult{PeerHash: peerHash, Sent: uint32(len(outgoing))}
	for _, p := range incoming {
		if p.RecipientHash != myHash {
			p.Forward()
		}
		if s.AcceptPacket(p, now) {
			result.Received++
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "mesh.Store.Sync",
		"peer_hash": peerHash,
		"sent":      result.Sent,
		"received":  result.Received,
		"offered":   len(incoming),
	}).Info("Mesh sync completed")

	return outgoing, result
}

// MarshalPackets encodes packets for a sync link.
func MarshalPackets(packets []Packet) ([]byte, error) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(packets); err != nil {
		return nil, fmt.Errorf("encode packets: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalPackets decodes the output of MarshalPackets.
func UnmarshalPackets(data []byte) ([]Packet, error) {
	var packets []Packet
	if err := msgpack.Unmarshal(data, &packets); err != nil {
		return nil, fmt.Errorf("decode packets: %w", err)
	}
	return packets, nil
}

// MarshalBeacon encodes a beacon for advertisement.
func MarshalBeacon(b Beacon) ([]byte, error) {
	return msgpack.Marshal(&b)
}

// UnmarshalBeacon decodes an advertised beacon.
func UnmarshalBeacon(data []byte) (Beacon, error) {
	var b Beacon
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return Beacon{}, fmt.Errorf("decode beacon: %w", err)
	}
	return b, nil
}
