package models

import (
	"fmt"

	"github.com/vmihailenco/msgpack"
)

// TransportMode selects the delivery path for a chat's envelopes.
type TransportMode uint8

const (
	// TransportDirect delivers over a live peer-to-peer connection.
	TransportDirect TransportMode = iota
	// TransportCdnRelay delivers through the HTTP relay.
	TransportCdnRelay
	// TransportMesh hands envelopes to the store-and-forward mesh cache.
	TransportMesh
	// TransportDNSTunnel encodes envelopes into DNS query names.
	TransportDNSTunnel
	// TransportSMS sends envelopes as SMS payloads.
	TransportSMS
)

// TransportModes lists every mode in declaration order.
var TransportModes = []TransportMode{
	TransportDirect,
	TransportCdnRelay,
	TransportMesh,
	TransportDNSTunnel,
	TransportSMS,
}

var transportNames = map[TransportMode]string{
	TransportDirect:    "internet",
	TransportCdnRelay:  "cdnrelay",
	TransportMesh:      "mesh",
	TransportDNSTunnel: "dnstunnel",
	TransportSMS:       "sms",
}

// String returns the mode's wire name.
func (m TransportMode) String() string {
	if name, ok := transportNames[m]; ok {
		return name
	}
	return fmt.Sprintf("transport(%d)", uint8(m))
}

// Valid reports whether m is a declared mode.
func (m TransportMode) Valid() bool {
	_, ok := transportNames[m]
	return ok
}

// ParseTransportMode parses a wire name. "direct" is accepted as an alias of
// "internet".
func ParseTransportMode(s string) (TransportMode, error) {
	if s == "direct" {
		return TransportDirect, nil
	}
	for mode, name := range transportNames {
		if name == s {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown transport mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m TransportMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("unknown transport mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *TransportMode) UnmarshalText(text []byte) error {
	mode, err := ParseTransportMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// EncodeMsgpack stores the mode by name so stored state survives reordering.
func (m TransportMode) EncodeMsgpack(enc *msgpack.Encoder) error {
	text, err := m.MarshalText()
	if err != nil {
		return err
	}
	return enc.EncodeString(string(text))
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (m *TransportMode) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	return m.UnmarshalText([]byte(s))
}
