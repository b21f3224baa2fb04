package storage

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack"

	"github.com/opd-ai/neochat/models"
)

// EncodeState produces the canonical msgpack encoding of a node state.
// The encoder only sorts keys of string-to-string and string-to-interface
// maps, so the registries are written here with their keys in order and
// equal states encode to equal bytes. DecodeState reads the result with the
// ordinary struct decoder.
func EncodeState(state *models.NodeState) ([]byte, error) {
	if state == nil {
		return nil, fmt.Errorf("%w: nil state", ErrSchema)
	}

	var buf bytes.Buffer
	if err := encodeState(msgpack.NewEncoder(&buf), state); err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeState writes state as a map keyed by the NodeState msgpack tags.
func encodeState(enc *msgpack.Encoder, state *models.NodeState) error {
	if err := enc.EncodeMapLen(5); err != nil {
		return err
	}
	if err := encodeField(enc, "user", &state.Profile); err != nil {
		return err
	}
	if err := enc.EncodeString("chats"); err != nil {
		return err
	}
	if err := encodeSortedMap(enc, state.Chats); err != nil {
		return err
	}
	if err := enc.EncodeString("messages"); err != nil {
		return err
	}
	if err := encodeSortedMap(enc, state.Messages); err != nil {
		return err
	}
	if err := enc.EncodeString("contacts"); err != nil {
		return err
	}
	if err := encodeSortedMap(enc, state.Contacts); err != nil {
		return err
	}
	return encodeField(enc, "identity", &state.Identity)
}

func encodeField(enc *msgpack.Encoder, name string, v interface{}) error {
	if err := enc.EncodeString(name); err != nil {
		return err
	}
	return enc.Encode(v)
}

func encodeSortedMap[V any](enc *msgpack.Encoder, m map[string]V) error {
	if m == nil {
		return enc.EncodeNil()
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if err := enc.EncodeMapLen(len(keys)); err != nil {
		return err
	}
	for _, k := range keys {
		if err := enc.EncodeString(k); err != nil {
			return err
		}
		if err := enc.Encode(m[k]); err != nil {
			return err
		}
	}
	return nil
}

// DecodeState parses the output of EncodeState and checks that the identity
// secrets have usable lengths.
func DecodeState(data []byte) (*models.NodeState, error) {
	var state models.NodeState
	if err := msgpack.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	if n := len(state.Identity.SigningSeed); n != KeySize {
		return nil, fmt.Errorf("%w: signing seed is %d bytes", ErrSchema, n)
	}
	if n := len(state.Identity.EncryptionSecret); n != KeySize {
		return nil, fmt.Errorf("%w: encryption secret is %d bytes", ErrSchema, n)
	}

	if state.Chats == nil {
		state.Chats = make(map[string]models.Chat)
	}
	if state.Messages == nil {
		state.Messages = make(map[string][]models.Message)
	}
	if state.Contacts == nil {
		state.Contacts = make(map[string]models.Contact)
	}
	return &state, nil
}
