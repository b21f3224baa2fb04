package neochat

import (
	"fmt"

	"github.com/vmihailenco/msgpack"

	"github.com/opd-ai/neochat/models"
)

// frame is what travels over every transport: the sender's ID in the clear
// followed by the envelope. The envelope's signature binds it to From, so a
// forged From fails verification.
type frame struct {
	From     string `msgpack:"from"`
	Envelope []byte `msgpack:"envelope"`
}

// chatMessage is the plaintext sealed inside an envelope.
type chatMessage struct {
	ID        string               `msgpack:"id"`
	ChatID    string               `msgpack:"chat_id,omitempty"`
	Text      string               `msgpack:"text"`
	Timestamp uint64               `msgpack:"timestamp"`
	Transport models.TransportMode `msgpack:"transport"`
}

func encodeFrame(f frame) ([]byte, error) {
	return msgpack.Marshal(&f)
}

func decodeFrame(data []byte) (frame, error) {
	var f frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.From == "" || len(f.Envelope) == 0 {
		return frame{}, ErrMalformedFrame
	}
	return f, nil
}

func encodeChatMessage(m chatMessage) ([]byte, error) {
	return msgpack.Marshal(&m)
}

func decodeChatMessage(data []byte) (chatMessage, error) {
	var m chatMessage
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return chatMessage{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if m.ID == "" {
		return chatMessage{}, fmt.Errorf("%w: message has no id", ErrMalformedFrame)
	}
	return m, nil
}
