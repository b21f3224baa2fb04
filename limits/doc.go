// Package limits defines the size limits shared by the message pipeline and
// the relay.
//
// # Size Hierarchy
//
//   - MaxMessageText (16 KiB): the longest chat message a node will send.
//   - MaxFrameSize (64 KiB): the largest inbound frame a node will try to
//     open. A frame holds the sender ID, the envelope header and the sealed
//     message, so it always exceeds the text it carries by at least
//     EnvelopeOverhead bytes.
//   - MaxRequestBody (1 MiB): the largest request body the relay reads.
//     Relay payloads are base64 frames.
//
// Each validation function rejects empty input with ErrMessageEmpty and
// oversized input with a wrapped ErrMessageTooLarge:
//
//	if err := limits.ValidateText(text); err != nil {
//	    return err
//	}
package limits
