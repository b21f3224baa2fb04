// Package dnstunnel carries opaque ciphertext through DNS. Outgoing messages
// are split across query names under a tunnel base domain; replies come back
// as TXT records.
//
// Message names have the form
//
//	{fragment}.{seq}-{total}.{short-id}.{recipient-hash}.m.{base-domain}
//
// and poll names the form {node-hash}.p.{base-domain}.
package dnstunnel

import (
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/neochat/limits"
)

const (
	// FragmentSize is the number of base32 characters per name. DNS labels
	// hold 63 octets; the rest of the name carries metadata.
	FragmentSize = 50
	// TXTStringSize is the longest character-string a TXT record holds.
	TXTStringSize = 255
	// MaxChunks is the most names a message may span: enough for a
	// limits.MaxFrameSize payload once base32 encoded.
	MaxChunks = ((limits.MaxFrameSize*8+4)/5 + FragmentSize - 1) / FragmentSize
	// ShortIDLength is how much of the message ID each name carries.
	ShortIDLength = 8

	messageMarker = "m"
	pollMarker    = "p"
)

// DefaultBaseDomain is used when no tunnel domain is configured.
const DefaultBaseDomain = "chat.neo.example.com"

// DefaultPollInterval is how often a node asks the tunnel for queued messages.
const DefaultPollInterval = 5 * time.Second

var fragmentEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config describes a DNS tunnel endpoint.
type Config struct {
	// BaseDomain is the zone served by the tunnel responder.
	BaseDomain string `yaml:"base_domain" json:"base_domain"`
	// Resolver is the resolver address; empty means the system default.
	Resolver string `yaml:"resolver" json:"resolver"`
	// PollInterval is the delay between poll queries.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// DefaultConfig returns the tunnel defaults.
func DefaultConfig() Config {
	return Config{
		BaseDomain:   DefaultBaseDomain,
		PollInterval: DefaultPollInterval,
	}
}

// EncodeMessageAsDNS encodes ciphertext as an ordered list of query names.
// The ciphertext is base32 encoded without padding, lower-cased and split
// into FragmentSize chunks.
func EncodeMessageAsDNS(ciphertext []byte, recipientHash, messageID, baseDomain string) []string {
	encoded := strings.ToLower(fragmentEncoding.EncodeToString(ciphertext))
	shortID := shortMessageID(messageID)

	total := (len(encoded) + FragmentSize - 1) / FragmentSize
	names := make([]string, 0, total)
	for i := 0; i < total; i++ {
		start := i * FragmentSize
		end := start + FragmentSize
		if end > len(encoded) {
			end = len(encoded)
		}
		names = append(names, fmt.Sprintf("%s.%d-%d.%s.%s.%s.%s",
			encoded[start:end], i+1, total, shortID, recipientHash, messageMarker, baseDomain))
	}

	logrus.WithFields(logrus.Fields{
		"function":       "EncodeMessageAsDNS",
		"recipient_hash": recipientHash,
		"short_id":       shortID,
		"bytes":          len(ciphertext),
		"names":          total,
	}).Debug("Encoded message as DNS names")

	return names
}

// EncodePollAsDNS returns the name a node queries to ask for queued messages.
func EncodePollAsDNS(myHash, baseDomain string) string {
	return myHash + "." + pollMarker + "." + baseDomain
}

// DecodeDNSResponse concatenates the trimmed TXT strings in order and
// decodes them. It reports false on empty input or invalid data; callers
// treat that as "nothing yet".
func DecodeDNSResponse(txtRecords []string) ([]byte, bool) {
	var b strings.Builder
	for _, record := range txtRecords {
		b.WriteString(strings.TrimSpace(record))
	}
	if b.Len() == 0 {
		return nil, false
	}

	data, err := fragmentEncoding.DecodeString(strings.ToUpper(b.String()))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "DecodeDNSResponse",
			"records":  len(txtRecords),
			"error":    err.Error(),
		}).Debug("TXT response did not decode")
		return nil, false
	}
	return data, true
}

// EncodeDNSResponse is the responder side of DecodeDNSResponse: data is
// encoded like a message and split into TXT strings of at most
// TXTStringSize characters.
func EncodeDNSResponse(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	encoded := strings.ToLower(fragmentEncoding.EncodeToString(data))
	records := make([]string, 0, (len(encoded)+TXTStringSize-1)/TXTStringSize)
	for len(encoded) > TXTStringSize {
		records = append(records, encoded[:TXTStringSize])
		encoded = encoded[TXTStringSize:]
	}
	return append(records, encoded)
}

// shortMessageID returns the first ShortIDLength characters of id, or all
// of it when shorter.
func shortMessageID(id string) string {
	if len(id) <= ShortIDLength {
		return id
	}
	return id[:ShortIDLength]
}
