package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/neochat/dnstunnel"
	"github.com/opd-ai/neochat/limits"
)

const (
	// TunnelUploadTTL is how long the relay keeps the chunks of a tunnel
	// upload that has not completed.
	TunnelUploadTTL = 10 * time.Minute

	tunnelSender = "dns-tunnel"
)

// TXTResponse is the body of GET /dns/{name}.
type TXTResponse struct {
	TXT []string `json:"txt"`
}

// LookupTXT answers a tunnel query the way the relay's DNS front end would.
// Message names are reassembled and the completed payload is queued for its
// recipient in the same mailbox /send writes to. A poll name pops the oldest
// payload queued for the node, since DNS has no acknowledgement. Any other
// name is reported as not found.
//
// Server satisfies transport.TXTResolver, so a node can use it in process.
func (s *Server) LookupTXT(_ context.Context, name string) ([]string, error) {
	now := s.now()

	if hash, err := dnstunnel.ParsePollName(name, s.tunnelDomain); err == nil {
		return s.popTunnelPayload(hash, now)
	}

	chunk, err := dnstunnel.ParseQueryName(name, s.tunnelDomain)
	if errors.Is(err, dnstunnel.ErrNotTunnelName) {
		return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
	}
	if err != nil {
		return nil, err
	}

	data, done, err := s.chunks.Add(chunk, now)
	if err != nil || !done {
		return nil, err
	}
	if err := limits.ValidateMessageSize(data, limits.MaxFrameSize); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":       "relay.Server.LookupTXT",
			"recipient_hash": chunk.RecipientHash,
			"error":          err.Error(),
		}).Warn("Dropped tunnel upload")
		return nil, err
	}

	s.mu.Lock()
	s.enqueueLocked(Envelope{
		From:      tunnelSender,
		To:        chunk.RecipientHash,
		Payload:   base64.StdEncoding.EncodeToString(data),
		MessageID: chunk.ShortID,
	}, now)
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":       "relay.Server.LookupTXT",
		"recipient_hash": chunk.RecipientHash,
		"short_id":       chunk.ShortID,
		"bytes":          len(data),
	}).Info("Queued tunnel upload")
	return nil, nil
}

func (s *Server) popTunnelPayload(hash string, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pendingLocked(hash, now)
	if len(pending) == 0 {
		s.updateQueuedLocked()
		return nil, nil
	}
	next := pending[0]
	delete(s.queues[hash], next.MessageID)
	if len(s.queues[hash]) == 0 {
		delete(s.queues, hash)
	}
	s.updateQueuedLocked()

	data, err := base64.StdEncoding.DecodeString(next.Payload)
	if err != nil {
		return nil, fmt.Errorf("queued payload %s: %w", next.MessageID, err)
	}
	return dnstunnel.EncodeDNSResponse(data), nil
}

// handleDNS exposes LookupTXT over HTTP for a DNS front end that forwards
// tunnel queries to the relay.
func (s *Server) handleDNS(w http.ResponseWriter, r *http.Request) {
	records, err := s.LookupTXT(r.Context(), mux.Vars(r)["name"])
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
		writeError(w, http.StatusNotFound, "Not a tunnel name")
	case errors.Is(err, dnstunnel.ErrReassemblerFull):
		writeError(w, http.StatusServiceUnavailable, "too many incomplete tunnel uploads")
	case errors.Is(err, limits.ErrMessageTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "tunnel upload too large")
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		if records == nil {
			records = []string{}
		}
		writeJSON(w, http.StatusOK, TXTResponse{TXT: records})
	}
}
