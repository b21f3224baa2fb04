package relay

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/neochat/dnstunnel"
	"github.com/opd-ai/neochat/limits"
)

const tunnelDomain = dnstunnel.DefaultBaseDomain

func randomPayload(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

func TestTunnelUploadAndPoll(t *testing.T) {
	srv, client, _ := newTestRelay(t, nil)
	ctx := context.Background()

	payload := randomPayload(t, 600)
	names := dnstunnel.EncodeMessageAsDNS(payload, "ab12cd34", "1234567890abcdef", tunnelDomain)
	require.Greater(t, len(names), 1)

	// Chunks may arrive in any order.
	for i := len(names) - 1; i >= 0; i-- {
		records, err := srv.LookupTXT(ctx, names[i])
		require.NoError(t, err)
		assert.Empty(t, records)
	}

	queued, err := client.Poll(ctx, "ab12cd34")
	require.NoError(t, err)
	require.Len(t, queued, 1, "tunnel uploads share the relay mailbox")
	assert.Equal(t, "dns-tunnel", queued[0].From)
	assert.Equal(t, "12345678", queued[0].MessageID)
	assert.Equal(t, base64.StdEncoding.EncodeToString(payload), queued[0].Payload)

	records, err := srv.LookupTXT(ctx, dnstunnel.EncodePollAsDNS("ab12cd34", tunnelDomain))
	require.NoError(t, err)
	require.Greater(t, len(records), 1)
	for _, r := range records {
		assert.LessOrEqual(t, len(r), dnstunnel.TXTStringSize)
	}
	got, ok := dnstunnel.DecodeDNSResponse(records)
	require.True(t, ok)
	assert.Equal(t, payload, got)

	records, err = srv.LookupTXT(ctx, dnstunnel.EncodePollAsDNS("ab12cd34", tunnelDomain))
	require.NoError(t, err)
	assert.Empty(t, records, "a poll consumes the payload")
}

func TestTunnelPollDeliversRelayedEnvelopes(t *testing.T) {
	srv, client, _ := newTestRelay(t, nil)
	ctx := context.Background()

	require.NoError(t, client.Send(ctx, Envelope{To: "ab12cd34", Payload: base64.StdEncoding.EncodeToString([]byte("sealed")), MessageID: "m1"}))

	records, err := srv.LookupTXT(ctx, dnstunnel.EncodePollAsDNS("ab12cd34", tunnelDomain))
	require.NoError(t, err)
	got, ok := dnstunnel.DecodeDNSResponse(records)
	require.True(t, ok)
	assert.Equal(t, []byte("sealed"), got)
}

func TestTunnelRejectsForeignAndMalformedNames(t *testing.T) {
	srv, _, _ := newTestRelay(t, nil)
	ctx := context.Background()

	_, err := srv.LookupTXT(ctx, "www.example.org")
	var dnsErr *net.DNSError
	require.ErrorAs(t, err, &dnsErr)
	assert.True(t, dnsErr.IsNotFound)

	_, err = srv.LookupTXT(ctx, "abcd.x-y.12345678.ab12cd34.m."+tunnelDomain)
	assert.ErrorIs(t, err, dnstunnel.ErrMalformedName)
}

func TestTunnelRejectsOversizedUpload(t *testing.T) {
	srv, client, _ := newTestRelay(t, nil)
	ctx := context.Background()

	names := dnstunnel.EncodeMessageAsDNS(randomPayload(t, limits.MaxFrameSize+1), "ab12cd34", "bigupload", tunnelDomain)
	var err error
	for _, name := range names {
		_, err = srv.LookupTXT(ctx, name)
	}
	assert.ErrorIs(t, err, limits.ErrMessageTooLarge)

	queued, err := client.Poll(ctx, "ab12cd34")
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestPruneDropsStaleTunnelUploads(t *testing.T) {
	srv, client, clock := newTestRelay(t, nil)
	ctx := context.Background()

	names := dnstunnel.EncodeMessageAsDNS(randomPayload(t, 120), "ab12cd34", "1234567890abcdef", tunnelDomain)
	require.Greater(t, len(names), 1)

	_, err := srv.LookupTXT(ctx, names[0])
	require.NoError(t, err)
	clock.Advance(TunnelUploadTTL + time.Minute)
	srv.Prune()

	for _, name := range names[1:] {
		_, err := srv.LookupTXT(ctx, name)
		require.NoError(t, err)
	}
	queued, err := client.Poll(ctx, "ab12cd34")
	require.NoError(t, err)
	assert.Empty(t, queued, "the first chunk was pruned")
}

func TestTunnelHTTPGateway(t *testing.T) {
	srv, err := NewServer(ServerOptions{TunnelDomain: "t.example"})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/dns/ab12cd34.p.t.example")
	require.NoError(t, err)
	var body TXTResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body.TXT)

	resp, err = http.Get(ts.URL + "/dns/ab12cd34.p.other.example")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTunnelGatewayReportsFullReassembler(t *testing.T) {
	srv, err := NewServer(ServerOptions{TunnelDomain: "t.example"})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx := context.Background()
	for i := 0; i < dnstunnel.MaxPendingMessages; i++ {
		_, err := srv.LookupTXT(ctx, fmt.Sprintf("nbuq.1-2.%08x.ab12cd34.m.t.example", i))
		require.NoError(t, err)
	}

	resp, err := http.Get(ts.URL + "/dns/nbuq.1-2.overflow.ab12cd34.m.t.example")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
