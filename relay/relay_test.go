package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/neochat/limits"
	"github.com/opd-ai/neochat/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRelay(t *testing.T, reg prometheus.Registerer) (*Server, *Client, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	srv, err := NewServer(ServerOptions{Registerer: reg, Now: clock.Now})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := NewClient(Config{URL: ts.URL + "/"})
	require.NoError(t, err)
	return srv, client, clock
}

func TestSendPollAck(t *testing.T) {
	_, client, _ := newTestRelay(t, nil)
	ctx := context.Background()

	require.NoError(t, client.Send(ctx, Envelope{From: "aaaa", To: "ab12cd34", Payload: "cGF5bG9hZA==", MessageID: "m2"}))
	require.NoError(t, client.Send(ctx, Envelope{To: "ab12cd34", Payload: "b3RoZXI=", MessageID: "m1"}))

	msgs, err := client.Poll(ctx, "ab12cd34")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].MessageID)
	assert.Equal(t, "anonymous", msgs[0].From)
	assert.Equal(t, "m2", msgs[1].MessageID)
	assert.Equal(t, "cGF5bG9hZA==", msgs[1].Payload)
	assert.Equal(t, uint64(1700000000), msgs[1].Timestamp)

	require.NoError(t, client.Ack(ctx, "ab12cd34", "m1"))
	require.NoError(t, client.Ack(ctx, "ab12cd34", "m1"), "acks are idempotent")

	msgs, err = client.Poll(ctx, "ab12cd34")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m2", msgs[0].MessageID)

	msgs, err = client.Poll(ctx, "ffffffff")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestPollOrdersByArrival(t *testing.T) {
	_, client, clock := newTestRelay(t, nil)
	ctx := context.Background()

	require.NoError(t, client.Send(ctx, Envelope{To: "ab12cd34", Payload: "eA==", MessageID: "c"}))
	clock.Advance(time.Second)
	require.NoError(t, client.Send(ctx, Envelope{To: "ab12cd34", Payload: "eA==", MessageID: "b"}))
	require.NoError(t, client.Send(ctx, Envelope{To: "ab12cd34", Payload: "eA==", MessageID: "a"}))

	msgs, err := client.Poll(ctx, "ab12cd34")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "c", msgs[0].MessageID, "older envelopes first")
	assert.Equal(t, "a", msgs[1].MessageID, "ties broken by id")
	assert.Equal(t, "b", msgs[2].MessageID)
}

func TestSendValidation(t *testing.T) {
	_, client, _ := newTestRelay(t, nil)

	err := client.Send(context.Background(), Envelope{To: "ab12cd34", MessageID: "m1"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
}

func TestSendRejectsOversizedBody(t *testing.T) {
	_, client, _ := newTestRelay(t, nil)

	payload := strings.Repeat("A", limits.MaxRequestBody)
	err := client.Send(context.Background(), Envelope{To: "ab12cd34", Payload: payload, MessageID: "big"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusRequestEntityTooLarge, se.Code)
}

func TestPollRejectsShortHash(t *testing.T) {
	_, client, _ := newTestRelay(t, nil)

	_, err := client.Poll(context.Background(), "ab1")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
}

func TestMessageExpiry(t *testing.T) {
	srv, client, clock := newTestRelay(t, nil)
	ctx := context.Background()

	require.NoError(t, client.Send(ctx, Envelope{To: "ab12cd34", Payload: "eA==", MessageID: "old"}))
	clock.Advance(6 * 24 * time.Hour)
	require.NoError(t, client.Send(ctx, Envelope{To: "ab12cd34", Payload: "eA==", MessageID: "new"}))
	clock.Advance(2 * 24 * time.Hour)

	msgs, err := client.Poll(ctx, "ab12cd34")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "new", msgs[0].MessageID)

	clock.Advance(7 * 24 * time.Hour)
	assert.Equal(t, 1, srv.Prune())
}

func TestPollCap(t *testing.T) {
	_, client, _ := newTestRelay(t, nil)
	ctx := context.Background()

	for i := 0; i < MaxPollMessages+20; i++ {
		require.NoError(t, client.Send(ctx, Envelope{To: "ab12cd34", Payload: "eA==", MessageID: fmt.Sprintf("m%03d", i)}))
	}

	msgs, err := client.Poll(ctx, "ab12cd34")
	require.NoError(t, err)
	assert.Len(t, msgs, MaxPollMessages)
}

func TestProfiles(t *testing.T) {
	_, client, _ := newTestRelay(t, nil)
	ctx := context.Background()

	_, err := client.GetProfile(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, client.UpdateProfile(ctx, models.User{ID: "alice", Username: "Alice", AvatarURL: "https://a/b.png"}))
	user, err := client.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", user.Username)
	assert.Equal(t, models.StatusOffline, user.Status)
	assert.Equal(t, "https://a/b.png", user.AvatarURL)
	assert.Equal(t, uint64(1700000000), user.LastSeen)

	err = client.UpdateProfile(ctx, models.User{ID: "bob"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
}

func TestStatusAndCORS(t *testing.T) {
	srv, client, _ := newTestRelay(t, nil)

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, ServiceName, status.Service)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv, client, _ := newTestRelay(t, reg)
	ctx := context.Background()

	require.NoError(t, client.Send(ctx, Envelope{To: "ab12cd34", Payload: "eA==", MessageID: "a"}))
	require.NoError(t, client.Send(ctx, Envelope{To: "ab12cd34", Payload: "eA==", MessageID: "b"}))
	assert.Equal(t, 2.0, testutil.ToFloat64(srv.metrics.queued))
	assert.Equal(t, 2.0, testutil.ToFloat64(srv.metrics.requests.WithLabelValues("/send", "200")))

	require.NoError(t, client.Ack(ctx, "ab12cd34", "a"))
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.queued))
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer ts.Close()
	defer close(release)

	client, err := NewClient(Config{URL: ts.URL, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	err = client.Send(context.Background(), Envelope{To: "x", Payload: "y", MessageID: "z"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClientRateLimit(t *testing.T) {
	_, client, _ := newTestRelay(t, nil)

	limited, err := NewClient(Config{URL: client.baseURL, RequestsPerSecond: 0.1, Burst: 1})
	require.NoError(t, err)

	require.NoError(t, limited.Send(context.Background(), Envelope{To: "ab12cd34", Payload: "eA==", MessageID: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = limited.Send(ctx, Envelope{To: "ab12cd34", Payload: "eA==", MessageID: "b"})
	assert.Error(t, err)
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(Config{URL: "  "})
	assert.ErrorIs(t, err, ErrNoURL)

	c, err := NewClient(Config{URL: "http://relay.example/"})
	require.NoError(t, err)
	assert.Equal(t, "http://relay.example", c.baseURL)
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
	assert.Nil(t, c.limiter)
}
