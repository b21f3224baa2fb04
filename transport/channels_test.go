package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/neochat/dnstunnel"
	"github.com/opd-ai/neochat/mesh"
	"github.com/opd-ai/neochat/relay"
)

func TestMeshChannel(t *testing.T) {
	store := mesh.NewStore(nil)
	now := time.Unix(1700000000, 0)
	ch := NewMeshChannel(store, 0, func() time.Time { return now })

	d := testDelivery()
	require.NoError(t, ch.Deliver(context.Background(), d))
	require.NoError(t, ch.Deliver(context.Background(), d), "re-queueing the same message is not an error")

	packets := store.Packets()
	require.Len(t, packets, 1)
	assert.Equal(t, d.MessageID, packets[0].MessageID)
	assert.Equal(t, "ab12cd34", packets[0].RecipientHash)
	assert.Equal(t, mesh.MaxTTL, packets[0].TTL)
	assert.Equal(t, uint64(now.Unix()), packets[0].CreatedAt)
	assert.Equal(t, d.Envelope, packets[0].EncryptedPayload)
}

func TestMeshChannelAssignsID(t *testing.T) {
	store := mesh.NewStore(nil)
	d := testDelivery()
	d.MessageID = ""
	require.NoError(t, NewMeshChannel(store, 5, nil).Deliver(context.Background(), d))
	packets := store.Packets()
	require.Len(t, packets, 1)
	assert.NotEmpty(t, packets[0].MessageID)
	assert.Equal(t, uint8(5), packets[0].TTL)
}

type fakeRelay struct {
	sent []relay.Envelope
}

func (f *fakeRelay) Send(_ context.Context, env relay.Envelope) error {
	f.sent = append(f.sent, env)
	return nil
}

func TestRelayChannel(t *testing.T) {
	fake := &fakeRelay{}
	d := testDelivery()
	require.NoError(t, NewRelayChannel(fake).Deliver(context.Background(), d))

	require.Len(t, fake.sent, 1)
	env := fake.sent[0]
	assert.Equal(t, "ffee0011", env.From)
	assert.Equal(t, "ab12cd34", env.To)
	assert.Equal(t, d.MessageID, env.MessageID)
	assert.Equal(t, uint64(1700000000), env.Timestamp)

	payload, err := base64.StdEncoding.DecodeString(env.Payload)
	require.NoError(t, err)
	assert.Equal(t, d.Envelope, payload)
}

func TestRelayChannelZeroTime(t *testing.T) {
	fake := &fakeRelay{}
	d := testDelivery()
	d.CreatedAt = time.Time{}
	require.NoError(t, NewRelayChannel(fake).Deliver(context.Background(), d))
	require.Len(t, fake.sent, 1)
	assert.Zero(t, fake.sent[0].Timestamp)
}

type fakeResolver struct {
	mu      sync.Mutex
	queries []string
	answers map[string][]string
	err     error
}

func (f *fakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, name)
	if f.err != nil {
		return nil, f.err
	}
	if records, ok := f.answers[name]; ok {
		return records, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func TestDNSChannelDeliver(t *testing.T) {
	resolver := &fakeResolver{}
	ch := NewDNSChannel(dnstunnel.Config{BaseDomain: "chat.example.com"}, resolver)

	d := testDelivery()
	d.Envelope = make([]byte, 120)
	require.NoError(t, ch.Deliver(context.Background(), d))

	require.Len(t, resolver.queries, 4)
	r := dnstunnel.NewReassembler()
	var got []byte
	for _, name := range resolver.queries {
		assert.True(t, strings.HasSuffix(name, ".0f8fad5b.ab12cd34.m.chat.example.com"), name)
		data, done, err := r.AddName(name, "chat.example.com", time.Now())
		require.NoError(t, err)
		if done {
			got = data
		}
	}
	assert.Equal(t, d.Envelope, got)
}

func TestDNSChannelDeliverFailure(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("timeout")}
	err := NewDNSChannel(dnstunnel.Config{}, resolver).Deliver(context.Background(), testDelivery())
	assert.Error(t, err)
	assert.Len(t, resolver.queries, 1, "delivery stops at the first failing chunk")
	assert.True(t, strings.HasSuffix(resolver.queries[0], "."+dnstunnel.DefaultBaseDomain))
}

func TestDNSChannelPoll(t *testing.T) {
	resolver := &fakeResolver{answers: map[string][]string{
		"ab12cd34.p.chat.example.com": {"nb", " uq "},
	}}
	ch := NewDNSChannel(dnstunnel.Config{BaseDomain: "chat.example.com"}, resolver)

	data, ok, err := ch.Poll(context.Background(), "ab12cd34")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hi"), data)

	data, ok, err = ch.Poll(context.Background(), "00000000")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestNewResolver(t *testing.T) {
	assert.Same(t, net.DefaultResolver, NewResolver(""))
	r := NewResolver("127.0.0.1:53")
	assert.True(t, r.PreferGo)
	assert.NotNil(t, r.Dial)
}

type fakeSms struct {
	sent []SmsEnvelope
}

func (f *fakeSms) SendSms(_ context.Context, env SmsEnvelope) error {
	f.sent = append(f.sent, env)
	return nil
}

func TestSmsChannel(t *testing.T) {
	sender := &fakeSms{}
	ch := NewSmsChannel(sender)

	assert.ErrorIs(t, ch.Deliver(context.Background(), testDelivery()), ErrNoPhone)

	d := testDelivery()
	d.RecipientPhone = "+15550100"
	require.NoError(t, ch.Deliver(context.Background(), d))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, SmsEnvelope{
		ID:               d.MessageID,
		RecipientPhone:   "+15550100",
		EncryptedPayload: base64.StdEncoding.EncodeToString(d.Envelope),
	}, sender.sent[0])
}
