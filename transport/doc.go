// Package transport hands finished envelopes to the channel selected for a
// chat.
//
// # Architecture
//
// The Router is a dispatch table keyed by models.TransportMode. It carries no
// key material and caches nothing; encryption happens before Dispatch and
// storage of carried packets belongs to the mesh store. Each mode is served
// by one Channel:
//
//	type Channel interface {
//	    Deliver(ctx context.Context, d Delivery) error
//	}
//
// # Channels
//
// MeshChannel admits the envelope into a mesh.Store as a fresh packet for the
// next device-to-device sync:
//
//	router.Register(models.TransportMesh, transport.NewMeshChannel(store, mesh.MaxTTL, time.Now))
//
// RelayChannel posts the envelope, base64 encoded, to an HTTP relay:
//
//	client, _ := relay.NewClient(relay.Config{URL: "https://relay.example"})
//	router.Register(models.TransportCdnRelay, transport.NewRelayChannel(client))
//
// DNSChannel splits the envelope across DNS query names under the tunnel
// domain and issues one lookup per name:
//
//	router.Register(models.TransportDNSTunnel, transport.NewDNSChannel(cfg, transport.NewResolver(cfg.Resolver)))
//
// SmsChannel wraps the envelope in an SmsEnvelope for an SmsSender supplied
// by the application. Direct delivery has no built-in channel; applications
// register their own, typically with ChannelFunc.
package transport
