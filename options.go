package neochat

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opd-ai/neochat/config"
	"github.com/opd-ai/neochat/discovery"
	"github.com/opd-ai/neochat/dnstunnel"
	"github.com/opd-ai/neochat/mesh"
	"github.com/opd-ai/neochat/relay"
	"github.com/opd-ai/neochat/storage"
	"github.com/opd-ai/neochat/transport"
)

// StateResetFunc is called when saved state existed but could not be
// loaded and the node started over with a new identity.
type StateResetFunc func(result *storage.LoadResult)

// Options contains configuration options for creating a Node.
type Options struct {
	// StoragePath is the encrypted state file. Its key lives beside it.
	StoragePath string
	// MeshTTL is the hop budget for packets this node creates.
	MeshTTL uint8
	// Registerer receives mesh metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	// TimeProvider overrides the clock.
	TimeProvider TimeProvider
	// OnStateReset is called when the saved state was discarded.
	OnStateReset StateResetFunc
	// Discovery resolves peer keys to profiles.
	Discovery *discovery.PeerDiscovery

	// Relay enables the CdnRelay transport and relay polling.
	Relay *relay.Client
	// DNSTunnel configures the DNS tunnel; it is enabled when DNSResolver
	// is set.
	DNSTunnel   dnstunnel.Config
	DNSResolver transport.TXTResolver
	// SmsSender enables the SMS transport.
	SmsSender transport.SmsSender
	// Direct enables the Direct transport.
	Direct transport.Channel
}

// NewOptions creates default options.
func NewOptions() *Options {
	return &Options{
		StoragePath:  "neochat.dat",
		MeshTTL:      mesh.MaxTTL,
		TimeProvider: RealTimeProvider{},
		Discovery:    discovery.New(discovery.DefaultConfig()),
		DNSTunnel:    dnstunnel.DefaultConfig(),
	}
}

// OptionsFromConfig builds options from loaded settings. A relay client is
// created when a relay URL is configured, and the DNS tunnel is enabled
// when a resolver address is.
func OptionsFromConfig(cfg config.Config) (*Options, error) {
	opts := NewOptions()
	opts.StoragePath = cfg.StoragePath
	opts.MeshTTL = cfg.Mesh.MaxTTL
	opts.DNSTunnel = cfg.DNSTunnel

	if cfg.Relay.URL != "" {
		client, err := relay.NewClient(cfg.RelayClientConfig())
		if err != nil {
			return nil, err
		}
		opts.Relay = client
	}
	if cfg.DNSTunnel.Resolver != "" {
		opts.DNSResolver = transport.NewResolver(cfg.DNSTunnel.Resolver)
	}
	return opts, nil
}
