package commands

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/rs/zerolog"

	"github.com/forestnode-io/upnpstack/pkg/configuration"
	"github.com/forestnode-io/upnpstack/pkg/metrics"
	"github.com/forestnode-io/upnpstack/pkg/upnp/ssdp"
)

// LocalEndpoint parses the configured SSDP local address. An empty
// address yields the zero endpoint.
func LocalEndpoint(config *configuration.SSDP) (ssdp.Endpoint, error) {
	if config.LocalAddr == "" {
		return ssdp.Endpoint{}, nil
	}
	addr, err := netip.ParseAddr(config.LocalAddr)
	if err != nil {
		return ssdp.Endpoint{}, fmt.Errorf("invalid ssdp local address: %w", err)
	}
	return ssdp.Endpoint{Addr: addr}, nil
}

// StartMonitor runs an SSDP monitor feeding tracker until ctx is done.
func StartMonitor(ctx context.Context, config *configuration.SSDP, tracker *ssdp.Tracker, m *metrics.Metrics) (*ssdp.Monitor, error) {
	local, err := LocalEndpoint(config)
	if err != nil {
		return nil, err
	}

	mon := ssdp.NewMonitor(tracker, local, config.ExpirationInterval, ssdp.WithMetrics(m))
	go func() {
		if err := mon.Run(ctx); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).
				Msg("ssdp monitor failed")
		}
	}()
	return mon, nil
}
