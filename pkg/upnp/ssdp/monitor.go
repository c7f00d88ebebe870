package ssdp

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"net/netip"
	"time"

	gossdp "github.com/koron/go-ssdp"
	"github.com/rs/zerolog"

	"github.com/forestnode-io/upnpstack/pkg/metrics"
	"github.com/forestnode-io/upnpstack/pkg/upnp"
)

// Monitor feeds SSDP multicast notifications into a Tracker and expires
// its entries periodically.
type Monitor struct {
	tracker  *Tracker
	local    Endpoint
	interval time.Duration
	metrics  *metrics.Metrics
	monitor  *gossdp.Monitor
}

type MonitorOption func(*Monitor)

func WithMetrics(m *metrics.Metrics) MonitorOption {
	return func(mon *Monitor) {
		mon.metrics = m
	}
}

func NewMonitor(tracker *Tracker, local Endpoint, expirationInterval time.Duration, opts ...MonitorOption) *Monitor {
	m := Monitor{
		tracker:  tracker,
		local:    local,
		interval: expirationInterval,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return &m
}

// Run monitors until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	log := zerolog.Ctx(ctx)
	gossdp.Logger = stdlog.New(log, "", 0)

	m.monitor = &gossdp.Monitor{
		Alive: func(msg *gossdp.AliveMessage) {
			m.handle(ctx, msg.From, msg.Header())
		},
		Bye: func(msg *gossdp.ByeMessage) {
			m.handle(ctx, msg.From, msg.Header())
		},
	}
	if err := m.monitor.Start(); err != nil {
		return fmt.Errorf("error starting SSDP monitor: %w", err)
	}
	defer m.monitor.Close()

	log.Debug().Msg("monitoring SSDP notifications")
	m.tracker.Run(ctx, m.interval, func() {
		m.metrics.SetRootDevices(m.tracker.Len())
	})
	return nil
}

// Search sends an M-SEARCH for searchType and feeds the responses into the
// tracker.
func (m *Monitor) Search(ctx context.Context, searchType string, wait time.Duration) error {
	waitSec := int(wait / time.Second)
	if waitSec < 1 {
		waitSec = 1
	}
	var localAddr string
	if m.local.Addr.IsValid() {
		localAddr = netip.AddrPortFrom(m.local.Addr, 0).String()
	}

	services, err := gossdp.Search(searchType, waitSec, localAddr)
	if err != nil {
		return fmt.Errorf("error searching for %s: %w", searchType, err)
	}
	for i := range services {
		adv := SearchResponse(services[i].Header(), m.local, netip.AddrPort{})
		if err := m.dispatch(ctx, adv); err != nil && !errors.Is(err, ErrInvalidAdvertisement) {
			return err
		}
	}
	return nil
}

func (m *Monitor) handle(ctx context.Context, from net.Addr, h http.Header) {
	var remote netip.AddrPort
	if from != nil {
		remote, _ = netip.ParseAddrPort(from.String())
	}
	adv := Advertisement{
		NTS:         h.Get("NTS"),
		HTTPVersion: upnp.HTTP11,
		Header:      h,
		Local:       m.local,
		Remote:      remote,
	}
	adv.fill()
	_ = m.dispatch(ctx, &adv)
}

func (m *Monitor) dispatch(ctx context.Context, adv *Advertisement) error {
	err := m.tracker.HandleAdvertisement(ctx, adv)
	m.metrics.RecordAdvertisement(adv.NTS, err == nil)
	m.metrics.SetRootDevices(m.tracker.Len())
	return err
}
