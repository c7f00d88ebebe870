// Package metrics exposes Prometheus collectors for the control point,
// the device server and SSDP discovery. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	// ControlRequestsTotal counts action requests served by the device
	// side, by service, action and HTTP status.
	ControlRequestsTotal *prometheus.CounterVec

	ControlRequestDuration *prometheus.HistogramVec

	// CallsTotal counts action calls made by the control point by result
	// ("success", "fault", "failed").
	CallsTotal *prometheus.CounterVec

	CallDuration *prometheus.HistogramVec

	// AdvertisementsTotal counts SSDP messages by NTS and whether they
	// were accepted.
	AdvertisementsTotal *prometheus.CounterVec

	RootDevices prometheus.Gauge

	// NotificationsTotal counts NOTIFY messages sent to subscribers by
	// result ("delivered", "failed", "dropped").
	NotificationsTotal *prometheus.CounterVec

	Subscriptions prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. It panics if
// registration fails.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ControlRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upnp_control_requests_total",
				Help: "Total action requests served by service, action and status",
			},
			[]string{"service", "action", "status"},
		),
		ControlRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upnp_control_request_duration_seconds",
				Help:    "Action request handling duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "action"},
		),
		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upnp_cp_calls_total",
				Help: "Total action calls made by the control point by result",
			},
			[]string{"action", "result"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upnp_cp_call_duration_seconds",
				Help:    "Action call round trip duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		AdvertisementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upnp_ssdp_advertisements_total",
				Help: "Total SSDP messages received by NTS and result",
			},
			[]string{"nts", "result"},
		),
		RootDevices: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "upnp_ssdp_root_devices",
				Help: "Current number of tracked root devices",
			},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upnp_gena_notifications_total",
				Help: "Total event notifications sent to subscribers by result",
			},
			[]string{"result"},
		),
		Subscriptions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "upnp_gena_subscriptions",
				Help: "Current number of event subscriptions",
			},
		),
	}

	reg.MustRegister(
		m.ControlRequestsTotal,
		m.ControlRequestDuration,
		m.CallsTotal,
		m.CallDuration,
		m.AdvertisementsTotal,
		m.RootDevices,
		m.NotificationsTotal,
		m.Subscriptions,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}

	return m
}

// RecordControlRequest counts one action request. action must be the name
// of a known action or "unknown".
func (m *Metrics) RecordControlRequest(service, action string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.ControlRequestsTotal.WithLabelValues(service, action, http.StatusText(status)).Inc()
	m.ControlRequestDuration.WithLabelValues(service, action).Observe(d.Seconds())
}

func (m *Metrics) RecordCall(action, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.CallsTotal.WithLabelValues(action, result).Inc()
	m.CallDuration.WithLabelValues(action).Observe(d.Seconds())
}

func (m *Metrics) RecordAdvertisement(nts string, accepted bool) {
	if m == nil {
		return
	}
	result := "accepted"
	if !accepted {
		result = "rejected"
	}
	m.AdvertisementsTotal.WithLabelValues(ntsLabel(nts), result).Inc()
}

// ntsLabel maps the NTS header, which any peer can set, to a fixed label
// set.
func ntsLabel(nts string) string {
	switch nts {
	case "ssdp:alive":
		return "alive"
	case "ssdp:byebye":
		return "byebye"
	case "ssdp:update":
		return "update"
	}
	return "other"
}

func (m *Metrics) SetRootDevices(n int) {
	if m == nil {
		return
	}
	m.RootDevices.Set(float64(n))
}

func (m *Metrics) RecordNotification(result string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) SetSubscriptions(n int) {
	if m == nil {
		return
	}
	m.Subscriptions.Set(float64(n))
}

// Handler serves the registry the metrics were registered with, or the
// default gatherer.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
