// Package metrics holds the Prometheus collectors for the client daemon.
//
// Recorder methods are safe on a nil *Metrics so library code and tests can
// run without a registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors.
type Metrics struct {
	Logins          *prometheus.CounterVec
	RefreshAttempts prometheus.Counter
	RefreshFailures prometheus.Counter

	HubConnected  prometheus.Gauge
	HubReconnects prometheus.Counter
	LiveEvents    *prometheus.CounterVec

	MessagesSent *prometheus.CounterVec
	Selections   prometheus.Counter
	StaleDropped prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers all collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mixdesk_logins_total",
				Help: "Login attempts by result",
			},
			[]string{"result"},
		),
		RefreshAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "mixdesk_token_refresh_attempts_total",
			Help: "Access token refresh attempts triggered by a 401",
		}),
		RefreshFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "mixdesk_token_refresh_failures_total",
			Help: "Refresh attempts that forced the session anonymous",
		}),
		HubConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mixdesk_hub_connected",
			Help: "1 while the realtime hub connection is up",
		}),
		HubReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "mixdesk_hub_reconnects_total",
			Help: "Realtime hub reconnect attempts",
		}),
		LiveEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mixdesk_live_events_total",
				Help: "Inbound hub invocations by target",
			},
			[]string{"target"},
		),
		MessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mixdesk_messages_sent_total",
				Help: "Outgoing chat messages by result",
			},
			[]string{"result"},
		),
		Selections: factory.NewCounter(prometheus.CounterOpts{
			Name: "mixdesk_peer_selections_total",
			Help: "Conversations opened",
		}),
		StaleDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "mixdesk_stale_responses_dropped_total",
			Help: "Fetch responses discarded because a newer selection superseded them",
		}),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) LoginResult(ok bool) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) RefreshAttempted() {
	if m == nil {
		return
	}
	m.RefreshAttempts.Inc()
}

func (m *Metrics) RefreshFailed() {
	if m == nil {
		return
	}
	m.RefreshFailures.Inc()
}

func (m *Metrics) HubUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.HubConnected.Set(1)
	} else {
		m.HubConnected.Set(0)
	}
}

func (m *Metrics) HubReconnect() {
	if m == nil {
		return
	}
	m.HubReconnects.Inc()
}

func (m *Metrics) LiveEvent(target string) {
	if m == nil {
		return
	}
	m.LiveEvents.WithLabelValues(target).Inc()
}

func (m *Metrics) MessageSent(ok bool) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) PeerSelected() {
	if m == nil {
		return
	}
	m.Selections.Inc()
}

func (m *Metrics) StaleResponse() {
	if m == nil {
		return
	}
	m.StaleDropped.Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
