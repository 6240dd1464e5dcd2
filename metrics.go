package chatsync

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the sync layer's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	eventsTotal       *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	reconnectsTotal   prometheus.Counter
	heartbeatsTotal   *prometheus.CounterVec
	connectionState   *prometheus.GaugeVec
	paginationTotal   *prometheus.CounterVec
	reconciledTotal   *prometheus.CounterVec
	replyLookupsTotal *prometheus.CounterVec
	pendingSends      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_events_total",
				Help: "Total number of server push events delivered to handlers.",
			},
			[]string{"event"},
		),
		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_events_dropped_total",
				Help: "Total number of server push events that failed to decode.",
			},
			[]string{"event", "reason"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_requests_total",
				Help: "Total number of logical requests by outcome.",
			},
			[]string{"event", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatsync_request_duration_seconds",
				Help:    "Logical request latencies in seconds, retries included.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event"},
		),
		reconnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "chatsync_socket_reconnects_total",
				Help: "Total number of socket reconnect attempts.",
			},
		),
		heartbeatsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_socket_heartbeats_total",
				Help: "Total number of socket heartbeat pings by result.",
			},
			[]string{"result"},
		),
		connectionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chatsync_socket_state",
				Help: "Current socket state; 1 for the active state, 0 otherwise.",
			},
			[]string{"state"},
		),
		paginationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_pagination_requests_total",
				Help: "Total number of backward pagination attempts by outcome.",
			},
			[]string{"outcome"},
		),
		reconciledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_sends_total",
				Help: "Total number of optimistic sends by final state.",
			},
			[]string{"state"},
		),
		replyLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsync_reply_lookups_total",
				Help: "Total number of reply target resolutions by source.",
			},
			[]string{"source"},
		),
		pendingSends: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatsync_pending_sends",
				Help: "Number of optimistic sends awaiting confirmation.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.eventsTotal,
			m.eventsDropped,
			m.requestsTotal,
			m.requestDuration,
			m.reconnectsTotal,
			m.heartbeatsTotal,
			m.connectionState,
			m.paginationTotal,
			m.reconciledTotal,
			m.replyLookupsTotal,
			m.pendingSends,
		)
	}
	return m
}

func (m *Metrics) eventReceived(name EventName) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(name)).Inc()
}

func (m *Metrics) eventDropped(name EventName, reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(string(name), reason).Inc()
}

func (m *Metrics) request(name EventName, status int, took time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requestsTotal.WithLabelValues(string(name), label).Inc()
	m.requestDuration.WithLabelValues(string(name)).Observe(took.Seconds())
}

func (m *Metrics) reconnect() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

func (m *Metrics) heartbeat(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.heartbeatsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) state(s ConnState) {
	if m == nil {
		return
	}
	for _, st := range []ConnState{StateDisconnected, StateConnecting, StateConnected, StateReconnecting} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.connectionState.WithLabelValues(string(st)).Set(v)
	}
}

func (m *Metrics) pagination(outcome string) {
	if m == nil {
		return
	}
	m.paginationTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) send(state string) {
	if m == nil {
		return
	}
	m.reconciledTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) replyLookup(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.replyLookupsTotal.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pendingSends.Set(float64(n))
}
