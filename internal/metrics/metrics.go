package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coinstream"

// Metrics holds the collectors for one process. All methods are safe on a
// nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	connects       *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	messages       *prometheus.CounterVec
	decodeErrors   *prometheus.CounterVec
	state          *prometheus.GaugeVec
	subscriptions  *prometheus.GaugeVec
	booksEmitted   *prometheus.CounterVec
	orderOps       *prometheus.CounterVec
	orderOpSeconds *prometheus.HistogramVec
}

// New creates collectors registered on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Successful WebSocket connects.",
		}, []string{"venue"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect attempts after an unexpected disconnect.",
		}, []string{"venue"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Frames received, by decoded event kind.",
		}, []string{"venue", "kind"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Frames or payloads that failed to decode.",
		}, []string{"venue"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current session state as a numeric code (0 closed, 1 connecting, 2 open, 3 closing, 4 reconnecting).",
		}, []string{"venue"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Subscription keys currently held.",
		}, []string{"venue"}),
		booksEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "books_emitted_total",
			Help:      "Normalized order books delivered.",
		}, []string{"venue", "instrument"}),
		orderOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_ops_total",
			Help:      "Order operations by kind and outcome.",
		}, []string{"venue", "kind", "outcome"}),
		orderOpSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_op_duration_seconds",
			Help:      "Time from submission to resolution.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"venue", "kind"}),
	}

	reg.MustRegister(
		m.connects, m.reconnects, m.messages, m.decodeErrors, m.state,
		m.subscriptions, m.booksEmitted, m.orderOps, m.orderOpSeconds,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Connected(venue string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(venue).Inc()
}

func (m *Metrics) Reconnecting(venue string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(venue).Inc()
}

func (m *Metrics) MessageReceived(venue, kind string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(venue, kind).Inc()
}

func (m *Metrics) DecodeError(venue string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(venue).Inc()
}

func (m *Metrics) SetState(venue string, code int) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(venue).Set(float64(code))
}

func (m *Metrics) SetSubscriptions(venue string, n int) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(venue).Set(float64(n))
}

func (m *Metrics) BookEmitted(venue, instrument string) {
	if m == nil {
		return
	}
	m.booksEmitted.WithLabelValues(venue, instrument).Inc()
}

// OrderOp records one resolved submission.
func (m *Metrics) OrderOp(venue, kind, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.orderOps.WithLabelValues(venue, kind, outcome).Inc()
	m.orderOpSeconds.WithLabelValues(venue, kind).Observe(seconds)
}
