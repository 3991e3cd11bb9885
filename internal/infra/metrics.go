package infra

import (
	"net/http"
	"sync/atomic"
	"time"

	"pricestream/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports feed counters to Prometheus and keeps atomic totals for
// the JSON status endpoint. Safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	framesTotal     *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	tradesTotal     *prometheus.CounterVec
	providerErrors  *prometheus.CounterVec
	sendErrors      *prometheus.CounterVec
	pingsTotal      *prometheus.CounterVec
	reconnectsTotal *prometheus.CounterVec
	publishErrors   *prometheus.CounterVec
	connectionState *prometheus.GaugeVec

	frames     atomic.Uint64
	trades     atomic.Uint64
	errorsSeen atomic.Uint64
	reconnects atomic.Uint64
	state      atomic.Int32
	startTime  time.Time
}

// NewMetrics creates a metrics collector on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry:  reg,
		startTime: time.Now(),

		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pricestream_frames_received_total",
			Help: "Total number of frames read from the feed",
		}, []string{"feed"}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pricestream_frames_dropped_total",
			Help: "Frames that decoded to nothing usable",
		}, []string{"feed"}),
		tradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pricestream_trades_decoded_total",
			Help: "Price updates merged into the store",
		}, []string{"feed"}),
		providerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pricestream_provider_errors_total",
			Help: "Error frames sent by the provider",
		}, []string{"feed"}),
		sendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pricestream_send_errors_total",
			Help: "Outbound frames that failed",
		}, []string{"feed", "op"}),
		pingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pricestream_pings_sent_total",
			Help: "Heartbeat pings written",
		}, []string{"feed"}),
		reconnectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pricestream_reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled after a failure",
		}, []string{"feed"}),
		publishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pricestream_publish_errors_total",
			Help: "Failed fan-out publishes",
		}, []string{"sink"}),
		connectionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pricestream_connection_state",
			Help: "0=disconnected 1=connecting 2=connected_not_ready 3=ready 4=reconnecting",
		}, []string{"feed"}),
	}
}

func (m *Metrics) FrameReceived(feed string) {
	m.framesTotal.WithLabelValues(feed).Inc()
	m.frames.Add(1)
}

func (m *Metrics) FrameDropped(feed string) {
	m.framesDropped.WithLabelValues(feed).Inc()
}

func (m *Metrics) TradesDecoded(feed string, n int) {
	m.tradesTotal.WithLabelValues(feed).Add(float64(n))
	m.trades.Add(uint64(n))
}

func (m *Metrics) ProviderError(feed string) {
	m.providerErrors.WithLabelValues(feed).Inc()
	m.errorsSeen.Add(1)
}

func (m *Metrics) SendFailed(feed, op string) {
	m.sendErrors.WithLabelValues(feed, op).Inc()
	m.errorsSeen.Add(1)
}

func (m *Metrics) PingSent(feed string) {
	m.pingsTotal.WithLabelValues(feed).Inc()
}

func (m *Metrics) ReconnectScheduled(feed string) {
	m.reconnectsTotal.WithLabelValues(feed).Inc()
	m.reconnects.Add(1)
}

// PublishFailed records a failed fan-out to sink (e.g. "redis").
func (m *Metrics) PublishFailed(sink string) {
	m.publishErrors.WithLabelValues(sink).Inc()
	m.errorsSeen.Add(1)
}

func (m *Metrics) SetState(feed string, state domain.ConnectionState) {
	m.connectionState.WithLabelValues(feed).Set(float64(state))
	m.state.Store(int32(state))
}

// Registry exposes the underlying registry (tests, extra collectors)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// MetricsSnapshot is a point-in-time view of the totals.
type MetricsSnapshot struct {
	Frames     uint64        `json:"frames"`
	Trades     uint64        `json:"trades"`
	Errors     uint64        `json:"errors"`
	Reconnects uint64        `json:"reconnects"`
	State      string        `json:"state"`
	Uptime     time.Duration `json:"uptime_ns"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Frames:     m.frames.Load(),
		Trades:     m.trades.Load(),
		Errors:     m.errorsSeen.Load(),
		Reconnects: m.reconnects.Load(),
		State:      domain.ConnectionState(m.state.Load()).String(),
		Uptime:     time.Since(m.startTime),
		Timestamp:  time.Now(),
	}
}
