package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	blocksScanned *prometheus.CounterVec
	events        *prometheus.CounterVec
	submissions   *prometheus.CounterVec
	errors        *prometheus.CounterVec
	cursor        *prometheus.GaugeVec
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = newMetrics()
		prometheus.MustRegister(
			metrics.blocksScanned,
			metrics.events,
			metrics.submissions,
			metrics.errors,
			metrics.cursor,
		)
	})
	return metrics
}

func newMetrics() *Metrics {
	return &Metrics{
		blocksScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_relay_blocks_scanned_total",
			Help: "Total number of blocks scanned per direction",
		}, []string{"direction"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_relay_events_total",
			Help: "Bridge events by terminal result (relayed, skipped, failed)",
		}, []string{"direction", "result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_relay_submissions_total",
			Help: "Submitted transactions by outcome",
		}, []string{"direction", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_relay_errors_total",
			Help: "Errors by relay stage",
		}, []string{"direction", "stage"}),
		cursor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bridge_relay_cursor_height",
			Help: "Last scanned block height per chain and event kind",
		}, []string{"chain", "kind"}),
	}
}

// BlocksScanned adds n scanned blocks.
func (m *Metrics) BlocksScanned(direction string, n uint64) {
	if m != nil && n > 0 {
		m.blocksScanned.WithLabelValues(direction).Add(float64(n))
	}
}

// Event counts an event reaching a terminal result.
func (m *Metrics) Event(direction, result string) {
	if m != nil {
		m.events.WithLabelValues(direction, result).Inc()
	}
}

// Submission counts a submission outcome.
func (m *Metrics) Submission(direction, outcome string) {
	if m != nil {
		m.submissions.WithLabelValues(direction, outcome).Inc()
	}
}

// Error counts a failure in stage.
func (m *Metrics) Error(direction, stage string) {
	if m != nil {
		m.errors.WithLabelValues(direction, stage).Inc()
	}
}

// Cursor records the scan cursor.
func (m *Metrics) Cursor(chain, kind string, height uint64) {
	if m != nil {
		m.cursor.WithLabelValues(chain, kind).Set(float64(height))
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
