package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/docparse/constants"
)

const namespace = "docparse"

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	extractions        *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	backendRequests    *prometheus.CounterVec
	backendDuration    prometheus.Histogram
	breakerState       *prometheus.GaugeVec
	inFlight           prometheus.GaugeFunc
}

// New registers all collectors. inFlight may be nil.
func New(inFlight func() float64) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Extractions by outcome (parsed, fallback, failed).",
		}, []string{"outcome", "document_type"}),
		extractionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "End-to-end extraction latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 180},
		}, []string{"outcome"}),
		backendRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Model backend calls by result.",
		}, []string{"result"}),
		backendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_duration_seconds",
			Help:      "Model backend call latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 180},
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "1 for the backend circuit breaker's current state.",
		}, []string{"state"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.extractions,
		m.extractionDuration,
		m.backendRequests,
		m.backendDuration,
		m.breakerState,
	)
	if inFlight != nil {
		m.inFlight = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "extractions_in_flight",
			Help:      "Extractions currently holding a concurrency slot.",
		}, inFlight)
		reg.MustRegister(m.inFlight)
	}
	m.SetBreakerState("closed")
	return m
}

// otherDocumentType replaces caller-supplied tags outside the known set.
const otherDocumentType = "other"

var knownDocumentTypes = map[constants.DocumentType]struct{}{
	constants.DocumentTypeInvoice:       {},
	constants.DocumentTypeReceipt:       {},
	constants.DocumentTypePurchaseOrder: {},
	constants.DocumentTypeBill:          {},
	constants.DocumentTypeAuto:          {},
	constants.DocumentTypeCustom:        {},
}

// documentTypeLabel keeps the document_type label set bounded.
func documentTypeLabel(s string) string {
	if _, ok := knownDocumentTypes[constants.DocumentType(s)]; ok {
		return s
	}
	return otherDocumentType
}

// ObserveExtraction records one finished extraction. Unknown document types
// are counted as "other".
func (m *Metrics) ObserveExtraction(outcome constants.Outcome, documentType string, elapsed time.Duration) {
	m.extractions.WithLabelValues(string(outcome), documentTypeLabel(documentType)).Inc()
	m.extractionDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// SetBreakerState marks state as current and clears the others.
func (m *Metrics) SetBreakerState(state string) {
	for _, s := range []string{"closed", "half-open", "open"} {
		v := 0.0
		if s == state {
			v = 1
		}
		m.breakerState.WithLabelValues(s).Set(v)
	}
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
