// Package metrics exposes conversion counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insightdelivered/invoice-item-converter/internal/models"
)

const namespace = "invoice_converter"

// Metrics holds the collectors for one registry.
type Metrics struct {
	registry *prometheus.Registry

	documents  *prometheus.CounterVec
	candidates prometheus.Counter
	records    prometheus.Counter
	duration   *prometheus.HistogramVec
	exports    *prometheus.CounterVec
	advisor    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents converted, by text source and detected line format.",
		}, []string{"source", "format"}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_lines_total",
			Help:      "Lines classified as possible line items.",
		}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Output records produced.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Time from upload to records, including text extraction.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"source"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Files rendered, by format.",
		}, []string{"format"}),
		advisor: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisor_requests_total",
			Help:      "Summary requests, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.documents, m.candidates, m.records, m.duration, m.exports, m.advisor,
	)
	return m
}

// ObserveConversion records one converted document.
func (m *Metrics) ObserveConversion(source string, doc *models.Document, elapsed time.Duration) {
	format := string(models.FormatGeneric)
	if doc.Structure.HasTaggedAmount {
		format = string(models.FormatTagged)
	}
	m.documents.WithLabelValues(source, format).Inc()
	m.candidates.Add(float64(len(doc.Candidates)))
	m.records.Add(float64(len(doc.Records)))
	m.duration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveExport records one rendered file.
func (m *Metrics) ObserveExport(format string) {
	m.exports.WithLabelValues(format).Inc()
}

// ObserveAdvisor records a summary request outcome: "ok", "cached" or "error".
func (m *Metrics) ObserveAdvisor(result string) {
	m.advisor.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
