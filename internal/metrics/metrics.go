package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	streamResponses *prometheus.CounterVec
	streamBytes     *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	uploadBytes     *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		streamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinestream",
			Name:      "stream_responses_total",
			Help:      "Media responses by class and HTTP status.",
		}, []string{"class", "status"}),
		streamBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinestream",
			Name:      "stream_bytes_total",
			Help:      "Body bytes written for media responses.",
		}, []string{"class"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinestream",
			Name:      "uploads_total",
			Help:      "Upload attempts by class and result.",
		}, []string{"class", "result"}),
		uploadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinestream",
			Name:      "upload_bytes_total",
			Help:      "Bytes persisted by successful uploads.",
		}, []string{"class"}),
	}

	reg.MustRegister(
		m.streamResponses,
		m.streamBytes,
		m.uploads,
		m.uploadBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) StreamResponse(class string, status int, bytes int64) {
	if m == nil {
		return
	}
	m.streamResponses.WithLabelValues(class, strconv.Itoa(status)).Inc()
	if bytes > 0 {
		m.streamBytes.WithLabelValues(class).Add(float64(bytes))
	}
}

func (m *Metrics) Upload(class, result string, bytes int64) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(class, result).Inc()
	if bytes > 0 {
		m.uploadBytes.WithLabelValues(class).Add(float64(bytes))
	}
}
