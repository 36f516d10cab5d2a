// Package metrics owns the Prometheus registry served on the ops listener.
// HTTP series carry only method, route and status labels; everything else
// is labelled with small fixed vocabularies (backend, source, result).
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/smallbiz-web/internal/version"
)

const namespace = "smallbiz"

var (
	latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	sizeBuckets    = prometheus.ExponentialBuckets(256, 4, 9)
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	// http
	inflight    prometheus.Gauge
	reqTotal    *prometheus.CounterVec
	reqDur      *prometheus.HistogramVec
	respBytes   *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec
	panicTotal  prometheus.Counter

	rateDenied   prometheus.Counter
	rateCapacity prometheus.Counter

	// process
	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge

	// content store
	contentBackend   *prometheus.GaugeVec
	contentLoads     *prometheus.CounterVec
	contentFallbacks *prometheus.CounterVec
	contentSaves     *prometheus.CounterVec
	contentLoadedAt  prometheus.Gauge

	// admin and media
	adminLogins  *prometheus.CounterVec
	assetUploads *prometheus.CounterVec
	blobBytes    prometheus.Gauge
	blobObjects  prometheus.Gauge
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
}

func counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

// New builds a registry with the Go and process collectors plus every
// application series.
func New() *ServerMetrics {
	m := &ServerMetrics{
		reg:      prometheus.NewRegistry(),
		inflight: gauge("http_inflight_requests", "Requests currently being served"),
		reqTotal: counterVec("http_requests_total", "HTTP requests by method, route and status",
			"method", "route", "status"),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   latencyBuckets,
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response body size by method and route",
			Buckets:   sizeBuckets,
		}, []string{"method", "route"}),
		errorsTotal:  counterVec("http_errors_total", "5xx responses by method and route", "method", "route"),
		panicTotal:   counter("http_panics_total", "Handler panics recovered on either listener"),
		rateDenied:   counter("http_rate_limited_total", "Requests rejected by the per-IP rate limiter"),
		rateCapacity: counter("http_rate_limiter_full_total", "Requests rejected because the limiter table was full"),

		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build metadata; the value is always 1",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: gauge("profiling_active", "1 when continuous profiling is running"),

		contentBackend: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "content_backend_info",
			Help:      "Content backend chosen at startup; the value is always 1",
		}, []string{"backend"}),
		contentLoads:     counterVec("content_loads_total", "Content document loads by source", "source"),
		contentFallbacks: counterVec("content_fallbacks_total", "Blob reads answered from the seed document, by reason", "reason"),
		contentSaves:     counterVec("content_saves_total", "Content document saves by backend and result", "backend", "result"),
		contentLoadedAt:  gauge("content_loaded_timestamp_seconds", "Unix time of the last successful content load"),

		adminLogins:  counterVec("admin_logins_total", "Admin login attempts by result", "result"),
		assetUploads: counterVec("asset_uploads_total", "Image uploads by result", "result"),
		blobBytes:    gauge("blob_storage_bytes", "Bytes stored in the blob bucket at the last usage scan"),
		blobObjects:  gauge("blob_objects", "Objects in the blob bucket at the last usage scan"),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.inflight, m.reqTotal, m.reqDur, m.respBytes, m.errorsTotal, m.panicTotal,
		m.rateDenied, m.rateCapacity,
		m.buildInfo, m.profilingActive,
		m.contentBackend, m.contentLoads, m.contentFallbacks, m.contentSaves, m.contentLoadedAt,
		m.adminLogins, m.assetUploads, m.blobBytes, m.blobObjects,
	)
	m.handler = promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

// Handler serves the registry in the Prometheus and OpenMetrics formats.
func (m *ServerMetrics) Handler() http.Handler { return m.handler }

func (m *ServerMetrics) IncHttpPanic() { m.panicTotal.Inc() }

func (m *ServerMetrics) IncRateLimitDenied() { m.rateDenied.Inc() }

func (m *ServerMetrics) IncRateLimitCapacity() { m.rateCapacity.Inc() }

// SetBuildInfoFromVersion publishes the build_info series. Call once.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.WithLabelValues(app, component, vi.Version, vi.Commit, vi.CommitDate,
		vi.BuildId, vi.BuildDate, dirty, vi.GoVersion).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	v := 0.0
	if active {
		v = 1
	}
	m.profilingActive.Set(v)
}

func (m *ServerMetrics) SetContentBackend(backend string) {
	m.contentBackend.Reset()
	m.contentBackend.WithLabelValues(backend).Set(1)
}

func (m *ServerMetrics) IncContentLoad(source string) {
	m.contentLoads.WithLabelValues(source).Inc()
	m.contentLoadedAt.Set(float64(time.Now().Unix()))
}

func (m *ServerMetrics) IncContentFallback(reason string) {
	m.contentFallbacks.WithLabelValues(reason).Inc()
}

func (m *ServerMetrics) IncContentSave(backend, result string) {
	m.contentSaves.WithLabelValues(backend, result).Inc()
}

func (m *ServerMetrics) IncAdminLogin(result string) { m.adminLogins.WithLabelValues(result).Inc() }

func (m *ServerMetrics) IncAssetUpload(result string) { m.assetUploads.WithLabelValues(result).Inc() }

func (m *ServerMetrics) SetBlobUsage(bytes int64, objects int) {
	m.blobBytes.Set(float64(bytes))
	m.blobObjects.Set(float64(objects))
}
