package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mediastream",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediastream",
		Name:      "active_streams",
		Help:      "Number of currently open stream bodies.",
	})

	TranscodeStartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "transcode_starts_total",
		Help:      "Total number of encoder processes started.",
	})

	TranscodeFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "transcode_failures_total",
		Help:      "Total number of encoder processes that failed to start.",
	})

	PrebufferFlushTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "prebuffer_flush_total",
		Help:      "Total number of pre-buffer flushes by reason.",
	}, []string{"reason"})

	PrebufferFlushBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mediastream",
		Name:      "prebuffer_flush_bytes",
		Help:      "Bytes accumulated at the moment of the pre-buffer flush.",
		Buckets:   prometheus.ExponentialBuckets(64<<10, 4, 8),
	})

	RangeRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "range_requests_total",
		Help:      "Total Range header resolutions by outcome.",
	}, []string{"outcome"})

	SourceOpenDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mediastream",
		Name:      "source_open_duration_seconds",
		Help:      "Time to open a readable byte source for a request.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	})

	RadioLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediastream",
		Name:      "radio_lookups_total",
		Help:      "Total radio directory lookups by operation and cache state.",
	}, []string{"op", "cache"})

	WSClientsConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediastream",
		Name:      "ws_clients_connected",
		Help:      "Number of connected WebSocket observers.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveStreams,
		TranscodeStartsTotal,
		TranscodeFailuresTotal,
		PrebufferFlushTotal,
		PrebufferFlushBytes,
		RangeRequestsTotal,
		SourceOpenDuration,
		RadioLookupsTotal,
		WSClientsConnected,
	)
}
