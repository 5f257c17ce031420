package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpBuckets = []float64{
		0.001, 0.002, 0.005, // 1ms - 5ms
		0.010, 0.020, 0.050, // 10ms - 50ms
		0.100, 0.200, 0.500, // 100ms - 500ms
		1.000, 2.000, 4.000, 8.000, // 1s - 8s+
	}

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "confidentialbid",
		Name:        "http_request_duration_seconds",
		Help:        "HTTP request duration in seconds.",
		ConstLabels: prometheus.Labels{},
		Buckets:     httpBuckets,
	}, []string{"route", "code"})
)
