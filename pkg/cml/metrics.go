package cml

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cmlkit",
			Subsystem: "transport",
			Name:      "request_duration_seconds",
			Help:      "Latency of completed round trips to the platform API.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "code"},
	)

	requestRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cmlkit",
			Subsystem: "transport",
			Name:      "retries_total",
			Help:      "Retried platform API attempts by failure kind.",
		},
		[]string{"kind"},
	)

	reauthentications = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cmlkit",
			Subsystem: "transport",
			Name:      "reauthentications_total",
			Help:      "Token refreshes triggered by a 401 response.",
		},
	)
)

func observeRequest(method string, status int, elapsed time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	requestDuration.WithLabelValues(method, code).Observe(elapsed.Seconds())
}
