package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shapestone/shape-httpmsg/pkg/errors"
)

// metrics is nil when no Registerer is configured; its methods then do
// nothing.
type metrics struct {
	requests   *prometheus.CounterVec
	bodyErrors *prometheus.CounterVec
	duration   prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shapehttp",
				Subsystem: "server",
				Name:      "requests_total",
				Help:      "Total number of responses written, by status code",
			},
			[]string{"code"},
		),
		bodyErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shapehttp",
				Subsystem: "server",
				Name:      "body_errors_total",
				Help:      "Total number of request bodies that failed to decode, by error type",
			},
			[]string{"type"},
		),
		duration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "shapehttp",
				Subsystem: "server",
				Name:      "request_duration_seconds",
				Help:      "Time from a decoded request head to the end of its response",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

func (m *metrics) observe(code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(strconv.Itoa(code)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *metrics) bodyError(err error) {
	if m == nil {
		return
	}
	typ := string(errors.GetErrorType(err))
	if typ == "" {
		typ = "unknown"
	}
	m.bodyErrors.WithLabelValues(typ).Inc()
}
