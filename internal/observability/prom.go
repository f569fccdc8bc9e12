package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         prometheus.Gauge

	// DB
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// Auth
	LoginsTotal       *prometheus.CounterVec
	SessionsDestroyed prometheus.Counter
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webbase",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "webbase",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "webbase",
				Name:      "http_requests_in_flight",
				Help:      "In-flight HTTP requests",
			},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "webbase",
				Name:      "db_query_duration_seconds",
				Help:      "Database operation latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webbase",
				Name:      "db_errors_total",
				Help:      "Database errors by operation and class",
			},
			[]string{"op", "class"},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webbase",
				Name:      "logins_total",
				Help:      "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		SessionsDestroyed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "webbase",
				Name:      "sessions_destroyed_total",
				Help:      "Sessions destroyed (logout, expiry, revocation)",
			},
		),
	}

	reg.MustRegister(
		p.RequestsTotal,
		p.RequestsDuration,
		p.InFlight,
		p.DbQueryDuration,
		p.DbErrorsTotal,
		p.LoginsTotal,
		p.SessionsDestroyed,
	)

	return p
}

// Middleware records request count, latency and in-flight gauge per route.
func (p *Prom) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		p.InFlight.Inc()

		c.Next()

		p.InFlight.Dec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
