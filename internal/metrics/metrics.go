// Package metrics registers the Prometheus collectors of the reward ledger.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartdustbin/ecorewards/internal/apperr"
)

const namespace = "ecorewards"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	deposits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deposits",
			Name:      "recorded_total",
			Help:      "Deposits recorded, by category and whether the request was a replay.",
		},
		[]string{"category", "replayed"},
	)

	pointsAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deposits",
			Name:      "points_awarded_total",
			Help:      "Points awarded by new deposits.",
		},
		[]string{"category"},
	)

	sagaPending = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deposits",
			Name:      "saga_pending_total",
			Help:      "Deposits left with a pending half after step retries were exhausted.",
		},
		[]string{"stage"},
	)

	balanceConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "version_conflicts_total",
			Help:      "Optimistic concurrency conflicts on balance writes.",
		},
		[]string{"kind"},
	)

	binConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bins",
			Name:      "version_conflicts_total",
			Help:      "Optimistic concurrency conflicts on bin writes.",
		},
	)

	binsFull = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bins",
			Name:      "became_full_total",
			Help:      "Number of top-ups that flipped a bin to full.",
		},
	)

	redemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redemptions",
			Name:      "requests_total",
			Help:      "Redemption attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		deposits,
		pointsAwarded,
		sagaPending,
		balanceConflicts,
		binConflicts,
		binsFull,
		redemptions,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry on a Fiber route.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
}

// Middleware records request counts and latencies keyed by the matched route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = apperr.HTTPStatus(err)
			}
		}
		route := c.Route().Path
		httpRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// RecordDeposit counts a recorded deposit and, for new ones, the points awarded.
func RecordDeposit(category string, points int64, replayed bool) {
	deposits.WithLabelValues(category, strconv.FormatBool(replayed)).Inc()
	if !replayed && points > 0 {
		pointsAwarded.WithLabelValues(category).Add(float64(points))
	}
}

// RecordSagaPending counts a deposit whose balance or bin half is still pending.
func RecordSagaPending(stage string) {
	sagaPending.WithLabelValues(stage).Inc()
}

// RecordBalanceConflict counts an optimistic conflict on a balance write.
func RecordBalanceConflict(kind string) {
	balanceConflicts.WithLabelValues(kind).Inc()
}

// RecordBinConflict counts an optimistic conflict on a bin write.
func RecordBinConflict() {
	binConflicts.Inc()
}

// RecordBinFull counts a bin flipping to full.
func RecordBinFull() {
	binsFull.Inc()
}

// RecordRedemption counts a redemption attempt by outcome label.
func RecordRedemption(outcome string) {
	redemptions.WithLabelValues(outcome).Inc()
}
