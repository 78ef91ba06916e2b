package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	operationAccounts     = "accounts"
	operationTransactions = "transactions"
	operationAdd          = "add"
)

// Metrics are the store's prometheus collectors.
type Metrics struct {
	refreshTotal     prometheus.Counter
	refreshDuration  prometheus.Histogram
	lastRefresh      prometheus.Gauge
	fetchFailures    *prometheus.CounterVec
	violations       prometheus.Counter
	balancesUpdated  prometheus.Counter
	snapshotSaves    *prometheus.CounterVec
	trackedAccounts  *prometheus.GaugeVec
	registeredTokens prometheus.Gauge
}

// NewMetrics creates the store collectors and registers them with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		refreshTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "knot_refresh_total",
			Help: "Total refresh cycles run",
		}),
		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "knot_refresh_duration_seconds",
			Help:    "Refresh cycle duration in seconds, fetch through persist",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		lastRefresh: factory.NewGauge(prometheus.GaugeOpts{
			Name: "knot_last_refresh_timestamp_seconds",
			Help: "Unix time the last refresh cycle completed",
		}),
		fetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "knot_credential_fetch_failures_total",
			Help: "Total failed remote fetches by operation",
		}, []string{"operation"}),
		violations: factory.NewCounter(prometheus.CounterOpts{
			Name: "knot_refresh_violations_total",
			Help: "Total refreshed accounts rejected because the store did not expect them",
		}),
		balancesUpdated: factory.NewCounter(prometheus.CounterOpts{
			Name: "knot_balances_updated_total",
			Help: "Total account balances replaced by refresh",
		}),
		snapshotSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "knot_snapshot_saves_total",
			Help: "Total snapshot saves by result",
		}, []string{"result"}),
		trackedAccounts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "knot_tracked_accounts",
			Help: "Tracked accounts by partition",
		}, []string{"partition"}),
		registeredTokens: factory.NewGauge(prometheus.GaugeOpts{
			Name: "knot_registered_credentials",
			Help: "Registered access credentials",
		}),
	}
}
