// Package observability provides Prometheus metrics for monitoring.
//
// The backfill runs as a batch job, so metrics live in a dedicated registry
// and are pushed to a Pushgateway when the run ends rather than scraped.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Sync metrics
	TransfersFetched   *prometheus.CounterVec
	TransactionsSaved  *prometheus.CounterVec
	TransfersFiltered  *prometheus.CounterVec
	DuplicatesSkipped  *prometheus.CounterVec
	PagesProcessed     *prometheus.CounterVec
	LastProcessedBlock *prometheus.GaugeVec
	CursorBlock        prometheus.Gauge

	// Latency metrics
	RPCCallLatency  *prometheus.HistogramVec
	RPCCallErrors   *prometheus.CounterVec
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Run metrics
	SyncRunsTotal      *prometheus.CounterVec
	SyncDuration       *prometheus.HistogramVec
	LastSuccessfulSync prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_backfill"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Sync metrics
		TransfersFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "transfers_fetched_total",
			Help:      "Total number of raw transfer records fetched from the chain data API",
		}, []string{"token"}),
		TransactionsSaved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "transactions_saved_total",
			Help:      "Total number of transactions newly inserted",
		}, []string{"token"}),
		TransfersFiltered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "transfers_filtered_total",
			Help:      "Total number of zero-value transfers dropped",
		}, []string{"token"}),
		DuplicatesSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duplicates_skipped_total",
			Help:      "Total number of transactions skipped because their hash was already stored",
		}, []string{"token"}),
		PagesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pages_processed_total",
			Help:      "Total number of API pages processed",
		}, []string{"token"}),
		LastProcessedBlock: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_processed_block",
			Help:      "Highest block persisted for a token in the current run",
		}, []string{"token"}),
		CursorBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "cursor_block",
			Help:      "Block committed to the resumable progress cursor",
		}),

		// Latency metrics
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "call_latency_seconds",
			Help:      "Chain data API and RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "call_errors_total",
			Help:      "Total number of failed chain data API and RPC calls",
		}, []string{"method"}),
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"operation"}),

		// Run metrics
		SyncRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Total number of backfill runs by mode and status",
		}, []string{"mode", "status"}),
		SyncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Backfill run duration in seconds",
			Buckets:   []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"mode"}),
		LastSuccessfulSync: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of the last successful full run",
		}),
	}
}

// Registry returns the registry all metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the metrics registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends every metric to a Pushgateway under the given job name,
// replacing the job's previous push.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	return push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx)
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// Handler returns an HTTP handler for the default metrics.
func Handler() http.Handler {
	return DefaultMetrics.Handler()
}

// RecordPage records the counters of one processed page.
func RecordPage(token string, fetched, saved, filtered, duplicates int) {
	DefaultMetrics.PagesProcessed.WithLabelValues(token).Inc()
	DefaultMetrics.TransfersFetched.WithLabelValues(token).Add(float64(fetched))
	DefaultMetrics.TransactionsSaved.WithLabelValues(token).Add(float64(saved))
	DefaultMetrics.TransfersFiltered.WithLabelValues(token).Add(float64(filtered))
	DefaultMetrics.DuplicatesSkipped.WithLabelValues(token).Add(float64(duplicates))
}

// UpdateLastProcessedBlock sets the highest block persisted for a token.
func UpdateLastProcessedBlock(token string, block uint64) {
	DefaultMetrics.LastProcessedBlock.WithLabelValues(token).Set(float64(block))
}

// RecordRPCCall records chain data API or RPC call latency and failures.
func RecordRPCCall(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordSyncRun records a finished run.
func RecordSyncRun(mode, status string, durationSeconds float64) {
	DefaultMetrics.SyncRunsTotal.WithLabelValues(mode, status).Inc()
	DefaultMetrics.SyncDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordCursorCommit records a committed progress cursor.
func RecordCursorCommit(block uint64, unixSeconds int64) {
	DefaultMetrics.CursorBlock.Set(float64(block))
	DefaultMetrics.LastSuccessfulSync.Set(float64(unixSeconds))
}
