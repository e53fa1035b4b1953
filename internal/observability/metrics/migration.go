package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MigrationMetrics contains Prometheus metrics for a migration run.
type MigrationMetrics struct {
	recordsTotal         *prometheus.CounterVec
	userCollectionsTotal prometheus.Counter
	usersTotal           *prometheus.CounterVec
	transactionsTotal    *prometheus.CounterVec
	transactionDuration  *prometheus.HistogramVec
	shardDuration        *prometheus.HistogramVec
	chunkSize            prometheus.Histogram

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewMigrationMetrics creates and registers new migration metrics
func NewMigrationMetrics(registry prometheus.Registerer) (*MigrationMetrics, error) {
	m := &MigrationMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MigrationMetrics) initMetrics() {
	m.recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncmigrate_records_total",
			Help: "Records processed by write outcome",
		},
		[]string{"outcome"},
	)

	m.userCollectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "syncmigrate_user_collections_total",
			Help: "User collection summary rows upserted",
		},
	)

	m.usersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncmigrate_users_total",
			Help: "Users processed by status",
		},
		[]string{"status"},
	)

	m.transactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncmigrate_transactions_total",
			Help: "Target store transactions by phase and status",
		},
		[]string{"phase", "status"},
	)

	m.transactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syncmigrate_transaction_duration_seconds",
			Help:    "Time taken by target store transactions",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		},
		[]string{"phase"},
	)

	m.shardDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syncmigrate_shard_duration_seconds",
			Help:    "Time taken to migrate a legacy shard",
			Buckets: prometheus.ExponentialBuckets(BucketStart1s, BucketFactor2, BucketCount15),
		},
		[]string{"shard"},
	)

	m.chunkSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "syncmigrate_chunk_records",
			Help:    "Records per written chunk",
			Buckets: prometheus.ExponentialBuckets(1, BucketFactor2, 12),
		},
	)

	m.collectors = []prometheus.Collector{
		m.recordsTotal,
		m.userCollectionsTotal,
		m.usersTotal,
		m.transactionsTotal,
		m.transactionDuration,
		m.shardDuration,
		m.chunkSize,
	}
}

// Describe implements the Collector interface
func (m *MigrationMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *MigrationMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordRecords adds n records with the given outcome.
func (m *MigrationMetrics) RecordRecords(outcome string, n int) {
	if n > 0 {
		m.recordsTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// RecordUserCollections adds n upserted summary rows.
func (m *MigrationMetrics) RecordUserCollections(n int) {
	if n > 0 {
		m.userCollectionsTotal.Add(float64(n))
	}
}

// RecordUser counts a processed user.
func (m *MigrationMetrics) RecordUser(status string) {
	m.usersTotal.WithLabelValues(status).Inc()
}

// RecordTransaction records a committed or failed transaction.
func (m *MigrationMetrics) RecordTransaction(phase string, err error, duration time.Duration) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.transactionsTotal.WithLabelValues(phase, status).Inc()
	m.transactionDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordShard records the time taken by a shard.
func (m *MigrationMetrics) RecordShard(shard int, duration time.Duration) {
	m.shardDuration.WithLabelValues(strconv.Itoa(shard)).Observe(duration.Seconds())
}

// RecordChunk records the size of a written chunk.
func (m *MigrationMetrics) RecordChunk(records int) {
	m.chunkSize.Observe(float64(records))
}
