// Package metrics exports engine and storage activity to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	pebblestore "github.com/rzbill/flolog/internal/storage/pebble"
	"github.com/rzbill/flolog/internal/streamlog"
)

const namespace = "flolog"

// Metrics implements streamlog.Observer and pebblestore.MetricsHook.
type Metrics struct {
	AppendedRecords *prometheus.CounterVec
	AppendedBytes   *prometheus.CounterVec
	ConsumedRecords *prometheus.CounterVec
	Commits         *prometheus.CounterVec
	Rebalances      *prometheus.CounterVec
	OpenTailers     *prometheus.GaugeVec

	StorageOps      *prometheus.CounterVec
	StorageBytes    *prometheus.CounterVec
	StorageDuration *prometheus.HistogramVec
}

var (
	_ streamlog.Observer      = (*Metrics)(nil)
	_ pebblestore.MetricsHook = (*Metrics)(nil)
)

// New registers the metrics on registerer. A nil registerer uses a fresh
// registry that is never exposed, which suits tests.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	f := promauto.With(registerer)
	return &Metrics{
		AppendedRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appended_records_total",
			Help:      "Records appended per log partition.",
		}, []string{"log", "partition"}),
		AppendedBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appended_bytes_total",
			Help:      "Payload bytes appended per log.",
		}, []string{"log"}),
		ConsumedRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consumed_records_total",
			Help:      "Records returned to tailers per log and group.",
		}, []string{"log", "group"}),
		Commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "committed_partitions_total",
			Help:      "Partition offsets committed per group.",
		}, []string{"group"}),
		Rebalances: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebalances_total",
			Help:      "Assignment changes reported to subscribed tailers.",
		}, []string{"group"}),
		OpenTailers: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_tailers",
			Help:      "Tailers currently open per group.",
		}, []string{"group"}),
		StorageOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "ops_total",
			Help:      "Offset store operations.",
		}, []string{"op"}),
		StorageBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "bytes_total",
			Help:      "Offset store bytes read or written.",
		}, []string{"op"}),
		StorageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "op_duration_seconds",
			Help:      "Offset store operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"op"}),
	}
}

func (m *Metrics) Appended(p streamlog.LogPartition, bytes int) {
	m.AppendedRecords.WithLabelValues(p.Name, partitionLabel(p.Partition)).Inc()
	m.AppendedBytes.WithLabelValues(p.Name).Add(float64(bytes))
}

func (m *Metrics) Consumed(group string, p streamlog.LogPartition, _ int) {
	m.ConsumedRecords.WithLabelValues(p.Name, group).Inc()
}

func (m *Metrics) Committed(group string, partitions int) {
	m.Commits.WithLabelValues(group).Add(float64(partitions))
}

func (m *Metrics) TailerOpened(group string) { m.OpenTailers.WithLabelValues(group).Inc() }
func (m *Metrics) TailerClosed(group string) { m.OpenTailers.WithLabelValues(group).Dec() }
func (m *Metrics) Rebalanced(group string)   { m.Rebalances.WithLabelValues(group).Inc() }

func (m *Metrics) observe(op string, elapsed time.Duration, bytes int) {
	m.StorageOps.WithLabelValues(op).Inc()
	m.StorageBytes.WithLabelValues(op).Add(float64(bytes))
	m.StorageDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveWrite(elapsed time.Duration, bytes int) { m.observe("write", elapsed, bytes) }
func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int)  { m.observe("read", elapsed, bytes) }

func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	m.observe("batch", elapsed, bytes)
}

func partitionLabel(p int) string { return strconv.Itoa(p) }
