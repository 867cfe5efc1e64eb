// Package metrics provides Prometheus instrumentation for the name node and
// storage nodes. All constructors take an explicit registerer; a nil metrics
// value disables collection with zero overhead, so callers never need to
// guard their recording sites.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NewRegistry returns a registry pre-loaded with the standard process and Go
// runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return reg
}

var commandDurationBuckets = []float64{
	0.001, // 1ms - in-memory lookups
	0.005,
	0.01,
	0.05,
	0.1,
	0.5,
	1,  // 1s - write sessions
	5,  // long streams
	30, // client timeout ceiling
}

// StorageNodeMetrics instruments the storage-node command loop.
type StorageNodeMetrics struct {
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	writeSessions   prometheus.Counter
	filesStored     prometheus.Gauge
}

func NewStorageNodeMetrics(reg prometheus.Registerer) *StorageNodeMetrics {
	return &StorageNodeMetrics{
		commandsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexfs_storage_commands_total",
				Help: "Total commands handled by the storage node, by verb",
			},
			[]string{"verb"},
		),
		commandDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lexfs_storage_command_duration_seconds",
				Help:    "Duration of storage-node commands in seconds",
				Buckets: commandDurationBuckets,
			},
			[]string{"verb"},
		),
		writeSessions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "lexfs_storage_write_sessions_total",
				Help: "Total committed write sessions",
			},
		),
		filesStored: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "lexfs_storage_files_stored",
				Help: "Number of files currently stored on this node",
			},
		),
	}
}

func (m *StorageNodeMetrics) ObserveCommand(verb string, d time.Duration) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(verb).Inc()
	m.commandDuration.WithLabelValues(verb).Observe(d.Seconds())
}

func (m *StorageNodeMetrics) IncWriteSessions() {
	if m == nil {
		return
	}
	m.writeSessions.Inc()
}

func (m *StorageNodeMetrics) SetFilesStored(n int) {
	if m == nil {
		return
	}
	m.filesStored.Set(float64(n))
}

// NameNodeMetrics instruments the name-node session loop and cluster state.
type NameNodeMetrics struct {
	commandsTotal     *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	sessionsActive    prometheus.Gauge
	storageNodesLive  prometheus.Gauge
	redirectsTotal    prometheus.Counter
	heartbeatFailures prometheus.Counter
}

func NewNameNodeMetrics(reg prometheus.Registerer) *NameNodeMetrics {
	return &NameNodeMetrics{
		commandsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexfs_namenode_commands_total",
				Help: "Total client commands handled by the name node, by verb",
			},
			[]string{"verb"},
		),
		commandDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lexfs_namenode_command_duration_seconds",
				Help:    "Duration of name-node commands in seconds",
				Buckets: commandDurationBuckets,
			},
			[]string{"verb"},
		),
		sessionsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "lexfs_namenode_client_sessions_active",
				Help: "Currently connected client sessions",
			},
		),
		storageNodesLive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "lexfs_namenode_storage_nodes_live",
				Help: "Storage nodes currently considered live",
			},
		),
		redirectsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "lexfs_namenode_redirects_total",
				Help: "Total client commands answered with a storage-node redirect",
			},
		),
		heartbeatFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "lexfs_namenode_heartbeat_failures_total",
				Help: "Storage nodes dropped after missing heartbeats",
			},
		),
	}
}

func (m *NameNodeMetrics) ObserveCommand(verb string, d time.Duration) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(verb).Inc()
	m.commandDuration.WithLabelValues(verb).Observe(d.Seconds())
}

func (m *NameNodeMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func (m *NameNodeMetrics) SetLiveNodes(n int) {
	if m == nil {
		return
	}
	m.storageNodesLive.Set(float64(n))
}

func (m *NameNodeMetrics) IncRedirect() {
	if m == nil {
		return
	}
	m.redirectsTotal.Inc()
}

func (m *NameNodeMetrics) IncHeartbeatFailure() {
	if m == nil {
		return
	}
	m.heartbeatFailures.Inc()
}

// ConnectionMetrics instruments the generic TCP accept loop. It satisfies
// the adapter's MetricsRecorder.
type ConnectionMetrics struct {
	accepted prometheus.Counter
	closed   prometheus.Counter
	active   prometheus.Gauge
}

func NewConnectionMetrics(reg prometheus.Registerer, role string) *ConnectionMetrics {
	labels := prometheus.Labels{"role": role}
	return &ConnectionMetrics{
		accepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name:        "lexfs_connections_accepted_total",
				Help:        "Total TCP connections accepted",
				ConstLabels: labels,
			},
		),
		closed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name:        "lexfs_connections_closed_total",
				Help:        "Total TCP connections closed",
				ConstLabels: labels,
			},
		),
		active: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name:        "lexfs_connections_active",
				Help:        "Currently open TCP connections",
				ConstLabels: labels,
			},
		),
	}
}

func (m *ConnectionMetrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

func (m *ConnectionMetrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.closed.Inc()
}

func (m *ConnectionMetrics) SetActiveConnections(n int32) {
	if m == nil {
		return
	}
	m.active.Set(float64(n))
}
