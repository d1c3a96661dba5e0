// Package metrics exposes Conflux's operational state: Raft position
// (term, log index, applied index, leader, state),
// per-follower replication lag, apply throughput, rejection counters,
// and the Resource Limiter's in-use/rejected gauges, all through
// github.com/prometheus/client_golang in the package-level-vars idiom.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CurrentTerm = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "conflux_raft_current_term",
		Help: "Current Raft term observed by this node",
	})

	LastLogIndex = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "conflux_raft_last_log_index",
		Help: "Index of the last entry written to this node's Raft log",
	})

	LastApplied = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "conflux_raft_last_applied_index",
		Help: "Index of the last log entry applied to the state machine",
	})

	IsLeader = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "conflux_raft_is_leader",
		Help: "Whether this node is the current Raft leader (1 = leader, 0 = not)",
	})

	RaftState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "conflux_raft_state",
		Help: "This node's Raft FSM state (1 for the current state, 0 for the others)",
	}, []string{"state"})

	NumPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "conflux_raft_peers_total",
		Help: "Number of voting peers in the current configuration",
	})

	ReplicationLag = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "conflux_raft_replication_lag",
		Help: "Log entries a follower is behind the leader's last log index, as observed by the leader",
	}, []string{"server_id"})

	ApplyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "conflux_apply_duration_seconds",
		Help:    "Time taken to apply one committed log entry to the state machine",
		Buckets: prometheus.DefBuckets,
	})

	ApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conflux_apply_total",
		Help: "Total log entries applied, by command op and outcome",
	}, []string{"op", "outcome"})

	ProposeRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conflux_propose_rejected_total",
		Help: "Total proposals rejected before being committed, by reason",
	}, []string{"reason"})

	LimiterInUse = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "conflux_limiter_in_use",
		Help: "Outstanding admitted requests per resource class",
	}, []string{"class"})

	// LimiterRejectedTotal mirrors the Limiter's own cumulative rejection
	// counters (pkg/limiter.Stats), so it is a Gauge set from that
	// snapshot each collection rather than a Counter incremented at each
	// call site — the two values never drift apart this way.
	LimiterRejectedTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "conflux_limiter_rejected_total",
		Help: "Total requests refused admission per resource class since startup",
	}, []string{"class"})

	QueryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "conflux_query_duration_seconds",
		Help:    "Time taken to resolve a release query against a config's labels",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		CurrentTerm,
		LastLogIndex,
		LastApplied,
		IsLeader,
		RaftState,
		NumPeers,
		ReplicationLag,
		ApplyDuration,
		ApplyTotal,
		ProposeRejectedTotal,
		LimiterInUse,
		LimiterRejectedTotal,
		QueryDuration,
	)
}

// Handler returns the Prometheus HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
