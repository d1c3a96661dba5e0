package metrics

import (
	"strconv"
	"time"

	"github.com/yeheng/conflux/pkg/limiter"
)

// RaftStatsSource is satisfied by *raft.Raft (Stats() returns the
// library's own string-keyed snapshot: term, last_log_index,
// applied_index, state, num_peers, ...).
type RaftStatsSource interface {
	Stats() map[string]string
}

// LimiterStatsSource is satisfied by *limiter.Limiter.
type LimiterStatsSource interface {
	Stats() limiter.Stats
}

var raftStates = []string{"Follower", "Candidate", "Leader", "Shutdown"}

// Collector polls a node's Raft instance and its Resource Limiter on a
// fixed interval and republishes what it finds as Prometheus gauges.
type Collector struct {
	raft     RaftStatsSource
	limiter  LimiterStatsSource
	interval time.Duration
	stopCh   chan struct{}
}

func NewCollector(raft RaftStatsSource, lim LimiterStatsSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{raft: raft, limiter: lim, interval: interval, stopCh: make(chan struct{})}
}

// Start begins periodic collection in a background goroutine. It
// collects once immediately so /metrics is never empty right after
// startup.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectRaft()
	c.collectLimiter()
}

func (c *Collector) collectRaft() {
	if c.raft == nil {
		return
	}
	stats := c.raft.Stats()

	if term, err := strconv.ParseUint(stats["term"], 10, 64); err == nil {
		CurrentTerm.Set(float64(term))
	}
	if idx, err := strconv.ParseUint(stats["last_log_index"], 10, 64); err == nil {
		LastLogIndex.Set(float64(idx))
	}
	if idx, err := strconv.ParseUint(stats["applied_index"], 10, 64); err == nil {
		LastApplied.Set(float64(idx))
	}
	if peers, err := strconv.ParseUint(stats["num_peers"], 10, 64); err == nil {
		NumPeers.Set(float64(peers))
	}

	state := stats["state"]
	for _, s := range raftStates {
		if s == state {
			RaftState.WithLabelValues(s).Set(1)
		} else {
			RaftState.WithLabelValues(s).Set(0)
		}
	}
	if state == "Leader" {
		IsLeader.Set(1)
	} else {
		IsLeader.Set(0)
	}
}

func (c *Collector) collectLimiter() {
	if c.limiter == nil {
		return
	}
	stats := c.limiter.Stats()
	for class, cs := range stats.ByClass {
		LimiterInUse.WithLabelValues(string(class)).Set(float64(cs.InUse))
		LimiterRejectedTotal.WithLabelValues(string(class)).Set(float64(cs.Rejected))
	}
}

// RecordReplicationLag publishes one follower's lag behind the leader's
// last log index, as reported by the leader's control-plane poller
// (pkg/network's GetMetrics RPC) rather than anything read from
// hashicorp/raft directly, which does not expose per-follower match
// index outside the library.
func RecordReplicationLag(serverID string, lag uint64) {
	ReplicationLag.WithLabelValues(serverID).Set(float64(lag))
}
