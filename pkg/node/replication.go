package node

import (
	"context"
	"strconv"
	"time"

	"github.com/hashicorp/raft"

	"github.com/yeheng/conflux/pkg/metrics"
)

// replicationMonitor is a leader-only background poller: since
// hashicorp/raft does not expose per-follower match index outside the
// library, the leader instead asks each peer directly, over the same
// control-plane link ChangeMembership and AddLearner use, how far its
// own log has advanced.
type replicationMonitor struct {
	node     *Node
	interval time.Duration
	stopCh   chan struct{}
}

func newReplicationMonitor(n *Node, interval time.Duration) *replicationMonitor {
	return &replicationMonitor{node: n, interval: interval, stopCh: make(chan struct{})}
}

func (m *replicationMonitor) Start() {
	ticker := time.NewTicker(m.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				m.pollOnce()
			case <-m.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

func (m *replicationMonitor) Stop() {
	close(m.stopCh)
}

func (m *replicationMonitor) pollOnce() {
	if m.node.raft.State() != raft.Leader {
		return
	}
	stats := m.node.raft.Stats()
	leaderIndex, err := strconv.ParseUint(stats["last_log_index"], 10, 64)
	if err != nil {
		return
	}

	configFuture := m.node.raft.GetConfiguration()
	if err := configFuture.Error(); err != nil {
		return
	}

	selfID := raft.ServerID(strconv.FormatUint(m.node.id, 10))
	for _, srv := range configFuture.Configuration().Servers {
		if srv.ID == selfID {
			continue
		}
		peer, ok := m.node.peersByID[srv.ID]
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), m.node.cfg.Network.DialTimeout)
		client := m.node.peerClient(peer.ControlAddress)
		resp, err := client.GetMetrics(ctx, m.node.id)
		cancel()
		if err != nil {
			continue
		}
		lag := uint64(0)
		if leaderIndex > resp.LastLogIndex {
			lag = leaderIndex - resp.LastLogIndex
		}
		metrics.RecordReplicationLag(string(srv.ID), lag)
	}
}
