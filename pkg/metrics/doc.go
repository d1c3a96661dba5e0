/*
Package metrics exposes Conflux's Prometheus surface.

Gauges and counters are package-level vars registered in init(), the
same shape as every metrics package in this codebase's lineage. Collector
polls a *raft.Raft (via the RaftStatsSource interface, satisfied by
raft.Raft.Stats()) and a *limiter.Limiter on a fixed tick and republishes
what it finds; per-follower replication lag arrives separately through
RecordReplicationLag, pushed by the leader's control-plane poller rather
than pulled from hashicorp/raft, which keeps no public per-follower match
index.

	reg := metrics.NewCollector(raftNode, lim, 15*time.Second)
	reg.Start()
	defer reg.Stop()

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
