/*
Package raftlog wires the log, meta, and snap column families onto
hashicorp/raft's own storage interfaces, rather than hand-rolling the
append/truncate-suffix/purge-prefix/read/save-hard-state/install-snapshot
contract a Raft log store needs:

	operation              hashicorp/raft method (on the types here)
	────────────────────   ──────────────────────────────────────────
	append(entries)        raft.LogStore.StoreLog / StoreLogs
	truncate_suffix(i)     raft.LogStore.DeleteRange(i, LastIndex())
	purge_prefix(i)        raft.LogStore.DeleteRange(FirstIndex(), i)
	read(range)            raft.LogStore.GetLog (called per index by the
	                       library's replication loop)
	save_hard_state        raft.StableStore.Set / SetUint64
	install_snapshot       raft.SnapshotStore.Create + SnapshotSink,
	                       raft.SnapshotStore.Open for the follower side

The consensus core (hashicorp/raft itself) is the only writer through
these interfaces; pkg/node constructs them and hands them to
raft.NewRaft, and its only direct call is a read of LogStore.FirstIndex
when checking whether a prospective voter can still catch up from the
retained log.
*/
package raftlog
