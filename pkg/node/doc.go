/*
Package node wires every other Conflux package into one running cluster
member:

	storage     -- bbolt app column family
	raftlog     -- log/meta/snap column families (raft-boltdb + FileSnapshotStore)
	statemachine -- the raft.FSM
	limiter     -- per-request admission control
	validate    -- pre-acceptance checks on nodes, timeouts, and topology
	network     -- ClientForward/AddLearner/ChangeMembership/GetMetrics
	log         -- zerolog, plus the hclog bridge raft.Config.Logger wants
	metrics     -- the Prometheus surface

New constructs everything but does not start serving; Start begins the
control plane and background collectors. A fresh cluster calls Initialize
once; an existing cluster is joined by having its leader call AddLearner
then ChangeMembership for the new member.

Propose and the HandleClientForward RPC handler are the two entry points
into Raft: a direct call on the leader applies locally, a call on a
follower forwards over the control plane, and a handler invocation is
already-forwarded and applies locally, unless Raft reports that this
node is no longer leader, in which case it forwards once more to the
current leader.
*/
package node
