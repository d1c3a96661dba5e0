// Package node is Conflux's composition root: it wires
// pkg/storage, pkg/raftlog, pkg/statemachine, pkg/limiter, pkg/validate,
// pkg/network, pkg/log, and pkg/metrics into one running cluster member,
// grounded on the same Bootstrap/AddVoter/RemoveServer/IsLeader/
// GetRaftStats/Shutdown shape this codebase's Raft-backed manager has
// always used, generalized from containers and services to configs and
// releases.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	"github.com/rs/zerolog"

	confluxlog "github.com/yeheng/conflux/pkg/log"
	"github.com/yeheng/conflux/pkg/limiter"
	"github.com/yeheng/conflux/pkg/metrics"
	"github.com/yeheng/conflux/pkg/network"
	"github.com/yeheng/conflux/pkg/raftlog"
	"github.com/yeheng/conflux/pkg/statemachine"
	"github.com/yeheng/conflux/pkg/storage"
	"github.com/yeheng/conflux/pkg/types"
	"github.com/yeheng/conflux/pkg/validate"
)

// Node is one Conflux cluster member.
type Node struct {
	id     uint64
	cfg    *Config
	logger zerolog.Logger

	store     *storage.Store
	logStore  *raftlog.LogStore
	snapStore *raftlog.SnapshotStore
	fsm       *statemachine.FSM

	raft      *raft.Raft
	transport *raft.NetworkTransport

	limiter   *limiter.Limiter
	validator *validate.ComprehensiveValidator

	ctrlServer *network.Server
	peersByID  map[raft.ServerID]PeerConfig

	collector  *metrics.Collector
	replicator *replicationMonitor

	mu             sync.Mutex
	changeInFlight bool

	peerClientsMu sync.Mutex
	peerClients   map[string]*network.Client
}

// New constructs a Node and its Raft instance but does not start serving
// traffic; call Start (and, for a fresh cluster, Initialize) next.
func New(cfg *Config) (*Node, error) {
	logger := confluxlog.WithComponent("node").With().Uint64("node_id", cfg.NodeID).Logger()

	storeCfg := cfg.Storage
	storeCfg.DataDir = cfg.DataDir
	store, err := storage.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: open storage: %v", ErrStorageFault, err)
	}

	logStore, err := raftlog.NewLogStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("%w: open log store: %v", ErrStorageFault, err)
	}

	snapStore, err := raftlog.NewSnapshotStore(cfg.DataDir, cfg.Raft.SnapshotRetain, confluxlog.Writer{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("%w: open snapshot store: %v", ErrStorageFault, err)
	}

	fsm := statemachine.New(store)

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(strconv.FormatUint(cfg.NodeID, 10))
	raftCfg.Logger = confluxlog.NewHCLogAdapter(logger, "raft")
	if cfg.Raft.HeartbeatIntervalMS > 0 {
		raftCfg.HeartbeatTimeout = time.Duration(cfg.Raft.HeartbeatIntervalMS) * time.Millisecond
	}
	if cfg.Raft.ElectionTimeoutMinMS > 0 {
		// hashicorp/raft takes one ElectionTimeout and randomizes within
		// [t, 2t] itself; election_timeout_max only bounds the validator's
		// sanity check (pkg/validate.TimeoutValidator), it has no separate
		// knob on raft.Config.
		raftCfg.ElectionTimeout = time.Duration(cfg.Raft.ElectionTimeoutMinMS) * time.Millisecond
	}

	transport, err := raft.NewTCPTransport(cfg.Address, nil, 3, 10*time.Second, confluxlog.Writer{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("%w: open raft transport: %v", ErrStorageFault, err)
	}

	raftNode, err := raft.NewRaft(raftCfg, fsm, logStore, logStore, snapStore, transport)
	if err != nil {
		return nil, fmt.Errorf("%w: start raft: %v", ErrStorageFault, err)
	}

	peersByID := make(map[raft.ServerID]PeerConfig, len(cfg.Network.Peers))
	for _, p := range cfg.Network.Peers {
		peersByID[raft.ServerID(strconv.FormatUint(p.NodeID, 10))] = p
	}

	n := &Node{
		id:          cfg.NodeID,
		cfg:         cfg,
		logger:      logger,
		store:       store,
		logStore:    logStore,
		snapStore:   snapStore,
		fsm:         fsm,
		raft:        raftNode,
		transport:   transport,
		limiter:     limiter.New(cfg.Limits),
		validator:   validate.NewComprehensiveValidator(validate.DefaultValidationConfig()),
		peersByID:   peersByID,
		peerClients: make(map[string]*network.Client),
	}

	ctrlServer, err := network.NewServer(cfg.Network.ControlPlaneAddress, n, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: open control plane listener: %v", ErrStorageFault, err)
	}
	n.ctrlServer = ctrlServer
	n.collector = metrics.NewCollector(raftNode, n.limiter, 15*time.Second)
	n.replicator = newReplicationMonitor(n, 5*time.Second)

	return n, nil
}

// Start begins serving the control plane and background collectors. It
// does not block.
func (n *Node) Start() error {
	go func() {
		if err := n.ctrlServer.Serve(); err != nil {
			n.logger.Error().Err(err).Msg("control plane server stopped")
		}
	}()
	n.collector.Start()
	n.replicator.Start()
	return nil
}

// Initialize bootstraps a brand-new cluster with the given voter set. It
// is a no-op error (BootstrapCluster itself rejects it) once the Raft
// log already has entries, matching Raft's one-time bootstrap rule.
func (n *Node) Initialize(members []validate.Member) error {
	if _, err := n.validator.ValidateCluster(members, n.timeouts(), false); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	servers := make([]raft.Server, 0, len(members))
	for _, m := range members {
		servers = append(servers, raft.Server{
			ID:      raft.ServerID(strconv.FormatUint(m.NodeID, 10)),
			Address: raft.ServerAddress(m.Address),
		})
	}
	future := n.raft.BootstrapCluster(raft.Configuration{Servers: servers})
	if err := future.Error(); err != nil {
		return fmt.Errorf("%w: bootstrap: %v", ErrStorageFault, err)
	}
	return nil
}

// AddLearner adds a non-voting member: a learner catches up on the log
// before ChangeMembership promotes it to voter.
func (n *Node) AddLearner(ctx context.Context, nodeID uint64, address string) error {
	if n.raft.State() != raft.Leader {
		return ErrNotLeader
	}
	if err := n.validator.Node.ValidateNode(nodeID, address); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	future := n.raft.AddNonvoter(raft.ServerID(strconv.FormatUint(nodeID, 10)), raft.ServerAddress(address), 0, 0)
	if err := future.Error(); err != nil {
		return fmt.Errorf("%w: add learner: %v", ErrStorageFault, err)
	}
	return nil
}

// ChangeMembership reconciles the current voter set to exactly members,
// one AddVoter/RemoveServer at a time — each such call is hashicorp/raft's
// own atomic, joint-consensus-safe unit of membership change, so a
// multi-member swap here is always a sequence of individually safe steps
// rather than a single unsafe jump.
func (n *Node) ChangeMembership(ctx context.Context, members []validate.Member) error {
	if n.raft.State() != raft.Leader {
		return ErrNotLeader
	}

	n.mu.Lock()
	if n.changeInFlight {
		n.mu.Unlock()
		return fmt.Errorf("%w: membership change already in flight", ErrConflict)
	}
	n.changeInFlight = true
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		n.changeInFlight = false
		n.mu.Unlock()
	}()

	if _, err := n.validator.ValidateCluster(members, n.timeouts(), false); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	configFuture := n.raft.GetConfiguration()
	if err := configFuture.Error(); err != nil {
		return fmt.Errorf("%w: read configuration: %v", ErrStorageFault, err)
	}

	wanted := make(map[raft.ServerID]raft.ServerAddress, len(members))
	for _, m := range members {
		wanted[raft.ServerID(strconv.FormatUint(m.NodeID, 10))] = raft.ServerAddress(m.Address)
	}

	existing := make(map[raft.ServerID]raft.Server, len(configFuture.Configuration().Servers))
	for _, srv := range configFuture.Configuration().Servers {
		existing[srv.ID] = srv
		if _, keep := wanted[srv.ID]; !keep {
			if err := n.raft.RemoveServer(srv.ID, 0, 0).Error(); err != nil {
				return fmt.Errorf("%w: remove server %s: %v", ErrStorageFault, srv.ID, err)
			}
		}
	}
	for id, addr := range wanted {
		if srv, alreadyVoter := existing[id]; !alreadyVoter || srv.Suffrage != raft.Voter {
			if err := n.ensureCaughtUp(ctx, id); err != nil {
				return err
			}
		}
		if err := n.raft.AddVoter(id, addr, 0, 0).Error(); err != nil {
			return fmt.Errorf("%w: add voter %s: %v", ErrStorageFault, id, err)
		}
	}
	return nil
}

// ensureCaughtUp rejects promoting id to voter if its log has not yet
// replayed past this leader's oldest retained entry. AppendEntries
// replication cannot hand a follower log it no longer has; a follower
// that far behind needs an InstallSnapshot first, so AddVoter is not
// attempted against it. Peers this node has no control-plane address
// for, or whose lag cannot be determined, are let through to AddVoter
// unchanged — hashicorp/raft's own catch-up tracking is the fallback.
func (n *Node) ensureCaughtUp(ctx context.Context, id raft.ServerID) error {
	peer, ok := n.peersByID[id]
	if !ok {
		return nil
	}
	first, err := n.logStore.FirstIndex()
	if err != nil || first <= 1 {
		return nil
	}
	client := n.peerClient(peer.ControlAddress)
	resp, err := client.GetMetrics(ctx, n.id)
	if err != nil {
		return nil
	}
	if resp.LastLogIndex < first-1 {
		return fmt.Errorf("%w: peer %s last log index %d is behind leader's retained log start %d", ErrSnapshotRequired, id, resp.LastLogIndex, first)
	}
	return nil
}

// Propose submits cmd to the cluster. On a follower it transparently
// forwards the proposal to the current leader over pkg/network's
// ClientForward RPC; callers never need to discover the leader
// themselves.
func (n *Node) Propose(ctx context.Context, cmd types.Command) (*statemachine.Result, error) {
	permit, err := n.limiter.Acquire(limiter.ClassWrite)
	if err != nil {
		metrics.ProposeRejectedTotal.WithLabelValues("resource_exhausted").Inc()
		return nil, fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}
	defer permit.Release()

	if n.raft.State() == raft.Leader {
		return n.applyLocal(ctx, cmd)
	}
	return n.forwardPropose(ctx, cmd)
}

func (n *Node) applyLocal(ctx context.Context, cmd types.Command) (*statemachine.Result, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("node: marshal command: %w", err)
	}

	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			timeout = d
		} else {
			return nil, ErrCancelled
		}
	}

	timer := metrics.NewTimer()
	future := n.raft.Apply(data, timeout)
	err = future.Error()
	timer.ObserveDuration(metrics.ApplyDuration)
	if err != nil {
		if errors.Is(err, raft.ErrNotLeader) {
			return n.forwardPropose(ctx, cmd)
		}
		metrics.ProposeRejectedTotal.WithLabelValues("storage_fault").Inc()
		return nil, fmt.Errorf("%w: %v", ErrStorageFault, err)
	}
	result, ok := future.Response().(*statemachine.Result)
	if !ok {
		return nil, fmt.Errorf("node: unexpected apply response type %T", future.Response())
	}
	op := string(cmd.Op)
	outcome := "applied"
	if result.Err != nil {
		outcome = "rejected"
	}
	metrics.ApplyTotal.WithLabelValues(op, outcome).Inc()
	if result.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConflict, result.Err)
	}
	return result, nil
}

func (n *Node) forwardPropose(ctx context.Context, cmd types.Command) (*statemachine.Result, error) {
	_, leaderID := n.raft.LeaderWithID()
	if leaderID == "" {
		metrics.ProposeRejectedTotal.WithLabelValues("no_leader").Inc()
		return nil, ErrNotLeader
	}
	peer, ok := n.peersByID[leaderID]
	if !ok {
		metrics.ProposeRejectedTotal.WithLabelValues("no_leader").Inc()
		return nil, fmt.Errorf("%w: no control address known for leader %s", ErrNotLeader, leaderID)
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("node: marshal command: %w", err)
	}

	client := n.peerClient(peer.ControlAddress)
	resp, err := client.ClientForward(ctx, n.id, data)
	if err != nil {
		metrics.ProposeRejectedTotal.WithLabelValues("network").Inc()
		return nil, fmt.Errorf("%w: %v", ErrNetworkTransient, err)
	}

	var wire proposeResultWire
	if err := json.Unmarshal(resp.Result, &wire); err != nil {
		return nil, fmt.Errorf("node: decode forwarded result: %w", err)
	}
	if wire.Err != "" {
		return nil, fmt.Errorf("%w: %v", ErrConflict, errors.New(wire.Err))
	}
	return &statemachine.Result{Config: wire.Config, Version: wire.Version}, nil
}

// Query resolves the release a client with the given labels should
// receive, via types.Config.FindMatchingRelease. A non-strict read is
// served from this node's own locally-applied state, trading
// linearizability for latency — acceptable for a configuration store,
// whose entries lag at most one heartbeat interval behind the leader on
// a healthy follower. When strict is true and this node is not the
// current leader, the read is instead forwarded to the leader over the
// same control-plane link Propose uses, so the caller observes the
// leader's own applied state.
func (n *Node) Query(ctx context.Context, ns types.ConfigNamespace, name string, clientLabels map[string]string, strict bool) (*types.Release, *types.ConfigVersion, error) {
	if strict && n.raft.State() != raft.Leader {
		return n.forwardQuery(ctx, ns, name, clientLabels)
	}
	return n.queryLocal(ns, name, clientLabels)
}

func (n *Node) queryLocal(ns types.ConfigNamespace, name string, clientLabels map[string]string) (*types.Release, *types.ConfigVersion, error) {
	permit, err := n.limiter.Acquire(limiter.ClassRead)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}
	defer permit.Release()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.QueryDuration)

	cfg, err := n.store.GetConfigByName(ns, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrStorageFault, err)
	}
	release := cfg.FindMatchingRelease(clientLabels)
	if release == nil {
		return nil, nil, fmt.Errorf("%w: no release matches the given labels and no default release is set", ErrConflict)
	}
	version, err := n.store.GetVersion(release.VersionID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStorageFault, err)
	}
	return release, version, nil
}

func (n *Node) forwardQuery(ctx context.Context, ns types.ConfigNamespace, name string, clientLabels map[string]string) (*types.Release, *types.ConfigVersion, error) {
	_, leaderID := n.raft.LeaderWithID()
	if leaderID == "" {
		return nil, nil, ErrNotLeader
	}
	peer, ok := n.peersByID[leaderID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no control address known for leader %s", ErrNotLeader, leaderID)
	}

	data, err := json.Marshal(queryRequestWire{Namespace: ns, Name: name, ClientLabels: clientLabels})
	if err != nil {
		return nil, nil, fmt.Errorf("node: marshal query: %w", err)
	}

	client := n.peerClient(peer.ControlAddress)
	resp, err := client.Query(ctx, n.id, data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNetworkTransient, err)
	}

	var wire queryResultWire
	if err := json.Unmarshal(resp.Result, &wire); err != nil {
		return nil, nil, fmt.Errorf("node: decode forwarded query result: %w", err)
	}
	if wire.Err != "" {
		return nil, nil, fmt.Errorf("%w: %v", ErrConflict, errors.New(wire.Err))
	}
	return wire.Release, wire.Version, nil
}

// IsLeader reports whether this node currently holds leadership.
func (n *Node) IsLeader() bool {
	return n.raft.State() == raft.Leader
}

// LeaderHint returns the current leader's node id and raft address, for
// a caller deciding where to retry a rejected proposal.
func (n *Node) LeaderHint() (nodeID uint64, raftAddress string, ok bool) {
	addr, id := n.raft.LeaderWithID()
	if id == "" {
		return 0, "", false
	}
	parsed, err := strconv.ParseUint(string(id), 10, 64)
	if err != nil {
		return 0, string(addr), true
	}
	return parsed, string(addr), true
}

// Stats exposes hashicorp/raft's own string-keyed stats snapshot, so
// pkg/metrics.Collector can poll this node without importing raft itself.
func (n *Node) Stats() map[string]string {
	return n.raft.Stats()
}

// LimiterStats exposes the Resource Limiter's point-in-time counters.
func (n *Node) LimiterStats() limiter.Stats {
	return n.limiter.Stats()
}

// peerClient returns the persistent, multiplexed control-plane client
// for addr, dialing lazily and reusing the same connection across every
// subsequent RPC to that peer instead of opening one per call.
func (n *Node) peerClient(addr string) *network.Client {
	n.peerClientsMu.Lock()
	defer n.peerClientsMu.Unlock()
	if c, ok := n.peerClients[addr]; ok {
		return c
	}
	c := network.NewClient(addr)
	n.peerClients[addr] = c
	return c
}

// Shutdown stops the control plane, background collectors, and the Raft
// instance, then closes storage.
func (n *Node) Shutdown(ctx context.Context) error {
	n.replicator.Stop()
	n.collector.Stop()
	n.peerClientsMu.Lock()
	for addr, c := range n.peerClients {
		if err := c.Close(); err != nil {
			n.logger.Warn().Err(err).Str("peer_addr", addr).Msg("peer client close reported an error")
		}
	}
	n.peerClientsMu.Unlock()
	if err := n.ctrlServer.Close(); err != nil {
		n.logger.Warn().Err(err).Msg("control plane shutdown reported an error")
	}
	if err := n.raft.Shutdown().Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFault, err)
	}
	return n.store.Close()
}

func (n *Node) timeouts() validate.Timeouts {
	return validate.Timeouts{
		HeartbeatIntervalMS:  n.cfg.Raft.HeartbeatIntervalMS,
		ElectionTimeoutMinMS: n.cfg.Raft.ElectionTimeoutMinMS,
		ElectionTimeoutMaxMS: n.cfg.Raft.ElectionTimeoutMaxMS,
	}
}

// proposeResultWire is the JSON shape a forwarded proposal's outcome
// travels in, since statemachine.Result's Err field is a plain error
// interface and does not survive json.Marshal on its own.
type proposeResultWire struct {
	Config  *types.Config        `json:"config,omitempty"`
	Version *types.ConfigVersion `json:"version,omitempty"`
	Err     string               `json:"err,omitempty"`
}

// queryRequestWire is a forwarded strict-read request's JSON shape,
// carried as pkg/network's opaque QueryBody.Payload.
type queryRequestWire struct {
	Namespace    types.ConfigNamespace `json:"namespace"`
	Name         string                `json:"name"`
	ClientLabels map[string]string     `json:"client_labels,omitempty"`
}

// queryResultWire is a forwarded strict-read's outcome, mirroring
// proposeResultWire's approach for the same reason: an error interface
// does not survive json.Marshal on its own.
type queryResultWire struct {
	Release *types.Release       `json:"release,omitempty"`
	Version *types.ConfigVersion `json:"version,omitempty"`
	Err     string               `json:"err,omitempty"`
}
