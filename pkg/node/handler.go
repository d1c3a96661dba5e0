package node

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/yeheng/conflux/pkg/limiter"
	"github.com/yeheng/conflux/pkg/network"
	"github.com/yeheng/conflux/pkg/types"
	"github.com/yeheng/conflux/pkg/validate"
)

// Node implements network.Handler: it is the peer this node's
// pkg/network.Server dispatches decoded control-plane envelopes to.

func (n *Node) HandleClientForward(ctx context.Context, body network.ClientForwardBody) (network.ClientForwardResponse, error) {
	permit, err := n.limiter.Acquire(limiter.ClassWrite)
	if err != nil {
		return network.ClientForwardResponse{}, fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}
	defer permit.Release()

	var cmd types.Command
	if err := json.Unmarshal(body.Payload, &cmd); err != nil {
		return network.ClientForwardResponse{}, fmt.Errorf("node: decode forwarded command: %w", err)
	}

	wire := proposeResultWire{}
	result, err := n.applyLocal(ctx, cmd)
	if err != nil {
		wire.Err = err.Error()
	} else {
		wire.Config = result.Config
		wire.Version = result.Version
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return network.ClientForwardResponse{}, fmt.Errorf("node: encode forwarded result: %w", err)
	}
	return network.ClientForwardResponse{Result: data}, nil
}

func (n *Node) HandleQuery(ctx context.Context, body network.QueryBody) (network.QueryResponse, error) {
	var req queryRequestWire
	if err := json.Unmarshal(body.Payload, &req); err != nil {
		return network.QueryResponse{}, fmt.Errorf("node: decode forwarded query: %w", err)
	}

	wire := queryResultWire{}
	release, version, err := n.queryLocal(req.Namespace, req.Name, req.ClientLabels)
	if err != nil {
		wire.Err = err.Error()
	} else {
		wire.Release = release
		wire.Version = version
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return network.QueryResponse{}, fmt.Errorf("node: encode forwarded query result: %w", err)
	}
	return network.QueryResponse{Result: data}, nil
}

func (n *Node) HandleAddLearner(ctx context.Context, body network.AddLearnerBody) error {
	return n.AddLearner(ctx, body.NodeID, body.Address)
}

func (n *Node) HandleChangeMembership(ctx context.Context, body network.ChangeMembershipBody) error {
	members := make([]validate.Member, 0, len(body.Members))
	for _, m := range body.Members {
		members = append(members, validate.Member{NodeID: m.NodeID, Address: m.Address})
	}
	return n.ChangeMembership(ctx, members)
}

func (n *Node) HandleGetMetrics(ctx context.Context) (network.GetMetricsResponse, error) {
	stats := n.raft.Stats()
	term, _ := strconv.ParseUint(stats["term"], 10, 64)
	lastLog, _ := strconv.ParseUint(stats["last_log_index"], 10, 64)
	applied, _ := strconv.ParseUint(stats["applied_index"], 10, 64)
	return network.GetMetricsResponse{
		Term:         term,
		LastLogIndex: lastLog,
		LastApplied:  applied,
		State:        stats["state"],
	}, nil
}
