// Package network implements Conflux's peer control-plane link (spec
// §4.5): ClientForward, Query, AddLearner, ChangeMembership, and GetMetrics.
// AppendEntries, RequestVote, and InstallSnapshot are not reimplemented
// here — those ride hashicorp/raft's own raft.NetworkTransport, wired up
// by pkg/node. This package only carries the handful of RPCs the
// consensus library doesn't already define for us, framed the same way
// raft.NetworkTransport frames its own traffic: sequential msgpack
// objects over a persistent TCP connection, via the same
// github.com/hashicorp/go-msgpack/v2 codec raft itself uses.
package network

import (
	"bytes"
	"time"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

var msgpackHandle = &codec.MsgpackHandle{}

// RPCKind names one of the control-plane operations this package
// carries.
type RPCKind string

const (
	RPCClientForward    RPCKind = "client_forward"
	RPCQuery            RPCKind = "query"
	RPCAddLearner       RPCKind = "add_learner"
	RPCChangeMembership RPCKind = "change_membership"
	RPCGetMetrics       RPCKind = "get_metrics"
)

// Envelope is the single message shape exchanged over a connection,
// request and response alike. Body holds the msgpack encoding of the
// kind-specific payload so Envelope itself never needs to change shape
// as RPCs are added.
type Envelope struct {
	RequestID string
	Kind      RPCKind
	Term      uint64
	From      uint64
	To        uint64
	Body      []byte
	Error     string
}

// ClientForwardBody is a follower's request that the leader accept a
// proposal on the client's behalf. Deadline, when non-zero, is the
// client's own deadline — per the Decided Open Question, the leader
// honors it as-is rather than substituting a deadline of its own.
type ClientForwardBody struct {
	Deadline time.Time
	Payload  []byte
}

type ClientForwardResponse struct {
	Result []byte
}

// QueryBody is a follower's request that the leader resolve a strict
// (linearizable) read on the client's behalf, carried opaquely the same
// way ClientForwardBody carries a forwarded write: this package never
// decodes Payload, pkg/node does.
type QueryBody struct {
	Deadline time.Time
	Payload  []byte
}

type QueryResponse struct {
	Result []byte
}

type AddLearnerBody struct {
	NodeID  uint64
	Address string
}

// Member is a lightweight node-id/address pair, independent of
// pkg/validate.Member so this package carries no dependency on the
// validator.
type Member struct {
	NodeID  uint64
	Address string
}

type ChangeMembershipBody struct {
	Members []Member
}

type GetMetricsResponse struct {
	Term         uint64
	LastLogIndex uint64
	LastApplied  uint64
	State        string
}

func encodeBody(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBody(data []byte, v interface{}) error {
	dec := codec.NewDecoder(bytes.NewReader(data), msgpackHandle)
	return dec.Decode(v)
}
