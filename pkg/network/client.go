package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-msgpack/v2/codec"
)

// Client holds one persistent, lazily-dialed connection to a peer's
// control-plane listener, shared by every RPC a caller issues against
// that peer. Concurrent calls multiplex over it rather than each
// opening its own connection; a background goroutine demultiplexes
// responses by Envelope.RequestID, so a slow in-flight RPC never blocks
// others sharing the link.
type Client struct {
	addr        string
	dialTimeout time.Duration

	mu      sync.Mutex
	conn    net.Conn
	enc     *codec.Encoder
	pending map[string]chan *Envelope
}

func NewClient(addr string) *Client {
	return &Client{addr: addr, dialTimeout: 5 * time.Second, pending: make(map[string]chan *Envelope)}
}

// connectLocked returns the live connection, dialing one if none exists.
// Caller must hold c.mu.
func (c *Client) connectLocked(ctx context.Context) (net.Conn, *codec.Encoder, error) {
	if c.conn != nil {
		return c.conn, c.enc, nil
	}
	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, nil, fmt.Errorf("network: dial %s: %w", c.addr, err)
	}
	c.conn = conn
	c.enc = codec.NewEncoder(conn, msgpackHandle)
	go c.readLoop(conn)
	return c.conn, c.enc, nil
}

// readLoop owns decoding for conn's entire lifetime, dispatching each
// response it reads to the pending call its RequestID names. A decode
// error tears the connection down and wakes every call still waiting on
// it, so the next call redials from scratch.
func (c *Client) readLoop(conn net.Conn) {
	dec := codec.NewDecoder(conn, msgpackHandle)
	for {
		var resp Envelope
		if err := dec.Decode(&resp); err != nil {
			c.teardown(conn, err)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.RequestID]
		if ok {
			delete(c.pending, resp.RequestID)
		}
		c.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
}

// teardown closes conn and fails every call still waiting on it. A
// no-op if conn has already been replaced by a newer dial.
func (c *Client) teardown(conn net.Conn, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	conn.Close()
	c.conn = nil
	c.enc = nil
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- &Envelope{Error: fmt.Sprintf("network: connection closed: %v", cause)}
	}
}

func (c *Client) call(ctx context.Context, fromID uint64, kind RPCKind, body interface{}) (*Envelope, error) {
	encodedBody, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("network: encode request body: %w", err)
	}
	req := Envelope{RequestID: uuid.NewString(), Kind: kind, From: fromID, Body: encodedBody}
	respCh := make(chan *Envelope, 1)

	c.mu.Lock()
	conn, enc, err := c.connectLocked(ctx)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.pending[req.RequestID] = respCh
	writeErr := enc.Encode(&req)
	c.mu.Unlock()

	if writeErr != nil {
		c.teardown(conn, writeErr)
		return nil, fmt.Errorf("network: send request: %w", writeErr)
	}

	select {
	case resp := <-respCh:
		if resp.Error != "" {
			return nil, errors.New(resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// ClientForward asks the peer at c.addr — presumed to be the current
// leader — to accept payload on the caller's behalf. ctx's deadline, if
// any, travels with the request and bounds the leader's handling of it.
func (c *Client) ClientForward(ctx context.Context, fromID uint64, payload []byte) (ClientForwardResponse, error) {
	deadline, _ := ctx.Deadline()
	resp, err := c.call(ctx, fromID, RPCClientForward, ClientForwardBody{Deadline: deadline, Payload: payload})
	if err != nil {
		return ClientForwardResponse{}, err
	}
	var out ClientForwardResponse
	if err := decodeBody(resp.Body, &out); err != nil {
		return ClientForwardResponse{}, fmt.Errorf("network: decode client_forward response: %w", err)
	}
	return out, nil
}

// Query asks the peer at c.addr — presumed to be the current leader —
// to resolve a strict (linearizable) read on the caller's behalf.
func (c *Client) Query(ctx context.Context, fromID uint64, payload []byte) (QueryResponse, error) {
	deadline, _ := ctx.Deadline()
	resp, err := c.call(ctx, fromID, RPCQuery, QueryBody{Deadline: deadline, Payload: payload})
	if err != nil {
		return QueryResponse{}, err
	}
	var out QueryResponse
	if err := decodeBody(resp.Body, &out); err != nil {
		return QueryResponse{}, fmt.Errorf("network: decode query response: %w", err)
	}
	return out, nil
}

// AddLearner asks the peer to add nodeID/address as a non-voting learner.
func (c *Client) AddLearner(ctx context.Context, fromID uint64, nodeID uint64, address string) error {
	_, err := c.call(ctx, fromID, RPCAddLearner, AddLearnerBody{NodeID: nodeID, Address: address})
	return err
}

// ChangeMembership asks the peer to apply a new voter set.
func (c *Client) ChangeMembership(ctx context.Context, fromID uint64, members []Member) error {
	_, err := c.call(ctx, fromID, RPCChangeMembership, ChangeMembershipBody{Members: members})
	return err
}

// GetMetrics polls the peer's own view of its Raft position, used by the
// leader's replication-lag monitor (pkg/metrics.RecordReplicationLag).
func (c *Client) GetMetrics(ctx context.Context, fromID uint64) (GetMetricsResponse, error) {
	resp, err := c.call(ctx, fromID, RPCGetMetrics, struct{}{})
	if err != nil {
		return GetMetricsResponse{}, err
	}
	var out GetMetricsResponse
	if err := decodeBody(resp.Body, &out); err != nil {
		return GetMetricsResponse{}, fmt.Errorf("network: decode get_metrics response: %w", err)
	}
	return out, nil
}

// Close tears down the persistent connection, if any, failing any call
// still waiting on a response.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.enc = nil
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- &Envelope{Error: "network: client closed"}
	}
	return err
}
