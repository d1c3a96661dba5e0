/*
Package network carries the control-plane RPCs that hashicorp/raft's own
raft.NetworkTransport does not: ClientForward, Query, AddLearner,
ChangeMembership, GetMetrics. AppendEntries, RequestVote, and
InstallSnapshot are out of scope for this package entirely — pkg/node
wires those straight to raft.NetworkTransport.

Wire format follows raft.NetworkTransport's own convention: a shared
github.com/hashicorp/go-msgpack/v2 codec.MsgpackHandle encodes each
Envelope as a single self-describing msgpack object, written directly to
the connection rather than behind a manual length prefix. A Client holds
one persistent, multiplexed connection per peer: concurrent calls share
it, each tagged with its own Envelope.RequestID so the reader goroutine
can route every response back to the call that is waiting on it. Server
accepts a connection and loops decode/dispatch/encode, replying to
requests in whatever order they finish rather than strictly the order
they arrived, until the peer closes the connection or a decode fails.
*/
package network
