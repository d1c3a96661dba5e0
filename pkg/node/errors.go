package node

import "errors"

// The node-level error taxonomy. Exported Node methods return these
// sentinels, or wrap their failures with one via %w, so callers can
// branch with errors.Is regardless of the underlying cause. The
// exceptions are failures to encode or decode the node's own JSON wire
// shapes, an unexpected apply response type, and the storage close error
// Shutdown returns last; those are returned without a sentinel.
var (
	ErrValidation        = errors.New("node: validation failed")
	ErrNotLeader         = errors.New("node: not leader")
	ErrResourceExhausted = errors.New("node: resource exhausted")
	ErrStorageFault      = errors.New("node: storage fault")
	ErrNetworkTransient  = errors.New("node: transient network failure")
	ErrConflict          = errors.New("node: conflict")
	ErrSnapshotRequired  = errors.New("node: snapshot required")
	ErrCancelled         = errors.New("node: cancelled")
)
