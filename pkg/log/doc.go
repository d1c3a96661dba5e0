/*
Package log provides structured logging for Conflux using zerolog.

The package wraps zerolog to give every other package a JSON-structured
(or console-formatted, for local development) logger with component and
node context baked in, plus an HCLogAdapter so hashicorp/raft's internal
logging lands in the same sink instead of its own separate stream.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	log.Info("conflux node starting")

	raftLog := log.WithComponent("raft")
	raftLog.Info().Uint64("node_id", nodeID).Msg("cluster bootstrapped")

Context loggers:

	nodeLog := log.WithNodeID(fmt.Sprint(nodeID))
	reqLog := log.WithRequestID(requestID)

Wiring into hashicorp/raft:

	raftCfg := raft.DefaultConfig()
	raftCfg.Logger = log.NewHCLogAdapter(log.WithComponent("raft"), "raft")

# Levels

Debug is for development and local troubleshooting; Info is the default
production level; Warn flags conditions worth investigating; Error marks
failed operations; Fatal logs then calls os.Exit(1) and is reserved for
startup failures a node cannot run without fixing first.

Never log secrets: release payloads, checksums, and node addresses are
fine; raw config payload bytes are not — log their length and checksum
instead.
*/
package log
