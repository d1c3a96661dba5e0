// Package raftlog adapts hashicorp/raft-boltdb and hashicorp/raft's file
// snapshot store onto the "log", "meta", and "snap" column families of the
// Raft log and snapshot store. Conflux composes hashicorp/raft rather than
// re-implementing the log-append/truncate/purge/read and snapshot-install
// contracts by hand: raft-boltdb's BoltStore already satisfies raft.LogStore
// and raft.StableStore with exactly those semantics, and
// raft.FileSnapshotStore already satisfies the snapshot-chunk contract.
package raftlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// LogStore is the "log" and "meta" column families: a raft-boltdb
// BoltStore satisfies both raft.LogStore (append/truncate_suffix/
// purge_prefix/read, named StoreLogs/DeleteRange/GetLog/FirstIndex/
// LastIndex in the library's own vocabulary) and raft.StableStore
// (save_hard_state, named Set/SetUint64/Get/GetUint64).
type LogStore struct {
	*raftboltdb.BoltStore
}

// NewLogStore opens (creating if absent) the bolt file backing the log
// and hard-state column families under dataDir/log/raft-log.db.
func NewLogStore(dataDir string) (*LogStore, error) {
	dir := filepath.Join(dataDir, "log")
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	bs, err := raftboltdb.NewBoltStore(filepath.Join(dir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("raftlog: open log store: %w", err)
	}
	return &LogStore{BoltStore: bs}, nil
}

// SnapshotStore is the "snap" column family: numbered, retained snapshot
// directories under dataDir/snap, each holding a manifest
// ({last_included_index, last_included_term, membership}) and the chunk
// data the state machine wrote via io.WriteCloser.
type SnapshotStore struct {
	*raft.FileSnapshotStore
}

// NewSnapshotStore opens the snapshot directory, retaining the most
// recent retain snapshots and logging store activity to logOutput.
func NewSnapshotStore(dataDir string, retain int, logOutput io.Writer) (*SnapshotStore, error) {
	dir := filepath.Join(dataDir, "snap")
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	fss, err := raft.NewFileSnapshotStore(dir, retain, logOutput)
	if err != nil {
		return nil, fmt.Errorf("raftlog: open snapshot store: %w", err)
	}
	return &SnapshotStore{FileSnapshotStore: fss}, nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("raftlog: create %s: %w", dir, err)
	}
	return nil
}
