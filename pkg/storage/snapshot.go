package storage

import (
	"fmt"
	"io"

	bolt "go.etcd.io/bbolt"
)

// Snapshot is a long-lived, read-only view of the app database, used by
// the state machine to stream a consistent point-in-time copy to a Raft
// snapshot sink without blocking concurrent applies. bbolt's MVCC gives
// a read transaction a stable view of the B+tree for as long as it stays
// open, regardless of writes committed after it started.
type Snapshot struct {
	store *Store
	tx    *bolt.Tx
}

// BeginSnapshot starts the read transaction backing a Snapshot. The
// caller must call Close when done, or the transaction (and the disk
// pages it pins) leaks until the process exits.
func (s *Store) BeginSnapshot() (*Snapshot, error) {
	s.mu.RLock()
	tx, err := s.db.Begin(false)
	if err != nil {
		s.mu.RUnlock()
		return nil, fmt.Errorf("storage: begin snapshot: %w", err)
	}
	return &Snapshot{store: s, tx: tx}, nil
}

// WriteTo streams the database image seen by this snapshot's transaction
// to w.
func (sh *Snapshot) WriteTo(w io.Writer) (int64, error) {
	return sh.tx.WriteTo(w)
}

// Close rolls back the snapshot's read transaction, releasing it.
func (sh *Snapshot) Close() error {
	defer sh.store.mu.RUnlock()
	return sh.tx.Rollback()
}
