package statemachine

import (
	"io"

	"github.com/hashicorp/raft"
	"github.com/yeheng/conflux/pkg/storage"
)

// Snapshot implements raft.FSM's Snapshot method. It captures a
// consistent point-in-time view of the app store without blocking
// concurrent Apply calls and defers the actual copy to Persist, which
// the library invokes from its own snapshotting goroutine.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	snap, err := f.store.BeginSnapshot()
	if err != nil {
		return nil, err
	}
	return &fsmSnapshot{snap: snap}, nil
}

// Restore implements raft.FSM's Restore method, installing a snapshot
// produced by Persist. The raft library guarantees this is only called
// on a quiesced FSM (no concurrent Apply), so no additional
// synchronization is required here beyond what Store.Restore itself
// does.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	return f.store.Restore(rc)
}

type fsmSnapshot struct {
	snap *storage.Snapshot
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if _, err := s.snap.WriteTo(sink); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {
	s.snap.Close()
}
