/*
Package storage implements Conflux's Storage Engine for the "app" column
family:

	┌───────────────────── APP DATABASE (bbolt) ─────────────────────┐
	│  configs      (config id  -> JSON Config)                      │
	│  versions     (version id -> JSON ConfigVersion)                │
	│  name_index   (tenant/app/env\x00name -> config id)             │
	│  meta         (config_id_counter, version_id_counter,           │
	│                last_applied)                                    │
	└──────────────────────────────────────────────────────────────┘

Every mutation method takes the Raft log index it is applying and writes
it into the meta bucket's last_applied key inside the same bbolt
transaction as the data change, so a reader never observes state that is
ahead of (or behind) what last_applied claims — the property startup
recovery depends on when deciding where log replay should resume.

BeginSnapshot/Restore give the state machine snapshotting without
quiescing writers (Checkpoint writes the same kind of image in one call):
bbolt's MVCC means a read-only transaction sees a stable,
unchanging set of pages for its lifetime even while writers commit new
ones.
*/
package storage
