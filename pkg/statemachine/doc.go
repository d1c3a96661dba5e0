/*
Package statemachine is Conflux's raft.FSM: the deterministic applier of
committed log entries to the application store. It is deliberately thin
— every rule that can be checked or performed by pkg/storage alone
(uniqueness, cascade deletes,
id allocation, last_applied bookkeeping) lives there; this package only
decodes the log entry, routes it to the right storage operation, and
verifies the two invariants storage can't: a PutVersion's declared
checksum matches its payload, and an UpsertRelease names a version that
belongs to the config it is attached to.

Determinism. Apply never reads the system clock, never generates a
random id, and never iterates a map when the order is externally
observable — CreatedAt/UpdatedAt come from the entry's Ts field (the
leader's proposal-time clock reading, carried through the log), and
Config/ConfigVersion ids come from pkg/storage's transactional counters.
Two replicas that have applied the same log prefix hold byte-identical
state.
*/
package statemachine
