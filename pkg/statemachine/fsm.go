// Package statemachine implements Conflux's State Machine: the raft.FSM
// that applies committed log entries to pkg/storage in strict index
// order. Every rule it enforces is deterministic — no wall-clock reads,
// no random ids, no map-iteration-order dependence — so that two
// replicas applying the same prefix of the log always reach
// byte-identical state.
package statemachine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/raft"
	"github.com/yeheng/conflux/pkg/log"
	"github.com/yeheng/conflux/pkg/storage"
	"github.com/yeheng/conflux/pkg/types"
)

// ErrChecksumMismatch is returned when a PutVersion entry's declared
// checksum does not match the sha256 of its payload.
var ErrChecksumMismatch = fmt.Errorf("statemachine: checksum mismatch")

// ErrVersionNotOwned is returned when a release entry names a version_id
// that does not belong to the config it is being attached to.
var ErrVersionNotOwned = fmt.Errorf("statemachine: version does not belong to config")

// ErrUnknownOp is returned when a log entry's Command.Op does not match
// any entry kind this applier knows about.
var ErrUnknownOp = fmt.Errorf("statemachine: unknown command op")

// Result is what FSM.Apply returns for every committed entry, retrieved
// by the proposer via raft's ApplyFuture.Response(). Err carries
// applier-local rejections (spec's "Conflict" error kind) — it is never
// itself an error the raft library treats as a failed apply, since a
// deterministic rejection must still advance last_applied identically on
// every replica.
type Result struct {
	Config  *types.Config
	Version *types.ConfigVersion
	Err     error
}

// FSM applies committed Raft log entries to the application store.
type FSM struct {
	store *storage.Store
}

// New constructs an FSM backed by store.
func New(store *storage.Store) *FSM {
	return &FSM{store: store}
}

// Apply implements raft.FSM. It is called once per committed entry,
// strictly in increasing index order, by a single goroutine internal to
// the raft library — no additional locking is needed here beyond what
// pkg/storage already does around the underlying bbolt handle.
func (f *FSM) Apply(l *raft.Log) interface{} {
	if l.Type != raft.LogCommand {
		// Configuration changes and the leader-election no-op entry carry
		// no application-visible state; they still need last_applied to
		// advance, same as any other committed index.
		if err := f.store.AdvanceApplied(l.Index); err != nil {
			logger := log.WithComponent("statemachine")
			logger.Error().Err(err).Msg("advance last_applied for non-command entry failed")
		}
		return &Result{}
	}

	var res *Result
	var cmd types.Command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		res = &Result{Err: fmt.Errorf("statemachine: decode command: %w", err)}
	} else {
		switch cmd.Op {
		case types.OpCreateConfig:
			res = f.applyCreateConfig(l.Index, cmd.Data)
		case types.OpPutVersion:
			res = f.applyPutVersion(l.Index, cmd.Data)
		case types.OpUpsertRelease:
			res = f.applyUpsertRelease(l.Index, cmd.Data)
		case types.OpDeleteRelease:
			res = f.applyDeleteRelease(l.Index, cmd.Data)
		case types.OpDeleteConfig:
			res = f.applyDeleteConfig(l.Index, cmd.Data)
		case types.OpNoop:
			res = &Result{}
		default:
			res = &Result{Err: fmt.Errorf("%w: %q", ErrUnknownOp, cmd.Op)}
		}
	}
	// A rejected entry or a Noop writes no row of its own, so last_applied
	// is advanced separately, as for the non-command entries above.
	if res.Err != nil || cmd.Op == types.OpNoop {
		if err := f.store.AdvanceApplied(l.Index); err != nil {
			logger := log.WithComponent("statemachine")
			logger.Error().Err(err).Msg("advance last_applied for rejected or no-op entry failed")
		}
	}
	return res
}

func (f *FSM) applyCreateConfig(index uint64, data []byte) *Result {
	var e types.CreateConfigEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return &Result{Err: err}
	}
	cfg, err := f.store.CreateConfig(&types.Config{
		Namespace: e.Namespace,
		Name:      e.Name,
		Schema:    e.Schema,
		CreatedAt: e.Ts,
		UpdatedAt: e.Ts,
	}, index)
	return &Result{Config: cfg, Err: err}
}

func (f *FSM) applyPutVersion(index uint64, data []byte) *Result {
	var e types.PutVersionEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return &Result{Err: err}
	}
	sum := sha256.Sum256(e.Payload)
	if hex.EncodeToString(sum[:]) != e.Checksum {
		return &Result{Err: ErrChecksumMismatch}
	}
	v, err := f.store.PutVersion(e.ConfigID, &types.ConfigVersion{
		Format:    e.Format,
		Payload:   e.Payload,
		Checksum:  e.Checksum,
		Author:    e.Author,
		CreatedAt: e.Ts,
	}, index)
	return &Result{Version: v, Err: err}
}

func (f *FSM) applyUpsertRelease(index uint64, data []byte) *Result {
	var e types.UpsertReleaseEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return &Result{Err: err}
	}
	cfg, err := f.store.MutateConfig(e.ConfigID, index, func(c *types.Config) error {
		ver, err := f.store.GetVersion(e.VersionID)
		if err != nil {
			return err
		}
		if ver.ConfigID != e.ConfigID {
			return ErrVersionNotOwned
		}
		rel := types.Release{Labels: e.Labels, VersionID: e.VersionID, Priority: e.Priority}
		if idx := c.ReleaseIndex(e.Labels); idx >= 0 {
			c.Releases[idx] = rel
		} else {
			c.Releases = append(c.Releases, rel)
		}
		return nil
	})
	return &Result{Config: cfg, Err: err}
}

func (f *FSM) applyDeleteRelease(index uint64, data []byte) *Result {
	var e types.DeleteReleaseEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return &Result{Err: err}
	}
	cfg, err := f.store.MutateConfig(e.ConfigID, index, func(c *types.Config) error {
		idx := c.ReleaseIndex(e.Labels)
		if idx < 0 {
			return nil
		}
		c.Releases = append(c.Releases[:idx], c.Releases[idx+1:]...)
		return nil
	})
	return &Result{Config: cfg, Err: err}
}

func (f *FSM) applyDeleteConfig(index uint64, data []byte) *Result {
	var e types.DeleteConfigEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return &Result{Err: err}
	}
	err := f.store.DeleteConfig(e.ConfigID, index)
	return &Result{Err: err}
}
