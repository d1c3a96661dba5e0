package statemachine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeheng/conflux/pkg/storage"
	"github.com/yeheng/conflux/pkg/types"
)

func newTestFSM(t *testing.T) (*FSM, *storage.Store) {
	t.Helper()
	s, err := storage.Open(storage.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func logEntry(t *testing.T, index uint64, op types.CommandOp, entry interface{}) *raft.Log {
	t.Helper()
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	cmd := types.Command{Op: op, Data: data}
	cmdData, err := json.Marshal(cmd)
	require.NoError(t, err)
	return &raft.Log{Index: index, Type: raft.LogCommand, Data: cmdData}
}

func checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func TestApplyCreateConfigThenPutVersion(t *testing.T) {
	fsm, store := newTestFSM(t)
	ns := types.ConfigNamespace{Tenant: "t", App: "a", Env: "e"}
	ts := time.Unix(100, 0).UTC()

	res := fsm.Apply(logEntry(t, 1, types.OpCreateConfig, types.CreateConfigEntry{Namespace: ns, Name: "db", Ts: ts})).(*Result)
	require.NoError(t, res.Err)
	require.NotNil(t, res.Config)
	assert.Equal(t, uint64(1), res.Config.ID)

	payload := []byte(`{}`)
	res2 := fsm.Apply(logEntry(t, 2, types.OpPutVersion, types.PutVersionEntry{
		ConfigID: res.Config.ID,
		Format:   types.FormatJSON,
		Payload:  payload,
		Checksum: checksum(payload),
		Author:   "alice",
		Ts:       ts,
	})).(*Result)
	require.NoError(t, res2.Err)
	assert.Equal(t, uint64(1), res2.Version.ID)

	got, err := store.GetConfig(res.Config.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.LatestVersionID)
}

func TestApplyPutVersionBadChecksumRejected(t *testing.T) {
	fsm, _ := newTestFSM(t)
	ns := types.ConfigNamespace{Tenant: "t", App: "a", Env: "e"}
	res := fsm.Apply(logEntry(t, 1, types.OpCreateConfig, types.CreateConfigEntry{Namespace: ns, Name: "db"})).(*Result)
	require.NoError(t, res.Err)

	res2 := fsm.Apply(logEntry(t, 2, types.OpPutVersion, types.PutVersionEntry{
		ConfigID: res.Config.ID,
		Format:   types.FormatJSON,
		Payload:  []byte(`{}`),
		Checksum: "deadbeef",
	})).(*Result)
	assert.ErrorIs(t, res2.Err, ErrChecksumMismatch)
}

func TestApplyCreateConfigDuplicateIsConflict(t *testing.T) {
	fsm, _ := newTestFSM(t)
	ns := types.ConfigNamespace{Tenant: "t", App: "a", Env: "e"}
	res := fsm.Apply(logEntry(t, 1, types.OpCreateConfig, types.CreateConfigEntry{Namespace: ns, Name: "db"})).(*Result)
	require.NoError(t, res.Err)

	res2 := fsm.Apply(logEntry(t, 2, types.OpCreateConfig, types.CreateConfigEntry{Namespace: ns, Name: "db"})).(*Result)
	assert.ErrorIs(t, res2.Err, storage.ErrExists)
}

func TestApplyUpsertAndDeleteRelease(t *testing.T) {
	fsm, _ := newTestFSM(t)
	ns := types.ConfigNamespace{Tenant: "t", App: "a", Env: "e"}
	res := fsm.Apply(logEntry(t, 1, types.OpCreateConfig, types.CreateConfigEntry{Namespace: ns, Name: "db"})).(*Result)
	require.NoError(t, res.Err)
	payload := []byte(`{}`)
	vres := fsm.Apply(logEntry(t, 2, types.OpPutVersion, types.PutVersionEntry{
		ConfigID: res.Config.ID, Format: types.FormatJSON, Payload: payload, Checksum: checksum(payload),
	})).(*Result)
	require.NoError(t, vres.Err)

	labels := map[string]string{"region": "eu"}
	ures := fsm.Apply(logEntry(t, 3, types.OpUpsertRelease, types.UpsertReleaseEntry{
		ConfigID: res.Config.ID, Labels: labels, VersionID: vres.Version.ID, Priority: 10,
	})).(*Result)
	require.NoError(t, ures.Err)
	require.Len(t, ures.Config.Releases, 1)

	dres := fsm.Apply(logEntry(t, 4, types.OpDeleteRelease, types.DeleteReleaseEntry{
		ConfigID: res.Config.ID, Labels: labels,
	})).(*Result)
	require.NoError(t, dres.Err)
	assert.Empty(t, dres.Config.Releases)
}

func TestApplyUpsertReleaseRejectsForeignVersion(t *testing.T) {
	fsm, _ := newTestFSM(t)
	ns1 := types.ConfigNamespace{Tenant: "t", App: "a", Env: "e1"}
	ns2 := types.ConfigNamespace{Tenant: "t", App: "a", Env: "e2"}
	c1 := fsm.Apply(logEntry(t, 1, types.OpCreateConfig, types.CreateConfigEntry{Namespace: ns1, Name: "db"})).(*Result)
	c2 := fsm.Apply(logEntry(t, 2, types.OpCreateConfig, types.CreateConfigEntry{Namespace: ns2, Name: "db"})).(*Result)
	payload := []byte(`{}`)
	v1 := fsm.Apply(logEntry(t, 3, types.OpPutVersion, types.PutVersionEntry{
		ConfigID: c1.Config.ID, Format: types.FormatJSON, Payload: payload, Checksum: checksum(payload),
	})).(*Result)

	res := fsm.Apply(logEntry(t, 4, types.OpUpsertRelease, types.UpsertReleaseEntry{
		ConfigID: c2.Config.ID, VersionID: v1.Version.ID, Priority: 0,
	})).(*Result)
	assert.ErrorIs(t, res.Err, ErrVersionNotOwned)
}

func TestApplyDeleteConfigCascades(t *testing.T) {
	fsm, store := newTestFSM(t)
	ns := types.ConfigNamespace{Tenant: "t", App: "a", Env: "e"}
	res := fsm.Apply(logEntry(t, 1, types.OpCreateConfig, types.CreateConfigEntry{Namespace: ns, Name: "db"})).(*Result)
	payload := []byte(`{}`)
	vres := fsm.Apply(logEntry(t, 2, types.OpPutVersion, types.PutVersionEntry{
		ConfigID: res.Config.ID, Format: types.FormatJSON, Payload: payload, Checksum: checksum(payload),
	})).(*Result)

	dres := fsm.Apply(logEntry(t, 3, types.OpDeleteConfig, types.DeleteConfigEntry{ConfigID: res.Config.ID})).(*Result)
	require.NoError(t, dres.Err)

	_, err := store.GetConfig(res.Config.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetVersion(vres.Version.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApplyNonCommandAdvancesAppliedIndex(t *testing.T) {
	fsm, store := newTestFSM(t)
	res := fsm.Apply(&raft.Log{Index: 7, Type: raft.LogNoop}).(*Result)
	assert.NoError(t, res.Err)

	idx, err := store.LastAppliedIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), idx)
}
