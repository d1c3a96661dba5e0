package storage

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeheng/conflux/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testNS() types.ConfigNamespace {
	return types.ConfigNamespace{Tenant: "t1", App: "a1", Env: "prod"}
}

func TestCreateConfig(t *testing.T) {
	s := newTestStore(t)

	cfg, err := s.CreateConfig(&types.Config{
		Namespace: testNS(),
		Name:      "db",
		CreatedAt: time.Unix(1000, 0).UTC(),
		UpdatedAt: time.Unix(1000, 0).UTC(),
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cfg.ID)

	got, err := s.GetConfigByName(testNS(), "db")
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, got.ID)

	idx, err := s.LastAppliedIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), idx)
}

func TestCreateConfigDuplicateRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateConfig(&types.Config{Namespace: testNS(), Name: "db"}, 1)
	require.NoError(t, err)

	_, err = s.CreateConfig(&types.Config{Namespace: testNS(), Name: "db"}, 2)
	assert.ErrorIs(t, err, ErrExists)

	idx, err := s.LastAppliedIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), idx, "rejected mutation must not advance last_applied")
}

func TestPutVersionAdvancesLatest(t *testing.T) {
	s := newTestStore(t)
	cfg, err := s.CreateConfig(&types.Config{Namespace: testNS(), Name: "db"}, 1)
	require.NoError(t, err)

	v1, err := s.PutVersion(cfg.ID, &types.ConfigVersion{Format: types.FormatJSON, Payload: []byte("{}")}, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v1.ID)

	v2, err := s.PutVersion(cfg.ID, &types.ConfigVersion{Format: types.FormatJSON, Payload: []byte("{\"a\":1}")}, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v2.ID)

	got, err := s.GetConfig(cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.ID, got.LatestVersionID)
}

func TestDeleteConfigCascadesVersions(t *testing.T) {
	s := newTestStore(t)
	cfg, err := s.CreateConfig(&types.Config{Namespace: testNS(), Name: "db"}, 1)
	require.NoError(t, err)
	v, err := s.PutVersion(cfg.ID, &types.ConfigVersion{Format: types.FormatJSON, Payload: []byte("{}")}, 2)
	require.NoError(t, err)

	require.NoError(t, s.DeleteConfig(cfg.ID, 3))

	_, err = s.GetConfig(cfg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetVersion(v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetConfigByName(testNS(), "db")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMutateConfigUpsertRelease(t *testing.T) {
	s := newTestStore(t)
	cfg, err := s.CreateConfig(&types.Config{Namespace: testNS(), Name: "db"}, 1)
	require.NoError(t, err)

	_, err = s.MutateConfig(cfg.ID, 2, func(c *types.Config) error {
		c.Releases = append(c.Releases, types.Release{Labels: map[string]string{"region": "eu"}, VersionID: 1, Priority: 10})
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetConfig(cfg.ID)
	require.NoError(t, err)
	require.Len(t, got.Releases, 1)
	assert.Equal(t, int32(10), got.Releases[0].Priority)
}

func TestCheckpointAndRestoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	cfg, err := s.CreateConfig(&types.Config{Namespace: testNS(), Name: "db"}, 1)
	require.NoError(t, err)
	_, err = s.PutVersion(cfg.ID, &types.ConfigVersion{Format: types.FormatJSON, Payload: []byte("{}")}, 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.Checkpoint(&buf))

	s2 := newTestStore(t)
	require.NoError(t, s2.Restore(bytes.NewReader(buf.Bytes())))

	got, err := s2.GetConfigByName(testNS(), "db")
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, got.ID)
	assert.Equal(t, uint64(1), got.LatestVersionID)

	idx, err := s2.LastAppliedIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), idx)
}
