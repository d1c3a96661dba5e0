// Package storage implements Conflux's Storage Engine: the "app" column
// family — Configs, ConfigVersions, the (namespace, name)
// secondary index, and the monotonic id counters the state machine uses
// to allocate Config and ConfigVersion ids.
//
// The "log" and "meta" (hard state) column families are not implemented
// here: hashicorp/raft's own LogStore/StableStore contracts (satisfied by
// pkg/raftlog) already cover them, and re-deriving that on top of this
// package would duplicate what the consensus library already owns.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/yeheng/conflux/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketConfigs   = []byte("configs")
	bucketVersions  = []byte("versions")
	bucketNameIndex = []byte("name_index")
	bucketMeta      = []byte("meta")

	keyConfigIDCounter  = []byte("config_id_counter")
	keyVersionIDCounter = []byte("version_id_counter")
	keyLastApplied      = []byte("last_applied")
)

// ErrNotFound is returned when a lookup by id or name finds nothing.
var ErrNotFound = fmt.Errorf("storage: not found")

// ErrExists is returned by CreateConfig when (namespace, name) is already
// taken.
var ErrExists = fmt.Errorf("storage: config already exists")

// Store is the bbolt-backed application state store. All mutation
// methods take the Raft log index the change arrived on and persist it
// together with the change in a single transaction, so LastAppliedIndex
// always reflects exactly the data visible in the other buckets.
type Store struct {
	mu   sync.RWMutex // guards db during Restore's handle swap
	db   *bolt.DB
	path string
}

// Config holds the storage engine's deployment tunables. Conflux's
// workload is small, label-matching reads over a handful of KB-sized JSON
// records, so only the knobs that affect bbolt's memory footprint and
// fsync behavior are surfaced; the rest keep bbolt's defaults.
type Config struct {
	DataDir           string
	MaxOpenFiles      int // advisory; bbolt holds a single fd
	CacheSizeMB       int // advisory; bbolt pages are OS-cached, not a tunable of its own
	WriteBufferSizeMB int // advisory
	MaxWriteBufferNum int // advisory
}

// Open creates or opens the bbolt database under cfg.DataDir/app/app.db
// and ensures every bucket this package uses exists.
func Open(cfg Config) (*Store, error) {
	dir := filepath.Join(cfg.DataDir, "app")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}
	path := filepath.Join(dir, "app.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	s := &Store{db: db, path: path}
	if err := s.ensureBuckets(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketConfigs, bucketVersions, bucketNameIndex, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("storage: create bucket %s: %w", b, err)
			}
		}
		return nil
	})
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func nextCounter(tx *bolt.Tx, key []byte) (uint64, error) {
	b := tx.Bucket(bucketMeta)
	cur := btoi(b.Get(key))
	next := cur + 1
	if err := b.Put(key, itob(next)); err != nil {
		return 0, err
	}
	return next, nil
}

func setLastApplied(tx *bolt.Tx, index uint64) error {
	return tx.Bucket(bucketMeta).Put(keyLastApplied, itob(index))
}

// LastAppliedIndex returns the index of the last committed entry this
// store has durably applied, used during startup recovery to decide
// where log replay should resume.
func (s *Store) LastAppliedIndex() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var idx uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		idx = btoi(tx.Bucket(bucketMeta).Get(keyLastApplied))
		return nil
	})
	return idx, err
}

// AdvanceApplied records index as the last-applied index without
// touching any other bucket. It exists for log entries that carry no
// application-visible state — membership changes and the leader-election
// no-op — which must still advance last_applied like any other committed
// entry.
func (s *Store) AdvanceApplied(index uint64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		return setLastApplied(tx, index)
	})
}

func getConfigTx(tx *bolt.Tx, id uint64) (*types.Config, error) {
	data := tx.Bucket(bucketConfigs).Get(itob(id))
	if data == nil {
		return nil, ErrNotFound
	}
	var cfg types.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("storage: decode config %d: %w", id, err)
	}
	return &cfg, nil
}

func putConfigTx(tx *bolt.Tx, cfg *types.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("storage: encode config %d: %w", cfg.ID, err)
	}
	return tx.Bucket(bucketConfigs).Put(itob(cfg.ID), data)
}

// GetConfig looks up a Config by id.
func (s *Store) GetConfig(id uint64) (*types.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var cfg *types.Config
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		cfg, err = getConfigTx(tx, id)
		return err
	})
	return cfg, err
}

// GetConfigByName looks up a Config by its (namespace, name) key via the
// secondary index.
func (s *Store) GetConfigByName(ns types.ConfigNamespace, name string) (*types.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var cfg *types.Config
	err := s.db.View(func(tx *bolt.Tx) error {
		idBytes := tx.Bucket(bucketNameIndex).Get([]byte(types.NameKey(ns, name)))
		if idBytes == nil {
			return ErrNotFound
		}
		var err error
		cfg, err = getConfigTx(tx, btoi(idBytes))
		return err
	})
	return cfg, err
}

// ListConfigs returns every Config in the store, ordered by id.
func (s *Store) ListConfigs() ([]*types.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Config
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConfigs).ForEach(func(_, v []byte) error {
			var cfg types.Config
			if err := json.Unmarshal(v, &cfg); err != nil {
				return err
			}
			out = append(out, &cfg)
			return nil
		})
	})
	return out, err
}

// GetVersion looks up a ConfigVersion by id.
func (s *Store) GetVersion(id uint64) (*types.ConfigVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v *types.ConfigVersion
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketVersions).Get(itob(id))
		if data == nil {
			return ErrNotFound
		}
		v = &types.ConfigVersion{}
		return json.Unmarshal(data, v)
	})
	return v, err
}

// CreateConfig allocates a new Config id and persists cfg, rejecting the
// write if (cfg.Namespace, cfg.Name) already exists. index is the Raft
// log index this mutation arrived on.
func (s *Store) CreateConfig(cfg *types.Config, index uint64) (*types.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := *cfg
	err := s.db.Update(func(tx *bolt.Tx) error {
		key := []byte(types.NameKey(out.Namespace, out.Name))
		if tx.Bucket(bucketNameIndex).Get(key) != nil {
			return ErrExists
		}
		id, err := nextCounter(tx, keyConfigIDCounter)
		if err != nil {
			return err
		}
		out.ID = id
		if err := putConfigTx(tx, &out); err != nil {
			return err
		}
		if err := tx.Bucket(bucketNameIndex).Put(key, itob(id)); err != nil {
			return err
		}
		return setLastApplied(tx, index)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PutVersion allocates a new ConfigVersion id for entry, appends it, and
// advances the owning Config's LatestVersionID, atomically with
// recording index as last-applied.
func (s *Store) PutVersion(configID uint64, v *types.ConfigVersion, index uint64) (*types.ConfigVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := *v
	out.ConfigID = configID
	err := s.db.Update(func(tx *bolt.Tx) error {
		cfg, err := getConfigTx(tx, configID)
		if err != nil {
			return err
		}
		id, err := nextCounter(tx, keyVersionIDCounter)
		if err != nil {
			return err
		}
		out.ID = id
		data, err := json.Marshal(&out)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketVersions).Put(itob(id), data); err != nil {
			return err
		}
		cfg.LatestVersionID = id
		cfg.UpdatedAt = out.CreatedAt
		if err := putConfigTx(tx, cfg); err != nil {
			return err
		}
		return setLastApplied(tx, index)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// MutateConfig loads the Config with id, applies fn to it, and persists
// the result together with index in a single transaction. fn returning
// an error aborts the whole transaction, leaving the store untouched.
// This is the primitive UpsertRelease/DeleteRelease apply on top of.
func (s *Store) MutateConfig(id uint64, index uint64, fn func(cfg *types.Config) error) (*types.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out *types.Config
	err := s.db.Update(func(tx *bolt.Tx) error {
		cfg, err := getConfigTx(tx, id)
		if err != nil {
			return err
		}
		if err := fn(cfg); err != nil {
			return err
		}
		if err := putConfigTx(tx, cfg); err != nil {
			return err
		}
		out = cfg
		return setLastApplied(tx, index)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteConfig removes a Config and cascades to every ConfigVersion it
// owns, atomically with recording index as last-applied.
func (s *Store) DeleteConfig(id uint64, index uint64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.Update(func(tx *bolt.Tx) error {
		cfg, err := getConfigTx(tx, id)
		if err != nil {
			return err
		}
		versions := tx.Bucket(bucketVersions)
		c := versions.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var ver types.ConfigVersion
			if err := json.Unmarshal(v, &ver); err != nil {
				return err
			}
			if ver.ConfigID == id {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}
		for _, k := range toDelete {
			if err := versions.Delete(k); err != nil {
				return err
			}
		}
		if err := tx.Bucket(bucketConfigs).Delete(itob(id)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketNameIndex).Delete([]byte(cfg.NameKey())); err != nil {
			return err
		}
		return setLastApplied(tx, index)
	})
}

// Checkpoint writes a consistent, point-in-time copy of the entire app
// database to w. It runs inside a read-only transaction, so concurrent
// applies are never blocked — bbolt's MVCC gives the transaction its own
// stable view of the B+tree pages.
func (s *Store) Checkpoint(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db.View(func(tx *bolt.Tx) error {
		_, err := tx.WriteTo(w)
		return err
	})
}

// Restore replaces the store's entire contents with the database image
// read from r, as produced by a prior Checkpoint. The swap closes the old
// database handle and reopens the new file in its place.
func (s *Store) Restore(r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpPath := s.path + ".restoring"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("storage: create restore file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("storage: write restore file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("storage: close restore file: %w", err)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("storage: close old db: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("storage: install restored db: %w", err)
	}
	db, err := bolt.Open(s.path, 0o600, nil)
	if err != nil {
		return fmt.Errorf("storage: reopen restored db: %w", err)
	}
	s.db = db
	return nil
}
