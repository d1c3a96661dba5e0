package node

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yeheng/conflux/pkg/limiter"
	"github.com/yeheng/conflux/pkg/storage"
)

// RaftConfig is the subset of hashicorp/raft's own timing configuration a
// deployment is expected to tune.
type RaftConfig struct {
	HeartbeatIntervalMS  int64 `yaml:"heartbeat_interval_ms"`
	ElectionTimeoutMinMS int64 `yaml:"election_timeout_min_ms"`
	ElectionTimeoutMaxMS int64 `yaml:"election_timeout_max_ms"`
	SnapshotRetain       int   `yaml:"snapshot_retain"`
}

// PeerConfig names one cluster member by both addresses it answers on:
// the raft.NetworkTransport address (AppendEntries/RequestVote/
// InstallSnapshot) and the control-plane address this package's
// pkg/network server listens on (ClientForward/AddLearner/
// ChangeMembership/GetMetrics). The two are deliberately separate
// listeners, so a cluster operator can firewall the control plane apart
// from Raft's own wire protocol.
type PeerConfig struct {
	NodeID         uint64 `yaml:"node_id"`
	RaftAddress    string `yaml:"raft_address"`
	ControlAddress string `yaml:"control_address"`
}

// NetworkConfig configures this node's control-plane listener and the
// peer table pkg/node consults to forward a proposal or poll replication
// lag.
type NetworkConfig struct {
	ControlPlaneAddress string        `yaml:"control_plane_address"`
	Peers               []PeerConfig  `yaml:"peers"`
	DialTimeout         time.Duration `yaml:"dial_timeout"`
}

// Config is the full {node_id, address, raft_config, network_config,
// storage} structure loaded from a YAML file by cmd/conflux-node.
type Config struct {
	NodeID  uint64 `yaml:"node_id"`
	Address string `yaml:"address"`
	DataDir string `yaml:"data_dir"`

	Raft    RaftConfig     `yaml:"raft_config"`
	Network NetworkConfig  `yaml:"network_config"`
	Storage storage.Config `yaml:"storage"`
	Limits  limiter.Limits `yaml:"limits"`
}

// LoadConfig reads and parses a node configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("node: read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("node: parse config %s: %w", path, err)
	}
	if cfg.Network.DialTimeout == 0 {
		cfg.Network.DialTimeout = 5 * time.Second
	}
	if cfg.Raft.SnapshotRetain == 0 {
		cfg.Raft.SnapshotRetain = 3
	}
	return &cfg, nil
}
