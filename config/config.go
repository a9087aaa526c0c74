// Package config loads and validates the YAML cluster configuration for
// a node.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/thoas/go-funk"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration of one node.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Cluster ClusterConfig `yaml:"cluster"`
	Raft    RaftConfig    `yaml:"raft"`
}

type NodeConfig struct {
	ID      uint64 `yaml:"id"`
	Address string `yaml:"address"`
	DataDir string `yaml:"data_dir"`
}

type ClusterConfig struct {
	Peers []PeerConfig `yaml:"peers"`
}

type PeerConfig struct {
	ID      uint64 `yaml:"id"`
	Address string `yaml:"address"`
}

type RaftConfig struct {
	// ElectionTimeoutTicks is the minimum number of ticks a follower
	// waits without leader contact before campaigning; the actual
	// timeout is randomized in [min, 2*min).
	ElectionTimeoutTicks int `yaml:"election_timeout_ticks"`

	// HeartbeatIntervalTicks is the leader heartbeat cadence. Must be
	// much smaller than ElectionTimeoutTicks.
	HeartbeatIntervalTicks int `yaml:"heartbeat_interval_ticks"`

	// TickInterval is the wall-clock duration of one logical tick.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// Load reads, parses, and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Raft.ElectionTimeoutTicks == 0 {
		c.Raft.ElectionTimeoutTicks = 10
	}
	if c.Raft.HeartbeatIntervalTicks == 0 {
		c.Raft.HeartbeatIntervalTicks = 1
	}
	if c.Raft.TickInterval == 0 {
		c.Raft.TickInterval = 100 * time.Millisecond
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Node.ID == 0 {
		return fmt.Errorf("node.id must be greater than 0")
	}

	if c.Node.Address == "" {
		return fmt.Errorf("node.address is required")
	}

	if c.Node.DataDir == "" {
		return fmt.Errorf("node.data_dir is required")
	}

	if len(c.Cluster.Peers) == 0 {
		return fmt.Errorf("cluster.peers must contain at least one peer")
	}

	if !funk.Contains(c.PeerIDs(), c.Node.ID) {
		return fmt.Errorf("node.id=%d not found in cluster.peers", c.Node.ID)
	}

	uniqueIDs := make(map[uint64]bool)
	for _, peer := range c.Cluster.Peers {
		if peer.ID == 0 {
			return fmt.Errorf("peer ID must be greater than 0")
		}
		if peer.Address == "" {
			return fmt.Errorf("peer %d address is required", peer.ID)
		}
		if uniqueIDs[peer.ID] {
			return fmt.Errorf("duplicate peer ID: %d", peer.ID)
		}
		uniqueIDs[peer.ID] = true

		if peer.ID == c.Node.ID && peer.Address != c.Node.Address {
			return fmt.Errorf("node address mismatch: node.address=%s but peer address=%s",
				c.Node.Address, peer.Address)
		}
	}

	if len(funk.UniqString(c.PeerAddresses())) != len(c.Cluster.Peers) {
		return fmt.Errorf("duplicate peer address")
	}

	if c.Raft.HeartbeatIntervalTicks >= c.Raft.ElectionTimeoutTicks {
		return fmt.Errorf("raft.heartbeat_interval_ticks (%d) must be smaller than raft.election_timeout_ticks (%d)",
			c.Raft.HeartbeatIntervalTicks, c.Raft.ElectionTimeoutTicks)
	}

	return nil
}

// PeerIDs returns the IDs of all cluster members.
func (c *Config) PeerIDs() []uint64 {
	ids := make([]uint64, len(c.Cluster.Peers))
	for i, peer := range c.Cluster.Peers {
		ids[i] = peer.ID
	}
	return ids
}

// PeerAddresses returns the addresses of all cluster members.
func (c *Config) PeerAddresses() []string {
	res := make([]string, len(c.Cluster.Peers))
	for i, peer := range c.Cluster.Peers {
		res[i] = peer.Address
	}
	return res
}

// Peers returns the id-to-address map of all cluster members.
func (c *Config) Peers() map[uint64]string {
	res := make(map[uint64]string, len(c.Cluster.Peers))
	for _, peer := range c.Cluster.Peers {
		res[peer.ID] = peer.Address
	}
	return res
}
