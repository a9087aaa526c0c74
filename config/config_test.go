package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const validYAML = `
node:
  id: 1
  address: "127.0.0.1:8001"
  data_dir: "/tmp/toydb/n1"
cluster:
  peers:
    - id: 1
      address: "127.0.0.1:8001"
    - id: 2
      address: "127.0.0.1:8002"
    - id: 3
      address: "127.0.0.1:8003"
raft:
  election_timeout_ticks: 10
  heartbeat_interval_ticks: 1
  tick_interval: 50ms
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func Test_Load(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	require.Equal(t, uint64(1), cfg.Node.ID)
	require.Equal(t, []uint64{1, 2, 3}, cfg.PeerIDs())
	require.Equal(t, "127.0.0.1:8002", cfg.Peers()[2])
	require.Equal(t, 50*time.Millisecond, cfg.Raft.TickInterval)
}

func Test_Load_defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
node:
  id: 1
  address: "127.0.0.1:8001"
  data_dir: "/tmp/toydb/n1"
cluster:
  peers:
    - id: 1
      address: "127.0.0.1:8001"
`))
	require.NoError(t, err)
	require.Equal(t, 10, cfg.Raft.ElectionTimeoutTicks)
	require.Equal(t, 1, cfg.Raft.HeartbeatIntervalTicks)
	require.Equal(t, 100*time.Millisecond, cfg.Raft.TickInterval)
}

func Test_Validate_errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero node id", func(c *Config) { c.Node.ID = 0 }},
		{"missing address", func(c *Config) { c.Node.Address = "" }},
		{"missing data dir", func(c *Config) { c.Node.DataDir = "" }},
		{"no peers", func(c *Config) { c.Cluster.Peers = nil }},
		{"self not in peers", func(c *Config) { c.Node.ID = 9 }},
		{"duplicate peer id", func(c *Config) { c.Cluster.Peers[1].ID = 1 }},
		{"duplicate peer address", func(c *Config) { c.Cluster.Peers[1].Address = c.Cluster.Peers[2].Address }},
		{"address mismatch", func(c *Config) { c.Cluster.Peers[0].Address = "somewhere:1" }},
		{"heartbeat too slow", func(c *Config) { c.Raft.HeartbeatIntervalTicks = 10 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validYAML))
			require.NoError(t, err)

			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
