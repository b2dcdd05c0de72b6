package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cmwaters/privpoll/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "privpoll.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
owner: auditor
dataDir: /var/lib/privpoll
maxCount: 5000
p2pListenAddrs:
  - /ip4/0.0.0.0/tcp/4001
logLevel: debug
`)
	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "auditor", cfg.Owner)
	require.Equal(t, "/var/lib/privpoll", cfg.DataDir)
	require.EqualValues(t, 5000, cfg.MaxCount)
	require.Equal(t, []string{"/ip4/0.0.0.0/tcp/4001"}, cfg.P2PListenAddrs)
	require.Equal(t, zerolog.DebugLevel, cfg.Level())
	// untouched fields keep their defaults
	require.Equal(t, config.DefaultConfig().ListenAddr, cfg.ListenAddr)
	require.Equal(t, "polls", cfg.GossipTopic)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "owner: auditor\n")
	t.Setenv("PRIVPOLL_OWNER", "operator")
	t.Setenv("PRIVPOLL_DATA_DIR", "")
	t.Setenv("PRIVPOLL_LISTEN_ADDR", "0.0.0.0:80")
	t.Setenv("PRIVPOLL_P2P_PEERS", "/ip4/10.0.0.1/tcp/4001/p2p/peer,/ip4/10.0.0.2/tcp/4001/p2p/peer")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "operator", cfg.Owner)
	require.Empty(t, cfg.DataDir)
	require.Equal(t, "0.0.0.0:80", cfg.ListenAddr)
	require.Len(t, cfg.P2PPeers, 2)
}

func TestInvalidConfig(t *testing.T) {
	_, err := config.LoadConfig(writeConfig(t, "owner: ''\n"))
	require.Error(t, err)

	_, err = config.LoadConfig(writeConfig(t, "logLevel: loud\n"))
	require.Error(t, err)

	_, err = config.LoadConfig(writeConfig(t, "maxCount: [1]\n"))
	require.Error(t, err)

	_, err = config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
