package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "privpoll.config"

// EnvPrefix prefixes every environment override, e.g. PRIVPOLL_DATA_DIR.
const EnvPrefix = "privpoll"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	// Owner is the sole initial member of the global decryptor set.
	Owner string `yaml:"owner"`
	// DataDir holds the poll store. Empty keeps everything in memory.
	DataDir string `yaml:"dataDir" split_words:"true"`
	// KeyFile holds the hex encoded secret key of the tally scheme.
	KeyFile string `yaml:"keyFile" split_words:"true"`
	// MaxCount bounds the vote counts that can be decrypted.
	MaxCount uint64 `yaml:"maxCount" split_words:"true"`
	// MaxDuration caps poll durations in seconds, zero for no cap.
	MaxDuration uint64 `yaml:"maxDuration" split_words:"true"`

	ListenAddr  string `yaml:"listenAddr"  split_words:"true"`
	MetricsAddr string `yaml:"metricsAddr" split_words:"true"`

	// P2PListenAddrs are libp2p multiaddrs. Gossip is disabled when empty.
	P2PListenAddrs []string `yaml:"p2pListenAddrs" envconfig:"P2P_LISTEN_ADDRS"`
	// P2PPeers are multiaddrs including the /p2p/ peer id to dial at start.
	P2PPeers    []string `yaml:"p2pPeers"    envconfig:"P2P_PEERS"`
	GossipTopic string   `yaml:"gossipTopic" split_words:"true"`

	LogLevel string `yaml:"logLevel" split_words:"true"`
}

func DefaultConfig() *Config {
	return &Config{
		Owner:       "owner",
		DataDir:     ".privpoll",
		KeyFile:     "privpoll.key",
		MaxCount:    1 << 20,
		ListenAddr:  "127.0.0.1:8080",
		MetricsAddr: "127.0.0.1:9090",
		GossipTopic: "polls",
		LogLevel:    "info",
	}
}

// LoadConfig reads the YAML file, if any, over the defaults and then applies
// environment overrides. Without an explicit file ~/.privpoll/privpoll.yaml is
// used when present.
func LoadConfig(configFile string) (*Config, error) {
	cfg := DefaultConfig()
	if configFile == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".privpoll", "privpoll.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Owner == "" {
		return errors.New("owner must be set")
	}
	if c.MaxCount == 0 {
		return errors.New("maxCount must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if len(c.P2PListenAddrs) > 0 && c.GossipTopic == "" {
		return errors.New("gossipTopic must be set when p2p is enabled")
	}
	return nil
}

// Level returns the parsed log level. Validate must have passed.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
