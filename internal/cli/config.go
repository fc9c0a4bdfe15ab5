package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/repocull/repocull/pkg/policy"
)

// Config is the optional repocull.toml configuration file. Every value
// has a flag counterpart; flags win when both are set.
type Config struct {
	ChannelAlias string   `toml:"channel_alias"`
	Archs        []string `toml:"archs"`
	Output       string   `toml:"output"`
	Matchspecs   string   `toml:"matchspecs"`
	Anchors      []string `toml:"anchors"`
	BanFeatures  []string `toml:"ban_features"`
	KeepDev      bool     `toml:"keep_dev"`
	KeepRC       bool     `toml:"keep_rc"`
	MaxPasses    int      `toml:"max_passes"`
	Workers      int      `toml:"workers"`

	Cache CacheConfig `toml:"cache"`
}

// CacheConfig selects and configures the cache backend.
type CacheConfig struct {
	Backend         string `toml:"backend"` // file (default), redis, mongo, none
	RedisURL        string `toml:"redis_url"`
	MongoURI        string `toml:"mongo_uri"`
	MongoDatabase   string `toml:"mongo_database"`
	MongoCollection string `toml:"mongo_collection"`
}

// defaultConfig returns the configuration used when no file exists.
func defaultConfig() *Config {
	return &Config{
		ChannelAlias: policy.DefaultChannelAlias,
		Archs:        []string{"linux-64"},
		Output:       "out",
		Anchors:      []string{"python"},
		BanFeatures:  []string{"pypy"},
		MaxPasses:    policy.DefaultMaxClosurePasses,
		Cache: CacheConfig{
			Backend:         "file",
			MongoDatabase:   appName,
			MongoCollection: "cache",
		},
	}
}

// loadConfig reads a TOML config file over the defaults. An empty path
// tries ./repocull.toml and treats its absence as defaults-only.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		path = appName + ".toml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
