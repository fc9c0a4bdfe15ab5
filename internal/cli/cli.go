package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/repocull/repocull/pkg/buildinfo"
	"github.com/repocull/repocull/pkg/cache"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "repocull"

	// defaultRepodataTTL is how long fetched repodata stays cached.
	defaultRepodataTTL = 6 * time.Hour
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "repocull",
		Short:        "Repocull curates conda channel indexes",
		Long:         `Repocull downloads conda repodata, removes packages that violate a curation policy or can no longer be installed, and writes a smaller, consistent index that standard conda clients consume unchanged.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	// Register all subcommands
	root.AddCommand(c.curateCommand())
	root.AddCommand(c.explainCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Cache Factory
// =============================================================================

// newCache builds the cache backend named by the config. Unknown or
// unreachable backends fall back to no caching rather than failing the
// run.
func (c *CLI) newCache(cfg *Config, noCache bool) cache.Cache {
	if noCache {
		return cache.NewNullCache()
	}

	switch cfg.Cache.Backend {
	case "", "file":
		dir, err := cacheDir()
		if err != nil {
			c.Logger.Warn("cache disabled", "error", err)
			return cache.NewNullCache()
		}
		store, err := cache.NewFileCache(dir)
		if err != nil {
			c.Logger.Warn("cache disabled", "error", err)
			return cache.NewNullCache()
		}
		return store

	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store, err := cache.NewRedisCacheFromURL(ctx, cfg.Cache.RedisURL)
		if err != nil {
			c.Logger.Warn("redis cache unavailable, caching disabled", "error", err)
			return cache.NewNullCache()
		}
		return store

	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := cache.NewMongoCache(ctx, cfg.Cache.MongoURI, cfg.Cache.MongoDatabase, cfg.Cache.MongoCollection)
		if err != nil {
			c.Logger.Warn("mongo cache unavailable, caching disabled", "error", err)
			return cache.NewNullCache()
		}
		return store

	case "none":
		return cache.NewNullCache()

	default:
		c.Logger.Warn("unknown cache backend, caching disabled", "backend", cfg.Cache.Backend)
		return cache.NewNullCache()
	}
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/repocull/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
