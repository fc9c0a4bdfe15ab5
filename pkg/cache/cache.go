// Package cache provides the caching layer for downloaded repodata and
// run artifacts.
//
// A Cache stores opaque bytes under string keys with optional TTL; a
// Keyer derives those keys so that every component naming the same
// logical object lands on the same entry. Backends cover local CLI use
// (file), shared deployments (redis, mongo), and disabled caching
// (null).
package cache

import (
	"context"
	"time"
)

// Cache is the storage contract shared by all backends.
type Cache interface {
	// Get retrieves a value. The second return reports whether the key
	// was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A non-positive ttl means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Keyer derives cache keys for the object kinds the engine stores.
type Keyer interface {
	// RepodataKey identifies one subdir's repodata.json for a channel.
	RepodataKey(channel, subdir string) string

	// ReportKey identifies the report of one curation run.
	ReportKey(runID string) string

	// HTTPKey identifies a raw HTTP response within a namespace.
	HTTPKey(namespace, key string) string
}

// DefaultKeyer is the standard key scheme. Repodata keys hash the
// channel URL so keys stay filesystem-safe regardless of the alias.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return &DefaultKeyer{}
}

// RepodataKey generates a key for one subdir of one channel.
func (k *DefaultKeyer) RepodataKey(channel, subdir string) string {
	return hashKey("repodata", channel, subdir)
}

// ReportKey generates a key for a run report.
func (k *DefaultKeyer) ReportKey(runID string) string {
	return "report:" + runID
}

// HTTPKey generates a key for HTTP response caching.
func (k *DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

// Ensure DefaultKeyer implements Keyer.
var _ Keyer = (*DefaultKeyer)(nil)
