package cache

// ScopedKeyer wraps a Keyer with a prefix so separate channels or
// deployments sharing one backend get isolated namespaces.
//
// Example usage:
//
//	// Keys for a private mirror
//	mirrorKeyer := NewScopedKeyer(NewDefaultKeyer(), "mirror:internal:")
//
//	// Keys for the public channel
//	publicKeyer := NewDefaultKeyer()
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// RepodataKey generates a prefixed key for repodata caching.
func (k *ScopedKeyer) RepodataKey(channel, subdir string) string {
	return k.prefix + k.inner.RepodataKey(channel, subdir)
}

// ReportKey generates a prefixed key for run reports.
func (k *ScopedKeyer) ReportKey(runID string) string {
	return k.prefix + k.inner.ReportKey(runID)
}

// HTTPKey generates a prefixed key for HTTP response caching.
func (k *ScopedKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.inner.HTTPKey(namespace, key)
}
