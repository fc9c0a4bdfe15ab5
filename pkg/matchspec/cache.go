package matchspec

import "sync"

// Cache dedupes parsed specs by their source string. Dependency strings
// repeat heavily across a channel (tens of thousands of records declare
// "python >=3.9,<3.10.0a0"), so the closure engine parses each distinct
// string once. Safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	specs map[string]*Spec
}

// NewCache creates a cache sized for the expected number of distinct
// specifier strings.
func NewCache(capacity int) *Cache {
	return &Cache{specs: make(map[string]*Spec, capacity)}
}

// Parse returns the cached spec for s, parsing and storing it on first
// use. Parse failures are not cached.
func (c *Cache) Parse(s string) (*Spec, error) {
	c.mu.RLock()
	spec, ok := c.specs[s]
	c.mu.RUnlock()
	if ok {
		return spec, nil
	}

	spec, err := Parse(s)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if cached, ok := c.specs[s]; ok {
		spec = cached
	} else {
		c.specs[s] = spec
	}
	c.mu.Unlock()
	return spec, nil
}

// Len returns the number of cached specs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.specs)
}
