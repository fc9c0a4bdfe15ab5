package fetch

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// CircuitBreakerClient wraps a Client with per-host circuit breakers,
// so a flapping mirror stops receiving traffic while other channels
// keep working.
type CircuitBreakerClient struct {
	inner    Client
	breakers map[string]*circuit.Breaker
	mu       sync.RWMutex
}

// NewCircuitBreakerClient creates a circuit breaker wrapper.
func NewCircuitBreakerClient(inner Client) *CircuitBreakerClient {
	return &CircuitBreakerClient{
		inner:    inner,
		breakers: make(map[string]*circuit.Breaker),
	}
}

// getBreaker returns or creates the breaker for one host.
func (c *CircuitBreakerClient) getBreaker(host string) *circuit.Breaker {
	c.mu.RLock()
	breaker, exists := c.breakers[host]
	c.mu.RUnlock()
	if exists {
		return breaker
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists := c.breakers[host]; exists {
		return breaker
	}

	// Trips after 5 consecutive failures, reopens on a backoff schedule
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	breaker = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(5),
	})
	c.breakers[host] = breaker
	return breaker
}

// Repodata fetches through the breaker for the channel's host.
func (c *CircuitBreakerClient) Repodata(ctx context.Context, channelAlias, subdir string) ([]byte, error) {
	host := hostOf(channelAlias)
	breaker := c.getBreaker(host)

	if !breaker.Ready() {
		return nil, fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}

	var data []byte
	err := breaker.Call(func() error {
		var fetchErr error
		data, fetchErr = c.inner.Repodata(ctx, channelAlias, subdir)
		return fetchErr
	}, 0)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// BreakerStates reports each host's breaker state, for health output.
func (c *CircuitBreakerClient) BreakerStates() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	states := make(map[string]string, len(c.breakers))
	for host, breaker := range c.breakers {
		if breaker.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}

func hostOf(channelAlias string) string {
	parsed, err := url.Parse(channelAlias)
	if err != nil || parsed.Host == "" {
		if len(channelAlias) > 50 {
			return channelAlias[:50]
		}
		return channelAlias
	}
	return parsed.Host
}

// Ensure CircuitBreakerClient implements Client.
var _ Client = (*CircuitBreakerClient)(nil)
