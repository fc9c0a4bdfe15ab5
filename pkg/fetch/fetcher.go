// Package fetch downloads repodata.json from a channel with DNS
// caching, retry with exponential backoff, and optional caching of the
// raw bytes.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/dnscache"

	"github.com/repocull/repocull/pkg/cache"
	"github.com/repocull/repocull/pkg/observability"
)

var (
	ErrNotFound     = errors.New("repodata not found")
	ErrRateLimited  = errors.New("rate limited by upstream")
	ErrUpstreamDown = errors.New("upstream channel unavailable")
)

// Client is implemented by anything that can produce the repodata.json
// bytes for one subdir of a channel.
type Client interface {
	Repodata(ctx context.Context, channelAlias, subdir string) ([]byte, error)
}

// Fetcher downloads repodata from a conda channel over HTTP.
type Fetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	store      cache.Cache
	keyer      cache.Keyer
	cacheTTL   time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxRetries sets the maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		f.maxRetries = n
	}
}

// WithBaseDelay sets the base delay for exponential backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.baseDelay = d
	}
}

// WithCache stores fetched repodata in the given cache for ttl. A nil
// store disables caching.
func WithCache(store cache.Cache, keyer cache.Keyer, ttl time.Duration) Option {
	return func(f *Fetcher) {
		f.store = store
		f.keyer = keyer
		f.cacheTTL = ttl
	}
}

// NewFetcher creates a Fetcher. The transport resolves hostnames
// through a refreshing DNS cache, which matters when a run fetches
// several subdirs from the same channel in quick succession.
func NewFetcher(opts ...Option) *Fetcher {
	resolver := &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			resolver.Refresh(true)
		}
	}()

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	f := &Fetcher{
		client: &http.Client{
			Timeout: 5 * time.Minute, // repodata.json can run to hundreds of MB
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
					}
					return nil, fmt.Errorf("failed to dial any resolved IP for %s", host)
				},
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		userAgent:  "repocull/1.0",
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.store != nil && f.keyer == nil {
		f.keyer = cache.NewDefaultKeyer()
	}
	return f
}

// RepodataURL builds the repodata.json URL for one subdir of a channel.
func RepodataURL(channelAlias, subdir string) string {
	return strings.TrimSuffix(channelAlias, "/") + "/" + subdir + "/repodata.json"
}

// Repodata returns the repodata.json bytes for one subdir, consulting
// the cache first when one is configured.
func (f *Fetcher) Repodata(ctx context.Context, channelAlias, subdir string) ([]byte, error) {
	var key string
	if f.store != nil {
		key = f.keyer.RepodataKey(channelAlias, subdir)
		data, hit, err := f.store.Get(ctx, key)
		if err == nil && hit {
			observability.Cache().OnCacheHit(ctx, "repodata")
			return data, nil
		}
		observability.Cache().OnCacheMiss(ctx, "repodata")
	}

	data, err := f.fetch(ctx, RepodataURL(channelAlias, subdir))
	if err != nil {
		return nil, err
	}

	if f.store != nil {
		if err := f.store.Set(ctx, key, data, f.cacheTTL); err == nil {
			observability.Cache().OnCacheSet(ctx, "repodata", len(data))
		}
	}
	return data, nil
}

// fetch downloads a URL with exponential backoff. Rate limits and
// server errors retry; not-found and client errors do not.
func (f *Fetcher) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff with 10% jitter to prevent thundering herd
			delay := f.baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			delay += time.Duration(float64(delay) * (rand.Float64() * 0.1))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		data, err := f.doFetch(ctx, rawURL)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamDown) {
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (f *Fetcher) doFetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	host, path := splitHostPath(rawURL)
	observability.HTTP().OnRequest(ctx, http.MethodGet, host, path)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, http.MethodGet, host, path, err)
		return nil, fmt.Errorf("fetching repodata: %w", err)
	}
	defer resp.Body.Close()
	observability.HTTP().OnResponse(ctx, http.MethodGet, host, path, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading repodata: %w", err)
		}
		return data, nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited

	case resp.StatusCode >= 500:
		return nil, ErrUpstreamDown

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

func splitHostPath(rawURL string) (host, path string) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, ""
	}
	return parsed.Host, parsed.Path
}

// Ensure Fetcher implements Client.
var _ Client = (*Fetcher)(nil)
