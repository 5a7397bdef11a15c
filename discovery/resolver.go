// Package discovery resolves OIDC endpoints from well-known configuration
// documents. Most providers ship static endpoints; discovery exists for the
// self-hosted ones whose URLs differ per installation.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"

	"github.com/goliatone/go-social"
)

const (
	// cacheTTL bounds how stale a discovery document may get. Endpoint
	// moves are rare; a day keeps login latency flat without pinning URLs
	// forever.
	cacheTTL = 24 * time.Hour

	// lockWait bounds how long a request waits on a concurrent fetch for
	// the same document before fetching on its own.
	lockWait = 15 * time.Second
)

// Document is the subset of an OIDC discovery response the broker uses.
type Document struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

// Resolver fetches and caches discovery documents keyed by well-known URL.
// A single resolver is shared by every discovery-backed provider.
type Resolver struct {
	httpClient *http.Client
	cache      *gocache.Cache

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// NewResolver creates a resolver with its own document cache.
func NewResolver(httpClient *http.Client) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{
		httpClient: httpClient,
		cache:      gocache.New(cacheTTL, 2*cacheTTL),
		locks:      map[string]*semaphore.Weighted{},
	}
}

// Resolve returns the discovery document for wellKnownURL, from cache when
// fresh. Concurrent requests for the same URL coalesce behind a per-URL
// lock; a request that cannot take the lock within the wait window fetches
// directly rather than failing the login behind it.
func (r *Resolver) Resolve(ctx context.Context, wellKnownURL string) (*Document, error) {
	if doc, ok := r.cached(wellKnownURL); ok {
		return doc, nil
	}

	lock := r.lockFor(wellKnownURL)

	waitCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()

	if err := lock.Acquire(waitCtx, 1); err != nil {
		// Lock holder is slow or stuck. Fetch on our own and let the
		// holder's result land in the cache whenever it finishes.
		return r.fetch(ctx, wellKnownURL)
	}
	defer lock.Release(1)

	// Another request may have populated the cache while we waited.
	if doc, ok := r.cached(wellKnownURL); ok {
		return doc, nil
	}

	doc, err := r.fetch(ctx, wellKnownURL)
	if err != nil {
		return nil, err
	}

	r.cache.Set(wellKnownURL, doc, cacheTTL)
	return doc, nil
}

func (r *Resolver) cached(key string) (*Document, bool) {
	if entry, ok := r.cache.Get(key); ok {
		if doc, ok := entry.(*Document); ok {
			return doc, true
		}
	}
	return nil, false
}

func (r *Resolver) lockFor(key string) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lock, ok := r.locks[key]; ok {
		return lock
	}
	lock := semaphore.NewWeighted(1)
	r.locks[key] = lock
	return lock
}

func (r *Resolver) fetch(ctx context.Context, wellKnownURL string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnownURL, nil)
	if err != nil {
		return nil, r.unavailable(wellKnownURL, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, r.unavailable(wellKnownURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, r.unavailable(wellKnownURL, fmt.Errorf("discovery returned status %d", resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "json") {
		return nil, r.unavailable(wellKnownURL, fmt.Errorf("discovery returned content type %q", contentType))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, r.unavailable(wellKnownURL, err)
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, r.unavailable(wellKnownURL, err)
	}

	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" {
		return nil, r.unavailable(wellKnownURL, fmt.Errorf("discovery document missing required endpoints"))
	}

	return &doc, nil
}

func (r *Resolver) unavailable(wellKnownURL string, err error) error {
	clone := social.ErrProviderUnavailable.Clone()
	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"well_known_url": wellKnownURL,
	})
}
