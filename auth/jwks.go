package auth

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/jwkset"
	"golang.org/x/sync/singleflight"
)

const (
	jwksPath     = "/.well-known/jwks.json"
	keySetTTL    = time.Hour
	maxJWKSBytes = 1 << 20

	jwksDialTimeout  = 5 * time.Second
	jwksTotalTimeout = 10 * time.Second
)

// SigningKey is one verification key from a fetched key set.
type SigningKey struct {
	ID  string
	Alg string
	Use string
	Key crypto.PublicKey
}

type keySetEntry struct {
	keys      []SigningKey
	fetchedAt time.Time
}

// KeySetCache fetches and caches the platform's JWKS per base URL. The
// platform rotates keys infrequently, so entries are served from memory for
// an hour before being refetched; concurrent refreshes of the same base URL
// collapse into a single upstream request. Safe for concurrent use.
type KeySetCache struct {
	client *http.Client
	ttl    time.Duration
	now    func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]keySetEntry
}

// NewKeySetCache returns an empty cache with bounded fetch timeouts.
func NewKeySetCache() *KeySetCache {
	return &KeySetCache{
		client: &http.Client{
			Timeout: jwksTotalTimeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: jwksDialTimeout}).DialContext,
				TLSHandshakeTimeout: jwksDialTimeout,
			},
		},
		ttl:     keySetTTL,
		now:     time.Now,
		entries: make(map[string]keySetEntry),
	}
}

// Get returns the key set for baseURL, fetching it if the cached entry is
// absent or older than the TTL.
func (c *KeySetCache) Get(ctx context.Context, baseURL string) ([]SigningKey, error) {
	base := strings.TrimRight(baseURL, "/")

	c.mu.RLock()
	entry, ok := c.entries[base]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return entry.keys, nil
	}

	v, err, _ := c.group.Do(base, func() (any, error) {
		// A concurrent caller may have refreshed while we queued.
		c.mu.RLock()
		entry, ok := c.entries[base]
		c.mu.RUnlock()
		if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
			return entry.keys, nil
		}

		keys, err := c.fetch(ctx, base)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[base] = keySetEntry{keys: keys, fetchedAt: c.now()}
		c.mu.Unlock()
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]SigningKey), nil
}

// Clear drops every cached entry. Used for key-rotation drills and test
// isolation; the next Get per base URL refetches.
func (c *KeySetCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]keySetEntry)
	c.mu.Unlock()
}

func (c *KeySetCache) fetch(ctx context.Context, base string) ([]SigningKey, error) {
	url := base + jwksPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	var doc jwkset.JWKSMarshal
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("malformed key set: %w", err)}
	}

	keys := make([]SigningKey, 0, len(doc.Keys))
	for _, m := range doc.Keys {
		jwk, err := jwkset.NewJWKFromMarshal(m, jwkset.JWKMarshalOptions{}, jwkset.JWKValidateOptions{})
		if err != nil {
			// Skip keys we cannot materialize; key selection reports
			// ErrNoSigningKey when nothing usable remains.
			continue
		}
		keys = append(keys, SigningKey{
			ID:  m.KID,
			Alg: string(m.ALG),
			Use: string(m.USE),
			Key: jwk.Key(),
		})
	}
	return keys, nil
}
