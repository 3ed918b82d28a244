// Package embedclient wraps an embeddings.Provider with a bounded LRU cache
// and request coalescing, so concurrent verb dispatches asking for the same
// text's vector never hit the backend more than once.
package embedclient

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/semem-go/semem/pkg/provider/embeddings"
)

// ErrProvider wraps any error returned by the underlying embeddings.Provider.
var ErrProvider = errors.New("embedclient: provider error")

// ErrDimensionMismatch is returned when a provider returns a vector whose
// length does not match the Client's configured dimension.
var ErrDimensionMismatch = errors.New("embedclient: dimension mismatch")

// Client caches and coalesces calls to an embeddings.Provider.
//
// The cache key is the SHA-256 digest of the NFC-normalised, whitespace-
// trimmed input text, so that texts differing only by a composed-vs-
// decomposed Unicode form or leading/trailing whitespace share a cache entry.
// Client is safe for concurrent use.
type Client struct {
	provider embeddings.Provider
	capacity int
	ttl      time.Duration // zero means entries never expire

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	flight singleflight.Group

	now func() time.Time
}

type cacheEntry struct {
	key      string
	vector   []float32
	cachedAt time.Time
}

// New constructs a Client wrapping provider with an LRU cache holding up to
// capacity entries. A non-positive capacity disables caching (every call
// reaches the provider, still coalesced via singleflight). A zero ttl means
// cached entries never expire on their own (only LRU eviction removes them);
// a positive ttl causes a cache hit older than ttl to be treated as a miss
// and lazily revalidated against the provider on next use.
func New(provider embeddings.Provider, capacity int, ttl time.Duration) *Client {
	return &Client{
		provider: provider,
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Embed returns the embedding vector for text, serving from cache when
// possible and coalescing concurrent identical requests into one call to the
// underlying provider.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)

	if v, ok := c.get(key); ok {
		return v, nil
	}

	result, err, _ := c.flight.Do(key, func() (any, error) {
		if v, ok := c.get(key); ok {
			return v, nil
		}
		v, err := c.provider.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProvider, err)
		}
		if dim := c.provider.Dimensions(); dim > 0 && len(v) != dim {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
		}
		c.put(key, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// EmbedBatch embeds each text in texts, using the cache/coalescing path for
// each element individually. The returned slice has the same length and
// order as texts; an error aborts the whole batch, matching
// embeddings.Provider.EmbedBatch's all-or-nothing contract.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := c.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the underlying provider's embedding dimension.
func (c *Client) Dimensions() int { return c.provider.Dimensions() }

// ModelID returns the underlying provider's model identifier.
func (c *Client) ModelID() string { return c.provider.ModelID() }

func (c *Client) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.ttl > 0 && c.now().Sub(entry.cachedAt) > c.ttl {
		// Stale — evict now and report a miss so the caller revalidates.
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.vector, true
}

func (c *Client) put(key string, vector []float32) {
	if c.capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.vector = vector
		entry.cachedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{key: key, vector: vector, cachedAt: c.now()})
	c.entries[key] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// cacheKey normalises text to NFC, trims surrounding whitespace, and returns
// the hex-encoded SHA-256 digest of the result.
func cacheKey(text string) string {
	normalised := strings.TrimSpace(norm.NFC.String(text))
	sum := sha256.Sum256([]byte(normalised))
	return hex.EncodeToString(sum[:])
}
