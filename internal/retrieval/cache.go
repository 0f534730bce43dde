package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/corner-places/venue-engine/internal/cache"
	"github.com/corner-places/venue-engine/internal/observability"
)

// searchKeyPrefix namespaces cached search responses.
const searchKeyPrefix = "search:"

// ResponseCache caches search responses.
type ResponseCache struct {
	client cache.Client
	logger *observability.Logger
	config ResponseCacheConfig
	now    func() time.Time
}

// ResponseCacheConfig configures the response cache.
type ResponseCacheConfig struct {
	TTL     time.Duration
	Enabled bool
}

// NewResponseCache creates a new response cache.
func NewResponseCache(client cache.Client, logger *observability.Logger, config ResponseCacheConfig) *ResponseCache {
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	return &ResponseCache{
		client: client,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// CacheKey derives a deterministic key for a query and its resolved
// neighborhood.
func (c *ResponseCache) CacheKey(q Query, neighborhood string) string {
	parts := []string{
		strings.ToLower(strings.Join(strings.Fields(q.Text), " ")),
		strings.ToLower(neighborhood),
		strconv.Itoa(q.Limit),
		strconv.FormatFloat(q.Boost, 'f', 4, 64),
	}
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return cache.CacheKey("search", hex.EncodeToString(hash[:16]))
}

// CachedResponse wraps a response with its cache timestamps.
type CachedResponse struct {
	Response  *Response `json:"response"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Get returns a cached response if one is present and fresh.
func (c *ResponseCache) Get(ctx context.Context, q Query, neighborhood string) (*Response, bool) {
	if !c.config.Enabled || c.client == nil {
		return nil, false
	}

	key := c.CacheKey(q, neighborhood)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Debug().Err(err).Str("key", key).Msg("Cache get error")
		}
		return nil, false
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached response")
		return nil, false
	}

	if c.now().After(cached.ExpiresAt) || cached.Response == nil {
		return nil, false
	}

	c.logger.Debug().Str("key", key).Msg("Cache hit")
	return cached.Response, true
}

// Set caches a search response.
func (c *ResponseCache) Set(ctx context.Context, q Query, neighborhood string, resp *Response) error {
	if !c.config.Enabled || c.client == nil {
		return nil
	}

	key := c.CacheKey(q, neighborhood)
	now := c.now()
	data, err := json.Marshal(CachedResponse{
		Response:  resp,
		CachedAt:  now,
		ExpiresAt: now.Add(c.config.TTL),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.config.TTL); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache response")
		return err
	}

	c.logger.Debug().Str("key", key).Dur("ttl", c.config.TTL).Msg("Cached response")
	return nil
}

// Invalidate drops every cached search response.
func (c *ResponseCache) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	c.logger.Info().Msg("Invalidating search cache")
	return c.client.DeleteByPrefix(ctx, searchKeyPrefix)
}

// WatchInvalidations clears the cache whenever a venues-updated notification
// arrives. It blocks until ctx is done or the subscription closes.
func (c *ResponseCache) WatchInvalidations(ctx context.Context, notifier cache.Notifier) error {
	messages, unsubscribe, err := notifier.Subscribe(ctx, cache.ChannelVenuesUpdated)
	if err != nil {
		return err
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.logger.Debug().Str("payload", string(msg)).Msg("Venues updated notification")
			if err := c.Invalidate(ctx); err != nil {
				c.logger.Error().Err(err).Msg("Failed to invalidate search cache")
			}
		}
	}
}

// VenuesUpdated is the payload published after a persist or embed run.
type VenuesUpdated struct {
	RunID string    `json:"run_id"`
	Stage string    `json:"stage"`
	Count int       `json:"count"`
	At    time.Time `json:"at"`
}

// NotifyVenuesUpdated publishes a venues-updated notification.
func NotifyVenuesUpdated(ctx context.Context, notifier cache.Notifier, msg VenuesUpdated) error {
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}
	return notifier.Publish(ctx, cache.ChannelVenuesUpdated, msg)
}
