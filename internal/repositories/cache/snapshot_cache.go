package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ds-advance/api/internal/domain"
	"github.com/ds-advance/api/internal/repositories"
)

const (
	keyPrefix  = "pricing:snapshot:"
	defaultTTL = time.Minute
)

// SnapshotKind names one cached slice of the pricing snapshot.
type SnapshotKind string

const (
	KindCatalog      SnapshotKind = "catalog"
	KindPromotions   SnapshotKind = "promotions"
	KindTaxRates     SnapshotKind = "tax_rates"
	KindSpecialRates SnapshotKind = "special_rates"
)

// Sources are the repositories the cache reads through to.
type Sources struct {
	Catalog      repositories.ServiceCatalogRepository
	SpecialRates repositories.SpecialRateRepository
	Promotions   repositories.PromotionRepository
	TaxRates     repositories.TaxRateRepository
}

// SnapshotCacheDeps bundles collaborators for the snapshot cache.
type SnapshotCacheDeps struct {
	Client  redis.Cmdable
	Sources Sources
	TTL     time.Duration
	Logger  func(context.Context, string, map[string]any)
}

// SnapshotCache serves the list reads the pricing engine needs from Redis and falls through to
// the wrapped repositories on a miss. Redis failures are logged and never surfaced.
type SnapshotCache struct {
	client  redis.Cmdable
	sources Sources
	ttl     time.Duration
	logger  func(context.Context, string, map[string]any)
}

var (
	_ repositories.ServiceCatalogRepository = (*SnapshotCache)(nil)
	_ repositories.SpecialRateRepository    = (*SnapshotCache)(nil)
	_ repositories.PromotionRepository      = (*SnapshotCache)(nil)
	_ repositories.TaxRateRepository        = (*SnapshotCache)(nil)
)

// NewSnapshotCache wraps the source repositories with a Redis read-through cache.
func NewSnapshotCache(deps SnapshotCacheDeps) (*SnapshotCache, error) {
	if deps.Client == nil {
		return nil, errors.New("snapshot cache: redis client is required")
	}
	src := deps.Sources
	if src.Catalog == nil || src.SpecialRates == nil || src.Promotions == nil || src.TaxRates == nil {
		return nil, errors.New("snapshot cache: all source repositories are required")
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &SnapshotCache{client: deps.Client, sources: src, ttl: ttl, logger: logger}, nil
}

// Key returns the Redis key for kind, scoped to a customer for special rates.
func Key(kind SnapshotKind, customerID string) string {
	key := keyPrefix + string(kind)
	if customerID = strings.TrimSpace(customerID); customerID != "" {
		key += ":" + customerID
	}
	return key
}

func (c *SnapshotCache) ListServices(ctx context.Context) ([]domain.ServiceCatalogEntry, error) {
	return readThrough(ctx, c, Key(KindCatalog, ""), c.sources.Catalog.ListServices)
}

func (c *SnapshotCache) FindService(ctx context.Context, serviceID string) (domain.ServiceCatalogEntry, error) {
	return c.sources.Catalog.FindService(ctx, serviceID)
}

func (c *SnapshotCache) ListActive(ctx context.Context) ([]domain.Promotion, error) {
	return readThrough(ctx, c, Key(KindPromotions, ""), c.sources.Promotions.ListActive)
}

func (c *SnapshotCache) FindByID(ctx context.Context, promotionID string) (domain.Promotion, error) {
	return c.sources.Promotions.FindByID(ctx, promotionID)
}

func (c *SnapshotCache) ListTaxRates(ctx context.Context) ([]domain.TaxRate, error) {
	return readThrough(ctx, c, Key(KindTaxRates, ""), c.sources.TaxRates.ListTaxRates)
}

func (c *SnapshotCache) ListByCustomer(ctx context.Context, customerID string) ([]domain.SpecialRate, error) {
	return readThrough(ctx, c, Key(KindSpecialRates, customerID), func(ctx context.Context) ([]domain.SpecialRate, error) {
		return c.sources.SpecialRates.ListByCustomer(ctx, customerID)
	})
}

// Insert writes through and drops the customer's cached rates.
func (c *SnapshotCache) Insert(ctx context.Context, rate domain.SpecialRate, guard repositories.SpecialRateGuard) (domain.SpecialRate, error) {
	saved, err := c.sources.SpecialRates.Insert(ctx, rate, guard)
	if err != nil {
		return domain.SpecialRate{}, err
	}
	c.invalidateKeys(ctx, Key(KindSpecialRates, rate.CustomerID))
	return saved, nil
}

// Delete writes through and drops the customer's cached rates.
func (c *SnapshotCache) Delete(ctx context.Context, customerID string, rateID string) error {
	if err := c.sources.SpecialRates.Delete(ctx, customerID, rateID); err != nil {
		return err
	}
	c.invalidateKeys(ctx, Key(KindSpecialRates, customerID))
	return nil
}

// Invalidate drops the shared cached slices. Special rates are invalidated per customer on write.
func (c *SnapshotCache) Invalidate(ctx context.Context, kinds ...SnapshotKind) {
	keys := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		keys = append(keys, Key(kind, ""))
	}
	c.invalidateKeys(ctx, keys...)
}

// Ping reports Redis reachability for readiness probes.
func (c *SnapshotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *SnapshotCache) invalidateKeys(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger(ctx, "snapshot_cache_invalidate_failed", map[string]any{"keys": keys, "error": err.Error()})
	}
}

func readThrough[T any](ctx context.Context, c *SnapshotCache, key string, load func(context.Context) (T, error)) (T, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached T
		decodeErr := json.Unmarshal(raw, &cached)
		if decodeErr == nil {
			return cached, nil
		}
		c.logger(ctx, "snapshot_cache_decode_failed", map[string]any{"key": key, "error": decodeErr.Error()})
	case !errors.Is(err, redis.Nil):
		c.logger(ctx, "snapshot_cache_read_failed", map[string]any{"key": key, "error": err.Error()})
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		c.logger(ctx, "snapshot_cache_encode_failed", map[string]any{"key": key, "error": err.Error()})
		return value, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger(ctx, "snapshot_cache_write_failed", map[string]any{"key": key, "error": err.Error()})
	}
	return value, nil
}
