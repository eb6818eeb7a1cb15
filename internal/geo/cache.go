package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/retrotrack/backend/internal/utils"
)

// GeocodeCache stores successful lookups only. Failures are never cached so
// a later pass can try the address again.
type GeocodeCache interface {
	Get(ctx context.Context, address string) (Coordinates, bool, error)
	Set(ctx context.Context, address string, c Coordinates) error
}

// CachedGeocoder consults Cache before delegating to Next. Cache errors are
// logged and treated as misses.
type CachedGeocoder struct {
	Next   Geocoder
	Cache  GeocodeCache
	Logger zerolog.Logger
}

func (g CachedGeocoder) Geocode(ctx context.Context, address string) (Coordinates, error) {
	c, ok, err := g.Cache.Get(ctx, address)
	if err != nil {
		g.Logger.Warn().Err(err).Msg("geocode cache read failed")
	}
	if ok {
		return c, nil
	}
	c, err = g.Next.Geocode(ctx, address)
	if err != nil {
		return Coordinates{}, err
	}
	if err := g.Cache.Set(ctx, address, c); err != nil {
		g.Logger.Warn().Err(err).Msg("geocode cache write failed")
	}
	return c, nil
}

func cacheKey(address string) string {
	return strconv.FormatUint(utils.AddressHash(address), 16)
}

type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Coordinates
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]Coordinates{}}
}

func (m *MemoryCache) Get(_ context.Context, address string) (Coordinates, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.entries[cacheKey(address)]
	return c, ok, nil
}

func (m *MemoryCache) Set(_ context.Context, address string, c Coordinates) error {
	m.mu.Lock()
	m.entries[cacheKey(address)] = c
	m.mu.Unlock()
	return nil
}

type RedisCache struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

// NewRedisCache parses a redis:// URL and verifies the connection.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{Client: client, Prefix: "geocode:", TTL: ttl}, nil
}

func (r *RedisCache) Get(ctx context.Context, address string) (Coordinates, bool, error) {
	data, err := r.Client.Get(ctx, r.Prefix+cacheKey(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Coordinates{}, false, nil
	}
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("get geocode cache: %w", err)
	}
	var c Coordinates
	if err := json.Unmarshal(data, &c); err != nil {
		return Coordinates{}, false, fmt.Errorf("decode geocode cache: %w", err)
	}
	return c, true, nil
}

func (r *RedisCache) Set(ctx context.Context, address string, c Coordinates) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := r.Client.Set(ctx, r.Prefix+cacheKey(address), data, r.TTL).Err(); err != nil {
		return fmt.Errorf("set geocode cache: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.Client.Close()
}
