package geo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGeocoder struct {
	calls int
	err   error
}

func (c *countingGeocoder) Geocode(ctx context.Context, address string) (Coordinates, error) {
	c.calls++
	if c.err != nil {
		return Coordinates{}, c.err
	}
	return MockGeocoder{}.Geocode(ctx, address)
}

func TestCachedGeocoderRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	cache, err := NewRedisCache(ctx, "redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)
	defer cache.Close()

	next := &countingGeocoder{}
	g := CachedGeocoder{Next: next, Cache: cache, Logger: zerolog.Nop()}

	first, err := g.Geocode(ctx, "1 Nguyen Hue")
	require.NoError(t, err)
	second, err := g.Geocode(ctx, "  1   nguyen hue ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls)
	assert.Len(t, mr.Keys(), 1)
	assert.Equal(t, time.Hour, mr.TTL(mr.Keys()[0]))
}

func TestCachedGeocoderDoesNotCacheFailures(t *testing.T) {
	next := &countingGeocoder{err: fail("test", FailureStatus, errors.New("boom"))}
	g := CachedGeocoder{Next: next, Cache: NewMemoryCache(), Logger: zerolog.Nop()}

	_, err := g.Geocode(context.Background(), "A")
	require.Error(t, err)
	_, err = g.Geocode(context.Background(), "A")
	require.Error(t, err)
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, FailureStatus, KindOf(err))
}

func TestCachedGeocoderRedisDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	cache, err := NewRedisCache(ctx, "redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)
	defer cache.Close()
	mr.Close()

	next := &countingGeocoder{}
	g := CachedGeocoder{Next: next, Cache: cache, Logger: zerolog.Nop()}
	_, err = g.Geocode(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
}

func TestMockProvidersAreDeterministic(t *testing.T) {
	ctx := context.Background()
	a1, _ := MockGeocoder{}.Geocode(ctx, "Hanoi")
	a2, _ := MockGeocoder{}.Geocode(ctx, "hanoi ")
	b, _ := MockGeocoder{}.Geocode(ctx, "Da Nang")
	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)

	secs, err := MockRouter{SpeedKmh: 60}.RouteSeconds(ctx, a1, b)
	require.NoError(t, err)
	assert.Greater(t, secs, 0.0)
}
