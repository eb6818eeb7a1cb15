package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/retrotrack/backend/internal/db"
	"github.com/retrotrack/backend/internal/geo"
	"github.com/retrotrack/backend/internal/models"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// record builds a shipment starting at t0 with hour offsets for the
// expected and actual delivery.
func record(base string, expectedH, actualH float64) models.ShipmentRecord {
	return models.ShipmentRecord{
		BaseAddress:          base,
		ShippingAddress:      "B",
		StartingTime:         t0,
		ExpectedDeliveryTime: t0.Add(time.Duration(expectedH * float64(time.Hour))),
		ActualDeliveryTime:   t0.Add(time.Duration(actualH * float64(time.Hour))),
		ExpectedCost:         100000,
		ActualCost:           400000,
		MaxCostPerHour:       20000,
	}
}

type fakeGeocoder struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]geo.FailureKind
}

func newFakeGeocoder() *fakeGeocoder {
	return &fakeGeocoder{calls: map[string]int{}, fail: map[string]geo.FailureKind{}}
}

func (f *fakeGeocoder) Geocode(ctx context.Context, address string) (geo.Coordinates, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[address]++
	if kind, ok := f.fail[address]; ok {
		return geo.Coordinates{}, &geo.Failure{Op: "fake geocode", Kind: kind, Err: errors.New("unavailable")}
	}
	return geo.Coordinates{Lat: 10, Lon: float64(len(address))}, nil
}

func (f *fakeGeocoder) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakeRouter struct {
	mu      sync.Mutex
	seconds float64
	err     error
	calls   int
	// delay is spent before answering, or until ctx ends
	delay time.Duration
	// onCall runs with the 1-based call number before the answer
	onCall func(n int)
}

func (f *fakeRouter) RouteSeconds(ctx context.Context, from, to geo.Coordinates) (float64, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onCall != nil {
		f.onCall(f.calls)
	}
	return f.seconds, f.err
}

type captureWriter struct {
	updates []models.OptimizationUpdate
	err     error
	// ctxErr is the state of the write context when the write arrived
	ctxErr error
}

func (c *captureWriter) SaveOptimizations(ctx context.Context, updates []models.OptimizationUpdate) (int, error) {
	c.ctxErr = ctx.Err()
	if c.err != nil {
		return 0, c.err
	}
	c.updates = append(c.updates, updates...)
	return len(updates), nil
}

func newSQLiteRepo(t *testing.T) db.Repository {
	t.Helper()
	s, err := db.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newPipeline(t *testing.T, router *fakeRouter) (*Pipeline, *fakeGeocoder) {
	t.Helper()
	repo := newSQLiteRepo(t)
	g := newFakeGeocoder()
	return &Pipeline{
		Repo: repo,
		Optimizer: &Optimizer{
			Geocoder: g,
			Router:   router,
			Store:    repo,
			Workers:  4,
			Logger:   zerolog.Nop(),
		},
		Logger: zerolog.Nop(),
	}, g
}
