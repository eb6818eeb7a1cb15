package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retrotrack/backend/internal/geo"
	"github.com/retrotrack/backend/internal/models"
)

func routeWithID(id int64, base string, expectedH, actualH float64) models.InefficientRoute {
	r := models.RouteFromRecord("ds", record(base, expectedH, actualH))
	r.ID = id
	return r
}

func TestFillOptimizedTimesCommitsShorterRoute(t *testing.T) {
	w := &captureWriter{}
	o := &Optimizer{Geocoder: newFakeGeocoder(), Router: &fakeRouter{seconds: 3600 * 10}, Store: w, Workers: 2, Logger: zerolog.Nop()}

	res, err := o.FillOptimizedTimes(context.Background(), []models.InefficientRoute{routeWithID(1, "A", 2, 30)})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Improved)
	require.Len(t, w.updates, 1)
	assert.Equal(t, int64(1), w.updates[0].RouteID)
	assert.Equal(t, 10.0, w.updates[0].OptimizedDeliveryHours)
	assert.Equal(t, 20.0, w.updates[0].TimeSavedHours)
}

func TestFillOptimizedTimesLeavesSlowerRouteAbsent(t *testing.T) {
	w := &captureWriter{}
	o := &Optimizer{Geocoder: newFakeGeocoder(), Router: &fakeRouter{seconds: 3600 * 35}, Store: w, Logger: zerolog.Nop()}

	res, err := o.FillOptimizedTimes(context.Background(), []models.InefficientRoute{routeWithID(1, "A", 2, 30)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 1, res.NotImproved)
	assert.Empty(t, w.updates)
}

func TestImprovementRequiresStrictlyShorter(t *testing.T) {
	r := routeWithID(1, "A", 2, 30)
	_, ok := Improvement(r, 30*3600)
	assert.False(t, ok)
	upd, ok := Improvement(r, 29*3600)
	assert.True(t, ok)
	assert.Equal(t, 1.0, upd.TimeSavedHours)
}

func TestFillOptimizedTimesSkipsAlreadyOptimized(t *testing.T) {
	g := newFakeGeocoder()
	router := &fakeRouter{seconds: 3600}
	w := &captureWriter{}
	o := &Optimizer{Geocoder: g, Router: router, Store: w, Logger: zerolog.Nop()}

	done := routeWithID(1, "A", 2, 30)
	ten, twenty := 10.0, 20.0
	done.OptimizedDeliveryHours, done.TimeSavedHours = &ten, &twenty

	res, err := o.FillOptimizedTimes(context.Background(), []models.InefficientRoute{done})
	require.NoError(t, err)
	assert.Equal(t, 1, res.AlreadyCached)
	assert.Equal(t, 0, res.Considered)
	assert.Equal(t, 0, g.total())
	assert.Equal(t, 0, router.calls)
}

func TestFillOptimizedTimesContinuesPastFailures(t *testing.T) {
	g := newFakeGeocoder()
	g.fail["Broken St"] = geo.FailureNotFound
	router := &fakeRouter{seconds: 3600}
	w := &captureWriter{}
	o := &Optimizer{Geocoder: g, Router: router, Store: w, Workers: 3, Logger: zerolog.Nop()}

	routes := []models.InefficientRoute{
		routeWithID(1, "Broken St", 2, 30),
		routeWithID(2, "A", 2, 30),
		routeWithID(3, "Broken St", 0, 40),
		routeWithID(4, "C", 2, 30),
	}
	res, err := o.FillOptimizedTimes(context.Background(), routes)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 2, res.Failures[geo.FailureNotFound])
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 1, g.calls["Broken St"], "a failed address is not retried within a pass")
	assert.Equal(t, 1, g.calls["B"], "shared addresses are geocoded once")
	assert.Equal(t, 2, router.calls)
}

func TestFillOptimizedTimesRoutingFailure(t *testing.T) {
	router := &fakeRouter{err: &geo.Failure{Op: "fake routing", Kind: geo.FailureStatus, Err: errors.New("502")}}
	o := &Optimizer{Geocoder: newFakeGeocoder(), Router: router, Store: &captureWriter{}, Logger: zerolog.Nop()}

	res, err := o.FillOptimizedTimes(context.Background(), []models.InefficientRoute{routeWithID(1, "A", 2, 30)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failures[geo.FailureStatus])
	assert.Equal(t, 0, res.Updated)
}

func TestFillOptimizedTimesKeepsPendingOnWriteFailure(t *testing.T) {
	w := &captureWriter{err: errors.New("connection reset")}
	o := &Optimizer{Geocoder: newFakeGeocoder(), Router: &fakeRouter{seconds: 3600}, Store: w, Logger: zerolog.Nop()}

	res, err := o.FillOptimizedTimes(context.Background(), []models.InefficientRoute{routeWithID(1, "A", 2, 30), routeWithID(2, "C", 2, 30)})
	require.Error(t, err)
	assert.Equal(t, 0, res.Updated)
	assert.Len(t, res.Pending, 2)
}

func TestFillOptimizedTimesCancelledBeforeStartWritesNothing(t *testing.T) {
	w := &captureWriter{}
	o := &Optimizer{Geocoder: newFakeGeocoder(), Router: &fakeRouter{seconds: 3600}, Store: w, Logger: zerolog.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.FillOptimizedTimes(ctx, []models.InefficientRoute{routeWithID(1, "A", 2, 30)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, w.updates)
	assert.Equal(t, 1, res.Unfinished)
	assert.Zero(t, res.Failed)
}

func TestFillOptimizedTimesAbortedPassKeepsFinishedRoutes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	router := &fakeRouter{seconds: 3600, onCall: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	w := &captureWriter{}
	o := &Optimizer{Geocoder: newFakeGeocoder(), Router: router, Store: w, Workers: 1, Logger: zerolog.Nop()}

	routes := []models.InefficientRoute{
		routeWithID(1, "A", 2, 30),
		routeWithID(2, "C", 2, 30),
		routeWithID(3, "D", 2, 30),
	}
	res, err := o.FillOptimizedTimes(ctx, routes)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, w.updates, 2)
	assert.Equal(t, int64(1), w.updates[0].RouteID)
	assert.Equal(t, int64(2), w.updates[1].RouteID)
	assert.NoError(t, w.ctxErr)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 1, res.Unfinished)
	assert.Zero(t, res.Failed)
}
