package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/retrotrack/backend/internal/geo"
	"github.com/retrotrack/backend/internal/metrics"
	"github.com/retrotrack/backend/internal/models"
)

type OptimizationWriter interface {
	SaveOptimizations(ctx context.Context, updates []models.OptimizationUpdate) (int, error)
}

// Optimizer fills in optimized delivery times for routes that have none.
// A stored optimized time is never recomputed.
type Optimizer struct {
	Geocoder geo.Geocoder
	Router   geo.Router
	Store    OptimizationWriter
	Workers  int
	Logger   zerolog.Logger
}

type FillResult struct {
	Considered    int                     `json:"considered"`
	AlreadyCached int                     `json:"already_cached"`
	Improved      int                     `json:"improved"`
	NotImproved   int                     `json:"not_improved"`
	Failed        int                     `json:"failed"`
	Failures      map[geo.FailureKind]int `json:"failures"`
	Updated       int                     `json:"updated"`
	// Unfinished counts routes the pass did not get to before its context
	// ended. They stay unoptimized for the next pass.
	Unfinished int `json:"unfinished"`
	// Partial is set when the fill budget ran out before every route was
	// tried. Whatever finished was still persisted.
	Partial bool `json:"partial"`
	// Pending holds computed updates that were not persisted. It is only
	// set when the final write fails, so the caller can retry it.
	Pending []models.OptimizationUpdate `json:"-"`
}

// flushTimeout bounds the write of completed updates after the pass's own
// context has ended.
const flushTimeout = 5 * time.Second

type fillOutcome struct {
	done        bool
	update      *models.OptimizationUpdate
	notImproved bool
	failedOp    string
	failure     error
}

// FillOptimizedTimes queries the geocoder and router for every route lacking
// an optimized time, then persists the improvements in a single write.
// External failures are counted and skipped. When ctx ends mid-pass the
// routes already computed are still written, on a short context of their
// own, and the context error is returned alongside the partial result.
// Otherwise the only error is the write failure.
func (o *Optimizer) FillOptimizedTimes(ctx context.Context, routes []models.InefficientRoute) (FillResult, error) {
	start := time.Now()
	defer func() { metrics.FillDuration.Observe(time.Since(start).Seconds()) }()

	res := FillResult{Failures: map[geo.FailureKind]int{}}
	todo := make([]models.InefficientRoute, 0, len(routes))
	for _, r := range routes {
		if r.Optimized() {
			res.AlreadyCached++
			continue
		}
		todo = append(todo, r)
	}
	res.Considered = len(todo)
	if len(todo) == 0 {
		return res, nil
	}

	book := newAddressBook(o.Geocoder)
	outcomes := make([]fillOutcome, len(todo))
	var g errgroup.Group
	g.SetLimit(o.workers())
	for i := range todo {
		g.Go(func() error {
			outcomes[i] = o.optimize(ctx, book, todo[i])
			return nil
		})
	}
	_ = g.Wait()
	aborted := ctx.Err()

	var updates []models.OptimizationUpdate
	for i, oc := range outcomes {
		switch {
		case !oc.done, aborted != nil && oc.failure != nil && isContextErr(oc.failure):
			res.Unfinished++
		case oc.failure != nil:
			kind := geo.KindOf(oc.failure)
			res.Failed++
			res.Failures[kind]++
			metrics.ExternalFailures.WithLabelValues(oc.failedOp, string(kind)).Inc()
			o.Logger.Debug().Err(oc.failure).Int64("route_id", todo[i].ID).Str("op", oc.failedOp).Msg("optimization skipped")
		case oc.notImproved:
			res.NotImproved++
		case oc.update != nil:
			res.Improved++
			updates = append(updates, *oc.update)
		}
	}

	if len(updates) > 0 {
		writeCtx := ctx
		if aborted != nil {
			var cancel context.CancelFunc
			writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			defer cancel()
		}
		n, err := o.Store.SaveOptimizations(writeCtx, updates)
		if err != nil {
			res.Pending = updates
			return res, fmt.Errorf("save optimizations: %w", err)
		}
		res.Updated = n
		metrics.OptimizationsSaved.Add(float64(n))
	}

	o.Logger.Info().
		Int("considered", res.Considered).
		Int("already_cached", res.AlreadyCached).
		Int("updated", res.Updated).
		Int("not_improved", res.NotImproved).
		Int("failed", res.Failed).
		Int("unfinished", res.Unfinished).
		Dur("elapsed", time.Since(start)).
		Msg("fill pass finished")
	return res, aborted
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (o *Optimizer) optimize(ctx context.Context, book *addressBook, r models.InefficientRoute) fillOutcome {
	if ctx.Err() != nil {
		return fillOutcome{}
	}
	oc := o.route(ctx, book, r)
	oc.done = true
	return oc
}

func (o *Optimizer) route(ctx context.Context, book *addressBook, r models.InefficientRoute) fillOutcome {
	from, err := book.lookup(ctx, r.BaseAddress)
	if err != nil {
		return fillOutcome{failedOp: "geocode", failure: err}
	}
	to, err := book.lookup(ctx, r.ShippingAddress)
	if err != nil {
		return fillOutcome{failedOp: "geocode", failure: err}
	}
	secs, err := o.Router.RouteSeconds(ctx, from, to)
	if err != nil {
		return fillOutcome{failedOp: "routing", failure: err}
	}
	upd, ok := Improvement(r, secs)
	if !ok {
		return fillOutcome{notImproved: true}
	}
	return fillOutcome{update: &upd}
}

func (o *Optimizer) workers() int {
	if o.Workers <= 0 {
		return 1
	}
	return o.Workers
}

// Improvement converts a routing estimate into an update. It reports false
// when the estimate is not shorter than the actual trip.
func Improvement(r models.InefficientRoute, routeSeconds float64) (models.OptimizationUpdate, bool) {
	optimized := routeSeconds / 3600
	actual := r.ActualDurationHours()
	if !(optimized < actual) {
		return models.OptimizationUpdate{}, false
	}
	return models.OptimizationUpdate{
		RouteID:                r.ID,
		OptimizedDeliveryHours: optimized,
		TimeSavedHours:         actual - optimized,
	}, true
}

// addressBook resolves each distinct address at most once per pass; a failed
// lookup stays failed for the rest of the pass.
type addressBook struct {
	geocoder geo.Geocoder
	mu       sync.Mutex
	entries  map[string]*addressEntry
}

type addressEntry struct {
	once   sync.Once
	coords geo.Coordinates
	err    error
}

func newAddressBook(g geo.Geocoder) *addressBook {
	return &addressBook{geocoder: g, entries: map[string]*addressEntry{}}
}

func (b *addressBook) lookup(ctx context.Context, address string) (geo.Coordinates, error) {
	b.mu.Lock()
	e, ok := b.entries[address]
	if !ok {
		e = &addressEntry{}
		b.entries[address] = e
	}
	b.mu.Unlock()

	e.once.Do(func() {
		e.coords, e.err = b.geocoder.Geocode(ctx, address)
	})
	return e.coords, e.err
}
