// Package geo holds the geocoding and routing collaborators used to compute
// optimized travel times.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%f,%f", c.Lat, c.Lon)
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinates, error)
}

// Router estimates the driving time between two points, in seconds.
type Router interface {
	RouteSeconds(ctx context.Context, from, to Coordinates) (float64, error)
}

type FailureKind string

const (
	FailureNetwork   FailureKind = "network"
	FailureStatus    FailureKind = "status"
	FailureMalformed FailureKind = "malformed"
	FailureNotFound  FailureKind = "not_found"
)

// Failure is the only error type returned by the providers in this package.
type Failure struct {
	Op   string
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

var ErrNotFound = errors.New("no result")

// KindOf classifies err. Errors that are not a *Failure count as network
// failures.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return FailureNetwork
}

func fail(op string, kind FailureKind, err error) error {
	return &Failure{Op: op, Kind: kind, Err: err}
}

type httpStatusError struct {
	StatusCode int
	Status     string
}

func (e *httpStatusError) Error() string {
	return "http error: " + e.Status
}

func defaultClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}
