package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

const DefaultGeoapifyURL = "https://api.geoapify.com"

// Geoapify implements both Geocoder and Router against the Geoapify REST API.
type Geoapify struct {
	BaseURL string
	APIKey  string
	Lang    string
	Client  *http.Client
	Limiter *rate.Limiter
}

func NewGeoapify(baseURL, apiKey, lang string, rps float64) *Geoapify {
	g := &Geoapify{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Lang:    lang,
		Client:  defaultClient(),
	}
	if g.BaseURL == "" {
		g.BaseURL = DefaultGeoapifyURL
	}
	if rps > 0 {
		g.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return g
}

type geoapifyGeocodeResponse struct {
	Results []struct {
		Lat       *float64 `json:"lat"`
		Lon       *float64 `json:"lon"`
		Formatted string   `json:"formatted"`
	} `json:"results"`
}

type geoapifyRouteResponse struct {
	Results []struct {
		Time     *float64 `json:"time"`
		Distance float64  `json:"distance"`
	} `json:"results"`
}

func (g *Geoapify) client() *http.Client {
	if g.Client == nil {
		return defaultClient()
	}
	return g.Client
}

func (g *Geoapify) Geocode(ctx context.Context, address string) (Coordinates, error) {
	q := url.Values{}
	q.Set("text", address)
	q.Set("limit", "1")
	q.Set("format", "json")
	if g.Lang != "" {
		q.Set("lang", g.Lang)
	}
	q.Set("apiKey", g.APIKey)

	var body geoapifyGeocodeResponse
	if err := getJSON(ctx, g.client(), g.Limiter, "geoapify geocode", g.BaseURL+"/v1/geocode/search?"+q.Encode(), nil, &body); err != nil {
		return Coordinates{}, err
	}
	return parseGeoapifyGeocode(body)
}

func parseGeoapifyGeocode(body geoapifyGeocodeResponse) (Coordinates, error) {
	if len(body.Results) == 0 {
		return Coordinates{}, fail("geoapify geocode", FailureNotFound, ErrNotFound)
	}
	first := body.Results[0]
	if first.Lat == nil || first.Lon == nil {
		return Coordinates{}, fail("geoapify geocode", FailureMalformed, errors.New("result without coordinates"))
	}
	return Coordinates{Lat: *first.Lat, Lon: *first.Lon}, nil
}

func (g *Geoapify) RouteSeconds(ctx context.Context, from, to Coordinates) (float64, error) {
	q := url.Values{}
	q.Set("waypoints", fmt.Sprintf("%s|%s", from, to))
	q.Set("mode", "drive")
	q.Set("type", "short")
	q.Set("units", "metric")
	q.Set("format", "json")
	q.Set("apiKey", g.APIKey)

	var body geoapifyRouteResponse
	if err := getJSON(ctx, g.client(), g.Limiter, "geoapify routing", g.BaseURL+"/v1/routing?"+q.Encode(), nil, &body); err != nil {
		return 0, err
	}
	return parseGeoapifyRoute(body)
}

func parseGeoapifyRoute(body geoapifyRouteResponse) (float64, error) {
	if len(body.Results) == 0 {
		return 0, fail("geoapify routing", FailureNotFound, ErrNotFound)
	}
	secs := body.Results[0].Time
	if secs == nil || *secs < 0 || math.IsNaN(*secs) {
		return 0, fail("geoapify routing", FailureMalformed, errors.New("missing or invalid time"))
	}
	return *secs, nil
}
