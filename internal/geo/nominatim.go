package geo

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// NominatimGeocoder talks to an OpenStreetMap Nominatim instance. The public
// instance allows one request per second, which is the default limit.
type NominatimGeocoder struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
	Limiter   *rate.Limiter
}

func NewNominatim(baseURL, userAgent string) *NominatimGeocoder {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	if userAgent == "" {
		userAgent = "retrotrack-backend"
	}
	return &NominatimGeocoder{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: userAgent,
		Client:    defaultClient(),
		Limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

type nominatimItem struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Importance  float64 `json:"importance"`
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, address string) (Coordinates, error) {
	client := g.Client
	if client == nil {
		client = defaultClient()
	}
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	header := http.Header{}
	header.Set("User-Agent", g.UserAgent)

	var items []nominatimItem
	if err := getJSON(ctx, client, g.Limiter, "nominatim geocode", g.BaseURL+"/search?"+q.Encode(), header, &items); err != nil {
		return Coordinates{}, err
	}
	return parseNominatimItems(items)
}

func parseNominatimItems(items []nominatimItem) (Coordinates, error) {
	if len(items) == 0 {
		return Coordinates{}, fail("nominatim geocode", FailureNotFound, ErrNotFound)
	}
	lat, err := strconv.ParseFloat(items[0].Lat, 64)
	if err != nil {
		return Coordinates{}, fail("nominatim geocode", FailureMalformed, err)
	}
	lon, err := strconv.ParseFloat(items[0].Lon, 64)
	if err != nil {
		return Coordinates{}, fail("nominatim geocode", FailureMalformed, err)
	}
	return Coordinates{Lat: lat, Lon: lon}, nil
}
