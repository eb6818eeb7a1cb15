package geo

import (
	"context"

	"github.com/retrotrack/backend/internal/utils"
)

// MockGeocoder places each address at a stable pseudo-random point inside
// Vietnam. It never fails and needs no credentials.
type MockGeocoder struct{}

func (MockGeocoder) Geocode(ctx context.Context, address string) (Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return Coordinates{}, fail("mock geocode", FailureNetwork, err)
	}
	h := utils.AddressHash(address)
	lat := 8.6 + float64(h%14000)/1000
	lon := 102.2 + float64((h/14000)%7000)/1000
	return Coordinates{Lat: lat, Lon: lon}, nil
}

// MockRouter converts great-circle distance to driving time at a fixed speed.
type MockRouter struct {
	SpeedKmh float64
}

func (m MockRouter) RouteSeconds(ctx context.Context, from, to Coordinates) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fail("mock routing", FailureNetwork, err)
	}
	speed := m.SpeedKmh
	if speed <= 0 {
		speed = 40
	}
	km := utils.HaversineKm(from.Lat, from.Lon, to.Lat, to.Lon)
	return utils.StraightLineSeconds(km, speed), nil
}
