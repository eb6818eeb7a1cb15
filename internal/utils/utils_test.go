package utils

import (
	"math"
	"testing"
)

func TestAddressHashIgnoresCaseAndSpacing(t *testing.T) {
	a := AddressHash("12 Le Loi,  Hue")
	b := AddressHash(" 12 le loi, HUE ")
	if a != b {
		t.Fatalf("expected equal hashes, got %x and %x", a, b)
	}
	if AddressHash("12 Le Loi, Hue") == AddressHash("13 Le Loi, Hue") {
		t.Fatalf("expected different addresses to hash differently")
	}
}

func TestHaversineKm(t *testing.T) {
	// Hanoi to Ho Chi Minh City, roughly 1140 km.
	km := HaversineKm(21.0285, 105.8542, 10.7769, 106.7009)
	if math.Abs(km-1140) > 15 {
		t.Fatalf("unexpected distance %.1f km", km)
	}
	if d := HaversineKm(16.46, 107.59, 16.46, 107.59); d != 0 {
		t.Fatalf("expected 0 for identical points, got %f", d)
	}
}

func TestStraightLineSeconds(t *testing.T) {
	if got := StraightLineSeconds(80, 40); got != 7200 {
		t.Fatalf("expected 7200s, got %f", got)
	}
	if got := StraightLineSeconds(80, 0); got != 0 {
		t.Fatalf("expected 0 for non-positive speed, got %f", got)
	}
}
