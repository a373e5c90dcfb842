package types

import (
	"math"
	"testing"
)

func TestDistanceKm(t *testing.T) {
	newYork := Coordinates{Lat: 40.7128, Lng: -74.0060}
	losAngeles := Coordinates{Lat: 34.0522, Lng: -118.2437}

	tests := []struct {
		name string
		a, b Coordinates
		want float64
		tol  float64
	}{
		{"same point", newYork, newYork, 0, 0.0001},
		{"NY to LA", newYork, losAngeles, 3936, 15},
		{"symmetric", losAngeles, newYork, 3936, 15},
		{"quarter meridian", Coordinates{Lat: 0, Lng: 0}, Coordinates{Lat: 90, Lng: 0}, 10007.5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("DistanceKm: got %.2f, want %.2f±%.2f", got, tt.want, tt.tol)
			}
		})
	}
}

func TestCoordinatesValid(t *testing.T) {
	tests := []struct {
		c    Coordinates
		want bool
	}{
		{Coordinates{Lat: 0, Lng: 0}, true},
		{Coordinates{Lat: 91, Lng: 0}, false},
		{Coordinates{Lat: 0, Lng: -181}, false},
	}

	for _, tt := range tests {
		if got := tt.c.Valid(); got != tt.want {
			t.Errorf("%s.Valid(): got %v, want %v", tt.c, got, tt.want)
		}
	}
}
