package transform

import (
	"math"
	"testing"
)

func TestGeodeticToECEFMagnitude(t *testing.T) {
	eq := State(GeodeticToECEF(GeodeticPoint{}))
	if math.Abs(eq.Radius()-6378.137) > 1e-6 {
		t.Errorf("equatorial radius = %.6f km, want 6378.137 km", eq.Radius())
	}

	pole := State(GeodeticToECEF(GeodeticPoint{LatDeg: 90}))
	if math.Abs(pole.Radius()-6356.7523) > 1e-3 {
		t.Errorf("polar radius = %.4f km, want ~6356.7523 km", pole.Radius())
	}
}

func TestECEFToGeodeticRoundTrip(t *testing.T) {
	points := []GeodeticPoint{
		{LatDeg: 0, LonDeg: 0, AltKm: 400},
		{LatDeg: 51.64, LonDeg: -120.5, AltKm: 420},
		{LatDeg: -33.9, LonDeg: 151.2, AltKm: 0.05},
		{LatDeg: 0.05, LonDeg: 75, AltKm: 35786},
		{LatDeg: 89.9, LonDeg: 10, AltKm: 800},
	}

	for _, p := range points {
		got := ECEFToGeodetic(GeodeticToECEF(p))
		if math.Abs(got.LatDeg-p.LatDeg) > 1e-7 || math.Abs(got.LonDeg-p.LonDeg) > 1e-7 {
			t.Errorf("%+v: lat/lon = %.9f, %.9f", p, got.LatDeg, got.LonDeg)
		}
		if math.Abs(got.AltKm-p.AltKm) > 1e-5 {
			t.Errorf("%+v: alt = %.6f km", p, got.AltKm)
		}
	}
}

func TestECEFToGeodeticPole(t *testing.T) {
	got := ECEFToGeodetic(PositionECEF{Z: 6356.7523142 + 500})
	if math.Abs(got.LatDeg-90) > 1e-9 {
		t.Errorf("lat = %v, want 90", got.LatDeg)
	}
	if math.Abs(got.AltKm-500) > 1e-3 {
		t.Errorf("alt = %v, want 500", got.AltKm)
	}
}
