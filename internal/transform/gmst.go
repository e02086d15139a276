package transform

import (
	"math"
	"time"
)

const (
	// j2000 is the Julian Date of 2000-01-01 12:00:00.
	j2000 = 2451545.0

	// OmegaEarth is Earth's rotation rate in rad/s.
	OmegaEarth = 7.292115146706979e-5

	secondsPerDay = 86400.0
)

var j2000Epoch = time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

// JulianDate converts a UTC instant to a Julian Date. Leap seconds are
// ignored, matching the UTC-as-UT1 treatment in GMST.
func JulianDate(t time.Time) float64 {
	return j2000 + daysSinceJ2000(t)
}

// daysSinceJ2000 is computed from the time difference directly so the
// fractional day keeps full precision instead of riding on a 2.4e6 offset.
func daysSinceJ2000(t time.Time) float64 {
	return t.Sub(j2000Epoch).Seconds() / secondsPerDay
}

// GMST returns Greenwich Mean Sidereal Time in radians, IAU-82 model
// (Vallado eq. 3-47), treating UTC as UT1:
//
//	GMST = 67310.54841 + (876600h + 8640184.812866)T + 0.093104T^2 - 6.2e-6T^3
//
// with T in Julian centuries from J2000.0 and the result in seconds of time.
func GMST(t time.Time) float64 {
	T := daysSinceJ2000(t) / 36525.0

	// 876600h = 3155760000 s.
	sec := 67310.54841 + T*(3155760000.0+8640184.812866+T*(0.093104-6.2e-6*T))

	sec = math.Mod(sec, secondsPerDay)
	if sec < 0 {
		sec += secondsPerDay
	}
	return sec / secondsPerDay * 2 * math.Pi
}
