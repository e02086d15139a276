// Package orbit derives two-body geometry from mean elements: the shape of
// the orbital ellipse, a fixed set of related orbits, and the two-burn
// transfer cost between them.
package orbit

import (
	"fmt"
	"math"

	"github.com/star/ascas/internal/tle"
)

const (
	// MuEarth is Earth's gravitational parameter, km^3/s^2.
	MuEarth = 398600.4418

	// EarthRadiusKm and MinAltitudeKm bound the periapsis of a usable orbit.
	EarthRadiusKm = 6378.0
	MinAltitudeKm = 200.0

	maxEccentricity = 0.9
	secondsPerDay   = 86400.0
)

// Ellipse is the in-plane shape of an orbit.
type Ellipse struct {
	SemiMajorKm   float64 `json:"semiMajorAxisKm"`
	SemiMinorKm   float64 `json:"semiMinorAxisKm"`
	Eccentricity  float64 `json:"eccentricity"`
	PeriapsisKm   float64 `json:"periapsisKm"`
	ApoapsisKm    float64 `json:"apoapsisKm"`
	PeriodMinutes float64 `json:"periodMinutes"`
}

// SemiMajorAxis returns a in km from mean motion in revolutions per day,
// by Kepler's third law.
func SemiMajorAxis(meanMotionRevPerDay float64) float64 {
	n := meanMotionRevPerDay * 2 * math.Pi / secondsPerDay // rad/s
	return math.Cbrt(MuEarth / (n * n))
}

// NewEllipse builds the ellipse for semi-major axis a (km) and eccentricity e.
func NewEllipse(a, e float64) Ellipse {
	return Ellipse{
		SemiMajorKm:   a,
		SemiMinorKm:   a * math.Sqrt(1-e*e),
		Eccentricity:  e,
		PeriapsisKm:   a * (1 - e),
		ApoapsisKm:    a * (1 + e),
		PeriodMinutes: 2 * math.Pi * math.Sqrt(a*a*a/MuEarth) / 60,
	}
}

// FromElements builds the ellipse of a parsed element set.
func FromElements(el tle.Elements) (Ellipse, error) {
	if el.MeanMotion <= 0 {
		return Ellipse{}, fmt.Errorf("mean motion must be positive, got %v", el.MeanMotion)
	}
	if el.Eccentricity < 0 || el.Eccentricity >= 1 {
		return Ellipse{}, fmt.Errorf("eccentricity %v outside [0, 1)", el.Eccentricity)
	}
	return NewEllipse(SemiMajorAxis(el.MeanMotion), el.Eccentricity), nil
}

// Equation renders the Cartesian ellipse equation in the orbital plane with
// two decimals, e.g. "(x / 6796.12)^2 + (y / 6796.12)^2 = 1".
func (e Ellipse) Equation() string {
	return fmt.Sprintf("(x / %.2f)^2 + (y / %.2f)^2 = 1", e.SemiMajorKm, e.SemiMinorKm)
}

// PolarEquation renders the conic r(theta) measured from the focus.
func (e Ellipse) PolarEquation() string {
	if e.Eccentricity == 0 {
		return fmt.Sprintf("r = %.2f", e.SemiMajorKm)
	}
	return fmt.Sprintf("r = %.2f(1 - %.6f^2)/(1 + %.6f cos(theta))", e.SemiMajorKm, e.Eccentricity, e.Eccentricity)
}

// Usable reports whether the periapsis clears the minimum altitude.
func (e Ellipse) Usable() bool {
	return e.PeriapsisKm > EarthRadiusKm+MinAltitudeKm
}
