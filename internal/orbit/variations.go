package orbit

import "math"

// Variation is an orbit related to an object's own orbit, with the cost of
// moving between them.
type Variation struct {
	Name          string  `json:"name"`
	Ellipse       Ellipse `json:"ellipse"`
	Equation      string  `json:"equation"`
	PolarEquation string  `json:"polarEquation"`
	DeltaVKmS     float64 `json:"deltaVKmS"`
}

// Variations returns the base orbit and its higher circular, more eccentric
// and lower counterparts, each with the transfer delta-v from the base orbit.
// Orbits whose periapsis would fall below the minimum altitude are omitted.
func Variations(base Ellipse) []Variation {
	a, e := base.SemiMajorKm, base.Eccentricity
	minA := EarthRadiusKm + MinAltitudeKm

	candidates := []struct {
		name string
		el   Ellipse
	}{
		{"Base Orbit", base},
		{"Higher Circular Orbit", NewEllipse(a*1.5, 0)},
		{"More Eccentric Orbit", NewEllipse(a, math.Min(e+0.2, maxEccentricity))},
		{"Lower Orbit", NewEllipse(math.Max(a*0.7, minA), math.Max(e-0.1, 0))},
	}

	out := make([]Variation, 0, len(candidates))
	for _, c := range candidates {
		if !c.el.Usable() {
			continue
		}
		out = append(out, Variation{
			Name:          c.name,
			Ellipse:       c.el,
			Equation:      c.el.Equation(),
			PolarEquation: c.el.PolarEquation(),
			DeltaVKmS:     TransferDeltaV(base, c.el),
		})
	}
	return out
}

// TransferDeltaV returns the delta-v (km/s) of a two-burn transfer between
// coaxial orbits with aligned apsides: the first burn at the periapsis of
// from sets the apoapsis to that of to, the second at that apoapsis sets the
// periapsis. Between circular orbits this is the Hohmann transfer.
func TransferDeltaV(from, to Ellipse) float64 {
	r1, r2 := from.PeriapsisKm, to.ApoapsisKm
	if r1 <= 0 || r2 <= 0 || from.SemiMajorKm <= 0 || to.SemiMajorKm <= 0 {
		return 0
	}
	at := (r1 + r2) / 2
	burn1 := math.Abs(visViva(r1, at) - visViva(r1, from.SemiMajorKm))
	burn2 := math.Abs(visViva(r2, to.SemiMajorKm) - visViva(r2, at))
	return burn1 + burn2
}

// visViva returns orbital speed (km/s) at radius r on an orbit of
// semi-major axis a.
func visViva(r, a float64) float64 {
	return math.Sqrt(MuEarth * (2/r - 1/a))
}
