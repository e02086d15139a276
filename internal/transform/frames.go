// Package transform converts SGP4 output between reference frames.
//
// SGP4 produces positions in TEME (True Equator Mean Equinox). The Earth-fixed
// frame is obtained with a single GMST rotation (TEME -> PEF, taken as ECEF),
// ignoring polar motion and the equation of the equinoxes. The resulting error
// is tens of meters, well below the accuracy of the element sets themselves.
//
// All distances are kilometers and all velocities km/s.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Frame names the reference frame of a reported position.
type Frame string

const (
	FrameTEME Frame = "TEME"
	FrameECEF Frame = "ECEF"
)

// ParseFrame accepts a frame name in any case. Empty selects TEME.
func ParseFrame(s string) (Frame, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(FrameTEME):
		return FrameTEME, nil
	case string(FrameECEF):
		return FrameECEF, nil
	default:
		return "", fmt.Errorf("unknown frame %q (want TEME or ECEF)", s)
	}
}

// State is a position and velocity in some frame.
type State struct {
	X, Y, Z    float64 // km
	VX, VY, VZ float64 // km/s
}

// PositionTEME is SGP4 output in the TEME frame.
type PositionTEME State

// PositionECEF is a state in the Earth-fixed frame.
type PositionECEF State

// Radius returns the distance from Earth's center in km.
func (s State) Radius() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// Speed returns the velocity magnitude in km/s.
func (s State) Speed() float64 {
	return math.Sqrt(s.VX*s.VX + s.VY*s.VY + s.VZ*s.VZ)
}

// TEMEToECEF rotates a TEME state into ECEF at the given UTC time.
func TEMEToECEF(teme PositionTEME, t time.Time) PositionECEF {
	return TEMEToECEFWithGMST(teme, GMST(t))
}

// TEMEToECEFWithGMST rotates with a precomputed GMST angle (radians), for
// callers converting many states at the same instant.
//
//	r_ECEF = R3(GMST) r_TEME
//	v_ECEF = R3(GMST) v_TEME - w x r_ECEF
func TEMEToECEFWithGMST(teme PositionTEME, gmst float64) PositionECEF {
	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)

	x := teme.X*cosG + teme.Y*sinG
	y := -teme.X*sinG + teme.Y*cosG

	vx := teme.VX*cosG + teme.VY*sinG
	vy := -teme.VX*sinG + teme.VY*cosG

	// w x r = [-w*y, w*x, 0]
	return PositionECEF{
		X:  x,
		Y:  y,
		Z:  teme.Z,
		VX: vx + OmegaEarth*y,
		VY: vy - OmegaEarth*x,
		VZ: teme.VZ,
	}
}

// Plausible radius band for an Earth-orbiting object, km.
const (
	MinRadiusKm = 6200.0
	MaxRadiusKm = 50000.0
)

// ValidRadius reports whether a position is finite and between MinRadiusKm
// and MaxRadiusKm from Earth's center.
func ValidRadius(x, y, z float64) bool {
	for _, v := range [...]float64{x, y, z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	mag := math.Sqrt(x*x + y*y + z*z)
	return mag >= MinRadiusKm && mag <= MaxRadiusKm
}

// Separation returns the distance between two positions and their relative
// speed, both taken in the same frame.
func Separation(a, b State) (distKm, relSpeedKmS float64) {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	dvx, dvy, dvz := a.VX-b.VX, a.VY-b.VY, a.VZ-b.VZ
	return math.Sqrt(dx*dx + dy*dy + dz*dz), math.Sqrt(dvx*dvx + dvy*dvy + dvz*dvz)
}
