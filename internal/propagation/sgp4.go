package propagation

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/ascas/internal/transform"
)

const tleLineLen = 69

var (
	// ErrInvalidElements marks element sets SGP4 cannot be initialized from.
	ErrInvalidElements = errors.New("invalid element set")
	// ErrNoSolution marks an epoch at which the model gives no usable state
	// (non-finite output or an implausible radius, typically after decay).
	ErrNoSolution = errors.New("no sgp4 solution")
)

// SGP4Propagator wraps an initialized go-satellite model (WGS-84 constants,
// TEME output) for one object. It is safe for concurrent use: the library
// takes the model by value, so per-call error codes never leak back and
// failures are detected from the output instead.
type SGP4Propagator struct {
	sat     satellite.Satellite
	noradID int

	// Lines as given, so cached models can be checked against a new dataset.
	line1, line2 string
}

// NewSGP4Propagator initializes SGP4 from TLE lines. Lines are checked
// before the library sees them because it calls log.Fatal on malformed input.
func NewSGP4Propagator(line1, line2 string, noradID int) (*SGP4Propagator, error) {
	l1, l2 := strings.TrimSpace(line1), strings.TrimSpace(line2)
	for i, line := range []string{l1, l2} {
		if err := checkLine(line, byte('1'+i)); err != nil {
			return nil, fmt.Errorf("NORAD %d: %w: %w", noradID, ErrInvalidElements, err)
		}
	}

	sat := satellite.TLEToSat(l1, l2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("NORAD %d: %w: sgp4 init code=%d %s", noradID, ErrInvalidElements, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat, noradID: noradID, line1: line1, line2: line2}, nil
}

func checkLine(line string, number byte) error {
	switch {
	case len(line) != tleLineLen:
		return fmt.Errorf("line %c length %d, expected %d", number, len(line), tleLineLen)
	case line[0] != number || line[1] != ' ':
		return fmt.Errorf("line %c must start with %q", number, string(number)+" ")
	}
	return nil
}

// NORADID returns the catalog number the model was built for.
func (p *SGP4Propagator) NORADID() int { return p.noradID }

// Propagate returns the TEME state (km, km/s) at t. The library works in
// whole UTC seconds, so sub-second precision in t is dropped.
func (p *SGP4Propagator) Propagate(t time.Time) (transform.PositionTEME, error) {
	t = t.UTC()
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	state := transform.PositionTEME{X: pos.X, Y: pos.Y, Z: pos.Z, VX: vel.X, VY: vel.Y, VZ: vel.Z}
	if !finite(state.X, state.Y, state.Z, state.VX, state.VY, state.VZ) {
		return transform.PositionTEME{}, fmt.Errorf("NORAD %d at %s: %w: non-finite output",
			p.noradID, t.Format(time.RFC3339), ErrNoSolution)
	}
	if !transform.ValidRadius(state.X, state.Y, state.Z) {
		return transform.PositionTEME{}, fmt.Errorf("NORAD %d at %s: %w: radius %.1f km",
			p.noradID, t.Format(time.RFC3339), ErrNoSolution, transform.State(state).Radius())
	}
	return state, nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
