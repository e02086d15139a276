package resolver

import (
	"time"

	"github.com/star/ascas/internal/orbit"
	"github.com/star/ascas/internal/transform"
)

// Slot names as they appear in errors and responses.
const (
	SlotFirst  = "sat1"
	SlotSecond = "sat2"
)

// Query asks for the positions of two objects. Zero values of Epoch, Step,
// Horizon and Frame select the configured defaults.
type Query struct {
	First   string
	Second  string
	Epoch   time.Time
	Step    time.Duration
	Horizon int
	Frame   transform.Frame
}

// Position is a point in km in the frame named by the enclosing result.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// TrajectorySample is the position offset steps after the epoch.
type TrajectorySample struct {
	Offset   int       `json:"offset"`
	Time     time.Time `json:"time"`
	Position Position  `json:"position"`
}

// ObjectResult is the resolved state of one object.
type ObjectResult struct {
	CatalogID       int                     `json:"catalogId"`
	Name            string                  `json:"name"`
	ElementEpoch    time.Time               `json:"elementEpoch"`
	ElementSource   string                  `json:"elementSource"`
	Current         TrajectorySample        `json:"current"`
	Subpoint        transform.GeodeticPoint `json:"subpoint"`
	Future          []TrajectorySample      `json:"future"`
	OrbitalEquation string                  `json:"orbitalEquation"`
	Orbit           orbit.Ellipse           `json:"orbit"`
	Alternatives    []orbit.Variation       `json:"alternatives"`
}

// Result is a resolved query. On a partial failure one slot is nil.
type Result struct {
	Epoch   time.Time
	Frame   transform.Frame
	Step    time.Duration
	Horizon int
	First   *ObjectResult
	Second  *ObjectResult
}

// Config holds resolver defaults and limits.
type Config struct {
	DefaultStep    time.Duration // default 365.25 days
	DefaultHorizon int           // default DefaultHorizon
	MaxPositions   int           // upper bound on horizon, default 1000
	MinStep        time.Duration // default 1s
}

// DefaultStep is one Julian year.
const DefaultStep = time.Duration(365.25 * 24 * float64(time.Hour))

// DefaultHorizon is the number of yearly samples returned when a query does
// not ask for a horizon. Low orbits with drag typically decay within a few
// years, after which SGP4 yields PropagationFailed.
const DefaultHorizon = 3

func (c Config) withDefaults() Config {
	if c.DefaultStep <= 0 {
		c.DefaultStep = DefaultStep
	}
	if c.DefaultHorizon <= 0 {
		c.DefaultHorizon = DefaultHorizon
	}
	if c.MaxPositions <= 0 {
		c.MaxPositions = 1000
	}
	if c.MinStep <= 0 {
		c.MinStep = time.Second
	}
	if c.DefaultHorizon > c.MaxPositions {
		c.DefaultHorizon = c.MaxPositions
	}
	return c
}
