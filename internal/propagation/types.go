package propagation

import (
	"fmt"
	"time"

	"github.com/star/ascas/internal/tle"
	"github.com/star/ascas/internal/transform"
)

// Sample is one propagated state. Offset 0 is the query epoch; offsets
// 1..horizon are whole steps after it.
type Sample struct {
	Offset int
	Time   time.Time
	State  transform.PositionTEME
}

// Trajectory is the state of one object at the epoch followed by horizon
// future samples in strictly increasing time order.
type Trajectory struct {
	Entry   tle.TLEEntry
	Current Sample
	Future  []Sample
}

// Job asks for one object's trajectory.
type Job struct {
	Entry   tle.TLEEntry
	Epoch   time.Time
	Step    time.Duration
	Horizon int
}

// JobResult is the outcome of a Job. Exactly one field is set.
type JobResult struct {
	Trajectory *Trajectory
	Err        error
}

// SampleError reports the step at which SGP4 could not produce a state.
type SampleError struct {
	NORADID int
	Offset  int
	Err     error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("NORAD %d: propagation failed at offset %d: %v", e.NORADID, e.Offset, e.Err)
}

func (e *SampleError) Unwrap() error { return e.Err }

// PropConfig holds propagation settings.
type PropConfig struct {
	Workers      int           // worker pool size (default: runtime.NumCPU())
	Step         time.Duration // default sample interval
	Horizon      int           // default number of future samples
	MaxPositions int           // upper bound on horizon per object
}
