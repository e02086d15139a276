// Package conjunction finds the closest approach between two objects over a
// time window.
//
// The separation is sampled on a coarse grid, then every coarse local minimum
// is refined on a fine grid within one coarse step either side.
package conjunction

import (
	"context"
	"sort"
	"time"

	"github.com/star/ascas/internal/propagation"
	"github.com/star/ascas/internal/transform"
)

const (
	coarseStep = 60 * time.Second
	fineStep   = time.Second
	maxMinima  = 5
)

// Approach is the separation of the two objects at one instant.
type Approach struct {
	Time             time.Time `json:"time"`
	DistanceKm       float64   `json:"distanceKm"`
	RelativeSpeedKmS float64   `json:"relativeSpeedKmS"`
}

// Scan is the outcome of a closest-approach search.
type Scan struct {
	Start   time.Time  `json:"start"`
	End     time.Time  `json:"end"`
	Closest Approach   `json:"closestApproach"`
	Minima  []Approach `json:"localMinima"`
	Samples int        `json:"samples"`
}

// sampler returns the separation at t.
type sampler func(t time.Time) (Approach, error)

func pairSampler(a, b *propagation.SGP4Propagator) sampler {
	return func(t time.Time) (Approach, error) {
		sa, err := a.Propagate(t)
		if err != nil {
			return Approach{}, err
		}
		sb, err := b.Propagate(t)
		if err != nil {
			return Approach{}, err
		}
		d, v := transform.Separation(transform.State(sa), transform.State(sb))
		return Approach{Time: t, DistanceKm: d, RelativeSpeedKmS: v}, nil
	}
}

// scan samples [start, start+window] and refines local minima.
func scan(ctx context.Context, sample sampler, start time.Time, window time.Duration) (*Scan, error) {
	end := start.Add(window)
	var coarse []Approach
	for t := start; !t.After(end); t = t.Add(coarseStep) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := sample(t)
		if err != nil {
			return nil, err
		}
		coarse = append(coarse, a)
	}

	var minima []Approach
	for i, a := range coarse {
		left := i == 0 || coarse[i-1].DistanceKm >= a.DistanceKm
		right := i == len(coarse)-1 || coarse[i+1].DistanceKm > a.DistanceKm
		if !left || !right {
			continue
		}
		refined, err := refine(ctx, sample, a, start, end)
		if err != nil {
			return nil, err
		}
		minima = append(minima, refined)
	}

	sort.Slice(minima, func(i, j int) bool { return minima[i].DistanceKm < minima[j].DistanceKm })
	if len(minima) > maxMinima {
		minima = minima[:maxMinima]
	}

	return &Scan{
		Start:   start,
		End:     end,
		Closest: minima[0],
		Minima:  minima,
		Samples: len(coarse),
	}, nil
}

// refine searches one coarse step either side of a coarse minimum at the
// fine step, clamped to the window.
func refine(ctx context.Context, sample sampler, coarse Approach, start, end time.Time) (Approach, error) {
	from := coarse.Time.Add(-coarseStep)
	if from.Before(start) {
		from = start
	}
	to := coarse.Time.Add(coarseStep)
	if to.After(end) {
		to = end
	}

	best := coarse
	for t := from; !t.After(to); t = t.Add(fineStep) {
		if err := ctx.Err(); err != nil {
			return Approach{}, err
		}
		a, err := sample(t)
		if err != nil {
			return Approach{}, err
		}
		if a.DistanceKm < best.DistanceKm {
			best = a
		}
	}
	return best, nil
}
