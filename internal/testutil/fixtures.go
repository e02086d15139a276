// Package testutil provides shared fixtures for package tests: drag-free
// element sets that propagate cleanly over multi-year horizons, and helpers
// to build stores and loggers around them.
package testutil

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/star/ascas/internal/tle"
)

// Element sets share epoch 2024 day 100.5 (2024-04-09T12:00:00Z) and have
// zero BSTAR so SGP4 never decays them.
const (
	ISSLine1 = "1 25544U 98067A   24100.50000000  .00000000  00000-0  00000-0 0  9992"
	ISSLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    12"

	HSTLine1 = "1 27663U 03004A   24100.50000000  .00000000  00000-0  00000-0 0  9993"
	HSTLine2 = "2 27663  28.4700 120.0000 0002500  90.0000  45.0000 15.09000000    22"

	GEOLine1 = "1 42432U 17067A   24100.50000000  .00000000  00000-0  00000-0 0  9998"
	GEOLine2 = "2 42432   0.0500  90.0000 0000200 270.0000 120.0000  1.00270000    38"

	CosmosLine1 = "1 22675U 93036A   24100.50000000  .00000000  00000-0  00000-0 0  9995"
	CosmosLine2 = "2 22675  74.0300 250.0000 0015000  60.0000 300.0000 14.30000000    42"
)

// Epoch is the shared element epoch of the fixtures.
var Epoch = time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)

// Entries returns the fixture element sets.
func Entries() []tle.TLEEntry {
	return []tle.TLEEntry{
		{NORADID: 25544, Name: "ISS (ZARYA)", Epoch: Epoch, Line1: ISSLine1, Line2: ISSLine2},
		{NORADID: 27663, Name: "HST", Epoch: Epoch, Line1: HSTLine1, Line2: HSTLine2},
		{NORADID: 42432, Name: "SES-10", Epoch: Epoch, Line1: GEOLine1, Line2: GEOLine2},
		{NORADID: 22675, Name: "COSMOS 2251", Epoch: Epoch, Line1: CosmosLine1, Line2: CosmosLine2},
	}
}

// Text renders the fixtures in 3-line format, as a TLE source would serve them.
func Text(ids ...int) string {
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var b strings.Builder
	for _, e := range Entries() {
		if len(ids) > 0 && !want[e.NORADID] {
			continue
		}
		b.WriteString(e.Name + "\n" + e.Line1 + "\n" + e.Line2 + "\n")
	}
	return b.String()
}

// Store returns a store loaded with the fixtures.
func Store() *tle.Store {
	s := tle.NewStore()
	s.Set(tle.NewDataset("test", time.Now(), Entries()))
	return s
}

// Logger returns a logger that discards everything below error.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
