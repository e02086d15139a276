package tle

import (
	"fmt"
	"strconv"
	"strings"
)

// Elements are the mean orbital elements carried on line 2, plus the drag
// term from line 1. Angles are degrees; mean motion is revolutions per day.
type Elements struct {
	Inclination  float64
	RAAN         float64
	Eccentricity float64
	ArgPerigee   float64
	MeanAnomaly  float64
	MeanMotion   float64
	BStar        float64
}

// field is a 1-based inclusive column range on a TLE line.
type field struct {
	name       string
	start, end int
}

var (
	fInclination = field{"inclination", 9, 16}
	fRAAN        = field{"raan", 18, 25}
	fEccentric   = field{"eccentricity", 27, 33}
	fArgPerigee  = field{"arg_perigee", 35, 42}
	fMeanAnomaly = field{"mean_anomaly", 44, 51}
	fMeanMotion  = field{"mean_motion", 53, 63}
	fBStar       = field{"bstar", 54, 61}
)

func (f field) slice(line string) (string, error) {
	if len(line) < f.end {
		return "", fmt.Errorf("%s: line too short (%d chars, need %d)", f.name, len(line), f.end)
	}
	return strings.TrimSpace(line[f.start-1 : f.end]), nil
}

func (f field) float(line string) (float64, error) {
	s, err := f.slice(line)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", f.name, err)
	}
	return v, nil
}

// ParseElements extracts mean elements from an entry's lines.
func ParseElements(e TLEEntry) (Elements, error) {
	var el Elements
	var err error

	for _, p := range []struct {
		f   field
		dst *float64
	}{
		{fInclination, &el.Inclination},
		{fRAAN, &el.RAAN},
		{fArgPerigee, &el.ArgPerigee},
		{fMeanAnomaly, &el.MeanAnomaly},
		{fMeanMotion, &el.MeanMotion},
	} {
		if *p.dst, err = p.f.float(e.Line2); err != nil {
			return Elements{}, fmt.Errorf("NORAD %d: %w", e.NORADID, err)
		}
	}

	// Eccentricity has an implied leading decimal point.
	s, err := fEccentric.slice(e.Line2)
	if err != nil {
		return Elements{}, fmt.Errorf("NORAD %d: %w", e.NORADID, err)
	}
	if el.Eccentricity, err = strconv.ParseFloat("0."+s, 64); err != nil {
		return Elements{}, fmt.Errorf("NORAD %d: eccentricity: %w", e.NORADID, err)
	}

	if el.BStar, err = parseImpliedExponent(e.Line1); err != nil {
		return Elements{}, fmt.Errorf("NORAD %d: %w", e.NORADID, err)
	}

	if el.MeanMotion <= 0 {
		return Elements{}, fmt.Errorf("NORAD %d: mean motion must be positive, got %v", e.NORADID, el.MeanMotion)
	}
	return el, nil
}

// parseImpliedExponent decodes the BSTAR field, e.g. " 10270-3" -> 0.10270e-3.
func parseImpliedExponent(line1 string) (float64, error) {
	s, err := fBStar.slice(line1)
	if err != nil {
		return 0, err
	}
	if s == "" {
		return 0, nil
	}

	sign := ""
	if s[0] == '-' || s[0] == '+' {
		if s[0] == '-' {
			sign = "-"
		}
		s = s[1:]
	}
	if len(s) < 3 {
		return 0, fmt.Errorf("bstar: malformed value %q", s)
	}
	mantissa, exp := s[:len(s)-2], s[len(s)-2:]
	v, err := strconv.ParseFloat(sign+"0."+mantissa+"e"+exp, 64)
	if err != nil {
		return 0, fmt.Errorf("bstar: %w", err)
	}
	return v, nil
}
