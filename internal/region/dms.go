package region

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

var (
	// ErrInvalidDMS is returned when a string is not in degrees-minutes-seconds form.
	ErrInvalidDMS = errors.New("invalid DMS format")
	// ErrInvalidBearing is returned for a bearing other than N, S, E or W.
	ErrInvalidBearing = errors.New("invalid DMS bearing")
)

var dmsPattern = regexp.MustCompile(`^\s*(\d+)°\s*(\d+)'\s*(\d+\.\d+)"\s*([A-Za-z])\s*$`)

// ParseDMS converts a coordinate such as `51° 30' 0.0" N` to decimal degrees.
// South and west bearings yield negative values.
func ParseDMS(s string) (float64, error) {
	m := dmsPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDMS, s)
	}

	deg, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: degrees in %q", ErrInvalidDMS, s)
	}
	minutes, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, fmt.Errorf("%w: minutes in %q", ErrInvalidDMS, s)
	}
	sec, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: seconds in %q", ErrInvalidDMS, s)
	}

	value := float64(deg) + float64(minutes)/60 + sec/3600
	switch m[4] {
	case "N", "E":
		return value, nil
	case "S", "W":
		return -value, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidBearing, m[4])
	}
}
