package model

import "time"

// Coordinate is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// BoundingBoxFilter is an axis-aligned lat/lon window. A nil bound leaves that
// side open. There is no antimeridian handling.
type BoundingBoxFilter struct {
	Min *Coordinate `json:"min,omitempty"`
	Max *Coordinate `json:"max,omitempty"`
}

// Contains reports whether c lies inside the window, inclusive on every bound
// that is present.
func (f *BoundingBoxFilter) Contains(c Coordinate) bool {
	if f == nil {
		return true
	}
	if f.Min != nil && (c.Latitude < f.Min.Latitude || c.Longitude < f.Min.Longitude) {
		return false
	}
	if f.Max != nil && (c.Latitude > f.Max.Latitude || c.Longitude > f.Max.Longitude) {
		return false
	}
	return true
}

// IsOpen reports whether the filter imposes no constraint at all.
func (f *BoundingBoxFilter) IsOpen() bool {
	return f == nil || (f.Min == nil && f.Max == nil)
}

// Waypoint is a named navigation point published by a regional authority.
type Waypoint struct {
	Identifier string     `json:"identifier"`
	Location   Coordinate `json:"location"`
}

// ZoneType classifies a restriction zone.
type ZoneType int

const (
	ZoneTypeRestriction ZoneType = iota
	ZoneTypeNoFly
	ZoneTypeTemporary
)

func (z ZoneType) String() string {
	switch z {
	case ZoneTypeRestriction:
		return "restriction"
	case ZoneTypeNoFly:
		return "no-fly"
	case ZoneTypeTemporary:
		return "tfr"
	default:
		return "unknown"
	}
}

// RestrictionZone is a polygon-bounded airspace restriction, optionally
// limited in time. Authority data is trusted as-is, so AltitudeMin <=
// AltitudeMax is not enforced.
type RestrictionZone struct {
	Identifier  string       `json:"identifier"`
	Vertices    []Coordinate `json:"vertices"`
	AltitudeMin float32      `json:"altitude_meters_min"`
	AltitudeMax float32      `json:"altitude_meters_max"`
	ZoneType    ZoneType     `json:"zone_type"`
	TimeStart   *time.Time   `json:"time_start,omitempty"`
	TimeEnd     *time.Time   `json:"time_end,omitempty"`
}

// Clone returns a deep copy so callers can hand zones out of a locked cache.
func (z RestrictionZone) Clone() RestrictionZone {
	out := z
	if z.Vertices != nil {
		out.Vertices = make([]Coordinate, len(z.Vertices))
		copy(out.Vertices, z.Vertices)
	}
	if z.TimeStart != nil {
		t := *z.TimeStart
		out.TimeStart = &t
	}
	if z.TimeEnd != nil {
		t := *z.TimeEnd
		out.TimeEnd = &t
	}
	return out
}
