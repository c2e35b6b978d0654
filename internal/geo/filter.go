// Package geo holds the in-memory geo cache, the bounding-box filter used to
// answer read queries from it, and the loops that keep it and the
// geospatial service in sync with the regional authority.
package geo

import "github.com/signalsfoundry/svc-compliance/model"

// FilterWaypoints returns the waypoints inside filter. A nil or open filter
// returns the input unchanged.
func FilterWaypoints(waypoints []model.Waypoint, filter *model.BoundingBoxFilter) []model.Waypoint {
	if filter.IsOpen() {
		return waypoints
	}
	out := make([]model.Waypoint, 0, len(waypoints))
	for _, w := range waypoints {
		if filter.Contains(w.Location) {
			out = append(out, w)
		}
	}
	return out
}

// FilterRestrictions returns the zones with at least one vertex inside
// filter, so zones that only partly overlap the window are kept.
func FilterRestrictions(zones []model.RestrictionZone, filter *model.BoundingBoxFilter) []model.RestrictionZone {
	if filter.IsOpen() {
		return zones
	}
	out := make([]model.RestrictionZone, 0, len(zones))
	for _, z := range zones {
		for _, v := range z.Vertices {
			if filter.Contains(v) {
				out = append(out, z)
				break
			}
		}
	}
	return out
}
