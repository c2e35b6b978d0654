package region

import (
	"context"
	"strconv"
	"time"

	"github.com/signalsfoundry/svc-compliance/internal/logging"
	"github.com/signalsfoundry/svc-compliance/model"
)

// West Texas test range.
var (
	usNoFlyVertices = []model.Coordinate{
		{Latitude: 30.93212056685634, Longitude: -104.04716408989421},
		{Latitude: 30.931361203527537, Longitude: -104.04286047256427},
		{Latitude: 30.931692016016083, Longitude: -104.04203656211823},
		{Latitude: 30.933255841376866, Longitude: -104.03999431601257},
		{Latitude: 30.931902532458363, Longitude: -104.03988037095085},
		{Latitude: 30.932601744457997, Longitude: -104.03746122964117},
		{Latitude: 30.93524817798048, Longitude: -104.03942459070413},
		{Latitude: 30.934158036680692, Longitude: -104.04652424454781},
	}
	usTFRVertices = []model.Coordinate{
		{Latitude: 30.93109003018109, Longitude: -104.04248469001575},
		{Latitude: 30.93161918826889, Longitude: -104.0399078085524},
		{Latitude: 30.930125481322523, Longitude: -104.03908789172316},
		{Latitude: 30.929937929025687, Longitude: -104.04051688962555},
	}
	usWaypoints = []model.Coordinate{
		// clear of the restriction zones
		{Latitude: 30.931177107045443, Longitude: -104.0428517004023},
		// inside the TFR
		{Latitude: 30.930882385083812, Longitude: -104.04126652786576},
	}
)

const usTFRDuration = 24 * time.Hour

type usBackend struct {
	authority
}

func newUS(opts Options) (Backend, error) {
	return &usBackend{authority: newAuthority("us", opts)}, nil
}

func (b *usBackend) FetchRestrictions(ctx context.Context) (map[string]model.RestrictionZone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := b.clock.Now()
	end := start.Add(usTFRDuration)

	zones := map[string]model.RestrictionZone{
		"ARROW-US-NOFLY-ZONE": {
			Identifier:  "ARROW-US-NOFLY-ZONE",
			Vertices:    append([]model.Coordinate(nil), usNoFlyVertices...),
			AltitudeMin: 0,
			AltitudeMax: 6000,
			ZoneType:    model.ZoneTypeNoFly,
		},
		"ARROW-US-TFR-ZONE": {
			Identifier:  "ARROW-US-TFR-ZONE",
			Vertices:    append([]model.Coordinate(nil), usTFRVertices...),
			AltitudeMin: 0,
			AltitudeMax: 6000,
			ZoneType:    model.ZoneTypeTemporary,
			TimeStart:   &start,
			TimeEnd:     &end,
		},
	}
	b.log.Debug(ctx, "restrictions fetched", logging.Int("count", len(zones)))
	return zones, nil
}

func (b *usBackend) FetchWaypoints(ctx context.Context) (map[string]model.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]model.Coordinate, len(usWaypoints))
	for i, c := range usWaypoints {
		out[waypointID("ARROW-WAY-", i+1)] = c
	}
	b.log.Debug(ctx, "waypoints fetched", logging.Int("count", len(out)))
	return out, nil
}

func waypointID(prefix string, n int) string {
	return prefix + strconv.Itoa(n)
}
