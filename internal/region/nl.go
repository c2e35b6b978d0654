package region

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/signalsfoundry/svc-compliance/internal/logging"
	"github.com/signalsfoundry/svc-compliance/model"
)

// Amsterdam drone lab.
var (
	nlTFRVertices = []model.Coordinate{
		{Latitude: 52.3751, Longitude: 4.9158},
		{Latitude: 52.3750, Longitude: 4.9157},
		{Latitude: 52.3749, Longitude: 4.9164},
		{Latitude: 52.3751, Longitude: 4.9164},
	}
	nlNoFlyVertices = []model.Coordinate{
		{Latitude: 52.3743, Longitude: 4.9159},
		{Latitude: 52.3749, Longitude: 4.9169},
		{Latitude: 52.3751, Longitude: 4.9165},
		{Latitude: 52.3755, Longitude: 4.9166},
		{Latitude: 52.3751, Longitude: 4.9191},
		{Latitude: 52.3730, Longitude: 4.9166},
		{Latitude: 52.3732, Longitude: 4.9143},
		{Latitude: 52.3749, Longitude: 4.9132},
		{Latitude: 52.3758, Longitude: 4.9145},
		{Latitude: 52.3757, Longitude: 4.9152},
		{Latitude: 52.3751, Longitude: 4.9149},
		{Latitude: 52.3748, Longitude: 4.9155},
	}
)

const nlTFRDuration = time.Hour

//go:embed fixtures/nl_waypoints.csv
var nlWaypointsCSV []byte

// dmsWaypoint is one row of a waypoint CSV with DMS coordinates.
type dmsWaypoint struct {
	Identifier string `csv:"identifier"`
	Latitude   string `csv:"latitude"`
	Longitude  string `csv:"longitude"`
}

type nlBackend struct {
	authority
	waypoints map[string]model.Coordinate
}

func newNL(opts Options) (Backend, error) {
	waypoints, err := parseWaypointsCSV(nlWaypointsCSV)
	if err != nil {
		return nil, fmt.Errorf("load nl waypoints: %w", err)
	}
	return &nlBackend{authority: newAuthority("nl", opts), waypoints: waypoints}, nil
}

func (b *nlBackend) FetchRestrictions(ctx context.Context) (map[string]model.RestrictionZone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := b.clock.Now()
	end := start.Add(nlTFRDuration)

	zones := map[string]model.RestrictionZone{
		"ARROW-NL-TFR-ZONE": {
			Identifier:  "ARROW-NL-TFR-ZONE",
			Vertices:    append([]model.Coordinate(nil), nlTFRVertices...),
			AltitudeMin: 0,
			AltitudeMax: 6000,
			ZoneType:    model.ZoneTypeTemporary,
			TimeStart:   &start,
			TimeEnd:     &end,
		},
		"ARROW-NL-NOFLY-ZONE": {
			Identifier:  "ARROW-NL-NOFLY-ZONE",
			Vertices:    append([]model.Coordinate(nil), nlNoFlyVertices...),
			AltitudeMin: 0,
			AltitudeMax: 6000,
			ZoneType:    model.ZoneTypeNoFly,
		},
	}
	b.log.Debug(ctx, "restrictions fetched", logging.Int("count", len(zones)))
	return zones, nil
}

func (b *nlBackend) FetchWaypoints(ctx context.Context) (map[string]model.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]model.Coordinate, len(b.waypoints))
	for id, c := range b.waypoints {
		out[id] = c
	}
	b.log.Debug(ctx, "waypoints fetched", logging.Int("count", len(out)))
	return out, nil
}

// parseWaypointsCSV decodes identifier,latitude,longitude rows where both
// coordinates are in DMS notation.
func parseWaypointsCSV(raw []byte) (map[string]model.Coordinate, error) {
	var rows []dmsWaypoint
	if err := csvutil.Unmarshal(bytes.TrimSpace(raw), &rows); err != nil {
		return nil, fmt.Errorf("decode waypoint csv: %w", err)
	}

	out := make(map[string]model.Coordinate, len(rows))
	for i, row := range rows {
		if row.Identifier == "" {
			return nil, fmt.Errorf("waypoint row %d: missing identifier", i+1)
		}
		lat, err := ParseDMS(row.Latitude)
		if err != nil {
			return nil, fmt.Errorf("waypoint %s latitude: %w", row.Identifier, err)
		}
		lon, err := ParseDMS(row.Longitude)
		if err != nil {
			return nil, fmt.Errorf("waypoint %s longitude: %w", row.Identifier, err)
		}
		out[row.Identifier] = model.Coordinate{Latitude: lat, Longitude: lon}
	}
	return out, nil
}
