package geo

import (
	"sort"
	"sync"

	"github.com/signalsfoundry/svc-compliance/model"
)

// CacheMetrics receives the cache sizes after every replacement.
type CacheMetrics interface {
	SetGeoCounts(waypoints, restrictions int)
}

// Cache is the latest authority snapshot of waypoints and restriction
// zones. The sync loops replace whole mappings; readers get copies and never
// hold the lock while filtering or doing I/O. New mappings are built before
// the lock is taken, so a replacement that fails part way leaves readers on
// the previous snapshot.
type Cache struct {
	mu           sync.RWMutex
	waypoints    map[string]model.Coordinate
	restrictions map[string]model.RestrictionZone
	metrics      CacheMetrics
}

// NewCache returns an empty cache. metrics may be nil.
func NewCache(metrics CacheMetrics) *Cache {
	return &Cache{
		waypoints:    map[string]model.Coordinate{},
		restrictions: map[string]model.RestrictionZone{},
		metrics:      metrics,
	}
}

// ReplaceWaypoints swaps in a copy of waypoints, evicting every key not in it.
func (c *Cache) ReplaceWaypoints(waypoints map[string]model.Coordinate) {
	next := make(map[string]model.Coordinate, len(waypoints))
	for id, loc := range waypoints {
		next[id] = loc
	}

	c.mu.Lock()
	c.waypoints = next
	w, r := len(c.waypoints), len(c.restrictions)
	c.mu.Unlock()
	c.report(w, r)
}

// ReplaceRestrictions swaps in a copy of zones, evicting every key not in it.
func (c *Cache) ReplaceRestrictions(zones map[string]model.RestrictionZone) {
	next := make(map[string]model.RestrictionZone, len(zones))
	for id, z := range zones {
		z = z.Clone()
		if z.Identifier == "" {
			z.Identifier = id
		}
		next[id] = z
	}

	c.mu.Lock()
	c.restrictions = next
	w, r := len(c.waypoints), len(c.restrictions)
	c.mu.Unlock()
	c.report(w, r)
}

// Waypoints returns a copy of the cached waypoints ordered by identifier.
func (c *Cache) Waypoints() []model.Waypoint {
	c.mu.RLock()
	out := make([]model.Waypoint, 0, len(c.waypoints))
	for id, loc := range c.waypoints {
		out = append(out, model.Waypoint{Identifier: id, Location: loc})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// Restrictions returns deep copies of the cached zones ordered by identifier.
func (c *Cache) Restrictions() []model.RestrictionZone {
	c.mu.RLock()
	out := make([]model.RestrictionZone, 0, len(c.restrictions))
	for _, z := range c.restrictions {
		out = append(out, z.Clone())
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// Counts returns the number of cached waypoints and zones.
func (c *Cache) Counts() (waypoints, restrictions int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.waypoints), len(c.restrictions)
}

func (c *Cache) report(waypoints, restrictions int) {
	if c.metrics != nil {
		c.metrics.SetGeoCounts(waypoints, restrictions)
	}
}
