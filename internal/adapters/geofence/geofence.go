// Package geofence caches named polygonal areas fetched from an
// external provider and answers point-in-area lookups.
//
// Conventions:
//   - The full area set is replaced atomically on every successful
//     refresh; readers only ever see a complete snapshot.
//   - On refresh failure the previous snapshot keeps serving until the
//     expiry window passes, after which lookups match nothing.
package geofence

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"scoutq/internal/config"
	"scoutq/pkg/logger"
	"scoutq/pkg/metrics"
)

// GlobalArea is the synthetic partition key used when area filtering is
// disabled.
const GlobalArea = "GLOBAL"

// RevisionSource yields the active configuration revision.
type RevisionSource interface {
	Revision() *config.Revision
}

type fenceSnapshot struct {
	areas     []Area
	fetchedAt time.Time
}

// Cache holds the current area set and keeps it fresh.
type Cache struct {
	provider Provider
	enabled  bool
	revs     RevisionSource
	snap     atomic.Pointer[fenceSnapshot]
	log      logger.Logger
	now      func() time.Time
}

// NewCache creates a cache over the given provider. A nil provider or
// enabled=false turns every lookup into the synthetic global area.
func NewCache(provider Provider, enabled bool, revs RevisionSource, opts ...Option) *Cache {
	c := &Cache{
		provider: provider,
		enabled:  enabled && provider != nil,
		revs:     revs,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("geofence")
	}
	c.snap.Store(&fenceSnapshot{})
	return c
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		c.log = l
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Enabled reports whether area filtering is active.
func (c *Cache) Enabled() bool {
	return c.enabled
}

// Locate returns the name of the first cached area containing the
// point, in fetch order. With filtering disabled it always returns the
// synthetic global area. An expired cache matches nothing.
func (c *Cache) Locate(lat, lon float64) (string, bool) {
	if !c.enabled {
		return GlobalArea, true
	}

	snap := c.snap.Load()
	if snap.fetchedAt.IsZero() {
		return "", false
	}
	if c.now().Sub(snap.fetchedAt) > c.revs.Revision().GeofenceExpire {
		return "", false
	}

	pt := orb.Point{lon, lat}
	for _, area := range snap.areas {
		for _, poly := range area.Polygons {
			if planar.PolygonContains(poly, pt) {
				return area.Name, true
			}
		}
	}
	return "", false
}

// AreaNames returns the cached area names in fetch order.
func (c *Cache) AreaNames() []string {
	snap := c.snap.Load()
	names := make([]string, len(snap.areas))
	for i, a := range snap.areas {
		names[i] = a.Name
	}
	return names
}

// Refresh fetches the area set and swaps it in. On failure the current
// snapshot is left in place.
func (c *Cache) Refresh(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	areas, err := c.provider.FetchAreas(ctx)
	if err != nil {
		metrics.RecordGeofenceRefreshFailure()
		c.log.Warn(ctx, "refresh failed, serving previous snapshot", logger.Error(err))
		return err
	}

	c.snap.Store(&fenceSnapshot{areas: areas, fetchedAt: c.now()})
	metrics.RecordGeofenceRefresh()
	metrics.UpdateGeofenceAreas(len(areas))
	c.log.Info(ctx, "area set refreshed", logger.Int("areas", len(areas)))
	return nil
}

// Run refreshes immediately, then on the configured cadence until ctx
// ends.
func (c *Cache) Run(ctx context.Context) {
	if !c.enabled {
		return
	}
	_ = c.Refresh(ctx)
	for {
		timer := time.NewTimer(c.revs.Revision().GeofenceRefresh)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			_ = c.Refresh(ctx)
		}
	}
}
