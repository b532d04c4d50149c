// Package classify maps inbound spawn events onto queue entries.
//
// An IV-bearing event goes straight to resolution. Anything else walks
// the eligibility chain: area lookup, VIP list matching (celllist
// before ivlist, explicit id:form before bare id), then rank-based
// eligibility when auto rarity is on and the area has finished
// calibrating. Events that survive become ScoutRequests; the rest are
// discarded with a counted reason.
package classify

import (
	"context"
	"time"

	"scoutq/internal/adapters/geofence"
	"scoutq/internal/config"
	"scoutq/internal/domain/cellgrid"
	"scoutq/internal/domain/model"
	"scoutq/internal/domain/queue"
	"scoutq/internal/domain/rarity"
	"scoutq/pkg/logger"
	"scoutq/pkg/metrics"
)

// Discard reasons surfaced as metric labels.
const (
	reasonUnsupportedType = "unsupported_seen_type"
	reasonDespawned       = "despawned"
	reasonOutsideAreas    = "outside_areas"
	reasonCalibrating     = "calibrating"
	reasonUnknownSpecies  = "unknown_species"
	reasonOverThreshold   = "rank_over_threshold"
	reasonNoMatch         = "no_match"
)

// RevisionSource yields the active configuration revision.
type RevisionSource interface {
	Revision() *config.Revision
}

// Resolver settles IV reports against in-flight scouts and accepts
// wake-ups when new work is queued. The dispatch engine satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, ev *model.SpawnEvent) bool
	Kick()
}

// Classifier turns spawn events into queue entries or discards.
type Classifier struct {
	revs     RevisionSource
	areas    *geofence.Cache
	ranks    *rarity.Tracker
	q        *queue.PriorityQueue
	resolver Resolver
	log      logger.Logger
	now      func() time.Time
}

// New creates a Classifier over the shared components.
func New(revs RevisionSource, areas *geofence.Cache, ranks *rarity.Tracker, q *queue.PriorityQueue, resolver Resolver, opts ...Option) *Classifier {
	c := &Classifier{
		revs:     revs,
		areas:    areas,
		ranks:    ranks,
		q:        q,
		resolver: resolver,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("classify")
	}
	return c
}

// Handle processes one filtering webhook event. Returns true when the
// event produced a queue entry or resolved an in-flight scout.
func (c *Classifier) Handle(ctx context.Context, ev *model.SpawnEvent) bool {
	metrics.RecordSpawnReceived(ev.SeenType)

	if !model.SupportedSeenType(ev.SeenType) {
		c.discard(ctx, ev, reasonUnsupportedType)
		return false
	}

	if ev.HasIV() {
		return c.resolver.Resolve(ctx, ev)
	}

	now := c.now()
	if !ev.DespawnAt.IsZero() && ev.DespawnAt.Before(now) {
		c.discard(ctx, ev, reasonDespawned)
		return false
	}

	area, ok := c.areas.Locate(ev.Lat, ev.Lon)
	if !ok {
		c.discard(ctx, ev, reasonOutsideAreas)
		return false
	}

	rev := c.revs.Revision()
	prio, source, reason, ok := c.classify(rev, ev, area)
	if !ok {
		c.discard(ctx, ev, reason)
		return false
	}

	req := c.buildRequest(ev, area, source, prio, now)
	if c.q.Enqueue(ctx, req) {
		c.resolver.Kick()
		return true
	}
	return false
}

// classify resolves the event's priority through the VIP lists and, on
// a miss, auto rarity. The reason names why nothing matched.
func (c *Classifier) classify(rev *config.Revision, ev *model.SpawnEvent, area string) (model.Priority, string, string, bool) {
	if idx, ok := rev.MatchCellList(ev.SpeciesID, ev.Form); ok {
		return model.VIPCellPriority(idx), model.SourceCellList, "", true
	}
	if idx, ok := rev.MatchIVList(ev.SpeciesID, ev.Form); ok {
		return model.VIPSpawnPriority(idx), model.SourceIVList, "", true
	}

	if !rev.AutoRarityEnabled {
		return model.Priority{}, "", reasonNoMatch, false
	}
	if c.ranks.IsCalibrating(area) {
		return model.Priority{}, "", reasonCalibrating, false
	}

	rank, known := c.ranks.Rank(area, ev.SpeciesID, ev.Form)
	if !known {
		return model.Priority{}, "", reasonUnknownSpecies, false
	}

	threshold := rev.IVThreshold
	if ev.SeenType == model.SeenNearbyCell {
		threshold = rev.CellThreshold
	}
	if rank > threshold {
		return model.Priority{}, "", reasonOverThreshold, false
	}
	return model.RarityPriority(rank), model.SourceRarity, "", true
}

// buildRequest shapes the queue entry. nearby_cell events collapse to
// one composite entry keyed by their spatial cell and carry the full
// 9-point coverage pattern; single-spawn events key by encounter id.
func (c *Classifier) buildRequest(ev *model.SpawnEvent, area, source string, prio model.Priority, now time.Time) *model.ScoutRequest {
	req := &model.ScoutRequest{
		SpeciesID:  ev.SpeciesID,
		Form:       ev.Form,
		Area:       area,
		SeenType:   ev.SeenType,
		Source:     source,
		Priority:   prio,
		EnqueuedAt: now,
		DespawnAt:  ev.DespawnAt,
	}

	if ev.SeenType == model.SeenNearbyCell {
		token := cellgrid.Token(ev.Lat, ev.Lon)
		req.Identity = model.CellIdentity(token, ev.SpeciesID, ev.Form)
		req.CellToken = token
		req.Points = cellgrid.Pattern(token)
	} else {
		req.Identity = ev.EncounterID
		req.Points = []model.Point{{Lat: ev.Lat, Lon: ev.Lon}}
	}
	return req
}

// Rekey returns the reprioritization function for a new revision:
// recompute each queued entry's key, dropping entries that no longer
// match any list or rank.
func (c *Classifier) Rekey(rev *config.Revision) func(*model.ScoutRequest) (model.Priority, bool) {
	return func(req *model.ScoutRequest) (model.Priority, bool) {
		ev := &model.SpawnEvent{
			SpeciesID: req.SpeciesID,
			Form:      req.Form,
			SeenType:  req.SeenType,
		}
		prio, source, _, ok := c.classify(rev, ev, req.Area)
		if !ok {
			return model.Priority{}, false
		}
		req.Source = source
		return prio, true
	}
}

func (c *Classifier) discard(ctx context.Context, ev *model.SpawnEvent, reason string) {
	metrics.RecordEventDiscarded(reason)
	c.log.Debug(ctx, "event discarded",
		logger.String("reason", reason),
		logger.String("species", ev.Display()),
		logger.String("seen_type", ev.SeenType),
		logger.String("encounter_id", ev.EncounterID),
	)
}
