// Package dispatch drains the priority queue into outbound scout calls
// while honoring the configured concurrency bound, and resolves
// dispatched entries when their IV webhook arrives or their deadline
// passes.
//
// Conventions:
//   - The outstanding set and the slot counter share one mutex; the
//     lock is never held across the external scout call. A slot is
//     reserved first, the call issued unlocked, then the reservation is
//     committed or rolled back on the call's outcome.
//   - Every state transition emits one structured log line.
package dispatch

import (
	"context"
	"sync"
	"time"

	"scoutq/internal/adapters/scout"
	"scoutq/internal/config"
	"scoutq/internal/domain/cellgrid"
	"scoutq/internal/domain/model"
	"scoutq/internal/domain/queue"
	"scoutq/pkg/logger"
	"scoutq/pkg/metrics"
)

// proximityMeters is the radius inside which an IV report resolves a
// dispatched entry that was keyed by a different encounter.
const proximityMeters = 70.0

// RevisionSource yields the active configuration revision.
type RevisionSource interface {
	Revision() *config.Revision
}

// Stats summarizes the engine for /stats.
type Stats struct {
	Outstanding int              `json:"outstanding"`
	Limit       int              `json:"concurrency_limit"`
	Dispatched  map[string]int64 `json:"dispatched_by_seen_type"`
	Matches     map[string]int64 `json:"matches_by_seen_type"`
	EarlyIV     map[string]int64 `json:"early_iv_by_seen_type"`
	Timeouts    map[string]int64 `json:"timeouts_by_seen_type"`
	Failures    int64            `json:"failures"`
}

// Engine pulls from the queue and runs the dispatch lifecycle.
type Engine struct {
	q     *queue.PriorityQueue
	calls scout.Caller
	revs  RevisionSource
	log   logger.Logger
	now   func() time.Time

	mu          sync.Mutex
	outstanding map[string]*model.ScoutRequest
	inUse       int
	limit       int

	dispatched map[string]int64
	matches    map[string]int64
	earlyIV    map[string]int64
	timeouts   map[string]int64
	failures   int64

	kick          chan struct{}
	sweepInterval time.Duration
}

// New creates an Engine. The concurrency limit is seeded from the
// active revision; SetConcurrency adjusts it on reload.
func New(q *queue.PriorityQueue, calls scout.Caller, revs RevisionSource, sweepInterval time.Duration, opts ...Option) *Engine {
	e := &Engine{
		q:             q,
		calls:         calls,
		revs:          revs,
		now:           time.Now,
		outstanding:   make(map[string]*model.ScoutRequest),
		limit:         revs.Revision().Concurrency,
		dispatched:    make(map[string]int64),
		matches:       make(map[string]int64),
		earlyIV:       make(map[string]int64),
		timeouts:      make(map[string]int64),
		kick:          make(chan struct{}, 1),
		sweepInterval: sweepInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logger.Get().Named("dispatch")
	}
	return e
}

// Outstanding reports whether the identity is currently dispatched.
// Satisfies the queue's in-flight dedup check.
func (e *Engine) Outstanding(identity string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.outstanding[identity]
	return ok
}

// SetConcurrency replaces the slot limit. Raising it wakes the pump;
// lowering it lets excess in-flight scouts drain naturally.
func (e *Engine) SetConcurrency(n int) {
	e.mu.Lock()
	e.limit = n
	e.mu.Unlock()
	e.Kick()
}

// Kick nudges the pump to check for free slots and queued work.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run pumps dispatches and sweeps deadlines until ctx ends.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()
	for {
		e.pump(ctx)
		select {
		case <-ctx.Done():
			return
		case <-e.kick:
		case <-ticker.C:
			e.sweep(ctx)
			e.q.PruneExpired(ctx, e.now())
		}
	}
}

// pump dispatches until no slot is free or the queue drains.
func (e *Engine) pump(ctx context.Context) {
	for e.dispatchOne(ctx) {
	}
}

// dispatchOne moves one entry through reserve -> call -> commit. The
// return value reports whether another attempt is worthwhile.
func (e *Engine) dispatchOne(ctx context.Context) bool {
	e.mu.Lock()
	if e.inUse >= e.limit {
		e.mu.Unlock()
		return false
	}
	e.inUse++
	e.mu.Unlock()

	// The provisional outstanding insert happens inside the queue's
	// critical section so no duplicate can re-enqueue between the
	// dequeue and the dispatch registration.
	req, ok := e.q.Claim(ctx, func(r *model.ScoutRequest) {
		e.mu.Lock()
		r.State = model.StateDispatched
		r.DispatchedAt = e.now()
		e.outstanding[r.Identity] = r
		metrics.UpdateOutstandingScouts(len(e.outstanding))
		e.mu.Unlock()
	})
	if !ok {
		e.release()
		return false
	}

	err := e.calls.Scout(ctx, req.Points)

	e.mu.Lock()
	defer e.mu.Unlock()

	// An IV webhook may have resolved the provisional entry while the
	// call was in flight; Resolve already freed the slot then, so the
	// commit or rollback below only applies while the entry is still
	// ours.
	cur, live := e.outstanding[req.Identity]

	if err != nil {
		if live && cur == req {
			req.State = model.StateFailed
			delete(e.outstanding, req.Identity)
			e.inUse--
			metrics.UpdateOutstandingScouts(len(e.outstanding))
		}
		e.failures++
		metrics.RecordScoutFailure()
		e.log.Warn(ctx, "scout call failed",
			logger.String("identity", req.Identity),
			logger.String("species", req.SpeciesKey()),
			logger.Error(err),
		)
		return true
	}

	if live && cur == req {
		req.Deadline = e.now().Add(e.revs.Revision().TimeoutIV)
	}
	e.dispatched[req.SeenType]++
	metrics.RecordScoutDispatched(req.SeenType)
	e.log.Info(ctx, "dispatched",
		logger.String("identity", req.Identity),
		logger.String("species", req.SpeciesKey()),
		logger.String("area", req.Area),
		logger.String("seen_type", req.SeenType),
		logger.Int("points", len(req.Points)),
		logger.Int("in_use", e.inUse),
	)
	return true
}

func (e *Engine) release() {
	e.mu.Lock()
	e.inUse--
	e.mu.Unlock()
}

// sweep times out dispatched entries whose deadline has passed.
func (e *Engine) sweep(ctx context.Context) {
	now := e.now()

	e.mu.Lock()
	var expired []*model.ScoutRequest
	for id, req := range e.outstanding {
		if !req.Deadline.IsZero() && req.Deadline.Before(now) {
			req.State = model.StateTimedOut
			delete(e.outstanding, id)
			e.inUse--
			e.timeouts[req.SeenType]++
			expired = append(expired, req)
		}
	}
	metrics.UpdateOutstandingScouts(len(e.outstanding))
	e.mu.Unlock()

	for _, req := range expired {
		metrics.RecordScoutTimeout(req.SeenType)
		e.log.Info(ctx, "scout timed out",
			logger.String("identity", req.Identity),
			logger.String("species", req.SpeciesKey()),
			logger.String("seen_type", req.SeenType),
		)
	}
	if len(expired) > 0 {
		e.Kick()
	}
}

// Resolve processes an IV-bearing event against the outstanding set:
// exact encounter identity first, then proximity within 70 meters of
// any scouted point for the same species, then the spatial-cell
// composite identity. An IV with no dispatched counterpart is an early
// IV: logged and otherwise dropped.
func (e *Engine) Resolve(ctx context.Context, ev *model.SpawnEvent) bool {
	if req, ok := e.resolveMatch(ev); ok {
		e.mu.Lock()
		e.matches[req.SeenType]++
		e.mu.Unlock()
		metrics.RecordScoutMatch(req.SeenType)
		e.log.Info(ctx, "scout resolved",
			logger.String("identity", req.Identity),
			logger.String("species", req.SpeciesKey()),
			logger.String("seen_type", req.SeenType),
			logger.String("encounter_id", ev.EncounterID),
		)
		e.Kick()
		return true
	}

	// IV arrived before we ever dispatched, or from someone else's
	// scan. Drop any still-queued twin, walking the same ladder as the
	// outstanding set, so we do not pay for a scout we no longer need.
	if dropped, ok := e.removeQueuedTwin(ctx, ev); ok {
		e.log.Debug(ctx, "queued entry satisfied by early iv",
			logger.String("identity", dropped.Identity),
		)
	}

	e.mu.Lock()
	e.earlyIV[ev.SeenType]++
	e.mu.Unlock()
	metrics.RecordEarlyIV(ev.SeenType)
	e.log.Debug(ctx, "early iv ignored",
		logger.String("encounter_id", ev.EncounterID),
		logger.String("species", ev.Display()),
	)
	return false
}

// removeQueuedTwin drops the first Queued entry the event satisfies:
// exact encounter identity, then proximity for the same species, then
// the spatial-cell composite identity.
func (e *Engine) removeQueuedTwin(ctx context.Context, ev *model.SpawnEvent) (*model.ScoutRequest, bool) {
	if dropped, ok := e.q.Remove(ctx, ev.EncounterID); ok {
		return dropped, true
	}

	pt := model.Point{Lat: ev.Lat, Lon: ev.Lon}
	token := cellgrid.Token(ev.Lat, ev.Lon)
	cellForm := model.CellIdentity(token, ev.SpeciesID, ev.Form)
	cellBare := model.CellIdentity(token, ev.SpeciesID, nil)

	return e.q.RemoveMatch(ctx, func(r *model.ScoutRequest) bool {
		if r.Identity == cellForm || r.Identity == cellBare {
			return true
		}
		if r.SpeciesID != ev.SpeciesID {
			return false
		}
		for _, p := range r.Points {
			if cellgrid.DistanceMeters(p, pt) <= proximityMeters {
				return true
			}
		}
		return false
	})
}

// resolveMatch removes and returns the outstanding entry matching the
// event, walking the resolution ladder in order.
func (e *Engine) resolveMatch(ev *model.SpawnEvent) (*model.ScoutRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req, ok := e.outstanding[ev.EncounterID]; ok {
		return e.resolveLocked(req), true
	}

	pt := model.Point{Lat: ev.Lat, Lon: ev.Lon}
	for _, req := range e.outstanding {
		if req.SpeciesID != ev.SpeciesID {
			continue
		}
		for _, p := range req.Points {
			if cellgrid.DistanceMeters(p, pt) <= proximityMeters {
				return e.resolveLocked(req), true
			}
		}
	}

	token := cellgrid.Token(ev.Lat, ev.Lon)
	for _, id := range []string{
		model.CellIdentity(token, ev.SpeciesID, ev.Form),
		model.CellIdentity(token, ev.SpeciesID, nil),
	} {
		if req, ok := e.outstanding[id]; ok {
			return e.resolveLocked(req), true
		}
	}
	return nil, false
}

func (e *Engine) resolveLocked(req *model.ScoutRequest) *model.ScoutRequest {
	req.State = model.StateResolved
	delete(e.outstanding, req.Identity)
	e.inUse--
	metrics.UpdateOutstandingScouts(len(e.outstanding))
	return req
}

// Stats returns engine counters for /stats.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Stats{
		Outstanding: len(e.outstanding),
		Limit:       e.limit,
		Dispatched:  copyCounts(e.dispatched),
		Matches:     copyCounts(e.matches),
		EarlyIV:     copyCounts(e.earlyIV),
		Timeouts:    copyCounts(e.timeouts),
		Failures:    e.failures,
	}
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
