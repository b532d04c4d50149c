// Package queue implements the ordered collection of pending scout
// requests.
//
// Entries sort by (tier, subrank, enqueued_at) ascending. The structure is
// small enough that a single mutex around a binary heap outperforms
// lock-free designs, so every operation runs inside one critical section.
package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"scoutq/internal/domain/model"
	"scoutq/pkg/logger"
	"scoutq/pkg/metrics"
)

// InFlightChecker reports whether an identity is currently dispatched.
// The dispatch engine implements it so Enqueue can dedup across both
// live states.
type InFlightChecker interface {
	Outstanding(identity string) bool
}

type item struct {
	req   *model.ScoutRequest
	index int
}

type entryHeap []*item

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	return h[i].req.Priority.Less(h[j].req.Priority, h[i].req.EnqueuedAt, h[j].req.EnqueuedAt)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// PreviewEntry is the read shape returned by Preview.
type PreviewEntry struct {
	Identity string         `json:"identity"`
	Species  string         `json:"species"`
	Area     string         `json:"area"`
	SeenType string         `json:"seen_type"`
	Source   string         `json:"source"`
	Priority model.Priority `json:"priority"`
	Lat      float64        `json:"lat"`
	Lon      float64        `json:"lon"`
}

// Stats summarizes the queue for /stats.
type Stats struct {
	Depth        int              `json:"depth"`
	QueuedTotal  int64            `json:"queued_total"`
	QueuedByType map[string]int64 `json:"queued_by_seen_type"`
	DedupedTotal int64            `json:"deduped_total"`
	ExpiredTotal int64            `json:"expired_total"`
}

// PriorityQueue is the ordered set of Queued scout requests.
type PriorityQueue struct {
	mu       sync.Mutex
	heap     entryHeap
	byID     map[string]*item
	inFlight InFlightChecker
	log      logger.Logger

	queuedTotal  int64
	queuedByType map[string]int64
	dedupedTotal int64
	expiredTotal int64
}

// New creates an empty priority queue with configuration options.
func New(opts ...Option) *PriorityQueue {
	q := &PriorityQueue{
		byID:         make(map[string]*item),
		queuedByType: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.log == nil {
		q.log = logger.Get().Named("queue")
	}
	return q
}

// SetInFlightChecker wires the dedup check against dispatched entries
// after construction. Needed because the queue and the dispatch engine
// reference each other.
func (q *PriorityQueue) SetInFlightChecker(c InFlightChecker) {
	q.mu.Lock()
	q.inFlight = c
	q.mu.Unlock()
}

// Enqueue adds a request to the queue. Returns false without mutating
// state when the identity is already Queued or Dispatched.
func (q *PriorityQueue) Enqueue(ctx context.Context, req *model.ScoutRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.byID[req.Identity]; dup {
		q.dedupedTotal++
		metrics.RecordDeduped()
		q.log.Debug(ctx, "duplicate entry skipped",
			logger.String("identity", req.Identity),
			logger.String("species", req.SpeciesKey()),
		)
		return false
	}
	if q.inFlight != nil && q.inFlight.Outstanding(req.Identity) {
		q.dedupedTotal++
		metrics.RecordDeduped()
		q.log.Debug(ctx, "entry already dispatched, skipped",
			logger.String("identity", req.Identity),
			logger.String("species", req.SpeciesKey()),
		)
		return false
	}

	req.State = model.StateQueued
	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = time.Now()
	}

	it := &item{req: req}
	heap.Push(&q.heap, it)
	q.byID[req.Identity] = it

	q.queuedTotal++
	q.queuedByType[req.SeenType]++
	metrics.RecordEnqueued(req.Source)
	metrics.UpdateQueueDepth(len(q.byID))

	q.log.Debug(ctx, "queued",
		logger.String("identity", req.Identity),
		logger.String("species", req.SpeciesKey()),
		logger.String("area", req.Area),
		logger.String("seen_type", req.SeenType),
		logger.Int("tier", req.Priority.Tier),
		logger.Int("subrank", req.Priority.Subrank),
		logger.Int("depth", len(q.byID)),
	)
	return true
}

// DequeueHighest atomically removes and returns the lowest-key entry.
// The second return is false when the queue is empty.
func (q *PriorityQueue) DequeueHighest(ctx context.Context) (*model.ScoutRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil, false
	}
	it := heap.Pop(&q.heap).(*item)
	delete(q.byID, it.req.Identity)
	metrics.UpdateQueueDepth(len(q.byID))
	return it.req, true
}

// Claim removes the lowest-key entry and hands it to accept while the
// queue's critical section is still held. Registering the identity in
// the in-flight set inside accept closes the window where a duplicate
// could re-enqueue between the dequeue and the dispatch registration.
func (q *PriorityQueue) Claim(ctx context.Context, accept func(*model.ScoutRequest)) (*model.ScoutRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil, false
	}
	it := heap.Pop(&q.heap).(*item)
	delete(q.byID, it.req.Identity)
	metrics.UpdateQueueDepth(len(q.byID))
	if accept != nil {
		accept(it.req)
	}
	return it.req, true
}

// Remove drops the entry with the given identity, if Queued.
func (q *PriorityQueue) Remove(ctx context.Context, identity string) (*model.ScoutRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(identity)
}

func (q *PriorityQueue) removeLocked(identity string) (*model.ScoutRequest, bool) {
	it, ok := q.byID[identity]
	if !ok {
		return nil, false
	}
	heap.Remove(&q.heap, it.index)
	delete(q.byID, identity)
	metrics.UpdateQueueDepth(len(q.byID))
	return it.req, true
}

// RemoveMatch drops the first Queued entry matched by pred, scanning in
// arbitrary order. Used by the resolution path for proximity matching of
// entries that have not dispatched yet.
func (q *PriorityQueue) RemoveMatch(ctx context.Context, pred func(*model.ScoutRequest) bool) (*model.ScoutRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, it := range q.byID {
		if pred(it.req) {
			return q.removeLocked(id)
		}
	}
	return nil, false
}

// Reprioritize recomputes every Queued entry's key with rekey and rebuilds
// the ordering in one critical section. Entries for which rekey reports
// keep=false (their matcher vanished from the new revision) are dropped.
// Relative order among equal keys is preserved by the enqueue-time
// tiebreak.
func (q *PriorityQueue) Reprioritize(ctx context.Context, rekey func(*model.ScoutRequest) (model.Priority, bool)) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := 0
	kept := q.heap[:0]
	for _, it := range q.heap {
		prio, keep := rekey(it.req)
		if !keep {
			delete(q.byID, it.req.Identity)
			dropped++
			continue
		}
		it.req.Priority = prio
		kept = append(kept, it)
	}
	q.heap = kept
	for i, it := range q.heap {
		it.index = i
	}
	heap.Init(&q.heap)
	metrics.UpdateQueueDepth(len(q.byID))

	if dropped > 0 {
		q.log.Info(ctx, "reprioritize dropped unmatched entries", logger.Int("dropped", dropped))
	}
	return dropped
}

// PruneExpired drops entries whose spawn has despawned. Returns the number
// removed.
func (q *PriorityQueue) PruneExpired(ctx context.Context, now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, it := range q.byID {
		if !it.req.DespawnAt.IsZero() && it.req.DespawnAt.Before(now) {
			heap.Remove(&q.heap, it.index)
			delete(q.byID, id)
			removed++
			q.expiredTotal++
			metrics.RecordQueueExpired()
		}
	}
	if removed > 0 {
		metrics.UpdateQueueDepth(len(q.byID))
		q.log.Debug(ctx, "pruned expired entries", logger.Int("removed", removed))
	}
	return removed
}

// Preview returns the next n entries in priority order without removing
// them.
func (q *PriorityQueue) Preview(ctx context.Context, n int) []PreviewEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Pop a scratch heap of copied items so the live heap's indices stay
	// intact. n is small (the API layer caps it) so this stays cheap.
	scratch := make(entryHeap, len(q.heap))
	for i, it := range q.heap {
		scratch[i] = &item{req: it.req, index: i}
	}
	heap.Init(&scratch)

	out := make([]PreviewEntry, 0, n)
	for len(scratch) > 0 && len(out) < n {
		it := heap.Pop(&scratch).(*item)
		entry := PreviewEntry{
			Identity: it.req.Identity,
			Species:  it.req.SpeciesKey(),
			Area:     it.req.Area,
			SeenType: it.req.SeenType,
			Source:   it.req.Source,
			Priority: it.req.Priority,
		}
		if len(it.req.Points) > 0 {
			entry.Lat = it.req.Points[0].Lat
			entry.Lon = it.req.Points[0].Lon
		}
		out = append(out, entry)
	}
	return out
}

// Len returns the current number of Queued entries.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byID)
}

// Stats returns queue counters for /stats.
func (q *PriorityQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	byType := make(map[string]int64, len(q.queuedByType))
	for k, v := range q.queuedByType {
		byType[k] = v
	}
	return Stats{
		Depth:        len(q.byID),
		QueuedTotal:  q.queuedTotal,
		QueuedByType: byType,
		DedupedTotal: q.dedupedTotal,
		ExpiredTotal: q.expiredTotal,
	}
}
