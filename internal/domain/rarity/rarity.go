// Package rarity maintains per-area spawn censuses and derives rarity
// rankings from them.
//
// Census events upsert live records keyed by species[:form]. A periodic
// ranking job sorts each area's active records by ascending concurrent
// count (fewer sightings = rarer) and publishes the result as an
// immutable snapshot behind an atomic pointer, so rank lookups never
// contend with census ingestion.
package rarity

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"scoutq/internal/config"
	"scoutq/internal/domain/model"
	"scoutq/pkg/logger"
	"scoutq/pkg/metrics"
)

// RevisionSource yields the active configuration revision. The config
// store satisfies it.
type RevisionSource interface {
	Revision() *config.Revision
}

type record struct {
	speciesKey string
	speciesID  int
	form       *int
	active     map[string]time.Time // encounter id -> despawn time (may be zero)
	lastSeen   time.Time
}

type areaState struct {
	name          string
	firstCensus   time.Time
	observedTotal int64
	records       map[string]*record
}

// RankEntry is one row of an area's published ranking.
type RankEntry struct {
	Species  string    `json:"species"`
	Rank     int       `json:"rank"`
	Active   int       `json:"active"`
	LastSeen time.Time `json:"last_seen"`
}

type snapshot struct {
	builtAt time.Time
	byArea  map[string]map[string]int // area -> speciesKey -> 1-based rank
	listing map[string][]RankEntry
}

// AreaStats summarizes one area for /stats.
type AreaStats struct {
	Area          string `json:"area"`
	Records       int    `json:"records"`
	ActiveSpawns  int    `json:"active_spawns"`
	ObservedTotal int64  `json:"observed_total"`
	Calibrating   bool   `json:"calibrating"`
}

// Tracker is the per-area rarity census and ranking engine.
type Tracker struct {
	mu    sync.Mutex
	areas map[string]*areaState
	ranks atomic.Pointer[snapshot]
	revs  RevisionSource
	log   logger.Logger
	now   func() time.Time
}

// New creates a Tracker reading thresholds and cadences from src.
func New(src RevisionSource, opts ...Option) *Tracker {
	t := &Tracker{
		areas: make(map[string]*areaState),
		revs:  src,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.Get().Named("rarity")
	}
	t.ranks.Store(&snapshot{
		byArea:  map[string]map[string]int{},
		listing: map[string][]RankEntry{},
	})
	return t
}

// Observe ingests one census event for the given area. Events whose
// spawn has already despawned are skipped; counting them would inflate
// the census until the next cleanup pass.
func (t *Tracker) Observe(ctx context.Context, area string, ev *model.SpawnEvent) {
	now := t.now()
	if !ev.DespawnAt.IsZero() && ev.DespawnAt.Before(now) {
		return
	}
	key := ev.SpeciesKey()

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.areas[area]
	if !ok {
		st = &areaState{
			name:        area,
			firstCensus: now,
			records:     make(map[string]*record),
		}
		t.areas[area] = st
		t.log.Info(ctx, "area discovered",
			logger.String("area", area),
			logger.String("species", key),
		)
	}

	rec, ok := st.records[key]
	if !ok {
		rec = &record{
			speciesKey: key,
			speciesID:  ev.SpeciesID,
			form:       ev.Form,
			active:     make(map[string]time.Time),
		}
		st.records[key] = rec
	}
	if _, seen := rec.active[ev.EncounterID]; !seen {
		st.observedTotal++
	}
	rec.active[ev.EncounterID] = ev.DespawnAt
	rec.lastSeen = now

	metrics.RecordCensusReceived()
}

// IsCalibrating reports whether the area is still inside its warm-up
// window. Areas with no census history yet count as calibrating.
func (t *Tracker) IsCalibrating(area string) bool {
	rev := t.revs.Revision()

	t.mu.Lock()
	st, ok := t.areas[area]
	var first time.Time
	if ok {
		first = st.firstCensus
	}
	t.mu.Unlock()

	if !ok {
		return true
	}
	return t.now().Sub(first) < rev.CalibrationPeriod
}

// Rank returns the species' 1-based rank in the area. known reports
// whether the species has any census record there; rank 0 with known
// true means seen but not yet ranked.
func (t *Tracker) Rank(area string, species int, form *int) (rank int, known bool) {
	exact := model.SpeciesKey(species, form)
	bare := model.SpeciesKey(species, nil)

	snap := t.ranks.Load()
	if areaRanks, ok := snap.byArea[area]; ok {
		if r, ok := areaRanks[exact]; ok {
			return r, true
		}
		if form != nil {
			if r, ok := areaRanks[bare]; ok {
				return r, true
			}
		}
	}

	// Not in the published snapshot; a live record means the species
	// arrived after the last ranking pass.
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.areas[area]
	if !ok {
		return 0, false
	}
	if _, ok := st.records[exact]; ok {
		return 0, true
	}
	if form != nil {
		if _, ok := st.records[bare]; ok {
			return 0, true
		}
	}
	return 0, false
}

// Rankings returns the area's published ranking, rarest first, capped
// at limit when limit > 0.
func (t *Tracker) Rankings(area string, limit int) []RankEntry {
	snap := t.ranks.Load()
	rows := snap.listing[area]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	out := make([]RankEntry, len(rows))
	copy(out, rows)
	return out
}

// Areas returns per-area summaries for /stats, sorted by area name.
func (t *Tracker) Areas() []AreaStats {
	t.mu.Lock()
	out := make([]AreaStats, 0, len(t.areas))
	for _, st := range t.areas {
		active := 0
		for _, rec := range st.records {
			active += len(rec.active)
		}
		out = append(out, AreaStats{
			Area:          st.name,
			Records:       len(st.records),
			ActiveSpawns:  active,
			ObservedTotal: st.observedTotal,
		})
	}
	t.mu.Unlock()

	for i := range out {
		out[i].Calibrating = t.IsCalibrating(out[i].Area)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Area < out[j].Area })
	return out
}

// Run starts the ranking and cleanup jobs and blocks until ctx ends.
func (t *Tracker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		t.loop(ctx, func(rev *config.Revision) time.Duration { return rev.RankingInterval }, t.Rebuild)
	}()
	go func() {
		defer wg.Done()
		t.loop(ctx, func(rev *config.Revision) time.Duration { return rev.CleanupInterval }, t.Cleanup)
	}()
	wg.Wait()
}

func (t *Tracker) loop(ctx context.Context, interval func(*config.Revision) time.Duration, job func(context.Context)) {
	for {
		timer := time.NewTimer(interval(t.revs.Revision()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			job(ctx)
		}
	}
}

// Rebuild recomputes every area's ranking and publishes the result
// atomically.
func (t *Tracker) Rebuild(ctx context.Context) {
	now := t.now()
	next := &snapshot{
		builtAt: now,
		byArea:  make(map[string]map[string]int),
		listing: make(map[string][]RankEntry),
	}

	t.mu.Lock()
	totalRecords := 0
	totalActive := 0
	for area, st := range t.areas {
		rows := make([]RankEntry, 0, len(st.records))
		for _, rec := range st.records {
			rows = append(rows, RankEntry{
				Species:  rec.speciesKey,
				Active:   len(rec.active),
				LastSeen: rec.lastSeen,
			})
			totalActive += len(rec.active)
		}
		totalRecords += len(st.records)

		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Active != rows[j].Active {
				return rows[i].Active < rows[j].Active
			}
			return rows[i].Species < rows[j].Species
		})

		ranks := make(map[string]int, len(rows))
		for i := range rows {
			rows[i].Rank = i + 1
			ranks[rows[i].Species] = i + 1
		}
		next.byArea[area] = ranks
		next.listing[area] = rows
	}
	areaCount := len(t.areas)
	t.mu.Unlock()

	t.ranks.Store(next)
	metrics.UpdateRarityAreas(areaCount)
	metrics.UpdateRarityRecords(totalRecords)
	metrics.UpdateRarityActiveSpawns(totalActive)

	t.log.Debug(ctx, "ranking rebuilt",
		logger.Int("areas", areaCount),
		logger.Int("records", totalRecords),
		logger.Int("active_spawns", totalActive),
	)
}

// Cleanup drops encounters past their despawn time and records whose
// last sighting exceeds the census staleness threshold.
func (t *Tracker) Cleanup(ctx context.Context) {
	rev := t.revs.Revision()
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removedRecords := 0
	for _, st := range t.areas {
		for key, rec := range st.records {
			for enc, despawn := range rec.active {
				if !despawn.IsZero() && despawn.Before(now) {
					delete(rec.active, enc)
				}
			}
			if now.Sub(rec.lastSeen) > rev.CensusStale {
				delete(st.records, key)
				removedRecords++
			}
		}
	}

	if removedRecords > 0 {
		t.log.Debug(ctx, "stale records removed", logger.Int("records", removedRecords))
	}
}
