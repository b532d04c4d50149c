package config

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Revision is an immutable snapshot of the reloadable configuration. Every
// classification and dispatch decision reads exactly one Revision end to end.
type Revision struct {
	Version int

	CellList []string
	IVList   []string

	AutoRarityEnabled bool
	CalibrationPeriod time.Duration
	IVThreshold       int
	CellThreshold     int
	RankingInterval   time.Duration
	CleanupInterval   time.Duration
	CensusStale       time.Duration

	Concurrency int
	TimeoutIV   time.Duration

	GeofenceRefresh time.Duration
	GeofenceExpire  time.Duration

	cellIndex map[string]int
	ivIndex   map[string]int
}

// CellListIndex returns the position of an exact matcher key in the celllist.
func (r *Revision) CellListIndex(key string) (int, bool) {
	idx, ok := r.cellIndex[key]
	return idx, ok
}

// IVListIndex returns the position of an exact matcher key in the ivlist.
func (r *Revision) IVListIndex(key string) (int, bool) {
	idx, ok := r.ivIndex[key]
	return idx, ok
}

// MatchCellList resolves a species against the celllist. An explicit
// "id:form" matcher wins over a bare "id" matcher regardless of list order.
func (r *Revision) MatchCellList(species int, form *int) (int, bool) {
	return matchList(r.cellIndex, species, form)
}

// MatchIVList resolves a species against the ivlist with the same
// form-precedence rule as MatchCellList.
func (r *Revision) MatchIVList(species int, form *int) (int, bool) {
	return matchList(r.ivIndex, species, form)
}

// HasVIPLists reports whether any VIP matcher is configured.
func (r *Revision) HasVIPLists() bool {
	return len(r.cellIndex) > 0 || len(r.ivIndex) > 0
}

func matchList(index map[string]int, species int, form *int) (int, bool) {
	if form != nil {
		if idx, ok := index[fmt.Sprintf("%d:%d", species, *form)]; ok {
			return idx, true
		}
	}
	if idx, ok := index[strconv.Itoa(species)]; ok {
		return idx, true
	}
	return 0, false
}

// NewRevision validates the reloadable portion of cfg and builds an
// immutable revision. All-or-nothing: any invalid field rejects the whole
// revision.
func NewRevision(cfg *Config, version int) (*Revision, error) {
	cellIndex, err := parseMatchers(cfg.CellList)
	if err != nil {
		return nil, fmt.Errorf("celllist: %w", err)
	}
	ivIndex, err := parseMatchers(cfg.IVList)
	if err != nil {
		return nil, fmt.Errorf("ivlist: %w", err)
	}

	if cfg.Scout.Concurrency < 1 {
		return nil, Wrap(ErrInvalidConfig, fmt.Errorf("scout.concurrency must be >= 1, got %d", cfg.Scout.Concurrency))
	}
	if cfg.Scout.TimeoutIVSeconds < 1 {
		return nil, Wrap(ErrInvalidConfig, fmt.Errorf("scout.timeout_iv must be >= 1, got %d", cfg.Scout.TimeoutIVSeconds))
	}
	intervals := []struct {
		name string
		val  int
	}{
		{"auto_rarity.calibration_minutes", cfg.AutoRarity.CalibrationMinutes},
		{"auto_rarity.ranking_interval_seconds", cfg.AutoRarity.RankingIntervalSeconds},
		{"auto_rarity.cleanup_interval_seconds", cfg.AutoRarity.CleanupIntervalSeconds},
		{"auto_rarity.census_stale_seconds", cfg.AutoRarity.CensusStaleSeconds},
		{"geofence.refresh_cache_seconds", cfg.Geofence.RefreshCacheSeconds},
		{"geofence.expire_cache_seconds", cfg.Geofence.ExpireCacheSeconds},
	}
	for _, iv := range intervals {
		if iv.val < 1 {
			return nil, Wrap(ErrInvalidConfig, fmt.Errorf("%s must be >= 1, got %d", iv.name, iv.val))
		}
	}
	if cfg.AutoRarity.IVThreshold < 0 || cfg.AutoRarity.CellThreshold < 0 {
		return nil, Wrap(ErrInvalidConfig, fmt.Errorf("auto_rarity thresholds must be >= 0"))
	}

	return &Revision{
		Version:           version,
		CellList:          append([]string(nil), cfg.CellList...),
		IVList:            append([]string(nil), cfg.IVList...),
		AutoRarityEnabled: cfg.AutoRarity.Enabled,
		CalibrationPeriod: time.Duration(cfg.AutoRarity.CalibrationMinutes) * time.Minute,
		IVThreshold:       cfg.AutoRarity.IVThreshold,
		CellThreshold:     cfg.AutoRarity.CellThreshold,
		RankingInterval:   time.Duration(cfg.AutoRarity.RankingIntervalSeconds) * time.Second,
		CleanupInterval:   time.Duration(cfg.AutoRarity.CleanupIntervalSeconds) * time.Second,
		CensusStale:       time.Duration(cfg.AutoRarity.CensusStaleSeconds) * time.Second,
		Concurrency:       cfg.Scout.Concurrency,
		TimeoutIV:         time.Duration(cfg.Scout.TimeoutIVSeconds) * time.Second,
		GeofenceRefresh:   time.Duration(cfg.Geofence.RefreshCacheSeconds) * time.Second,
		GeofenceExpire:    time.Duration(cfg.Geofence.ExpireCacheSeconds) * time.Second,
		cellIndex:         cellIndex,
		ivIndex:           ivIndex,
	}, nil
}

// parseMatchers turns an ordered species[:form] list into a position index.
func parseMatchers(list []string) (map[string]int, error) {
	index := make(map[string]int, len(list))
	for i, raw := range list {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			return nil, Wrap(ErrBadMatcher, fmt.Errorf("entry %d is empty", i))
		}
		parts := strings.Split(entry, ":")
		if len(parts) > 2 {
			return nil, Wrap(ErrBadMatcher, fmt.Errorf("entry %q has too many segments", entry))
		}
		for _, p := range parts {
			if _, err := strconv.Atoi(p); err != nil {
				return nil, Wrap(ErrBadMatcher, fmt.Errorf("entry %q is not numeric", entry))
			}
		}
		if _, dup := index[entry]; dup {
			continue // first occurrence keeps the higher priority
		}
		index[entry] = i
	}
	return index, nil
}

// Store holds the active configuration revision and swaps it atomically on
// reload.
type Store struct {
	mu      sync.Mutex // serializes reloads and their apply callbacks
	rev     atomic.Pointer[Revision]
	version int
	load    func(ctx context.Context) (*Config, error)
}

// NewStore builds a store with revision 1 from cfg. The loader is used by
// Reload to re-read configuration.
func NewStore(cfg *Config, load func(ctx context.Context) (*Config, error)) (*Store, error) {
	rev, err := NewRevision(cfg, 1)
	if err != nil {
		return nil, err
	}
	s := &Store{version: 1, load: load}
	if s.load == nil {
		s.load = Load
	}
	s.rev.Store(rev)
	return s, nil
}

// Revision returns the active revision. The returned value is immutable.
func (s *Store) Revision() *Revision {
	return s.rev.Load()
}

// Reload re-reads configuration, validates it all-or-nothing, and publishes
// a new revision. The apply callback runs inside the reload critical section
// right after the swap, so consumers that must move in lockstep with the
// revision (queue reprioritization, engine concurrency) see no intermediate
// state. On any error the prior revision remains authoritative.
func (s *Store) Reload(ctx context.Context, apply func(*Revision)) (*Revision, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	next, err := NewRevision(cfg, s.version+1)
	if err != nil {
		return nil, nil, err
	}

	prev := s.rev.Load()
	changed := diffRevisions(prev, next)

	s.version++
	s.rev.Store(next)
	if apply != nil {
		apply(next)
	}
	return next, changed, nil
}

func diffRevisions(prev, next *Revision) []string {
	var changed []string
	if !slices.Equal(prev.CellList, next.CellList) {
		changed = append(changed, "celllist")
	}
	if !slices.Equal(prev.IVList, next.IVList) {
		changed = append(changed, "ivlist")
	}
	if prev.CalibrationPeriod != next.CalibrationPeriod {
		changed = append(changed, "auto_rarity.calibration_minutes")
	}
	if prev.IVThreshold != next.IVThreshold {
		changed = append(changed, "auto_rarity.iv_threshold")
	}
	if prev.CellThreshold != next.CellThreshold {
		changed = append(changed, "auto_rarity.cell_threshold")
	}
	if prev.RankingInterval != next.RankingInterval {
		changed = append(changed, "auto_rarity.ranking_interval_seconds")
	}
	if prev.CleanupInterval != next.CleanupInterval {
		changed = append(changed, "auto_rarity.cleanup_interval_seconds")
	}
	if prev.CensusStale != next.CensusStale {
		changed = append(changed, "auto_rarity.census_stale_seconds")
	}
	if prev.Concurrency != next.Concurrency {
		changed = append(changed, "scout.concurrency")
	}
	if prev.TimeoutIV != next.TimeoutIV {
		changed = append(changed, "scout.timeout_iv")
	}
	if prev.GeofenceRefresh != next.GeofenceRefresh {
		changed = append(changed, "geofence.refresh_cache_seconds")
	}
	if prev.GeofenceExpire != next.GeofenceExpire {
		changed = append(changed, "geofence.expire_cache_seconds")
	}
	return changed
}
