// Package service wires the domain components together and implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"sync"
	"time"

	"scoutq/internal/adapters/geofence"
	"scoutq/internal/adapters/http/api"
	"scoutq/internal/adapters/scout"
	"scoutq/internal/config"
	"scoutq/internal/domain/classify"
	"scoutq/internal/domain/dispatch"
	"scoutq/internal/domain/model"
	"scoutq/internal/domain/queue"
	"scoutq/internal/domain/rarity"
	"scoutq/pkg/logger"
	"scoutq/pkg/metrics"
)

// Service owns the component graph and the background jobs.
type Service struct {
	mu sync.Mutex

	cfg   *config.Config
	store *config.Store

	queue      *queue.PriorityQueue
	engine     *dispatch.Engine
	tracker    *rarity.Tracker
	areas      *geofence.Cache
	classifier *classify.Classifier
	caller     scout.Caller
	provider   geofence.Provider

	started bool
	cancel  context.CancelFunc
	done    sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithScoutCaller overrides the outbound scout client, for tests.
func WithScoutCaller(c scout.Caller) Option {
	return func(s *Service) {
		s.caller = c
	}
}

// WithGeofenceProvider overrides the geofence provider, for tests.
func WithGeofenceProvider(p geofence.Provider) Option {
	return func(s *Service) {
		s.provider = p
	}
}

// New constructs the service graph from static configuration. The
// returned service is inert until Start.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	store, err := config.NewStore(cfg, nil)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:   cfg,
		store: store,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.caller == nil {
		s.caller = scout.NewClient(cfg.Scout)
	}
	if s.provider == nil && cfg.Geofence.Enabled {
		s.provider = geofence.NewClient(cfg.Geofence.BaseURL, cfg.Geofence.BearerToken, cfg.Geofence.Project)
	}

	s.queue = queue.New()
	s.engine = dispatch.New(s.queue, s.caller, store,
		time.Duration(cfg.Scout.SweepIntervalSeconds)*time.Second)
	s.tracker = rarity.New(store)
	s.areas = geofence.NewCache(s.provider, cfg.Geofence.Enabled, store)
	s.classifier = classify.New(store, s.areas, s.tracker, s.queue, s.engine)

	// Close the dedup loop: enqueue consults the engine's outstanding
	// set so an identity is unique across Queued and Dispatched.
	s.queue.SetInFlightChecker(s.engine)

	return s, nil
}

// Start launches the background jobs: geofence refresh, rarity ranking
// and cleanup, and the dispatch pump with its timeout sweep.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.done.Add(3)
	go func() {
		defer s.done.Done()
		s.areas.Run(runCtx)
	}()
	go func() {
		defer s.done.Done()
		s.tracker.Run(runCtx)
	}()
	go func() {
		defer s.done.Done()
		s.engine.Run(runCtx)
	}()

	s.started = true
	s.logger.Info(ctx, "service started",
		logger.Int("concurrency", s.store.Revision().Concurrency),
		logger.String("scout_base_url", s.cfg.Scout.BaseURL),
		logger.Any("geofence_enabled", s.cfg.Geofence.Enabled),
	)
	return nil
}

// Stop cancels the background jobs and waits for them to drain.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.cancel()
	s.done.Wait()
	s.started = false
	s.logger.Info(context.Background(), "service stopped")
}

// HandleSpawn runs one event through the filtering path.
func (s *Service) HandleSpawn(ctx context.Context, ev *model.SpawnEvent) bool {
	return s.classifier.Handle(ctx, ev)
}

// HandleCensus feeds one event to the rarity census. Events outside
// every known area are still counted against the synthetic global area
// when filtering is disabled; otherwise they are dropped.
func (s *Service) HandleCensus(ctx context.Context, ev *model.SpawnEvent) {
	area, ok := s.areas.Locate(ev.Lat, ev.Lon)
	if !ok {
		return
	}
	s.tracker.Observe(ctx, area, ev)
}

// Stats aggregates component counters for GET /stats.
func (s *Service) Stats(ctx context.Context) api.StatsResponse {
	return api.StatsResponse{
		Queue:    s.queue.Stats(),
		Dispatch: s.engine.Stats(),
		Rarity:   s.tracker.Areas(),
		Areas:    s.areas.AreaNames(),
	}
}

// QueuePreview returns the next n queued entries in priority order.
func (s *Service) QueuePreview(ctx context.Context, n int) []queue.PreviewEntry {
	return s.queue.Preview(ctx, n)
}

// RarityEnabled reports whether auto rarity is active.
func (s *Service) RarityEnabled() bool {
	return s.store.Revision().AutoRarityEnabled
}

// RarityRankings returns an area's ranked list, rarest first.
func (s *Service) RarityRankings(ctx context.Context, area string, limit int) []rarity.RankEntry {
	return s.tracker.Rankings(area, limit)
}

// ConfigSummary returns the effective configuration, secrets redacted.
func (s *Service) ConfigSummary(ctx context.Context) api.ConfigSummary {
	rev := s.store.Revision()
	return api.ConfigSummary{
		Addr:            s.cfg.Addr,
		CellList:        rev.CellList,
		IVList:          rev.IVList,
		Concurrency:     rev.Concurrency,
		TimeoutIV:       int(rev.TimeoutIV / time.Second),
		AutoRarity:      rev.AutoRarityEnabled,
		IVThreshold:     rev.IVThreshold,
		CellThreshold:   rev.CellThreshold,
		Calibration:     int(rev.CalibrationPeriod / time.Minute),
		GeofenceProject: s.cfg.Geofence.Project,
		GeofenceEnabled: s.cfg.Geofence.Enabled,
		ScoutBaseURL:    s.cfg.Scout.BaseURL,
		AuthConfigured:  s.cfg.AuthHeader != "" || len(s.cfg.AllowedIPs) > 0,
		Version:         rev.Version,
	}
}

// Reload re-reads configuration and swaps the reloadable portion in.
// Queue reprioritization and the engine's concurrency limit move in
// lockstep with the revision inside the store's reload critical
// section.
func (s *Service) Reload(ctx context.Context) ([]string, error) {
	_, changed, err := s.store.Reload(ctx, func(rev *config.Revision) {
		s.queue.Reprioritize(ctx, s.classifier.Rekey(rev))
		s.engine.SetConcurrency(rev.Concurrency)
	})
	if err != nil {
		metrics.RecordConfigReloadFailure()
		s.logger.Warn(ctx, "config reload rejected", logger.Error(err))
		return nil, err
	}

	metrics.RecordConfigReload()
	s.logger.Info(ctx, "config reloaded",
		logger.Int("version", s.store.Revision().Version),
		logger.Any("changed", changed),
	)
	return changed, nil
}
