// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"scoutq/internal/domain/dispatch"
	"scoutq/internal/domain/model"
	"scoutq/internal/domain/queue"
	"scoutq/internal/domain/rarity"
)

// Dependencies required by HTTP handlers. Using an interface bundle
// keeps the handler layer loosely coupled to the app service.
type Dependencies interface {
	// HandleSpawn runs one event through the filtering path.
	HandleSpawn(ctx context.Context, ev *model.SpawnEvent) bool

	// HandleCensus feeds one event to the rarity census.
	HandleCensus(ctx context.Context, ev *model.SpawnEvent)

	// Stats aggregates component counters.
	Stats(ctx context.Context) StatsResponse

	// QueuePreview returns the next n queued entries in priority order.
	QueuePreview(ctx context.Context, n int) []queue.PreviewEntry

	// RarityEnabled reports whether auto rarity is active.
	RarityEnabled() bool

	// RarityRankings returns an area's ranked list, rarest first.
	RarityRankings(ctx context.Context, area string, limit int) []rarity.RankEntry

	// ConfigSummary returns the effective configuration, secrets redacted.
	ConfigSummary(ctx context.Context) ConfigSummary

	// Reload swaps in a fresh configuration revision and reports the
	// changed keys.
	Reload(ctx context.Context) ([]string, error)
}

// StatsResponse is the aggregate shape returned by GET /stats.
type StatsResponse struct {
	Queue    queue.Stats        `json:"queue"`
	Dispatch dispatch.Stats     `json:"dispatch"`
	Rarity   []rarity.AreaStats `json:"rarity"`
	Areas    []string           `json:"geofence_areas"`
}

// ConfigSummary is the redacted shape returned by GET /config.
type ConfigSummary struct {
	Addr            string   `json:"addr"`
	CellList        []string `json:"celllist"`
	IVList          []string `json:"ivlist"`
	Concurrency     int      `json:"concurrency"`
	TimeoutIV       int      `json:"timeout_iv_seconds"`
	AutoRarity      bool     `json:"auto_rarity"`
	IVThreshold     int      `json:"iv_threshold"`
	CellThreshold   int      `json:"cell_threshold"`
	Calibration     int      `json:"calibration_minutes"`
	GeofenceProject string   `json:"geofence_project"`
	GeofenceEnabled bool     `json:"geofence_enabled"`
	ScoutBaseURL    string   `json:"scout_base_url"`
	AuthConfigured  bool     `json:"auth_configured"`
	Version         int      `json:"config_version"`
}

// Server wires HTTP routes for the service API.
type Server struct {
	webhookHandler *WebhookHandler
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	queueHandler   *QueueHandler
	rarityHandler  *RarityHandler
	configHandler  *ConfigHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		webhookHandler: NewWebhookHandler(deps),
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(deps),
		queueHandler:   NewQueueHandler(deps),
		rarityHandler:  NewRarityHandler(deps),
		configHandler:  NewConfigHandler(deps),
	}
}

// Register attaches all HTTP routes to mux. Webhook and reload routes
// sit behind the auth middleware; everything records metrics.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux, allowedIPs []string, authHeader string) {
	auth := func(h http.HandlerFunc) http.HandlerFunc {
		return AuthMiddleware(h, allowedIPs, authHeader)
	}

	mux.HandleFunc("/webhook/census", MetricsMiddleware(auth(s.webhookHandler.HandleCensus), "webhook_census"))
	mux.HandleFunc("/webhook", MetricsMiddleware(auth(s.webhookHandler.HandleSpawn), "webhook"))
	mux.HandleFunc("/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/queue", MetricsMiddleware(s.queueHandler.HandleQueue, "queue"))
	mux.HandleFunc("/rarity", MetricsMiddleware(s.rarityHandler.HandleRarity, "rarity"))
	mux.HandleFunc("/config", MetricsMiddleware(s.configHandler.HandleConfig, "config"))
	mux.HandleFunc("/reload", MetricsMiddleware(auth(s.configHandler.HandleReload), "reload"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
