package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"scoutq/internal/domain/model"
)

// WebhookHandler handles inbound spawn and census webhooks.
type WebhookHandler struct {
	deps Dependencies
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(deps Dependencies) *WebhookHandler {
	return &WebhookHandler{deps: deps}
}

// envelope mirrors the sender's wire shape: a typed wrapper around the
// spawn message. Bare messages without the wrapper are also accepted.
type envelope struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

// spawnMessage mirrors the upstream spawn notification payload.
type spawnMessage struct {
	EncounterID   string      `json:"encounter_id"`
	PokemonID     int         `json:"pokemon_id"`
	Form          *int        `json:"form"`
	Latitude      float64     `json:"latitude"`
	Longitude     float64     `json:"longitude"`
	SpawnpointID  json.Number `json:"spawnpoint_id"`
	SeenType      string      `json:"seen_type"`
	DisappearTime int64       `json:"disappear_time"`
	Attack        *int        `json:"individual_attack"`
	Defense       *int        `json:"individual_defense"`
	Stamina       *int        `json:"individual_stamina"`
}

func (m *spawnMessage) toModel(now time.Time) *model.SpawnEvent {
	ev := &model.SpawnEvent{
		EncounterID:  m.EncounterID,
		SpeciesID:    m.PokemonID,
		Form:         m.Form,
		Lat:          m.Latitude,
		Lon:          m.Longitude,
		SpawnpointID: m.SpawnpointID.String(),
		SeenType:     m.SeenType,
		Attack:       m.Attack,
		Defense:      m.Defense,
		Stamina:      m.Stamina,
		ReceivedAt:   now,
	}
	if m.DisappearTime > 0 {
		ev.DespawnAt = time.Unix(m.DisappearTime, 0)
	}
	return ev
}

// parseEvents decodes a webhook body: a single envelope, an array of
// envelopes, or bare spawn messages in either shape.
func parseEvents(body []byte, now time.Time) ([]*model.SpawnEvent, error) {
	var envs []envelope
	if err := json.Unmarshal(body, &envs); err != nil {
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, err
		}
		envs = []envelope{env}
	}

	events := make([]*model.SpawnEvent, 0, len(envs))
	for _, env := range envs {
		raw := env.Message
		if len(raw) == 0 {
			// Bare message without the typed wrapper.
			raw = body
			if len(envs) > 1 {
				continue
			}
		}
		var msg spawnMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.PokemonID == 0 {
			// Not a spawn payload (gym, quest, ...); skip silently.
			continue
		}
		events = append(events, msg.toModel(now))
	}
	return events, nil
}

type webhookResponse struct {
	Status    string `json:"status"`
	Processed int    `json:"processed"`
	Queued    int    `json:"queued"`
}

// HandleSpawn handles POST /webhook requests: the filtering path.
// Responds 200 whatever the match outcome, 400 on a malformed body.
func (h *WebhookHandler) HandleSpawn(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "api.webhook", func(ctx context.Context, ev *model.SpawnEvent) bool {
		return h.deps.HandleSpawn(ctx, ev)
	})
}

// HandleCensus handles POST /webhook/census requests: events feed the
// rarity census unconditionally and never enqueue.
func (h *WebhookHandler) HandleCensus(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "api.webhook_census", func(ctx context.Context, ev *model.SpawnEvent) bool {
		h.deps.HandleCensus(ctx, ev)
		return false
	})
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request, op string, sink func(context.Context, *model.SpawnEvent) bool) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	events, err := parseEvents(body, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	queued := 0
	for _, ev := range events {
		if sink(r.Context(), ev) {
			queued++
		}
	}
	writeJSON(w, http.StatusOK, webhookResponse{Status: "ok", Processed: len(events), Queued: queued})
}
