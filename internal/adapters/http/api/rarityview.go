package api

import (
	"net/http"
	"strconv"
)

// RarityHandler handles rarity ranking requests.
type RarityHandler struct {
	deps Dependencies
}

// NewRarityHandler creates a new rarity handler.
func NewRarityHandler(deps Dependencies) *RarityHandler {
	return &RarityHandler{deps: deps}
}

// HandleRarity handles GET /rarity?area=&limit= requests. Responds 400
// when auto rarity is disabled or the area parameter is missing.
func (h *RarityHandler) HandleRarity(w http.ResponseWriter, r *http.Request) {
	const op = "api.rarity"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if !h.deps.RarityEnabled() {
		writeError(w, http.StatusBadRequest, "disabled", NewKind(op, ErrDisabled))
		return
	}

	area := r.URL.Query().Get("area")
	if area == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, h.deps.RarityRankings(r.Context(), area, limit))
}
