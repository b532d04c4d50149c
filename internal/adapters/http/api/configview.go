package api

import "net/http"

// ConfigHandler handles configuration inspection and reload requests.
type ConfigHandler struct {
	deps Dependencies
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(deps Dependencies) *ConfigHandler {
	return &ConfigHandler{deps: deps}
}

// HandleConfig handles GET /config requests: the effective
// configuration with secrets redacted.
func (h *ConfigHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.ConfigSummary(r.Context()))
}

type reloadResponse struct {
	Status  string   `json:"status"`
	Changed []string `json:"changed"`
}

// HandleReload handles POST /reload requests. The swap is
// all-or-nothing: on failure the previous revision stays authoritative
// and the error is returned to the caller.
func (h *ConfigHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	const op = "api.reload"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	changed, err := h.deps.Reload(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reload_failed", WrapKind(op, ErrReload, err))
		return
	}
	if changed == nil {
		changed = []string{}
	}
	writeJSON(w, http.StatusOK, reloadResponse{Status: "ok", Changed: changed})
}
