package api

import (
	"net/http"
	"strconv"
)

// Preview bounds for GET /queue.
const (
	defaultPreviewCount = 10
	maxPreviewCount     = 100
)

// QueueHandler handles queue preview requests.
type QueueHandler struct {
	deps Dependencies
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(deps Dependencies) *QueueHandler {
	return &QueueHandler{deps: deps}
}

// HandleQueue handles GET /queue?count=N requests: a read-only,
// priority-ordered preview of the next N queued entries.
func (h *QueueHandler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	const op = "api.queue"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	count := defaultPreviewCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		count = n
	}
	if count > maxPreviewCount {
		count = maxPreviewCount
	}

	writeJSON(w, http.StatusOK, h.deps.QueuePreview(r.Context(), count))
}
