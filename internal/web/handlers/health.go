package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Counter reports a size.
type Counter interface {
	Len(ctx context.Context) (int, error)
}

// HealthHandler reports store reachability.
type HealthHandler struct {
	store Pinger
	index *database.MatchIndex
	queue Counter
}

// NewHealthHandler creates a health handler. queue may be nil.
func NewHealthHandler(store Pinger, index *database.MatchIndex, queue Counter) *HealthHandler {
	return &HealthHandler{store: store, index: index, queue: queue}
}

// HealthResponse is the health report.
type HealthResponse struct {
	Status       string `json:"status"`
	Store        string `json:"store"`
	Identities   int    `json:"identities"`
	QueuePending *int   `json:"queue_pending,omitempty"`
}

// Get answers 200 when the store is reachable and 503 otherwise. Recognition
// keeps working from the index either way.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Store: "ok", Identities: h.index.Len()}
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Store = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if h.queue != nil {
		if n, err := h.queue.Len(ctx); err == nil {
			resp.QueuePending = &n
		}
	}
	respondJSON(w, status, resp)
}
