package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/offline"
	"github.com/kozaktomas/face-registry/internal/reconcile"
)

// QueueHandler exposes the offline queue and manual sync.
type QueueHandler struct {
	queue     *offline.Queue
	scheduler *reconcile.Scheduler
}

// NewQueueHandler creates a queue handler.
func NewQueueHandler(queue *offline.Queue, scheduler *reconcile.Scheduler) *QueueHandler {
	return &QueueHandler{queue: queue, scheduler: scheduler}
}

// QueueEntry is a queued registration without its payload.
type QueueEntry struct {
	ID             uint64    `json:"id"`
	Name           string    `json:"name"`
	Payload        string    `json:"payload"` // "embedding" or "image"
	EnqueuedAt     time.Time `json:"enqueued_at"`
	AttemptCount   int       `json:"attempt_count"`
	LastError      string    `json:"last_error,omitempty"`
	RejectedReason string    `json:"rejected_reason,omitempty"`
}

// QueueResponse lists pending and rejected entries.
type QueueResponse struct {
	Pending  []QueueEntry     `json:"pending"`
	Rejected []QueueEntry     `json:"rejected"`
	Sync     reconcile.Status `json:"sync"`
}

// SyncResponse summarises a manual sync run.
type SyncResponse struct {
	Committed []string `json:"committed"`
	Rejected  []string `json:"rejected"`
	Remaining int      `json:"remaining"`
	Failed    string   `json:"failed,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// List handles GET /queue.
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.Pending(r.Context())
	if err != nil {
		respondFromError(w, r, err)
		return
	}
	rejected, err := h.queue.Rejected(r.Context())
	if err != nil {
		respondFromError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, QueueResponse{
		Pending:  toQueueEntries(pending),
		Rejected: toQueueEntries(rejected),
		Sync:     h.scheduler.Status(),
	})
}

// Sync handles POST /sync. A run that stops on an exhausted entry answers
// 503 with the partial report.
func (h *QueueHandler) Sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.scheduler.RunNow(r.Context())

	resp := SyncResponse{
		Committed: make([]string, 0, len(report.Committed)),
		Rejected:  make([]string, 0, len(report.Rejected)),
		Remaining: report.Remaining,
	}
	for _, rec := range report.Committed {
		resp.Committed = append(resp.Committed, rec.Name)
	}
	for _, p := range report.Rejected {
		resp.Rejected = append(resp.Rejected, p.Name)
	}
	if report.Failed != nil {
		resp.Failed = report.Failed.Name
	}

	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, resp)
	case errors.Is(err, database.ErrRetryExhausted):
		resp.Error = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, resp)
	case errors.Is(err, reconcile.ErrEntryFailed):
		resp.Error = err.Error()
		respondJSON(w, http.StatusBadGateway, resp)
	default:
		respondFromError(w, r, err)
	}
}

func toQueueEntries(in []offline.PendingRegistration) []QueueEntry {
	out := make([]QueueEntry, len(in))
	for i, p := range in {
		payload := "embedding"
		if len(p.Embedding) == 0 {
			payload = "image"
		}
		out[i] = QueueEntry{
			ID:             p.ID,
			Name:           p.Name,
			Payload:        payload,
			EnqueuedAt:     p.EnqueuedAt,
			AttemptCount:   p.AttemptCount,
			LastError:      p.LastError,
			RejectedReason: p.RejectedReason,
		}
	}
	return out
}
