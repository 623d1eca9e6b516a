package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/face-registry/internal/client"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/notify"
	"github.com/kozaktomas/face-registry/internal/registry"
)

// RegisterHandler accepts new identities.
type RegisterHandler struct {
	registrar *registry.Registrar
	committer registry.Committer
	listener  notify.Listener
}

// NewRegisterHandler creates a register handler. Requests carrying an
// idempotency key bypass the registrar and go straight to committer.
// listener may be nil.
func NewRegisterHandler(registrar *registry.Registrar, committer registry.Committer, listener notify.Listener) *RegisterHandler {
	return &RegisterHandler{registrar: registrar, committer: committer, listener: listener}
}

// Register handles POST /register. It answers 201 for a committed
// registration and 202 when the registration was stored locally.
func (h *RegisterHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req client.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if key := r.Header.Get(client.IdempotencyKeyHeader); key != "" {
		h.replay(w, r, req, key)
		return
	}

	out, err := h.registrar.Register(r.Context(), registry.Request{
		Name:      req.Name,
		Embedding: req.Embedding,
		Image:     req.Image,
	})
	if err != nil {
		respondFromError(w, r, err)
		return
	}

	resp := client.RegisterResponse{Status: string(out.Status), Message: out.Message()}
	status := http.StatusCreated
	if out.Status == registry.StatusQueued {
		resp.Name = out.Pending.Name
		resp.QueueID = out.Pending.ID
		status = http.StatusAccepted
	} else {
		resp.ID = out.Record.ID
		resp.Name = out.Record.Name
		resp.RegisteredAt = out.Record.RegisteredAt
	}
	respondJSON(w, status, resp)
}

// replay commits a registration drained from a client's offline queue.
// It never queues on the server, so the client keeps ownership of entries
// the store could not take.
func (h *RegisterHandler) replay(w http.ResponseWriter, r *http.Request, req client.RegisterRequest, key string) {
	reg := registry.Registration{
		Name:      facematch.CleanDisplayName(req.Name),
		Embedding: req.Embedding,
		DedupKey:  key,
	}
	if len(req.Embedding) == 0 {
		reg.Image = req.Image
	}

	rec, err := h.committer.Commit(r.Context(), reg)
	if err != nil {
		respondFromError(w, r, err)
		return
	}
	slog.Info("replayed registration committed", "name", sanitizeForLog(rec.Name), "id", rec.ID)
	if h.listener != nil {
		h.listener.Notify(r.Context(), notify.Event{
			Type:         notify.EventFaceRegistered,
			ID:           rec.ID,
			Name:         rec.Name,
			RegisteredAt: rec.RegisteredAt,
			Source:       notify.SourceSync,
		})
	}
	respondJSON(w, http.StatusCreated, client.RegisterResponse{
		Status:       string(registry.StatusCommitted),
		ID:           rec.ID,
		Name:         rec.Name,
		RegisteredAt: rec.RegisteredAt,
		Message:      "registered " + rec.Name,
	})
}
