package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-registry/internal/registry"
)

// FacesHandler lists and deletes registered identities.
type FacesHandler struct {
	store *registry.Store
}

// NewFacesHandler creates a faces handler.
func NewFacesHandler(store *registry.Store) *FacesHandler {
	return &FacesHandler{store: store}
}

// FaceResponse describes one identity without its embedding.
type FaceResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
	Accepted     bool      `json:"accepted"`
	Dim          int       `json:"dim"`
}

// List handles GET /faces.
func (h *FacesHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		respondFromError(w, r, err)
		return
	}
	out := make([]FaceResponse, len(records))
	for i, rec := range records {
		out[i] = FaceResponse{
			ID:           rec.ID,
			Name:         rec.Name,
			RegisteredAt: rec.RegisteredAt,
			Accepted:     rec.Accepted,
			Dim:          rec.Dim(),
		}
	}
	respondJSON(w, http.StatusOK, out)
}

// Delete handles DELETE /faces/{id}.
func (h *FacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing face ID")
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		respondFromError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
