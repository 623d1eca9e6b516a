package handlers

import (
	"net/http"
	"strings"

	"github.com/kozaktomas/face-registry/internal/assistant"
)

// QueryHandler answers questions about the registry.
type QueryHandler struct {
	assistant *assistant.Assistant
}

// NewQueryHandler creates a query handler.
func NewQueryHandler(a *assistant.Assistant) *QueryHandler {
	return &QueryHandler{assistant: a}
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Prompt string `json:"prompt"`
}

// Query handles POST /query.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	answer, err := h.assistant.Ask(r.Context(), req.Prompt)
	if err != nil {
		respondFromError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, answer)
}
