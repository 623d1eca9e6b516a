package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-registry/internal/database"
)

func TestRespondJSON_SetsContentType(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondJSON(recorder, http.StatusOK, map[string]string{"status": "ok"})

	contentType := recorder.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got '%s'", contentType)
	}
}

func TestRespondJSON_NilData(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondJSON(recorder, http.StatusNoContent, nil)

	if recorder.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	if recorder.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got '%s'", recorder.Body.String())
	}
}

func TestRespondError_ContainsErrorKey(t *testing.T) {
	recorder := httptest.NewRecorder()
	errorMessage := "something went wrong"

	respondError(recorder, http.StatusBadRequest, errorMessage)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, errorMessage)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", fmt.Errorf("%w: name is empty", database.ErrValidationFailed), http.StatusBadRequest},
		{"not found", fmt.Errorf("face x: %w", database.ErrNotFound), http.StatusNotFound},
		{"embed failure", fmt.Errorf("%w: no face", database.ErrEmbedFailure), http.StatusUnprocessableEntity},
		{"store unavailable", fmt.Errorf("%w: dial tcp", database.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{"queue unavailable", database.ErrQueueUnavailable, http.StatusServiceUnavailable},
		{"retry exhausted", database.ErrRetryExhausted, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusForError(tc.err); got != tc.expected {
				t.Errorf("expected status %d, got %d", tc.expected, got)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"prompt":"how many?"}`, false},
		{"malformed", `{"prompt":`, true},
		{"empty", ``, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))

			var out QueryRequest
			err := decodeJSON(recorder, req, &out)
			if (err != nil) != tc.wantErr {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if err != nil && !strings.HasPrefix(err.Error(), errInvalidRequestBody) {
				t.Errorf("expected error to start with %q, got %q", errInvalidRequestBody, err.Error())
			}
		})
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("alice\r\nfake entry"); got != "alicefake entry" {
		t.Errorf("expected newlines stripped, got %q", got)
	}
}

func TestSendSSEEvent(t *testing.T) {
	recorder := httptest.NewRecorder()

	sendSSEEvent(recorder, recorder, "face_registered", map[string]string{"name": "Alice"})

	body := recorder.Body.String()
	if !strings.HasPrefix(body, "event: face_registered\ndata: ") {
		t.Fatalf("unexpected event framing: %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Errorf("expected event to end with a blank line, got %q", body)
	}
	payload := strings.TrimSuffix(strings.TrimPrefix(body, "event: face_registered\ndata: "), "\n\n")
	var data map[string]string
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		t.Fatalf("failed to parse event data: %v", err)
	}
	if data["name"] != "Alice" {
		t.Errorf("expected name Alice, got %q", data["name"])
	}
}
