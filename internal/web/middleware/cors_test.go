package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	tests := []struct {
		name          string
		origin        string
		method        string
		expectedAllow string
		expectedCode  int
	}{
		{"listed origin", "https://app.example", http.MethodGet, "https://app.example", http.StatusOK},
		{"localhost with port", "http://localhost:5173", http.MethodGet, "http://localhost:5173", http.StatusOK},
		{"localhost lookalike", "http://localhost.evil.example", http.MethodGet, "", http.StatusOK},
		{"unknown origin", "https://evil.example", http.MethodGet, "", http.StatusOK},
		{"no origin", "", http.MethodGet, "", http.StatusOK},
		{"preflight", "https://app.example", http.MethodOptions, "https://app.example", http.StatusNoContent},
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORS([]string{"https://app.example"})(next)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/v1/faces", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, req)

			if recorder.Code != tc.expectedCode {
				t.Errorf("expected status %d, got %d", tc.expectedCode, recorder.Code)
			}
			if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != tc.expectedAllow {
				t.Errorf("expected allow origin %q, got %q", tc.expectedAllow, got)
			}
		})
	}
}

func TestNoSniff(t *testing.T) {
	recorder := httptest.NewRecorder()
	NoSniff(http.NotFoundHandler()).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := recorder.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff, got %q", got)
	}
}
