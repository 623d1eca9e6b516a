package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/mock"
	"github.com/kozaktomas/face-registry/internal/notify"
	"github.com/kozaktomas/face-registry/internal/offline"
	"github.com/kozaktomas/face-registry/internal/recognition"
	"github.com/kozaktomas/face-registry/internal/reconcile"
	"github.com/kozaktomas/face-registry/internal/registry"
)

const testDim = 3

// testEnv wires the handlers to an in-memory backend and a temporary queue.
type testEnv struct {
	backend     *mock.MockBackend
	index       *database.MatchIndex
	store       *registry.Store
	queue       *offline.Queue
	registrar   *registry.Registrar
	committer   *registry.LocalCommitter
	service     *recognition.Service
	scheduler   *reconcile.Scheduler
	broadcaster *notify.Broadcaster
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	backend := mock.NewMockBackend()
	index := database.NewMatchIndex(database.NewLinearStrategy(), testDim)
	store := registry.NewStore(backend, index, nil)

	queue, err := offline.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}
	t.Cleanup(func() { queue.Close() })

	broadcaster := notify.NewBroadcaster()
	committer := &registry.LocalCommitter{Store: store}
	registrar := registry.NewRegistrar(committer,
		registry.WithQueue(queue),
		registry.WithDim(testDim),
		registry.WithListener(broadcaster),
	)

	reconciler := reconcile.New(queue, committer, config.SyncConfig{
		MaxAttempts:    1,
		RetryDelay:     time.Millisecond,
		AttemptTimeout: time.Second,
	}, reconcile.WithListener(broadcaster))
	scheduler, err := reconcile.NewScheduler(reconciler, "", nil)
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	return &testEnv{
		backend:     backend,
		index:       index,
		store:       store,
		queue:       queue,
		registrar:   registrar,
		committer:   committer,
		service:     recognition.NewService(index, 0.6),
		scheduler:   scheduler,
		broadcaster: broadcaster,
	}
}

// seed registers an identity directly through the store.
func (e *testEnv) seed(t *testing.T, name string, emb []float32) database.IdentityRecord {
	t.Helper()
	rec, err := e.store.Put(context.Background(), database.IdentityRecord{
		ID:           registry.RecordID(name),
		Name:         name,
		Embedding:    emb,
		RegisteredAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to seed %s: %v", name, err)
	}
	return rec
}

// jsonRequest builds a request with body encoded as JSON.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
