package web

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/face-registry/internal/assistant"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/mock"
	"github.com/kozaktomas/face-registry/internal/notify"
	"github.com/kozaktomas/face-registry/internal/offline"
	"github.com/kozaktomas/face-registry/internal/recognition"
	"github.com/kozaktomas/face-registry/internal/reconcile"
	"github.com/kozaktomas/face-registry/internal/registry"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Defaults()
	cfg.Embedding.Dim = 3

	index := database.NewMatchIndex(database.NewLinearStrategy(), 3)
	store := registry.NewStore(mock.NewMockBackend(), index, nil)
	queue, err := offline.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}
	t.Cleanup(func() { queue.Close() })

	committer := &registry.LocalCommitter{Store: store}
	scheduler, err := reconcile.NewScheduler(reconcile.New(queue, committer, cfg.Sync), "", nil)
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}

	return NewServer(cfg, Deps{
		Store:       store,
		Registrar:   registry.NewRegistrar(committer, registry.WithQueue(queue), registry.WithDim(3)),
		Committer:   committer,
		Recognition: recognition.NewService(index, cfg.Match.Threshold),
		Queue:       queue,
		Scheduler:   scheduler,
		Broadcaster: notify.NewBroadcaster(),
		Assistant:   assistant.New(store),
	})
}

func TestRoutes(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		method       string
		path         string
		body         string
		expectedCode int
	}{
		{http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{http.MethodGet, "/api/v1/faces", "", http.StatusOK},
		{http.MethodGet, "/api/v1/queue", "", http.StatusOK},
		{http.MethodPost, "/api/v1/sync", "", http.StatusOK},
		{http.MethodPost, "/api/v1/register", `{"name":"Alice","embedding":[1,0,0]}`, http.StatusCreated},
		{http.MethodPost, "/api/v1/recognize", `{"detections":[]}`, http.StatusOK},
		{http.MethodPost, "/api/v1/query", `{"prompt":"how many registered?"}`, http.StatusOK},
		{http.MethodDelete, "/api/v1/faces/missing", "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
		{http.MethodPut, "/api/v1/faces", "", http.StatusMethodNotAllowed},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			recorder := httptest.NewRecorder()
			server.Router().ServeHTTP(recorder, req)

			if recorder.Code != tc.expectedCode {
				t.Errorf("expected status %d, got %d\nBody: %s", tc.expectedCode, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestServerAddr(t *testing.T) {
	server := newTestServer(t)
	if server.httpServer.Addr != "0.0.0.0:8085" {
		t.Errorf("expected default address, got %q", server.httpServer.Addr)
	}
}
