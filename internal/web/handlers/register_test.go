package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-registry/internal/client"
	"github.com/kozaktomas/face-registry/internal/notify"
	"github.com/kozaktomas/face-registry/internal/offline"
	"github.com/kozaktomas/face-registry/internal/registry"
)

func TestRegister_Committed(t *testing.T) {
	env := newTestEnv(t)
	h := NewRegisterHandler(env.registrar, env.committer, nil)

	events := env.broadcaster.AddListener()
	defer env.broadcaster.RemoveListener(events)

	recorder := httptest.NewRecorder()
	h.Register(recorder, jsonRequest(t, http.MethodPost, "/api/v1/register", client.RegisterRequest{
		Name:      "  Alice  ",
		Embedding: []float32{1, 0, 0},
	}))

	assertStatusCode(t, recorder, http.StatusCreated)
	var resp client.RegisterResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Status != string(registry.StatusCommitted) {
		t.Errorf("expected status committed, got %q", resp.Status)
	}
	if resp.Name != "Alice" || resp.ID == "" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if env.index.Len() != 1 {
		t.Errorf("expected 1 indexed identity, got %d", env.index.Len())
	}

	select {
	case e := <-events:
		if e.Name != "Alice" || e.Source != notify.SourceDirect {
			t.Errorf("unexpected event: %+v", e)
		}
	default:
		t.Error("expected a registration event")
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  client.RegisterRequest
	}{
		{"empty name", client.RegisterRequest{Name: "   ", Embedding: []float32{1, 0, 0}}},
		{"no payload", client.RegisterRequest{Name: "Alice"}},
		{"wrong dimension", client.RegisterRequest{Name: "Alice", Embedding: []float32{1, 0}}},
		{"zero vector", client.RegisterRequest{Name: "Alice", Embedding: []float32{0, 0, 0}}},
		{"not an image", client.RegisterRequest{Name: "Alice", Image: []byte("hello")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.backend.PutError = errors.New("connection refused")
			h := NewRegisterHandler(env.registrar, env.committer, nil)

			recorder := httptest.NewRecorder()
			h.Register(recorder, jsonRequest(t, http.MethodPost, "/api/v1/register", tc.req))

			assertStatusCode(t, recorder, http.StatusBadRequest)
			if n, _ := env.queue.Len(context.Background()); n != 0 {
				t.Errorf("expected nothing queued, got %d", n)
			}
		})
	}
}

func TestRegister_QueuedWhenStoreDown(t *testing.T) {
	env := newTestEnv(t)
	env.backend.PutError = errors.New("connection refused")
	h := NewRegisterHandler(env.registrar, env.committer, nil)

	body := client.RegisterRequest{Name: "Bob", Embedding: []float32{0, 1, 0}}
	for range 2 {
		recorder := httptest.NewRecorder()
		h.Register(recorder, jsonRequest(t, http.MethodPost, "/api/v1/register", body))

		assertStatusCode(t, recorder, http.StatusAccepted)
		var resp client.RegisterResponse
		parseJSONResponse(t, recorder, &resp)
		if resp.Status != string(registry.StatusQueued) || resp.QueueID == 0 {
			t.Errorf("unexpected response: %+v", resp)
		}
		if resp.Message != "stored locally, will sync" {
			t.Errorf("unexpected message %q", resp.Message)
		}
	}

	if n, _ := env.queue.Len(context.Background()); n != 1 {
		t.Errorf("expected 1 queued entry, got %d", n)
	}
}

func TestRegister_IdempotencyKeyNeverQueues(t *testing.T) {
	env := newTestEnv(t)
	env.backend.PutError = errors.New("connection refused")
	h := NewRegisterHandler(env.registrar, env.committer, nil)

	req := jsonRequest(t, http.MethodPost, "/api/v1/register", client.RegisterRequest{
		Name:      "Carol",
		Embedding: []float32{0, 0, 1},
	})
	req.Header.Set(client.IdempotencyKeyHeader, "key-1")
	recorder := httptest.NewRecorder()
	h.Register(recorder, req)

	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
	if n, _ := env.queue.Len(context.Background()); n != 0 {
		t.Errorf("expected nothing queued, got %d", n)
	}
}

func TestRegister_IdempotencyKeyReplayIsStable(t *testing.T) {
	env := newTestEnv(t)
	var got []notify.Event
	h := NewRegisterHandler(env.registrar, env.committer, notify.ListenerFunc(func(_ context.Context, e notify.Event) {
		got = append(got, e)
	}))

	emb := []float32{0, 0, 1}
	key := offline.DedupKey("Carol", emb, nil)
	var ids []string
	for range 2 {
		req := jsonRequest(t, http.MethodPost, "/api/v1/register", client.RegisterRequest{Name: "Carol", Embedding: emb})
		req.Header.Set(client.IdempotencyKeyHeader, key)
		recorder := httptest.NewRecorder()
		h.Register(recorder, req)

		assertStatusCode(t, recorder, http.StatusCreated)
		var resp client.RegisterResponse
		parseJSONResponse(t, recorder, &resp)
		ids = append(ids, resp.ID)
	}

	if ids[0] != registry.RecordID(key) || ids[1] != ids[0] {
		t.Errorf("expected stable record ID %s, got %v", registry.RecordID(key), ids)
	}
	if env.index.Len() != 1 {
		t.Errorf("expected 1 indexed identity, got %d", env.index.Len())
	}
	if len(got) != 2 || got[0].Source != notify.SourceSync {
		t.Errorf("expected sync events, got %+v", got)
	}
}

func TestRegister_InvalidBody(t *testing.T) {
	env := newTestEnv(t)
	h := NewRegisterHandler(env.registrar, env.committer, nil)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/register", nil)
	h.Register(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
}
