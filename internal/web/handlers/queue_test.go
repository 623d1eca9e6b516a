package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-registry/internal/offline"
	"github.com/kozaktomas/face-registry/internal/registry"
)

func queueBob(t *testing.T, env *testEnv) {
	t.Helper()
	env.backend.PutError = errors.New("connection refused")
	out, err := env.registrar.Register(context.Background(), registry.Request{Name: "Bob", Embedding: []float32{0, 1, 0}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if out.Status != registry.StatusQueued {
		t.Fatalf("expected queued, got %s", out.Status)
	}
}

func TestQueue_List(t *testing.T) {
	env := newTestEnv(t)
	queueBob(t, env)
	if _, _, err := env.queue.Enqueue(context.Background(), offline.PendingRegistration{Name: "Eve", Image: []byte("jpeg")}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	pending, _ := env.queue.Pending(context.Background())
	if err := env.queue.Reject(context.Background(), pending[1].ID, "not an image"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	h := NewQueueHandler(env.queue, env.scheduler)

	recorder := httptest.NewRecorder()
	h.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp QueueResponse
	parseJSONResponse(t, recorder, &resp)
	if len(resp.Pending) != 1 || resp.Pending[0].Name != "Bob" || resp.Pending[0].Payload != "embedding" {
		t.Errorf("unexpected pending entries: %+v", resp.Pending)
	}
	if len(resp.Rejected) != 1 || resp.Rejected[0].RejectedReason != "not an image" {
		t.Errorf("unexpected rejected entries: %+v", resp.Rejected)
	}
}

func TestQueue_SyncCommitsPending(t *testing.T) {
	env := newTestEnv(t)
	queueBob(t, env)
	env.backend.PutError = nil
	h := NewQueueHandler(env.queue, env.scheduler)

	events := env.broadcaster.AddListener()
	defer env.broadcaster.RemoveListener(events)

	recorder := httptest.NewRecorder()
	h.Sync(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp SyncResponse
	parseJSONResponse(t, recorder, &resp)
	if len(resp.Committed) != 1 || resp.Committed[0] != "Bob" || resp.Remaining != 0 {
		t.Errorf("unexpected sync response: %+v", resp)
	}
	if env.index.Len() != 1 {
		t.Errorf("expected Bob in the index, got %d records", env.index.Len())
	}
	if n, _ := env.queue.Len(context.Background()); n != 0 {
		t.Errorf("expected empty queue, got %d", n)
	}
	select {
	case e := <-events:
		if e.Name != "Bob" {
			t.Errorf("unexpected event: %+v", e)
		}
	default:
		t.Error("expected a registration event")
	}
}

func TestQueue_SyncStoreStillDown(t *testing.T) {
	env := newTestEnv(t)
	queueBob(t, env)
	h := NewQueueHandler(env.queue, env.scheduler)

	recorder := httptest.NewRecorder()
	h.Sync(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))

	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
	var resp SyncResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Failed != "Bob" || resp.Remaining != 1 || resp.Error == "" {
		t.Errorf("unexpected sync response: %+v", resp)
	}
	if st := env.scheduler.Status(); st.LastError == "" {
		t.Error("expected scheduler status to record the failure")
	}
}
