package notify

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/constants"
)

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	ch1 := b.AddListener()
	ch2 := b.AddListener()
	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}

	e := Event{Type: EventFaceRegistered, ID: "id-1", Name: "Alice", Source: SourceDirect}
	b.Notify(context.Background(), e)

	for i, ch := range []chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got != e {
				t.Errorf("listener %d got %+v, want %+v", i, got, e)
			}
		case <-time.After(time.Second):
			t.Fatalf("listener %d received nothing", i)
		}
	}

	b.RemoveListener(ch1)
	if _, ok := <-ch1; ok {
		t.Error("removed listener channel should be closed")
	}
	if b.Len() != 1 {
		t.Errorf("Len = %d, want 1", b.Len())
	}
}

func TestBroadcasterDropsWhenFull(t *testing.T) {
	b := NewBroadcaster()
	ch := b.AddListener()
	for range constants.EventChannelBuffer + 10 {
		b.Notify(context.Background(), Event{Type: EventFaceRegistered})
	}
	if len(ch) != constants.EventChannelBuffer {
		t.Errorf("buffered %d events, want %d", len(ch), constants.EventChannelBuffer)
	}
}

func TestMulti(t *testing.T) {
	var got []string
	m := Multi{
		ListenerFunc(func(ctx context.Context, e Event) { got = append(got, "first:"+e.Name) }),
		nil,
		ListenerFunc(func(ctx context.Context, e Event) { got = append(got, "second:"+e.Name) }),
	}
	m.Notify(context.Background(), Event{Name: "Bob"})

	if len(got) != 2 || got[0] != "first:Bob" || got[1] != "second:Bob" {
		t.Errorf("got %v", got)
	}
}

func TestTopics(t *testing.T) {
	if got := eventTopic("face-registry/events", EventFaceRegistered); got != "face-registry/events/face_registered" {
		t.Errorf("eventTopic = %q", got)
	}
	if got := syncTopic("face-registry/events"); got != "face-registry/events/sync" {
		t.Errorf("syncTopic = %q", got)
	}
}

func TestEventPayloadOmitsUnusedFields(t *testing.T) {
	e := Event{
		Type:      EventFaceRecognized,
		Faces:     []FaceSummary{{Name: "Alice", Score: 0.93, Accepted: true}},
		Count:     1,
		Timestamp: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	payload := string(data)
	for _, want := range []string{`"type":"face_recognized"`, `"count":1`, `"name":"Alice"`, `"timestamp":"2026-10-18T09:00:00Z"`} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload %s missing %s", payload, want)
		}
	}
	for _, unwanted := range []string{"registered_at", "queue_id", "query", `"id"`} {
		if strings.Contains(payload, unwanted) {
			t.Errorf("payload %s should not contain %s", payload, unwanted)
		}
	}
}

func TestNewMQTTPublisherRequiresBroker(t *testing.T) {
	if _, err := NewMQTTPublisher(config.MQTTConfig{}, nil); err == nil {
		t.Error("expected error without broker")
	}
}
