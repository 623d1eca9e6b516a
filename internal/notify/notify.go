// Package notify delivers registry events to interested parties.
package notify

import (
	"context"
	"time"
)

// Event types.
const (
	EventFaceRegistered = "face_registered" // an identity was committed
	EventFaceRecognized = "face_recognized" // a recognition request was answered
	EventQueryProcessed = "query_processed" // the assistant answered a question
)

// Event sources.
const (
	SourceDirect = "direct" // committed by the registration call itself
	SourceSync   = "sync"   // committed by replaying the offline queue
)

// Event is a registry event. Registration events carry the committed
// identity, recognition events the faces and query events the question and
// its answer.
type Event struct {
	Type         string    `json:"type"`
	ID           string    `json:"id,omitempty"`
	Name         string    `json:"name,omitempty"`
	RegisteredAt time.Time `json:"registered_at,omitzero"`
	Source       string    `json:"source,omitempty"`
	QueueID      uint64    `json:"queue_id,omitempty"`

	Faces []FaceSummary `json:"faces,omitempty"`
	Count int           `json:"count,omitempty"`

	Query  string `json:"query,omitempty"`
	Answer string `json:"answer,omitempty"`

	Timestamp time.Time `json:"timestamp,omitzero"`
}

// FaceSummary is one recognized face in a face_recognized event.
type FaceSummary struct {
	Name        string     `json:"name"`
	Score       float64    `json:"score"`
	Accepted    bool       `json:"accepted"`
	BoundingBox [4]float64 `json:"bounding_box"`
}

// Listener receives events. Implementations must not block for long;
// they run on the committing goroutine.
type Listener interface {
	Notify(ctx context.Context, e Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, e Event)

func (f ListenerFunc) Notify(ctx context.Context, e Event) { f(ctx, e) }

// Multi fans an event out to several listeners in order.
type Multi []Listener

func (m Multi) Notify(ctx context.Context, e Event) {
	for _, l := range m {
		if l != nil {
			l.Notify(ctx, e)
		}
	}
}
