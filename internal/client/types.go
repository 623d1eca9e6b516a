package client

import (
	"time"

	"github.com/kozaktomas/face-registry/internal/facematch"
)

// IdempotencyKeyHeader carries the dedup key of a replayed registration.
// The server commits such requests directly and never queues them.
const IdempotencyKeyHeader = "Idempotency-Key"

// RegisterRequest is the body of POST /api/v1/register. Image is base64 in
// JSON.
type RegisterRequest struct {
	Name      string    `json:"name"`
	Embedding []float32 `json:"embedding,omitempty"`
	Image     []byte    `json:"image,omitempty"`
}

// RegisterResponse is returned for committed and queued registrations.
type RegisterResponse struct {
	Status       string    `json:"status"`
	ID           string    `json:"id,omitempty"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at,omitzero"`
	QueueID      uint64    `json:"queue_id,omitempty"`
	Message      string    `json:"message"`
}

// Detection is one face in a recognize request.
type Detection struct {
	BoundingBox *facematch.BoundingBox `json:"bounding_box"`
	Embedding   []float32              `json:"embedding"`
}

// RecognizeRequest carries either detections or an image.
type RecognizeRequest struct {
	Detections []Detection `json:"detections,omitempty"`
	Image      []byte      `json:"image,omitempty"`
}

// FaceResult is the recognition outcome for one face. Name is null for
// unknown faces.
type FaceResult struct {
	Name        *string               `json:"name"`
	ID          string                `json:"id,omitempty"`
	Score       float64               `json:"score"`
	Accepted    bool                  `json:"accepted"`
	BoundingBox facematch.BoundingBox `json:"bounding_box"`
}

// RecognizeResponse is returned by POST /api/v1/recognize.
type RecognizeResponse struct {
	Faces []FaceResult `json:"faces"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
