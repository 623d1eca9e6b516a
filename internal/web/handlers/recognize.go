package handlers

import (
	"fmt"
	"net/http"

	"github.com/kozaktomas/face-registry/internal/client"
	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/recognition"
)

// RecognizeHandler matches faces against the registry.
type RecognizeHandler struct {
	service *recognition.Service
}

// NewRecognizeHandler creates a recognize handler.
func NewRecognizeHandler(service *recognition.Service) *RecognizeHandler {
	return &RecognizeHandler{service: service}
}

// Recognize handles POST /recognize with either detections or an image.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	var req client.RecognizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		results []recognition.Result
		err     error
	)
	switch {
	case len(req.Image) > 0:
		results, err = h.service.RecognizeImage(r.Context(), req.Image)
	default:
		detections, verr := toDetections(req.Detections)
		if verr != nil {
			respondError(w, http.StatusBadRequest, verr.Error())
			return
		}
		results, err = h.service.Recognize(r.Context(), detections)
	}
	if err != nil {
		respondFromError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, client.RecognizeResponse{Faces: toFaceResults(results)})
}

func toDetections(in []client.Detection) ([]recognition.Detection, error) {
	if len(in) > constants.MaxFacesPerRequest {
		return nil, fmt.Errorf("too many detections: %d, limit is %d", len(in), constants.MaxFacesPerRequest)
	}
	out := make([]recognition.Detection, len(in))
	for i, d := range in {
		if d.BoundingBox == nil {
			return nil, fmt.Errorf("detection %d: bounding_box is required", i)
		}
		out[i] = recognition.Detection{BoundingBox: d.BoundingBox.Clamp(), Embedding: d.Embedding}
	}
	return out, nil
}

func toFaceResults(results []recognition.Result) []client.FaceResult {
	out := make([]client.FaceResult, len(results))
	for i, res := range results {
		out[i] = client.FaceResult{
			Score:       res.Score,
			Accepted:    res.Accepted,
			BoundingBox: res.BoundingBox,
		}
		if res.Identity != nil {
			name := res.Identity.Name
			out[i].Name = &name
			out[i].ID = res.Identity.ID
		}
	}
	return out
}
