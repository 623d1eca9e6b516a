// Package embedder talks to the face embedding server, which detects faces
// in an image and returns one embedding per face.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
)

const defaultEmbeddingURL = "http://localhost:8000"

// Client computes face embeddings using the embedding server.
type Client struct {
	baseURL string
	dim     int
	client  *http.Client
}

// NewClient creates a new embedding client. dim, when positive, is checked
// against every returned embedding.
func NewClient(baseURL string, dim int, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		client:  &http.Client{Timeout: timeout},
	}
}

// Face is a single detected face.
type Face struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint.
type faceResponse struct {
	FacesCount int    `json:"faces_count"`
	Faces      []Face `json:"faces"`
	Model      string `json:"model"`
}

// postMultipartImage posts the image as a multipart "file" field with a
// sniffed Content-Type.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", database.ErrEmbedFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", database.ErrEmbedFailure, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: embedding server rejected image (status %d): %s",
			database.ErrValidationFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		return nil, fmt.Errorf("%w: API error (status %d): %s",
			database.ErrEmbedFailure, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// DetectFaces returns every face found in the image with its embedding.
// An image without faces yields an empty slice.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) ([]Face, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %w", database.ErrEmbedFailure, err)
	}
	for i := range faceResp.Faces {
		if err := database.ValidateEmbedding(faceResp.Faces[i].Embedding, c.dim); err != nil {
			return nil, fmt.Errorf("%w: face %d: %w", database.ErrEmbedFailure, i, err)
		}
	}
	return faceResp.Faces, nil
}

// Embed returns the embedding of the single face in a registration photo.
// Photos with no face or several faces fail validation.
func (c *Client) Embed(ctx context.Context, imageData []byte) ([]float32, error) {
	prepared, _, err := Prepare(imageData)
	if err != nil {
		return nil, err
	}
	faces, err := c.DetectFaces(ctx, prepared)
	if err != nil {
		return nil, err
	}
	switch len(faces) {
	case 0:
		return nil, fmt.Errorf("%w: no face detected", database.ErrValidationFailed)
	case 1:
		return faces[0].Embedding, nil
	default:
		return nil, fmt.Errorf("%w: %d faces detected, registration needs exactly one", database.ErrValidationFailed, len(faces))
	}
}

// Health checks that the embedding server answers.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", database.ErrEmbedFailure, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", database.ErrEmbedFailure, resp.StatusCode)
	}
	return nil
}
