// Package recognition matches detected faces against the registered
// identities.
package recognition

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/embedder"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/notify"
	"golang.org/x/sync/errgroup"
)

const logTimeout = 2 * time.Second

// Detection is one face found in a frame.
type Detection struct {
	BoundingBox facematch.BoundingBox
	Embedding   []float32 // may be nil when the detector could not embed the face
}

// Result is the recognition outcome for one Detection.
type Result struct {
	Identity    *database.IdentityRecord
	Score       float64
	Accepted    bool
	BoundingBox facematch.BoundingBox
}

// Name returns the matched display name or "Unknown".
func (r Result) Name() string {
	if r.Identity == nil {
		return database.UnknownName
	}
	return r.Identity.Name
}

// Detector finds faces in an image.
type Detector interface {
	DetectFaces(ctx context.Context, image []byte) ([]embedder.Face, error)
}

// Service answers recognition requests from a MatchIndex.
type Service struct {
	index     *database.MatchIndex
	threshold float64
	detector  Detector
	recLog    database.RecognitionLogger
	listener  notify.Listener
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithDetector enables RecognizeImage.
func WithDetector(d Detector) Option {
	return func(s *Service) { s.detector = d }
}

// WithRecognitionLog records every recognized face.
func WithRecognitionLog(l database.RecognitionLogger) Option {
	return func(s *Service) { s.recLog = l }
}

// WithListener announces every answered recognition request.
func WithListener(l notify.Listener) Option {
	return func(s *Service) { s.listener = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a recognition service querying index with threshold.
func NewService(index *database.MatchIndex, threshold float64, opts ...Option) *Service {
	s := &Service{
		index:     index,
		threshold: threshold,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold returns the similarity a match must exceed.
func (s *Service) Threshold() float64 {
	return s.threshold
}

// Recognize returns one result per detection, in input order. Detections
// without a usable embedding resolve to Unknown with score 0. An empty
// input yields an empty result.
func (s *Service) Recognize(ctx context.Context, detections []Detection) ([]Result, error) {
	results := make([]Result, len(detections))
	if len(detections) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(constants.RecognitionWorkers)
	for i, d := range detections {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.match(d)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.record(ctx, results)
	s.announce(ctx, results)
	return results, nil
}

func (s *Service) announce(ctx context.Context, results []Result) {
	if s.listener == nil {
		return
	}
	faces := make([]notify.FaceSummary, len(results))
	for i, r := range results {
		faces[i] = notify.FaceSummary{
			Name:        r.Name(),
			Score:       r.Score,
			Accepted:    r.Accepted,
			BoundingBox: r.BoundingBox.Array(),
		}
	}
	s.listener.Notify(ctx, notify.Event{
		Type:      notify.EventFaceRecognized,
		Faces:     faces,
		Count:     len(faces),
		Timestamp: s.now().UTC(),
	})
}

func (s *Service) match(d Detection) Result {
	res := Result{BoundingBox: d.BoundingBox.Clamp()}
	if len(d.Embedding) == 0 {
		return res
	}
	m, err := s.index.Query(d.Embedding, s.threshold)
	if err != nil {
		s.logger.Debug("unusable detection embedding", "error", err)
		return res
	}
	res.Score = m.Score
	if m.Identity != nil {
		res.Identity = m.Identity
		res.Accepted = m.Identity.Accepted
	}
	return res
}

// record writes results to the recognition log. Failures are logged only.
func (s *Service) record(ctx context.Context, results []Result) {
	if s.recLog == nil {
		return
	}
	now := s.now().UTC()
	entries := make([]database.RecognitionEntry, len(results))
	for i, r := range results {
		entries[i] = database.RecognitionEntry{
			Name:      r.Name(),
			Score:     r.Score,
			BBox:      r.BoundingBox.Array(),
			CreatedAt: now,
		}
		if r.Identity != nil {
			entries[i].IdentityID = r.Identity.ID
		}
	}

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logTimeout)
	defer cancel()
	if err := s.recLog.LogRecognition(lctx, entries); err != nil {
		s.logger.Warn("recognition log write failed", "entries", len(entries), "error", err)
	}
}

// RecognizeImage detects faces in image and recognizes each one. Faces that
// overlap a higher-scoring face are dropped.
func (s *Service) RecognizeImage(ctx context.Context, image []byte) ([]Result, error) {
	if s.detector == nil {
		return nil, fmt.Errorf("%w: no face detector configured", database.ErrEmbedFailure)
	}
	prepared, info, err := embedder.Prepare(image)
	if err != nil {
		return nil, err
	}
	faces, err := s.detector.DetectFaces(ctx, prepared)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	return s.Recognize(ctx, Detections(faces, info.Width, info.Height))
}

// Detections converts detector output for a width x height image into
// relative detections, strongest first, without overlapping duplicates.
func Detections(faces []embedder.Face, width, height int) []Detection {
	sorted := slices.Clone(faces)
	slices.SortStableFunc(sorted, func(a, b embedder.Face) int {
		return cmp.Compare(b.DetScore, a.DetScore)
	})

	out := make([]Detection, 0, len(sorted))
	for _, f := range sorted {
		box, ok := facematch.PixelBBoxToBoundingBox(f.BBox, width, height)
		if !ok {
			continue
		}
		overlaps := slices.ContainsFunc(out, func(d Detection) bool {
			return facematch.ComputeIoU(d.BoundingBox.Corners(), box.Corners()) > constants.OverlapIoUThreshold
		})
		if overlaps {
			continue
		}
		out = append(out, Detection{BoundingBox: box, Embedding: f.Embedding})
		if len(out) == constants.MaxFacesPerRequest {
			break
		}
	}
	return out
}
