// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Image constants
const (
	// MaxImageBytes is the largest accepted registration or recognition image (5MB)
	MaxImageBytes = 5 << 20

	// MaxUploadImageSide is the longest side of an image sent to the embedding server
	MaxUploadImageSide = 1920

	// MaxFacesPerRequest caps the detections accepted in one recognition call
	MaxFacesPerRequest = 64
)

// Face matching constants
const (
	// OverlapIoUThreshold is the Intersection over Union above which two
	// detections from one image are treated as the same face
	OverlapIoUThreshold = 0.7

	// RecognitionWorkers bounds parallel per-detection matching
	RecognitionWorkers = 8
)

// Registry query constants
const (
	// RecentRegistrationsLimit is the number of names listed for "recent" questions
	RecentRegistrationsLimit = 5
)
