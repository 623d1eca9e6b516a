// Package constants provides shared constants used across the codebase.
package constants

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// Request body constants
const (
	// MaxRequestBodySize is the maximum JSON request body in bytes. Base64
	// encoding inflates images by a third.
	MaxRequestBodySize = MaxImageBytes*4/3 + 1<<20
)
