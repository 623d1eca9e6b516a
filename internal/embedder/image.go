package embedder

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/database"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ImageInfo describes a validated image.
type ImageInfo struct {
	Format string
	Width  int
	Height int
}

var allowedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"webp": true,
	"gif":  true,
	"bmp":  true,
}

// passthroughFormats are sent to the embedding server as they are.
var passthroughFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
}

// ValidateImage checks size and format of an uploaded photo without
// decoding the pixels.
func ValidateImage(data []byte) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, fmt.Errorf("%w: image is empty", database.ErrValidationFailed)
	}
	if len(data) > constants.MaxImageBytes {
		return ImageInfo{}, fmt.Errorf("%w: image is %d bytes, limit is %d",
			database.ErrValidationFailed, len(data), constants.MaxImageBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: unreadable image (%s): %w",
			database.ErrValidationFailed, DetectMIMEType(data), err)
	}
	if !allowedFormats[format] {
		return ImageInfo{}, fmt.Errorf("%w: unsupported image format %q", database.ErrValidationFailed, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, fmt.Errorf("%w: image has no pixels", database.ErrValidationFailed)
	}
	return ImageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Prepare validates data and returns the image to send to the embedding
// server. JPEG and PNG within constants.MaxUploadImageSide pass through
// unchanged; anything else is decoded, scaled to fit and re-encoded as JPEG.
// info describes the returned image.
func Prepare(data []byte) ([]byte, ImageInfo, error) {
	info, err := ValidateImage(data)
	if err != nil {
		return nil, ImageInfo{}, err
	}
	maxSide := constants.MaxUploadImageSide
	if passthroughFormats[info.Format] && info.Width <= maxSide && info.Height <= maxSide {
		return data, info, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ImageInfo{}, fmt.Errorf("%w: failed to decode image: %w", database.ErrValidationFailed, err)
	}

	width, height := info.Width, info.Height
	if width > maxSide || height > maxSide {
		if width > height {
			height = max(1, height*maxSide/width)
			width = maxSide
		} else {
			width = max(1, width*maxSide/height)
			height = maxSide
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, ImageInfo{}, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), ImageInfo{Format: "jpeg", Width: width, Height: height}, nil
}

// DetectMIMEType detects the MIME type from image data
func DetectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
