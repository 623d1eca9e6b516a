package facematch

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)
	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}
	return intersection / union
}

// ConvertPixelBBoxToRelative converts pixel bbox to relative (0-1) coordinates.
// Input bbox is [x1, y1, x2, y2] in pixels, output is [x1, y1, x2, y2] in relative coords.
func ConvertPixelBBoxToRelative(bbox []float64, width, height int) []float64 {
	if len(bbox) != 4 || width <= 0 || height <= 0 {
		return bbox
	}
	return []float64{
		bbox[0] / float64(width),
		bbox[1] / float64(height),
		bbox[2] / float64(width),
		bbox[3] / float64(height),
	}
}

// PixelBBoxToBoundingBox converts a detector's pixel box [x1, y1, x2, y2]
// into a clamped relative BoundingBox. ok is false for malformed input.
func PixelBBoxToBoundingBox(bbox []float64, width, height int) (BoundingBox, bool) {
	if len(bbox) != 4 || width <= 0 || height <= 0 {
		return BoundingBox{}, false
	}
	rel := ConvertPixelBBoxToRelative(bbox, width, height)
	box := BoundingBox{X: rel[0], Y: rel[1], Width: rel[2] - rel[0], Height: rel[3] - rel[1]}
	return box.Clamp(), true
}

// MarkerToCornerBBox converts an (X, Y, W, H) box to [x1, y1, x2, y2] corner format.
// This is useful for IoU calculations which expect corner coordinates.
func MarkerToCornerBBox(x, y, w, h float64) []float64 {
	return []float64{x, y, x + w, y + h}
}
