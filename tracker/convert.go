package tracker

import "github.com/swdee/go-motionwatch/postprocess"

// DetectionsToRects takes region extractor detection results and converts
// them into tracker rects, keeping detection order
func DetectionsToRects(dets []postprocess.Detection) []Rect {

	rects := make([]Rect, 0, len(dets))

	for _, det := range dets {
		rects = append(rects, NewRect(
			det.Box.Left,
			det.Box.Top,
			det.Box.Right-det.Box.Left,
			det.Box.Bottom-det.Box.Top,
		))
	}

	return rects
}
