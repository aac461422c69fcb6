package render

import (
	"fmt"
	"image"

	"github.com/swdee/go-motionwatch/tracker"
	"gocv.io/x/gocv"
)

// BoxStyle defines the parameters used for rendering tracked object boxes
type BoxStyle struct {
	LineThickness int
	// CentroidRadius is the radius of the filled dot drawn on the centroid
	CentroidRadius int
	// ShowPredicted draws an outline of the box at its predicted position
	ShowPredicted bool
}

// DefaultBoxStyle returns default box style settings
func DefaultBoxStyle() BoxStyle {
	return BoxStyle{
		LineThickness:  2,
		CentroidRadius: 4,
		ShowPredicted:  true,
	}
}

// ThreatBoxes renders the bounding box, identity label and centroid of each
// tracked object colored by its threat level
func ThreatBoxes(img *gocv.Mat, tracks []tracker.Track, font Font, style BoxStyle) {

	for _, tr := range tracks {

		useClr := ThreatColor(tr.ThreatLevel)
		center := tr.Centroid.Point()

		textClr := font.Color

		if font.SameColor {
			textClr = useClr
		}

		gocv.PutTextWithParams(img, fmt.Sprintf("ID: %d", tr.ID),
			image.Pt(center.X-font.Offset, center.Y-font.Offset),
			font.Face, font.Scale, textClr, font.Thickness, font.LineType, false)

		gocv.Rectangle(img, tr.Rect.Image(), useClr, style.LineThickness)

		gocv.Circle(img, center, style.CentroidRadius, useClr, -1)
	}
}

// PredictedBoxes renders a thin outline of each object's box moved to its
// predicted next position with a ring on the predicted centroid
func PredictedBoxes(img *gocv.Mat, tracks []tracker.Track, style BoxStyle) {

	if !style.ShowPredicted {
		return
	}

	for _, tr := range tracks {

		useClr := ThreatColor(tr.ThreatLevel)

		gocv.Rectangle(img, tr.PredictedRect().Image(), useClr, 1)

		gocv.Circle(img, tr.Predicted.Point(), style.CentroidRadius, useClr, 1)
	}
}
