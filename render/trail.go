package render

import (
	"image/color"

	"github.com/swdee/go-motionwatch/tracker"
	"gocv.io/x/gocv"
)

// TrailStyle defines the parameters used for rendering the trail style
type TrailStyle struct {
	// LineSame defines if the color of the trail line should be the
	// same threat color as that of the bounding box.  If set to false then
	// use the color specified at LineColor
	LineSame      bool
	LineColor     color.RGBA
	LineThickness int
}

// DefaultTrailStyle returns default trail style settings
func DefaultTrailStyle() TrailStyle {
	return TrailStyle{
		LineSame:      false,
		LineColor:     Yellow,
		LineThickness: 1,
	}
}

// Trail draws the path history of each tracked object on the source image
func Trail(img *gocv.Mat, tracks []tracker.Track, trail *tracker.Trail,
	style TrailStyle) {

	for _, tr := range tracks {

		lineClr := style.LineColor

		if style.LineSame {
			lineClr = ThreatColor(tr.ThreatLevel)
		}

		points := trail.GetPoints(tr.ID)

		for i := 1; i < len(points); i++ {
			gocv.Line(img, points[i-1], points[i], lineClr, style.LineThickness)
		}
	}
}
