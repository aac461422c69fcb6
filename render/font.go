package render

import (
	"image/color"

	"gocv.io/x/gocv"
)

// Font defines the parameters for rendering text on an image using GoCV
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// Offset of the label's origin from the object centroid, to the upper
	// left
	Offset int
	// SameColor draws the label in the object's threat color instead of
	// Color
	SameColor bool
}

// DefaultFont returns default font settings for object labels
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheyPlain,
		Scale:     3,
		Color:     White,
		Thickness: 3,
		LineType:  gocv.Line8,
		Offset:    12,
		SameColor: true,
	}
}
