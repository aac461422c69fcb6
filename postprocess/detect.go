package postprocess

import "image"

// BoxRect are the dimensions of the bounding box of a detected region
type BoxRect struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

// BoxFromImage converts an image.Rectangle into a BoxRect
func BoxFromImage(r image.Rectangle) BoxRect {
	return BoxRect{
		Left:   r.Min.X,
		Right:  r.Max.X,
		Top:    r.Min.Y,
		Bottom: r.Max.Y,
	}
}

// Image returns the box as an image.Rectangle
func (b BoxRect) Image() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// Width of the box in pixels
func (b BoxRect) Width() int {
	return b.Right - b.Left
}

// Height of the box in pixels
func (b BoxRect) Height() int {
	return b.Bottom - b.Top
}

// Detection defines a single moving region found in a frame.  It carries no
// identity, the tracker assigns one
type Detection struct {
	// Box is the upright bounding box of the region's contour
	Box BoxRect
	// Area is the area enclosed by the region's contour
	Area float64
}
