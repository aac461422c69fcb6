package tracker

import (
	"image"
	"math"
)

// Rect represents an upright bounding box in pixel coordinates with its
// top-left corner at X, Y
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Centroid is the center point of a bounding box
type Centroid struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewRect creates a new Rect with given coordinates
func NewRect(x, y, width, height int) Rect {
	return Rect{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

// RectFromImage converts an image.Rectangle into a Rect
func RectFromImage(r image.Rectangle) Rect {
	return NewRect(r.Min.X, r.Min.Y, r.Dx(), r.Dy())
}

// TLX returns the top-left x coordinate of the rectangle
func (r Rect) TLX() int {
	return r.X
}

// TLY returns the top-left y coordinate of the rectangle
func (r Rect) TLY() int {
	return r.Y
}

// BRX returns the bottom-right x coordinate of the rectangle
func (r Rect) BRX() int {
	return r.X + r.Width
}

// BRY returns the bottom-right y coordinate of the rectangle
func (r Rect) BRY() int {
	return r.Y + r.Height
}

// Area returns the area of the rectangle in pixels
func (r Rect) Area() int {
	return r.Width * r.Height
}

// Centroid returns the geometric center of the rectangle
func (r Rect) Centroid() Centroid {
	return Centroid{
		X: float64(r.X) + float64(r.Width)/2,
		Y: float64(r.Y) + float64(r.Height)/2,
	}
}

// Image converts the rectangle to an image.Rectangle for drawing
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.TLX(), r.TLY(), r.BRX(), r.BRY())
}

// CenteredAt returns a rectangle of the same size moved so its center lies
// on the given point
func (r Rect) CenteredAt(c Centroid) Rect {
	return NewRect(
		int(math.Round(c.X-float64(r.Width)/2)),
		int(math.Round(c.Y-float64(r.Height)/2)),
		r.Width, r.Height,
	)
}

// DistanceTo returns the euclidean (straight line) distance between two
// centroids
func (c Centroid) DistanceTo(other Centroid) float64 {
	return math.Hypot(c.X-other.X, c.Y-other.Y)
}

// Point rounds the centroid to the nearest pixel
func (c Centroid) Point() image.Point {
	return image.Pt(int(math.Round(c.X)), int(math.Round(c.Y)))
}
