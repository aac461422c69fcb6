package postprocess

import (
	"errors"
	"fmt"
	"image"
	"math"

	clipper "github.com/ctessum/go.clipper"
)

// ErrInvalidZone is returned when an exclusion zone polygon is malformed
var ErrInvalidZone = errors.New("invalid exclusion zone")

// Zone is a named polygon in frame coordinates where motion is ignored
type Zone struct {
	Name   string
	Points []image.Point
}

// ZoneFilter drops detections that lie mostly inside exclusion zones
type ZoneFilter struct {
	zones clipper.Paths
	// maxOverlap is the fraction of a detection's box that may be covered by
	// zones before it is dropped
	maxOverlap float64
}

// NewZoneFilter returns a filter for the given zones.  Every zone needs at
// least three points and a non zero area
func NewZoneFilter(zones []Zone, maxOverlap float64) (*ZoneFilter, error) {

	if maxOverlap < 0 || maxOverlap > 1 {
		return nil, fmt.Errorf("%w: max overlap %v outside [0, 1]",
			ErrInvalidZone, maxOverlap)
	}

	paths := make(clipper.Paths, 0, len(zones))

	for _, z := range zones {

		if len(z.Points) < 3 {
			return nil, fmt.Errorf("%w: zone %q has %d points", ErrInvalidZone,
				z.Name, len(z.Points))
		}

		path := make(clipper.Path, 0, len(z.Points))

		for _, pt := range z.Points {
			path = append(path, &clipper.IntPoint{X: clipper.CInt(pt.X), Y: clipper.CInt(pt.Y)})
		}

		if pathArea(path) == 0 {
			return nil, fmt.Errorf("%w: zone %q has no area", ErrInvalidZone, z.Name)
		}

		paths = append(paths, path)
	}

	return &ZoneFilter{
		zones:      paths,
		maxOverlap: maxOverlap,
	}, nil
}

// Len returns the number of zones
func (z *ZoneFilter) Len() int {
	return len(z.zones)
}

// Overlap returns the fraction of the box covered by the union of all zones
func (z *ZoneFilter) Overlap(box BoxRect) float64 {

	boxArea := float64(box.Width() * box.Height())

	if len(z.zones) == 0 || boxArea <= 0 {
		return 0
	}

	subject := clipper.Path{
		&clipper.IntPoint{X: clipper.CInt(box.Left), Y: clipper.CInt(box.Top)},
		&clipper.IntPoint{X: clipper.CInt(box.Right), Y: clipper.CInt(box.Top)},
		&clipper.IntPoint{X: clipper.CInt(box.Right), Y: clipper.CInt(box.Bottom)},
		&clipper.IntPoint{X: clipper.CInt(box.Left), Y: clipper.CInt(box.Bottom)},
	}

	c := clipper.NewClipper(clipper.IoNone)
	c.AddPath(subject, clipper.PtSubject, true)
	c.AddPaths(z.zones, clipper.PtClip, true)

	solution, ok := c.Execute1(clipper.CtIntersection, clipper.PftNonZero,
		clipper.PftNonZero)

	if !ok {
		return 0
	}

	covered := 0.0

	// intersection with an upright box yields outer polygons only, holes
	// are subtracted by their opposite winding
	for _, p := range solution {
		covered += signedArea(p)
	}

	return math.Min(math.Abs(covered)/boxArea, 1)
}

// Filter returns the detections whose overlap with the zones does not exceed
// the maximum, preserving their order
func (z *ZoneFilter) Filter(dets []Detection) []Detection {

	if len(z.zones) == 0 {
		return dets
	}

	out := make([]Detection, 0, len(dets))

	for _, det := range dets {
		if z.Overlap(det.Box) > z.maxOverlap {
			continue
		}
		out = append(out, det)
	}

	return out
}

// signedArea is the shoelace area of a closed path, positive for one
// winding direction and negative for the other
func signedArea(p clipper.Path) float64 {

	n := len(p)
	area := 0.0

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		area += float64(p[i].X)*float64(p[j].Y) - float64(p[j].X)*float64(p[i].Y)
	}

	return area / 2
}

// pathArea is the unsigned area of a closed path
func pathArea(p clipper.Path) float64 {
	return math.Abs(signedArea(p))
}
