package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ClockLayout is the time format shown on the clock panel
const ClockLayout = "03:04:05PM"

// ClockStyle defines the parameters used for rendering the clock panel
type ClockStyle struct {
	// Panel is the area in the top left corner the clock is drawn in
	Panel      image.Rectangle
	PanelColor color.RGBA
	TextColor  color.RGBA
	// TextOrigin is the baseline start of the text relative to the panel
	TextOrigin image.Point
	// Scale enlarges the rasterized glyphs by an integer factor
	Scale int
	// Alpha is the weight of the frame when blended with the panel
	Alpha float64
}

// DefaultClockStyle returns default clock style settings
func DefaultClockStyle() ClockStyle {
	return ClockStyle{
		Panel:      image.Rect(0, 0, 225, 50),
		PanelColor: PanelGrey,
		TextColor:  ClockGreen,
		TextOrigin: image.Pt(15, 34),
		Scale:      2,
		Alpha:      0.5,
	}
}

// Clock blends a panel showing the given time over the top left corner of
// the image.  Only the panel area is blended, the rest of the frame is left
// untouched
func Clock(img *gocv.Mat, now time.Time, style ClockStyle) error {

	if img.Channels() != 3 {
		return fmt.Errorf("clock overlay needs a 3 channel image, got %d",
			img.Channels())
	}

	panel := style.Panel.Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))

	if panel.Empty() {
		return nil
	}

	layer, err := clockLayer(now.Format(ClockLayout), panel.Size(), style)

	if err != nil {
		return err
	}

	defer layer.Close()

	region := img.Region(panel)
	defer region.Close()

	gocv.AddWeighted(region, style.Alpha, layer, 1-style.Alpha, 0, &region)

	return nil
}

// clockLayer rasterizes the clock text onto a panel sized BGR Mat
func clockLayer(text string, size image.Point, style ClockStyle) (gocv.Mat, error) {

	scale := style.Scale

	if scale < 1 {
		scale = 1
	}

	// draw the text at native glyph size then scale up the whole panel
	small := image.NewRGBA(image.Rect(0, 0, (size.X+scale-1)/scale,
		(size.Y+scale-1)/scale))
	draw.Draw(small, small.Bounds(), image.NewUniform(style.PanelColor),
		image.Point{}, draw.Src)

	dr := &font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(style.TextColor),
		Face: basicfont.Face7x13,
		Dot: fixed.Point26_6{
			X: fixed.I(style.TextOrigin.X / scale),
			Y: fixed.I(style.TextOrigin.Y / scale),
		},
	}
	dr.DrawString(text)

	rgba, err := gocv.NewMatFromBytes(small.Bounds().Dy(), small.Bounds().Dx(),
		gocv.MatTypeCV8UC4, small.Pix)

	if err != nil || rgba.Empty() {
		return gocv.NewMat(), fmt.Errorf("error creating Mat from clock panel: %v", err)
	}

	defer rgba.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)

	if bgr.Cols() == size.X && bgr.Rows() == size.Y {
		return bgr, nil
	}

	defer bgr.Close()

	out := gocv.NewMat()
	gocv.Resize(bgr, &out, size, 0, 0, gocv.InterpolationNearestNeighbor)

	return out, nil
}
