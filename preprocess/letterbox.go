package preprocess

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Letterbox scales frames of one size into a fixed output size, keeping the
// aspect ratio by padding the short side evenly
type Letterbox struct {
	src image.Point
	dst image.Point
	// scaled is the frame size after scaling, before padding
	scaled image.Point
	// pad is the left and top padding, right and bottom take the remainder
	pad   image.Point
	scale float32
	// scratch holds the scaled frame between calls
	scratch gocv.Mat
}

// NewLetterbox returns a Letterbox for frames of size src.  Close must be
// called to free the scratch Mat
func NewLetterbox(src, dst image.Point) *Letterbox {

	lb := &Letterbox{
		src:     src,
		dst:     dst,
		scaled:  dst,
		scratch: gocv.NewMat(),
	}

	sx := float32(dst.X) / float32(src.X)
	sy := float32(dst.Y) / float32(src.Y)

	if sx < sy {
		lb.scale = sx
		lb.scaled.Y = int(float32(src.Y) * sx)
	} else {
		lb.scale = sy
		lb.scaled.X = int(float32(src.X) * sy)
	}

	lb.pad = dst.Sub(lb.scaled).Div(2)

	return lb
}

// Close frees the scratch Mat
func (lb *Letterbox) Close() error {
	return lb.scratch.Close()
}

// Matches reports whether frame has the source size
func (lb *Letterbox) Matches(frame gocv.Mat) bool {
	return frame.Cols() == lb.src.X && frame.Rows() == lb.src.Y
}

// Fit scales frame into dest, filling the padding with fill
func (lb *Letterbox) Fit(frame gocv.Mat, dest *gocv.Mat, fill color.RGBA) error {

	if err := CheckFrame(frame); err != nil {
		return err
	}

	if !lb.Matches(frame) {
		return ErrInvalidFrame
	}

	gocv.Resize(frame, &lb.scratch, lb.scaled, 0, 0, gocv.InterpolationArea)

	rest := lb.dst.Sub(lb.scaled).Sub(lb.pad)

	gocv.CopyMakeBorder(lb.scratch, dest, lb.pad.Y, rest.Y, lb.pad.X, rest.X,
		gocv.BorderConstant, fill)

	return nil
}

// Scale returns the factor frames are scaled by
func (lb *Letterbox) Scale() float32 {
	return lb.scale
}

// Padding returns the left and top padding
func (lb *Letterbox) Padding() image.Point {
	return lb.pad
}

// Size returns the output size
func (lb *Letterbox) Size() image.Point {
	return lb.dst
}
