package render

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrEncodingFailure is returned when a frame could not be encoded
var ErrEncodingFailure = errors.New("frame encoding failed")

// DefaultJPEGQuality is the quality used for live view and captures
const DefaultJPEGQuality = 90

// EncodeJPEG encodes the image as a JPEG at the given quality and returns a
// Go owned copy of the bytes
func EncodeJPEG(img gocv.Mat, quality int) ([]byte, error) {

	if img.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrEncodingFailure)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img,
		[]int{gocv.IMWriteJpegQuality, quality})

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailure, err)
	}

	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())

	return out, nil
}
