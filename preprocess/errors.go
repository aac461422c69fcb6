package preprocess

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrInvalidFrame is returned when a frame passed to a pipeline stage is
// empty, has an unsupported channel count, or does not match the dimensions
// of the frames seen before it
var ErrInvalidFrame = errors.New("invalid frame")

// CheckFrame returns ErrInvalidFrame if the frame is nil, empty or is not a
// 1 or 3 channel image
func CheckFrame(frame gocv.Mat) error {

	// a zero value or closed Mat has no backing cv::Mat
	if frame.Ptr() == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	}

	if frame.Empty() {
		return fmt.Errorf("%w: empty frame", ErrInvalidFrame)
	}

	if ch := frame.Channels(); ch != 1 && ch != 3 {
		return fmt.Errorf("%w: unsupported channel count %d", ErrInvalidFrame, ch)
	}

	return nil
}
