package preprocess

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Default background model parameters
const (
	DefaultHistory      = 100
	DefaultVarThreshold = 40.0
	DefaultBlurKernel   = 3
)

// BackgroundModelParams configures a BackgroundModel
type BackgroundModelParams struct {
	// History is the number of frames the model learns the background over
	History int
	// VarThreshold is the squared Mahalanobis distance a pixel must exceed
	// to be considered foreground
	VarThreshold float64
	// DetectShadows marks shadow pixels with a mid grey value in the mask
	DetectShadows bool
	// BlurKernel is the odd sized Gaussian kernel applied before the model
	BlurKernel int
}

// DefaultBackgroundModelParams returns the default model parameters
func DefaultBackgroundModelParams() BackgroundModelParams {
	return BackgroundModelParams{
		History:       DefaultHistory,
		VarThreshold:  DefaultVarThreshold,
		DetectShadows: true,
		BlurKernel:    DefaultBlurKernel,
	}
}

// BackgroundModel keeps an adaptive mixture of Gaussians model of the static
// scene and converts frames into foreground masks.  The model is updated on
// every call to Apply and is only ever reset by creating a new one
type BackgroundModel struct {
	mog2   gocv.BackgroundSubtractorMOG2
	kernel image.Point
	// gray and blurred are reused between frames
	gray    gocv.Mat
	blurred gocv.Mat
	// size is the frame dimensions the model was trained on, zero until the
	// first frame is applied
	size image.Point
	sync.Mutex
}

// NewBackgroundModel returns a new BackgroundModel.  Close must be called
// to free the underlying OpenCV resources
func NewBackgroundModel(params BackgroundModelParams) *BackgroundModel {

	k := params.BlurKernel

	if k <= 0 {
		k = DefaultBlurKernel
	}

	// gaussian kernels must be odd
	if k%2 == 0 {
		k++
	}

	return &BackgroundModel{
		mog2: gocv.NewBackgroundSubtractorMOG2WithParams(params.History,
			params.VarThreshold, params.DetectShadows),
		kernel:  image.Pt(k, k),
		gray:    gocv.NewMat(),
		blurred: gocv.NewMat(),
	}
}

// Apply converts the frame to grayscale, blurs it to suppress sensor noise
// and feeds it to the model.  The foreground mask is written to mask as a
// single channel image of the same dimensions as the frame
func (b *BackgroundModel) Apply(frame gocv.Mat, mask *gocv.Mat) error {

	if mask == nil {
		return fmt.Errorf("%w: nil mask destination", ErrInvalidFrame)
	}

	if err := CheckFrame(frame); err != nil {
		return err
	}

	b.Lock()
	defer b.Unlock()

	size := image.Pt(frame.Cols(), frame.Rows())

	if b.size == (image.Point{}) {
		b.size = size
	} else if size != b.size {
		return fmt.Errorf("%w: frame size %v does not match model size %v",
			ErrInvalidFrame, size, b.size)
	}

	src := frame

	if frame.Channels() == 3 {
		gocv.CvtColor(frame, &b.gray, gocv.ColorBGRToGray)
		src = b.gray
	}

	gocv.GaussianBlur(src, &b.blurred, b.kernel, 0, 0, gocv.BorderDefault)

	b.mog2.Apply(b.blurred, mask)

	return nil
}

// Size returns the frame dimensions the model is trained on
func (b *BackgroundModel) Size() image.Point {
	b.Lock()
	defer b.Unlock()

	return b.size
}

// Close frees the memory held by the model
func (b *BackgroundModel) Close() error {
	b.Lock()
	defer b.Unlock()

	b.gray.Close()
	b.blurred.Close()

	return b.mog2.Close()
}
