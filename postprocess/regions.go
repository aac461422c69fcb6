package postprocess

import (
	"fmt"

	"github.com/swdee/go-motionwatch/preprocess"
	"gocv.io/x/gocv"
)

// Default region extraction parameters
const (
	// DefaultRange is the mask intensity above which a pixel is foreground
	DefaultRange = 100
	// DefaultAreaThreshold is the contour area a region must exceed
	DefaultAreaThreshold = 1500
)

// RegionExtractor finds moving regions in a frame using its own background
// model and emits their bounding boxes
type RegionExtractor struct {
	model *preprocess.BackgroundModel
	// mask and binary are reused between frames
	mask   gocv.Mat
	binary gocv.Mat
}

// NewRegionExtractor returns a RegionExtractor backed by a new background
// model.  Close must be called to free the underlying OpenCV resources
func NewRegionExtractor(params preprocess.BackgroundModelParams) *RegionExtractor {
	return &RegionExtractor{
		model:  preprocess.NewBackgroundModel(params),
		mask:   gocv.NewMat(),
		binary: gocv.NewMat(),
	}
}

// Extract updates the background model with the frame, binarizes the
// resulting mask at rng and returns a Detection for every contour, external
// or nested, whose area is greater than threshold.  Detections are returned
// in contour discovery order
func (r *RegionExtractor) Extract(frame gocv.Mat, rng float32,
	threshold float64) ([]Detection, error) {

	if err := r.model.Apply(frame, &r.mask); err != nil {
		return nil, fmt.Errorf("region extraction: %w", err)
	}

	return r.regions(rng, threshold), nil
}

// regions finds the contours of the current mask
func (r *RegionExtractor) regions(rng float32, threshold float64) []Detection {

	gocv.Threshold(r.mask, &r.binary, rng, 255, gocv.ThresholdBinary)

	contours := gocv.FindContours(r.binary, gocv.RetrievalTree,
		gocv.ChainApproxSimple)
	defer contours.Close()

	dets := make([]Detection, 0)

	for i := 0; i < contours.Size(); i++ {

		contour := contours.At(i)
		area := gocv.ContourArea(contour)

		if area <= threshold {
			continue
		}

		dets = append(dets, Detection{
			Box:  BoxFromImage(gocv.BoundingRect(contour)),
			Area: area,
		})
	}

	return dets
}

// Close frees the memory held by the extractor
func (r *RegionExtractor) Close() error {
	r.mask.Close()
	r.binary.Close()
	return r.model.Close()
}
