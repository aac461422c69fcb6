package postprocess

import (
	"fmt"

	"github.com/swdee/go-motionwatch/preprocess"
	"gocv.io/x/gocv"
)

const (
	// DefaultSensitivity is the normalized score motion must exceed
	DefaultSensitivity = 1800
	// motionScale normalizes the sum of changed mask pixels
	motionScale = 10000
	// motionCutoff keeps only pixels that flipped fully between the masks
	motionCutoff = 254
)

// MotionGate decides whether motion occurred between two frames.  It owns
// its own background model and never touches tracking state
type MotionGate struct {
	model *preprocess.BackgroundModel
	// work Mats reused between frames
	prevMask gocv.Mat
	currMask gocv.Mat
	diff     gocv.Mat
	binary   gocv.Mat
}

// NewMotionGate returns a MotionGate backed by a new background model.
// Close must be called to free the underlying OpenCV resources
func NewMotionGate(params preprocess.BackgroundModelParams) *MotionGate {
	return &MotionGate{
		model:    preprocess.NewBackgroundModel(params),
		prevMask: gocv.NewMat(),
		currMask: gocv.NewMat(),
		diff:     gocv.NewMat(),
		binary:   gocv.NewMat(),
	}
}

// Score runs the background model on both frames and returns the
// normalized sum of pixels that differ between the two foreground masks
func (g *MotionGate) Score(prev, curr gocv.Mat) (float64, error) {

	if err := preprocess.CheckFrame(prev); err != nil {
		return 0, fmt.Errorf("motion gate previous frame: %w", err)
	}

	if err := preprocess.CheckFrame(curr); err != nil {
		return 0, fmt.Errorf("motion gate current frame: %w", err)
	}

	if err := g.model.Apply(prev, &g.prevMask); err != nil {
		return 0, fmt.Errorf("motion gate previous frame: %w", err)
	}

	if err := g.model.Apply(curr, &g.currMask); err != nil {
		return 0, fmt.Errorf("motion gate current frame: %w", err)
	}

	gocv.AbsDiff(g.prevMask, g.currMask, &g.diff)
	gocv.Threshold(g.diff, &g.binary, motionCutoff, 255, gocv.ThresholdBinary)

	return g.binary.Sum().Val1 / motionScale, nil
}

// Detect reports whether the motion score between the frames exceeds the
// sensitivity
func (g *MotionGate) Detect(prev, curr gocv.Mat, sensitivity float64) (bool, error) {

	score, err := g.Score(prev, curr)

	if err != nil {
		return false, err
	}

	return ExceedsSensitivity(score, sensitivity), nil
}

// ExceedsSensitivity is the motion decision rule, a score exactly equal to
// the sensitivity is not motion
func ExceedsSensitivity(score, sensitivity float64) bool {
	return score > sensitivity
}

// Close frees the memory held by the gate
func (g *MotionGate) Close() error {
	g.prevMask.Close()
	g.currMask.Close()
	g.diff.Close()
	g.binary.Close()
	return g.model.Close()
}
