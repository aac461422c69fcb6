package motionwatch

import (
	"fmt"
	"time"

	"github.com/swdee/go-motionwatch/postprocess"
	"github.com/swdee/go-motionwatch/preprocess"
	"github.com/swdee/go-motionwatch/tracker"
	"gocv.io/x/gocv"
)

// DefaultAlertLevel is the threat level at which a capture is triggered
const DefaultAlertLevel = 3

// Params are the runtime tunable values read once per frame
type Params struct {
	// Sensitivity is the motion score that must be exceeded for motion
	Sensitivity float64
	// Range is the mask intensity above which a pixel is foreground
	Range float32
	// AreaThreshold is the contour area a region must exceed
	AreaThreshold float64
	// AlertLevel is the threat level that raises an alert with motion
	AlertLevel int
	// Tracker holds the tracker timers and limits
	Tracker tracker.Config
}

// DefaultParams returns the default runtime parameters
func DefaultParams() Params {
	return Params{
		Sensitivity:   postprocess.DefaultSensitivity,
		Range:         postprocess.DefaultRange,
		AreaThreshold: postprocess.DefaultAreaThreshold,
		AlertLevel:    DefaultAlertLevel,
		Tracker:       tracker.DefaultConfig(),
	}
}

// Options configures an Engine at creation
type Options struct {
	// Model configures the background models of the motion gate and region
	// extractor, each keeps its own
	Model preprocess.BackgroundModelParams
	// Zones are polygons where detections are ignored
	Zones []postprocess.Zone
	// MaxZoneOverlap is the fraction of a detection box that may lie within
	// zones before it is dropped
	MaxZoneOverlap float64
	// Tracker is the initial tracker configuration
	Tracker tracker.Config
}

// DefaultOptions returns the default engine options
func DefaultOptions() Options {
	return Options{
		Model:          preprocess.DefaultBackgroundModelParams(),
		MaxZoneOverlap: 0.5,
		Tracker:        tracker.DefaultConfig(),
	}
}

// Result is the outcome of processing a single frame.  It holds copies only
// and is safe to hand to other goroutines
type Result struct {
	// Timestamp is the time the frame was processed at
	Timestamp time.Time
	// Motion is set when the motion score exceeded the sensitivity
	Motion bool
	// Score is the normalized motion score
	Score float64
	// Detections are the regions found this frame after zone filtering
	Detections []postprocess.Detection
	// Tracks are the matched or newly registered objects in detection order
	Tracks []tracker.Track
	// Deregistered are the ids removed this frame
	Deregistered []int
	// Alert is set when there was motion and a reported track is at the
	// alert level
	Alert bool
}

// Engine runs the motion detection and tracking pipeline.  It is owned by a
// single processing loop and must not be shared between goroutines
type Engine struct {
	gate    *postprocess.MotionGate
	regions *postprocess.RegionExtractor
	zones   *postprocess.ZoneFilter
	tracker *tracker.CentroidTracker
}

// New returns an Engine for the given options.  Close must be called to free
// the underlying OpenCV resources
func New(opts Options) (*Engine, error) {

	zones, err := postprocess.NewZoneFilter(opts.Zones, opts.MaxZoneOverlap)

	if err != nil {
		return nil, fmt.Errorf("error creating zone filter: %w", err)
	}

	return &Engine{
		gate:    postprocess.NewMotionGate(opts.Model),
		regions: postprocess.NewRegionExtractor(opts.Model),
		zones:   zones,
		tracker: tracker.NewCentroidTracker(opts.Tracker),
	}, nil
}

// Process runs the previous and current frames through the pipeline.  Both
// frames are validated before any stage runs so an invalid frame never
// advances the tracker
func (e *Engine) Process(prev, curr gocv.Mat, now time.Time, p Params) (*Result, error) {

	if err := preprocess.CheckFrame(prev); err != nil {
		return nil, fmt.Errorf("previous frame: %w", err)
	}

	if err := preprocess.CheckFrame(curr); err != nil {
		return nil, fmt.Errorf("current frame: %w", err)
	}

	if prev.Cols() != curr.Cols() || prev.Rows() != curr.Rows() {
		return nil, fmt.Errorf("%w: previous frame %dx%d differs from current %dx%d",
			ErrInvalidFrame, prev.Cols(), prev.Rows(), curr.Cols(), curr.Rows())
	}

	score, err := e.gate.Score(prev, curr)

	if err != nil {
		return nil, err
	}

	dets, err := e.regions.Extract(curr, p.Range, p.AreaThreshold)

	if err != nil {
		return nil, err
	}

	dets = e.zones.Filter(dets)

	e.tracker.SetConfig(p.Tracker)
	tracks := e.tracker.Update(tracker.DetectionsToRects(dets), now)

	motion := postprocess.ExceedsSensitivity(score, p.Sensitivity)

	return &Result{
		Timestamp:    now,
		Motion:       motion,
		Score:        score,
		Detections:   dets,
		Tracks:       tracks,
		Deregistered: e.tracker.Deregistered(),
		Alert:        ShouldAlert(motion, tracks, p.AlertLevel),
	}, nil
}

// Active returns a snapshot of all objects currently tracked
func (e *Engine) Active() []tracker.Track {
	return e.tracker.Active()
}

// Close frees the memory held by the engine
func (e *Engine) Close() error {

	gateErr := e.gate.Close()
	regionErr := e.regions.Close()

	if gateErr != nil {
		return gateErr
	}

	return regionErr
}

// ShouldAlert reports whether a frame qualifies for a capture, there must be
// motion and at least one reported track at exactly the alert level
func ShouldAlert(motion bool, tracks []tracker.Track, alertLevel int) bool {

	if !motion {
		return false
	}

	for _, tr := range tracks {
		if tr.ThreatLevel == alertLevel {
			return true
		}
	}

	return false
}
