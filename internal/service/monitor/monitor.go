// Package monitor runs the frame processing loop as a supervised service.
// Each tick it reads a frame, runs it through the engine, draws the tracked
// objects, stores a capture when an alert is raised and publishes the
// annotated frame to the live view.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gobreaker "github.com/sony/gobreaker/v2"
	motionwatch "github.com/swdee/go-motionwatch"
	"github.com/swdee/go-motionwatch/capture"
	"github.com/swdee/go-motionwatch/internal/config"
	"github.com/swdee/go-motionwatch/internal/logger"
	"github.com/swdee/go-motionwatch/internal/metrics"
	"github.com/swdee/go-motionwatch/preprocess"
	"github.com/swdee/go-motionwatch/render"
	"github.com/swdee/go-motionwatch/source"
	"github.com/swdee/go-motionwatch/tracker"
	"github.com/thejerf/suture/v4"
	"gocv.io/x/gocv"
	"golang.org/x/time/rate"
)

// Publisher receives each encoded live view frame
type Publisher interface {
	Publish(jpeg []byte)
}

// Settings provides the runtime settings read once per frame
type Settings interface {
	Snapshot() config.Settings
}

// Config holds the collaborators and fixed options of the service
type Config struct {
	// Name identifies the source in logs
	Name   string
	Source source.Source
	// RetryWait is the pause after a failed read
	RetryWait time.Duration
	Engine    motionwatch.Options
	Settings  Settings
	// ProcessNoise is passed to each object's predictor
	ProcessNoise float64
	// Sink stores alert frames, nil disables captures
	Sink capture.Sink
	// Publisher receives the live view, nil disables it
	Publisher Publisher
	// TrailLength is the number of past positions drawn per object, zero
	// disables trails
	TrailLength int
	// StreamSize letterboxes the live view to this size when non zero
	StreamSize image.Point
	Quality    int
	// Now returns the frame timestamp, defaults to time.Now
	Now func() time.Time
}

// Snapshot is the observable state of the service
type Snapshot struct {
	// Active is set while the camera is enabled and frames are processed
	Active      bool            `json:"active"`
	Source      string          `json:"source"`
	Frames      uint64          `json:"frames"`
	Failures    uint64          `json:"failures"`
	LastFrame   time.Time       `json:"last_frame"`
	Motion      bool            `json:"motion"`
	Score       float64         `json:"score"`
	Tracks      []tracker.Track `json:"tracks"`
	LastCapture time.Time       `json:"last_capture"`
	Captures    uint64          `json:"captures"`
}

// Service is the frame processing loop
type Service struct {
	cfg    Config
	engine *motionwatch.Engine
	trail  *tracker.Trail
	font   render.Font
	boxes  render.BoxStyle
	trails render.TrailStyle
	clock  render.ClockStyle
	// letterbox scales the live view, created for the first frame size
	letterbox *preprocess.Letterbox

	mu    sync.RWMutex
	state Snapshot
}

// New creates the service and its engine.  Close must be called once the
// service has stopped
func New(cfg Config) (*Service, error) {

	if cfg.Source == nil {
		return nil, errors.New("monitor requires a frame source")
	}

	if cfg.Settings == nil {
		return nil, errors.New("monitor requires settings")
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	if cfg.Quality <= 0 {
		cfg.Quality = render.DefaultJPEGQuality
	}

	if cfg.Name == "" {
		cfg.Name = "camera"
	}

	engine, err := motionwatch.New(cfg.Engine)

	if err != nil {
		return nil, fmt.Errorf("error creating engine: %w", err)
	}

	s := &Service{
		cfg:    cfg,
		engine: engine,
		font:   render.DefaultFont(),
		boxes:  render.DefaultBoxStyle(),
		trails: render.DefaultTrailStyle(),
		clock:  render.DefaultClockStyle(),
		state:  Snapshot{Source: cfg.Name},
	}

	if cfg.TrailLength > 0 {
		s.trail = tracker.NewTrail(cfg.TrailLength)
	}

	return s, nil
}

// String names the service for the supervisor
func (s *Service) String() string {
	return "monitor"
}

// Snapshot returns a copy of the current state
func (s *Service) Snapshot() Snapshot {

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.state
	out.Tracks = append([]tracker.Track(nil), s.state.Tracks...)

	return out
}

// Close frees the engine and live view resources
func (s *Service) Close() error {

	if s.letterbox != nil {
		s.letterbox.Close()
	}

	return s.engine.Close()
}

// Serve runs the loop until ctx is done.  A finite source that reaches its
// end stops the service without a restart
func (s *Service) Serve(ctx context.Context) error {

	ctx, cancel := context.WithCancel(logger.WithName(ctx, "monitor"))

	stream := source.NewStream(s.cfg.Source, s.cfg.RetryWait)
	frames := stream.Start(ctx)

	defer func() {
		cancel()
		// release frames still queued once the reader exits
		for f := range frames {
			f.Mat.Close()
		}
		s.setActive(false)
	}()

	settings := s.cfg.Settings.Snapshot()
	limiter := rate.NewLimiter(rate.Limit(settings.FPS), 1)

	prev := gocv.NewMat()
	defer func() { prev.Close() }()

	var lastCapture time.Time

	logger.Infof(ctx, "Processing frames from %s", s.cfg.Name)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		var frame source.Frame
		var ok bool

		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok = <-frames:
		}

		if !ok {
			return ctx.Err()
		}

		settings = s.cfg.Settings.Snapshot()

		if lim := rate.Limit(settings.FPS); limiter.Limit() != lim {
			limiter.SetLimit(lim)
		}

		if frame.Err != nil {
			frame.Mat.Close()

			if errors.Is(frame.Err, source.ErrEndOfStream) {
				logger.Infof(ctx, "Source %s ended", s.cfg.Name)
				return suture.ErrDoNotRestart
			}

			metrics.FrameFailuresTotal.WithLabelValues(metrics.StageRead).Inc()
			s.failed()
			logger.DebugKV(ctx, "Skipping frame", "seq", frame.Seq, "error", frame.Err)
			continue
		}

		if !settings.CameraEnabled {
			// paused, the next enabled frame primes the pair again
			frame.Mat.Close()
			prev.Close()
			prev = gocv.NewMat()
			s.setActive(false)
			continue
		}

		if prev.Empty() {
			prev.Close()
			prev = frame.Mat
			s.setActive(true)
			continue
		}

		captured, err := s.process(ctx, prev, frame.Mat, settings, lastCapture)

		prev.Close()
		prev = frame.Mat

		if err != nil {
			s.failed()
			logger.WarnKV(ctx, "Frame processing failed", "seq", frame.Seq, "error", err)
			continue
		}

		if !captured.IsZero() {
			lastCapture = captured
		}
	}
}

// process runs one frame pair through the engine, renders and publishes the
// result.  It returns the capture time when an alert frame was stored
func (s *Service) process(ctx context.Context, prev, curr gocv.Mat,
	settings config.Settings, lastCapture time.Time) (time.Time, error) {

	now := s.cfg.Now()
	timer := prometheus.NewTimer(metrics.ProcessLatency)

	res, err := s.engine.Process(prev, curr, now, settings.Params(s.cfg.ProcessNoise))
	timer.ObserveDuration()

	if err != nil {
		metrics.FrameFailuresTotal.WithLabelValues(metrics.StageProcess).Inc()
		return time.Time{}, err
	}

	active := s.engine.Active()
	s.record(res, active)

	if s.trail != nil {
		for _, tr := range res.Tracks {
			s.trail.Add(tr)
		}
		s.trail.Remove(res.Deregistered...)
	}

	display := curr.Clone()
	defer display.Close()

	render.ThreatBoxes(&display, res.Tracks, s.font, s.boxes)
	render.PredictedBoxes(&display, res.Tracks, s.boxes)

	if s.trail != nil {
		render.Trail(&display, res.Tracks, s.trail, s.trails)
	}

	var captured time.Time

	if res.Alert && s.cfg.Sink != nil && now.Sub(lastCapture) >= settings.Cooldown() {
		captured = s.save(ctx, display, now)
	}

	if s.cfg.Publisher == nil {
		return captured, nil
	}

	if err := render.Clock(&display, now, s.clock); err != nil {
		metrics.FrameFailuresTotal.WithLabelValues(metrics.StageRender).Inc()
		return captured, err
	}

	data, err := s.encode(display)

	if err != nil {
		metrics.FrameFailuresTotal.WithLabelValues(metrics.StageEncode).Inc()
		return captured, err
	}

	s.cfg.Publisher.Publish(data)

	return captured, nil
}

// save stores the alert frame, a failure is logged and does not stop the
// loop
func (s *Service) save(ctx context.Context, frame gocv.Mat, now time.Time) time.Time {

	c, err := s.cfg.Sink.Save(ctx, frame, now)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		metrics.CapturesTotal.WithLabelValues(metrics.CaptureRejected).Inc()
		return time.Time{}

	case err != nil:
		metrics.CapturesTotal.WithLabelValues(metrics.CaptureFailed).Inc()
		logger.ErrorKV(ctx, "Failed to save capture", "error", err)
		return time.Time{}
	}

	metrics.CapturesTotal.WithLabelValues(metrics.CaptureSaved).Inc()
	logger.InfoKV(ctx, "Saved capture", "name", c.Name)

	s.mu.Lock()
	s.state.LastCapture = now
	s.state.Captures++
	s.mu.Unlock()

	return now
}

// encode letterboxes the frame to the stream size when set and encodes it
func (s *Service) encode(frame gocv.Mat) ([]byte, error) {

	size := s.cfg.StreamSize

	if size.X <= 0 || size.Y <= 0 {
		return render.EncodeJPEG(frame, s.cfg.Quality)
	}

	if s.letterbox == nil || !s.letterbox.Matches(frame) {
		if s.letterbox != nil {
			s.letterbox.Close()
		}
		s.letterbox = preprocess.NewLetterbox(image.Pt(frame.Cols(), frame.Rows()), size)
	}

	out := gocv.NewMat()
	defer out.Close()

	if err := s.letterbox.Fit(frame, &out, render.Black); err != nil {
		return nil, err
	}

	return render.EncodeJPEG(out, s.cfg.Quality)
}

// record updates the state and metrics from a processed frame
func (s *Service) record(res *motionwatch.Result, active []tracker.Track) {

	metrics.FramesTotal.Inc()
	metrics.MotionScore.Set(res.Score)
	metrics.ActiveTracks.Set(float64(len(active)))
	metrics.DeregisteredTotal.Add(float64(len(res.Deregistered)))

	if res.Motion {
		metrics.MotionFramesTotal.Inc()
	}

	if res.Alert {
		metrics.AlertsTotal.Inc()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Active = true
	s.state.Frames++
	s.state.LastFrame = res.Timestamp
	s.state.Motion = res.Motion
	s.state.Score = res.Score
	s.state.Tracks = active
}

func (s *Service) setActive(active bool) {
	s.mu.Lock()
	s.state.Active = active
	s.mu.Unlock()
}

func (s *Service) failed() {
	s.mu.Lock()
	s.state.Failures++
	s.mu.Unlock()
}
