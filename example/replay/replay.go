package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"time"

	motionwatch "github.com/swdee/go-motionwatch"
	"github.com/swdee/go-motionwatch/render"
	"github.com/swdee/go-motionwatch/tracker"
	"gocv.io/x/gocv"
)

// Timing holds timers used to find the execution time of each frame
type Timing struct {
	ProcessStart time.Time
	EngineEnd    time.Time
	ProcessEnd   time.Time
}

// Replay runs a buffered video through the engine and writes the annotated
// frames to a new video file
type Replay struct {
	// vidBuffer buffers the video frames into memory
	vidBuffer []gocv.Mat
	engine    *motionwatch.Engine
	params    motionwatch.Params
	trail     *tracker.Trail
	// interval is the simulated time between frames
	interval time.Duration
	// ids records every object identity seen
	ids    map[int]int
	alerts int
}

// NewReplay buffers the video file and creates the engine
func NewReplay(vidFile string, fps float64, params motionwatch.Params) (*Replay, error) {

	r := &Replay{
		params:   params,
		trail:    tracker.NewTrail(30),
		interval: time.Duration(float64(time.Second) / fps),
		ids:      make(map[int]int),
	}

	if err := r.bufferVideo(vidFile); err != nil {
		return nil, fmt.Errorf("Error buffering video: %w", err)
	}

	if len(r.vidBuffer) < 2 {
		return nil, fmt.Errorf("video %s has fewer than two frames", vidFile)
	}

	opts := motionwatch.DefaultOptions()
	opts.Tracker = params.Tracker

	var err error
	r.engine, err = motionwatch.New(opts)

	if err != nil {
		return nil, fmt.Errorf("Error creating engine: %w", err)
	}

	return r, nil
}

// bufferVideo reads in the video frames and saves them to a buffer
func (r *Replay) bufferVideo(vidFile string) error {

	video, err := gocv.VideoCaptureFile(vidFile)

	if err != nil {
		return err
	}

	defer video.Close()

	for {
		img := gocv.NewMat()

		if ok := video.Read(&img); !ok {
			img.Close()
			break
		}

		if img.Empty() {
			img.Close()
			continue
		}

		r.vidBuffer = append(r.vidBuffer, img)
	}

	return nil
}

// Run processes every buffered frame pair and writes the result
func (r *Replay) Run(outFile string, fps float64) error {

	width := r.vidBuffer[0].Cols()
	height := r.vidBuffer[0].Rows()

	writer, err := gocv.VideoWriterFile(outFile, "MJPG", fps, width, height, true)

	if err != nil {
		return fmt.Errorf("Error opening output video: %w", err)
	}

	defer writer.Close()

	resImg := gocv.NewMat()
	defer resImg.Close()

	// timestamps start at a fixed time so replays are repeatable
	start := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.Local)

	for i := 1; i < len(r.vidBuffer); i++ {

		timing := &Timing{ProcessStart: time.Now()}
		now := start.Add(time.Duration(i) * r.interval)

		res, err := r.engine.Process(r.vidBuffer[i-1], r.vidBuffer[i], now, r.params)

		if err != nil {
			log.Printf("Frame %d: error processing: %v", i, err)
			continue
		}

		timing.EngineEnd = time.Now()

		for _, tr := range res.Tracks {
			r.trail.Add(tr)
			if tr.ThreatLevel > r.ids[tr.ID] {
				r.ids[tr.ID] = tr.ThreatLevel
			}
		}

		r.trail.Remove(res.Deregistered...)

		if res.Alert {
			r.alerts++
		}

		r.vidBuffer[i].CopyTo(&resImg)
		r.annotate(&resImg, res, i, now, timing)

		if err := writer.Write(resImg); err != nil {
			return fmt.Errorf("Error writing frame %d: %w", i, err)
		}
	}

	return nil
}

// annotate draws the tracked objects and frame statistics
func (r *Replay) annotate(img *gocv.Mat, res *motionwatch.Result, frameNum int,
	now time.Time, timing *Timing) {

	render.ThreatBoxes(img, res.Tracks, render.DefaultFont(), render.DefaultBoxStyle())
	render.PredictedBoxes(img, res.Tracks, render.DefaultBoxStyle())
	render.Trail(img, res.Tracks, r.trail, render.DefaultTrailStyle())

	if err := render.Clock(img, now, render.DefaultClockStyle()); err != nil {
		log.Printf("Frame %d: error drawing clock: %v", frameNum, err)
	}

	timing.ProcessEnd = time.Now()

	gocv.PutText(img, fmt.Sprintf("Frame: %d, Score: %.1f, Motion: %v, Objects: %d, Alert: %v",
		frameNum, res.Score, res.Motion, len(res.Tracks), res.Alert),
		image.Pt(4, img.Rows()-24), gocv.FontHersheyDuplex, 0.5, render.Yellow, 1)

	gocv.PutText(img, fmt.Sprintf("Engine: %.2fms, Rendering: %.2fms",
		float32(timing.EngineEnd.Sub(timing.ProcessStart))/float32(time.Millisecond),
		float32(timing.ProcessEnd.Sub(timing.EngineEnd))/float32(time.Millisecond),
	), image.Pt(4, img.Rows()-8), gocv.FontHersheyDuplex, 0.5, render.Yellow, 1)
}

// Close frees the buffered frames and engine
func (r *Replay) Close() {
	for _, img := range r.vidBuffer {
		img.Close()
	}
	r.engine.Close()
}

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	vidFile := flag.String("v", "../data/palace.mp4", "Video file to run motion detection and tracking on")
	outFile := flag.String("o", "replay.avi", "Annotated output video file")
	fps := flag.Float64("f", 30, "Frame rate used to timestamp frames")
	sensitivity := flag.Float64("s", 1800, "Motion score that must be exceeded")
	threshold := flag.Float64("t", 1500, "Contour area a region must exceed")
	rng := flag.Int("r", 100, "Mask intensity above which a pixel is foreground")

	flag.Parse()

	params := motionwatch.DefaultParams()
	params.Sensitivity = *sensitivity
	params.AreaThreshold = *threshold
	params.Range = float32(*rng)

	replay, err := NewReplay(*vidFile, *fps, params)

	if err != nil {
		log.Fatalf("Error creating replay: %v", err)
	}

	defer replay.Close()

	if err := replay.Run(*outFile, *fps); err != nil {
		log.Fatalf("Error running replay: %v", err)
	}

	log.Printf("Processed %d frames, %d objects seen, %d alert frames",
		len(replay.vidBuffer)-1, len(replay.ids), replay.alerts)

	for id, lvl := range replay.ids {
		log.Printf("  object %d reached threat level %d", id, lvl)
	}

	log.Printf("Annotated video written to %s", *outFile)
}
