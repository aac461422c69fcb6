package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

var (
	// ErrCaptureFailure is returned when the source could not produce a
	// frame this tick but may succeed on the next
	ErrCaptureFailure = errors.New("capture failure")
	// ErrEndOfStream is returned when the source has no more frames
	ErrEndOfStream = errors.New("end of stream")
)

// Source produces raw BGR frames on demand
type Source interface {
	// Read decodes the next frame into dst
	Read(dst *gocv.Mat) error
	// Close releases the underlying device or file
	Close() error
}

// Frame is a single captured frame with metadata.  The receiver owns Mat
// and must Close it
type Frame struct {
	// Mat is the frame data, empty when Err is set
	Mat gocv.Mat
	// Seq is the monotonic sequence number of read attempts
	Seq uint64
	// Timestamp is when the frame was read
	Timestamp time.Time
	// Err is set when the read failed
	Err error
}

// Stats contains counters for a running stream
type Stats struct {
	// FrameCount is the number of frames read successfully
	FrameCount uint64
	// Failures is the number of failed reads
	Failures uint64
}

// VideoSource reads frames from a camera device or video file
type VideoSource struct {
	vc *gocv.VideoCapture
	// name identifies the device or file for logging
	name string
	// file marks a finite source where a failed read means end of stream
	file bool
	mu   sync.Mutex
}

// OpenDevice opens a camera by its device id and requests the given capture
// size, zero width or height keeps the device default
func OpenDevice(id, width, height int) (*VideoSource, error) {

	vc, err := gocv.VideoCaptureDevice(id)

	if err != nil {
		return nil, fmt.Errorf("error opening camera %d: %w", id, err)
	}

	if width > 0 && height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}

	return &VideoSource{
		vc:   vc,
		name: fmt.Sprintf("camera %d", id),
	}, nil
}

// OpenFile opens a video file or stream URI
func OpenFile(path string) (*VideoSource, error) {

	vc, err := gocv.VideoCaptureFile(path)

	if err != nil {
		return nil, fmt.Errorf("error opening video %s: %w", path, err)
	}

	return &VideoSource{
		vc:   vc,
		name: path,
		file: true,
	}, nil
}

// Name returns the device or file the source reads from
func (v *VideoSource) Name() string {
	return v.name
}

// Read decodes the next frame into dst
func (v *VideoSource) Read(dst *gocv.Mat) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if ok := v.vc.Read(dst); !ok || dst.Empty() {
		if v.file {
			return ErrEndOfStream
		}
		return fmt.Errorf("%w: no frame from %s", ErrCaptureFailure, v.name)
	}

	return nil
}

// Close releases the capture device
func (v *VideoSource) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.vc.Close()
}

// Stream reads frames from a source in its own goroutine and pushes them onto
// a channel
type Stream struct {
	src       Source
	frames    uint64
	failures  uint64
	retryWait time.Duration
}

// NewStream returns a Stream over the source.  After a failed read the
// stream waits retryWait before reading again
func NewStream(src Source, retryWait time.Duration) *Stream {
	return &Stream{
		src:       src,
		retryWait: retryWait,
	}
}

// Start begins reading and returns the frame channel.  Failed reads are
// delivered as frames with Err set so the consumer can skip the tick.  The
// channel is closed when ctx is done or after a frame carrying
// ErrEndOfStream
func (s *Stream) Start(ctx context.Context) <-chan Frame {

	out := make(chan Frame, 1)

	go func() {
		defer close(out)

		var seq uint64

		for {
			if ctx.Err() != nil {
				return
			}

			mat := gocv.NewMat()
			err := s.src.Read(&mat)
			seq++

			frame := Frame{
				Seq:       seq,
				Timestamp: time.Now(),
			}

			if err != nil {
				mat.Close()
				frame.Mat = gocv.NewMat()
				frame.Err = err
				atomic.AddUint64(&s.failures, 1)
			} else {
				frame.Mat = mat
				atomic.AddUint64(&s.frames, 1)
			}

			select {
			case out <- frame:
			case <-ctx.Done():
				frame.Mat.Close()
				return
			}

			if errors.Is(err, ErrEndOfStream) {
				return
			}

			if err != nil && s.retryWait > 0 {
				select {
				case <-time.After(s.retryWait):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// Stats returns the stream counters
func (s *Stream) Stats() Stats {
	return Stats{
		FrameCount: atomic.LoadUint64(&s.frames),
		Failures:   atomic.LoadUint64(&s.failures),
	}
}
