package motionwatch

import (
	"github.com/swdee/go-motionwatch/preprocess"
	"github.com/swdee/go-motionwatch/render"
	"github.com/swdee/go-motionwatch/source"
)

var (
	// ErrInvalidFrame is returned by the pipeline stages when a frame is
	// missing or malformed
	ErrInvalidFrame = preprocess.ErrInvalidFrame
	// ErrCaptureFailure is returned by a frame source that could not produce
	// a frame this tick
	ErrCaptureFailure = source.ErrCaptureFailure
	// ErrEndOfStream is returned by a frame source that has no more frames
	ErrEndOfStream = source.ErrEndOfStream
	// ErrEncodingFailure is returned when a rendered frame could not be
	// encoded
	ErrEncodingFailure = render.ErrEncodingFailure
)
