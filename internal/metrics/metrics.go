// Package metrics holds the prometheus collectors of the processing loop
// and capture store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal counts frames run through the engine
	FramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motionwatch_frames_total",
		Help: "Total number of frames processed",
	})

	// FrameFailuresTotal counts frames dropped by stage
	FrameFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "motionwatch_frame_failures_total",
		Help: "Total number of frames that failed, by stage",
	}, []string{"stage"})

	// MotionFramesTotal counts frames where motion exceeded the sensitivity
	MotionFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motionwatch_motion_frames_total",
		Help: "Total number of frames with motion",
	})

	// MotionScore is the motion score of the most recent frame
	MotionScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "motionwatch_motion_score",
		Help: "Motion score of the last processed frame",
	})

	// ActiveTracks is the number of objects currently tracked
	ActiveTracks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "motionwatch_active_tracks",
		Help: "Number of objects currently tracked",
	})

	// DeregisteredTotal counts objects removed after the timeout
	DeregisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motionwatch_deregistered_total",
		Help: "Total number of tracked objects deregistered",
	})

	// AlertsTotal counts frames that raised an alert
	AlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "motionwatch_alerts_total",
		Help: "Total number of frames that raised an alert",
	})

	// CapturesTotal counts saved captures by result
	CapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "motionwatch_captures_total",
		Help: "Total number of capture attempts, by result",
	}, []string{"result"})

	// ProcessLatency measures the time spent per frame in the engine
	ProcessLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "motionwatch_process_latency_seconds",
		Help:    "Frame processing latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// StreamClients is the number of connected live view clients
	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "motionwatch_stream_clients",
		Help: "Number of connected live view clients",
	})
)

// Frame failure stages
const (
	StageRead    = "read"
	StageProcess = "process"
	StageRender  = "render"
	StageEncode  = "encode"
)

// Capture results
const (
	CaptureSaved    = "saved"
	CaptureFailed   = "failed"
	CaptureRejected = "breaker_open"
)
