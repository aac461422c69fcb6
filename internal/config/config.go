package config

import (
	"image"
	"time"

	motionwatch "github.com/swdee/go-motionwatch"
	"github.com/swdee/go-motionwatch/postprocess"
	"github.com/swdee/go-motionwatch/preprocess"
	"github.com/swdee/go-motionwatch/tracker"
)

// Config is the full application configuration
type Config struct {
	Camera   CameraConfig  `koanf:"camera" yaml:"camera" validate:"required"`
	Capture  CaptureConfig `koanf:"capture" yaml:"capture" validate:"required"`
	Server   ServerConfig  `koanf:"server" yaml:"server" validate:"required"`
	Logging  LoggingConfig `koanf:"logging" yaml:"logging" validate:"required"`
	Model    ModelConfig   `koanf:"model" yaml:"model" validate:"required"`
	Zones    ZonesConfig   `koanf:"zones" yaml:"zones"`
	Settings Settings      `koanf:"settings" yaml:"settings" validate:"required"`
	// SettingsPath is the file runtime settings are saved to and restored
	// from, empty disables persistence
	SettingsPath string `koanf:"settings_path" yaml:"settings_path"`
}

// CameraConfig selects the frame source
type CameraConfig struct {
	// Device is the camera index used when File is empty
	Device int `koanf:"device" yaml:"device" validate:"gte=0"`
	// File is a video file or stream URI read instead of a camera
	File   string `koanf:"file" yaml:"file"`
	Width  int    `koanf:"width" yaml:"width" validate:"gte=0"`
	Height int    `koanf:"height" yaml:"height" validate:"gte=0"`
	// RetryWait is the pause after a failed read
	RetryWait time.Duration `koanf:"retry_wait" yaml:"retry_wait" validate:"gte=0"`
}

// CaptureConfig controls where and how captures are stored
type CaptureConfig struct {
	Dir      string `koanf:"dir" yaml:"dir" validate:"required"`
	MaxFiles int    `koanf:"max_files" yaml:"max_files" validate:"gte=1"`
	Quality  int    `koanf:"quality" yaml:"quality" validate:"gte=1,lte=100"`
	PageSize int    `koanf:"page_size" yaml:"page_size" validate:"gte=1"`
	// BreakerFailures is the number of consecutive failed saves that stop
	// further attempts for BreakerTimeout
	BreakerFailures uint32        `koanf:"breaker_failures" yaml:"breaker_failures" validate:"gte=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" yaml:"breaker_timeout" validate:"gt=0"`
}

// ServerConfig controls the HTTP server and live view
type ServerConfig struct {
	Listen string `koanf:"listen" yaml:"listen" validate:"required"`
	// StreamWidth and StreamHeight letterbox the live view, zero streams
	// frames at their captured size
	StreamWidth     int           `koanf:"stream_width" yaml:"stream_width" validate:"gte=0"`
	StreamHeight    int           `koanf:"stream_height" yaml:"stream_height" validate:"gte=0"`
	ReadTimeout     time.Duration `koanf:"read_timeout" yaml:"read_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`
	// Metrics exposes prometheus metrics on /metrics
	Metrics bool `koanf:"metrics" yaml:"metrics"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `koanf:"format" yaml:"format" validate:"oneof=console json"`
}

// ModelConfig holds the background model and overlay parameters that are
// fixed for the life of the process
type ModelConfig struct {
	History       int     `koanf:"history" yaml:"history" validate:"gte=1"`
	VarThreshold  float64 `koanf:"var_threshold" yaml:"var_threshold" validate:"gt=0"`
	DetectShadows bool    `koanf:"detect_shadows" yaml:"detect_shadows"`
	BlurKernel    int     `koanf:"blur_kernel" yaml:"blur_kernel" validate:"gte=1"`
	// TrailLength is the number of past positions drawn behind an object
	TrailLength int `koanf:"trail_length" yaml:"trail_length" validate:"gte=0"`
	// ProcessNoise scales the predictor process noise covariance
	ProcessNoise float64 `koanf:"process_noise" yaml:"process_noise" validate:"gt=0"`
}

// ZonesConfig lists exclusion zones
type ZonesConfig struct {
	// MaxOverlap is the fraction of a detection box that may be covered by
	// zones before the detection is dropped
	MaxOverlap float64      `koanf:"max_overlap" yaml:"max_overlap" validate:"gte=0,lte=1"`
	Polygons   []ZoneConfig `koanf:"polygons" yaml:"polygons" validate:"dive"`
}

// ZoneConfig is a single exclusion polygon given as [x, y] pairs
type ZoneConfig struct {
	Name   string   `koanf:"name" yaml:"name" validate:"required"`
	Points [][2]int `koanf:"points" yaml:"points" validate:"min=3"`
}

// Settings are the runtime tunable values.  They are exposed over the API,
// saved to disk on change and read by the processing loop once per frame
type Settings struct {
	// CameraEnabled pauses processing and the live view when false
	CameraEnabled bool `koanf:"camera_enabled" yaml:"camera_enabled" json:"camera_enabled"`
	// Sleep is the minimum number of seconds between two captures
	Sleep int `koanf:"sleep" yaml:"sleep" json:"sleep" validate:"gte=0,lte=3600"`
	// AreaThreshold is the contour area a region must exceed
	AreaThreshold int `koanf:"threshold" yaml:"threshold" json:"threshold" validate:"gte=0"`
	// Sensitivity is the motion score that must be exceeded
	Sensitivity int `koanf:"sensitivity" yaml:"sensitivity" json:"sensitivity" validate:"gte=0"`
	// Range is the mask intensity above which a pixel is foreground
	Range int `koanf:"range" yaml:"range" json:"range" validate:"gte=0,lte=254"`
	FPS   int `koanf:"fps" yaml:"fps" json:"fps" validate:"gte=1,lte=120"`
	// EscalationSeconds is the time between threat level increases
	EscalationSeconds int `koanf:"escalation_seconds" yaml:"escalation_seconds" json:"escalation_seconds" validate:"gte=0"`
	// DeregistrationSeconds is how long an unseen object is kept
	DeregistrationSeconds int `koanf:"deregistration_seconds" yaml:"deregistration_seconds" json:"deregistration_seconds" validate:"gte=0"`
	MaxThreatLevel        int `koanf:"max_threat_level" yaml:"max_threat_level" json:"max_threat_level" validate:"gte=1,lte=10"`
	// AlertLevel is the threat level that triggers a capture with motion
	AlertLevel        int     `koanf:"alert_level" yaml:"alert_level" json:"alert_level" validate:"gte=1,ltefield=MaxThreatLevel"`
	DistanceThreshold float64 `koanf:"distance_threshold" yaml:"distance_threshold" json:"distance_threshold" validate:"gt=0"`
	// MatchNearest assigns detections to the closest object instead of the
	// first within range
	MatchNearest bool `koanf:"match_nearest" yaml:"match_nearest" json:"match_nearest"`
	// ClaimOnce stops an object matching more than one detection per frame
	ClaimOnce bool `koanf:"claim_once" yaml:"claim_once" json:"claim_once"`
}

// Default returns the built in configuration
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Device:    0,
			Width:     640,
			Height:    480,
			RetryWait: 500 * time.Millisecond,
		},
		Capture: CaptureConfig{
			Dir:             "./captures",
			MaxFiles:        30,
			Quality:         90,
			PageSize:        12,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			Metrics:         true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Model: ModelConfig{
			History:       preprocess.DefaultHistory,
			VarThreshold:  preprocess.DefaultVarThreshold,
			DetectShadows: true,
			BlurKernel:    preprocess.DefaultBlurKernel,
			TrailLength:   30,
			ProcessNoise:  tracker.DefaultProcessNoise,
		},
		Zones: ZonesConfig{
			MaxOverlap: 0.5,
		},
		Settings: DefaultSettings(),
	}
}

// DefaultSettings returns the built in runtime settings
func DefaultSettings() Settings {
	return Settings{
		CameraEnabled:         true,
		Sleep:                 5,
		AreaThreshold:         postprocess.DefaultAreaThreshold,
		Sensitivity:           postprocess.DefaultSensitivity,
		Range:                 postprocess.DefaultRange,
		FPS:                   60,
		EscalationSeconds:     int(tracker.DefaultEscalationTime / time.Second),
		DeregistrationSeconds: int(tracker.DefaultDeregistrationTimeout / time.Second),
		MaxThreatLevel:        tracker.DefaultMaxThreatLevel,
		AlertLevel:            motionwatch.DefaultAlertLevel,
		DistanceThreshold:     tracker.DefaultDistanceThreshold,
	}
}

// Cooldown is the minimum time between two captures
func (s Settings) Cooldown() time.Duration {
	return time.Duration(s.Sleep) * time.Second
}

// FrameInterval is the target time between two processed frames
func (s Settings) FrameInterval() time.Duration {
	if s.FPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(s.FPS)
}

// TrackerConfig converts the settings into a tracker configuration
func (s Settings) TrackerConfig(processNoise float64) tracker.Config {

	policy := tracker.MatchFirst

	if s.MatchNearest {
		policy = tracker.MatchNearest
	}

	return tracker.Config{
		DistanceThreshold:     s.DistanceThreshold,
		MaxThreatLevel:        s.MaxThreatLevel,
		EscalationTime:        time.Duration(s.EscalationSeconds) * time.Second,
		DeregistrationTimeout: time.Duration(s.DeregistrationSeconds) * time.Second,
		Policy:                policy,
		ClaimOnce:             s.ClaimOnce,
		ProcessNoise:          processNoise,
	}
}

// Params converts the settings into engine parameters for one frame
func (s Settings) Params(processNoise float64) motionwatch.Params {
	return motionwatch.Params{
		Sensitivity:   float64(s.Sensitivity),
		Range:         float32(s.Range),
		AreaThreshold: float64(s.AreaThreshold),
		AlertLevel:    s.AlertLevel,
		Tracker:       s.TrackerConfig(processNoise),
	}
}

// BackgroundParams converts the model configuration
func (m ModelConfig) BackgroundParams() preprocess.BackgroundModelParams {
	return preprocess.BackgroundModelParams{
		History:       m.History,
		VarThreshold:  m.VarThreshold,
		DetectShadows: m.DetectShadows,
		BlurKernel:    m.BlurKernel,
	}
}

// EngineOptions builds the engine options from the configuration
func (c *Config) EngineOptions() motionwatch.Options {

	zones := make([]postprocess.Zone, 0, len(c.Zones.Polygons))

	for _, z := range c.Zones.Polygons {

		pts := make([]image.Point, 0, len(z.Points))

		for _, p := range z.Points {
			pts = append(pts, image.Pt(p[0], p[1]))
		}

		zones = append(zones, postprocess.Zone{Name: z.Name, Points: pts})
	}

	return motionwatch.Options{
		Model:          c.Model.BackgroundParams(),
		Zones:          zones,
		MaxZoneOverlap: c.Zones.MaxOverlap,
		Tracker:        c.Settings.TrackerConfig(c.Model.ProcessNoise),
	}
}
