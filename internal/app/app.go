// Package app wires the configuration, frame source, processing loop,
// capture store and HTTP server together and runs them under a supervisor.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/swdee/go-motionwatch/capture"
	"github.com/swdee/go-motionwatch/internal/config"
	"github.com/swdee/go-motionwatch/internal/logger"
	"github.com/swdee/go-motionwatch/internal/service/monitor"
	"github.com/swdee/go-motionwatch/internal/service/web"
	"github.com/swdee/go-motionwatch/source"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
)

// Options are command line overrides applied over the loaded configuration
type Options struct {
	// ConfigPath is the YAML configuration file
	ConfigPath string
	// Listen overrides the HTTP listen address
	Listen string
	// Device overrides the camera index when zero or above
	Device int
	// File reads frames from a video file instead of a camera
	File string
	// LogLevel overrides the configured log level
	LogLevel string
}

// Run loads the configuration and blocks serving until ctx is done
func Run(ctx context.Context, opts *Options) error {

	cfg, err := config.Load(opts.ConfigPath)

	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	opts.apply(cfg)

	if err := setupLogging(cfg.Logging); err != nil {
		return err
	}

	defer logger.Sync()

	ctx = logger.WithName(ctx, "motionwatch")

	src, name, err := openSource(cfg.Camera)

	if err != nil {
		return err
	}

	defer src.Close()

	var persist config.PersistFunc

	if cfg.SettingsPath != "" {
		persist = config.FilePersister(cfg.SettingsPath)
	}

	settings, err := config.NewStore(cfg.Settings, persist)

	if err != nil {
		return err
	}

	disk := capture.NewDiskStore(cfg.Capture.Dir, cfg.Capture.MaxFiles, cfg.Capture.Quality)

	sink := capture.NewBreakerSink(ctx, disk, capture.BreakerConfig{
		Name:     "capture-store",
		Failures: cfg.Capture.BreakerFailures,
		Timeout:  cfg.Capture.BreakerTimeout,
	})

	hub := web.NewHub()

	mon, err := monitor.New(monitor.Config{
		Name:         name,
		Source:       src,
		RetryWait:    cfg.Camera.RetryWait,
		Engine:       cfg.EngineOptions(),
		Settings:     settings,
		ProcessNoise: cfg.Model.ProcessNoise,
		Sink:         sink,
		Publisher:    hub,
		TrailLength:  cfg.Model.TrailLength,
		StreamSize:   image.Pt(cfg.Server.StreamWidth, cfg.Server.StreamHeight),
		Quality:      cfg.Capture.Quality,
	})

	if err != nil {
		return err
	}

	defer mon.Close()

	srv := web.NewServer(web.Options{
		Hub:      hub,
		Status:   mon,
		Settings: settings,
		Captures: disk,
		PageSize: cfg.Capture.PageSize,
		Metrics:  cfg.Server.Metrics,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	sup := newSupervisor(ctx, cfg.Server.ShutdownTimeout)
	sup.Add(mon)
	sup.Add(web.NewHTTPService(httpServer, cfg.Server.ShutdownTimeout))

	logger.InfoKV(ctx, "Motion watch started", "source", name,
		"listen", cfg.Server.Listen, "captures", cfg.Capture.Dir)

	err = sup.Serve(ctx)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Infof(ctx, "Motion watch stopped")

	return nil
}

// apply copies the set overrides into cfg
func (o *Options) apply(cfg *config.Config) {

	if o.Listen != "" {
		cfg.Server.Listen = o.Listen
	}

	if o.Device >= 0 {
		cfg.Camera.Device = o.Device
	}

	if o.File != "" {
		cfg.Camera.File = o.File
	}

	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
}

// setupLogging applies the configured level and format to the global
// logger
func setupLogging(cfg config.LoggingConfig) error {

	lvl, ok := logger.ParseLogLevel(cfg.Level)

	if !ok {
		return fmt.Errorf("unknown log level %q", cfg.Level)
	}

	logger.SetLevel(lvl)

	if logger.Format(cfg.Format) == logger.FormatJSON {
		logger.SetLogger(logger.New(logger.FormatJSON, os.Stdout, nil))
	}

	return nil
}

// openSource opens the configured video file or camera
func openSource(cfg config.CameraConfig) (*source.VideoSource, string, error) {

	if cfg.File != "" {
		src, err := source.OpenFile(cfg.File)
		if err != nil {
			return nil, "", err
		}
		return src, src.Name(), nil
	}

	src, err := source.OpenDevice(cfg.Device, cfg.Width, cfg.Height)

	if err != nil {
		return nil, "", err
	}

	return src, src.Name(), nil
}

// newSupervisor returns the root supervisor, its events are logged with the
// logger carried by ctx
func newSupervisor(ctx context.Context, timeout time.Duration) *suture.Supervisor {
	return suture.New("motionwatch", suture.Spec{
		EventHook: eventHook(logger.FromContext(ctx)),
		Timeout:   timeout,
	})
}

// eventHook logs supervisor events as key value pairs
func eventHook(log *zap.SugaredLogger) suture.EventHook {
	return func(e suture.Event) {
		log.Warnw(e.String(), eventFields(e.Map())...)
	}
}

// eventFields flattens an event map into sorted key value pairs
func eventFields(m map[string]interface{}) []any {

	keys := make([]string, 0, len(m))

	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	out := make([]any, 0, len(m)*2)

	for _, k := range keys {
		out = append(out, k, m[k])
	}

	return out
}
