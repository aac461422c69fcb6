// Package web serves the live view, runtime settings, tracked objects and
// stored captures over HTTP.
package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swdee/go-motionwatch/capture"
	"github.com/swdee/go-motionwatch/internal/config"
	"github.com/swdee/go-motionwatch/internal/logger"
	"github.com/swdee/go-motionwatch/internal/service/monitor"
)

// streamBoundary separates the JPEG parts of the live view
const streamBoundary = "frame"

// errSettingsBody marks a settings request body that could not be decoded
var errSettingsBody = errors.New("invalid settings body")

// StatusSource reports the processing loop state
type StatusSource interface {
	Snapshot() monitor.Snapshot
}

// SettingsStore reads and changes the runtime settings
type SettingsStore interface {
	Snapshot() config.Settings
	Apply(func(*config.Settings) error) (config.Settings, error)
	ToggleCamera() (config.Settings, error)
}

// CaptureStore lists and manages stored captures
type CaptureStore interface {
	Page(order capture.Order, page, size int) (capture.Page, error)
	Path(name string) (string, error)
	Delete(name string) error
	Status() (capture.Status, error)
}

// Options configures the server
type Options struct {
	Hub      *Hub
	Status   StatusSource
	Settings SettingsStore
	Captures CaptureStore
	// PageSize is the number of captures per listing page
	PageSize int
	// Metrics exposes prometheus metrics on /metrics
	Metrics bool
}

// Server holds the HTTP handlers
type Server struct {
	opts Options
}

// StatusResponse is returned by the status endpoint
type StatusResponse struct {
	// Device is Active while the camera is enabled and frames are flowing
	Device      string           `json:"device"`
	Captures    int              `json:"captures"`
	LastCapture *capture.Capture `json:"last_capture,omitempty"`
	Monitor     monitor.Snapshot `json:"monitor"`
	Clients     int              `json:"stream_clients"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer returns a server for the given collaborators
func NewServer(opts Options) *Server {

	if opts.Hub == nil {
		opts.Hub = NewHub()
	}

	if opts.PageSize <= 0 {
		opts.PageSize = capture.DefaultPageSize
	}

	return &Server{opts: opts}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/stream", s.stream)
	r.Get("/captures/{name}", s.captureFile)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/tracks", s.tracks)

		r.Get("/settings", s.getSettings)
		r.Put("/settings", s.putSettings)
		r.Post("/settings/camera/toggle", s.toggleCamera)

		r.Get("/captures", s.listCaptures)
		r.Delete("/captures/{name}", s.deleteCapture)
	})

	if s.opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// stream serves the live view as a multipart JPEG stream until the client
// goes away
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {

	if !s.opts.Settings.Snapshot().CameraEnabled {
		writeError(w, http.StatusServiceUnavailable, errors.New("camera is disabled"))
		return
	}

	flusher, ok := w.(http.Flusher)

	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	notify, done := s.opts.Hub.Subscribe()
	defer done()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+streamBoundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusOK)

	var sent uint64

	for {
		if data, seq := s.opts.Hub.Latest(); data != nil && seq != sent {

			if err := writePart(w, data); err != nil {
				logger.DebugKV(r.Context(), "Stream client write failed", "error", err)
				return
			}

			flusher.Flush()
			sent = seq
		}

		select {
		case <-r.Context().Done():
			return
		case <-notify:
		}
	}
}

func writePart(w http.ResponseWriter, data []byte) error {

	header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
		streamBoundary, len(data))

	if _, err := w.Write([]byte(header)); err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return err
	}

	_, err := w.Write([]byte("\r\n"))

	return err
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {

	st, err := s.opts.Captures.Status()

	if err != nil {
		logger.ErrorKV(r.Context(), "Failed to read capture status", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	snap := s.opts.Status.Snapshot()

	device := "Inactive"

	if snap.Active && s.opts.Settings.Snapshot().CameraEnabled {
		device = "Active"
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Device:      device,
		Captures:    st.Count,
		LastCapture: st.Last,
		Monitor:     snap,
		Clients:     s.opts.Hub.Clients(),
	})
}

func (s *Server) tracks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Status.Snapshot().Tracks)
}

func (s *Server) getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Settings.Snapshot())
}

// putSettings applies the fields present in the body over the current
// settings.  The merge runs inside the store so a concurrent change to
// other fields is kept
func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<16))

	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid settings body: %w", err))
		return
	}

	saved, err := s.opts.Settings.Apply(func(cur *config.Settings) error {

		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()

		if err := dec.Decode(cur); err != nil {
			return fmt.Errorf("%w: %w", errSettingsBody, err)
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, errSettingsBody) || errors.Is(err, config.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		logger.ErrorKV(r.Context(), "Failed to update settings", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	logger.InfoKV(r.Context(), "Settings updated", "settings", saved)
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) toggleCamera(w http.ResponseWriter, r *http.Request) {

	saved, err := s.opts.Settings.ToggleCamera()

	if err != nil {
		logger.ErrorKV(r.Context(), "Failed to toggle camera", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	logger.InfoKV(r.Context(), "Camera toggled", "enabled", saved.CameraEnabled)
	writeJSON(w, http.StatusOK, saved)
}

// listCaptures returns one page of captures, ?page= is 1 based and
// ?order= is newest or oldest
func (s *Server) listCaptures(w http.ResponseWriter, r *http.Request) {

	page := 1

	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid page %q", v))
			return
		}
		page = n
	}

	order := capture.ParseOrder(r.URL.Query().Get("order"))

	p, err := s.opts.Captures.Page(order, page, s.opts.PageSize)

	if err != nil {
		logger.ErrorKV(r.Context(), "Failed to list captures", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (s *Server) deleteCapture(w http.ResponseWriter, r *http.Request) {

	name := chi.URLParam(r, "name")

	if err := s.opts.Captures.Delete(name); err != nil {
		writeCaptureError(w, r, err)
		return
	}

	logger.InfoKV(r.Context(), "Capture deleted", "name", name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) captureFile(w http.ResponseWriter, r *http.Request) {

	path, err := s.opts.Captures.Path(chi.URLParam(r, "name"))

	if err != nil {
		writeCaptureError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, path)
}

func writeCaptureError(w http.ResponseWriter, r *http.Request, err error) {

	switch {
	case errors.Is(err, capture.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, capture.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err)
	default:
		logger.ErrorKV(r.Context(), "Capture request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {

	body, err := json.Marshal(data)

	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
