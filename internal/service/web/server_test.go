package web

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-motionwatch/capture"
	"github.com/swdee/go-motionwatch/internal/config"
	"github.com/swdee/go-motionwatch/internal/service/monitor"
	"github.com/swdee/go-motionwatch/tracker"
)

type fakeStatus struct {
	snap monitor.Snapshot
}

func (f fakeStatus) Snapshot() monitor.Snapshot {
	return f.snap
}

var base = time.Date(2024, time.March, 5, 14, 30, 0, 0, time.Local)

type fixture struct {
	srv      *httptest.Server
	hub      *Hub
	settings *config.Store
	captures *capture.DiskStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	settings, err := config.NewStore(config.DefaultSettings(), nil)
	require.NoError(t, err)

	captures := capture.NewDiskStore(t.TempDir(), 30, 90)
	hub := NewHub()

	snap := monitor.Snapshot{
		Active: true,
		Frames: 12,
		Tracks: []tracker.Track{{ID: 4, Rect: tracker.NewRect(10, 10, 50, 50), ThreatLevel: 2}},
	}

	s := NewServer(Options{
		Hub:      hub,
		Status:   fakeStatus{snap: snap},
		Settings: settings,
		Captures: captures,
		PageSize: 12,
		Metrics:  true,
	})

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, hub: hub, settings: settings, captures: captures}
}

func (f *fixture) do(t *testing.T, method, path string, body io.Reader) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, f.srv.URL+path, body)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func (f *fixture) addCaptures(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.captures.Write([]byte{0xff, 0xd8}, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
}

func TestStatus(t *testing.T) {

	f := newFixture(t)
	f.addCaptures(t, 3)

	resp, body := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var st StatusResponse
	require.NoError(t, json.Unmarshal(body, &st))
	require.Equal(t, "Active", st.Device)
	require.Equal(t, 3, st.Captures)
	require.NotNil(t, st.LastCapture)
	require.Equal(t, capture.FileName(base.Add(2*time.Second)), st.LastCapture.Name)
	require.Equal(t, uint64(12), st.Monitor.Frames)

	_, err := f.settings.ToggleCamera()
	require.NoError(t, err)

	_, body = f.do(t, http.MethodGet, "/api/status", nil)
	require.NoError(t, json.Unmarshal(body, &st))
	require.Equal(t, "Inactive", st.Device)
}

func TestTracks(t *testing.T) {

	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/api/tracks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tracks []tracker.Track
	require.NoError(t, json.Unmarshal(body, &tracks))
	require.Len(t, tracks, 1)
	require.Equal(t, 4, tracks[0].ID)
	require.Equal(t, 2, tracks[0].ThreatLevel)
}

func TestSettings(t *testing.T) {

	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got config.Settings
	require.NoError(t, json.Unmarshal(body, &got))
	require.Equal(t, config.DefaultSettings(), got)

	// partial update keeps the other fields
	resp, body = f.do(t, http.MethodPut, "/api/settings",
		strings.NewReader(`{"sensitivity": 900, "sleep": 12}`))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &got))
	require.Equal(t, 900, got.Sensitivity)
	require.Equal(t, 12, got.Sleep)
	require.Equal(t, 1500, got.AreaThreshold)
	require.Equal(t, got, f.settings.Snapshot())

	tests := []struct {
		name string
		body string
	}{
		{name: "out of range", body: `{"range": 999}`},
		{name: "unknown field", body: `{"colour": "red"}`},
		{name: "malformed", body: `{"sleep":`},
		{name: "wrong type", body: `{"fps": "fast"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPut, "/api/settings", strings.NewReader(tt.body))
			require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
			require.Contains(t, string(body), `"error"`)
		})
	}

	require.Equal(t, 900, f.settings.Snapshot().Sensitivity)
	require.Equal(t, 100, f.settings.Snapshot().Range)
}

// toggleOnRead flips the camera the first time the request body is read,
// standing in for a toggle request that lands while a settings update is
// in flight
type toggleOnRead struct {
	body    io.Reader
	store   *config.Store
	toggled bool
}

func (r *toggleOnRead) Read(p []byte) (int, error) {
	if !r.toggled {
		r.toggled = true
		if _, err := r.store.ToggleCamera(); err != nil {
			return 0, err
		}
	}
	return r.body.Read(p)
}

func TestSettingsUpdateKeepsConcurrentToggle(t *testing.T) {

	settings, err := config.NewStore(config.DefaultSettings(), nil)
	require.NoError(t, err)

	s := NewServer(Options{
		Hub:      NewHub(),
		Status:   fakeStatus{},
		Settings: settings,
		Captures: capture.NewDiskStore(t.TempDir(), 30, 90),
		PageSize: 12,
	})

	body := &toggleOnRead{body: strings.NewReader(`{"sensitivity": 700}`), store: settings}
	req := httptest.NewRequest(http.MethodPut, "/api/settings", body)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, body.toggled)

	got := settings.Snapshot()
	require.Equal(t, 700, got.Sensitivity)
	require.False(t, got.CameraEnabled, "toggle made during the update was lost")
}

func TestToggleCamera(t *testing.T) {

	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/settings/camera/toggle", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got config.Settings
	require.NoError(t, json.Unmarshal(body, &got))
	require.False(t, got.CameraEnabled)

	// the live view is refused while the camera is off
	resp, _ = f.do(t, http.MethodGet, "/stream", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	_, body = f.do(t, http.MethodPost, "/api/settings/camera/toggle", nil)
	require.NoError(t, json.Unmarshal(body, &got))
	require.True(t, got.CameraEnabled)
}

func TestListCaptures(t *testing.T) {

	f := newFixture(t)
	f.addCaptures(t, 14)

	resp, body := f.do(t, http.MethodGet, "/api/captures", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page capture.Page
	require.NoError(t, json.Unmarshal(body, &page))
	require.Equal(t, 1, page.Page)
	require.Equal(t, 2, page.TotalPages)
	require.Equal(t, 14, page.Total)
	require.Len(t, page.Captures, 12)
	require.Equal(t, capture.FileName(base.Add(13*time.Second)), page.Captures[0].Name)

	_, body = f.do(t, http.MethodGet, "/api/captures?page=2&order=oldest", nil)
	require.NoError(t, json.Unmarshal(body, &page))
	require.Equal(t, "oldest", page.Order)
	require.Len(t, page.Captures, 2)
	require.Equal(t, capture.FileName(base.Add(12*time.Second)), page.Captures[0].Name)

	resp, _ = f.do(t, http.MethodGet, "/api/captures?page=zero", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCaptureFileAndDelete(t *testing.T) {

	f := newFixture(t)
	f.addCaptures(t, 1)

	name := capture.FileName(base)

	resp, body := f.do(t, http.MethodGet, "/captures/"+name, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	require.Equal(t, []byte{0xff, 0xd8}, body)

	resp, _ = f.do(t, http.MethodDelete, "/api/captures/"+name, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/api/captures/"+name, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/captures/"+name, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/api/captures/notes.txt", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStream(t *testing.T) {

	f := newFixture(t)
	frame := []byte{0xff, 0xd8, 0x01, 0x02, 0xff, 0xd9}
	f.hub.Publish(frame)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))

	rd := bufio.NewReader(resp.Body)

	readPart := func() []byte {
		boundary, err := rd.ReadString('\n')
		require.NoError(t, err)
		require.Equal(t, "--frame\r\n", boundary)

		hdr, err := textproto.NewReader(rd).ReadMIMEHeader()
		require.NoError(t, err)
		require.Equal(t, "image/jpeg", hdr.Get("Content-Type"))

		n, err := strconv.Atoi(hdr.Get("Content-Length"))
		require.NoError(t, err)

		data := make([]byte, n+2)
		_, err = io.ReadFull(rd, data)
		require.NoError(t, err)
		require.True(t, bytes.HasSuffix(data, []byte("\r\n")))

		return data[:n]
	}

	require.Equal(t, frame, readPart())
	require.Eventually(t, func() bool { return f.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	next := []byte{0xff, 0xd8, 0x03, 0xff, 0xd9}
	f.hub.Publish(next)
	require.Equal(t, next, readPart())

	cancel()
	require.Eventually(t, func() bool { return f.hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestMetricsAndHealth(t *testing.T) {

	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "motionwatch_stream_clients")
}
