package config

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/swdee/go-motionwatch/tracker"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestDefaultValidates(t *testing.T) {

	cfg := Default()
	require.NoError(t, cfg.Validate())

	s := cfg.Settings
	require.True(t, s.CameraEnabled)
	require.Equal(t, 5, s.Sleep)
	require.Equal(t, 1500, s.AreaThreshold)
	require.Equal(t, 1800, s.Sensitivity)
	require.Equal(t, 100, s.Range)
	require.Equal(t, 60, s.FPS)
	require.Equal(t, 3, s.AlertLevel)
	require.Equal(t, 30, cfg.Capture.MaxFiles)
	require.Equal(t, 12, cfg.Capture.PageSize)
}

func TestLoadDefaultsOnly(t *testing.T) {

	t.Setenv(ConfigPathEnvVar, "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default().Settings, cfg.Settings)
	require.Equal(t, Default().Camera, cfg.Camera)
}

func TestLoadFileAndEnv(t *testing.T) {

	path := writeFile(t, "motionwatch.yaml", `
camera:
  device: 2
  retry_wait: 2s
capture:
  dir: /tmp/caps
settings:
  sensitivity: 900
  match_nearest: true
zones:
  max_overlap: 0.25
  polygons:
    - name: tree
      points: [[0, 0], [100, 0], [100, 100]]
`)

	t.Setenv("MOTIONWATCH_CAPTURE__MAX_FILES", "7")
	t.Setenv("MOTIONWATCH_SETTINGS__FPS", "15")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 2, cfg.Camera.Device)
	require.Equal(t, 2*time.Second, cfg.Camera.RetryWait)
	require.Equal(t, "/tmp/caps", cfg.Capture.Dir)
	require.Equal(t, 7, cfg.Capture.MaxFiles)
	require.Equal(t, 900, cfg.Settings.Sensitivity)
	require.Equal(t, 15, cfg.Settings.FPS)
	require.True(t, cfg.Settings.MatchNearest)
	// untouched values keep their defaults
	require.Equal(t, 1500, cfg.Settings.AreaThreshold)
	require.Equal(t, 12, cfg.Capture.PageSize)

	opts := cfg.EngineOptions()
	require.Len(t, opts.Zones, 1)
	require.Equal(t, "tree", opts.Zones[0].Name)
	require.Equal(t, []image.Point{{0, 0}, {100, 0}, {100, 100}}, opts.Zones[0].Points)
	require.Equal(t, 0.25, opts.MaxZoneOverlap)
	require.Equal(t, tracker.MatchNearest, opts.Tracker.Policy)
}

func TestLoadMissingFileIgnored(t *testing.T) {

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().Settings, cfg.Settings)
}

func TestLoadSavedSettings(t *testing.T) {

	dir := t.TempDir()
	settingsPath := filepath.Join(dir, "settings.yaml")

	saved := DefaultSettings()
	saved.Sleep = 20
	saved.CameraEnabled = false
	require.NoError(t, SaveSettings(settingsPath, saved))

	path := writeFile(t, "motionwatch.yaml", "settings_path: "+settingsPath+"\nsettings:\n  sleep: 9\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, saved, cfg.Settings)
}

func TestLoadRejectsInvalid(t *testing.T) {

	tests := []struct {
		name string
		yaml string
	}{
		{name: "range above mask maximum", yaml: "settings:\n  range: 300\n"},
		{name: "alert above max threat", yaml: "settings:\n  alert_level: 5\n  max_threat_level: 4\n"},
		{name: "zero fps", yaml: "settings:\n  fps: 0\n"},
		{name: "bad log format", yaml: "logging:\n  format: xml\n"},
		{name: "zone with two points", yaml: "zones:\n  polygons:\n    - name: a\n      points: [[0, 0], [1, 1]]\n"},
		{name: "jpeg quality", yaml: "capture:\n  quality: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", tt.yaml))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestSettingsConversions(t *testing.T) {

	s := DefaultSettings()
	s.EscalationSeconds = 4
	s.DeregistrationSeconds = 6
	s.ClaimOnce = true
	s.FPS = 20

	tc := s.TrackerConfig(0.1)
	require.Equal(t, 4*time.Second, tc.EscalationTime)
	require.Equal(t, 6*time.Second, tc.DeregistrationTimeout)
	require.Equal(t, tracker.MatchFirst, tc.Policy)
	require.True(t, tc.ClaimOnce)
	require.Equal(t, 0.1, tc.ProcessNoise)

	p := s.Params(0.1)
	require.Equal(t, float64(1800), p.Sensitivity)
	require.Equal(t, float32(100), p.Range)
	require.Equal(t, float64(1500), p.AreaThreshold)
	require.Equal(t, 3, p.AlertLevel)

	require.Equal(t, 50*time.Millisecond, s.FrameInterval())
	require.Equal(t, 5*time.Second, s.Cooldown())
}

func TestSaveAndReadSettings(t *testing.T) {

	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")

	s := DefaultSettings()
	s.Range = 42
	require.NoError(t, SaveSettings(path, s))

	got, err := ReadSettings(path, DefaultSettings())
	require.NoError(t, err)
	require.Equal(t, s, got)

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestStoreUpdate(t *testing.T) {

	var persisted []Settings

	store, err := NewStore(DefaultSettings(), func(s Settings) error {
		persisted = append(persisted, s)
		return nil
	})
	require.NoError(t, err)

	got, err := store.Update(func(s *Settings) { s.Sensitivity = 500 })
	require.NoError(t, err)
	require.Equal(t, 500, got.Sensitivity)
	require.Equal(t, 500, store.Snapshot().Sensitivity)
	require.Len(t, persisted, 1)

	// invalid update leaves the settings untouched and is not persisted
	_, err = store.Update(func(s *Settings) { s.Range = -1 })
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Equal(t, 100, store.Snapshot().Range)
	require.Len(t, persisted, 1)

	got, err = store.ToggleCamera()
	require.NoError(t, err)
	require.False(t, got.CameraEnabled)
	require.False(t, store.Snapshot().CameraEnabled)
}

func TestStorePersistFailure(t *testing.T) {

	fail := errors.New("disk full")

	store, err := NewStore(DefaultSettings(), func(Settings) error { return fail })
	require.NoError(t, err)

	_, err = store.Update(func(s *Settings) { *s = Settings{} })
	require.Error(t, err)

	_, err = store.Update(func(s *Settings) { s.Sleep = 30 })
	require.ErrorIs(t, err, fail)
	require.Equal(t, 5, store.Snapshot().Sleep)
}

func TestStoreApply(t *testing.T) {

	store, err := NewStore(DefaultSettings(), nil)
	require.NoError(t, err)

	bad := errors.New("bad body")

	_, err = store.Apply(func(s *Settings) error {
		s.Sensitivity = 10
		return bad
	})
	require.ErrorIs(t, err, bad)
	require.Equal(t, 1800, store.Snapshot().Sensitivity)

	_, err = store.ToggleCamera()
	require.NoError(t, err)

	// fn sees the latest published settings, not an earlier snapshot
	got, err := store.Apply(func(s *Settings) error {
		require.False(t, s.CameraEnabled)
		s.Sensitivity = 10
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 10, got.Sensitivity)
	require.False(t, got.CameraEnabled)
}

func TestNewStoreRejectsInvalid(t *testing.T) {

	s := DefaultSettings()
	s.FPS = 0

	_, err := NewStore(s, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFilePersister(t *testing.T) {

	path := filepath.Join(t.TempDir(), "settings.yaml")

	store, err := NewStore(DefaultSettings(), FilePersister(path))
	require.NoError(t, err)

	_, err = store.Update(func(s *Settings) { s.AreaThreshold = 2500 })
	require.NoError(t, err)

	got, err := ReadSettings(path, Settings{})
	require.NoError(t, err)
	require.Equal(t, 2500, got.AreaThreshold)
}
