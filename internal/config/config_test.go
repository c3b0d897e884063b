package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joygram/flowOSD-sub000/internal/hotkey"
)

func TestMissingFileYieldsDefaultsAndIsCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowOSD", "settings.json")
	s, err := Load(path, zerolog.Nop())
	require.NoError(t, err)

	st := s.Settings()
	assert.Equal(t, "info", st.LogLevel)
	assert.Equal(t, "127.0.0.1:8765", st.HTTPAddr)
	assert.Equal(t, "ASUS Battery", st.BatteryName)
	assert.Equal(t, 30*time.Second, st.BatteryPollInterval)
	assert.Equal(t, 50*time.Millisecond, st.NotificationDebounce)
	assert.Equal(t, 2*time.Second, st.PowerSourceDebounce)
	assert.Equal(t, hotkey.Binding{Command: "performance-mode"}, st.Hotkeys["rog"])

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestFileValuesAndNormalization(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "keyboard_backlight": 9,
  "low_battery_threshold": 15,
  "critical_battery_threshold": 30,
  "backlight_timeout": "45s",
  "hotkeys": {"Aura": {"command": "launch", "parameter": "notepad.exe"}}
}`), 0o644))

	s, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	st := s.Settings()
	assert.Equal(t, 3, st.KeyboardBacklight)
	assert.Equal(t, 15, st.LowBatteryThreshold)
	assert.Equal(t, 14, st.CriticalBatteryThreshold)
	assert.Equal(t, 45*time.Second, st.BacklightTimeout)
	assert.Equal(t, map[string]hotkey.Binding{"aura": {Command: "launch", Parameter: "notepad.exe"}}, st.Hotkeys,
		"a hotkeys section replaces the default bindings")
}

func TestBrokenFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level":`), 0o644))
	_, err := Load(path, zerolog.Nop())
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FLOWOSD_HTTP_ADDR", "127.0.0.1:9999")
	s, err := Load(filepath.Join(t.TempDir(), "settings.json"), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", s.Settings().HTTPAddr)
}

func TestSetPersistsAndPublishes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := Load(path, zerolog.Nop())
	require.NoError(t, err)

	var seen []Settings
	cancel := s.Current().Subscribe(func(st Settings) { seen = append(seen, st) })
	defer cancel()

	require.NoError(t, s.SetBacklight(1))
	require.NoError(t, s.SetBacklight(1))
	require.NoError(t, s.SetHotkey("Rog", hotkey.Binding{}))
	require.NoError(t, s.SetHotkey("Aura", hotkey.Binding{Command: "boost"}))
	assert.Len(t, seen, 4, "snapshot plus three changes")

	again, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	st := again.Settings()
	assert.Equal(t, 1, st.KeyboardBacklight)
	assert.Equal(t, hotkey.Binding{}, st.Hotkeys["rog"])
	assert.Equal(t, hotkey.Binding{Command: "boost"}, st.Hotkeys["aura"])
	assert.Equal(t, hotkey.Binding{Command: "gpu-mode"}, st.Hotkeys["fan"])
}

func TestWatchPicksUpEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"notifications_enabled": true}`), 0o644))
	s, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	s.Watch()

	require.NoError(t, os.WriteFile(path, []byte(`{"notifications_enabled": false}`), 0o644))
	assert.Eventually(t, func() bool { return !s.Settings().NotificationsEnabled }, 5*time.Second, 20*time.Millisecond)
}

func TestEditsAfterSetStillApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := Load(path, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.SetBacklight(1))
	require.NoError(t, s.SetHotkey("Aura", hotkey.Binding{Command: "boost"}))

	require.NoError(t, os.WriteFile(path, []byte(`{"keyboard_backlight": 3, "hotkeys": {"aura": {"command": "touchpad"}}}`), 0o644))
	require.NoError(t, s.v.ReadInConfig())
	s.reload()

	st := s.Settings()
	assert.Equal(t, 3, st.KeyboardBacklight)
	assert.Equal(t, hotkey.Binding{Command: "touchpad"}, st.Hotkeys["aura"])
}

func TestSetKeepsOtherFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"http_addr": "127.0.0.1:9000", "backlight_timeout": "45s"}`), 0o644))
	t.Setenv("FLOWOSD_LOW_BATTERY_THRESHOLD", "30")
	s, err := Load(path, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.SetStartWithWindows(true))

	again, err := Load(path, zerolog.Nop())
	require.NoError(t, err)
	st := again.Settings()
	assert.True(t, st.StartWithWindows)
	assert.Equal(t, "127.0.0.1:9000", st.HTTPAddr)
	assert.Equal(t, 45*time.Second, st.BacklightTimeout)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "low_battery_threshold", "environment values stay out of the file")
}
