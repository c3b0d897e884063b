// Package config loads, watches and saves the agent settings file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/joygram/flowOSD-sub000/internal/hotkey"
	"github.com/joygram/flowOSD-sub000/internal/stream"
)

// AppName names the data directory.
const AppName = "flowOSD"

// Settings is the decoded settings file.
type Settings struct {
	LogLevel                 string                    `mapstructure:"log_level"`
	HTTPAddr                 string                    `mapstructure:"http_addr"`
	NotificationsEnabled     bool                      `mapstructure:"notifications_enabled"`
	StartWithWindows         bool                      `mapstructure:"start_with_windows"`
	KeyboardBacklight        int                       `mapstructure:"keyboard_backlight"`
	BacklightTimeout         time.Duration             `mapstructure:"backlight_timeout"`
	BatteryName              string                    `mapstructure:"battery_name"`
	BatteryPollInterval      time.Duration             `mapstructure:"battery_poll_interval"`
	FanPollInterval          time.Duration             `mapstructure:"fan_poll_interval"`
	LowBatteryThreshold      int                       `mapstructure:"low_battery_threshold"`
	CriticalBatteryThreshold int                       `mapstructure:"critical_battery_threshold"`
	NotificationDebounce     time.Duration             `mapstructure:"notification_debounce"`
	PowerSourceDebounce      time.Duration             `mapstructure:"power_source_debounce"`
	Hotkeys                  map[string]hotkey.Binding `mapstructure:"hotkeys"`
}

var defaults = map[string]any{
	"log_level":                  "info",
	"http_addr":                  "127.0.0.1:8765",
	"notifications_enabled":      true,
	"start_with_windows":         false,
	"keyboard_backlight":         2,
	"backlight_timeout":          "0s",
	"battery_name":               "ASUS Battery",
	"battery_poll_interval":      "30s",
	"fan_poll_interval":          "5s",
	"low_battery_threshold":      20,
	"critical_battery_threshold": 10,
	"notification_debounce":      "50ms",
	"power_source_debounce":      "2s",
}

// Hotkeys used until the file has a hotkeys section. They are not viper
// defaults: defaults merge key by key, so a binding could never be dropped.
func defaultHotkeys() map[string]hotkey.Binding {
	return map[string]hotkey.Binding{
		"rog":      {Command: "performance-mode"},
		"fan":      {Command: "gpu-mode"},
		"touchpad": {Command: "touchpad"},
	}
}

// DefaultPath is settings.json in the per-user config directory
// (%APPDATA% on Windows).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName, "settings.json"), nil
}

// Store owns the settings file. Current always holds the last good
// settings.
type Store struct {
	path string
	log  zerolog.Logger

	mu      sync.Mutex
	v       *viper.Viper
	current *stream.Subject[Settings]
}

// Load reads path. A missing file yields the defaults and is created; an
// unreadable one is an error.
func Load(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{
		path:    path,
		log:     log.With().Str("component", "config").Logger(),
		current: stream.NewSubject[Settings](),
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("FLOWOSD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	s.v = v

	missing := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
		missing = true
	}

	st, err := s.decode()
	if err != nil {
		return nil, err
	}
	s.current.Publish(st)

	if missing {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
			err = v.SafeWriteConfigAs(path)
			if err != nil {
				s.log.Warn().Err(err).Str("path", path).Msg("settings file not created")
			}
		}
	}
	return s, nil
}

func (s *Store) decode() (Settings, error) {
	var st Settings
	if err := s.v.Unmarshal(&st); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if !s.v.IsSet("hotkeys") {
		st.Hotkeys = defaultHotkeys()
	}
	return normalize(st), nil
}

func normalize(st Settings) Settings {
	st.KeyboardBacklight = min(max(st.KeyboardBacklight, 0), 3)
	st.LowBatteryThreshold = min(max(st.LowBatteryThreshold, 1), 99)
	if st.CriticalBatteryThreshold >= st.LowBatteryThreshold {
		st.CriticalBatteryThreshold = st.LowBatteryThreshold - 1
	}
	st.CriticalBatteryThreshold = max(st.CriticalBatteryThreshold, 0)
	if st.BatteryPollInterval < time.Second {
		st.BatteryPollInterval = time.Second
	}
	if st.FanPollInterval < time.Second {
		st.FanPollInterval = time.Second
	}
	if st.BacklightTimeout < 0 {
		st.BacklightTimeout = 0
	}
	if st.Hotkeys == nil {
		st.Hotkeys = map[string]hotkey.Binding{}
	}
	return st
}

// Path is the settings file location.
func (s *Store) Path() string { return s.path }

// Current carries the settings, replayed to new subscribers and republished
// whenever they change.
func (s *Store) Current() *stream.Subject[Settings] { return s.current }

// Settings returns the current settings.
func (s *Store) Settings() Settings {
	st, _ := s.current.Value()
	return st
}

// Watch republishes the settings whenever the file changes on disk. Decode
// errors keep the previous settings.
func (s *Store) Watch() {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		s.log.Debug().Str("op", e.Op.String()).Msg("settings file changed")
		s.reload()
	})
	s.v.WatchConfig()
}

func (s *Store) reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.decode()
	if err != nil {
		s.log.Warn().Err(err).Msg("settings not reloaded")
		return
	}
	s.publish(st)
}

func (s *Store) publish(st Settings) {
	if prev, ok := s.current.Value(); ok && reflect.DeepEqual(prev, st) {
		return
	}
	s.current.Publish(st)
}

// SetBacklight records the keyboard backlight level.
func (s *Store) SetBacklight(level int) error {
	return s.set("keyboard_backlight", level)
}

// SetStartWithWindows records the startup preference.
func (s *Store) SetStartWithWindows(on bool) error {
	return s.set("start_with_windows", on)
}

// SetHotkey binds key. An empty command unbinds it; the entry stays in the
// file so file values and defaults cannot shadow the change.
func (s *Store) SetHotkey(key string, b hotkey.Binding) error {
	st := s.Settings()
	hk := make(map[string]any, len(st.Hotkeys)+1)
	for k, v := range st.Hotkeys {
		hk[strings.ToLower(k)] = map[string]any{"command": v.Command, "parameter": v.Parameter}
	}
	hk[strings.ToLower(key)] = map[string]any{"command": b.Command, "parameter": b.Parameter}
	return s.set("hotkeys", hk)
}

// set writes key into the file and reloads from it. The live instance
// never holds an override, so later edits on disk still win.
func (s *Store) set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	onDisk, err := s.fileSettings()
	if err != nil {
		return err
	}
	onDisk[key] = value

	w := viper.New()
	w.SetConfigType("json")
	for k, v := range onDisk {
		w.Set(k, v)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := w.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("save settings %s: %w", s.path, err)
	}

	if err := s.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read settings %s: %w", s.path, err)
	}
	st, err := s.decode()
	if err != nil {
		return err
	}
	s.publish(st)
	return nil
}

// fileSettings returns only what the file holds, without defaults or
// environment overrides. A missing file is empty.
func (s *Store) fileSettings() (map[string]any, error) {
	r := viper.New()
	r.SetConfigFile(s.path)
	r.SetConfigType("json")
	if err := r.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read settings %s: %w", s.path, err)
	}
	return r.AllSettings(), nil
}
