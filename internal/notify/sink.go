// Package notify delivers on-screen notifications and decides when battery
// levels deserve one.
package notify

import (
	"sync"

	"github.com/rs/zerolog"
)

// Image selects the glyph shown with a notification.
type Image int

const (
	ImageNone Image = iota
	ImagePerformance
	ImageTurbo
	ImageSilent
	ImageGpuOn
	ImageGpuEco
	ImageBoostOn
	ImageBoostOff
	ImageAC
	ImageDC
	ImageBatterySaver
	ImagePowerMode
	ImageTouchpadOn
	ImageTouchpadOff
	ImageRefreshRate
	ImageBacklight
	ImageBatteryLow
	ImageBatteryCritical
	ImageBatteryFull
)

var imageNames = [...]string{
	"none", "performance", "turbo", "silent", "gpu-on", "gpu-eco", "boost-on",
	"boost-off", "ac", "dc", "battery-saver", "power-mode", "touchpad-on",
	"touchpad-off", "refresh-rate", "backlight", "battery-low",
	"battery-critical", "battery-full",
}

func (i Image) String() string {
	if i >= 0 && int(i) < len(imageNames) {
		return imageNames[i]
	}
	return "unknown"
}

// Notification is one message for the sink.
type Notification struct {
	Image    Image  `json:"image"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Critical bool   `json:"critical,omitempty"`
}

// Sink renders notifications. Show must not block.
type Sink interface {
	Show(n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notification)

func (f SinkFunc) Show(n Notification) { f(n) }

// LogSink writes notifications to the log.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Show(n Notification) {
	ev := s.Log.Info()
	if n.Critical {
		ev = s.Log.Warn()
	}
	ev.Str("image", n.Image.String()).Str("title", n.Title).Msg("[NOTIF] " + n.Text)
}

// Switch forwards to its sink only while enabled.
type Switch struct {
	mu      sync.Mutex
	enabled bool
	sink    Sink
}

func NewSwitch(sink Sink, enabled bool) *Switch {
	return &Switch{sink: sink, enabled: enabled}
}

func (s *Switch) SetEnabled(on bool) {
	s.mu.Lock()
	s.enabled = on
	s.mu.Unlock()
}

func (s *Switch) Show(n Notification) {
	s.mu.Lock()
	on := s.enabled
	s.mu.Unlock()
	if on {
		s.sink.Show(n)
	}
}

// Tee shows every notification on each sink in order.
type Tee []Sink

func (t Tee) Show(n Notification) {
	for _, s := range t {
		s.Show(n)
	}
}
