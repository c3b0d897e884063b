package hidio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/stream"
)

// ErrRejected is returned when the keyboard refuses a feature write.
var ErrRejected = errors.New("hid: feature write rejected")

// BacklightLevel is the keyboard brightness step.
type BacklightLevel byte

const (
	BacklightOff BacklightLevel = iota
	BacklightLow
	BacklightMedium
	BacklightHigh
)

// ClampBacklight limits l to [BacklightOff, BacklightHigh].
func ClampBacklight(l int) BacklightLevel {
	switch {
	case l < int(BacklightOff):
		return BacklightOff
	case l > int(BacklightHigh):
		return BacklightHigh
	}
	return BacklightLevel(l)
}

func (l BacklightLevel) String() string {
	switch l {
	case BacklightOff:
		return "off"
	case BacklightLow:
		return "low"
	case BacklightMedium:
		return "medium"
	case BacklightHigh:
		return "high"
	}
	return strconv.Itoa(int(l))
}

// ParseBacklight accepts a level name or number.
func ParseBacklight(s string) (BacklightLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for l := BacklightOff; l <= BacklightHigh; l++ {
		if s == l.String() {
			return l, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("backlight level %q: %w", s, err)
	}
	return ClampBacklight(n), nil
}

// FeatureWriter is the part of Channel the keyboard controls use.
type FeatureWriter interface {
	WriteFeature(reportID byte, payload ...byte) bool
}

// Keyboard drives backlight and touchpad through feature reports.
type Keyboard struct {
	ch  FeatureWriter
	log zerolog.Logger

	backlight *stream.Subject[BacklightLevel]
	touchpad  *stream.Subject[bool]
}

// NewKeyboard applies the persisted backlight level.
func NewKeyboard(ch FeatureWriter, initial BacklightLevel, log zerolog.Logger) *Keyboard {
	k := &Keyboard{
		ch:        ch,
		log:       log.With().Str("component", "keyboard").Logger(),
		backlight: stream.NewSubject[BacklightLevel](),
		touchpad:  stream.NewSubject[bool](),
	}
	if err := k.SetBacklight(initial); err != nil {
		k.log.Warn().Err(err).Stringer("level", initial).Msg("initial backlight")
	}
	return k
}

// Backlight is the confirmed backlight level.
func (k *Keyboard) Backlight() *stream.Subject[BacklightLevel] { return k.backlight }

// Touchpad is true while the touchpad is enabled. It stays empty until the
// first toggle or touchpad notification.
func (k *Keyboard) Touchpad() *stream.Subject[bool] { return k.touchpad }

// SetBacklight clamps l and writes it.
func (k *Keyboard) SetBacklight(l BacklightLevel) error {
	l = ClampBacklight(int(l))
	if !k.ch.WriteFeature(ReportID, 0xBA, 0xC5, 0xC4, byte(l)) {
		return fmt.Errorf("%w: backlight %s", ErrRejected, l)
	}
	k.backlight.Publish(l)
	return nil
}

// ApplyBacklight writes l without publishing it, for the idle timeout that
// darkens the keyboard without changing the chosen level.
func (k *Keyboard) ApplyBacklight(l BacklightLevel) error {
	l = ClampBacklight(int(l))
	if !k.ch.WriteFeature(ReportID, 0xBA, 0xC5, 0xC4, byte(l)) {
		return fmt.Errorf("%w: backlight %s", ErrRejected, l)
	}
	return nil
}

func (k *Keyboard) current() BacklightLevel {
	l, _ := k.backlight.Value()
	return l
}

func (k *Keyboard) BacklightUp() error {
	return k.SetBacklight(ClampBacklight(int(k.current()) + 1))
}

func (k *Keyboard) BacklightDown() error {
	return k.SetBacklight(ClampBacklight(int(k.current()) - 1))
}

// ReapplyBacklight rewrites the current level, used after a wake.
func (k *Keyboard) ReapplyBacklight() error {
	return k.SetBacklight(k.current())
}

// ToggleTouchpad flips the touchpad.
func (k *Keyboard) ToggleTouchpad() error {
	if !k.ch.WriteFeature(ReportID, 0xF4, 0x6B) {
		return fmt.Errorf("%w: touchpad toggle", ErrRejected)
	}
	if on, ok := k.touchpad.Value(); ok {
		k.touchpad.Publish(!on)
	}
	return nil
}

// SetTouchpadState records the state reported by the touchpad notification.
func (k *Keyboard) SetTouchpadState(enabled bool) {
	k.touchpad.Publish(enabled)
}
