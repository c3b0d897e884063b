package acpi

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedValue is returned when firmware reports a value outside the
// known set, or a caller asks for one.
var ErrUnsupportedValue = errors.New("unsupported value")

// PerformanceMode is the firmware thermal policy.
type PerformanceMode uint32

const (
	PerformanceDefault PerformanceMode = 0
	PerformanceTurbo   PerformanceMode = 1
	PerformanceSilent  PerformanceMode = 2
)

func (m PerformanceMode) Valid() bool { return m <= PerformanceSilent }

// Next returns the mode that follows m in the hotkey cycle.
func (m PerformanceMode) Next() PerformanceMode {
	switch m {
	case PerformanceDefault:
		return PerformanceTurbo
	case PerformanceTurbo:
		return PerformanceSilent
	default:
		return PerformanceDefault
	}
}

func (m PerformanceMode) String() string {
	switch m {
	case PerformanceDefault:
		return "default"
	case PerformanceTurbo:
		return "turbo"
	case PerformanceSilent:
		return "silent"
	}
	return fmt.Sprintf("PerformanceMode(%d)", uint32(m))
}

// ParsePerformanceMode accepts the names String returns.
func ParsePerformanceMode(s string) (PerformanceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "default", "balanced":
		return PerformanceDefault, nil
	case "turbo":
		return PerformanceTurbo, nil
	case "silent":
		return PerformanceSilent, nil
	}
	return 0, fmt.Errorf("%w: performance mode %q", ErrUnsupportedValue, s)
}

func performanceModeFromFirmware(v int32) (PerformanceMode, error) {
	m := PerformanceMode(v)
	if v < 0 || !m.Valid() {
		return 0, fmt.Errorf("%w: performance mode %d", ErrUnsupportedValue, v)
	}
	return m, nil
}

// GpuMode is the raw eco flag of the discrete GPU.
type GpuMode uint32

const (
	GpuEnabled GpuMode = 0
	GpuEco     GpuMode = 1
)

func (m GpuMode) Valid() bool { return m == GpuEnabled || m == GpuEco }

func (m GpuMode) String() string {
	switch m {
	case GpuEnabled:
		return "on"
	case GpuEco:
		return "eco"
	}
	return fmt.Sprintf("GpuMode(%d)", uint32(m))
}

// ParseGpuMode accepts "on"/"enabled" and "eco"/"off".
func ParseGpuMode(s string) (GpuMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "enabled":
		return GpuEnabled, nil
	case "eco", "off", "disabled":
		return GpuEco, nil
	}
	return 0, fmt.Errorf("%w: gpu mode %q", ErrUnsupportedValue, s)
}

func gpuModeFromFirmware(v int32) (GpuMode, error) {
	m := GpuMode(v)
	if v < 0 || !m.Valid() {
		return 0, fmt.Errorf("%w: gpu eco flag %d", ErrUnsupportedValue, v)
	}
	return m, nil
}

// Notification is an ACPI event code delivered through the ATK driver.
type Notification uint32

const (
	NotifyUnknown       Notification = 0
	NotifyACPlugged     Notification = 0x57
	NotifyACUnplugged   Notification = 0x58
	NotifyTouchpad      Notification = 0x6B
	NotifyTabletMode    Notification = 0xBD
	NotifyBacklightUp   Notification = 0xC4
	NotifyBacklightDown Notification = 0xC5
)

var notificationNames = map[Notification]string{
	NotifyACPlugged:     "ac-plugged",
	NotifyACUnplugged:   "ac-unplugged",
	NotifyTouchpad:      "touchpad",
	NotifyTabletMode:    "tablet-mode",
	NotifyBacklightUp:   "backlight-up",
	NotifyBacklightDown: "backlight-down",
}

func (n Notification) Known() bool {
	_, ok := notificationNames[n]
	return ok
}

func (n Notification) String() string {
	if s, ok := notificationNames[n]; ok {
		return s
	}
	return fmt.Sprintf("0x%02x", uint32(n))
}
