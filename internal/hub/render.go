package hub

import (
	"fmt"

	"github.com/joygram/flowOSD-sub000/internal/acpi"
	"github.com/joygram/flowOSD-sub000/internal/hidio"
	"github.com/joygram/flowOSD-sub000/internal/notify"
	"github.com/joygram/flowOSD-sub000/internal/power"
	"github.com/joygram/flowOSD-sub000/internal/stream"
)

func renderPerformance(m acpi.PerformanceMode) (notify.Notification, bool) {
	n := notify.Notification{Title: "Performance mode"}
	switch m {
	case acpi.PerformanceTurbo:
		n.Image, n.Text = notify.ImageTurbo, "Turbo"
	case acpi.PerformanceSilent:
		n.Image, n.Text = notify.ImageSilent, "Silent"
	default:
		n.Image, n.Text = notify.ImagePerformance, "Default"
	}
	return n, true
}

func renderGpu(enabled bool) (notify.Notification, bool) {
	if enabled {
		return notify.Notification{Image: notify.ImageGpuOn, Title: "dGPU", Text: "On"}, true
	}
	return notify.Notification{Image: notify.ImageGpuEco, Title: "dGPU", Text: "Eco mode"}, true
}

func renderBoost(on bool) (notify.Notification, bool) {
	if on {
		return notify.Notification{Image: notify.ImageBoostOn, Title: "CPU boost", Text: "On"}, true
	}
	return notify.Notification{Image: notify.ImageBoostOff, Title: "CPU boost", Text: "Off"}, true
}

func renderSource(s power.Source) (notify.Notification, bool) {
	switch s {
	case power.SourceAC:
		return notify.Notification{Image: notify.ImageAC, Title: "Power", Text: "Plugged in"}, true
	case power.SourceDC:
		return notify.Notification{Image: notify.ImageDC, Title: "Power", Text: "On battery"}, true
	}
	return notify.Notification{Image: notify.ImageDC, Title: "Power", Text: "On UPS"}, true
}

// Battery saver overrides the mode it runs under.
func renderPowerMode(p stream.Pair[power.Mode, bool]) (notify.Notification, bool) {
	if p.Second {
		return notify.Notification{Image: notify.ImageBatterySaver, Title: "Power mode", Text: "Battery saver"}, true
	}
	text := map[power.Mode]string{
		power.ModeBestPowerEfficiency: "Best power efficiency",
		power.ModeBalanced:            "Balanced",
		power.ModeBestPerformance:     "Best performance",
	}[p.First]
	if text == "" {
		text = p.First.String()
	}
	return notify.Notification{Image: notify.ImagePowerMode, Title: "Power mode", Text: text}, true
}

// Touchpad changes are silent in tablet mode, where the firmware toggles
// the touchpad itself.
func renderTouchpad(p stream.Pair[bool, bool]) (notify.Notification, bool) {
	if p.Second {
		return notify.Notification{}, false
	}
	if p.First {
		return notify.Notification{Image: notify.ImageTouchpadOn, Title: "Touchpad", Text: "On"}, true
	}
	return notify.Notification{Image: notify.ImageTouchpadOff, Title: "Touchpad", Text: "Off"}, true
}

// Refresh rate changes while the display is off are not shown.
func renderRefreshRate(p stream.Pair[int, bool]) (notify.Notification, bool) {
	if !p.Second || p.First <= 0 {
		return notify.Notification{}, false
	}
	return notify.Notification{Image: notify.ImageRefreshRate, Title: "Refresh rate", Text: fmt.Sprintf("%d Hz", p.First)}, true
}

func renderBacklight(l hidio.BacklightLevel) (notify.Notification, bool) {
	return notify.Notification{Image: notify.ImageBacklight, Title: "Keyboard backlight", Text: l.String()}, true
}
