package command

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/joygram/flowOSD-sub000/internal/acpi"
	"github.com/joygram/flowOSD-sub000/internal/hidio"
)

// Built-in command names. They are the values stored in the hotkeys config.
const (
	PerformanceMode  = "performance-mode"
	GpuMode          = "gpu-mode"
	Boost            = "boost"
	Backlight        = "backlight"
	Touchpad         = "touchpad"
	ChargeLimit      = "charge-limit"
	StartWithWindows = "start-with-windows"
	Launch           = "launch"
)

// Firmware is the ACPI surface the firmware commands drive.
type Firmware interface {
	SetPerformanceMode(m acpi.PerformanceMode) error
	CyclePerformanceMode() error
	SetGpuMode(m acpi.GpuMode) error
	ToggleGpuMode() error
	SetChargeLimit(pct int) error
}

type Booster interface {
	ToggleBoost() error
}

type Keyboard interface {
	SetBacklight(l hidio.BacklightLevel) error
	BacklightUp() error
	BacklightDown() error
	ToggleTouchpad() error
}

// Startup toggles launching at logon.
type Startup interface {
	SetStartWithWindows(on bool) error
}

// Deps carries the bridges present at runtime. A nil field leaves the
// commands that need it unregistered, so hotkeys bound to them stay idle.
type Deps struct {
	Firmware Firmware
	Power    Booster
	Keyboard Keyboard
	Startup  Startup
	// Start launches a process without waiting for it. Defaults to os/exec.
	Start func(name string, args ...string) error
}

// RegisterBuiltins registers every built-in whose dependency is present.
func RegisterBuiltins(d *Directory, deps Deps) {
	if fw := deps.Firmware; fw != nil {
		d.Register(New(PerformanceMode, "Set or cycle the performance mode (default, turbo, silent)", func(p string) error {
			if p == "" {
				return fw.CyclePerformanceMode()
			}
			m, err := acpi.ParsePerformanceMode(p)
			if err != nil {
				return err
			}
			return fw.SetPerformanceMode(m)
		}))
		d.Register(New(GpuMode, "Set or toggle the discrete GPU (on, eco)", func(p string) error {
			if p == "" {
				return fw.ToggleGpuMode()
			}
			m, err := acpi.ParseGpuMode(p)
			if err != nil {
				return err
			}
			return fw.SetGpuMode(m)
		}))
		d.Register(Settings(ChargeLimit, "Limit battery charge to a percentage (40-100)", func(p string) error {
			pct, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(p), "%"))
			if err != nil {
				return fmt.Errorf("charge limit %q: %w", p, err)
			}
			return fw.SetChargeLimit(pct)
		}))
	}

	if pw := deps.Power; pw != nil {
		d.Register(New(Boost, "Toggle processor boost", func(string) error {
			return pw.ToggleBoost()
		}))
	}

	if kb := deps.Keyboard; kb != nil {
		d.Register(New(Backlight, "Keyboard backlight (up, down, 0-3)", func(p string) error {
			switch strings.ToLower(strings.TrimSpace(p)) {
			case "", "up":
				return kb.BacklightUp()
			case "down":
				return kb.BacklightDown()
			}
			l, err := hidio.ParseBacklight(p)
			if err != nil {
				return err
			}
			return kb.SetBacklight(l)
		}))
		d.Register(New(Touchpad, "Toggle the touchpad", func(string) error {
			return kb.ToggleTouchpad()
		}))
	}

	if st := deps.Startup; st != nil {
		d.Register(Settings(StartWithWindows, "Start at logon (on, off)", func(p string) error {
			on, err := parseSwitch(p)
			if err != nil {
				return err
			}
			return st.SetStartWithWindows(on)
		}))
	}

	start := deps.Start
	if start == nil {
		start = func(name string, args ...string) error {
			return exec.Command(name, args...).Start()
		}
	}
	d.Register(New(Launch, "Start a program; parameter is the command line", func(p string) error {
		args := SplitCommandLine(p)
		if len(args) == 0 {
			return errors.New("launch: empty command line")
		}
		return start(args[0], args[1:]...)
	}))
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("want on or off, got %q", s)
}

// SplitCommandLine splits on spaces outside double quotes. Quotes are
// removed; there is no escaping, matching how paths are written in settings.
func SplitCommandLine(s string) []string {
	var (
		args   []string
		cur    strings.Builder
		quoted bool
		open   bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			open = true
		case (r == ' ' || r == '\t') && !quoted:
			if open {
				args = append(args, cur.String())
				cur.Reset()
				open = false
			}
		default:
			cur.WriteRune(r)
			open = true
		}
	}
	if open {
		args = append(args, cur.String())
	}
	return args
}
