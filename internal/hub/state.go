package hub

import (
	"github.com/joygram/flowOSD-sub000/internal/acpi"
	"github.com/joygram/flowOSD-sub000/internal/battery"
	"github.com/joygram/flowOSD-sub000/internal/hidio"
	"github.com/joygram/flowOSD-sub000/internal/power"
	"github.com/joygram/flowOSD-sub000/internal/stream"
)

// BatteryState is the battery part of State.
type BatteryState struct {
	Percent       int     `json:"percent"`
	Charging      bool    `json:"charging"`
	OnAC          bool    `json:"onAc"`
	RateMilliwatt int32   `json:"rateMilliwatts"`
	RateKnown     bool    `json:"rateKnown"`
	EstimatedMin  float64 `json:"estimatedMinutes,omitempty"`
	PowerState    string  `json:"powerState"`
}

// State is the current value of every present stream. Fields of absent
// or not yet reported streams are omitted.
type State struct {
	PerformanceMode *string       `json:"performanceMode,omitempty"`
	GpuEnabled      *bool         `json:"gpuEnabled,omitempty"`
	TabletMode      *bool         `json:"tabletMode,omitempty"`
	Boost           *bool         `json:"boost,omitempty"`
	PowerSource     *string       `json:"powerSource,omitempty"`
	PowerMode       *string       `json:"powerMode,omitempty"`
	BatterySaver    *bool         `json:"batterySaver,omitempty"`
	DisplayOn       *bool         `json:"displayOn,omitempty"`
	Touchpad        *bool         `json:"touchpad,omitempty"`
	Backlight       *string       `json:"backlight,omitempty"`
	RefreshRate     *int          `json:"refreshRate,omitempty"`
	Battery         *BatteryState `json:"battery,omitempty"`
	Fans            *FanSpeeds    `json:"fans,omitempty"`
	Version         uint64        `json:"version"`
}

func current[T, R any](s *stream.Subject[T], f func(T) R) *R {
	if s == nil {
		return nil
	}
	v, ok := s.Value()
	if !ok {
		return nil
	}
	r := f(v)
	return &r
}

func same[T any](v T) T { return v }

// Snapshot reads the current value of every source.
func (h *Hub) Snapshot() State {
	h.mu.Lock()
	src := h.src
	h.mu.Unlock()

	return State{
		PerformanceMode: current(src.Performance, acpi.PerformanceMode.String),
		GpuEnabled:      current(src.GpuEnabled, same[bool]),
		TabletMode:      current(src.TabletMode, same[bool]),
		Boost:           current(src.Boost, same[bool]),
		PowerSource:     current(src.PowerSource, power.Source.String),
		PowerMode:       current(src.PowerMode, power.Mode.String),
		BatterySaver:    current(src.BatterySaver, same[bool]),
		DisplayOn:       current(src.DisplayOn, same[bool]),
		Touchpad:        current(src.Touchpad, same[bool]),
		Backlight:       current(src.Backlight, hidio.BacklightLevel.String),
		RefreshRate:     current(src.RefreshRate, same[int]),
		Battery:         current(src.Battery, batteryState),
		Fans:            current(src.Fans, same[FanSpeeds]),
		Version:         h.journal.Version(),
	}
}

func batteryState(s battery.Status) BatteryState {
	return BatteryState{
		Percent:       s.Percent(),
		Charging:      s.Charging(),
		OnAC:          s.OnAC(),
		RateMilliwatt: s.Rate,
		RateKnown:     s.RateKnown,
		EstimatedMin:  s.EstimatedTime.Minutes(),
		PowerState:    s.PowerState.String(),
	}
}
