// Package display follows the primary display refresh rate and DPI.
package display

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/stream"
)

// Window messages the monitor consumes.
const (
	WMDisplayChange = 0x007E
	WMDPIChanged    = 0x02E0
)

// DefaultDPI is the 100% scale DPI.
const DefaultDPI = 96

// Mode is the current mode of the primary display.
type Mode struct {
	Width       int `json:"width"`
	Height      int `json:"height"`
	RefreshRate int `json:"refreshRate"`
	BitsPerPel  int `json:"bitsPerPel"`
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%d@%dHz", m.Width, m.Height, m.RefreshRate)
}

// Reader reads the current display mode.
type Reader interface {
	CurrentMode() (Mode, error)
}

// Monitor publishes refresh rate and DPI changes.
type Monitor struct {
	r   Reader
	log zerolog.Logger

	mode    *stream.Subject[Mode]
	refresh *stream.Subject[int]
	dpi     *stream.Subject[int]
}

// New reads the current mode once. A failed read leaves the streams empty.
func New(r Reader, log zerolog.Logger) *Monitor {
	m := &Monitor{
		r:       r,
		log:     log.With().Str("component", "display").Logger(),
		mode:    stream.NewSubject[Mode](),
		refresh: stream.NewSubject[int](),
		dpi:     stream.NewSubject[int](),
	}
	m.HandleDisplayChange()
	return m
}

func (m *Monitor) Mode() *stream.Subject[Mode] { return m.mode }

// RefreshRate is the primary display refresh rate in Hz.
func (m *Monitor) RefreshRate() *stream.Subject[int] { return m.refresh }

func (m *Monitor) DPI() *stream.Subject[int] { return m.dpi }

// HandleDisplayChange re-reads the mode after WM_DISPLAYCHANGE.
func (m *Monitor) HandleDisplayChange() {
	mode, err := m.r.CurrentMode()
	if err != nil {
		m.log.Warn().Err(err).Msg("display mode not readable")
		return
	}
	m.log.Debug().Stringer("mode", mode).Msg("display mode")
	m.mode.Publish(mode)
	m.refresh.Publish(mode.RefreshRate)
}

// HandleDPIChange takes the wParam of WM_DPICHANGED. X and Y DPI are equal
// for the primary display, so only the low word is used.
func (m *Monitor) HandleDPIChange(wParam uintptr) {
	dpi := int(wParam & 0xFFFF)
	if dpi == 0 {
		return
	}
	m.dpi.Publish(dpi)
}

// Scale is the DPI as a percentage of DefaultDPI.
func Scale(dpi int) int {
	return dpi * 100 / DefaultDPI
}
