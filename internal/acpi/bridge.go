// Package acpi talks to the vendor ATK ACPI driver. Every hardware toggle is
// one of two WMI methods, DSTS (get) and DEVS (set), addressed by a 32-bit
// device id.
package acpi

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/device"
	"github.com/joygram/flowOSD-sub000/internal/stream"
)

// DevicePath is the control device exposed by the ATK ACPI driver.
const DevicePath = `\\.\ATKACPI`

// Well-known device ids.
const (
	DevPerformanceMode    uint32 = 0x00120075
	DevGpuEcoMode         uint32 = 0x00090020
	DevTabletMode         uint32 = 0x00060077
	DevCharger            uint32 = 0x0012006C
	DevCpuFan             uint32 = 0x00110013
	DevGpuFan             uint32 = 0x00110014
	DevBatteryChargeLimit uint32 = 0x00120057
)

// FailureHook observes failed control calls.
type FailureHook func(m Method, deviceID uint32, err error)

// Option configures a Bridge.
type Option func(*Bridge)

// WithFailureHook installs h.
func WithFailureHook(h FailureHook) Option {
	return func(b *Bridge) { b.onFailure = h }
}

// Bridge owns the ATK control handle. Calls are serialized: the firmware
// channel does not tolerate concurrent in-flight calls.
type Bridge struct {
	log       zerolog.Logger
	onFailure FailureHook

	mu     sync.Mutex
	ctrl   device.Control
	closed bool

	gpuMu sync.Mutex

	performance   *stream.Subject[PerformanceMode]
	gpuEnabled    *stream.Subject[bool]
	tablet        *stream.Subject[bool]
	notifications *stream.Subject[Notification]
}

// New wraps an open control handle and reads the initial attribute state.
// Attributes that cannot be read start empty; they fill in on the first
// successful write or notification.
func New(ctrl device.Control, log zerolog.Logger, opts ...Option) *Bridge {
	b := &Bridge{
		log:           log.With().Str("component", "acpi").Logger(),
		ctrl:          ctrl,
		performance:   stream.NewSubject[PerformanceMode](),
		gpuEnabled:    stream.NewSubject[bool](),
		tablet:        stream.NewSubject[bool](),
		notifications: stream.NewSubject[Notification](),
	}
	for _, o := range opts {
		o(b)
	}

	if m, err := b.ReadPerformanceMode(); err == nil {
		b.performance.Publish(m)
	} else {
		b.log.Warn().Err(err).Msg("performance mode not readable")
	}
	if m, err := b.ReadGpuMode(); err == nil {
		b.gpuEnabled.Publish(m == GpuEnabled)
	} else {
		b.log.Warn().Err(err).Msg("gpu mode not readable")
	}
	if err := b.RefreshTabletMode(); err != nil {
		b.log.Debug().Err(err).Msg("tablet mode not readable")
	}
	return b
}

// Invoke runs one method call and returns the raw response.
func (b *Bridge) Invoke(m Method, deviceID, value uint32) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, &device.IOError{Op: "acpi " + m.String(), Code: device.CodeInvalidHandle}
	}

	resp, err := b.ctrl.Execute(device.IoctlAtkAcpiFunction, EncodeCall(m, deviceID, value), responseLength)
	if err != nil {
		if b.onFailure != nil {
			b.onFailure(m, deviceID, err)
		}
		return nil, fmt.Errorf("acpi %s 0x%08x: %w", m, deviceID, err)
	}
	return resp, nil
}

// Get returns the status of deviceID with the firmware bias removed.
func (b *Bridge) Get(deviceID uint32) (int32, error) {
	resp, err := b.Invoke(DSTS, deviceID, 0)
	if err != nil {
		return 0, err
	}
	return DecodeStatus(resp)
}

// Set writes value to deviceID.
func (b *Bridge) Set(deviceID, value uint32) error {
	_, err := b.Invoke(DEVS, deviceID, value)
	return err
}

// PerformanceMode is the confirmed performance mode stream.
func (b *Bridge) PerformanceMode() *stream.Subject[PerformanceMode] { return b.performance }

// GpuEnabled is true while the discrete GPU is powered.
func (b *Bridge) GpuEnabled() *stream.Subject[bool] { return b.gpuEnabled }

// TabletMode is true while the hinge is folded into tablet posture.
func (b *Bridge) TabletMode() *stream.Subject[bool] { return b.tablet }

// Notifications carries every ACPI notification code handed to the bridge.
func (b *Bridge) Notifications() *stream.Subject[Notification] { return b.notifications }

// ReadPerformanceMode reads the mode from firmware.
func (b *Bridge) ReadPerformanceMode() (PerformanceMode, error) {
	v, err := b.Get(DevPerformanceMode)
	if err != nil {
		return 0, err
	}
	return performanceModeFromFirmware(v)
}

// SetPerformanceMode writes m and publishes it once the firmware accepted it.
func (b *Bridge) SetPerformanceMode(m PerformanceMode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: performance mode %d", ErrUnsupportedValue, m)
	}
	if err := b.Set(DevPerformanceMode, uint32(m)); err != nil {
		return err
	}
	b.performance.Publish(m)
	return nil
}

// CyclePerformanceMode advances Default -> Turbo -> Silent -> Default.
func (b *Bridge) CyclePerformanceMode() error {
	cur, ok := b.performance.Value()
	if !ok {
		var err error
		if cur, err = b.ReadPerformanceMode(); err != nil {
			return err
		}
	}
	return b.SetPerformanceMode(cur.Next())
}

// ReadGpuMode reads the eco flag from firmware.
func (b *Bridge) ReadGpuMode() (GpuMode, error) {
	v, err := b.Get(DevGpuEcoMode)
	if err != nil {
		return 0, err
	}
	return gpuModeFromFirmware(v)
}

// SetGpuMode re-reads the hardware state first and writes only when it
// differs, so repeating the same request costs one firmware read.
func (b *Bridge) SetGpuMode(m GpuMode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: gpu mode %d", ErrUnsupportedValue, m)
	}
	b.gpuMu.Lock()
	defer b.gpuMu.Unlock()

	cur, err := b.ReadGpuMode()
	if err != nil {
		return err
	}
	if cur == m {
		return nil
	}
	if err := b.Set(DevGpuEcoMode, uint32(m)); err != nil {
		return err
	}
	b.gpuEnabled.Publish(m == GpuEnabled)
	return nil
}

// ToggleGpuMode flips between GpuEnabled and GpuEco.
func (b *Bridge) ToggleGpuMode() error {
	cur, err := b.ReadGpuMode()
	if err != nil {
		return err
	}
	if cur == GpuEnabled {
		return b.SetGpuMode(GpuEco)
	}
	return b.SetGpuMode(GpuEnabled)
}

// RefreshTabletMode re-reads the tablet posture.
func (b *Bridge) RefreshTabletMode() error {
	v, err := b.Get(DevTabletMode)
	if err != nil {
		return err
	}
	b.tablet.Publish(v == 1)
	return nil
}

// Fan selects a fan for FanSpeed.
type Fan int

const (
	CpuFan Fan = iota
	GpuFan
)

func (f Fan) String() string {
	if f == GpuFan {
		return "gpu"
	}
	return "cpu"
}

// FanSpeed returns the fan speed in RPM.
func (b *Bridge) FanSpeed(f Fan) (int, error) {
	id := DevCpuFan
	if f == GpuFan {
		id = DevGpuFan
	}
	v, err := b.Get(id)
	if err != nil {
		return 0, err
	}
	return int(v&0xFFFF) * 100, nil
}

// SetChargeLimit caps charging at pct percent.
func (b *Bridge) SetChargeLimit(pct int) error {
	if pct < 40 || pct > 100 {
		return fmt.Errorf("charge limit %d%%: must be between 40 and 100", pct)
	}
	return b.Set(DevBatteryChargeLimit, uint32(pct))
}

// HandleNotification reacts to an ACPI notification code and republishes it.
// Refresh failures are logged; they never stop the pipeline.
func (b *Bridge) HandleNotification(code Notification) {
	switch code {
	case NotifyTabletMode:
		if err := b.RefreshTabletMode(); err != nil {
			b.log.Warn().Err(err).Msg("refresh tablet mode")
		}
	case NotifyUnknown:
		return
	}
	if !code.Known() {
		b.log.Debug().Uint32("code", uint32(code)).Msg("unhandled acpi notification")
	}
	b.notifications.Publish(code)
}

// Close releases the control handle. Only the first call does any work.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.ctrl.Close()
}
