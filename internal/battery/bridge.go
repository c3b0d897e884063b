package battery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/joygram/flowOSD-sub000/internal/device"
	"github.com/joygram/flowOSD-sub000/internal/stream"
)

// ErrNoBattery means no enumerated battery carries the expected name.
var ErrNoBattery = errors.New("no matching battery")

// Transport enumerates battery device interfaces and opens them.
type Transport interface {
	Enumerate() ([]string, error)
	Open(path string) (device.Control, error)
}

// Status is one battery reading.
type Status struct {
	PowerState PowerState `json:"powerState"`
	// Capacity and FullChargedCapacity are in mWh.
	Capacity            uint32 `json:"capacity"`
	FullChargedCapacity uint32 `json:"fullChargedCapacity"`
	// Voltage in mV.
	Voltage uint32 `json:"voltage"`
	// Rate in mW: negative while discharging. Zero when RateKnown is false.
	Rate      int32 `json:"rate"`
	RateKnown bool  `json:"rateKnown"`
	// EstimatedTime is the driver's remaining run time, zero when unknown.
	EstimatedTime time.Duration `json:"estimatedTime"`
	At            time.Time     `json:"at"`
}

func (s Status) Charging() bool    { return s.PowerState.Has(PowerCharging) }
func (s Status) Discharging() bool { return s.PowerState.Has(PowerDischarging) }
func (s Status) OnAC() bool        { return s.PowerState.Has(PowerOnline) }

// Percent is the charge level in [0, 100], or -1 when unknown.
func (s Status) Percent() int {
	if s.FullChargedCapacity == 0 || s.Capacity == unknownValue {
		return -1
	}
	p := int(uint64(s.Capacity) * 100 / uint64(s.FullChargedCapacity))
	return min(p, 100)
}

// Identity describes the selected battery.
type Identity struct {
	Path         string      `json:"path"`
	DeviceName   string      `json:"deviceName"`
	Manufacturer string      `json:"manufacturer"`
	Info         Information `json:"info"`
}

// Bridge owns the handle of the battery whose device name matches.
type Bridge struct {
	tr   Transport
	name string
	log  zerolog.Logger
	now  func() time.Time

	mu     sync.Mutex
	ctrl   device.Control
	tag    uint32
	id     Identity
	closed bool

	status *stream.Subject[Status]
	kick   chan struct{}
}

// New finds the battery named name. It fails with ErrNoBattery (which also
// matches device.ErrUnsupported) when none matches.
func New(tr Transport, name string, log zerolog.Logger) (*Bridge, error) {
	b := &Bridge{
		tr:     tr,
		name:   name,
		log:    log.With().Str("component", "battery").Logger(),
		now:    time.Now,
		status: stream.NewSubject[Status](),
		kick:   make(chan struct{}, 1),
	}
	if err := b.acquire(); err != nil {
		return nil, err
	}
	b.log.Info().
		Str("path", b.id.Path).
		Str("manufacturer", b.id.Manufacturer).
		Uint32("designed", b.id.Info.DesignedCapacity).
		Uint32("cycles", b.id.Info.CycleCount).
		Msg("battery selected")
	return b, nil
}

// Identity returns the selected battery's static information.
func (b *Bridge) Identity() Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.id
}

// Status carries every successful reading.
func (b *Bridge) Status() *stream.Subject[Status] { return b.status }

// acquire enumerates batteries and keeps the first whose device name
// matches exactly. Callers hold mu or own b exclusively.
func (b *Bridge) acquire() error {
	paths, err := b.tr.Enumerate()
	if err != nil {
		return fmt.Errorf("enumerate batteries: %w", err)
	}
	var errs error
	for _, path := range paths {
		ctrl, err := b.tr.Open(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		id, tag, err := identify(ctrl)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
			_ = ctrl.Close()
			continue
		}
		if id.DeviceName != b.name {
			b.log.Debug().Str("path", path).Str("name", id.DeviceName).Msg("battery skipped")
			_ = ctrl.Close()
			continue
		}
		id.Path = path
		b.ctrl, b.tag, b.id = ctrl, tag, id
		return nil
	}
	if errs != nil {
		b.log.Debug().Err(errs).Msg("battery enumeration errors")
	}
	return fmt.Errorf("%w: %w: %q", device.ErrUnsupported, ErrNoBattery, b.name)
}

func identify(ctrl device.Control) (Identity, uint32, error) {
	tag, err := queryTag(ctrl)
	if err != nil {
		return Identity{}, 0, err
	}
	raw, err := ctrl.Execute(device.IoctlBatteryQueryInformation, encodeQueryInformation(tag, LevelInformation, 0), informationSize)
	if err != nil {
		return Identity{}, 0, err
	}
	info, err := decodeInformation(raw)
	if err != nil {
		return Identity{}, 0, err
	}
	name, err := queryString(ctrl, tag, LevelDeviceName)
	if err != nil {
		return Identity{}, 0, err
	}
	// Not every driver reports a manufacturer.
	mfr, _ := queryString(ctrl, tag, LevelManufactureName)
	return Identity{DeviceName: name, Manufacturer: mfr, Info: info}, tag, nil
}

func queryTag(ctrl device.Control) (uint32, error) {
	raw, err := ctrl.Execute(device.IoctlBatteryQueryTag, encodeTagQuery(0), 4)
	if err != nil {
		return 0, err
	}
	tag, err := decodeULong(raw)
	if err != nil {
		return 0, err
	}
	if tag == 0 {
		return 0, &device.IOError{Op: "battery tag", Code: device.CodeNoSuchDevice}
	}
	return tag, nil
}

func queryString(ctrl device.Control, tag uint32, level InfoLevel) (string, error) {
	raw, err := ctrl.Execute(device.IoctlBatteryQueryInformation, encodeQueryInformation(tag, level, 0), stringBufferSize)
	if err != nil {
		return "", err
	}
	return decodeString(raw), nil
}

// Update queries the status. When the handle has gone stale (batteries
// re-enumerate across sleep) the battery is re-acquired by name and the
// query retried once.
func (b *Bridge) Update() (Status, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Status{}, &device.IOError{Op: "battery status", Code: device.CodeInvalidHandle}
	}
	st, err := b.queryStatus()
	if device.IsInvalidHandle(err) {
		b.log.Info().Err(err).Msg("[RECONNECT] battery handle invalid, re-enumerating")
		if b.ctrl != nil {
			_ = b.ctrl.Close()
			b.ctrl = nil
		}
		if aerr := b.acquire(); aerr != nil {
			b.mu.Unlock()
			return Status{}, multierr.Append(err, aerr)
		}
		st, err = b.queryStatus()
	}
	b.mu.Unlock()
	if err != nil {
		return Status{}, err
	}
	b.status.Publish(st)
	return st, nil
}

func (b *Bridge) queryStatus() (Status, error) {
	if b.ctrl == nil {
		return Status{}, &device.IOError{Op: "battery status", Code: device.CodeInvalidHandle}
	}
	raw, err := b.ctrl.Execute(device.IoctlBatteryQueryStatus, encodeWaitStatus(b.tag, 0, 0, 0, 0), statusSize)
	if err != nil {
		return Status{}, err
	}
	rs, err := decodeStatus(raw)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		PowerState:          rs.PowerState,
		Capacity:            rs.Capacity,
		FullChargedCapacity: b.id.Info.FullChargedCapacity,
		Voltage:             rs.Voltage,
		At:                  b.now(),
	}
	if full := st.FullChargedCapacity; full > 0 && st.Capacity != unknownValue && st.Capacity > full {
		st.Capacity = full
	}
	if rs.Rate != unknownRate {
		st.Rate, st.RateKnown = int32(rs.Rate), true
	}
	if st.Discharging() {
		st.EstimatedTime = b.queryEstimatedTime()
	}
	return st, nil
}

func (b *Bridge) queryEstimatedTime() time.Duration {
	raw, err := b.ctrl.Execute(device.IoctlBatteryQueryInformation, encodeQueryInformation(b.tag, LevelEstimatedTime, 0), 4)
	if err != nil || len(raw) < 4 {
		return 0
	}
	secs, _ := decodeULong(raw)
	if secs == unknownValue {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Kick asks a running poller for an immediate update.
func (b *Bridge) Kick() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Poll updates every interval and on Kick until ctx is done. Failures are
// logged; the next tick tries again.
func (b *Bridge) Poll(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := b.Update(); err != nil {
			b.log.Warn().Err(err).Msg("battery update failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		case <-b.kick:
		}
	}
}

// Close releases the handle. Only the first call does any work.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.ctrl == nil {
		return nil
	}
	return b.ctrl.Close()
}
