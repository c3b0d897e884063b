package power

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/joygram/flowOSD-sub000/internal/stream"
)

// Registration is a native notification registration.
type Registration interface {
	Close() error
}

// API is the OS power management surface the bridge needs.
type API interface {
	ActiveScheme() (uuid.UUID, error)
	SetActiveScheme(scheme uuid.UUID) error
	ReadValueIndex(scheme, subgroup, setting uuid.UUID, ac bool) (uint32, error)
	WriteValueIndex(scheme, subgroup, setting uuid.UUID, ac bool, value uint32) error
	// OnAC reports the power source at call time.
	OnAC() (bool, error)
	// RegisterSetting asks for power setting broadcasts of setting.
	RegisterSetting(setting uuid.UUID) (Registration, error)
	// RegisterEffectiveMode calls fn with every EFFECTIVE_POWER_MODE value.
	RegisterEffectiveMode(fn func(mode uint32)) (Registration, error)
}

// Bridge tracks power source, boost, effective power mode and display
// state.
type Bridge struct {
	api API
	log zerolog.Logger

	mu     sync.Mutex
	scheme uuid.UUID
	regs   []Registration
	closed bool

	source       *stream.Subject[Source]
	boost        *stream.Subject[bool]
	mode         *stream.Subject[Mode]
	batterySaver *stream.Subject[bool]
	displayOn    *stream.Subject[bool]
	resumed      *stream.Subject[time.Time]
}

// New reads the active scheme and registers for notifications. A refused
// registration fails construction; registrations made so far are released.
func New(api API, log zerolog.Logger) (*Bridge, error) {
	b := &Bridge{
		api:          api,
		log:          log.With().Str("component", "power").Logger(),
		source:       stream.NewSubject[Source](),
		boost:        stream.NewSubject[bool](),
		mode:         stream.NewSubject[Mode](),
		batterySaver: stream.NewSubject[bool](),
		displayOn:    stream.NewSubject[bool](),
		resumed:      stream.NewSubject[time.Time](),
	}

	scheme, err := api.ActiveScheme()
	if err != nil {
		return nil, fmt.Errorf("active power scheme: %w", err)
	}
	b.scheme = scheme

	if ac, err := api.OnAC(); err == nil {
		b.source.Publish(sourceOf(ac))
	} else {
		b.log.Warn().Err(err).Msg("power source not readable")
	}
	b.refreshBoost()

	for _, id := range []uuid.UUID{SettingACDCSource, SettingBoostMode, SettingConsoleDisplayState} {
		reg, err := api.RegisterSetting(id)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("register power setting %s: %w", id, err), b.Close())
		}
		b.regs = append(b.regs, reg)
	}
	reg, err := api.RegisterEffectiveMode(b.HandleEffectiveMode)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("register effective power mode: %w", err), b.Close())
	}
	b.regs = append(b.regs, reg)
	return b, nil
}

func sourceOf(ac bool) Source {
	if ac {
		return SourceAC
	}
	return SourceDC
}

func (b *Bridge) Source() *stream.Subject[Source]     { return b.source }
func (b *Bridge) Boost() *stream.Subject[bool]        { return b.boost }
func (b *Bridge) Mode() *stream.Subject[Mode]         { return b.mode }
func (b *Bridge) BatterySaver() *stream.Subject[bool] { return b.batterySaver }
func (b *Bridge) DisplayOn() *stream.Subject[bool]    { return b.displayOn }

// Resumed carries the time of every resume from sleep.
func (b *Bridge) Resumed() *stream.Subject[time.Time] { return b.resumed }

// Scheme returns the cached active scheme. It is a hint: another process
// may have switched schemes since.
func (b *Bridge) Scheme() uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scheme
}

// RefreshScheme re-reads the active scheme.
func (b *Bridge) RefreshScheme() error {
	scheme, err := b.api.ActiveScheme()
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.scheme = scheme
	b.mu.Unlock()
	return nil
}

// onAC defaults to AC when the source has not been seen yet.
func (b *Bridge) onAC() bool {
	s, ok := b.source.Value()
	return !ok || s != SourceDC
}

// ReadValueIndex reads a setting of the active scheme for the current
// power source.
func (b *Bridge) ReadValueIndex(subgroup, setting uuid.UUID) (uint32, error) {
	return b.api.ReadValueIndex(b.Scheme(), subgroup, setting, b.onAC())
}

// WriteValueIndex writes a setting of the active scheme for the current
// power source.
func (b *Bridge) WriteValueIndex(subgroup, setting uuid.UUID, value uint32) error {
	return b.api.WriteValueIndex(b.Scheme(), subgroup, setting, b.onAC(), value)
}

// SetBoost writes the processor boost mode and reapplies the scheme so the
// change takes effect immediately.
func (b *Bridge) SetBoost(on bool) error {
	v := uint32(boostDisabled)
	if on {
		v = boostAggressive
	}
	if err := b.WriteValueIndex(SubgroupProcessor, SettingBoostMode, v); err != nil {
		return fmt.Errorf("write boost mode: %w", err)
	}
	if err := b.api.SetActiveScheme(b.Scheme()); err != nil {
		return fmt.Errorf("reapply power scheme: %w", err)
	}
	b.boost.Publish(on)
	return nil
}

func (b *Bridge) ToggleBoost() error {
	on, ok := b.boost.Value()
	if !ok {
		v, err := b.ReadValueIndex(SubgroupProcessor, SettingBoostMode)
		if err != nil {
			return err
		}
		on = v != boostDisabled
	}
	return b.SetBoost(!on)
}

func (b *Bridge) refreshBoost() {
	v, err := b.ReadValueIndex(SubgroupProcessor, SettingBoostMode)
	if err != nil {
		b.log.Warn().Err(err).Msg("boost mode not readable")
		return
	}
	b.boost.Publish(v != boostDisabled)
}

// HandleSetting processes a POWERBROADCAST_SETTING payload. Decode errors
// are logged.
func (b *Bridge) HandleSetting(payload []byte) {
	s, err := DecodeSetting(payload)
	if err != nil {
		b.log.Warn().Err(err).Msg("bad power setting broadcast")
		return
	}
	v, ok := s.Uint32()
	if !ok {
		b.log.Warn().Stringer("setting", s.ID).Int("len", len(s.Data)).Msg("power setting without value")
		return
	}
	switch s.ID {
	case SettingACDCSource:
		b.source.Publish(Source(v))
		// Boost is stored per source.
		b.refreshBoost()
	case SettingBoostMode:
		b.boost.Publish(v != boostDisabled)
	case SettingConsoleDisplayState:
		b.displayOn.Publish(v != displayStateOff)
	default:
		b.log.Debug().Stringer("setting", s.ID).Uint32("value", v).Msg("unhandled power setting")
	}
}

// HandleBroadcast processes the wParam of WM_POWERBROADCAST for events
// that carry no payload.
func (b *Bridge) HandleBroadcast(event uint32) {
	switch event {
	case PBTResumeAutomatic, PBTResumeSuspend:
		b.log.Info().Msg("resumed")
		b.resumed.Publish(time.Now())
	case PBTPowerStatusChange:
		if ac, err := b.api.OnAC(); err == nil {
			b.source.Publish(sourceOf(ac))
		}
	case PBTSuspend:
		b.log.Info().Msg("suspending")
	}
}

// HandleEffectiveMode maps an EFFECTIVE_POWER_MODE value. Battery saver is
// tracked apart from the mode and leaves the mode untouched.
func (b *Bridge) HandleEffectiveMode(mode uint32) {
	switch mode {
	case effectiveBatterySaver:
		b.batterySaver.Publish(true)
		return
	case effectiveBetterBattery:
		b.mode.Publish(ModeBestPowerEfficiency)
	case effectiveBalanced:
		b.mode.Publish(ModeBalanced)
	case effectiveHighPerf, effectiveMaxPerf:
		b.mode.Publish(ModeBestPerformance)
	case effectiveGameMode, effectiveMixedReality:
		b.log.Info().Uint32("mode", mode).Msg("effective power mode not supported")
		return
	default:
		b.log.Warn().Uint32("mode", mode).Msg("unknown effective power mode")
		return
	}
	b.batterySaver.Publish(false)
}

// Close unregisters every notification. Only the first call does any work.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	regs := b.regs
	b.regs = nil
	b.mu.Unlock()

	var err error
	for i := len(regs) - 1; i >= 0; i-- {
		err = multierr.Append(err, regs[i].Close())
	}
	return err
}
