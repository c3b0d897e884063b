//go:build windows
// +build windows

package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/joygram/flowOSD-sub000/internal/acpi"
	"github.com/joygram/flowOSD-sub000/internal/api"
	"github.com/joygram/flowOSD-sub000/internal/battery"
	"github.com/joygram/flowOSD-sub000/internal/command"
	"github.com/joygram/flowOSD-sub000/internal/config"
	"github.com/joygram/flowOSD-sub000/internal/device"
	"github.com/joygram/flowOSD-sub000/internal/display"
	"github.com/joygram/flowOSD-sub000/internal/hidio"
	"github.com/joygram/flowOSD-sub000/internal/hotkey"
	"github.com/joygram/flowOSD-sub000/internal/hub"
	"github.com/joygram/flowOSD-sub000/internal/keys"
	"github.com/joygram/flowOSD-sub000/internal/notify"
	"github.com/joygram/flowOSD-sub000/internal/power"
	"github.com/joygram/flowOSD-sub000/internal/stream"
	"github.com/joygram/flowOSD-sub000/internal/winmsg"
)

const (
	windowClass = "flowOSDWindow"
	// WM_DEVICECHANGE arrives in bursts while a device re-enumerates.
	deviceSettle = 900 * time.Millisecond
)

// agent owns every bridge and the wiring between them.
type agent struct {
	log     zerolog.Logger
	dataDir string

	store    *config.Store
	window   *winmsg.Window
	devices  *device.Directory
	registry *prometheus.Registry
	metrics  *hub.Metrics
	journal  *hub.Journal
	model    *device.Model

	acpi     *acpi.Bridge
	hid      *hidio.Channel
	keyboard *hidio.Keyboard
	reader   *keys.Reader
	battery  *battery.Bridge
	power    *power.Bridge
	display  *display.Monitor
	fans     *hub.FanMonitor

	commands *command.Directory
	hotkeys  *hotkey.Dispatcher
	hub      *hub.Hub
	idle     *hub.IdleBacklight
	balloon  *notify.Balloon
	sink     *notify.Switch
	startup  *startup

	devChanges *stream.Subject[time.Time]
	hidInit    bool

	mu      sync.Mutex
	cancels []func()
}

func (a *agent) add(cancel func()) {
	a.mu.Lock()
	a.cancels = append(a.cancels, cancel)
	a.mu.Unlock()
}

// run builds the agent, serves until ctx is done or the session ends, and
// tears everything down.
func run(ctx context.Context, configPath, dataDir string, log zerolog.Logger) (err error) {
	store, err := config.Load(configPath, log)
	if err != nil {
		return err
	}
	st := store.Settings()
	applyLogLevel(st.LogLevel)
	store.Watch()
	log.Info().Str("path", store.Path()).Msg("[STARTUP] settings loaded")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a := &agent{
		log:        log,
		dataDir:    dataDir,
		store:      store,
		devices:    device.NewDirectory(),
		registry:   prometheus.NewRegistry(),
		journal:    hub.NewJournal(),
		devChanges: stream.NewSubject[time.Time](),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = hub.NewMetrics(a.registry)
	a.startup = &startup{store: store, log: log}
	loadHistory(a.journal, historyPath(dataDir), log)

	if m, err := device.QueryModel(); err != nil {
		log.Warn().Err(err).Msg("[STARTUP] model not readable")
	} else {
		a.model = &m
		lvl := zerolog.InfoLevel
		if !m.IsAsus() {
			lvl = zerolog.WarnLevel
		}
		log.WithLevel(lvl).Str("manufacturer", m.Manufacturer).Str("model", m.Name).Msg("[STARTUP] machine")
	}

	a.window, err = winmsg.Open(windowClass, log)
	if err != nil {
		return fmt.Errorf("message window: %w", err)
	}
	defer func() { err = multierr.Append(err, a.teardown()) }()

	a.openBridges(st)
	a.route(cancel)
	a.buildCommands(st)
	a.startHub(st)
	a.watchConfig()

	if err := a.startup.apply(st.StartWithWindows); err != nil {
		log.Warn().Err(err).Msg("[STARTUP] startup shortcut not synced")
	}

	return a.serve(ctx, st)
}

func (a *agent) openBridges(st config.Settings) {
	log := a.log

	b, err := acpi.Open(log, acpi.WithFailureHook(func(m acpi.Method, deviceID uint32, err error) {
		a.metrics.ACPIFailures.WithLabelValues(m.String(), fmt.Sprintf("0x%08X", deviceID)).Inc()
	}))
	if err != nil {
		log.Warn().Err(err).Msg("[STARTUP] acpi bridge absent")
		a.devices.MarkAbsent("acpi", err)
	} else {
		a.acpi = b
		a.devices.Register("acpi", b)
		a.fans = hub.NewFanMonitor(b, log)
	}

	if ch, err := a.openHID(); err != nil {
		log.Warn().Err(err).Msg("[STARTUP] hid channel absent")
		a.devices.MarkAbsent("hid", err)
	} else {
		a.hid = ch
		a.devices.Register("hid", ch)
		a.keyboard = hidio.NewKeyboard(ch, hidio.ClampBacklight(st.KeyboardBacklight), log)
		a.reader = keys.NewReader(ch, log)
		log.Info().Str("path", ch.Info().Path).Msg("[STARTUP] hid channel")
	}

	if bat, err := battery.New(battery.System{}, st.BatteryName, log); err != nil {
		log.Warn().Err(err).Str("name", st.BatteryName).Msg("[STARTUP] battery bridge absent")
		a.devices.MarkAbsent("battery", err)
	} else {
		a.battery = bat
		a.devices.Register("battery", bat)
	}

	if pw, err := power.New(power.NewSystem(uintptr(a.window.HWND())), log); err != nil {
		log.Warn().Err(err).Msg("[STARTUP] power bridge absent")
		a.devices.MarkAbsent("power", err)
	} else {
		a.power = pw
		a.devices.Register("power", pw)
	}

	a.display = display.New(display.System{}, log)
	a.devices.Register("display", a.display)
}

func (a *agent) openHID() (*hidio.Channel, error) {
	if err := hidio.Init(); err != nil {
		return nil, fmt.Errorf("hidapi init: %w", err)
	}
	a.hidInit = true
	return hidio.Open(hidio.System{}, a.log)
}

// route subscribes the window messages. Handlers run on the window thread.
func (a *agent) route(endSession context.CancelFunc) {
	w := a.window

	if a.acpi != nil {
		a.add(w.Subscribe(winmsg.WMAppACPI, func(wParam, _ uintptr) {
			a.acpi.HandleNotification(acpi.Notification(wParam))
		}))
		a.add(a.acpi.Notifications().Subscribe(a.onACPINotification))
	}
	if a.keyboard != nil {
		a.add(w.Subscribe(winmsg.WMAppTouchpad, func(wParam, _ uintptr) {
			a.keyboard.SetTouchpadState(wParam != 0)
		}))
	}
	a.add(w.Subscribe(winmsg.WMDisplayChange, func(_, _ uintptr) { a.display.HandleDisplayChange() }))
	a.add(w.Subscribe(winmsg.WMDPIChanged, func(wParam, _ uintptr) { a.display.HandleDPIChange(wParam) }))

	if a.power != nil {
		a.add(w.Subscribe(winmsg.WMPowerBroadcast, func(wParam, lParam uintptr) {
			if wParam == power.PBTPowerSettingChange {
				a.power.HandleSetting(power.SettingPayload(lParam))
				return
			}
			a.power.HandleBroadcast(uint32(wParam))
		}))
		a.add(a.power.Resumed().Subscribe(func(time.Time) { w.Post(a.wake) }))
		if a.battery != nil {
			a.add(stream.Updates[power.Source](a.power.Source()).Subscribe(func(power.Source) { a.battery.Kick() }))
		}
	}

	a.add(w.Subscribe(winmsg.WMDeviceChange, func(_, _ uintptr) { a.devChanges.Publish(time.Now()) }))
	a.add(stream.ObserveOn(stream.Debounce[time.Time](a.devChanges, deviceSettle), w).Subscribe(func(time.Time) {
		a.reacquire()
	}))

	a.add(w.Subscribe(winmsg.WMEndSession, func(wParam, _ uintptr) {
		if wParam != 0 {
			a.log.Info().Msg("session ending")
			endSession()
		}
	}))
}

func (a *agent) onACPINotification(code acpi.Notification) {
	switch code {
	case acpi.NotifyACPlugged, acpi.NotifyACUnplugged:
		if a.battery != nil {
			a.battery.Kick()
		}
	case acpi.NotifyBacklightUp, acpi.NotifyBacklightDown:
		if a.keyboard == nil {
			return
		}
		step := a.keyboard.BacklightUp
		if code == acpi.NotifyBacklightDown {
			step = a.keyboard.BacklightDown
		}
		if err := step(); err != nil {
			a.log.Warn().Err(err).Stringer("code", code).Msg("backlight step")
		}
	}
}

// wake restores device state after resume from sleep.
func (a *agent) wake() {
	a.log.Info().Msg("[RESUME] restoring device state")
	if a.hid != nil {
		if err := a.hid.Wake(); err != nil {
			a.log.Warn().Err(err).Msg("[RESUME] hid wake")
		}
	}
	if a.keyboard != nil && !a.dimmed() {
		if err := a.keyboard.ReapplyBacklight(); err != nil {
			a.log.Warn().Err(err).Msg("[RESUME] backlight")
		}
	}
	if a.acpi != nil {
		if err := a.acpi.RefreshTabletMode(); err != nil {
			a.log.Debug().Err(err).Msg("[RESUME] tablet mode")
		}
	}
	if a.battery != nil {
		a.battery.Kick()
	}
}

func (a *agent) dimmed() bool { return a.idle != nil && a.idle.Dimmed() }

// reacquire runs once a burst of device changes has settled.
func (a *agent) reacquire() {
	if a.hid == nil {
		return
	}
	a.log.Info().Msg("[RECONNECT] device changes settled, reacquiring hid channel")
	if err := a.hid.Reacquire(); err != nil {
		a.log.Warn().Err(err).Msg("[RECONNECT] hid reacquire failed")
		return
	}
	if a.keyboard != nil && !a.dimmed() {
		if err := a.keyboard.ReapplyBacklight(); err != nil {
			a.log.Warn().Err(err).Msg("[RECONNECT] backlight")
		}
	}
	if a.battery != nil {
		a.battery.Kick()
	}
}

func (a *agent) buildCommands(st config.Settings) {
	deps := command.Deps{Startup: a.startup}
	if a.acpi != nil {
		deps.Firmware = a.acpi
	}
	if a.power != nil {
		deps.Power = a.power
	}
	if a.keyboard != nil {
		deps.Keyboard = a.keyboard
	}
	a.commands = command.NewDirectory()
	command.RegisterBuiltins(a.commands, deps)

	a.hotkeys = hotkey.New(a.commands, a.log, func(key keys.Code, name string, err error) {
		result := "ok"
		if err != nil {
			result = "error"
		}
		a.metrics.Hotkeys.WithLabelValues(key.String(), name, result).Inc()
	})
	a.hotkeys.Configure(st.Hotkeys)
	for _, e := range a.hotkeys.Bound() {
		a.log.Debug().Str("key", e.Key).Str("command", e.Command).Msg("hotkey bound")
	}
	if a.reader != nil {
		a.add(a.hotkeys.Attach(a.reader.Keys(), st.NotificationDebounce, a.window))
	}
}

func (a *agent) startHub(st config.Settings) {
	sinks := notify.Tee{notify.LogSink{Log: a.log}}
	if b, err := a.newBalloon(); err != nil {
		a.log.Warn().Err(err).Msg("[STARTUP] tray balloon unavailable")
	} else {
		a.balloon = b
		sinks = append(sinks, b)
	}
	a.sink = notify.NewSwitch(sinks, st.NotificationsEnabled)

	a.hub = hub.New(a.window, a.sink, a.journal, a.metrics, a.log, hub.Options{
		Debounce:        st.NotificationDebounce,
		SourceDebounce:  st.PowerSourceDebounce,
		LowBattery:      st.LowBatteryThreshold,
		CriticalBattery: st.CriticalBatteryThreshold,
	})

	src := hub.Sources{RefreshRate: a.display.RefreshRate()}
	if a.acpi != nil {
		src.Performance = a.acpi.PerformanceMode()
		src.GpuEnabled = a.acpi.GpuEnabled()
		src.TabletMode = a.acpi.TabletMode()
	}
	if a.power != nil {
		src.Boost = a.power.Boost()
		src.PowerSource = a.power.Source()
		src.PowerMode = a.power.Mode()
		src.BatterySaver = a.power.BatterySaver()
		src.DisplayOn = a.power.DisplayOn()
	}
	if a.keyboard != nil {
		src.Touchpad = a.keyboard.Touchpad()
		src.Backlight = a.keyboard.Backlight()
	}
	if a.battery != nil {
		src.Battery = a.battery.Status()
	}
	if a.fans != nil {
		src.Fans = a.fans.Speeds()
	}
	a.hub.Start(src)

	if a.keyboard != nil {
		a.idle = hub.NewIdleBacklight(a.keyboard, a.window, st.BacklightTimeout, a.log)
		if a.reader != nil {
			a.add(a.idle.Attach(a.reader.Activity()))
		}
		// The chosen level is persisted; the idle timeout never publishes Off.
		a.add(stream.Updates[hidio.BacklightLevel](a.keyboard.Backlight()).Subscribe(func(l hidio.BacklightLevel) {
			if a.store.Settings().KeyboardBacklight == int(l) {
				return
			}
			if err := a.store.SetBacklight(int(l)); err != nil {
				a.log.Warn().Err(err).Msg("backlight level not saved")
			}
		}))
	}
}

// newBalloon adds the tray icon on the window thread.
func (a *agent) newBalloon() (*notify.Balloon, error) {
	type result struct {
		b   *notify.Balloon
		err error
	}
	done := make(chan result, 1)
	a.window.Post(func() {
		b, err := notify.NewBalloon(a.window.HWND(), winmsg.WMAppTray, config.AppName, a.window.Post)
		done <- result{b, err}
	})
	select {
	case r := <-done:
		return r.b, r.err
	case <-time.After(5 * time.Second):
		return nil, errors.New("window thread not responding")
	}
}

// watchConfig applies settings edited on disk or through the API.
func (a *agent) watchConfig() {
	a.add(stream.ObserveOn(stream.Updates[config.Settings](a.store.Current()), a.window).Subscribe(func(st config.Settings) {
		a.log.Info().Msg("settings changed")
		applyLogLevel(st.LogLevel)
		a.sink.SetEnabled(st.NotificationsEnabled)
		a.hub.Alerts().SetThresholds(st.LowBatteryThreshold, st.CriticalBatteryThreshold)
		a.hotkeys.Configure(st.Hotkeys)
		if a.idle != nil {
			a.idle.SetTimeout(st.BacklightTimeout)
		}
		if a.keyboard != nil {
			if cur, ok := a.keyboard.Backlight().Value(); !ok || int(cur) != st.KeyboardBacklight {
				if err := a.keyboard.SetBacklight(hidio.ClampBacklight(st.KeyboardBacklight)); err != nil {
					a.log.Warn().Err(err).Msg("backlight from settings")
				}
			}
		}
		if err := a.startup.apply(st.StartWithWindows); err != nil {
			a.log.Warn().Err(err).Msg("startup shortcut not synced")
		}
	}))
}

// serve runs the long-lived workers until ctx is done or one fails.
func (a *agent) serve(ctx context.Context, st config.Settings) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.reader != nil {
		g.Go(func() error { return a.reader.Run(gctx) })
	}
	if a.battery != nil {
		g.Go(func() error { return a.battery.Poll(gctx, st.BatteryPollInterval) })
	}
	if a.fans != nil {
		g.Go(func() error { return a.fans.Poll(gctx, st.FanPollInterval) })
	}
	if st.HTTPAddr != "" {
		deps := api.Deps{
			Hub:      a.hub,
			Devices:  a.devices,
			Commands: a.commands,
			Hotkeys:  a.hotkeys,
			Keys:     a.reader,
			Bind:     a.store.SetHotkey,
			Gatherer: a.registry,
			Exec:     a.window,
		}
		if a.model != nil {
			deps.Model = a.model
		}
		srv := api.New(deps, a.log)
		g.Go(func() error { return srv.ListenAndServe(gctx, st.HTTPAddr) })
	}
	g.Go(func() error { return persistHistory(gctx, a.journal, historyPath(a.dataDir), a.log) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-a.window.Done():
			return errors.New("message window closed")
		}
	})

	a.log.Info().Msg("[STARTUP] agent running")
	err := g.Wait()
	a.log.Info().Err(err).Msg("agent stopping")
	return err
}

// teardown stops the pipelines and releases every handle exactly once.
func (a *agent) teardown() error {
	a.mu.Lock()
	cancels := a.cancels
	a.cancels = nil
	a.mu.Unlock()
	for i := len(cancels) - 1; i >= 0; i-- {
		cancels[i]()
	}
	if a.hub != nil {
		a.hub.Stop()
	}
	if a.idle != nil {
		a.idle.Stop()
	}

	if b := a.balloon; b != nil {
		// Drained by the window before it is destroyed.
		a.window.Post(func() { _ = b.Close() })
	}
	err := a.window.Close()
	err = multierr.Append(err, a.devices.Close())
	if a.hidInit {
		err = multierr.Append(err, hidio.Exit())
	}
	return err
}
