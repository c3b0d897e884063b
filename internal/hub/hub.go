// Package hub turns the raw hardware state streams into notifications.
//
// Every notification rule is the same pipeline: drop repeated values, drop
// the snapshot replayed at subscription, debounce, then deliver on the
// coordination executor. Streams that mean nothing alone are joined first.
package hub

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/acpi"
	"github.com/joygram/flowOSD-sub000/internal/battery"
	"github.com/joygram/flowOSD-sub000/internal/hidio"
	"github.com/joygram/flowOSD-sub000/internal/notify"
	"github.com/joygram/flowOSD-sub000/internal/power"
	"github.com/joygram/flowOSD-sub000/internal/stream"
)

// Stream names used in the journal and metrics.
const (
	StreamPerformance = "performance_mode"
	StreamGpu         = "gpu"
	StreamBoost       = "boost"
	StreamPowerSource = "power_source"
	StreamPowerMode   = "power_mode"
	StreamTouchpad    = "touchpad"
	StreamRefreshRate = "refresh_rate"
	StreamBacklight   = "backlight"
	StreamBattery     = "battery"
)

// Sources are the state streams of the bridges that exist. Nil fields
// belong to absent bridges and get no rule.
type Sources struct {
	Performance  *stream.Subject[acpi.PerformanceMode]
	GpuEnabled   *stream.Subject[bool]
	TabletMode   *stream.Subject[bool]
	Boost        *stream.Subject[bool]
	PowerSource  *stream.Subject[power.Source]
	PowerMode    *stream.Subject[power.Mode]
	BatterySaver *stream.Subject[bool]
	DisplayOn    *stream.Subject[bool]
	Touchpad     *stream.Subject[bool]
	Backlight    *stream.Subject[hidio.BacklightLevel]
	RefreshRate  *stream.Subject[int]
	Battery      *stream.Subject[battery.Status]
	Fans         *stream.Subject[FanSpeeds]
}

// Options tune the rules.
type Options struct {
	Debounce        time.Duration
	SourceDebounce  time.Duration
	LowBattery      int
	CriticalBattery int
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = 50 * time.Millisecond
	}
	if o.SourceDebounce <= 0 {
		o.SourceDebounce = 2 * time.Second
	}
	if o.LowBattery <= 0 {
		o.LowBattery = 20
	}
	if o.CriticalBattery <= 0 {
		o.CriticalBattery = 10
	}
	return o
}

// Hub owns the notification subscriptions.
type Hub struct {
	exec    stream.Executor
	sink    notify.Sink
	journal *Journal
	metrics *Metrics
	alerts  *notify.BatteryAlerts
	log     zerolog.Logger
	opts    Options

	mu      sync.Mutex
	src     Sources
	cancels []func()
}

// New returns a hub delivering on exec. metrics may be nil.
func New(exec stream.Executor, sink notify.Sink, journal *Journal, metrics *Metrics, log zerolog.Logger, opts Options) *Hub {
	opts = opts.withDefaults()
	return &Hub{
		exec:    exec,
		sink:    sink,
		journal: journal,
		metrics: metrics,
		alerts:  notify.NewBatteryAlerts(opts.LowBattery, opts.CriticalBattery),
		log:     log.With().Str("component", "hub").Logger(),
		opts:    opts,
	}
}

func (h *Hub) Journal() *Journal { return h.journal }

// Alerts exposes the battery alert state so thresholds can follow config.
func (h *Hub) Alerts() *notify.BatteryAlerts { return h.alerts }

// Start installs the rules for every present source.
func (h *Hub) Start(src Sources) {
	h.mu.Lock()
	h.src = src
	h.mu.Unlock()

	d := h.opts.Debounce
	if src.Performance != nil {
		watch[acpi.PerformanceMode](h, StreamPerformance, src.Performance, d, renderPerformance)
	}
	if src.GpuEnabled != nil {
		watch[bool](h, StreamGpu, src.GpuEnabled, d, renderGpu)
	}
	if src.Boost != nil {
		watch[bool](h, StreamBoost, src.Boost, d, renderBoost)
	}
	if src.PowerSource != nil {
		watch[power.Source](h, StreamPowerSource, src.PowerSource, h.opts.SourceDebounce, renderSource)
	}
	if src.PowerMode != nil && src.BatterySaver != nil {
		watch[stream.Pair[power.Mode, bool]](h, StreamPowerMode, stream.Combine[power.Mode, bool](src.PowerMode, src.BatterySaver), d, renderPowerMode)
	}
	if src.Touchpad != nil {
		watch[stream.Pair[bool, bool]](h, StreamTouchpad, stream.Combine[bool, bool](src.Touchpad, orFalse(src.TabletMode)), d, renderTouchpad)
	}
	if src.RefreshRate != nil {
		watch[stream.Pair[int, bool]](h, StreamRefreshRate, stream.Combine[int, bool](src.RefreshRate, orTrue(src.DisplayOn)), d, renderRefreshRate)
	}
	if src.Backlight != nil {
		watch[hidio.BacklightLevel](h, StreamBacklight, src.Backlight, d, renderBacklight)
	}
	if src.Battery != nil {
		h.watchBattery(src.Battery)
	}
	if src.Fans != nil && h.metrics != nil {
		h.add(src.Fans.Subscribe(func(f FanSpeeds) {
			h.metrics.FanSpeed.WithLabelValues(acpi.CpuFan.String()).Set(float64(f.CPU))
			h.metrics.FanSpeed.WithLabelValues(acpi.GpuFan.String()).Set(float64(f.GPU))
		}))
	}
}

// Stop cancels every rule. Values already posted to the executor are
// dropped.
func (h *Hub) Stop() {
	h.mu.Lock()
	cancels := h.cancels
	h.cancels = nil
	h.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

func (h *Hub) add(cancel func()) {
	h.mu.Lock()
	h.cancels = append(h.cancels, cancel)
	h.mu.Unlock()
}

func watch[T comparable](h *Hub, name string, src stream.Observable[T], d time.Duration, render func(T) (notify.Notification, bool)) {
	counted := src
	if h.metrics != nil {
		received := h.metrics.Received.WithLabelValues(name)
		counted = stream.Func[T](func(fn func(T)) func() {
			return src.Subscribe(func(v T) {
				received.Inc()
				fn(v)
			})
		})
	}
	pipeline := stream.ObserveOn(stream.Debounce(stream.Updates(stream.Distinct(counted)), d), h.exec)
	h.add(pipeline.Subscribe(func(v T) {
		if n, ok := render(v); ok {
			h.show(name, n)
		}
	}))
}

func (h *Hub) watchBattery(src *stream.Subject[battery.Status]) {
	h.add(stream.ObserveOn[battery.Status](src, h.exec).Subscribe(func(s battery.Status) {
		pct := s.Percent()
		if pct < 0 {
			return
		}
		if h.metrics != nil {
			h.metrics.BatteryLevel.Set(float64(pct))
		}
		h.journal.RecordSample(pct, s.Charging() || (s.OnAC() && !s.Discharging()))
		if n, ok := h.alerts.Check(pct, s.OnAC()); ok {
			h.show(StreamBattery, n)
		}
	}))
}

func (h *Hub) show(name string, n notify.Notification) {
	h.log.Debug().Str("stream", name).Str("text", n.Text).Msg("notify")
	h.journal.RecordEvent(Event{Stream: name, Image: n.Image.String(), Title: n.Title, Text: n.Text})
	if h.metrics != nil {
		h.metrics.Notifications.WithLabelValues(name).Inc()
	}
	h.sink.Show(n)
}

// orFalse stands in for an absent tablet-mode stream.
func orFalse(s *stream.Subject[bool]) stream.Observable[bool] {
	if s == nil {
		return stream.NewBehavior(false)
	}
	return s
}

func orTrue(s *stream.Subject[bool]) stream.Observable[bool] {
	if s == nil {
		return stream.NewBehavior(true)
	}
	return s
}
