package hub

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the agent counters served on /metrics.
type Metrics struct {
	Received      *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	ACPIFailures  *prometheus.CounterVec
	Hotkeys       *prometheus.CounterVec
	BatteryLevel  prometheus.Gauge
	FanSpeed      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowosd",
			Name:      "stream_values_total",
			Help:      "Values published on a state stream, before deduplication.",
		}, []string{"stream"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowosd",
			Name:      "notifications_total",
			Help:      "Notifications delivered to the sink.",
		}, []string{"stream"}),
		ACPIFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowosd",
			Name:      "acpi_failures_total",
			Help:      "Failed ACPI method calls.",
		}, []string{"method", "device"}),
		Hotkeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowosd",
			Name:      "hotkeys_total",
			Help:      "Dispatched hotkey commands.",
		}, []string{"key", "command", "result"}),
		BatteryLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowosd",
			Name:      "battery_level_percent",
			Help:      "Last battery charge level.",
		}),
		FanSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flowosd",
			Name:      "fan_speed_rpm",
			Help:      "Last fan speed reading.",
		}, []string{"fan"}),
	}
	reg.MustRegister(m.Received, m.Notifications, m.ACPIFailures, m.Hotkeys, m.BatteryLevel, m.FanSpeed)
	return m
}
