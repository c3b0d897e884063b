package hub

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/acpi"
	"github.com/joygram/flowOSD-sub000/internal/stream"
)

// FanSpeeds is one fan reading in RPM.
type FanSpeeds struct {
	CPU int `json:"cpu"`
	GPU int `json:"gpu"`
}

// FanReader reads a fan speed.
type FanReader interface {
	FanSpeed(f acpi.Fan) (int, error)
}

// FanMonitor polls fan speeds.
type FanMonitor struct {
	r      FanReader
	log    zerolog.Logger
	speeds *stream.Subject[FanSpeeds]
}

func NewFanMonitor(r FanReader, log zerolog.Logger) *FanMonitor {
	return &FanMonitor{
		r:      r,
		log:    log.With().Str("component", "fans").Logger(),
		speeds: stream.NewSubject[FanSpeeds](),
	}
}

func (m *FanMonitor) Speeds() *stream.Subject[FanSpeeds] { return m.speeds }

// Read takes one reading. A fan that cannot be read keeps its last value.
func (m *FanMonitor) Read() FanSpeeds {
	prev, _ := m.speeds.Value()
	cur := prev
	if v, err := m.r.FanSpeed(acpi.CpuFan); err == nil {
		cur.CPU = v
	} else {
		m.log.Debug().Err(err).Msg("cpu fan")
	}
	if v, err := m.r.FanSpeed(acpi.GpuFan); err == nil {
		cur.GPU = v
	} else {
		m.log.Debug().Err(err).Msg("gpu fan")
	}
	m.speeds.Publish(cur)
	return cur
}

// Poll reads every interval until ctx is done.
func (m *FanMonitor) Poll(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	m.Read()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.Read()
		}
	}
}
