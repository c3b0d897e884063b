package hub

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/hidio"
	"github.com/joygram/flowOSD-sub000/internal/stream"
)

// Backlighter is the keyboard surface the idle timeout drives.
type Backlighter interface {
	ApplyBacklight(l hidio.BacklightLevel) error
	Backlight() *stream.Subject[hidio.BacklightLevel]
}

// IdleBacklight turns the keyboard backlight off after a quiet period and
// restores the chosen level on the next activity. The chosen level is
// never changed, so nothing persists Off.
type IdleBacklight struct {
	kb   Backlighter
	exec stream.Executor
	log  zerolog.Logger

	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
	gen     uint64
	dimmed  bool
	stopped bool
}

// NewIdleBacklight arms the timer when timeout is positive.
func NewIdleBacklight(kb Backlighter, exec stream.Executor, timeout time.Duration, log zerolog.Logger) *IdleBacklight {
	b := &IdleBacklight{
		kb:   kb,
		exec: exec,
		log:  log.With().Str("component", "backlight-idle").Logger(),
	}
	b.SetTimeout(timeout)
	return b
}

// Attach treats every value of activity as user activity.
func (b *IdleBacklight) Attach(activity stream.Observable[int64]) func() {
	return stream.Updates(activity).Subscribe(func(int64) { b.Activity() })
}

// Activity restarts the quiet period and restores a dimmed backlight.
func (b *IdleBacklight) Activity() {
	b.mu.Lock()
	if b.stopped || b.timeout <= 0 {
		b.mu.Unlock()
		return
	}
	restore := b.dimmed
	b.dimmed = false
	b.armLocked()
	b.mu.Unlock()

	if restore {
		b.exec.Post(b.restore)
	}
}

// SetTimeout changes the quiet period; zero disables the timeout and
// restores the backlight if it was dimmed.
func (b *IdleBacklight) SetTimeout(d time.Duration) {
	b.mu.Lock()
	b.timeout = d
	restore := false
	if d <= 0 {
		b.gen++
		if b.timer != nil {
			b.timer.Stop()
		}
		restore = b.dimmed
		b.dimmed = false
	} else {
		b.armLocked()
	}
	b.mu.Unlock()

	if restore {
		b.exec.Post(b.restore)
	}
}

// Dimmed reports whether the timeout has switched the backlight off.
func (b *IdleBacklight) Dimmed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dimmed
}

// Stop disarms the timer.
func (b *IdleBacklight) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
	}
}

func (b *IdleBacklight) armLocked() {
	b.gen++
	g := b.gen
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.timeout, func() {
		b.exec.Post(func() { b.expire(g) })
	})
}

func (b *IdleBacklight) expire(g uint64) {
	b.mu.Lock()
	if g != b.gen || b.stopped {
		b.mu.Unlock()
		return
	}
	b.dimmed = true
	b.mu.Unlock()

	if err := b.kb.ApplyBacklight(hidio.BacklightOff); err != nil {
		b.log.Warn().Err(err).Msg("backlight off")
	}
}

func (b *IdleBacklight) restore() {
	l, ok := b.kb.Backlight().Value()
	if !ok {
		return
	}
	if err := b.kb.ApplyBacklight(l); err != nil {
		b.log.Warn().Err(err).Stringer("level", l).Msg("backlight restore")
	}
}
