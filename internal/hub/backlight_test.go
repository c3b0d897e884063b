package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/joygram/flowOSD-sub000/internal/hidio"
	"github.com/joygram/flowOSD-sub000/internal/stream"
)

type fakeBacklight struct {
	mu      sync.Mutex
	applied []hidio.BacklightLevel
	level   *stream.Subject[hidio.BacklightLevel]
}

func (f *fakeBacklight) ApplyBacklight(l hidio.BacklightLevel) error {
	f.mu.Lock()
	f.applied = append(f.applied, l)
	f.mu.Unlock()
	return nil
}

func (f *fakeBacklight) Backlight() *stream.Subject[hidio.BacklightLevel] { return f.level }

func (f *fakeBacklight) writes() []hidio.BacklightLevel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hidio.BacklightLevel(nil), f.applied...)
}

func TestIdleBacklightDimsAndRestores(t *testing.T) {
	kb := &fakeBacklight{level: stream.NewBehavior(hidio.BacklightMedium)}
	loop := stream.NewLoop()
	defer loop.Close()

	activity := stream.NewBehavior[int64](0)
	b := NewIdleBacklight(kb, loop, 40*time.Millisecond, zerolog.Nop())
	defer b.Stop()
	cancel := b.Attach(activity)
	defer cancel()

	assert.Eventually(t, b.Dimmed, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(kb.writes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []hidio.BacklightLevel{hidio.BacklightOff}, kb.writes())

	activity.Publish(120)
	assert.False(t, b.Dimmed())
	assert.Eventually(t, func() bool { return len(kb.writes()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, hidio.BacklightMedium, kb.writes()[1])

	lvl, _ := kb.level.Value()
	assert.Equal(t, hidio.BacklightMedium, lvl, "the chosen level is untouched")
}

func TestIdleBacklightActivityKeepsItOn(t *testing.T) {
	kb := &fakeBacklight{level: stream.NewBehavior(hidio.BacklightHigh)}
	loop := stream.NewLoop()
	defer loop.Close()

	b := NewIdleBacklight(kb, loop, 60*time.Millisecond, zerolog.Nop())
	defer b.Stop()
	for i := 0; i < 6; i++ {
		time.Sleep(20 * time.Millisecond)
		b.Activity()
	}
	assert.False(t, b.Dimmed())
	assert.Empty(t, kb.writes())
}

func TestIdleBacklightDisable(t *testing.T) {
	kb := &fakeBacklight{level: stream.NewBehavior(hidio.BacklightLow)}
	loop := stream.NewLoop()
	defer loop.Close()

	b := NewIdleBacklight(kb, loop, 0, zerolog.Nop())
	defer b.Stop()
	b.Activity()
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, kb.writes())

	b.SetTimeout(20 * time.Millisecond)
	assert.Eventually(t, b.Dimmed, time.Second, 5*time.Millisecond)
	b.SetTimeout(0)
	assert.Eventually(t, func() bool { return len(kb.writes()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []hidio.BacklightLevel{hidio.BacklightOff, hidio.BacklightLow}, kb.writes())
}
