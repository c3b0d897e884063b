package notify

import (
	"fmt"
	"sync"
	"time"
)

// Level is the alert band a battery reading falls in.
type Level int

const (
	LevelNone Level = iota
	LevelLow
	LevelCritical
	LevelFull
)

// DefaultCooloff keeps the same alert from repeating.
const DefaultCooloff = 5 * time.Minute

// BatteryAlerts is edge triggered: it reports when a reading crosses into a
// band, never while it stays there.
type BatteryAlerts struct {
	mu       sync.Mutex
	low      int
	critical int
	cooloff  time.Duration
	now      func() time.Time

	state        Level
	lastNotified time.Time
	charging     bool
}

func NewBatteryAlerts(low, critical int) *BatteryAlerts {
	return &BatteryAlerts{
		low:      low,
		critical: critical,
		cooloff:  DefaultCooloff,
		now:      time.Now,
	}
}

// SetThresholds changes the bands and clears the state.
func (a *BatteryAlerts) SetThresholds(low, critical int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.low, a.critical = low, critical
	a.state = LevelNone
	a.lastNotified = time.Time{}
}

// State returns the current band.
func (a *BatteryAlerts) State() Level {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Reset forgets the band, so the next crossing alerts at once.
func (a *BatteryAlerts) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = LevelNone
	a.lastNotified = time.Time{}
}

func (a *BatteryAlerts) band(level int, charging bool) Level {
	switch {
	case charging && level >= 100:
		return LevelFull
	case charging:
		return LevelNone
	case level <= a.critical:
		return LevelCritical
	case level <= a.low:
		return LevelLow
	}
	return LevelNone
}

// Check takes a reading and returns the notification it triggers, if any.
func (a *BatteryAlerts) Check(level int, charging bool) (Notification, bool) {
	if level < 0 || level > 100 {
		return Notification{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if charging != a.charging {
		// Plugging in or out starts over.
		a.state = LevelNone
		a.charging = charging
	}
	prev := a.state
	cur := a.band(level, charging)
	a.state = cur

	cooled := a.lastNotified.IsZero() || now.Sub(a.lastNotified) > a.cooloff
	var n Notification
	switch {
	case cur == LevelCritical && prev != LevelCritical:
		n = Notification{Image: ImageBatteryCritical, Title: "Critical Battery",
			Text: fmt.Sprintf("Battery is critically low at %d%%!", level), Critical: true}
	case cur == LevelLow && prev == LevelNone:
		n = Notification{Image: ImageBatteryLow, Title: "Low Battery",
			Text: fmt.Sprintf("Battery is low at %d%%.", level)}
	case cur == LevelFull && prev != LevelFull:
		n = Notification{Image: ImageBatteryFull, Title: "Charging Complete",
			Text: "Battery is fully charged at 100%."}
	case cur == LevelNone && (prev == LevelLow || prev == LevelCritical):
		// Recovered; the next drop alerts without waiting.
		a.lastNotified = time.Time{}
		return Notification{}, false
	default:
		return Notification{}, false
	}
	if !cooled {
		return Notification{}, false
	}
	a.lastNotified = now
	return n, true
}
