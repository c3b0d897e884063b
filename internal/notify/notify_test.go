package notify

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatteryAlertTransitions(t *testing.T) {
	a := NewBatteryAlerts(20, 10)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	tests := []struct {
		name     string
		level    int
		charging bool
		state    Level
		image    Image
	}{
		{"normal level", 50, false, LevelNone, ImageNone},
		{"drop to low", 18, false, LevelLow, ImageBatteryLow},
		{"stay low", 17, false, LevelLow, ImageNone},
		// Within the cool-off of the low alert: band changes, no message.
		{"drop to critical", 8, false, LevelCritical, ImageNone},
		{"start charging", 8, true, LevelNone, ImageNone},
		{"reach 100", 100, true, LevelFull, ImageBatteryFull},
		{"unplug at 100", 100, false, LevelNone, ImageNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := a.Check(tt.level, tt.charging)
			assert.Equal(t, tt.state, a.State())
			if tt.image == ImageNone {
				assert.False(t, ok, "unexpected %q", n.Title)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.image, n.Image)
		})
		now = now.Add(2 * time.Minute)
	}
}

func TestBatteryAlertCooloff(t *testing.T) {
	a := NewBatteryAlerts(20, 10)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	_, ok := a.Check(15, false)
	require.True(t, ok)

	// Charging then unplugging resets the band but not the cool-off.
	a.Check(16, true)
	_, ok = a.Check(15, false)
	assert.False(t, ok)

	now = now.Add(DefaultCooloff + time.Second)
	a.Check(16, true)
	n, ok := a.Check(9, false)
	require.True(t, ok)
	assert.True(t, n.Critical)
	assert.Equal(t, "Battery is critically low at 9%!", n.Text)
}

func TestRecoveryClearsCooloff(t *testing.T) {
	a := NewBatteryAlerts(20, 10)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	_, ok := a.Check(19, false)
	require.True(t, ok)
	_, ok = a.Check(25, false)
	assert.False(t, ok)
	_, ok = a.Check(19, false)
	assert.True(t, ok)

	_, ok = a.Check(-1, false)
	assert.False(t, ok)
}

func TestSwitchAndTee(t *testing.T) {
	var got []string
	rec := SinkFunc(func(n Notification) { got = append(got, n.Title) })
	var buf bytes.Buffer
	sw := NewSwitch(Tee{rec, LogSink{Log: zerolog.New(&buf)}}, false)

	sw.Show(Notification{Title: "hidden"})
	sw.SetEnabled(true)
	sw.Show(Notification{Image: ImageTurbo, Title: "Turbo", Text: "Performance mode"})

	assert.Equal(t, []string{"Turbo"}, got)
	assert.Contains(t, buf.String(), `"image":"turbo"`)
	assert.Contains(t, buf.String(), "[NOTIF] Performance mode")
}
