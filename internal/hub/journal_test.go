package hub

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSampleSpacing(t *testing.T) {
	j := NewJournal()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	j.RecordSample(80, false)
	now = now.Add(30 * time.Second)
	j.RecordSample(79, false) // replaces
	now = now.Add(30 * time.Second)
	j.RecordSample(76, false) // moved by 3
	now = now.Add(10 * time.Second)
	j.RecordSample(76, true) // charging flipped

	h := j.History("24h")
	require.Len(t, h.Points, 3)
	assert.Equal(t, []float64{79, 76, 76}, []float64{h.Points[0].Level, h.Points[1].Level, h.Points[2].Level})
	assert.True(t, h.Points[2].Charging)
	// 79 -> 76 over 30s is -360 %/h, clamped.
	assert.Equal(t, -maxRateMagnitude, h.Points[1].Rate)
	assert.Equal(t, "24h", h.Range)
}

func TestHistoryRangeAndRetention(t *testing.T) {
	j := NewJournal()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	j.RecordEvent(Event{Stream: "gpu", Text: "Eco mode"})
	now = now.Add(48 * time.Hour)
	j.RecordEvent(Event{Stream: "gpu", Text: "On"})

	assert.Len(t, j.History("24h").Events, 1)
	assert.Len(t, j.History("72h").Events, 2)
	h := j.History("bogus")
	assert.Equal(t, "72h", h.Range)

	now = now.Add(9 * 24 * time.Hour)
	j.RecordEvent(Event{Stream: "boost", Text: "On"})
	assert.Len(t, j.Events(), 1, "older than the retention")
}

func TestDownsampleBuckets(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var samples []Sample
	for i := 0; i < 100; i++ {
		samples = append(samples, Sample{Timestamp: from.Add(time.Duration(i) * time.Minute), Level: 100 - i/2})
	}
	points := downsample(samples, from, from.Add(100*time.Minute), 10)
	assert.LessOrEqual(t, len(points), 10)
	for i := 1; i < len(points); i++ {
		assert.Less(t, points[i-1].Ts, points[i].Ts)
	}
	assert.Nil(t, downsample(nil, from, from.Add(time.Hour), 10))
}

func TestSubscribersGetNewEvents(t *testing.T) {
	j := NewJournal()
	ch, cancel := j.Subscribe()

	before := j.Version()
	j.RecordEvent(Event{Stream: "touchpad", Text: "Off"})
	assert.Greater(t, j.Version(), before)

	select {
	case e := <-ch:
		assert.Equal(t, "Off", e.Text)
		assert.False(t, e.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)

	// A full subscriber does not block the journal.
	slow, stop := j.Subscribe()
	defer stop()
	for i := 0; i < subscriberBacklog+5; i++ {
		j.RecordEvent(Event{Stream: "boost"})
	}
	assert.Len(t, slow, subscriberBacklog)
}

func TestJournalPersistence(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	j := NewJournal()
	j.now = clock
	j.RecordEvent(Event{Stream: "boost", Title: "Boost", Text: "On"})
	j.RecordSample(64, false)

	path := filepath.Join(t.TempDir(), "flowOSD", "history.json")
	require.NoError(t, j.SaveFile(path))

	now = now.Add(time.Hour)
	restored := NewJournal()
	restored.now = clock
	restored.RecordEvent(Event{Stream: "gpu", Text: "Eco mode"})
	require.NoError(t, restored.LoadFile(path))

	events := restored.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "boost", events[0].Stream, "restored entries sort before live ones")
	assert.Equal(t, "gpu", events[1].Stream)
	assert.Len(t, restored.Snapshot().Samples, 1)
}

func TestJournalLoadMissingAndBroken(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal()
	require.NoError(t, j.LoadFile(filepath.Join(dir, "none.json")))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	assert.Error(t, j.LoadFile(bad))
}

func TestRestoreDropsExpired(t *testing.T) {
	now := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	j := NewJournal()
	j.now = func() time.Time { return now }
	j.Restore(Snapshot{
		Events: []Event{
			{Timestamp: now.Add(-10 * 24 * time.Hour), Stream: "old"},
			{Timestamp: now.Add(-time.Hour), Stream: "recent"},
		},
		Samples: []Sample{{Timestamp: now.Add(-time.Hour), Level: 50, Rate: 900}},
	})
	events := j.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "recent", events[0].Stream)
	assert.Equal(t, maxRateMagnitude, j.Snapshot().Samples[0].Rate)
}
