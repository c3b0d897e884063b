package hub

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one notification that reached the sink.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Stream    string    `json:"stream"`
	Image     string    `json:"image"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
}

// Sample is one battery reading.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Level     int       `json:"level"`
	Charging  bool      `json:"charging"`
	// Rate is percent per hour, negative while discharging.
	Rate float64 `json:"rate"`
}

type Point struct {
	Ts       int64   `json:"ts"`
	Level    float64 `json:"level"`
	Charging bool    `json:"charging"`
	Rate     float64 `json:"rate"`
}

// History is the /api/history response.
type History struct {
	Range   string  `json:"range"`
	From    int64   `json:"from"`
	To      int64   `json:"to"`
	Points  []Point `json:"points"`
	Events  []Event `json:"events"`
	Version uint64  `json:"version"`
}

const (
	journalRetention  = 8 * 24 * time.Hour
	minSampleSpacing  = 75 * time.Second
	significantDelta  = 3
	maxSamples        = 7200
	maxEvents         = 256
	defaultMaxPoints  = 480
	maxRateMagnitude  = 50.0
	subscriberBacklog = 16
)

// Journal keeps recent notifications and battery samples and fans new
// events out to subscribers.
type Journal struct {
	now func() time.Time

	mu      sync.RWMutex
	events  []Event
	samples []Sample
	version atomic.Uint64

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

func NewJournal() *Journal {
	return &Journal{now: time.Now, subs: make(map[int]chan Event)}
}

// Version changes whenever the journal does.
func (j *Journal) Version() uint64 { return j.version.Load() }

// RecordEvent appends e, stamping it if needed, and offers it to every
// subscriber. Subscribers that are behind miss the event.
func (j *Journal) RecordEvent(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = j.now()
	}
	j.mu.Lock()
	j.events = append(j.events, e)
	j.compactLocked(e.Timestamp)
	j.mu.Unlock()
	j.version.Add(1)

	j.subMu.Lock()
	for _, ch := range j.subs {
		select {
		case ch <- e:
		default:
		}
	}
	j.subMu.Unlock()
}

// RecordSample adds a battery reading. Readings closer than
// minSampleSpacing replace the previous one unless the level moved
// noticeably or charging flipped.
func (j *Journal) RecordSample(level int, charging bool) {
	level = min(max(level, 0), 100)
	now := j.now()

	j.mu.Lock()
	var rate float64
	if n := len(j.samples); n > 0 {
		last := j.samples[n-1]
		dt := now.Sub(last.Timestamp)
		if dt <= 0 {
			j.mu.Unlock()
			return
		}
		rate = float64(level-last.Level) / dt.Hours()
		if dt < minSampleSpacing && abs(level-last.Level) < significantDelta && charging == last.Charging {
			// Keep the rate measured when the replaced sample was added.
			j.samples[n-1] = Sample{Timestamp: now, Level: level, Charging: charging, Rate: clampRate(last.Rate)}
			j.mu.Unlock()
			j.version.Add(1)
			return
		}
	}
	j.samples = append(j.samples, Sample{Timestamp: now, Level: level, Charging: charging, Rate: clampRate(rate)})
	j.compactLocked(now)
	j.mu.Unlock()
	j.version.Add(1)
}

// Events returns a copy of the recorded events, oldest first.
func (j *Journal) Events() []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]Event(nil), j.events...)
}

// Subscribe returns a channel of new events and a function that closes it.
func (j *Journal) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBacklog)
	j.subMu.Lock()
	id := j.nextID
	j.nextID++
	j.subs[id] = ch
	j.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			j.subMu.Lock()
			delete(j.subs, id)
			j.subMu.Unlock()
			close(ch)
		})
	}
}

// History builds the response for rangeKey (24h, 72h, 7d).
func (j *Journal) History(rangeKey string) History {
	d := parseRange(rangeKey)
	if d <= 0 {
		d, rangeKey = 72*time.Hour, "72h"
	}
	to := j.now()
	from := to.Add(-d)

	j.mu.RLock()
	samples := append([]Sample(nil), j.samples...)
	events := append([]Event(nil), j.events...)
	j.mu.RUnlock()

	var inRange []Event
	for _, e := range events {
		if !e.Timestamp.Before(from) && !e.Timestamp.After(to) {
			inRange = append(inRange, e)
		}
	}
	return History{
		Range:   rangeKey,
		From:    from.UnixMilli(),
		To:      to.UnixMilli(),
		Points:  downsample(samples, from, to, defaultMaxPoints),
		Events:  inRange,
		Version: j.Version(),
	}
}

func parseRange(key string) time.Duration {
	switch key {
	case "24h":
		return 24 * time.Hour
	case "72h", "3d":
		return 72 * time.Hour
	case "7d", "168h":
		return 7 * 24 * time.Hour
	}
	return 0
}

// downsample averages samples into at most maxPoints time buckets.
func downsample(samples []Sample, from, to time.Time, maxPoints int) []Point {
	var in []Sample
	for _, s := range samples {
		if !s.Timestamp.Before(from) && !s.Timestamp.After(to) {
			in = append(in, s)
		}
	}
	if len(in) == 0 {
		return nil
	}
	if len(in) <= maxPoints {
		out := make([]Point, len(in))
		for i, s := range in {
			out[i] = Point{Ts: s.Timestamp.UnixMilli(), Level: float64(s.Level), Charging: s.Charging, Rate: s.Rate}
		}
		return out
	}

	width := to.Sub(from) / time.Duration(maxPoints)
	if width < time.Minute {
		width = time.Minute
	}
	type bucket struct {
		n, charging int
		level, rate float64
		ts          time.Time
	}
	buckets := make([]bucket, maxPoints)
	for _, s := range in {
		idx := min(max(int(s.Timestamp.Sub(from)/width), 0), maxPoints-1)
		b := &buckets[idx]
		b.n++
		b.level += float64(s.Level)
		b.rate += s.Rate
		if s.Charging {
			b.charging++
		}
		if s.Timestamp.After(b.ts) {
			b.ts = s.Timestamp
		}
	}
	out := make([]Point, 0, maxPoints)
	for _, b := range buckets {
		if b.n == 0 {
			continue
		}
		out = append(out, Point{
			Ts:       b.ts.UnixMilli(),
			Level:    b.level / float64(b.n),
			Charging: b.charging*2 >= b.n,
			Rate:     clampRate(b.rate / float64(b.n)),
		})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Ts < out[k].Ts })
	return out
}

func (j *Journal) compactLocked(now time.Time) {
	cutoff := now.Add(-journalRetention)

	kept := j.samples[:0]
	for _, s := range j.samples {
		if !s.Timestamp.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	j.samples = kept
	if len(j.samples) > maxSamples {
		j.samples = decimate(j.samples, maxSamples)
	}

	keptEvents := j.events[:0]
	for _, e := range j.events {
		if !e.Timestamp.Before(cutoff) {
			keptEvents = append(keptEvents, e)
		}
	}
	j.events = keptEvents
	if len(j.events) > maxEvents {
		j.events = append([]Event(nil), j.events[len(j.events)-maxEvents:]...)
	}
}

func decimate(samples []Sample, target int) []Sample {
	if target <= 1 || len(samples) <= target {
		return samples
	}
	stride := float64(len(samples)-1) / float64(target-1)
	out := make([]Sample, 0, target)
	for i := 0; i < target; i++ {
		out = append(out, samples[min(int(math.Round(float64(i)*stride)), len(samples)-1)])
	}
	return out
}

func clampRate(rate float64) float64 {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return 0
	}
	return math.Max(-maxRateMagnitude, math.Min(maxRateMagnitude, rate))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
