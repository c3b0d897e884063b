package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Snapshot is the persisted form of a journal.
type Snapshot struct {
	SavedAt time.Time `json:"savedAt"`
	Samples []Sample  `json:"samples"`
	Events  []Event   `json:"events"`
}

// Snapshot copies the journal contents.
func (j *Journal) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Snapshot{
		SavedAt: j.now(),
		Samples: append([]Sample(nil), j.samples...),
		Events:  append([]Event(nil), j.events...),
	}
}

// Restore merges s under what the journal already holds. Entries past
// retention are dropped.
func (j *Journal) Restore(s Snapshot) {
	now := j.now()
	j.mu.Lock()
	j.samples = mergeByTime(s.Samples, j.samples, func(v Sample) time.Time { return v.Timestamp })
	j.events = mergeByTime(s.Events, j.events, func(v Event) time.Time { return v.Timestamp })
	for i := range j.samples {
		j.samples[i].Rate = clampRate(j.samples[i].Rate)
	}
	j.compactLocked(now)
	j.mu.Unlock()
	j.version.Add(1)
}

func mergeByTime[T any](restored, live []T, ts func(T) time.Time) []T {
	out := make([]T, 0, len(restored)+len(live))
	out = append(out, restored...)
	out = append(out, live...)
	sort.SliceStable(out, func(i, k int) bool { return ts(out[i]).Before(ts(out[k])) })
	return out
}

// SaveFile writes the journal to path through a temporary file.
func (j *Journal) SaveFile(path string) error {
	data, err := json.MarshalIndent(j.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadFile restores a journal saved by SaveFile. A missing file is not an
// error.
func (j *Journal) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("journal %s: %w", path, err)
	}
	j.Restore(s)
	return nil
}
