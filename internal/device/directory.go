package device

import (
	"io"
	"sort"
	"sync"

	"go.uber.org/multierr"
)

// Directory records which bridges exist at runtime. A bridge that failed to
// construct is absent; callers check Lookup instead of handling a crash.
type Directory struct {
	mu      sync.Mutex
	entries map[string]any
	order   []string
	reasons map[string]string
	closed  bool
}

func NewDirectory() *Directory {
	return &Directory{
		entries: make(map[string]any),
		reasons: make(map[string]string),
	}
}

// Register adds a present bridge under name.
func (d *Directory) Register(name string, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[name]; !ok {
		d.order = append(d.order, name)
	}
	d.entries[name] = v
	delete(d.reasons, name)
}

// MarkAbsent records why name is not available.
func (d *Directory) MarkAbsent(name string, reason error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if reason != nil {
		d.reasons[name] = reason.Error()
	} else {
		d.reasons[name] = ErrUnsupported.Error()
	}
}

// Lookup returns the bridge registered under name.
func (d *Directory) Lookup(name string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.entries[name]
	return v, ok
}

// Entry describes one directory slot.
type Entry struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
	Reason  string `json:"reason,omitempty"`
}

// Entries lists present bridges in registration order followed by absent
// ones sorted by name.
func (d *Directory) Entries() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Entry, 0, len(d.order)+len(d.reasons))
	for _, name := range d.order {
		out = append(out, Entry{Name: name, Present: true})
	}
	absent := make([]string, 0, len(d.reasons))
	for name := range d.reasons {
		absent = append(absent, name)
	}
	sort.Strings(absent)
	for _, name := range absent {
		out = append(out, Entry{Name: name, Reason: d.reasons[name]})
	}
	return out
}

// Close closes every registered io.Closer in reverse registration order.
// Only the first call does any work.
func (d *Directory) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	order := append([]string(nil), d.order...)
	entries := d.entries
	d.mu.Unlock()

	var err error
	for i := len(order) - 1; i >= 0; i-- {
		if c, ok := entries[order[i]].(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
