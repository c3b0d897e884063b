// Package hotkey binds vendor keys to directory commands.
package hotkey

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/command"
	"github.com/joygram/flowOSD-sub000/internal/keys"
	"github.com/joygram/flowOSD-sub000/internal/stream"
)

// Binding is the configured command for one key.
type Binding struct {
	Command   string `mapstructure:"command" json:"command"`
	Parameter string `mapstructure:"parameter" json:"parameter,omitempty"`
}

// State of one key.
type State int

const (
	Idle State = iota
	Bound
)

func (s State) String() string {
	if s == Bound {
		return "bound"
	}
	return "idle"
}

// Resolver finds commands by name.
type Resolver interface {
	Resolve(name string) (command.Command, bool)
}

// InvokeHook observes every dispatched command.
type InvokeHook func(key keys.Code, name string, err error)

type slot struct {
	cmd   command.Command
	param string
}

// Dispatcher holds one Idle/Bound state per key.
type Dispatcher struct {
	dir      Resolver
	log      zerolog.Logger
	onInvoke InvokeHook

	mu    sync.Mutex
	slots map[keys.Code]slot
}

func New(dir Resolver, log zerolog.Logger, onInvoke InvokeHook) *Dispatcher {
	return &Dispatcher{
		dir:      dir,
		log:      log.With().Str("component", "hotkey").Logger(),
		onInvoke: onInvoke,
		slots:    make(map[keys.Code]slot),
	}
}

// Configure re-resolves every key from bindings, keyed by key name. Keys
// missing from bindings, and bindings naming a command the directory does
// not have, go Idle.
func (d *Dispatcher) Configure(bindings map[string]Binding) {
	byCode := make(map[keys.Code]Binding, len(bindings))
	for name, b := range bindings {
		code, ok := keys.ParseCode(name)
		if !ok {
			d.log.Warn().Str("key", name).Msg("hotkey for unknown key ignored")
			continue
		}
		byCode[code] = b
	}
	for _, code := range keys.All() {
		d.Bind(code, byCode[code])
	}
}

// Bind resolves b for key and returns the resulting state.
func (d *Dispatcher) Bind(key keys.Code, b Binding) State {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b.Command == "" {
		delete(d.slots, key)
		return Idle
	}
	cmd, ok := d.dir.Resolve(b.Command)
	if !ok || !cmd.Hotkey() {
		d.log.Info().Stringer("key", key).Str("command", b.Command).Msg("hotkey command not available, key idle")
		delete(d.slots, key)
		return Idle
	}
	d.slots[key] = slot{cmd: cmd, param: b.Parameter}
	return Bound
}

func (d *Dispatcher) State(key keys.Code) State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.slots[key]; ok {
		return Bound
	}
	return Idle
}

// Entry describes one bound key.
type Entry struct {
	Key       string `json:"key"`
	Command   string `json:"command"`
	Parameter string `json:"parameter,omitempty"`
}

// Bound lists bound keys sorted by key name.
func (d *Dispatcher) Bound() []Entry {
	d.mu.Lock()
	out := make([]Entry, 0, len(d.slots))
	for code, s := range d.slots {
		out = append(out, Entry{Key: code.String(), Command: s.cmd.Name(), Parameter: s.param})
	}
	d.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Dispatch runs the command bound to key. An idle key does nothing and
// reports false.
func (d *Dispatcher) Dispatch(key keys.Code) (bool, error) {
	d.mu.Lock()
	s, ok := d.slots[key]
	d.mu.Unlock()
	if !ok {
		return false, nil
	}

	err := s.cmd.Execute(s.param)
	if d.onInvoke != nil {
		d.onInvoke(key, s.cmd.Name(), err)
	}
	return true, err
}

// Attach dispatches key events from src, debounced by debounce and
// delivered on exec. The replayed last key is not dispatched.
func (d *Dispatcher) Attach(src stream.Observable[keys.Code], debounce time.Duration, exec stream.Executor) func() {
	events := stream.ObserveOn(stream.Debounce(stream.Updates(src), debounce), exec)
	return events.Subscribe(func(key keys.Code) {
		ran, err := d.Dispatch(key)
		switch {
		case err != nil:
			d.log.Error().Err(err).Stringer("key", key).Msg("hotkey command failed")
		case ran:
			d.log.Debug().Stringer("key", key).Msg("hotkey")
		}
	})
}
