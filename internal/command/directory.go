// Package command is the name -> command registry shared by hotkeys, the
// tray and the local API.
package command

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknown is returned by Invoke for a name nothing is registered under.
var ErrUnknown = errors.New("unknown command")

// Command is one invocable action. Parameter meaning is command specific;
// an empty parameter selects the command's default behaviour.
type Command interface {
	Name() string
	Description() string
	// Hotkey reports whether the command may be bound to a key.
	Hotkey() bool
	Execute(param string) error
}

// Func is a Command backed by a function.
type Func struct {
	name, desc string
	hotkey     bool
	fn         func(param string) error
}

// New returns a hotkey-invocable command.
func New(name, desc string, fn func(param string) error) *Func {
	return &Func{name: name, desc: desc, hotkey: true, fn: fn}
}

// Settings returns a command reachable from settings surfaces but never
// from a key.
func Settings(name, desc string, fn func(param string) error) *Func {
	return &Func{name: name, desc: desc, fn: fn}
}

func (c *Func) Name() string               { return c.name }
func (c *Func) Description() string        { return c.desc }
func (c *Func) Hotkey() bool               { return c.hotkey }
func (c *Func) Execute(param string) error { return c.fn(param) }

// Info is the listing form of a command.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Hotkey      bool   `json:"hotkey"`
}

// Directory maps stable names to commands.
type Directory struct {
	mu   sync.RWMutex
	cmds map[string]Command
}

func NewDirectory() *Directory {
	return &Directory{cmds: make(map[string]Command)}
}

// Register adds c, replacing any command with the same name.
func (d *Directory) Register(c Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmds[c.Name()] = c
}

// Resolve looks name up. A missing name is not an error.
func (d *Directory) Resolve(name string) (Command, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.cmds[name]
	return c, ok
}

// List returns the hotkey-invocable commands sorted by name.
func (d *Directory) List() []Info {
	return d.collect(true)
}

// All returns every command sorted by name.
func (d *Directory) All() []Info {
	return d.collect(false)
}

func (d *Directory) collect(hotkeyOnly bool) []Info {
	d.mu.RLock()
	out := make([]Info, 0, len(d.cmds))
	for _, c := range d.cmds {
		if hotkeyOnly && !c.Hotkey() {
			continue
		}
		out = append(out, Info{Name: c.Name(), Description: c.Description(), Hotkey: c.Hotkey()})
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke resolves and executes name.
func (d *Directory) Invoke(name, param string) error {
	c, ok := d.Resolve(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	if err := c.Execute(param); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
