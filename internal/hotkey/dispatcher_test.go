package hotkey_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joygram/flowOSD-sub000/internal/command"
	"github.com/joygram/flowOSD-sub000/internal/hotkey"
	"github.com/joygram/flowOSD-sub000/internal/keys"
	"github.com/joygram/flowOSD-sub000/internal/stream"
)

type calls struct {
	mu     sync.Mutex
	params []string
}

func (c *calls) add(p string) {
	c.mu.Lock()
	c.params = append(c.params, p)
	c.mu.Unlock()
}

func (c *calls) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.params...)
}

func newDirectory(c *calls) *command.Directory {
	d := command.NewDirectory()
	d.Register(command.New("performance-mode", "", func(p string) error { c.add(p); return nil }))
	d.Register(command.Settings("charge-limit", "", func(p string) error { c.add(p); return nil }))
	return d
}

func TestUnresolvedCommandLeavesKeyIdle(t *testing.T) {
	c := &calls{}
	d := hotkey.New(newDirectory(c), zerolog.Nop(), nil)

	d.Configure(map[string]hotkey.Binding{
		"aura": {Command: "aura-effects"},
		"Fan":  {Command: "performance-mode", Parameter: "turbo"},
	})
	assert.Equal(t, hotkey.Idle, d.State(keys.Aura))
	assert.Equal(t, hotkey.Bound, d.State(keys.Fan))

	ran, err := d.Dispatch(keys.Aura)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Empty(t, c.get())

	ran, err = d.Dispatch(keys.Fan)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{"turbo"}, c.get())
}

func TestConfigureRebindsEveryKey(t *testing.T) {
	c := &calls{}
	dir := newDirectory(c)
	d := hotkey.New(dir, zerolog.Nop(), nil)

	d.Configure(map[string]hotkey.Binding{"Rog": {Command: "performance-mode"}})
	assert.Equal(t, []hotkey.Entry{{Key: "Rog", Command: "performance-mode"}}, d.Bound())

	// A settings-only command cannot be bound.
	assert.Equal(t, hotkey.Idle, d.Bind(keys.Rog, hotkey.Binding{Command: "charge-limit"}))

	d.Configure(map[string]hotkey.Binding{"Rog": {Command: "performance-mode"}})
	d.Configure(map[string]hotkey.Binding{"Mic": {Command: "performance-mode", Parameter: "silent"}})
	assert.Equal(t, hotkey.Idle, d.State(keys.Rog))
	assert.Equal(t, hotkey.Bound, d.State(keys.Mic))

	// A command registered later resolves on the next configuration change.
	d.Configure(map[string]hotkey.Binding{"Aura": {Command: "aura-effects"}})
	assert.Equal(t, hotkey.Idle, d.State(keys.Aura))
	dir.Register(command.New("aura-effects", "", func(string) error { return nil }))
	d.Configure(map[string]hotkey.Binding{"Aura": {Command: "aura-effects"}})
	assert.Equal(t, hotkey.Bound, d.State(keys.Aura))
}

func TestAttachDebouncesBouncyKeys(t *testing.T) {
	c := &calls{}
	var hooked []string
	var mu sync.Mutex
	d := hotkey.New(newDirectory(c), zerolog.Nop(), func(k keys.Code, name string, err error) {
		mu.Lock()
		hooked = append(hooked, k.String()+":"+name)
		mu.Unlock()
	})
	d.Configure(map[string]hotkey.Binding{"Fan": {Command: "performance-mode"}})

	src := stream.NewSubject[keys.Code]()
	src.Publish(keys.Fan) // pressed before attach, never dispatched
	loop := stream.NewLoop()
	defer loop.Close()
	cancel := d.Attach(src, 50*time.Millisecond, loop)
	defer cancel()

	for i := 0; i < 5; i++ {
		src.Publish(keys.Fan)
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return len(c.get()) == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, c.get(), 1)
	mu.Lock()
	assert.Equal(t, []string{"Fan:performance-mode"}, hooked)
	mu.Unlock()
}
