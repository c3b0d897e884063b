package keys_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joygram/flowOSD-sub000/internal/keys"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		report []byte
		want   keys.Code
		ok     bool
	}{
		{"aura", []byte{0x5A, 0xB3, 0, 0}, keys.Aura, true},
		{"fan", []byte{0x5A, 0xAE}, keys.Fan, true},
		{"unknown code", []byte{0x5A, 0x01}, 0, false},
		{"other report", []byte{0x01, 0xB3}, 0, false},
		{"too short", []byte{0x5A}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := keys.Decode(tt.report)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseCode(t *testing.T) {
	c, ok := keys.ParseCode("aura")
	require.True(t, ok)
	assert.Equal(t, keys.Aura, c)

	_, ok = keys.ParseCode("Escape")
	assert.False(t, ok)
	assert.Len(t, keys.All(), 11)
}

// scripted hands out reports one at a time; each read blocks until the test
// releases it.
type scripted struct {
	reads   chan struct{}
	reports chan []byte
	errs    chan error
}

func newScripted() *scripted {
	return &scripted{
		reads:   make(chan struct{}, 16),
		reports: make(chan []byte),
		errs:    make(chan error),
	}
}

func (s *scripted) ReadInput(ctx context.Context, buf []byte) (int, error) {
	s.reads <- struct{}{}
	select {
	case r := <-s.reports:
		return copy(buf, r), nil
	case err := <-s.errs:
		return 0, err
	}
}

type collector[T any] struct {
	mu   sync.Mutex
	vals []T
}

func (c *collector[T]) add(v T) {
	c.mu.Lock()
	c.vals = append(c.vals, v)
	c.mu.Unlock()
}

func (c *collector[T]) get() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.vals...)
}

func TestReaderPublishesKeysAndActivity(t *testing.T) {
	src := newScripted()
	r := keys.NewReader(src, zerolog.Nop())
	var pressed collector[keys.Code]
	var ticks collector[int64]
	r.Keys().Subscribe(pressed.add)
	r.Activity().Subscribe(ticks.add)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	src.reports <- []byte{0x5A, 0xB3}
	src.reports <- []byte{0x5A}
	src.reports <- []byte{0x5A, 0x01}
	src.errs <- errors.New("device busy")
	src.reports <- []byte{0x5A, 0xC4}
	for i := 0; i < 6; i++ {
		<-src.reads
	}
	cancel()
	src.reports <- []byte{0x5A, 0xC5}

	require.NoError(t, <-done)
	assert.Equal(t, []keys.Code{keys.Aura, keys.BacklightUp}, pressed.get())
	assert.Len(t, ticks.get(), 3)

	last, ok := r.LastReport()
	require.True(t, ok)
	assert.Equal(t, []byte{0x5A, 0xC4}, last)
}

func TestReaderStopsAfterCancelWithReportInFlight(t *testing.T) {
	src := newScripted()
	r := keys.NewReader(src, zerolog.Nop())
	var pressed collector[keys.Code]
	r.Keys().Subscribe(pressed.add)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	<-src.reads
	cancel()
	src.reports <- []byte{0x5A, 0xB3}

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reader did not exit")
	}
	assert.Empty(t, pressed.get())
	assert.Len(t, src.reads, 0, "no further read started")
}

func TestSaveReport(t *testing.T) {
	dir := t.TempDir()
	path, err := keys.SaveReport(dir, []byte("ASUS\x00\x5a"), time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "hid_report_20240501-100000.txt"))
	assert.Contains(t, string(body), "|ASUS.Z|")
	assert.Contains(t, string(body), "raw=41535553005A")

	_, err = keys.SaveReport(dir, nil, time.Now())
	assert.Error(t, err)
}
