package winmsg

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDispatchInSubscriptionOrder(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	var got []string
	r.Subscribe(WMDisplayChange, func(w, l uintptr) { got = append(got, "first") })
	cancel := r.Subscribe(WMDisplayChange, func(w, l uintptr) { got = append(got, "second") })
	r.Subscribe(WMDisplayChange, func(w, l uintptr) { got = append(got, "third") })

	assert.True(t, r.Dispatch(WMDisplayChange, 0, 0))
	assert.Equal(t, []string{"first", "second", "third"}, got)

	got = nil
	cancel()
	cancel()
	r.Dispatch(WMDisplayChange, 0, 0)
	assert.Equal(t, []string{"first", "third"}, got)
}

func TestDispatchWithoutHandler(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	assert.False(t, r.Dispatch(WMDeviceChange, 7, 0))

	cancel := r.Subscribe(WMDeviceChange, func(w, l uintptr) {})
	assert.True(t, r.Handles(WMDeviceChange))
	cancel()
	assert.False(t, r.Handles(WMDeviceChange))
}

func TestDispatchPassesParameters(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	var w, l uintptr
	r.Subscribe(WMAppACPI, func(wp, lp uintptr) { w, l = wp, lp })
	r.Dispatch(WMAppACPI, 0xBD, 42)
	assert.Equal(t, uintptr(0xBD), w)
	assert.Equal(t, uintptr(42), l)
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	var reached bool
	r.Subscribe(WMAppTouchpad, func(w, l uintptr) { panic("boom") })
	r.Subscribe(WMAppTouchpad, func(w, l uintptr) { reached = true })

	assert.NotPanics(t, func() { r.Dispatch(WMAppTouchpad, 1, 0) })
	assert.True(t, reached)
}

func TestHandlerMayUnsubscribeDuringDispatch(t *testing.T) {
	r := NewRouter(zerolog.Nop())
	var calls int
	var cancel func()
	cancel = r.Subscribe(WMEndSession, func(w, l uintptr) {
		calls++
		cancel()
	})
	r.Dispatch(WMEndSession, 1, 0)
	r.Dispatch(WMEndSession, 1, 0)
	assert.Equal(t, 1, calls)
}
