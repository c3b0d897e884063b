// Package winmsg routes window messages of the agent's hidden window to
// subscribers and runs posted work on the window thread.
package winmsg

import (
	"sync"

	"github.com/rs/zerolog"
)

// Window message identifiers the agent listens for.
const (
	WMApp = 0x8000

	// WMAppDo asks the window thread to drain its work queue.
	WMAppDo = WMApp + 1
	// WMAppTray is the tray icon callback message.
	WMAppTray = WMApp + 10
	// WMAppACPI carries an ACPI notification code in wParam.
	WMAppACPI = WMApp + 0x40
	// WMAppTouchpad carries the touchpad state (0/1) in wParam.
	WMAppTouchpad = WMApp + 0x41

	WMDisplayChange   = 0x007E
	WMDPIChanged      = 0x02E0
	WMDeviceChange    = 0x0219
	WMPowerBroadcast  = 0x0218
	WMQueryEndSession = 0x0011
	WMEndSession      = 0x0016
)

// Handler receives the message parameters.
type Handler func(wParam, lParam uintptr)

type route struct {
	id uint64
	fn Handler
}

// Router fans window messages out to subscribers. Handlers run on the
// thread that calls Dispatch.
type Router struct {
	log zerolog.Logger

	mu     sync.Mutex
	next   uint64
	routes map[uint32][]route
}

func NewRouter(log zerolog.Logger) *Router {
	return &Router{
		log:    log.With().Str("component", "winmsg").Logger(),
		routes: make(map[uint32][]route),
	}
}

// Subscribe registers fn for msg. The returned function removes it.
func (r *Router) Subscribe(msg uint32, fn Handler) func() {
	r.mu.Lock()
	r.next++
	id := r.next
	r.routes[msg] = append(r.routes[msg], route{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			rs := r.routes[msg]
			for i, rt := range rs {
				if rt.id == id {
					r.routes[msg] = append(rs[:i:i], rs[i+1:]...)
					break
				}
			}
			if len(r.routes[msg]) == 0 {
				delete(r.routes, msg)
			}
		})
	}
}

// Dispatch calls every handler of msg in subscription order and reports
// whether there was one. A panicking handler is logged and does not stop
// the others.
func (r *Router) Dispatch(msg uint32, wParam, lParam uintptr) bool {
	r.mu.Lock()
	rs := append([]route(nil), r.routes[msg]...)
	r.mu.Unlock()

	for _, rt := range rs {
		r.call(msg, rt.fn, wParam, lParam)
	}
	return len(rs) > 0
}

func (r *Router) call(msg uint32, fn Handler, wParam, lParam uintptr) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Uint32("msg", msg).Msg("[WNDPROC] handler recovered")
		}
	}()
	fn(wParam, lParam)
}

// Handles reports whether msg has a subscriber.
func (r *Router) Handles(msg uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routes[msg]) > 0
}
