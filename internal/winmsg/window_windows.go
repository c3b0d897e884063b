//go:build windows
// +build windows

package winmsg

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/lxn/win"
	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/stream"
)

var (
	wndProcOnce sync.Once
	wndProcPtr  uintptr

	hwndsMu sync.Mutex
	hwnds   = map[win.HWND]*Window{}
)

// Window is a never-shown top-level window. Its thread is the agent's
// coordination thread: message handlers and posted work run there, one at
// a time.
type Window struct {
	*Router

	log   zerolog.Logger
	hwnd  atomic.Uintptr
	queue *stream.Queue

	closeOnce sync.Once
	done      chan struct{}
}

var _ stream.Executor = (*Window)(nil)

// Open creates the window on a dedicated locked OS thread and returns once
// it exists.
func Open(className string, log zerolog.Logger) (*Window, error) {
	w := &Window{
		Router: NewRouter(log),
		log:    log.With().Str("component", "window").Logger(),
		done:   make(chan struct{}),
	}
	w.queue = stream.NewQueue(w.nudge)

	ready := make(chan error, 1)
	go w.run(className, ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return w, nil
}

// HWND returns the window handle.
func (w *Window) HWND() win.HWND { return win.HWND(w.hwnd.Load()) }

// Post runs fn on the window thread.
func (w *Window) Post(fn func()) { w.queue.Post(fn) }

func (w *Window) nudge() {
	if h := w.HWND(); h != 0 {
		win.PostMessage(h, WMAppDo, 0, 0)
	}
}

// Done is closed when the message loop has exited.
func (w *Window) Done() <-chan struct{} { return w.done }

// Close destroys the window and waits for the message loop to exit.
func (w *Window) Close() error {
	w.closeOnce.Do(func() {
		if h := w.HWND(); h != 0 {
			win.PostMessage(h, win.WM_CLOSE, 0, 0)
		}
	})
	select {
	case <-w.done:
		return nil
	case <-time.After(5 * time.Second):
		return errors.New("window thread did not exit")
	}
}

func (w *Window) run(className string, ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	wndProcOnce.Do(func() { wndProcPtr = syscall.NewCallback(wndProc) })

	hInst := win.GetModuleHandle(nil)
	cls, err := syscall.UTF16PtrFromString(className)
	if err != nil {
		ready <- err
		return
	}
	wc := win.WNDCLASSEX{
		CbSize:        uint32(unsafe.Sizeof(win.WNDCLASSEX{})),
		LpfnWndProc:   wndProcPtr,
		HInstance:     hInst,
		LpszClassName: cls,
	}
	if win.RegisterClassEx(&wc) == 0 {
		ready <- fmt.Errorf("RegisterClassEx %s failed", className)
		return
	}

	hwnd := win.CreateWindowEx(0, cls, cls, 0, 0, 0, 0, 0, 0, 0, hInst, nil)
	if hwnd == 0 {
		ready <- fmt.Errorf("CreateWindowEx %s failed", className)
		return
	}
	hwndsMu.Lock()
	hwnds[hwnd] = w
	hwndsMu.Unlock()
	w.hwnd.Store(uintptr(hwnd))
	ready <- nil

	// Work posted before the handle existed.
	w.nudge()

	var msg win.MSG
	for win.GetMessage(&msg, 0, 0, 0) > 0 {
		win.TranslateMessage(&msg)
		win.DispatchMessage(&msg)
	}
	w.log.Debug().Msg("message loop exited")
}

func (w *Window) drain() {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("[WINDOW_OP] op recovered")
		}
	}()
	start := time.Now()
	n := w.queue.Drain()
	if dur := time.Since(start); dur > 200*time.Millisecond {
		w.log.Warn().Dur("took", dur).Int("ops", n).Msg("[WINDOW_OP] long-running ops")
	}
}

func wndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	hwndsMu.Lock()
	w := hwnds[hwnd]
	hwndsMu.Unlock()
	if w == nil {
		return win.DefWindowProc(hwnd, msg, wParam, lParam)
	}

	switch msg {
	case WMAppDo:
		w.drain()
		return 0
	case win.WM_CLOSE:
		win.DestroyWindow(hwnd)
		return 0
	case win.WM_DESTROY:
		hwndsMu.Lock()
		delete(hwnds, hwnd)
		hwndsMu.Unlock()
		w.hwnd.Store(0)
		// Run what is still queued; nothing drains it afterwards.
		w.drain()
		win.PostQuitMessage(0)
		return 0
	case WMPowerBroadcast:
		w.Dispatch(msg, wParam, lParam)
		return 1
	case WMQueryEndSession:
		w.Dispatch(msg, wParam, lParam)
		return 1
	}
	if w.Dispatch(msg, wParam, lParam) {
		return 0
	}
	return win.DefWindowProc(hwnd, msg, wParam, lParam)
}
