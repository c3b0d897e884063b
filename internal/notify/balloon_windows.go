//go:build windows
// +build windows

package notify

import (
	"errors"
	"sync"
	"syscall"
	"unsafe"

	"github.com/lxn/win"
)

// Balloon shows notifications as tray balloons. Shell calls run through
// post, which must execute on the thread that owns hwnd.
type Balloon struct {
	mu   sync.Mutex
	nid  win.NOTIFYICONDATA
	post func(func())
	done bool
}

// NewBalloon adds the tray icon that balloons are attached to.
func NewBalloon(hwnd win.HWND, callbackMsg uint32, tip string, post func(func())) (*Balloon, error) {
	b := &Balloon{post: post}
	b.nid.CbSize = uint32(unsafe.Sizeof(b.nid))
	b.nid.HWnd = hwnd
	b.nid.UID = 1
	b.nid.UFlags = win.NIF_ICON | win.NIF_MESSAGE | win.NIF_TIP
	b.nid.UCallbackMessage = callbackMsg
	b.nid.HIcon = win.LoadIcon(0, win.MAKEINTRESOURCE(win.IDI_APPLICATION))
	t, _ := syscall.UTF16FromString(tip)
	copy(b.nid.SzTip[:len(b.nid.SzTip)-1], t)

	if !win.Shell_NotifyIcon(win.NIM_ADD, &b.nid) {
		return nil, errors.New("Shell_NotifyIcon NIM_ADD failed")
	}
	b.nid.UVersion = win.NOTIFYICON_VERSION_4
	win.Shell_NotifyIcon(win.NIM_SETVERSION, &b.nid)
	return b, nil
}

func (b *Balloon) Show(n Notification) {
	title, _ := syscall.UTF16FromString(n.Title)
	text, _ := syscall.UTF16FromString(n.Text)

	b.post(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.done {
			return
		}
		for i := range b.nid.SzInfoTitle {
			b.nid.SzInfoTitle[i] = 0
		}
		for i := range b.nid.SzInfo {
			b.nid.SzInfo[i] = 0
		}
		copy(b.nid.SzInfoTitle[:len(b.nid.SzInfoTitle)-1], title)
		copy(b.nid.SzInfo[:len(b.nid.SzInfo)-1], text)

		b.nid.UFlags = win.NIF_INFO
		b.nid.DwInfoFlags = win.NIIF_INFO
		if n.Critical {
			b.nid.DwInfoFlags = win.NIIF_WARNING
		}
		win.Shell_NotifyIcon(win.NIM_MODIFY, &b.nid)

		b.nid.UFlags = win.NIF_ICON | win.NIF_MESSAGE | win.NIF_TIP
		win.Shell_NotifyIcon(win.NIM_MODIFY, &b.nid)
	})
}

// Close removes the tray icon. Call it on the window thread.
func (b *Balloon) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return nil
	}
	b.done = true
	win.Shell_NotifyIcon(win.NIM_DELETE, &b.nid)
	return nil
}
