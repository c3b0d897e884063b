//go:build windows
// +build windows

package display

import (
	"errors"
	"unsafe"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"
)

var procEnumDisplaySettingsW = windows.NewLazySystemDLL("user32.dll").NewProc("EnumDisplaySettingsW")

const enumCurrentSettings = 0xFFFFFFFF

// System reads the primary display through EnumDisplaySettingsW.
type System struct{}

func (System) CurrentMode() (Mode, error) {
	var dm win.DEVMODE
	dm.DmSize = uint16(unsafe.Sizeof(dm))
	r, _, _ := procEnumDisplaySettingsW.Call(0, enumCurrentSettings, uintptr(unsafe.Pointer(&dm)))
	if r == 0 {
		return Mode{}, errors.New("EnumDisplaySettingsW failed")
	}
	return Mode{
		Width:       int(dm.DmPelsWidth),
		Height:      int(dm.DmPelsHeight),
		RefreshRate: int(dm.DmDisplayFrequency),
		BitsPerPel:  int(dm.DmBitsPerPel),
	}, nil
}

// CurrentDPI returns the system DPI, used before the first WM_DPICHANGED.
func CurrentDPI() int {
	hdc := win.GetDC(0)
	if hdc == 0 {
		return DefaultDPI
	}
	defer win.ReleaseDC(0, hdc)
	return int(win.GetDeviceCaps(hdc, win.LOGPIXELSX))
}
