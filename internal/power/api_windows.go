//go:build windows
// +build windows

package power

import (
	"fmt"
	"sync"
	"syscall"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/windows"
)

var (
	powrprof = windows.NewLazySystemDLL("powrprof.dll")
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procPowerGetActiveScheme     = powrprof.NewProc("PowerGetActiveScheme")
	procPowerSetActiveScheme     = powrprof.NewProc("PowerSetActiveScheme")
	procPowerReadACValueIndex    = powrprof.NewProc("PowerReadACValueIndex")
	procPowerReadDCValueIndex    = powrprof.NewProc("PowerReadDCValueIndex")
	procPowerWriteACValueIndex   = powrprof.NewProc("PowerWriteACValueIndex")
	procPowerWriteDCValueIndex   = powrprof.NewProc("PowerWriteDCValueIndex")
	procPowerRegisterEffective   = powrprof.NewProc("PowerRegisterForEffectivePowerModeNotifications")
	procPowerUnregisterEffective = powrprof.NewProc("PowerUnregisterFromEffectivePowerModeNotifications")

	procRegisterPowerSettingNotification   = user32.NewProc("RegisterPowerSettingNotification")
	procUnregisterPowerSettingNotification = user32.NewProc("UnregisterPowerSettingNotification")

	procGetSystemPowerStatus = kernel32.NewProc("GetSystemPowerStatus")
)

const (
	deviceNotifyWindowHandle = 0
	effectivePowerModeV2     = 2
)

// System is the powrprof/user32 implementation of API. Setting broadcasts
// are delivered to hwnd as WM_POWERBROADCAST.
type System struct {
	hwnd uintptr
}

var _ API = (*System)(nil)

func NewSystem(hwnd uintptr) *System { return &System{hwnd: hwnd} }

func guidPtr(u uuid.UUID) *windows.GUID {
	b := ToWindowsGUID(u)
	g := new(windows.GUID)
	*g = *(*windows.GUID)(unsafe.Pointer(&b[0]))
	return g
}

func win32err(op string, r uintptr) error {
	if r == 0 {
		return nil
	}
	return fmt.Errorf("%s: %w", op, syscall.Errno(r))
}

func (s *System) ActiveScheme() (uuid.UUID, error) {
	var p *windows.GUID
	r, _, _ := procPowerGetActiveScheme.Call(0, uintptr(unsafe.Pointer(&p)))
	if err := win32err("PowerGetActiveScheme", r); err != nil {
		return uuid.Nil, err
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(p)))
	b := unsafe.Slice((*byte)(unsafe.Pointer(p)), 16)
	return FromWindowsGUID(b)
}

func (s *System) SetActiveScheme(scheme uuid.UUID) error {
	r, _, _ := procPowerSetActiveScheme.Call(0, uintptr(unsafe.Pointer(guidPtr(scheme))))
	return win32err("PowerSetActiveScheme", r)
}

func (s *System) ReadValueIndex(scheme, subgroup, setting uuid.UUID, ac bool) (uint32, error) {
	proc, name := procPowerReadDCValueIndex, "PowerReadDCValueIndex"
	if ac {
		proc, name = procPowerReadACValueIndex, "PowerReadACValueIndex"
	}
	var v uint32
	r, _, _ := proc.Call(0,
		uintptr(unsafe.Pointer(guidPtr(scheme))),
		uintptr(unsafe.Pointer(guidPtr(subgroup))),
		uintptr(unsafe.Pointer(guidPtr(setting))),
		uintptr(unsafe.Pointer(&v)))
	return v, win32err(name, r)
}

func (s *System) WriteValueIndex(scheme, subgroup, setting uuid.UUID, ac bool, value uint32) error {
	proc, name := procPowerWriteDCValueIndex, "PowerWriteDCValueIndex"
	if ac {
		proc, name = procPowerWriteACValueIndex, "PowerWriteACValueIndex"
	}
	r, _, _ := proc.Call(0,
		uintptr(unsafe.Pointer(guidPtr(scheme))),
		uintptr(unsafe.Pointer(guidPtr(subgroup))),
		uintptr(unsafe.Pointer(guidPtr(setting))),
		uintptr(value))
	return win32err(name, r)
}

type systemPowerStatus struct {
	ACLineStatus        byte
	BatteryFlag         byte
	BatteryLifePercent  byte
	SystemStatusFlag    byte
	BatteryLifeTime     uint32
	BatteryFullLifeTime uint32
}

func (s *System) OnAC() (bool, error) {
	var st systemPowerStatus
	r, _, err := procGetSystemPowerStatus.Call(uintptr(unsafe.Pointer(&st)))
	if r == 0 {
		return false, fmt.Errorf("GetSystemPowerStatus: %w", err)
	}
	return st.ACLineStatus == 1, nil
}

type settingRegistration struct {
	once sync.Once
	h    uintptr
}

func (r *settingRegistration) Close() error {
	var err error
	r.once.Do(func() {
		ret, _, e := procUnregisterPowerSettingNotification.Call(r.h)
		if ret == 0 {
			err = fmt.Errorf("UnregisterPowerSettingNotification: %w", e)
		}
	})
	return err
}

func (s *System) RegisterSetting(setting uuid.UUID) (Registration, error) {
	h, _, err := procRegisterPowerSettingNotification.Call(s.hwnd,
		uintptr(unsafe.Pointer(guidPtr(setting))), deviceNotifyWindowHandle)
	if h == 0 {
		return nil, fmt.Errorf("RegisterPowerSettingNotification: %w", err)
	}
	return &settingRegistration{h: h}, nil
}

// Effective power mode callbacks arrive on a system thread with the
// context value passed at registration. The context is a key into this
// table, never a Go pointer, and a closed registration is removed before
// it is unregistered so a late callback finds nothing.
var (
	effectiveOnce     sync.Once
	effectiveCallback uintptr

	effectiveMu   sync.Mutex
	effectiveNext uintptr
	effectiveFns  = map[uintptr]func(uint32){}
)

func effectiveModeCallback(mode, context uintptr) uintptr {
	effectiveMu.Lock()
	fn := effectiveFns[context]
	effectiveMu.Unlock()
	if fn != nil {
		fn(uint32(mode))
	}
	return 0
}

type effectiveRegistration struct {
	once sync.Once
	key  uintptr
	h    uintptr
}

func (r *effectiveRegistration) Close() error {
	var err error
	r.once.Do(func() {
		effectiveMu.Lock()
		delete(effectiveFns, r.key)
		effectiveMu.Unlock()
		ret, _, _ := procPowerUnregisterEffective.Call(r.h)
		err = win32err("PowerUnregisterFromEffectivePowerModeNotifications", ret)
	})
	return err
}

func (s *System) RegisterEffectiveMode(fn func(mode uint32)) (Registration, error) {
	if err := procPowerRegisterEffective.Find(); err != nil {
		return nil, err
	}
	effectiveOnce.Do(func() { effectiveCallback = windows.NewCallback(effectiveModeCallback) })

	effectiveMu.Lock()
	effectiveNext++
	key := effectiveNext
	effectiveFns[key] = fn
	effectiveMu.Unlock()

	var h uintptr
	ret, _, _ := procPowerRegisterEffective.Call(effectivePowerModeV2, effectiveCallback, key, uintptr(unsafe.Pointer(&h)))
	if ret != 0 {
		effectiveMu.Lock()
		delete(effectiveFns, key)
		effectiveMu.Unlock()
		return nil, fmt.Errorf("PowerRegisterForEffectivePowerModeNotifications: hresult 0x%08x", uint32(ret))
	}
	return &effectiveRegistration{key: key, h: h}, nil
}

// SettingPayload copies the POWERBROADCAST_SETTING that lParam points to.
func SettingPayload(lParam uintptr) []byte {
	if lParam == 0 {
		return nil
	}
	hdr := unsafe.Slice((*byte)(unsafe.Pointer(lParam)), powerSettingHeaderSize)
	n := int(*(*uint32)(unsafe.Pointer(&hdr[16])))
	full := unsafe.Slice((*byte)(unsafe.Pointer(lParam)), powerSettingHeaderSize+n)
	return append([]byte(nil), full...)
}
