//go:build windows
// +build windows

package battery

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/joygram/flowOSD-sub000/internal/device"
)

var (
	setupapi = windows.NewLazySystemDLL("setupapi.dll")

	procSetupDiGetClassDevsW             = setupapi.NewProc("SetupDiGetClassDevsW")
	procSetupDiEnumDeviceInterfaces      = setupapi.NewProc("SetupDiEnumDeviceInterfaces")
	procSetupDiGetDeviceInterfaceDetailW = setupapi.NewProc("SetupDiGetDeviceInterfaceDetailW")
	procSetupDiDestroyDeviceInfoList     = setupapi.NewProc("SetupDiDestroyDeviceInfoList")

	// GUID_DEVCLASS_BATTERY
	guidDevClassBattery = windows.GUID{
		Data1: 0x72631e54,
		Data2: 0x78a4,
		Data3: 0x11d0,
		Data4: [8]byte{0xbc, 0xf7, 0x00, 0xaa, 0x00, 0xb7, 0xb3, 0x2a},
	}
)

const (
	digcfPresent         = 0x00000002
	digcfDeviceInterface = 0x00000010
)

type spDeviceInterfaceData struct {
	cbSize             uint32
	interfaceClassGUID windows.GUID
	flags              uint32
	reserved           uintptr
}

// System enumerates batteries through SetupAPI and opens them with
// device.Open.
type System struct{}

var _ Transport = System{}

func (System) Open(path string) (device.Control, error) { return device.Open(path) }

func (System) Enumerate() ([]string, error) {
	hdev, _, callErr := procSetupDiGetClassDevsW.Call(
		uintptr(unsafe.Pointer(&guidDevClassBattery)),
		0,
		0,
		digcfPresent|digcfDeviceInterface,
	)
	if windows.Handle(hdev) == windows.InvalidHandle {
		return nil, fmt.Errorf("SetupDiGetClassDevs: %w", callErr)
	}
	defer procSetupDiDestroyDeviceInfoList.Call(hdev)

	var paths []string
	for i := uint32(0); ; i++ {
		did := spDeviceInterfaceData{}
		did.cbSize = uint32(unsafe.Sizeof(did))
		r, _, err := procSetupDiEnumDeviceInterfaces.Call(
			hdev,
			0,
			uintptr(unsafe.Pointer(&guidDevClassBattery)),
			uintptr(i),
			uintptr(unsafe.Pointer(&did)),
		)
		if r == 0 {
			if errors.Is(err, windows.ERROR_NO_MORE_ITEMS) {
				break
			}
			return paths, fmt.Errorf("SetupDiEnumDeviceInterfaces: %w", err)
		}
		path, err := interfacePath(hdev, &did)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func interfacePath(hdev uintptr, did *spDeviceInterfaceData) (string, error) {
	var required uint32
	procSetupDiGetDeviceInterfaceDetailW.Call(
		hdev,
		uintptr(unsafe.Pointer(did)),
		0,
		0,
		uintptr(unsafe.Pointer(&required)),
		0,
	)
	if required == 0 {
		return "", errors.New("SetupDiGetDeviceInterfaceDetail: empty detail")
	}

	buf := make([]uint16, (required+1)/2+1)
	// SP_DEVICE_INTERFACE_DETAIL_DATA_W.cbSize is the fixed part only.
	cbSize := uint32(6)
	if unsafe.Sizeof(uintptr(0)) == 8 {
		cbSize = 8
	}
	*(*uint32)(unsafe.Pointer(&buf[0])) = cbSize

	r, _, err := procSetupDiGetDeviceInterfaceDetailW.Call(
		hdev,
		uintptr(unsafe.Pointer(did)),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(required),
		0,
		0,
	)
	if r == 0 {
		return "", fmt.Errorf("SetupDiGetDeviceInterfaceDetail: %w", err)
	}
	// DevicePath starts right after cbSize.
	return windows.UTF16ToString(buf[2:]), nil
}
