//go:build windows
// +build windows

package hidio

import (
	"errors"
	"time"

	"github.com/sstallion/go-hid"
)

// System is the hidapi-backed transport.
type System struct{}

var _ Transport = System{}

// Init initializes hidapi; call Exit on shutdown.
func Init() error { return hid.Init() }

func Exit() error { return hid.Exit() }

func (System) Enumerate(vendorID uint16) ([]Info, error) {
	var out []Info
	err := hid.Enumerate(vendorID, 0, func(info *hid.DeviceInfo) error {
		out = append(out, fromDeviceInfo(info))
		return nil
	})
	return out, err
}

func (System) Open(path string) (Device, error) {
	d, err := hid.OpenPath(path)
	if err != nil {
		return nil, err
	}
	return hidDevice{d}, nil
}

func fromDeviceInfo(info *hid.DeviceInfo) Info {
	return Info{
		Path:      info.Path,
		VendorID:  info.VendorID,
		ProductID: info.ProductID,
		UsagePage: info.UsagePage,
		Usage:     info.Usage,
		Interface: info.InterfaceNbr,
		Product:   info.ProductStr,
	}
}

type hidDevice struct{ *hid.Device }

func (d hidDevice) ReadWithTimeout(b []byte, t time.Duration) (int, error) {
	n, err := d.Device.ReadWithTimeout(b, t)
	if errors.Is(err, hid.ErrTimeout) {
		return 0, ErrTimeout
	}
	return n, err
}
