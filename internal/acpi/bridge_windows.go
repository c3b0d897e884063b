//go:build windows
// +build windows

package acpi

import (
	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/device"
)

// Open opens the ATK control device. A machine without the vendor driver
// yields device.ErrUnsupported.
func Open(log zerolog.Logger, opts ...Option) (*Bridge, error) {
	h, err := device.Open(DevicePath)
	if err != nil {
		return nil, err
	}
	return New(h, log, opts...), nil
}
