// Package device owns raw device handles and the runtime directory of
// hardware bridges that could be created on this machine.
package device

import (
	"errors"
	"fmt"
)

// ErrUnsupported marks hardware that is absent on this machine. Bridges that
// fail with it are simply not registered.
var ErrUnsupported = errors.New("unsupported hardware")

// Native error codes the bridges care about.
const (
	CodeFileNotFound  uint32 = 2
	CodeInvalidHandle uint32 = 6
	CodeNotSupported  uint32 = 50
	CodeNoSuchDevice  uint32 = 433
)

// IOError is a failed control call. Code is the native error code.
type IOError struct {
	Op   string
	Code uint32
	Err  error
}

func (e *IOError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: code %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: code %d", e.Op, e.Code)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsInvalidHandle reports whether err means the handle no longer refers to a
// live device, which happens when the driver re-enumerates across sleep.
func IsInvalidHandle(err error) bool {
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		return false
	}
	switch ioErr.Code {
	case CodeInvalidHandle, CodeNoSuchDevice, CodeFileNotFound:
		return true
	}
	return false
}

// Control is an exclusively owned device handle that executes control codes.
type Control interface {
	// Execute issues code with in and returns the first outLen bytes of the
	// driver response (or fewer, if the driver returned fewer).
	Execute(code uint32, in []byte, outLen int) ([]byte, error)
	Close() error
}

// Control codes.
const (
	// IOCTL_ATK_ACPI_WMIFUNCTION, handled by the vendor ATK ACPI driver.
	IoctlAtkAcpiFunction uint32 = 0x0022240C

	IoctlBatteryQueryTag         uint32 = 0x00294040
	IoctlBatteryQueryInformation uint32 = 0x00294044
	IoctlBatteryQueryStatus      uint32 = 0x0029404C
)
