//go:build windows
// +build windows

package device

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/windows"
)

// Handle is a device file opened for exclusive control calls.
type Handle struct {
	path string

	mu     sync.Mutex
	h      windows.Handle
	closed bool
}

var _ Control = (*Handle)(nil)

// Open opens path (for example `\\.\ATKACPI`) read/write. A missing device
// file is reported as ErrUnsupported.
func Open(path string) (*Handle, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(
		p,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		if errors.Is(err, windows.ERROR_FILE_NOT_FOUND) || errors.Is(err, windows.ERROR_PATH_NOT_FOUND) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
		}
		return nil, toIOError("open "+path, err)
	}
	return &Handle{path: path, h: h}, nil
}

// Path returns the device path the handle was opened with.
func (d *Handle) Path() string { return d.path }

// Execute issues a buffered DeviceIoControl. The handle lock is held for
// the whole call, so Close waits for it.
func (d *Handle) Execute(code uint32, in []byte, outLen int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, &IOError{Op: "ioctl", Code: CodeInvalidHandle, Err: windows.ERROR_INVALID_HANDLE}
	}

	var inPtr *byte
	if len(in) > 0 {
		inPtr = &in[0]
	}
	out := make([]byte, outLen)
	var outPtr *byte
	if outLen > 0 {
		outPtr = &out[0]
	}

	var returned uint32
	err := windows.DeviceIoControl(d.h, code, inPtr, uint32(len(in)), outPtr, uint32(outLen), &returned, nil)
	if err != nil {
		return nil, toIOError(fmt.Sprintf("ioctl 0x%08x", code), err)
	}
	if int(returned) < outLen {
		out = out[:returned]
	}
	return out, nil
}

// Close releases the handle. Subsequent calls return nil.
func (d *Handle) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return windows.CloseHandle(d.h)
}

func toIOError(op string, err error) error {
	var errno windows.Errno
	if errors.As(err, &errno) {
		return &IOError{Op: op, Code: uint32(errno), Err: err}
	}
	return &IOError{Op: op, Err: err}
}
