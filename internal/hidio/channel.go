// Package hidio exchanges feature and input reports with the vendor HID
// interface of the built-in keyboard.
package hidio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/device"
)

const (
	VendorAsus uint16 = 0x0B05

	// ReportID is the vendor feature/input report id.
	ReportID byte = 0x5A

	// FeatureLength is the full feature report size including the id byte.
	FeatureLength = 64

	// how long a path that rejects feature reports is left alone
	skipPathFor = 90 * time.Second

	inputPoll = 250 * time.Millisecond
)

// ErrTimeout is returned by Device.ReadWithTimeout when no report arrived.
var ErrTimeout = errors.New("hid: read timeout")

// Wake sequences the keyboard controller needs after every (re)acquisition
// and resume before it reacts to feature writes.
var wakeSequences = [][]byte{
	{0x41, 0x53, 0x55, 0x53, 0x20, 0x54, 0x65, 0x63, 0x68, 0x2e, 0x49, 0x6e, 0x63, 0x2e, 0x00}, // "ASUS Tech.Inc."
	{0x05, 0x20, 0x31, 0x00, 0x08},
}

// Info describes an enumerated HID interface.
type Info struct {
	Path      string `json:"path"`
	VendorID  uint16 `json:"vendorId"`
	ProductID uint16 `json:"productId"`
	UsagePage uint16 `json:"usagePage"`
	Usage     uint16 `json:"usage"`
	Interface int    `json:"interface"`
	Product   string `json:"product"`
}

func (i Info) vendorPage() bool { return i.UsagePage >= 0xFF00 }

// Device is an open HID interface.
type Device interface {
	GetFeatureReport(b []byte) (int, error)
	SendFeatureReport(b []byte) (int, error)
	// ReadWithTimeout returns ErrTimeout when nothing arrived in d.
	ReadWithTimeout(b []byte, d time.Duration) (int, error)
	Close() error
}

// Transport enumerates and opens HID interfaces.
type Transport interface {
	Enumerate(vendorID uint16) ([]Info, error)
	Open(path string) (Device, error)
}

// Selector picks the first interface of a vendor that answers a feature
// report read. Paths that reject feature reports outright are skipped for a
// while so a device-change storm does not probe them again and again.
type Selector struct {
	tr       Transport
	vendorID uint16
	reportID byte
	log      zerolog.Logger
	now      func() time.Time

	mu      sync.Mutex
	skipped map[string]time.Time
}

func NewSelector(tr Transport, vendorID uint16, reportID byte, log zerolog.Logger) *Selector {
	return &Selector{
		tr:       tr,
		vendorID: vendorID,
		reportID: reportID,
		log:      log,
		now:      time.Now,
		skipped:  make(map[string]time.Time),
	}
}

// Select enumerates, orders vendor-page interfaces first and returns the
// first one whose probe succeeds. No further disambiguation is attempted.
func (s *Selector) Select() (Device, Info, error) {
	infos, err := s.tr.Enumerate(s.vendorID)
	if err != nil {
		return nil, Info{}, fmt.Errorf("enumerate hid: %w", err)
	}

	var candidates []Info
	for _, info := range infos {
		if info.VendorID != s.vendorID || s.isSkipped(info.Path) {
			continue
		}
		candidates = append(candidates, info)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.vendorPage() != b.vendorPage() {
			return a.vendorPage()
		}
		return a.Interface < b.Interface
	})

	for _, ci := range candidates {
		d, err := s.tr.Open(ci.Path)
		if err != nil {
			s.log.Debug().Err(err).Str("path", ci.Path).Msg("[PROBE] open failed")
			continue
		}
		buf := make([]byte, FeatureLength)
		buf[0] = s.reportID
		if _, err := d.GetFeatureReport(buf); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "incorrect function") {
				s.skip(ci.Path)
			}
			s.log.Debug().Err(err).Str("path", ci.Path).Msg("[PROBE] no feature report")
			_ = d.Close()
			continue
		}
		s.log.Info().Str("path", ci.Path).
			Str("usagePage", fmt.Sprintf("0x%04x", ci.UsagePage)).
			Int("interface", ci.Interface).
			Msg("[PROBE] selected")
		return d, ci, nil
	}
	return nil, Info{}, fmt.Errorf("%w: no hid interface of vendor 0x%04x answers report 0x%02x",
		device.ErrUnsupported, s.vendorID, s.reportID)
}

func (s *Selector) isSkipped(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.skipped[path]
	if !ok {
		return false
	}
	if s.now().Before(until) {
		return true
	}
	delete(s.skipped, path)
	return false
}

func (s *Selector) skip(path string) {
	s.mu.Lock()
	s.skipped[path] = s.now().Add(skipPathFor)
	s.mu.Unlock()
}

// Channel is the selected vendor interface. Feature calls are not locked
// against each other; callers keep reads and writes on one thread. Every
// call holds the read lock, and Reacquire or Close take the write lock
// before closing a device.
type Channel struct {
	sel *Selector
	log zerolog.Logger

	mu     sync.RWMutex
	dev    Device
	info   Info
	closed bool
}

// Open selects a device and sends the wake sequences.
func Open(tr Transport, log zerolog.Logger) (*Channel, error) {
	log = log.With().Str("component", "hid").Logger()
	sel := NewSelector(tr, VendorAsus, ReportID, log)
	d, info, err := sel.Select()
	if err != nil {
		return nil, err
	}
	c := &Channel{sel: sel, log: log, dev: d, info: info}
	if err := c.Wake(); err != nil {
		log.Warn().Err(err).Msg("wake after open")
	}
	return c, nil
}

// Info returns the selected interface.
func (c *Channel) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// use runs fn with the current device under the read lock, so Reacquire
// and Close cannot close it while a call is in flight. fn is not called
// once the channel is closed.
func (c *Channel) use(fn func(Device)) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.dev == nil {
		return false
	}
	fn(c.dev)
	return true
}

// ReadFeature reads a feature report. ok is false when the device does not
// answer, which callers treat as a missing capability.
func (c *Channel) ReadFeature(reportID byte) (data []byte, ok bool) {
	buf := make([]byte, FeatureLength)
	buf[0] = reportID
	var (
		n   int
		err error
	)
	if !c.use(func(d Device) { n, err = d.GetFeatureReport(buf) }) {
		return nil, false
	}
	if err != nil || n <= 0 {
		return nil, false
	}
	return buf[:n], true
}

// WriteFeature writes reportID followed by payload, zero padded to the
// feature report size.
func (c *Channel) WriteFeature(reportID byte, payload ...byte) bool {
	if len(payload) >= FeatureLength {
		return false
	}
	buf := make([]byte, FeatureLength)
	buf[0] = reportID
	copy(buf[1:], payload)
	var err error
	if !c.use(func(d Device) { _, err = d.SendFeatureReport(buf) }) {
		return false
	}
	if err != nil {
		c.log.Debug().Err(err).Hex("payload", payload).Msg("set feature failed")
		return false
	}
	return true
}

// Wake sends the vendor wake sequences.
func (c *Channel) Wake() error {
	for _, seq := range wakeSequences {
		if !c.WriteFeature(ReportID, seq...) {
			return fmt.Errorf("wake sequence % x rejected", seq[:3])
		}
	}
	return nil
}

// ReadInput blocks for the next input report until ctx is done. Read
// timeouts are retried; other errors are returned to the caller.
func (c *Channel) ReadInput(ctx context.Context, buf []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		var (
			n   int
			err error
		)
		if !c.use(func(d Device) { n, err = d.ReadWithTimeout(buf, inputPoll) }) {
			return 0, &device.IOError{Op: "hid read", Code: device.CodeInvalidHandle}
		}
		if errors.Is(err, ErrTimeout) || (err == nil && n == 0) {
			continue
		}
		return n, err
	}
}

// Reacquire re-runs selection, swaps the device and wakes it. The old
// device is closed only after any read in flight on it has returned.
func (c *Channel) Reacquire() error {
	d, info, err := c.sel.Select()
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return d.Close()
	}
	old := c.dev
	c.dev, c.info = d, info
	if old != nil {
		_ = old.Close()
	}
	c.mu.Unlock()

	return c.Wake()
}

// Close releases the device. Only the first call does any work.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.dev.Close()
}
