// Package battery queries the OS battery class driver: tag acquisition,
// static information and status.
package battery

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"
)

// PowerState is the BATTERY_STATUS power state bit set.
type PowerState uint32

const (
	PowerOnline      PowerState = 0x1
	PowerDischarging PowerState = 0x2
	PowerCharging    PowerState = 0x4
	PowerCritical    PowerState = 0x8
)

func (p PowerState) Has(f PowerState) bool { return p&f != 0 }

func (p PowerState) String() string {
	var parts []string
	for _, f := range []struct {
		bit  PowerState
		name string
	}{
		{PowerOnline, "online"},
		{PowerDischarging, "discharging"},
		{PowerCharging, "charging"},
		{PowerCritical, "critical"},
	} {
		if p.Has(f.bit) {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Information levels of IOCTL_BATTERY_QUERY_INFORMATION.
type InfoLevel int32

const (
	LevelInformation     InfoLevel = 0
	LevelEstimatedTime   InfoLevel = 3
	LevelDeviceName      InfoLevel = 4
	LevelManufactureName InfoLevel = 6
)

const (
	// BATTERY_UNKNOWN_RATE
	unknownRate uint32 = 0x80000000
	// BATTERY_UNKNOWN_CAPACITY and BATTERY_UNKNOWN_TIME
	unknownValue uint32 = 0xFFFFFFFF

	queryInformationSize = 12
	informationSize      = 36
	waitStatusSize       = 20
	statusSize           = 16
	stringBufferSize     = 256
)

// Information is BATTERY_INFORMATION.
type Information struct {
	Capabilities        uint32 `json:"capabilities"`
	Technology          uint8  `json:"technology"`
	Chemistry           string `json:"chemistry"`
	DesignedCapacity    uint32 `json:"designedCapacity"`
	FullChargedCapacity uint32 `json:"fullChargedCapacity"`
	DefaultAlert1       uint32 `json:"defaultAlert1"`
	DefaultAlert2       uint32 `json:"defaultAlert2"`
	CriticalBias        uint32 `json:"criticalBias"`
	CycleCount          uint32 `json:"cycleCount"`
}

func encodeTagQuery(timeout uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, timeout)
}

func decodeULong(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, fmt.Errorf("ULONG: %d bytes", len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

func encodeQueryInformation(tag uint32, level InfoLevel, atRate int32) []byte {
	b := make([]byte, queryInformationSize)
	binary.LittleEndian.PutUint32(b[0:], tag)
	binary.LittleEndian.PutUint32(b[4:], uint32(level))
	binary.LittleEndian.PutUint32(b[8:], uint32(atRate))
	return b
}

func decodeInformation(b []byte) (Information, error) {
	if len(b) < informationSize {
		return Information{}, fmt.Errorf("battery information: %d bytes, want %d", len(b), informationSize)
	}
	le := binary.LittleEndian
	return Information{
		Capabilities:        le.Uint32(b[0:]),
		Technology:          b[4],
		Chemistry:           strings.TrimRight(string(b[8:12]), "\x00 "),
		DesignedCapacity:    le.Uint32(b[12:]),
		FullChargedCapacity: le.Uint32(b[16:]),
		DefaultAlert1:       le.Uint32(b[20:]),
		DefaultAlert2:       le.Uint32(b[24:]),
		CriticalBias:        le.Uint32(b[28:]),
		CycleCount:          le.Uint32(b[32:]),
	}, nil
}

func encodeWaitStatus(tag, timeout uint32, state PowerState, low, high uint32) []byte {
	b := make([]byte, waitStatusSize)
	binary.LittleEndian.PutUint32(b[0:], tag)
	binary.LittleEndian.PutUint32(b[4:], timeout)
	binary.LittleEndian.PutUint32(b[8:], uint32(state))
	binary.LittleEndian.PutUint32(b[12:], low)
	binary.LittleEndian.PutUint32(b[16:], high)
	return b
}

// rawStatus is BATTERY_STATUS.
type rawStatus struct {
	PowerState PowerState
	Capacity   uint32
	Voltage    uint32
	Rate       uint32
}

func decodeStatus(b []byte) (rawStatus, error) {
	if len(b) < statusSize {
		return rawStatus{}, fmt.Errorf("battery status: %d bytes, want %d", len(b), statusSize)
	}
	le := binary.LittleEndian
	return rawStatus{
		PowerState: PowerState(le.Uint32(b[0:])),
		Capacity:   le.Uint32(b[4:]),
		Voltage:    le.Uint32(b[8:]),
		Rate:       le.Uint32(b[12:]),
	}, nil
}

// decodeString reads a NUL terminated UTF-16LE string.
func decodeString(b []byte) string {
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		c := binary.LittleEndian.Uint16(b[i:])
		if c == 0 {
			break
		}
		u = append(u, c)
	}
	return strings.TrimSpace(string(utf16.Decode(u)))
}
