// Package power reads and writes power scheme values and follows the OS
// power notifications: setting broadcasts and effective power mode.
package power

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Power setting and subgroup identifiers.
var (
	SubgroupProcessor          = uuid.MustParse("54533251-82be-4824-96c1-47b60b740d00")
	SettingBoostMode           = uuid.MustParse("be337238-0d82-4146-a960-4f3749d470c7")
	SettingACDCSource          = uuid.MustParse("5d3e9a59-e9d5-4b00-a6bd-ff34ff516548")
	SettingConsoleDisplayState = uuid.MustParse("6fe69556-704a-47a0-8f24-c28d936fda47")
)

// Window message values of WM_POWERBROADCAST.
const (
	WMPowerBroadcast      = 0x0218
	PBTSuspend            = 0x0004
	PBTResumeSuspend      = 0x0007
	PBTPowerStatusChange  = 0x000A
	PBTResumeAutomatic    = 0x0012
	PBTPowerSettingChange = 0x8013
)

// GUID followed by DataLength.
const powerSettingHeaderSize = 16 + 4

// FromWindowsGUID converts the in-memory GUID layout (first three fields
// little-endian) to a uuid.
func FromWindowsGUID(b []byte) (uuid.UUID, error) {
	if len(b) < 16 {
		return uuid.Nil, fmt.Errorf("guid: %d bytes", len(b))
	}
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:], binary.LittleEndian.Uint32(b[0:]))
	binary.BigEndian.PutUint16(u[4:], binary.LittleEndian.Uint16(b[4:]))
	binary.BigEndian.PutUint16(u[6:], binary.LittleEndian.Uint16(b[6:]))
	copy(u[8:], b[8:16])
	return u, nil
}

// ToWindowsGUID is the inverse of FromWindowsGUID.
func ToWindowsGUID(u uuid.UUID) [16]byte {
	var b [16]byte
	binary.LittleEndian.PutUint32(b[0:], binary.BigEndian.Uint32(u[0:]))
	binary.LittleEndian.PutUint16(b[4:], binary.BigEndian.Uint16(u[4:]))
	binary.LittleEndian.PutUint16(b[6:], binary.BigEndian.Uint16(u[6:]))
	copy(b[8:], u[8:])
	return b
}

// Setting is a decoded POWERBROADCAST_SETTING.
type Setting struct {
	ID   uuid.UUID
	Data []byte
}

// Uint32 returns the DWORD most settings carry.
func (s Setting) Uint32() (uint32, bool) {
	if len(s.Data) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(s.Data), true
}

// DecodeSetting parses [GUID][DataLength u32][Data...].
func DecodeSetting(b []byte) (Setting, error) {
	if len(b) < powerSettingHeaderSize {
		return Setting{}, fmt.Errorf("power setting: %d bytes", len(b))
	}
	id, err := FromWindowsGUID(b)
	if err != nil {
		return Setting{}, err
	}
	n := binary.LittleEndian.Uint32(b[16:])
	if uint64(n) > uint64(len(b)-powerSettingHeaderSize) {
		return Setting{}, fmt.Errorf("power setting %s: data length %d exceeds %d", id, n, len(b)-powerSettingHeaderSize)
	}
	data := make([]byte, n)
	copy(data, b[powerSettingHeaderSize:])
	return Setting{ID: id, Data: data}, nil
}

// EncodeSetting builds a POWERBROADCAST_SETTING payload carrying value.
func EncodeSetting(id uuid.UUID, value uint32) []byte {
	g := ToWindowsGUID(id)
	b := append([]byte(nil), g[:]...)
	b = binary.LittleEndian.AppendUint32(b, 4)
	return binary.LittleEndian.AppendUint32(b, value)
}

// Source is the system power source.
type Source uint32

const (
	SourceAC        Source = 0
	SourceDC        Source = 1
	SourceShortTerm Source = 2
)

func (s Source) String() string {
	switch s {
	case SourceAC:
		return "ac"
	case SourceDC:
		return "dc"
	case SourceShortTerm:
		return "ups"
	}
	return fmt.Sprintf("Source(%d)", uint32(s))
}

// Mode is the coarse effective power mode.
type Mode int

const (
	ModeBestPowerEfficiency Mode = iota
	ModeBalanced
	ModeBestPerformance
)

func (m Mode) String() string {
	switch m {
	case ModeBestPowerEfficiency:
		return "best-power-efficiency"
	case ModeBalanced:
		return "balanced"
	case ModeBestPerformance:
		return "best-performance"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// EFFECTIVE_POWER_MODE values.
const (
	effectiveBatterySaver  = 0
	effectiveBetterBattery = 1
	effectiveBalanced      = 2
	effectiveHighPerf      = 3
	effectiveMaxPerf       = 4
	effectiveGameMode      = 5
	effectiveMixedReality  = 6
)

// Processor boost mode values.
const (
	boostDisabled   = 0
	boostAggressive = 2
)

// GUID_CONSOLE_DISPLAY_STATE values.
const (
	displayStateOff    = 0
	displayStateOn     = 1
	displayStateDimmed = 2
)
