package acpi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Method is a WMI method id of the ATK device. The ids are the ASCII method
// names read as little-endian integers.
type Method uint32

const (
	DSTS Method = 0x53545344 // "DSTS", get device status
	DEVS Method = 0x53564544 // "DEVS", set device status
	INIT Method = 0x54494e49 // "INIT"
)

func (m Method) String() string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(m))
	return string(b[:])
}

const (
	argsLength     = 8
	responseLength = 20

	// Firmware reports DSTS results with this bias added.
	statusBias = 65536
)

// ErrShortResponse is returned when the driver answers with fewer bytes than
// the status word needs.
var ErrShortResponse = errors.New("acpi: short response")

// EncodeCall builds the request buffer for method with an 8 byte argument
// block: [method][argLen=8][deviceID][value].
func EncodeCall(m Method, deviceID, value uint32) []byte {
	buf := make([]byte, 8+argsLength)
	binary.LittleEndian.PutUint32(buf[0:], uint32(m))
	binary.LittleEndian.PutUint32(buf[4:], argsLength)
	binary.LittleEndian.PutUint32(buf[8:], deviceID)
	binary.LittleEndian.PutUint32(buf[12:], value)
	return buf
}

// DecodeStatus reads the DSTS result from a response buffer.
func DecodeStatus(resp []byte) (int32, error) {
	if len(resp) < 4 {
		return 0, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(resp))
	}
	raw := int32(binary.LittleEndian.Uint32(resp[0:4]))
	return raw - statusBias, nil
}

// EncodeStatus is the inverse of DecodeStatus. It is what the firmware puts
// in the first word of a DSTS response.
func EncodeStatus(v int32) []byte {
	resp := make([]byte, responseLength)
	binary.LittleEndian.PutUint32(resp[0:4], uint32(v+statusBias))
	return resp
}
