// Package frame builds request frames for the Storion inverter stack and
// validates the replies read back from the RS-485 line.
//
// Wire layout: address(1) | function(1) | byteCount(1) | payload(byteCount) | crcLo(1) | crcHi(1),
// so a well-formed reply is exactly byteCount+5 bytes long.
package frame

import (
	"fmt"
	"storion-modbus-bridge/pkg/crc"
	bridgeerrors "storion-modbus-bridge/pkg/errors"

	"github.com/goburrow/modbus"
)

const (
	// HeaderLength is address + function + byte count
	HeaderLength = 3
	// Overhead is the header plus the two CRC bytes
	Overhead = HeaderLength + 2
	// MaxLength bounds a single reply read from the line
	MaxLength = 256
)

// Frame is a reply that passed length and CRC validation
type Frame struct {
	bytes []byte
}

// Bytes returns a copy of the raw frame including CRC
func (f Frame) Bytes() []byte {
	return append([]byte(nil), f.bytes...)
}

// Length is the total byte length, used as the dispatch discriminant
func (f Frame) Length() int {
	return len(f.bytes)
}

// Address returns the bus address of the replying device
func (f Frame) Address() byte {
	return f.bytes[0]
}

// Function returns the function code of the reply
func (f Frame) Function() byte {
	return f.bytes[1]
}

// Raw exposes the frame bytes without copying. Callers must not modify the result.
func (f Frame) Raw() []byte {
	return f.bytes
}

// BuildRequest copies the template, substitutes the bus address and appends the CRC
func BuildRequest(address byte, t Template) []byte {
	msg := t
	msg[0] = address
	return crc.AppendCRC(msg[:])
}

// Validate checks a raw reply. It never panics on short or empty input; every
// failure is returned as a *errors.FrameError whose kind callers can branch on
// with errors.Is (ErrLengthMismatch, ErrCrcMismatch, ErrException).
func Validate(raw []byte) (Frame, error) {
	raw = append([]byte(nil), raw...)

	if len(raw) < Overhead {
		return Frame{}, bridgeerrors.NewFrameError(bridgeerrors.KindLengthMismatch,
			fmt.Errorf("frame too short: %d bytes", len(raw)), raw)
	}

	// Exception replies carry an exception code where the byte count would be
	if raw[1]&0x80 != 0 && len(raw) == Overhead {
		if !crc.VerifyCRC(raw) {
			return Frame{}, crcError(raw)
		}
		return Frame{}, bridgeerrors.NewFrameError(bridgeerrors.KindException,
			&modbus.ModbusError{FunctionCode: raw[1] &^ 0x80, ExceptionCode: raw[2]}, raw)
	}

	if expected := int(raw[2]) + Overhead; len(raw) != expected {
		return Frame{}, bridgeerrors.NewFrameError(bridgeerrors.KindLengthMismatch,
			fmt.Errorf("header declares %d bytes, received %d", expected, len(raw)), raw)
	}

	if !crc.VerifyCRC(raw) {
		return Frame{}, crcError(raw)
	}

	return Frame{bytes: raw}, nil
}

func crcError(raw []byte) error {
	n := len(raw)
	got := uint16(raw[n-2]) | uint16(raw[n-1])<<8
	return bridgeerrors.NewFrameError(bridgeerrors.KindCrcMismatch,
		fmt.Errorf("crc 0x%04X, computed 0x%04X", got, crc.CRC16(raw[:n-2])), raw)
}

// BuildReply encodes a read reply the way the stack firmware does. Used to
// exercise the receive path without hardware.
func BuildReply(address, function byte, payload []byte) []byte {
	msg := make([]byte, 0, len(payload)+Overhead)
	msg = append(msg, address, function, byte(len(payload)))
	msg = append(msg, payload...)
	return crc.AppendCRC(msg)
}
