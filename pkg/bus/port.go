package bus

import (
	"fmt"
	"time"

	"storion-modbus-bridge/pkg/config"
	bridgeerrors "storion-modbus-bridge/pkg/errors"

	"go.bug.st/serial"
)

// Port is the subset of a serial port the driver needs. go.bug.st/serial
// ports satisfy it; tests use an in-memory fake.
type Port interface {
	Write(p []byte) (int, error)
	// Read returns n == 0 and a nil error when the read timeout expires
	Read(p []byte) (int, error)
	SetRTS(rts bool) error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Close() error
}

// Opener opens the bus port. The builder swaps it for a fake in tests.
type Opener func(settings config.SerialSettings) (Port, error)

// OpenSerial opens the RS-485 adapter as 8N1 at the configured baud rate
func OpenSerial(settings config.SerialSettings) (Port, error) {
	mode := &serial.Mode{
		BaudRate: settings.BaudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(settings.Device, mode)
	if err != nil {
		return nil, bridgeerrors.New(bridgeerrors.KindPortOpenFailure, "open "+settings.Device, err)
	}
	if err := port.SetReadTimeout(settings.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, bridgeerrors.New(bridgeerrors.KindPortOpenFailure, "open "+settings.Device,
			fmt.Errorf("set read timeout: %w", err))
	}
	return port, nil
}
