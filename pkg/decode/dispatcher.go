package decode

import (
	"fmt"

	bridgeerrors "storion-modbus-bridge/pkg/errors"
	"storion-modbus-bridge/pkg/frame"
)

type decoderFunc func([]byte) Snapshot

// Dispatcher selects a register map by the total length of a validated reply.
// The reply carries no register address, so length is the only discriminant.
type Dispatcher struct {
	decoders map[int]decoderFunc
}

// NewDispatcher returns a dispatcher for the meter, battery and inverter maps
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		decoders: map[int]decoderFunc{
			MeterFrameLength: func(b []byte) Snapshot {
				return decodeFields(b, meterFields)
			},
			BatteryFrameLength: func(b []byte) Snapshot {
				return decodeFields(b, batteryFields)
			},
			InverterFrameLength: func(b []byte) Snapshot {
				return decodeFields(b, inverterFields)
			},
		},
	}
}

// Dispatch decodes a validated frame. Frames of any other length yield a
// FrameError of kind UnknownFrameLength; the caller logs and drops them.
func (d *Dispatcher) Dispatch(f frame.Frame) (Snapshot, error) {
	decode, ok := d.decoders[f.Length()]
	if !ok {
		return nil, bridgeerrors.NewFrameError(bridgeerrors.KindUnknownFrameLength,
			fmt.Errorf("no register map for %d-byte reply", f.Length()), f.Raw())
	}
	return decode(f.Raw()), nil
}

// Supports reports whether a reply of the given length can be decoded
func (d *Dispatcher) Supports(length int) bool {
	_, ok := d.decoders[length]
	return ok
}
