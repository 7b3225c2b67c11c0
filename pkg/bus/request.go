package bus

import (
	"time"

	"storion-modbus-bridge/pkg/frame"
)

// Request is one read waiting for its turn on the line
type Request struct {
	Address     byte
	Kind        frame.Kind
	Message     frame.Template
	RequestedAt time.Time
}

// NewRequest builds a request for one of the fixed reads. Returns false for
// kinds without a template.
func NewRequest(address byte, kind frame.Kind, now time.Time) (Request, bool) {
	t, ok := frame.TemplateFor(kind)
	if !ok {
		return Request{}, false
	}
	return Request{Address: address, Kind: kind, Message: t, RequestedAt: now}, true
}

// Frame returns the bytes to put on the wire, CRC included
func (r Request) Frame() []byte {
	return frame.BuildRequest(r.Address, r.Message)
}
