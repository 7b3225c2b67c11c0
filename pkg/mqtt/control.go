package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storion-modbus-bridge/pkg/bus"
	"storion-modbus-bridge/pkg/frame"
	"storion-modbus-bridge/pkg/logger"
	"storion-modbus-bridge/pkg/topics"
)

// ControlRequest asks for one of the fixed reads outside the schedule
type ControlRequest struct {
	Request string `json:"request"`
	Address *int   `json:"address,omitempty"`
}

// Enqueuer accepts requests for the bus driver
type Enqueuer interface {
	Enqueue(r bus.Request)
}

// ControlHandler turns control messages into queued bus requests.
// A payload without "request" takes the kind from the topic level matched by
// the '+' in the subscription filter, so "<prefix>/meter/control" reads the meter.
type ControlHandler struct {
	queue          Enqueuer
	filter         string
	defaultAddress byte
	now            func() time.Time
}

// NewControlHandler creates a handler; requests without an address use defaultAddress
func NewControlHandler(queue Enqueuer, filter string, defaultAddress byte) *ControlHandler {
	return &ControlHandler{queue: queue, filter: filter, defaultAddress: defaultAddress, now: time.Now}
}

// ParseControl decodes and validates a control payload
func ParseControl(payload []byte, defaultAddress byte, now time.Time) (bus.Request, error) {
	return parseControl(payload, "", defaultAddress, now)
}

func parseControl(payload []byte, fallbackKind string, defaultAddress byte, now time.Time) (bus.Request, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = []byte("{}")
	}
	var msg ControlRequest
	if err := json.Unmarshal(payload, &msg); err != nil {
		return bus.Request{}, fmt.Errorf("invalid control payload: %w", err)
	}
	if msg.Request == "" {
		msg.Request = fallbackKind
	}

	kind, err := frame.ParseKind(msg.Request)
	if err != nil {
		return bus.Request{}, err
	}

	address := defaultAddress
	if msg.Address != nil {
		if *msg.Address < 1 || *msg.Address > 247 {
			return bus.Request{}, fmt.Errorf("address %d out of range 1-247", *msg.Address)
		}
		address = byte(*msg.Address)
	}

	req, ok := bus.NewRequest(address, kind, now)
	if !ok {
		return bus.Request{}, fmt.Errorf("no request template for %s", kind)
	}
	return req, nil
}

// HandleMessage is subscribed to the control topic
func (h *ControlHandler) HandleMessage(ctx context.Context, topic string, payload []byte) {
	var fallback string
	if levels, ok := topics.Wildcards(h.filter, topic); ok && len(levels) == 1 {
		fallback = levels[0]
	}
	req, err := parseControl(payload, fallback, h.defaultAddress, h.now())
	if err != nil {
		logger.LogWarn("⚠️ Ignoring control message on %s: %v", topic, err)
		return
	}
	logger.LogInfo("🎛️ Control request from %s: %s read at address 0x%02X", topic, req.Kind, req.Address)
	h.queue.Enqueue(req)
}
