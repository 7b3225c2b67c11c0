package mqtt

import (
	"context"

	"storion-modbus-bridge/pkg/decode"
)

// Transport sends raw payloads. *Client implements it; tests use a recorder.
type Transport interface {
	Publish(ctx context.Context, topic string, retained bool, payload []byte) error
}

// SnapshotPublisher publishes decoded readings
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snap decode.Snapshot) error
}

// TemperaturePublisher publishes the cached inverter temperature
type TemperaturePublisher interface {
	PublishTemperature(ctx context.Context, celsius float64) error
}

// Compile-time verification
var (
	_ Transport            = (*Client)(nil)
	_ SnapshotPublisher    = (*Publisher)(nil)
	_ TemperaturePublisher = (*Publisher)(nil)
)
