package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"storion-modbus-bridge/pkg/config"
	"storion-modbus-bridge/pkg/decode"
	bridgeerrors "storion-modbus-bridge/pkg/errors"
	"storion-modbus-bridge/pkg/frame"
	"storion-modbus-bridge/pkg/logger"
	"storion-modbus-bridge/pkg/metrics"
)

// TemperaturePayload is the body of the temperature topic
type TemperaturePayload struct {
	Temperature float64 `json:"temperature"`
}

// Publisher JSON-encodes readings and routes them to their topic
type Publisher struct {
	transport Transport
	topics    map[frame.Kind]string
	tempTopic string
	metrics   metrics.MetricsCollector
}

// NewPublisher creates a publisher for the configured topics
func NewPublisher(transport Transport, topics config.TopicsConfig, m metrics.MetricsCollector) *Publisher {
	if m == nil {
		m = metrics.NewNullMetrics()
	}
	return &Publisher{
		transport: transport,
		topics: map[frame.Kind]string{
			frame.KindMeter:    topics.Meter,
			frame.KindBattery:  topics.Battery,
			frame.KindInverter: topics.Inverter,
		},
		tempTopic: topics.Temperature,
		metrics:   m,
	}
}

// Publish JSON-encodes payload and sends it to topic
func (p *Publisher) Publish(ctx context.Context, topic string, payload any, retain bool) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return bridgeerrors.New(bridgeerrors.KindPublish, topic, fmt.Errorf("encode: %w", err))
	}
	if err := p.transport.Publish(ctx, topic, retain, data); err != nil {
		p.metrics.IncrementMQTTErrors()
		return bridgeerrors.New(bridgeerrors.KindPublish, topic, err)
	}
	p.metrics.IncrementMQTTPublishes()
	logger.LogTrace("📤 %s ← %s", topic, data)
	return nil
}

// PublishSnapshot publishes a decoded reading on the topic for its kind
func (p *Publisher) PublishSnapshot(ctx context.Context, snap decode.Snapshot) error {
	topic, ok := p.topics[snap.Kind()]
	if !ok || topic == "" {
		return bridgeerrors.New(bridgeerrors.KindPublish, "snapshot",
			fmt.Errorf("no topic configured for %s", snap.Kind()))
	}
	logger.LogDebug("📤 Publishing %s snapshot → %s", snap.Kind(), topic)
	return p.Publish(ctx, topic, snap, false)
}

// PublishTemperature publishes the inverter temperature
func (p *Publisher) PublishTemperature(ctx context.Context, celsius float64) error {
	logger.LogDebug("🌡️ Publishing inverter temperature %.1f°C", celsius)
	return p.Publish(ctx, p.tempTopic, TemperaturePayload{Temperature: celsius}, true)
}
