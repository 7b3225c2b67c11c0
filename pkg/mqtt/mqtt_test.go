package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"storion-modbus-bridge/pkg/bus"
	"storion-modbus-bridge/pkg/config"
	"storion-modbus-bridge/pkg/decode"
	bridgeerrors "storion-modbus-bridge/pkg/errors"
	"storion-modbus-bridge/pkg/frame"
	"storion-modbus-bridge/pkg/health"
)

type message struct {
	topic    string
	retained bool
	payload  []byte
}

// MockTransport records every publish
type MockTransport struct {
	mu       sync.Mutex
	messages []message
	err      error
}

func (m *MockTransport) Publish(ctx context.Context, topic string, retained bool, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, message{topic, retained, payload})
	return nil
}

func (m *MockTransport) last(t *testing.T) message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		t.Fatal("Expected a published message")
	}
	return m.messages[len(m.messages)-1]
}

func testTopics() config.TopicsConfig {
	return config.TopicsConfig{
		Meter:       "huis/AlphaEss/meter",
		Battery:     "huis/AlphaEss/battery",
		Inverter:    "huis/AlphaEss/inverter",
		Temperature: "huis/AlphaEss/inverter/temperature",
		Check:       "huis/AlphaEss/RPiInfra/check",
		Report:      "huis/AlphaEss/RPiInfra/report",
		Control:     "huis/AlphaEss/+/control",
	}
}

func TestPublishSnapshotRoutesByKind(t *testing.T) {
	tests := []struct {
		snap  decode.Snapshot
		topic string
		key   string
	}{
		{decode.MeterSnapshot{ActivePowerW: 300}, "huis/AlphaEss/meter", "active_power_w"},
		{decode.BatterySnapshot{StateOfChargePct: 10}, "huis/AlphaEss/battery", "soc"},
		{decode.InverterSnapshot{TemperatureC: 41.5}, "huis/AlphaEss/inverter", "temperature"},
	}

	for _, tt := range tests {
		transport := &MockTransport{}
		p := NewPublisher(transport, testTopics(), nil)
		if err := p.PublishSnapshot(context.Background(), tt.snap); err != nil {
			t.Fatalf("%v: unexpected error %v", tt.snap.Kind(), err)
		}

		msg := transport.last(t)
		if msg.topic != tt.topic {
			t.Errorf("%v: expected topic %s, got %s", tt.snap.Kind(), tt.topic, msg.topic)
		}
		var body map[string]any
		if err := json.Unmarshal(msg.payload, &body); err != nil {
			t.Fatalf("%v: invalid JSON: %v", tt.snap.Kind(), err)
		}
		if _, ok := body[tt.key]; !ok {
			t.Errorf("%v: expected key %q in %s", tt.snap.Kind(), tt.key, msg.payload)
		}
	}
}

func TestPublishTemperature(t *testing.T) {
	transport := &MockTransport{}
	p := NewPublisher(transport, testTopics(), nil)

	if err := p.PublishTemperature(context.Background(), 38.5); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	msg := transport.last(t)
	if msg.topic != "huis/AlphaEss/inverter/temperature" || !msg.retained {
		t.Errorf("Expected retained message on temperature topic, got %+v", msg)
	}
	if string(msg.payload) != `{"temperature":38.5}` {
		t.Errorf("Unexpected payload %s", msg.payload)
	}
}

func TestPublishFailureIsPublishError(t *testing.T) {
	transport := &MockTransport{err: errors.New("not connected")}
	p := NewPublisher(transport, testTopics(), nil)

	err := p.PublishSnapshot(context.Background(), decode.MeterSnapshot{})
	if bridgeerrors.KindOf(err) != bridgeerrors.KindPublish {
		t.Errorf("Expected Publish kind, got %v", err)
	}
}

func TestHealthReportPayload(t *testing.T) {
	transport := &MockTransport{}
	r := NewHealthReporter(transport, "huis/AlphaEss/RPiInfra/report")

	if err := r.Report(context.Background(), true, bridgeerrors.ActionRestart, "No data received"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	msg := transport.last(t)
	if msg.topic != "huis/AlphaEss/RPiInfra/report" {
		t.Errorf("Unexpected topic %s", msg.topic)
	}
	want := `{"checkFail":true,"checkAction":1,"checkMsg":"No data received"}`
	if string(msg.payload) != want {
		t.Errorf("Expected %s, got %s", want, msg.payload)
	}

	_ = r.Report(context.Background(), false, bridgeerrors.ActionNone, "ok")
	var report HealthReport
	if err := json.Unmarshal(transport.last(t).payload, &report); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if report.CheckFail || report.CheckAction != 0 {
		t.Errorf("Expected all-clear report, got %+v", report)
	}
}

type staticStatus health.Status

func (s staticStatus) Status() health.Status { return health.Status(s) }

func TestCheckResponder(t *testing.T) {
	tests := []struct {
		name       string
		status     health.Status
		wantFail   bool
		wantAction int
	}{
		{"healthy", health.Status{Healthy: true, FramesSeen: 12, SecondsSilent: 3}, false, 0},
		{"stale", health.Status{Healthy: false, SecondsSilent: 400}, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &MockTransport{}
			reporter := NewHealthReporter(transport, "report")
			NewCheckResponder(staticStatus(tt.status), reporter).
				HandleMessage(context.Background(), "check", []byte("ping"))

			var report HealthReport
			if err := json.Unmarshal(transport.last(t).payload, &report); err != nil {
				t.Fatalf("Invalid JSON: %v", err)
			}
			if report.CheckFail != tt.wantFail || report.CheckAction != tt.wantAction {
				t.Errorf("Expected fail=%v action=%d, got %+v", tt.wantFail, tt.wantAction, report)
			}
		})
	}
}

func TestParseControl(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		payload string
		kind    frame.Kind
		address byte
		wantErr bool
	}{
		{"meter with address", `{"request":"meter","address":85}`, frame.KindMeter, 0x55, false},
		{"battery default address", `{"request":"battery"}`, frame.KindBattery, 0x10, false},
		{"case insensitive", `{"request":"Inverter","address":1}`, frame.KindInverter, 0x01, false},
		{"system", `{"request":"system"}`, frame.KindSystem, 0x10, false},
		{"unknown kind", `{"request":"grid"}`, 0, 0, true},
		{"address out of range", `{"request":"meter","address":300}`, 0, 0, true},
		{"address zero", `{"request":"meter","address":0}`, 0, 0, true},
		{"not json", `meter`, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseControl([]byte(tt.payload), 0x10, now)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got request %+v", req)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if req.Kind != tt.kind || req.Address != tt.address {
				t.Errorf("Expected %v at 0x%02X, got %v at 0x%02X", tt.kind, tt.address, req.Kind, req.Address)
			}
			if !req.RequestedAt.Equal(now) {
				t.Errorf("Expected request time %v, got %v", now, req.RequestedAt)
			}
		})
	}
}

type recordingQueue struct {
	requests []bus.Request
}

func (q *recordingQueue) Enqueue(r bus.Request) { q.requests = append(q.requests, r) }

func TestControlHandlerEnqueues(t *testing.T) {
	q := &recordingQueue{}
	h := NewControlHandler(q, "huis/AlphaEss/+/control", frame.DefaultAddress)

	h.HandleMessage(context.Background(), "huis/AlphaEss/cli/control", []byte(`{"request":"meter"}`))
	h.HandleMessage(context.Background(), "huis/AlphaEss/cli/control", []byte(`{"request":"nonsense"}`))
	h.HandleMessage(context.Background(), "huis/AlphaEss/cli/control", nil)

	if len(q.requests) != 1 {
		t.Fatalf("Expected 1 queued request, got %d", len(q.requests))
	}
	want := []byte{0x55, 0x03, 0x00, 0x00, 0x00, 0x16, 0xC9, 0xD0}
	if got := q.requests[0].Frame(); string(got) != string(want) {
		t.Errorf("Expected % X, got % X", want, got)
	}
}

func TestControlHandlerKindFromTopic(t *testing.T) {
	q := &recordingQueue{}
	h := NewControlHandler(q, "huis/AlphaEss/+/control", 0x10)

	h.HandleMessage(context.Background(), "huis/AlphaEss/battery/control", nil)
	h.HandleMessage(context.Background(), "huis/AlphaEss/inverter/control", []byte(`{"address":2}`))
	// The payload wins over the topic
	h.HandleMessage(context.Background(), "huis/AlphaEss/battery/control", []byte(`{"request":"meter"}`))

	if len(q.requests) != 3 {
		t.Fatalf("Expected 3 queued requests, got %d", len(q.requests))
	}
	want := []struct {
		kind    frame.Kind
		address byte
	}{
		{frame.KindBattery, 0x10},
		{frame.KindInverter, 0x02},
		{frame.KindMeter, 0x10},
	}
	for i, w := range want {
		if q.requests[i].Kind != w.kind || q.requests[i].Address != w.address {
			t.Errorf("Request %d: expected %v at 0x%02X, got %v at 0x%02X",
				i, w.kind, w.address, q.requests[i].Kind, q.requests[i].Address)
		}
	}
}
