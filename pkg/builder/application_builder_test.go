package builder

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"storion-modbus-bridge/pkg/bus"
	"storion-modbus-bridge/pkg/config"
	"storion-modbus-bridge/pkg/frame"
	"storion-modbus-bridge/pkg/mqtt"
)

const testYAML = `
serial:
  device: /dev/fake
  settle_delay_ms: 1
  dequeue_timeout_ms: 10
  read_timeout_ms: 100
  inter_byte_gap_ms: 5
mqtt:
  broker: localhost
schedule:
  tick_ms: 60000
watchdog:
  heartbeat_s: -1
recovery:
  port_open_cooldown_s: 60
`

type published struct {
	topic   string
	payload []byte
}

type fakeMQTT struct {
	mu        sync.Mutex
	messages  []published
	handlers  map[string]mqtt.MessageHandler
	connected bool
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeMQTT) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeMQTT) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeMQTT) Publish(ctx context.Context, topic string, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic: topic, payload: append([]byte(nil), payload...)})
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, handler mqtt.MessageHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
}

func (f *fakeMQTT) handler(topic string) mqtt.MessageHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[topic]
}

func (f *fakeMQTT) on(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, m := range f.messages {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// replyPort answers every write with reply, or fails reads with readErr
type replyPort struct {
	mu      sync.Mutex
	reply   []byte
	pending []byte
	readErr error
	closed  bool
}

func (p *replyPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append([]byte(nil), p.reply...)
	return len(b), nil
}

func (p *replyPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return 0, p.readErr
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *replyPort) SetRTS(bool) error                  { return nil }
func (p *replyPort) SetReadTimeout(time.Duration) error { return nil }
func (p *replyPort) ResetInputBuffer() error            { return nil }

func (p *replyPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type countingOpener struct {
	mu    sync.Mutex
	calls int
	open  func(call int) (bus.Port, error)
}

func (o *countingOpener) Open(config.SerialSettings) (bus.Port, error) {
	o.mu.Lock()
	o.calls++
	call := o.calls
	o.mu.Unlock()
	return o.open(call)
}

func (o *countingOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfigFromString(testYAML)
	if err != nil {
		t.Fatalf("Unexpected config error: %v", err)
	}
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func startApp(t *testing.T, app *Application) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	return cancel, done
}

func stopApp(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Application did not stop")
	}
}

func TestBuildRequiresConfig(t *testing.T) {
	if _, err := NewApplicationBuilder(nil).Build(); err == nil {
		t.Errorf("Expected error without config")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.MQTT.Broker = ""
	if _, err := NewApplicationBuilder(cfg).WithMQTTClient(newFakeMQTT()).Build(); err == nil {
		t.Errorf("Expected validation error")
	}
}

func TestControlRequestIsPolledAndPublished(t *testing.T) {
	client := newFakeMQTT()
	port := &replyPort{reply: frame.BuildReply(frame.DefaultAddress, 0x03, make([]byte, 44))}
	opener := &countingOpener{open: func(int) (bus.Port, error) { return port, nil }}

	app, err := NewApplicationBuilder(testConfig(t)).
		WithMQTTClient(client).
		WithPortOpener(opener.Open).
		Build()
	if err != nil {
		t.Fatalf("Unexpected build error: %v", err)
	}
	cancel, done := startApp(t, app)

	control := app.GetConfig().Topics.Control
	waitFor(t, "control subscription", func() bool { return client.handler(control) != nil })
	if client.handler(app.GetConfig().Topics.Check) == nil {
		t.Errorf("Expected a subscription on the check topic")
	}

	client.handler(control)(context.Background(), "huis/AlphaEss/meter/control", []byte(`{"request":"meter"}`))

	meterTopic := app.GetConfig().Topics.Meter
	waitFor(t, "meter snapshot", func() bool { return len(client.on(meterTopic)) == 1 })
	stopApp(t, cancel, done)

	var body map[string]any
	if err := json.Unmarshal(client.on(meterTopic)[0].payload, &body); err != nil {
		t.Fatalf("Snapshot is not JSON: %v", err)
	}
	if _, ok := body["phase_a_power_w"]; !ok {
		t.Errorf("Expected phase_a_power_w in meter payload, got %v", body)
	}
	if app.GetWatchdog().Status().FramesSeen != 1 {
		t.Errorf("Expected watchdog to see 1 frame, got %d", app.GetWatchdog().Status().FramesSeen)
	}
	if !port.closed {
		t.Errorf("Expected port closed on shutdown")
	}
	if client.IsConnected() {
		t.Errorf("Expected MQTT disconnected on shutdown")
	}
}

func TestPortOpenFailureIsReportedOncePerCooldown(t *testing.T) {
	client := newFakeMQTT()
	opener := &countingOpener{open: func(int) (bus.Port, error) {
		return nil, errors.New("no such device")
	}}

	app, err := NewApplicationBuilder(testConfig(t)).
		WithMQTTClient(client).
		WithPortOpener(opener.Open).
		Build()
	if err != nil {
		t.Fatalf("Unexpected build error: %v", err)
	}
	cancel, done := startApp(t, app)

	report := app.GetConfig().Topics.Report
	waitFor(t, "failure report", func() bool { return len(client.on(report)) == 1 })
	time.Sleep(50 * time.Millisecond)
	stopApp(t, cancel, done)

	if n := opener.count(); n != 1 {
		t.Errorf("Expected 1 open attempt within the cooldown, got %d", n)
	}
	msg := client.on(report)[0]
	var body map[string]any
	if err := json.Unmarshal(msg.payload, &body); err != nil {
		t.Fatalf("Report is not JSON: %v", err)
	}
	if body["checkFail"] != true || body["checkAction"] != float64(1) {
		t.Errorf("Expected failing report with restart action, got %v", body)
	}
	if !strings.Contains(body["checkMsg"].(string), "PortOpenFailure") {
		t.Errorf("Expected PortOpenFailure in message, got %v", body["checkMsg"])
	}
}

func TestStartupHeartbeat(t *testing.T) {
	client := newFakeMQTT()
	cfg := testConfig(t)
	cfg.Watchdog.Heartbeat = 3600
	opener := &countingOpener{open: func(int) (bus.Port, error) { return &replyPort{}, nil }}

	app, err := NewApplicationBuilder(cfg).
		WithMQTTClient(client).
		WithPortOpener(opener.Open).
		Build()
	if err != nil {
		t.Fatalf("Unexpected build error: %v", err)
	}
	cancel, done := startApp(t, app)

	report := cfg.Topics.Report
	waitFor(t, "startup heartbeat", func() bool { return len(client.on(report)) > 0 })
	stopApp(t, cancel, done)

	var body map[string]any
	if err := json.Unmarshal(client.on(report)[0].payload, &body); err != nil {
		t.Fatalf("Report is not JSON: %v", err)
	}
	if body["checkFail"] != false || body["checkAction"] != float64(0) {
		t.Errorf("Expected OK heartbeat report, got %v", body)
	}
}

func TestDeviceErrorReopensPort(t *testing.T) {
	client := newFakeMQTT()
	broken := &replyPort{readErr: errors.New("device unplugged")}
	healthy := &replyPort{reply: frame.BuildReply(frame.DefaultAddress, 0x03, make([]byte, 44))}
	opener := &countingOpener{open: func(call int) (bus.Port, error) {
		if call == 1 {
			return broken, nil
		}
		return healthy, nil
	}}

	app, err := NewApplicationBuilder(testConfig(t)).
		WithMQTTClient(client).
		WithPortOpener(opener.Open).
		Build()
	if err != nil {
		t.Fatalf("Unexpected build error: %v", err)
	}
	cancel, done := startApp(t, app)

	control := app.GetConfig().Topics.Control
	waitFor(t, "control subscription", func() bool { return client.handler(control) != nil })
	client.handler(control)(context.Background(), "x/control", []byte(`{"request":"battery"}`))

	waitFor(t, "port re-opened", func() bool { return opener.count() == 2 })
	stopApp(t, cancel, done)

	if !broken.closed {
		t.Errorf("Expected failed port to be closed")
	}
	if len(client.on(app.GetConfig().Topics.Report)) == 0 {
		t.Errorf("Expected the device error to be reported")
	}
}
