package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"storion-modbus-bridge/pkg/config"
	bridgeerrors "storion-modbus-bridge/pkg/errors"
	"storion-modbus-bridge/pkg/frame"
	"storion-modbus-bridge/pkg/logger"
)

// fakePort records every call and plays back scripted read chunks.
// An exhausted script behaves like a read timeout.
type fakePort struct {
	mu       sync.Mutex
	ops      []string
	writes   [][]byte
	chunks   [][]byte
	block    chan struct{}
	readErr  error
	rts      bool
	closed   bool
	timeouts []time.Duration
}

func (p *fakePort) record(op string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, op)
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "write")
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return 0, p.readErr
	}
	if len(p.chunks) == 0 {
		return 0, nil
	}
	chunk := p.chunks[0]
	p.chunks = p.chunks[1:]
	return copy(b, chunk), nil
}

func (p *fakePort) SetRTS(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rts = on
	p.ops = append(p.ops, fmt.Sprintf("rts:%v", on))
	return nil
}

func (p *fakePort) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeouts = append(p.timeouts, d)
	return nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.record("reset")
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.ops = append(p.ops, "close")
	return nil
}

func (p *fakePort) writeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

func (p *fakePort) snapshot() ([]string, bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ops...), p.rts, p.closed
}

type recordingHandler struct {
	mu     sync.Mutex
	frames []frame.Frame
	onCall func()
}

func (h *recordingHandler) HandleFrame(ctx context.Context, req Request, f frame.Frame) {
	h.mu.Lock()
	h.frames = append(h.frames, f)
	h.mu.Unlock()
	if h.onCall != nil {
		h.onCall()
	}
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.frames)
}

type countingObserver struct {
	mu sync.Mutex
	n  int
}

func (o *countingObserver) ObserveFrame() {
	o.mu.Lock()
	o.n++
	o.mu.Unlock()
}

func testSettings() config.SerialSettings {
	return config.SerialSettings{
		Device:         "/dev/fake",
		BaudRate:       9600,
		Address:        frame.DefaultAddress,
		ReadTimeout:    time.Second,
		InterByteGap:   50 * time.Millisecond,
		DequeueTimeout: 10 * time.Millisecond,
	}
}

// meterReply returns a valid 49-byte meter reply
func meterReply() []byte {
	return frame.BuildReply(frame.DefaultAddress, 0x03, make([]byte, 44))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTurnaroundHold(t *testing.T) {
	tests := []struct {
		length int
		baud   int
		want   time.Duration
	}{
		{8, 9600, 8333333 * time.Nanosecond},
		{1, 9600, 1041666 * time.Nanosecond},
		{8, 19200, 4166666 * time.Nanosecond},
		{8, 0, 0},
	}
	for _, tt := range tests {
		if got := TurnaroundHold(tt.length, tt.baud); got != tt.want {
			t.Errorf("TurnaroundHold(%d, %d) = %v, expected %v", tt.length, tt.baud, got, tt.want)
		}
	}
}

func TestDriverDeliversValidFrame(t *testing.T) {
	reply := meterReply()
	port := &fakePort{chunks: [][]byte{reply[:20], reply[20:]}}
	queue := NewQueue()
	queue.Enqueue(mustRequest(t, frame.KindMeter))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := &recordingHandler{onCall: cancel}
	observer := &countingObserver{}
	d := NewDriver(port, queue, testSettings(), handler)
	d.AddObserver(observer)

	var holds []time.Duration
	d.sleep = func(ctx context.Context, dur time.Duration) { holds = append(holds, dur) }

	if err := d.Run(ctx); err != nil {
		t.Fatalf("Expected clean shutdown, got %v", err)
	}

	if handler.count() != 1 {
		t.Fatalf("Expected 1 frame, got %d", handler.count())
	}
	if got := handler.frames[0].Length(); got != 49 {
		t.Errorf("Expected 49-byte frame, got %d", got)
	}
	if observer.n != 1 {
		t.Errorf("Expected observer to see 1 frame, got %d", observer.n)
	}

	if len(holds) != 1 || holds[0] != TurnaroundHold(8, 9600) {
		t.Errorf("Expected one RTS hold of %v, got %v", TurnaroundHold(8, 9600), holds)
	}

	ops, rts, closed := port.snapshot()
	want := []string{"reset", "rts:false", "rts:true", "write", "rts:false"}
	for i, op := range want {
		if i >= len(ops) || ops[i] != op {
			t.Fatalf("Expected ops to start with %v, got %v", want, ops)
		}
	}
	if ops[len(ops)-1] != "close" || ops[len(ops)-2] != "rts:false" {
		t.Errorf("Expected shutdown to clear RTS then close, got %v", ops)
	}
	if rts || !closed {
		t.Errorf("Expected RTS off and port closed, got rts=%v closed=%v", rts, closed)
	}
	if string(port.writes[0]) != string(mustRequest(t, frame.KindMeter).Frame()) {
		t.Errorf("Unexpected request bytes % X", port.writes[0])
	}
}

func TestDriverDropsCorruptFrame(t *testing.T) {
	reply := meterReply()
	reply[20] ^= 0x01
	port := &fakePort{chunks: [][]byte{reply}}
	queue := NewQueue()
	queue.Enqueue(mustRequest(t, frame.KindMeter))

	mock := logger.NewMockLogger()
	handler := &recordingHandler{}
	d := NewDriver(port, queue, testSettings(), handler)
	d.SetErrorHandler(bridgeerrors.NewErrorHandler(nil, mock))
	d.sleep = func(context.Context, time.Duration) {}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, "corrupt frame warning", mock.HasWarnMessage)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Expected clean shutdown, got %v", err)
	}
	if handler.count() != 0 {
		t.Errorf("Expected corrupt frame to be dropped, handler saw %d", handler.count())
	}
}

func TestDriverSingleRequestInFlight(t *testing.T) {
	port := &fakePort{block: make(chan struct{})}
	queue := NewQueue()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			queue.Enqueue(mustRequest(t, frame.KindInverter))
		}()
	}
	wg.Wait()

	d := NewDriver(port, queue, testSettings(), &recordingHandler{})
	d.sleep = func(context.Context, time.Duration) {}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, "first write", func() bool { return port.writeCount() == 1 })
	time.Sleep(50 * time.Millisecond)

	if n := port.writeCount(); n != 1 {
		t.Errorf("Expected exactly 1 write while awaiting reply, got %d", n)
	}
	if s := d.getState(); s != stateAwaitingReply {
		t.Errorf("Expected state %v, got %v", stateAwaitingReply, s)
	}
	if queue.Len() != 4 {
		t.Errorf("Expected 4 requests still queued, got %d", queue.Len())
	}

	cancel()
	close(port.block)
	if err := <-done; err != nil {
		t.Fatalf("Expected clean shutdown, got %v", err)
	}
}

func TestDriverReadErrorIsFatal(t *testing.T) {
	port := &fakePort{readErr: errors.New("device unplugged")}
	queue := NewQueue()
	queue.Enqueue(mustRequest(t, frame.KindBattery))

	d := NewDriver(port, queue, testSettings(), &recordingHandler{})
	d.sleep = func(context.Context, time.Duration) {}

	err := d.Run(context.Background())
	if !errors.Is(err, bridgeerrors.ErrDeviceIO) {
		t.Fatalf("Expected DeviceIO error, got %v", err)
	}
	_, rts, closed := port.snapshot()
	if rts || !closed {
		t.Errorf("Expected RTS off and port closed after failure, got rts=%v closed=%v", rts, closed)
	}
}

func TestDriverNoReplyReturnsToIdle(t *testing.T) {
	port := &fakePort{}
	queue := NewQueue()
	queue.Enqueue(mustRequest(t, frame.KindMeter))
	queue.Enqueue(mustRequest(t, frame.KindBattery))

	handler := &recordingHandler{}
	d := NewDriver(port, queue, testSettings(), handler)
	d.sleep = func(context.Context, time.Duration) {}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, "both requests sent", func() bool { return port.writeCount() == 2 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Expected clean shutdown, got %v", err)
	}
	if handler.count() != 0 {
		t.Errorf("Expected no frames, got %d", handler.count())
	}
	if d.getState() != stateIdle {
		t.Errorf("Expected idle after shutdown, got %v", d.getState())
	}
}

type recordingDrops struct {
	mu      sync.Mutex
	reasons []string
}

func (o *recordingDrops) ObserveDrop(reason string) {
	o.mu.Lock()
	o.reasons = append(o.reasons, reason)
	o.mu.Unlock()
}

func (o *recordingDrops) list() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.reasons...)
}

func TestDriverReportsDropReasons(t *testing.T) {
	corrupt := meterReply()
	corrupt[10] ^= 0xFF
	// First exchange gets a corrupt reply, the second none at all
	port := &fakePort{chunks: [][]byte{corrupt}}
	queue := NewQueue()
	queue.Enqueue(mustRequest(t, frame.KindMeter))
	queue.Enqueue(mustRequest(t, frame.KindMeter))

	drops := &recordingDrops{}
	d := NewDriver(port, queue, testSettings(), &recordingHandler{})
	d.SetErrorHandler(bridgeerrors.NewErrorHandler(nil, logger.NewMockLogger()))
	d.AddDropObserver(drops)
	d.sleep = func(context.Context, time.Duration) {}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, "two drops", func() bool { return len(drops.list()) == 2 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Expected clean shutdown, got %v", err)
	}

	got := drops.list()
	if got[0] != "CrcMismatch" || got[1] != "NoReply" {
		t.Errorf("Expected [CrcMismatch NoReply], got %v", got)
	}
}
