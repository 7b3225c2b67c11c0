package bus

import (
	"context"
	"sync/atomic"
	"time"

	"storion-modbus-bridge/pkg/config"
	bridgeerrors "storion-modbus-bridge/pkg/errors"
	"storion-modbus-bridge/pkg/frame"
	"storion-modbus-bridge/pkg/logger"
	"storion-modbus-bridge/pkg/metrics"
)

// FrameHandler receives every validated reply together with the request that produced it
type FrameHandler interface {
	HandleFrame(ctx context.Context, req Request, f frame.Frame)
}

// FrameObserver is told about every validated reply before it is handled
type FrameObserver interface {
	ObserveFrame()
}

// DropObserver is told about every exchange that produced no usable reply
type DropObserver interface {
	ObserveDrop(reason string)
}

type driverState int32

const (
	stateIdle driverState = iota
	stateTransmitting
	stateAwaitingReply
)

func (s driverState) String() string {
	switch s {
	case stateTransmitting:
		return "transmitting"
	case stateAwaitingReply:
		return "awaiting-reply"
	default:
		return "idle"
	}
}

// TurnaroundHold is how long RTS must stay asserted after a write so the last
// byte leaves the transceiver: 10 bit times (8N1) per byte.
func TurnaroundHold(frameLen, baudRate int) time.Duration {
	if baudRate <= 0 {
		return 0
	}
	return time.Duration(frameLen) * 10 * time.Second / time.Duration(baudRate)
}

// Driver owns the half-duplex line. At most one request is in flight: the
// queue is only consulted again once the previous exchange has finished.
type Driver struct {
	port      Port
	queue     *Queue
	settings  config.SerialSettings
	handler   FrameHandler
	observers []FrameObserver
	droppers  []DropObserver
	errors    *bridgeerrors.ErrorHandler
	metrics   metrics.MetricsCollector

	state atomic.Int32

	// Injectable for tests
	sleep func(ctx context.Context, d time.Duration)
	now   func() time.Time
}

// NewDriver creates a driver for an already opened port
func NewDriver(port Port, queue *Queue, settings config.SerialSettings, handler FrameHandler) *Driver {
	return &Driver{
		port:     port,
		queue:    queue,
		settings: settings,
		handler:  handler,
		errors:   bridgeerrors.NewErrorHandler(nil, nil),
		metrics:  metrics.NewNullMetrics(),
		sleep:    sleepContext,
		now:      time.Now,
	}
}

// AddObserver registers o to be notified of every valid frame
func (d *Driver) AddObserver(o FrameObserver) {
	d.observers = append(d.observers, o)
}

// AddDropObserver registers o to be notified of every dropped reply
func (d *Driver) AddDropObserver(o DropObserver) {
	d.droppers = append(d.droppers, o)
}

// SetErrorHandler replaces the handler used for dropped frames
func (d *Driver) SetErrorHandler(h *bridgeerrors.ErrorHandler) {
	d.errors = h
}

// SetMetrics replaces the metrics collector
func (d *Driver) SetMetrics(m metrics.MetricsCollector) {
	d.metrics = m
}

func (d *Driver) getState() driverState {
	return driverState(d.state.Load())
}

func (d *Driver) setState(s driverState) {
	d.state.Store(int32(s))
}

// Run drives the bus until ctx is cancelled (returns nil) or the port fails
// (returns a DeviceIO error; the caller must re-open the port). The port is
// always released with RTS deasserted before Run returns.
func (d *Driver) Run(ctx context.Context) error {
	defer d.shutdown()

	if err := d.settle(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	logger.LogInfo("🔌 Bus driver ready on %s at %d baud", d.settings.Device, d.settings.BaudRate)

	for {
		if ctx.Err() != nil {
			return nil
		}

		req, ok := d.queue.Dequeue(ctx, d.settings.DequeueTimeout)
		d.metrics.SetQueueDepth(d.queue.Len())
		if !ok {
			continue
		}

		if err := d.exchange(ctx, req); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// settle waits for the OS to stop probing the freshly opened tty, then drops
// whatever it left in the input buffer.
func (d *Driver) settle(ctx context.Context) error {
	if d.settings.SettleDelay > 0 {
		logger.LogDebug("Waiting %v for the serial line to settle", d.settings.SettleDelay)
		d.sleep(ctx, d.settings.SettleDelay)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := d.port.ResetInputBuffer(); err != nil {
		return bridgeerrors.New(bridgeerrors.KindDeviceIO, "reset input buffer", err)
	}
	if err := d.port.SetRTS(false); err != nil {
		return bridgeerrors.New(bridgeerrors.KindDeviceIO, "clear RTS", err)
	}
	return nil
}

// exchange performs one request/reply cycle. Only port failures are returned;
// a missing or malformed reply is logged, counted and dropped.
func (d *Driver) exchange(ctx context.Context, req Request) error {
	defer d.setState(stateIdle)

	msg := req.Frame()
	d.setState(stateTransmitting)
	logger.LogTrace("→ %s request % X", req.Kind, msg)

	if err := d.port.SetRTS(true); err != nil {
		return bridgeerrors.New(bridgeerrors.KindDeviceIO, "set RTS", err)
	}
	if _, err := d.port.Write(msg); err != nil {
		_ = d.port.SetRTS(false)
		return bridgeerrors.New(bridgeerrors.KindDeviceIO, "write", err)
	}
	sentAt := d.now()

	// Keep the transmitter enabled until the last stop bit is out
	d.sleep(ctx, TurnaroundHold(len(msg), d.settings.BaudRate))
	if err := d.port.SetRTS(false); err != nil {
		return bridgeerrors.New(bridgeerrors.KindDeviceIO, "clear RTS", err)
	}
	d.setState(stateAwaitingReply)
	d.metrics.IncrementRequestsSent(req.Kind.String())

	raw, err := d.readReply()
	if err != nil {
		return bridgeerrors.New(bridgeerrors.KindDeviceIO, "read", err)
	}
	if len(raw) == 0 {
		logger.LogDebug("No reply to %s request within %v", req.Kind, d.settings.ReadTimeout)
		d.drop("NoReply")
		return nil
	}
	logger.LogTrace("← %d bytes % X", len(raw), raw)

	f, err := frame.Validate(raw)
	if err != nil {
		d.drop(bridgeerrors.KindOf(err).String())
		d.errors.Handle(ctx, err)
		return nil
	}

	d.metrics.IncrementFramesValid()
	d.metrics.ObserveExchangeDuration(d.now().Sub(sentAt))
	for _, o := range d.observers {
		o.ObserveFrame()
	}
	if d.handler != nil {
		d.handler.HandleFrame(ctx, req, f)
	}
	return nil
}

// readReply waits up to the read timeout for the first bytes, then keeps
// reading until the line has been quiet for the inter-byte gap or the buffer
// is full. An empty result means nothing arrived.
func (d *Driver) readReply() ([]byte, error) {
	buf := make([]byte, frame.MaxLength)

	if err := d.port.SetReadTimeout(d.settings.ReadTimeout); err != nil {
		return nil, err
	}
	n, err := d.port.Read(buf)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	if err := d.port.SetReadTimeout(d.settings.InterByteGap); err != nil {
		return nil, err
	}
	for n < len(buf) {
		m, err := d.port.Read(buf[n:])
		if err != nil {
			return nil, err
		}
		if m == 0 {
			break
		}
		n += m
	}
	return buf[:n], nil
}

func (d *Driver) drop(reason string) {
	d.metrics.IncrementFramesDropped(reason)
	for _, o := range d.droppers {
		o.ObserveDrop(reason)
	}
}

func (d *Driver) shutdown() {
	if err := d.port.SetRTS(false); err != nil {
		logger.LogDebug("Failed to clear RTS on shutdown: %v", err)
	}
	if err := d.port.Close(); err != nil {
		logger.LogWarn("⚠️ Failed to close serial port: %v", err)
	}
	d.setState(stateIdle)
	logger.LogInfo("🔌 Bus driver stopped")
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
