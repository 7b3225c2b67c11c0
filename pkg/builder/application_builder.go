package builder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storion-modbus-bridge/pkg/bus"
	"storion-modbus-bridge/pkg/config"
	"storion-modbus-bridge/pkg/decode"
	bridgeerrors "storion-modbus-bridge/pkg/errors"
	"storion-modbus-bridge/pkg/health"
	httpserver "storion-modbus-bridge/pkg/http"
	"storion-modbus-bridge/pkg/logger"
	"storion-modbus-bridge/pkg/metrics"
	"storion-modbus-bridge/pkg/mqtt"
	"storion-modbus-bridge/pkg/recovery"
	"storion-modbus-bridge/pkg/scheduler"
	"storion-modbus-bridge/pkg/services"
)

// summaryInterval is how often the frame counters are logged
const summaryInterval = 5 * time.Minute

// ApplicationBuilder provides a fluent interface for constructing Application instances
// Following Builder pattern to enable dependency injection and improve testability
type ApplicationBuilder struct {
	config     *config.Config
	opener     bus.Opener
	mqttClient MQTTClient
	metrics    metrics.MetricsCollector
	version    string
}

// MQTTClient defines the contract for the broker connection
// Enables mocking and testing
type MQTTClient interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
	Publish(ctx context.Context, topic string, retained bool, payload []byte) error
	Subscribe(topic string, handler mqtt.MessageHandler)
}

// NewApplicationBuilder creates a new builder with default configuration
func NewApplicationBuilder(cfg *config.Config) *ApplicationBuilder {
	return &ApplicationBuilder{
		config:  cfg,
		version: "dev",
	}
}

// WithPortOpener sets how the serial port is opened
func (b *ApplicationBuilder) WithPortOpener(opener bus.Opener) *ApplicationBuilder {
	b.opener = opener
	return b
}

// WithMQTTClient sets a custom broker connection
func (b *ApplicationBuilder) WithMQTTClient(client MQTTClient) *ApplicationBuilder {
	b.mqttClient = client
	return b
}

// WithMetrics sets a custom metrics collector
func (b *ApplicationBuilder) WithMetrics(m metrics.MetricsCollector) *ApplicationBuilder {
	b.metrics = m
	return b
}

// WithVersion sets the version reported by the health endpoint
func (b *ApplicationBuilder) WithVersion(version string) *ApplicationBuilder {
	b.version = version
	return b
}

// Build constructs the Application with all dependencies
// Creates default implementations for any missing dependencies
func (b *ApplicationBuilder) Build() (*Application, error) {
	if b.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, bridgeerrors.New(bridgeerrors.KindConfig, "build", err)
	}

	if b.opener == nil {
		b.opener = bus.OpenSerial
	}
	if b.mqttClient == nil {
		b.mqttClient = mqtt.NewClient(config.NewMQTTSettings(b.config))
	}
	if b.metrics == nil {
		if b.config.HTTP.Port > 0 {
			b.metrics = metrics.NewPrometheusMetrics()
		} else {
			b.metrics = metrics.NewNullMetrics()
		}
	}

	serial := config.NewSerialSettings(b.config)
	wd := config.NewWatchdogSettings(b.config)

	reporter := mqtt.NewHealthReporter(b.mqttClient, b.config.Topics.Report)
	errs := bridgeerrors.NewErrorHandler(reporter, nil)
	queue := bus.NewQueue()
	cache := &scheduler.TemperatureCache{}
	publisher := mqtt.NewPublisher(b.mqttClient, b.config.Topics, b.metrics)
	watchdog := health.NewWatchdog(wd.Timeout, errs, b.metrics)

	app := &Application{
		config:    b.config,
		serial:    serial,
		watchdog:  wd,
		mqtt:      b.mqttClient,
		opener:    b.opener,
		queue:     queue,
		errors:    errs,
		metrics:   b.metrics,
		monitor:   watchdog,
		tracker:   metrics.NewFrameTracker(summaryInterval),
		scheduler: scheduler.NewPollScheduler(config.NewScheduleSettings(b.config), serial.Address, queue, cache, publisher),
		service:   services.NewBridgeService(decode.NewDispatcher(), publisher, cache, errs, b.metrics),
		check:     mqtt.NewCheckResponder(watchdog, reporter),
		control:   mqtt.NewControlHandler(queue, b.config.Topics.Control, serial.Address),
		breaker: recovery.NewCircuitBreaker(recovery.CircuitBreakerConfig{
			MaxFailures: 1,
			Cooldown:    b.config.PortOpenCooldown(),
		}),
	}

	app.service.AddRejectObserver(app.tracker)

	if wd.Heartbeat > 0 {
		app.heartbeat = services.NewHeartbeatService(reporter, watchdog, wd.Heartbeat)
	}
	if b.config.HTTP.Port > 0 {
		healthHandler := httpserver.NewHealthHandler(watchdog, queue, b.version).WithPortGuard(app.breaker)
		app.httpServer = httpserver.NewServer(b.config.HTTP.Port, healthHandler, b.metrics.Handler(), queue, serial.Address)
	}

	return app, nil
}

// Application owns every long-running part of the bridge
type Application struct {
	config   *config.Config
	serial   config.SerialSettings
	watchdog config.WatchdogSettings

	mqtt       MQTTClient
	opener     bus.Opener
	queue      *bus.Queue
	errors     *bridgeerrors.ErrorHandler
	metrics    metrics.MetricsCollector
	monitor    *health.Watchdog
	tracker    *metrics.FrameTracker
	scheduler  *scheduler.PollScheduler
	service    *services.BridgeService
	heartbeat  *services.HeartbeatService
	check      *mqtt.CheckResponder
	control    *mqtt.ControlHandler
	breaker    *recovery.CircuitBreaker
	httpServer *httpserver.Server
}

// GetConfig returns the application configuration
func (app *Application) GetConfig() *config.Config {
	return app.config
}

// GetWatchdog returns the stale-bus monitor
func (app *Application) GetWatchdog() *health.Watchdog {
	return app.monitor
}

// Run connects to the broker, starts the background loops and supervises the
// bus until ctx is cancelled. It only returns an error when startup fails.
func (app *Application) Run(ctx context.Context) error {
	if err := app.mqtt.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	defer func() {
		app.mqtt.Disconnect()
		logger.LogInfo("🔌 Disconnected from MQTT broker")
	}()

	app.mqtt.Subscribe(app.config.Topics.Check, app.check.HandleMessage)
	app.mqtt.Subscribe(app.config.Topics.Control, app.control.HandleMessage)

	if app.heartbeat != nil {
		if err := app.heartbeat.SendImmediateHeartbeat(ctx); err != nil {
			logger.LogDebug("Startup heartbeat skipped: %v", err)
		}
	}

	if app.httpServer != nil {
		if err := app.httpServer.Start(ctx); err != nil {
			logger.LogError("❌ Failed to start HTTP server: %v", err)
		} else {
			defer func() {
				if err := app.httpServer.Stop(context.Background()); err != nil {
					logger.LogWarn("⚠️ %v", err)
				}
			}()
		}
	}

	var wg sync.WaitGroup
	goLoop := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	goLoop(app.scheduler.Start)
	goLoop(func(ctx context.Context) { app.monitor.Start(ctx, app.watchdog.CheckInterval) })
	if app.heartbeat != nil {
		goLoop(app.heartbeat.Start)
	}

	app.superviseBus(ctx)

	wg.Wait()
	logger.LogInfo("✅ Bridge stopped")
	return nil
}

// superviseBus keeps a driver running on an open port. A failed open is
// reported and retried only after the breaker cooldown; a failed port is
// closed by the driver and re-opened straight away.
func (app *Application) superviseBus(ctx context.Context) {
	for ctx.Err() == nil {
		port, err := app.openPort()
		if err != nil {
			if errors.Is(err, recovery.ErrCircuitOpen) {
				wait := app.breaker.Remaining()
				if wait <= 0 {
					wait = time.Second
				}
				logger.LogDebug("Serial port open on cooldown, next attempt in %v", wait)
				sleepContext(ctx, wait)
				continue
			}
			app.errors.Handle(ctx, err)
			continue
		}

		driver := bus.NewDriver(port, app.queue, app.serial, app.service)
		driver.AddObserver(app.monitor)
		driver.AddObserver(app.tracker)
		driver.AddDropObserver(app.tracker)
		driver.SetErrorHandler(app.errors)
		driver.SetMetrics(app.metrics)

		if err := driver.Run(ctx); err != nil {
			app.errors.Handle(ctx, err)
		}
	}
}

func (app *Application) openPort() (bus.Port, error) {
	var port bus.Port
	err := app.breaker.Call(func() error {
		p, err := app.opener(app.serial)
		if err != nil {
			if !errors.Is(err, bridgeerrors.ErrPortOpenFailure) {
				err = bridgeerrors.New(bridgeerrors.KindPortOpenFailure, app.serial.Device, err)
			}
			return err
		}
		port = p
		return nil
	})
	return port, err
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
