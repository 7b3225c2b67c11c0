package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"storion-modbus-bridge/pkg/builder"
	"storion-modbus-bridge/pkg/bus"
	"storion-modbus-bridge/pkg/config"
	"storion-modbus-bridge/pkg/decode"
	bridgeerrors "storion-modbus-bridge/pkg/errors"
	"storion-modbus-bridge/pkg/frame"
	"storion-modbus-bridge/pkg/logger"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

// diagnosticTimeout bounds the one-shot bus test
const diagnosticTimeout = 15 * time.Second

func main() {
	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT and SIGTERM for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Log at info level until the configuration is loaded
	_ = logger.Init(nil)

	// Parse command line arguments
	configPath := ""
	diagnosticMode := false

	for i, arg := range os.Args[1:] {
		if arg == "--help" || arg == "-h" {
			fmt.Printf("Usage: %s [config_path] [--diagnostic]\n", os.Args[0])
			fmt.Printf("  config_path: Path to configuration file (optional)\n")
			fmt.Printf("  --diagnostic: Read every register block once and print the result\n")
			return
		} else if arg == "--diagnostic" {
			diagnosticMode = true
		} else if i == 0 { // First argument is config path
			configPath = arg
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.LogError("Error loading configuration: %v", err)
		os.Exit(1)
	}

	if err := logger.Init(&cfg.Logging); err != nil {
		logger.LogError("⚠️ %v, logging to stdout", err)
	}
	logger.LogStartup("🚀 storion-modbus-bridge %s starting (log level: %s)", version, cfg.Logging.Level)

	go func() {
		<-sigChan
		logger.LogInfo("📢 Stop signal received...")
		cancel()
	}()

	if diagnosticMode {
		if err := runDiagnostic(ctx, cfg); err != nil {
			logger.LogError("❌ Diagnostic failed: %v", err)
			os.Exit(1)
		}
		logger.LogInfo("✅ Diagnostic completed successfully")
		return
	}

	app, err := builder.NewApplicationBuilder(cfg).WithVersion(version).Build()
	if err != nil {
		logger.LogError("Application creation error: %v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.LogError("Application error: %v", err)
		os.Exit(1)
	}
}

// diagnosticHandler collects decoded readings until every request was answered
type diagnosticHandler struct {
	mu         sync.Mutex
	dispatcher *decode.Dispatcher
	remaining  int
	done       context.CancelFunc
}

func (h *diagnosticHandler) HandleFrame(ctx context.Context, req bus.Request, f frame.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap, err := h.dispatcher.Dispatch(f)
	if err != nil {
		logger.LogWarn("⚠️ %s reply (%d bytes) not decoded: %v", req.Kind, f.Length(), err)
	} else {
		out, _ := json.MarshalIndent(snap, "   ", "  ")
		logger.LogInfo("✅ %s reply (%d bytes):\n   %s", snap.Kind(), f.Length(), out)
	}

	h.remaining--
	if h.remaining <= 0 {
		h.done()
	}
}

// runDiagnostic opens the port without MQTT and reads each register block once
func runDiagnostic(ctx context.Context, cfg *config.Config) error {
	logger.LogInfo("🔍 Running diagnostic mode...")
	settings := config.NewSerialSettings(cfg)

	port, err := bus.OpenSerial(settings)
	if err != nil {
		logger.LogInfo("💡 Possible issues:")
		logger.LogInfo("   - Wrong device path (%s)", settings.Device)
		logger.LogInfo("   - Missing permission on the tty (dialout group)")
		logger.LogInfo("   - USB RS-485 adapter not plugged in")
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, diagnosticTimeout)
	defer cancel()

	kinds := []frame.Kind{frame.KindMeter, frame.KindBattery, frame.KindInverter}
	queue := bus.NewQueue()
	for _, kind := range kinds {
		req, _ := bus.NewRequest(settings.Address, kind, time.Now())
		queue.Enqueue(req)
	}

	handler := &diagnosticHandler{
		dispatcher: decode.NewDispatcher(),
		remaining:  len(kinds),
		done:       cancel,
	}
	if err := bus.NewDriver(port, queue, settings, handler).Run(ctx); err != nil {
		if !bridgeerrors.IsRecoverable(err) {
			logger.LogInfo("💡 The adapter stopped responding:")
			logger.LogInfo("   - USB cable or hub reset during the test")
			logger.LogInfo("   - Another process holds %s", settings.Device)
		}
		return err
	}

	handler.mu.Lock()
	missing := handler.remaining
	handler.mu.Unlock()
	if missing > 0 {
		logger.LogInfo("💡 Possible issues:")
		logger.LogInfo("   - Wrong bus address (0x%02X)", settings.Address)
		logger.LogInfo("   - A/B lines swapped or missing termination")
		logger.LogInfo("   - Wrong baud rate (%d)", settings.BaudRate)
		return fmt.Errorf("%d of %d requests got no valid reply", missing, len(kinds))
	}
	return nil
}
