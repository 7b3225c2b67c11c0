package main

import (
	"fmt"
	"os"
	"time"

	"storion-modbus-bridge/pkg/bus"
	"storion-modbus-bridge/pkg/config"
	"storion-modbus-bridge/pkg/decode"
	"storion-modbus-bridge/pkg/frame"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: validate_config <config-file>")
		os.Exit(1)
	}

	configPath := os.Args[1]
	fmt.Printf("📄 Loading config from: %s\n", configPath)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("❌ Error loading config: %v\n", err)
		os.Exit(1)
	}

	serial := config.NewSerialSettings(cfg)
	sched := config.NewScheduleSettings(cfg)
	wd := config.NewWatchdogSettings(cfg)

	fmt.Printf("✅ Config loaded successfully!\n")
	fmt.Printf("   Version: %s\n", cfg.Version)
	fmt.Printf("   MQTT Broker: %s:%d (client %s)\n", cfg.MQTT.Broker, cfg.MQTT.Port, cfg.MQTT.ClientID)
	fmt.Printf("   Serial: %s @ %d baud, address 0x%02X\n", serial.Device, serial.BaudRate, serial.Address)
	fmt.Printf("   Reply timing: first byte %v, gap %v, settle %v\n",
		serial.ReadTimeout, serial.InterByteGap, serial.SettleDelay)

	fmt.Printf("\n   Poll schedule (tick %v):\n", sched.Tick)
	for _, p := range []struct {
		kind  frame.Kind
		ticks int
		topic string
	}{
		{frame.KindInverter, sched.InverterTicks, cfg.Topics.Inverter},
		{frame.KindMeter, sched.MeterTicks, cfg.Topics.Meter},
		{frame.KindBattery, sched.BatteryTicks, cfg.Topics.Battery},
	} {
		req, _ := bus.NewRequest(serial.Address, p.kind, time.Now())
		fmt.Printf("     - %-8s every %v → %s (request % X, reply %d bytes, hold %v)\n",
			p.kind, sched.Tick*time.Duration(p.ticks), p.topic, req.Frame(),
			req.Message.ReplyLength(), bus.TurnaroundHold(len(req.Frame()), serial.BaudRate))
	}
	dispatcher := decode.NewDispatcher()
	if sys, ok := bus.NewRequest(serial.Address, frame.KindSystem, time.Now()); ok {
		decoded := "decoded"
		if !dispatcher.Supports(sys.Message.ReplyLength()) {
			decoded = "not decoded"
		}
		fmt.Printf("     - %-8s on demand (request % X, reply %d bytes, %s)\n",
			frame.KindSystem, sys.Frame(), sys.Message.ReplyLength(), decoded)
	}
	fmt.Printf("     - %-8s every %v → %s\n", "temp", sched.Tick*time.Duration(sched.TemperatureTicks), cfg.Topics.Temperature)

	fmt.Printf("\n   Watchdog: timeout %v, check every %v", wd.Timeout, wd.CheckInterval)
	if wd.Heartbeat > 0 {
		fmt.Printf(", heartbeat every %v", wd.Heartbeat)
	}
	fmt.Printf("\n   Port re-open cooldown: %v\n", cfg.PortOpenCooldown())
	if cfg.HTTP.Port > 0 {
		fmt.Printf("   HTTP: :%d (/health, /metrics, /api/v1/request/{kind})\n", cfg.HTTP.Port)
	}

	fmt.Println("\n✅ Configuration is valid!")
}
