package config

import "time"

// SerialSettings contains only bus-driver configuration
// Used for dependency injection to avoid coupling to full Config
type SerialSettings struct {
	Device         string
	BaudRate       int
	Address        byte
	ReadTimeout    time.Duration
	InterByteGap   time.Duration
	SettleDelay    time.Duration
	DequeueTimeout time.Duration
}

// NewSerialSettings extracts serial settings from full config
func NewSerialSettings(cfg *Config) SerialSettings {
	return SerialSettings{
		Device:         cfg.Serial.Device,
		BaudRate:       cfg.Serial.BaudRate,
		Address:        cfg.Serial.Address,
		ReadTimeout:    ms(cfg.Serial.ReadTimeout),
		InterByteGap:   ms(cfg.Serial.InterByteGap),
		SettleDelay:    ms(cfg.Serial.SettleDelay),
		DequeueTimeout: ms(cfg.Serial.DequeueTimeout),
	}
}

// MQTTSettings contains only MQTT-specific configuration
// Used for dependency injection to avoid coupling to full Config
type MQTTSettings struct {
	Broker     string
	Port       int
	Username   string
	Password   string
	ClientID   string
	RetryDelay time.Duration
	KeepAlive  time.Duration
	QoS        byte
	Topics     TopicsConfig
}

// NewMQTTSettings extracts MQTT settings from full config
func NewMQTTSettings(cfg *Config) MQTTSettings {
	return MQTTSettings{
		Broker:     cfg.MQTT.Broker,
		Port:       cfg.MQTT.Port,
		Username:   cfg.MQTT.Username,
		Password:   cfg.MQTT.Password,
		ClientID:   cfg.MQTT.ClientID,
		RetryDelay: ms(cfg.MQTT.RetryDelay),
		KeepAlive:  time.Duration(cfg.MQTT.KeepAlive) * time.Second,
		QoS:        cfg.MQTT.EffectiveQoS(),
		Topics:     cfg.Topics,
	}
}

// ScheduleSettings contains the poll cadence
type ScheduleSettings struct {
	Tick             time.Duration
	InverterTicks    int
	MeterTicks       int
	BatteryTicks     int
	TemperatureTicks int
}

// NewScheduleSettings extracts scheduler settings from full config
func NewScheduleSettings(cfg *Config) ScheduleSettings {
	return ScheduleSettings{
		Tick:             ms(cfg.Schedule.TickMs),
		InverterTicks:    cfg.Schedule.Inverter,
		MeterTicks:       cfg.Schedule.Meter,
		BatteryTicks:     cfg.Schedule.Battery,
		TemperatureTicks: cfg.Schedule.Temperature,
	}
}

// WatchdogSettings contains stale-bus detection configuration
type WatchdogSettings struct {
	Timeout       time.Duration
	CheckInterval time.Duration
	Heartbeat     time.Duration // 0 when disabled
}

// NewWatchdogSettings extracts watchdog settings from full config
func NewWatchdogSettings(cfg *Config) WatchdogSettings {
	var heartbeat time.Duration
	if cfg.Watchdog.Heartbeat > 0 {
		heartbeat = time.Duration(cfg.Watchdog.Heartbeat) * time.Second
	}
	return WatchdogSettings{
		Timeout:       time.Duration(cfg.Watchdog.Timeout) * time.Second,
		CheckInterval: ms(cfg.Watchdog.CheckInterval),
		Heartbeat:     heartbeat,
	}
}

// PortOpenCooldown returns the wait after a failed port open
func (c *Config) PortOpenCooldown() time.Duration {
	return time.Duration(c.Recovery.PortOpenCooldown) * time.Second
}
