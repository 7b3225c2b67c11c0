package config

import (
	"fmt"
	"os"
	"storion-modbus-bridge/pkg/logger"
	"storion-modbus-bridge/pkg/topics"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Version  string               `yaml:"version,omitempty"`
	Serial   SerialConfig         `yaml:"serial"`
	MQTT     MQTTConfig           `yaml:"mqtt"`
	Topics   TopicsConfig         `yaml:"topics"`
	Schedule ScheduleConfig       `yaml:"schedule"`
	Watchdog WatchdogConfig       `yaml:"watchdog"`
	Recovery RecoveryConfig       `yaml:"recovery"`
	HTTP     HTTPConfig           `yaml:"http"`
	Logging  logger.LoggingConfig `yaml:"logging"`
}

// SerialConfig contains the RS-485 port settings
type SerialConfig struct {
	Device         string `yaml:"device"`
	BaudRate       int    `yaml:"baud_rate"`
	ReadTimeout    int    `yaml:"read_timeout_ms"`    // Max wait for the first reply byte
	InterByteGap   int    `yaml:"inter_byte_gap_ms"`  // Line silence that ends a reply
	Address        uint8  `yaml:"address"`            // Bus address of the battery/inverter stack
	SettleDelay    int    `yaml:"settle_delay_ms"`    // Wait after open before the line is trusted
	DequeueTimeout int    `yaml:"dequeue_timeout_ms"` // Max idle wait for a request
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	ClientID   string `yaml:"client_id"`
	RetryDelay int    `yaml:"retry_delay"` // Delay between connection retries in milliseconds
	KeepAlive  int    `yaml:"keep_alive"`  // Seconds
	QoS        *byte  `yaml:"qos"`         // Defaults to 1 when omitted
}

// EffectiveQoS returns the configured QoS, or DefaultQoS when none was set
func (m MQTTConfig) EffectiveQoS() byte {
	if m.QoS == nil {
		return DefaultQoS
	}
	return *m.QoS
}

// TopicsConfig contains every MQTT topic the bridge publishes to or listens on
type TopicsConfig struct {
	Meter       string `yaml:"meter"`
	Battery     string `yaml:"battery"`
	Inverter    string `yaml:"inverter"`
	Temperature string `yaml:"temperature"`
	Check       string `yaml:"check"`   // Health check requests
	Report      string `yaml:"report"`  // Health reports and last will
	Control     string `yaml:"control"` // On-demand read requests, may contain wildcards
}

// ScheduleConfig contains poll intervals expressed in ticks
type ScheduleConfig struct {
	TickMs      int `yaml:"tick_ms"`
	Inverter    int `yaml:"inverter"`
	Meter       int `yaml:"meter"`
	Battery     int `yaml:"battery"`
	Temperature int `yaml:"temperature"`
}

// WatchdogConfig contains the stale-bus detection settings
type WatchdogConfig struct {
	Timeout       int `yaml:"timeout_s"`
	CheckInterval int `yaml:"check_interval_ms"`
	Heartbeat     int `yaml:"heartbeat_s"` // Periodic OK report while healthy, negative disables
}

// RecoveryConfig contains the serial port re-open policy
type RecoveryConfig struct {
	PortOpenCooldown int `yaml:"port_open_cooldown_s"`
}

// HTTPConfig contains the health and metrics listener settings. Port 0 disables it.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Defaults
const (
	DefaultDevice           = "/dev/ttyUSB0"
	DefaultBaudRate         = 9600
	DefaultReadTimeout      = 1000
	DefaultInterByteGap     = 50
	DefaultAddress          = 0x55
	DefaultSettleDelay      = 2000
	DefaultDequeueTimeout   = 1000
	DefaultMQTTPort         = 1883
	DefaultClientID         = "storion-modbus-bridge"
	DefaultRetryDelay       = 5000
	DefaultKeepAlive        = 60
	DefaultTickMs           = 100
	DefaultInverterTicks    = 25
	DefaultMeterTicks       = 300
	DefaultBatteryTicks     = 300
	DefaultTemperatureTicks = 3000
	DefaultWatchdogTimeout  = 300
	DefaultWatchdogInterval = 1000
	DefaultHeartbeat        = 60
	DefaultPortOpenCooldown = 120
	DefaultTopicPrefix      = "huis/AlphaEss"
)

// DefaultQoS is used for every publish and subscription when mqtt.qos is omitted
const DefaultQoS byte = 1

// LoadConfig loads configuration from the first readable location
func LoadConfig(configPath string) (*Config, error) {
	paths := []string{
		configPath,
		"/etc/storion-modbus-bridge/config.yaml",
		"/etc/storion-modbus-bridge.yaml",
		"./config.yaml",
	}

	var data []byte
	var err error
	var usedPath string

	for _, path := range paths {
		if path == "" {
			continue
		}
		// #nosec G304 - Paths are from a hardcoded list of safe configuration file locations
		data, err = os.ReadFile(path)
		if err == nil {
			usedPath = path
			break
		}
	}

	if err != nil {
		return nil, fmt.Errorf("cannot read configuration file from any of the locations: %v. Last error: %w", paths, err)
	}

	config, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", usedPath, err)
	}

	logger.LogInfo("✅ Configuration loaded successfully from %s (version: %s)", usedPath, config.Version)
	return config, nil
}

// LoadConfigFromString loads configuration from a YAML string (for testing)
func LoadConfigFromString(yamlContent string) (*Config, error) {
	return parse([]byte(yamlContent))
}

func parse(data []byte) (*Config, error) {
	var versionCheck VersionInfo
	if err := yaml.Unmarshal(data, &versionCheck); err != nil {
		return nil, fmt.Errorf("error parsing configuration version: %w", err)
	}
	if versionCheck.Version == "" {
		versionCheck.Version = CurrentVersion
	}
	if err := ValidateVersion(versionCheck.Version); err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing configuration: %w", err)
	}
	config.Version = versionCheck.Version
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ApplyDefaults fills every zero-valued setting with its default
func (c *Config) ApplyDefaults() {
	setDefault(&c.Serial.Device, DefaultDevice)
	setDefault(&c.Serial.BaudRate, DefaultBaudRate)
	setDefault(&c.Serial.ReadTimeout, DefaultReadTimeout)
	setDefault(&c.Serial.InterByteGap, DefaultInterByteGap)
	setDefault(&c.Serial.Address, DefaultAddress)
	setDefault(&c.Serial.SettleDelay, DefaultSettleDelay)
	setDefault(&c.Serial.DequeueTimeout, DefaultDequeueTimeout)

	setDefault(&c.MQTT.Port, DefaultMQTTPort)
	setDefault(&c.MQTT.ClientID, DefaultClientID)
	setDefault(&c.MQTT.RetryDelay, DefaultRetryDelay)
	setDefault(&c.MQTT.KeepAlive, DefaultKeepAlive)
	if c.MQTT.QoS == nil {
		qos := DefaultQoS
		c.MQTT.QoS = &qos
	}

	setDefault(&c.Topics.Meter, topics.Join(DefaultTopicPrefix, "meter"))
	setDefault(&c.Topics.Battery, topics.Join(DefaultTopicPrefix, "battery"))
	setDefault(&c.Topics.Inverter, topics.Join(DefaultTopicPrefix, "inverter"))
	setDefault(&c.Topics.Temperature, topics.Join(DefaultTopicPrefix, "inverter/temperature"))
	setDefault(&c.Topics.Check, topics.Join(DefaultTopicPrefix, "RPiInfra/check"))
	setDefault(&c.Topics.Report, topics.Join(DefaultTopicPrefix, "RPiInfra/report"))
	setDefault(&c.Topics.Control, topics.Join(DefaultTopicPrefix, "+/control"))

	setDefault(&c.Schedule.TickMs, DefaultTickMs)
	setDefault(&c.Schedule.Inverter, DefaultInverterTicks)
	setDefault(&c.Schedule.Meter, DefaultMeterTicks)
	setDefault(&c.Schedule.Battery, DefaultBatteryTicks)
	setDefault(&c.Schedule.Temperature, DefaultTemperatureTicks)

	setDefault(&c.Watchdog.Timeout, DefaultWatchdogTimeout)
	setDefault(&c.Watchdog.CheckInterval, DefaultWatchdogInterval)
	setDefault(&c.Watchdog.Heartbeat, DefaultHeartbeat)

	setDefault(&c.Recovery.PortOpenCooldown, DefaultPortOpenCooldown)

	if c.Logging.Level == "" {
		c.Logging.Level = logger.LogLevelInfo
	}
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Serial.Device == "" {
		return fmt.Errorf("serial.device is not specified")
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive")
	}
	if c.Serial.ReadTimeout <= 0 || c.Serial.InterByteGap <= 0 {
		return fmt.Errorf("serial.read_timeout_ms and serial.inter_byte_gap_ms must be positive")
	}
	if c.Serial.InterByteGap >= c.Serial.ReadTimeout {
		return fmt.Errorf("serial.inter_byte_gap_ms (%d) must be shorter than serial.read_timeout_ms (%d)",
			c.Serial.InterByteGap, c.Serial.ReadTimeout)
	}
	if c.Serial.SettleDelay < 0 {
		return fmt.Errorf("serial.settle_delay_ms must be non-negative")
	}
	if c.Serial.DequeueTimeout <= 0 || c.Serial.DequeueTimeout > 1000 {
		return fmt.Errorf("serial.dequeue_timeout_ms must be between 1 and 1000")
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is not specified")
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return fmt.Errorf("mqtt.port must be between 1 and 65535")
	}
	if c.MQTT.EffectiveQoS() > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if c.Schedule.TickMs <= 0 {
		return fmt.Errorf("schedule.tick_ms must be positive")
	}
	for name, ticks := range map[string]int{
		"inverter":    c.Schedule.Inverter,
		"meter":       c.Schedule.Meter,
		"battery":     c.Schedule.Battery,
		"temperature": c.Schedule.Temperature,
	} {
		if ticks <= 0 {
			return fmt.Errorf("schedule.%s must be a positive number of ticks", name)
		}
	}
	if c.Watchdog.Timeout <= 0 {
		return fmt.Errorf("watchdog.timeout_s must be positive")
	}
	if c.Watchdog.CheckInterval <= 0 {
		return fmt.Errorf("watchdog.check_interval_ms must be positive")
	}
	if c.Watchdog.CheckInterval >= c.Watchdog.Timeout*1000 {
		return fmt.Errorf("watchdog.check_interval_ms (%d) must be shorter than watchdog.timeout_s (%d s)",
			c.Watchdog.CheckInterval, c.Watchdog.Timeout)
	}
	if c.Recovery.PortOpenCooldown < 0 {
		return fmt.Errorf("recovery.port_open_cooldown_s must be non-negative")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 0 and 65535")
	}
	if c.Topics.Report == "" || c.Topics.Check == "" {
		return fmt.Errorf("topics.report and topics.check are required")
	}
	return nil
}

// ms converts a millisecond setting to a duration
func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
