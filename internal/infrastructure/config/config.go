package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the smart house services.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
	Switch      SwitchConfig      `yaml:"switch"`
	Thermometer ThermometerConfig `yaml:"thermometer"`
	Sender      SenderConfig      `yaml:"sender"`
	House       HouseConfig       `yaml:"house"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Metrics  bool             `yaml:"metrics"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SwitchConfig configures the power switch served by "switch serve".
type SwitchConfig struct {
	// ID names the switch on the message bus and in metrics.
	ID string `yaml:"id"`

	// ListenAddress is the TCP address the switch server binds.
	ListenAddress string `yaml:"listen_address"`

	Description string `yaml:"description"`

	// InitialState is 0 (Off) or 1 (On). Any other value fails validation.
	InitialState int `yaml:"initial_state"`

	// PowerConsumption is the draw in watts reported while the switch is on.
	PowerConsumption float64 `yaml:"power_consumption"`

	// IdleTimeout closes silent connections. Zero disables it.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// ThermometerConfig configures the telemetry receiver of "thermometer receive".
type ThermometerConfig struct {
	ID             string        `yaml:"id"`
	ListenAddress  string        `yaml:"listen_address"`
	PeerAddress    string        `yaml:"peer_address"`
	ReceiveTimeout time.Duration `yaml:"receive_timeout"`
	PrintInterval  time.Duration `yaml:"print_interval"`
}

// SenderConfig configures the synthetic telemetry sender.
type SenderConfig struct {
	LocalAddress  string        `yaml:"local_address"`
	TargetAddress string        `yaml:"target_address"`
	Interval      time.Duration `yaml:"interval"`
	From          float64       `yaml:"from"`
	Delta         float64       `yaml:"delta"`
}

// HouseConfig seeds the device directory on first start.
type HouseConfig struct {
	Name  string       `yaml:"name"`
	Rooms []RoomConfig `yaml:"rooms"`
}

// RoomConfig is one room of the seed directory.
type RoomConfig struct {
	Name    string         `yaml:"name"`
	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig is one device of the seed directory.
type DeviceConfig struct {
	Name          string `yaml:"name"`
	Kind          string `yaml:"kind"`
	Description   string `yaml:"description"`
	Address       string `yaml:"address"`
	ListenAddress string `yaml:"listen_address"`
	PeerAddress   string `yaml:"peer_address"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SMARTHOUSE_SECTION_KEY
// For example: SMARTHOUSE_DATABASE_PATH, SMARTHOUSE_SWITCH_LISTEN_ADDRESS
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. It is used when no config file exists.
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Our house",
		},
		Database: DatabaseConfig{
			Path:        "./data/smarthouse.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "smarthouse",
			},
			QoS:         1,
			TopicPrefix: "smarthouse",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Metrics: true,
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Org:           "smarthouse",
			Bucket:        "telemetry",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Switch: SwitchConfig{
			ID:            "switch1",
			ListenAddress: "127.0.0.1:7878",
			Description:   "Bathroom",
			InitialState:  0,
		},
		Thermometer: ThermometerConfig{
			ID:             "therm1",
			ListenAddress:  "127.0.0.1:6877",
			PeerAddress:    "127.0.0.1:6876",
			ReceiveTimeout: 5 * time.Second,
			PrintInterval:  2 * time.Second,
		},
		Sender: SenderConfig{
			LocalAddress:  "127.0.0.1:6876",
			TargetAddress: "127.0.0.1:6877",
			Interval:      1500 * time.Millisecond,
			From:          30,
			Delta:         5,
		},
		House: HouseConfig{
			Name: "Our house",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SMARTHOUSE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("SMARTHOUSE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SMARTHOUSE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SMARTHOUSE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SMARTHOUSE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("SMARTHOUSE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("SMARTHOUSE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Switch
	if v := os.Getenv("SMARTHOUSE_SWITCH_LISTEN_ADDRESS"); v != "" {
		cfg.Switch.ListenAddress = v
	}
	if v := os.Getenv("SMARTHOUSE_SWITCH_INITIAL_STATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Switch.InitialState = n
		} else {
			// Keep it invalid so validation reports it.
			cfg.Switch.InitialState = -1
		}
	}

	// Thermometer
	if v := os.Getenv("SMARTHOUSE_THERMOMETER_LISTEN_ADDRESS"); v != "" {
		cfg.Thermometer.ListenAddress = v
	}
	if v := os.Getenv("SMARTHOUSE_THERMOMETER_PEER_ADDRESS"); v != "" {
		cfg.Thermometer.PeerAddress = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Exactly two initial states exist; anything else is rejected at startup.
	if c.Switch.InitialState != 0 && c.Switch.InitialState != 1 {
		errs = append(errs, fmt.Sprintf("switch.initial_state must be 0 (off) or 1 (on), got %d", c.Switch.InitialState))
	}
	if c.Switch.PowerConsumption < 0 {
		errs = append(errs, "switch.power_consumption must not be negative")
	}
	errs = appendAddrErr(errs, "switch.listen_address", c.Switch.ListenAddress)

	errs = appendAddrErr(errs, "thermometer.listen_address", c.Thermometer.ListenAddress)
	errs = appendAddrErr(errs, "thermometer.peer_address", c.Thermometer.PeerAddress)
	if c.Thermometer.ReceiveTimeout <= 0 {
		errs = append(errs, "thermometer.receive_timeout must be positive")
	}

	if c.Sender.Interval <= 0 {
		errs = append(errs, "sender.interval must be positive")
	}

	errs = append(errs, c.House.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (h HouseConfig) validate() []string {
	var errs []string
	rooms := make(map[string]bool, len(h.Rooms))
	for i, r := range h.Rooms {
		if strings.TrimSpace(r.Name) == "" {
			errs = append(errs, fmt.Sprintf("house.rooms[%d].name is required", i))
			continue
		}
		if rooms[r.Name] {
			errs = append(errs, fmt.Sprintf("house.rooms[%d]: duplicate room %q", i, r.Name))
		}
		rooms[r.Name] = true

		for j, d := range r.Devices {
			field := fmt.Sprintf("house.rooms[%d].devices[%d]", i, j)
			if strings.TrimSpace(d.Name) == "" {
				errs = append(errs, field+".name is required")
			}
			switch d.Kind {
			case "switch":
				errs = appendAddrErr(errs, field+".address", d.Address)
			case "thermometer":
				errs = appendAddrErr(errs, field+".listen_address", d.ListenAddress)
				errs = appendAddrErr(errs, field+".peer_address", d.PeerAddress)
			default:
				errs = append(errs, fmt.Sprintf("%s.kind must be \"switch\" or \"thermometer\", got %q", field, d.Kind))
			}
		}
	}
	return errs
}

func appendAddrErr(errs []string, field, addr string) []string {
	if addr == "" {
		return append(errs, field+" is required")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return append(errs, fmt.Sprintf("%s %q is not host:port", field, addr))
	}
	return errs
}

// ReadDuration is the HTTP read timeout.
func (t APITimeoutConfig) ReadDuration() time.Duration { return seconds(t.Read) }

// WriteDuration is the HTTP write timeout.
func (t APITimeoutConfig) WriteDuration() time.Duration { return seconds(t.Write) }

// IdleDuration is the keep-alive idle timeout.
func (t APITimeoutConfig) IdleDuration() time.Duration { return seconds(t.Idle) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
