package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
switch:
  id: "bath"
  listen_address: "127.0.0.1:9000"
  description: "Bathroom"
  initial_state: 1
  power_consumption: 42.5
  idle_timeout: 30s
thermometer:
  listen_address: "127.0.0.1:9001"
  peer_address: "127.0.0.1:9002"
  receive_timeout: 2s
house:
  name: "Test house"
  rooms:
    - name: "Bathroom"
      devices:
        - name: "switch1"
          kind: "switch"
          address: "127.0.0.1:9000"
        - name: "therm1"
          kind: "thermometer"
          listen_address: "127.0.0.1:9001"
          peer_address: "127.0.0.1:9002"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Switch.InitialState != 1 || cfg.Switch.PowerConsumption != 42.5 {
		t.Errorf("Switch = %+v", cfg.Switch)
	}
	if cfg.Switch.IdleTimeout != 30*time.Second {
		t.Errorf("Switch.IdleTimeout = %v, want 30s", cfg.Switch.IdleTimeout)
	}
	if cfg.Thermometer.ReceiveTimeout != 2*time.Second {
		t.Errorf("Thermometer.ReceiveTimeout = %v, want 2s", cfg.Thermometer.ReceiveTimeout)
	}
	// Untouched sections keep defaults.
	if cfg.Sender.Interval != 1500*time.Millisecond {
		t.Errorf("Sender.Interval = %v, want 1.5s", cfg.Sender.Interval)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
	if len(cfg.House.Rooms) != 1 || len(cfg.House.Rooms[0].Devices) != 2 {
		t.Errorf("House = %+v", cfg.House)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidInitialState(t *testing.T) {
	for _, state := range []string{"2", "-1", "255"} {
		t.Run(state, func(t *testing.T) {
			_, err := Load(writeConfig(t, "switch:\n  initial_state: "+state+"\n"))
			if err == nil || !strings.Contains(err.Error(), "switch.initial_state") {
				t.Errorf("Load() error = %v, want initial_state error", err)
			}
		})
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if cfg.Switch.InitialState != 0 {
		t.Errorf("default InitialState = %d, want 0", cfg.Switch.InitialState)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"missing site id", func(c *Config) { c.Site.ID = "" }, "site.id"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"bad api port", func(c *Config) { c.API.Port = 0 }, "api.port"},
		{"influx without url", func(c *Config) { c.InfluxDB.Enabled = true }, "influxdb.url"},
		{"negative consumption", func(c *Config) { c.Switch.PowerConsumption = -1 }, "power_consumption"},
		{"switch address without port", func(c *Config) { c.Switch.ListenAddress = "localhost" }, "switch.listen_address"},
		{"missing peer", func(c *Config) { c.Thermometer.PeerAddress = "" }, "thermometer.peer_address"},
		{"zero receive timeout", func(c *Config) { c.Thermometer.ReceiveTimeout = 0 }, "receive_timeout"},
		{"bad device kind", func(c *Config) {
			c.House.Rooms = []RoomConfig{{Name: "A", Devices: []DeviceConfig{{Name: "x", Kind: "lamp"}}}}
		}, "kind"},
		{"duplicate room", func(c *Config) {
			c.House.Rooms = []RoomConfig{{Name: "A"}, {Name: "A"}}
		}, "duplicate room"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Site.ID = ""
	cfg.Switch.InitialState = 5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, want := range []string{"site.id", "switch.initial_state"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SMARTHOUSE_DATABASE_PATH", "/env/db.sqlite")
	t.Setenv("SMARTHOUSE_SWITCH_LISTEN_ADDRESS", "0.0.0.0:7000")
	t.Setenv("SMARTHOUSE_SWITCH_INITIAL_STATE", "1")
	t.Setenv("SMARTHOUSE_THERMOMETER_PEER_ADDRESS", "10.0.0.5:6876")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/env/db.sqlite" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Switch.ListenAddress != "0.0.0.0:7000" {
		t.Errorf("Switch.ListenAddress = %q", cfg.Switch.ListenAddress)
	}
	if cfg.Switch.InitialState != 1 {
		t.Errorf("Switch.InitialState = %d, want 1", cfg.Switch.InitialState)
	}
	if cfg.Thermometer.PeerAddress != "10.0.0.5:6876" {
		t.Errorf("Thermometer.PeerAddress = %q", cfg.Thermometer.PeerAddress)
	}
}

func TestApplyEnvOverrides_NonNumericState(t *testing.T) {
	t.Setenv("SMARTHOUSE_SWITCH_INITIAL_STATE", "on")
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted non-numeric initial state")
	}
}

func TestTimeoutGetters(t *testing.T) {
	cfg := defaultConfig()
	if to := cfg.API.Timeouts; to.ReadDuration() != 30*time.Second || to.IdleDuration() != 60*time.Second {
		t.Errorf("timeouts = %v/%v", to.ReadDuration(), to.IdleDuration())
	}
}
