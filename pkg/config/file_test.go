package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", p, err)
	}
	return p
}

func TestDefaults(t *testing.T) {
	for _, name := range []string{"missing.json", "empty.json"} {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), name)
			if name == "empty.json" {
				p = writeFile(t, name, "  \n")
			}

			f, err := NewFile(p)
			if err != nil {
				t.Fatalf("NewFile() error = %v", err)
			}
			if f.Name() != "UPS Sensor" {
				t.Errorf("Name() = %q", f.Name())
			}
			if f.I2CAddress() != 0x36 {
				t.Errorf("I2CAddress() = %#x", f.I2CAddress())
			}
			if f.I2CBus() != 1 {
				t.Errorf("I2CBus() = %d", f.I2CBus())
			}
			if got := strings.Join(f.MonitoredConditions(), ","); got != "voltage,capacity" {
				t.Errorf("MonitoredConditions() = %s", got)
			}
			if f.PollInterval() != "@every 30s" {
				t.Errorf("PollInterval() = %s", f.PollInterval())
			}
			if f.MQTT().Enabled {
				t.Error("MQTT() enabled without a broker")
			}
			if err := f.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, "x708ups.json", `{
  "name": "Rack UPS",
  "i2c_address": 54,
  "i2c_bus": 0,
  "monitored_conditions": ["capacity"],
  "mqtt": {"broker": "tcp://127.0.0.1:1883", "username": "ha"}
}`)

	f, err := NewFile(p)
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	if f.Name() != "Rack UPS" || f.I2CAddress() != 0x36 || f.I2CBus() != 0 {
		t.Errorf("got name=%q addr=%#x bus=%d", f.Name(), f.I2CAddress(), f.I2CBus())
	}
	if got := f.MonitoredConditions(); len(got) != 1 || got[0] != "capacity" {
		t.Errorf("MonitoredConditions() = %v", got)
	}

	m := f.MQTT()
	if !m.Enabled || m.Broker != "tcp://127.0.0.1:1883" || m.Username != "ha" {
		t.Errorf("MQTT() = %+v", m)
	}
	if m.DiscoveryPrefix != "homeassistant" || m.StatePrefix != "x708ups" {
		t.Errorf("MQTT() prefixes = %s, %s", m.DiscoveryPrefix, m.StatePrefix)
	}
	if !strings.HasPrefix(m.ClientID, "x708ups-") {
		t.Errorf("MQTT().ClientID = %s", m.ClientID)
	}
	if f.MQTT().ClientID != m.ClientID {
		t.Error("generated client ID changed between calls")
	}
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "x708ups.yaml", `
name: Shed UPS
i2c_address: 0x36
i2c_bus: 3
poll_interval: "@every 1m"
monitored_conditions:
  - voltage
`)

	f, err := NewFile(p)
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	if f.Name() != "Shed UPS" || f.I2CAddress() != 0x36 || f.I2CBus() != 3 {
		t.Errorf("got name=%q addr=%#x bus=%d", f.Name(), f.I2CAddress(), f.I2CBus())
	}
	if f.PollInterval() != "@every 1m" {
		t.Errorf("PollInterval() = %s", f.PollInterval())
	}
	if err := f.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadMonitoredConditions(t *testing.T) {
	tests := []struct {
		file    string
		content string
		want    string
	}{
		{"unset.json", `{"name": "UPS"}`, "voltage,capacity"},
		{"null.json", `{"monitored_conditions": null}`, "voltage,capacity"},
		{"empty.json", `{"monitored_conditions": []}`, ""},
		{"empty.yaml", "monitored_conditions: []\n", ""},
		{"voltage.yml", "monitored_conditions:\n  - voltage\n", "voltage"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			p := writeFile(t, tt.file, tt.content)
			f, err := NewFile(p)
			if err != nil {
				t.Fatalf("NewFile() error = %v", err)
			}
			if got := strings.Join(f.MonitoredConditions(), ","); got != tt.want {
				t.Errorf("MonitoredConditions() = %q, want %q", got, tt.want)
			}
			if err := f.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}

			// An explicit empty list must survive a save.
			if err := f.Save(); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			loaded, err := NewFile(p)
			if err != nil {
				t.Fatalf("NewFile() after Save() error = %v", err)
			}
			if got := strings.Join(loaded.MonitoredConditions(), ","); got != tt.want {
				t.Errorf("MonitoredConditions() after Save() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	p := writeFile(t, "broken.json", `{"name": `)
	if _, err := NewFile(p); err == nil {
		t.Fatal("NewFile() accepted malformed JSON")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  RawFileConfig
	}{
		{name: "zero address", raw: RawFileConfig{I2CAddress: intPtr(0)}},
		{name: "10-bit address", raw: RawFileConfig{I2CAddress: intPtr(0x136)}},
		{name: "negative bus", raw: RawFileConfig{I2CBus: intPtr(-1)}},
		{name: "unknown condition", raw: RawFileConfig{MonitoredConditions: &[]string{"current"}}},
		{name: "condition case", raw: RawFileConfig{MonitoredConditions: &[]string{"Voltage"}}},
		{name: "bad interval", raw: RawFileConfig{PollInterval: strPtr("every now and then")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.raw
			if err := NewFileFromConfig(&raw, "").Validate(); err == nil {
				t.Error("Validate() error = nil")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"conf.json", "conf.yaml"} {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), name)

			f := NewFileFromConfig(nil, p)
			f.SetName("Attic UPS")
			f.SetAllowNonRootAccess(true)
			if err := f.Save(); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			loaded, err := NewFile(p)
			if err != nil {
				t.Fatalf("NewFile() error = %v", err)
			}
			if loaded.Name() != "Attic UPS" || !loaded.AllowNonRootAccess() {
				t.Errorf("loaded name=%q allowNonRoot=%v", loaded.Name(), loaded.AllowNonRootAccess())
			}
			if loaded.I2CAddress() != 0x36 {
				t.Errorf("loaded I2CAddress() = %#x", loaded.I2CAddress())
			}
		})
	}
}

func TestRawFromConfigHidesPassword(t *testing.T) {
	f := NewFileFromConfig(&RawFileConfig{
		MQTT: &RawMQTTConfig{Broker: "tcp://broker:1883", Password: "hunter2"},
	}, "")

	raw, err := NewRawFileConfigFromConfig(f)
	if err != nil {
		t.Fatalf("NewRawFileConfigFromConfig() error = %v", err)
	}
	if raw.MQTT == nil || raw.MQTT.Broker != "tcp://broker:1883" {
		t.Fatalf("raw.MQTT = %+v", raw.MQTT)
	}
	if raw.MQTT.Password != "" {
		t.Error("password leaked into raw config")
	}
	if *raw.Name != "UPS Sensor" {
		t.Errorf("raw.Name = %s", *raw.Name)
	}
}

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }
