package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/sensor"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/ups"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		Name:                ptr.To("UPS Sensor"),
		I2CAddress:          ptr.To(ups.DefaultAddress),
		I2CBus:              ptr.To(ups.DefaultBus),
		MonitoredConditions: &[]string{string(sensor.MetricVoltage), string(sensor.MetricCapacity)},
		PollInterval:        ptr.To("@every 30s"),
		AllowNonRootAccess:  ptr.To(false),
	}

	defaultDiscoveryPrefix = "homeassistant"
	defaultStatePrefix     = "x708ups"

	// CronParser parses poll_interval.
	CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string

	// clientID is generated once per process when none is configured.
	clientID string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
		clientID: "x708ups-" + uuid.NewString()[:8],
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
		clientID: "x708ups-" + uuid.NewString()[:8],
	}

	return f
}

type RawFileConfig struct {
	Name                *string        `json:"name,omitempty" yaml:"name,omitempty"`
	I2CAddress          *int           `json:"i2c_address,omitempty" yaml:"i2c_address,omitempty"`
	I2CBus              *int           `json:"i2c_bus,omitempty" yaml:"i2c_bus,omitempty"`
	MonitoredConditions *[]string      `json:"monitored_conditions,omitempty" yaml:"monitored_conditions,omitempty"`
	PollInterval        *string        `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	AllowNonRootAccess  *bool          `json:"allow_non_root_access,omitempty" yaml:"allow_non_root_access,omitempty"`
	MQTT                *RawMQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
}

type RawMQTTConfig struct {
	Broker          string `json:"broker,omitempty" yaml:"broker,omitempty"`
	ClientID        string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	Username        string `json:"username,omitempty" yaml:"username,omitempty"`
	Password        string `json:"password,omitempty" yaml:"password,omitempty"`
	DiscoveryPrefix string `json:"discovery_prefix,omitempty" yaml:"discovery_prefix,omitempty"`
	StatePrefix     string `json:"state_prefix,omitempty" yaml:"state_prefix,omitempty"`
}

// NewRawFileConfigFromConfig resolves c into a raw config with every field
// set. The MQTT password is left out.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		Name:                ptr.To(c.Name()),
		I2CAddress:          ptr.To(c.I2CAddress()),
		I2CBus:              ptr.To(c.I2CBus()),
		MonitoredConditions: ptr.To(c.MonitoredConditions()),
		PollInterval:        ptr.To(c.PollInterval()),
		AllowNonRootAccess:  ptr.To(c.AllowNonRootAccess()),
	}

	if m := c.MQTT(); m.Enabled {
		rawConfig.MQTT = &RawMQTTConfig{
			Broker:          m.Broker,
			ClientID:        m.ClientID,
			Username:        m.Username,
			DiscoveryPrefix: m.DiscoveryPrefix,
			StatePrefix:     m.StatePrefix,
		}
	}

	return rawConfig, nil
}

func (f *File) Name() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.Name != nil && *f.c.Name != "" {
		return *f.c.Name
	}
	return *defaultFileConfig.Name
}

func (f *File) I2CAddress() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.I2CAddress != nil {
		return *f.c.I2CAddress
	}
	return *defaultFileConfig.I2CAddress
}

func (f *File) I2CBus() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.I2CBus != nil {
		return *f.c.I2CBus
	}
	return *defaultFileConfig.I2CBus
}

func (f *File) MonitoredConditions() []string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	// An explicit empty list monitors nothing.
	src := *defaultFileConfig.MonitoredConditions
	if f.c.MonitoredConditions != nil {
		src = *f.c.MonitoredConditions
	}

	ret := make([]string, len(src))
	copy(ret, src)
	return ret
}

func (f *File) PollInterval() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.PollInterval != nil && *f.c.PollInterval != "" {
		return *f.c.PollInterval
	}
	return *defaultFileConfig.PollInterval
}

func (f *File) AllowNonRootAccess() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.AllowNonRootAccess != nil {
		return *f.c.AllowNonRootAccess
	}
	return *defaultFileConfig.AllowNonRootAccess
}

func (f *File) MQTT() MQTT {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	raw := f.c.MQTT
	if raw == nil || raw.Broker == "" {
		return MQTT{}
	}

	m := MQTT{
		Enabled:         true,
		Broker:          raw.Broker,
		ClientID:        raw.ClientID,
		Username:        raw.Username,
		Password:        raw.Password,
		DiscoveryPrefix: raw.DiscoveryPrefix,
		StatePrefix:     raw.StatePrefix,
	}
	if m.ClientID == "" {
		m.ClientID = f.clientID
	}
	if m.DiscoveryPrefix == "" {
		m.DiscoveryPrefix = defaultDiscoveryPrefix
	}
	if m.StatePrefix == "" {
		m.StatePrefix = defaultStatePrefix
	}
	return m
}

func (f *File) SetName(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Name = &s
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AllowNonRootAccess = &b
}

func (f *File) Validate() error {
	if addr := f.I2CAddress(); addr <= 0 || addr > 0x7f {
		return fmt.Errorf("i2c_address must be a 7-bit address, got 0x%02x", addr)
	}
	if bus := f.I2CBus(); bus < 0 {
		return fmt.Errorf("i2c_bus must not be negative, got %d", bus)
	}
	if _, err := sensor.ParseMetrics(f.MonitoredConditions()); err != nil {
		return err
	}
	if _, err := CronParser.Parse(f.PollInterval()); err != nil {
		return pkgerrors.Wrapf(err, "invalid poll_interval %q", f.PollInterval())
	}
	return nil
}

func (f *File) isYAML() bool {
	switch strings.ToLower(filepath.Ext(f.filepath)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	if f.isYAML() {
		err = yaml.Unmarshal(b, &conf)
	} else {
		err = json.Unmarshal(b, &conf)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	if f.isYAML() {
		enc := yaml.NewEncoder(fp)
		enc.SetIndent(2)
		err = enc.Encode(f.c)
		if err == nil {
			err = enc.Close()
		}
	} else {
		enc := json.NewEncoder(fp)
		enc.SetIndent("", "  ")
		err = enc.Encode(f.c)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	m := f.MQTT()
	return logrus.Fields{
		"name":                f.Name(),
		"i2cAddress":          fmt.Sprintf("0x%02x", f.I2CAddress()),
		"i2cBus":              f.I2CBus(),
		"monitoredConditions": f.MonitoredConditions(),
		"pollInterval":        f.PollInterval(),
		"allowNonRootAccess":  f.AllowNonRootAccess(),
		"mqttEnabled":         m.Enabled,
		"mqttBroker":          m.Broker,
	}
}
